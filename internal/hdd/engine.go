// Package hdd implements hierarchical delta debugging: the input is parsed
// into a tree and each tree level is minimised with delta debugging, from the
// root downwards.
package hdd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/vk/hddreduce/internal/ctxlog"
	"github.com/vk/hddreduce/internal/dd"
	"github.com/vk/hddreduce/internal/grammar"
	"github.com/vk/hddreduce/internal/islands"
	"github.com/vk/hddreduce/internal/textenc"
)

// Variant selects which nodes of a level take part in minimisation.
type Variant int

const (
	// Full minimises every node of a level.
	Full Variant = iota
	// Coarse only minimises nodes that disappear entirely when removed.
	Coarse
)

// String returns the configuration name of the variant.
func (v Variant) String() string {
	switch v {
	case Full:
		return "full"
	case Coarse:
		return "coarse"
	default:
		return fmt.Sprintf("Variant(%d)", int(v))
	}
}

// Call is everything one reduction needs.
type Call struct {
	// Input is the file name the result is written under, inside Out.
	Input string
	Src   []byte
	// Encoding of Src; empty means detect.
	Encoding string
	Out      string
	// WorkDir holds the per-run scratch directory; empty means os.TempDir().
	WorkDir string

	Kind   dd.Kind
	Reduce dd.Config
	Tester dd.Tester
	// Cache creates the cache of each level; nil disables caching.
	Cache  dd.CacheFactory
	HDDMin Variant

	Grammar      []string
	StartRule    string
	Replacements map[string]string
	Islands      *islands.Descriptor
	Lang         string
	ANTLR        string

	HDDStar               bool
	SqueezeTree           bool
	SkipUnremovableTokens bool
	Cleanup               bool
}

// Engine runs hierarchical reductions.
type Engine struct {
	load GrammarLoader
}

// New returns an engine loading grammars with grammar.Load.
func New() *Engine {
	return &Engine{load: grammar.Load}
}

// Reduce minimises call.Src and writes the result, in the input encoding, to
// Out/Input. It returns the path of the written file.
func (e *Engine) Reduce(ctx context.Context, call *Call) (string, error) {
	if call.Tester == nil {
		return "", errors.New("hdd: tester is required")
	}
	if call.Input == "" || call.Out == "" {
		return "", errors.New("hdd: input name and output directory are required")
	}
	logger := ctxlog.FromContext(ctx).With("input", call.Input)

	enc := call.Encoding
	if enc == "" {
		enc = textenc.Detect(call.Src)
	}
	text, err := textenc.Decode(call.Src, enc)
	if err != nil {
		return "", fmt.Errorf("decoding input: %w", err)
	}

	g, err := e.load(ctx, call.Grammar)
	if err != nil {
		return "", err
	}
	logger.Debug("Grammar ready.", "files", g.Files, "start_rule", call.StartRule, "lang", call.Lang, "antlr", call.ANTLR)

	opts := BuildOptions{Replacements: call.Replacements, LoadGrammar: e.load}
	if call.Islands != nil {
		opts.Islands = call.Islands.Islands
	}
	tree, err := Build(ctx, g, call.StartRule, string(text), opts)
	if err != nil {
		return "", fmt.Errorf("building tree: %w", err)
	}
	if call.SqueezeTree {
		tree.Squeeze()
	}
	logger.Debug("Tree built.", "nodes", tree.Size())

	runDir, err := makeRunDir(call.WorkDir)
	if err != nil {
		return "", err
	}
	if call.Cleanup {
		defer func() {
			if err := os.RemoveAll(runDir); err != nil {
				logger.Warn("Failed to remove run directory.", "dir", runDir, "error", err)
			}
		}()
	}

	if err := e.sweep(ctx, call, tree, runDir); err != nil {
		return "", err
	}

	out, err := textenc.Encode([]byte(tree.Render()), enc)
	if err != nil {
		return "", fmt.Errorf("encoding result: %w", err)
	}
	if err := os.MkdirAll(call.Out, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	path := filepath.Join(call.Out, call.Input)
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return "", fmt.Errorf("writing result: %w", err)
	}
	logger.Info("Reduction finished.", "from", len(call.Src), "to", len(out), "path", path)
	return path, nil
}

func makeRunDir(workDir string) (string, error) {
	if workDir == "" {
		workDir = os.TempDir()
	}
	dir := filepath.Join(workDir, "hdd-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating run directory: %w", err)
	}
	return dir, nil
}

// sweep minimises the tree level by level. With HDDStar it repeats until a
// whole sweep removes nothing.
func (e *Engine) sweep(ctx context.Context, call *Call, tree *Tree, runDir string) error {
	logger := ctxlog.FromContext(ctx)

	for iter := 0; ; iter++ {
		changed := false
		for depth := 0; ; depth++ {
			nodes := tree.Level(depth)
			if len(nodes) == 0 {
				break
			}
			cands := candidates(tree, nodes, call)
			if len(cands) == 0 {
				continue
			}

			removed, err := reduceLevel(ctx, call, tree, cands, fmt.Sprintf("i%d_l%d_", iter, depth))
			if err != nil {
				return fmt.Errorf("iteration %d, level %d: %w", iter, depth, err)
			}
			if removed > 0 {
				changed = true
			}
			logger.Debug("Level reduced.", "iteration", iter, "level", depth, "candidates", len(cands), "removed", removed)

			snapshot := filepath.Join(runDir, fmt.Sprintf("i%d_l%d_%s", iter, depth, filepath.Base(call.Input)))
			if err := os.WriteFile(snapshot, []byte(tree.Render()), 0o644); err != nil {
				return fmt.Errorf("writing level snapshot: %w", err)
			}
		}
		if !call.HDDStar || !changed {
			return nil
		}
	}
}

func candidates(tree *Tree, nodes []int, call *Call) []int {
	out := make([]int, 0, len(nodes))
	for _, i := range nodes {
		n := &tree.Nodes[i]
		if call.SkipUnremovableTokens && n.Leaf() && n.Replacement == n.Text {
			continue
		}
		if call.HDDMin == Coarse && n.Replacement != "" {
			continue
		}
		out = append(out, i)
	}
	return out
}

// reduceLevel runs delta debugging over cands and marks every node outside
// the result as removed. It returns how many nodes were removed.
func reduceLevel(ctx context.Context, call *Call, tree *Tree, cands []int, prefix string) (int, error) {
	position := make(map[int]int, len(cands))
	for p, i := range cands {
		position[i] = p
	}
	build := func(config []int) []byte {
		keep := make([]bool, len(cands))
		for _, p := range config {
			keep[p] = true
		}
		return []byte(tree.render(func(i int) bool {
			if tree.Nodes[i].Removed {
				return true
			}
			p, ok := position[i]
			return ok && !keep[p]
		}))
	}

	var cache dd.Cache
	if call.Cache != nil {
		cache = call.Cache(build)
	}
	r, err := dd.New(call.Kind, call.Reduce, call.Tester, build, cache)
	if err != nil {
		return 0, err
	}
	kept, err := r.Named(prefix).Reduce(ctx, dd.Forward(len(cands)))
	if err != nil {
		return 0, err
	}

	keep := make([]bool, len(cands))
	for _, p := range kept {
		keep[p] = true
	}
	removed := 0
	for p, i := range cands {
		if !keep[p] {
			tree.Nodes[i].Removed = true
			removed++
		}
	}
	return removed, nil
}
