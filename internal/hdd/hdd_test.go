package hdd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/hddreduce/internal/dd"
	"github.com/vk/hddreduce/internal/grammar"
	"github.com/vk/hddreduce/internal/islands"
	"github.com/vk/hddreduce/internal/listener"
	"github.com/vk/hddreduce/internal/textenc"
)

const linesGrammar = `
rule "file" {
  split = "\n"
  child = "line"
}

rule "line" {
  match = "\\w+"
  child = "word"
}

rule "word" {}
`

func writeGrammar(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func containsAll(words ...string) dd.TesterFunc {
	return func(_ context.Context, content []byte, _ string) (dd.Outcome, error) {
		for _, w := range words {
			if !strings.Contains(string(content), w) {
				return dd.Pass, nil
			}
		}
		return dd.Fail, nil
	}
}

func sequential() dd.Config {
	return dd.Config{
		Split:              dd.Zeller,
		SubsetFirst:        true,
		SubsetIterator:     dd.Forward,
		ComplementIterator: dd.Forward,
		Jobs:               1,
		MaxUtilization:     100,
	}
}

func newCall(t *testing.T, grammarPath string, src string, tester dd.Tester) *Call {
	t.Helper()
	return &Call{
		Input:                 "test.txt",
		Src:                   []byte(src),
		Encoding:              "utf-8",
		Out:                   t.TempDir(),
		WorkDir:               t.TempDir(),
		Kind:                  dd.LightDD,
		Reduce:                sequential(),
		Tester:                tester,
		Cache:                 dd.NewContentCache,
		HDDMin:                Full,
		Grammar:               []string{grammarPath},
		StartRule:             "file",
		HDDStar:               true,
		SqueezeTree:           true,
		SkipUnremovableTokens: true,
		Cleanup:               true,
	}
}

func readResult(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestBuild_RendersInput(t *testing.T) {
	g, err := grammar.Parse([]byte(linesGrammar), "lines.hcl")
	require.NoError(t, err)

	input := "alpha beta\n\ngamma, delta!\n"
	tree, err := Build(context.Background(), g, "file", input, BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, input, tree.Render())

	root := tree.Nodes[tree.Root]
	assert.Equal(t, "file", root.Rule)
	assert.Equal(t, -1, root.Parent)

	level1 := tree.Level(1)
	var rules []string
	for _, i := range level1 {
		rules = append(rules, tree.Nodes[i].Rule)
	}
	assert.Equal(t, []string{"line", grammar.TokenRule, grammar.TokenRule, "line", grammar.TokenRule}, rules)

	words := 0
	for _, i := range tree.Level(2) {
		n := tree.Nodes[i]
		if n.Rule == "word" {
			words++
			assert.Empty(t, n.Replacement)
		} else {
			assert.Equal(t, n.Text, n.Replacement, "uncovered text is unremovable")
		}
	}
	assert.Equal(t, 4, words)
}

func TestBuild_Replacements(t *testing.T) {
	g, err := grammar.Parse([]byte(linesGrammar), "lines.hcl")
	require.NoError(t, err)

	tree, err := Build(context.Background(), g, "file", "a b\n", BuildOptions{Replacements: map[string]string{"word": "_"}})
	require.NoError(t, err)
	for _, i := range tree.Level(2) {
		if tree.Nodes[i].Rule == "word" {
			tree.Nodes[i].Removed = true
		}
	}
	assert.Equal(t, "_ _\n", tree.Render())
}

func TestBuild_UnknownStartRule(t *testing.T) {
	g, err := grammar.Parse([]byte(linesGrammar), "lines.hcl")
	require.NoError(t, err)
	_, err = Build(context.Background(), g, "program", "x", BuildOptions{})
	assert.ErrorContains(t, err, `start rule "program"`)
}

func TestBuild_Islands(t *testing.T) {
	host, err := grammar.Parse([]byte(`
rule "file" {
  split = ";"
  child = "stmt"
}
rule "stmt" {}
`), "host.hcl")
	require.NoError(t, err)

	island, err := grammar.Parse([]byte(`
rule "expr" {
  split = "\\+"
  child = "term"
}
rule "term" {}
`), "expr.hcl")
	require.NoError(t, err)

	var loaded [][]string
	load := func(_ context.Context, paths []string) (*grammar.Grammar, error) {
		loaded = append(loaded, paths)
		return island, nil
	}

	tree, err := Build(context.Background(), host, "file", "a+b;c", BuildOptions{
		Islands: []islands.Island{{
			Rule:         "stmt",
			Grammar:      []string{"expr.hcl"},
			StartRule:    "expr",
			Replacements: map[string]string{"term": "0"},
		}},
		LoadGrammar: load,
	})
	require.NoError(t, err)
	assert.Equal(t, "a+b;c", tree.Render())
	assert.Equal(t, [][]string{{"expr.hcl"}}, loaded, "island grammars are loaded once")

	// file -> stmt -> expr -> term
	var terms []int
	for _, i := range tree.Level(3) {
		if tree.Nodes[i].Rule == "term" {
			terms = append(terms, i)
		}
	}
	require.Len(t, terms, 3)
	for _, i := range terms {
		assert.Equal(t, "0", tree.Nodes[i].Replacement, "island replacements apply inside the island")
	}

	tree.Squeeze()
	assert.Equal(t, "a+b;c", tree.Render())
	assert.Equal(t, "stmt", tree.Nodes[tree.Level(1)[0]].Rule)
	assert.Equal(t, "term", tree.Nodes[tree.Level(2)[0]].Rule, "squeezing removes the single-child stmt/expr chain")
}

func TestBuild_IslandGrammarError(t *testing.T) {
	g, err := grammar.Parse([]byte(linesGrammar), "lines.hcl")
	require.NoError(t, err)

	boom := errors.New("no such grammar")
	_, err = Build(context.Background(), g, "file", "a\n", BuildOptions{
		Islands:     []islands.Island{{Rule: "line", Grammar: []string{"x.hcl"}, StartRule: "x"}},
		LoadGrammar: func(context.Context, []string) (*grammar.Grammar, error) { return nil, boom },
	})
	assert.ErrorIs(t, err, boom)
}

func TestTree_DeepInput(t *testing.T) {
	g, err := grammar.Parse([]byte(`
rule "nest" {
  split = "^\\(|\\)$"
  child = "nest"
}
`), "nest.hcl")
	require.NoError(t, err)

	depth := 5000
	input := strings.Repeat("(", depth) + strings.Repeat(")", depth)
	tree, err := Build(context.Background(), g, "nest", input, BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, input, tree.Render())
	tree.Squeeze()
	assert.Equal(t, input, tree.Render())
}

func TestBuild_RuleCycleOnSameText(t *testing.T) {
	testCases := []struct {
		name    string
		src     string
		start   string
		input   string
		wantLen int
	}{
		{name: "self child", src: `rule "a" {
  match = ".+"
  child = "a"
}`, start: "a", input: "x", wantLen: 2},
		{name: "two rule cycle", src: `rule "a" {
  match = ".+"
  child = "b"
}
rule "b" {
  split = ";"
  child = "a"
}`, start: "a", input: "xy", wantLen: 3},
		{name: "unmatched split", src: `rule "nest" {
  split = "^\\(|\\)$"
  child = "nest"
}`, start: "nest", input: "(x)", wantLen: 5},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			g, err := grammar.Parse([]byte(tc.src), "cycle.hcl")
			require.NoError(t, err)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			tree, err := Build(ctx, g, tc.start, tc.input, BuildOptions{})
			require.NoError(t, err)
			assert.Equal(t, tc.input, tree.Render())
			assert.Len(t, tree.Nodes, tc.wantLen)
		})
	}
}

func TestEngine_Reduce(t *testing.T) {
	dir := t.TempDir()
	gPath := writeGrammar(t, dir, "lines.hcl", linesGrammar)
	input := "keep this line\nremove me\nalso keep\n"

	for _, kind := range []dd.Kind{dd.LightDD, dd.ParallelDD, dd.CombinedParallelDD} {
		t.Run(kind.String(), func(t *testing.T) {
			call := newCall(t, gPath, input, containsAll("this", "also"))
			call.Kind = kind
			if kind.Parallel() {
				call.Reduce.Jobs = 4
				call.Cache = dd.Shared(dd.NewContentCache)
			}
			if kind == dd.CombinedParallelDD {
				call.Reduce.ConfigIterator = dd.Combined(true, dd.Forward, dd.Forward)
			}

			path, err := New().Reduce(context.Background(), call)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(call.Out, "test.txt"), path)
			assert.Equal(t, " this \n\nalso \n", readResult(t, path))
		})
	}
}

func TestEngine_CoarseKeepsReplacedNodes(t *testing.T) {
	dir := t.TempDir()
	gPath := writeGrammar(t, dir, "lines.hcl", strings.Replace(linesGrammar, `rule "word" {}`, `rule "word" {
  replacement = "x"
}`, 1))
	input := "keep this line\nremove me\nalso keep\n"

	call := newCall(t, gPath, input, containsAll("this", "also"))
	call.HDDMin = Coarse
	path, err := New().Reduce(context.Background(), call)
	require.NoError(t, err)
	assert.Equal(t, "keep this line\n\nalso keep\n", readResult(t, path))

	call = newCall(t, gPath, input, containsAll("this", "also"))
	path, err = New().Reduce(context.Background(), call)
	require.NoError(t, err)
	assert.Equal(t, "x this x\n\nalso x\n", readResult(t, path))
}

func TestEngine_Islands(t *testing.T) {
	dir := t.TempDir()
	gPath := writeGrammar(t, dir, "host.hcl", `
rule "file" {
  split = "\n"
  child = "line"
}
rule "line" {}
`)
	writeGrammar(t, dir, "words.hcl", `
rule "words" {
  match = "\\w+"
  child = "w"
}
rule "w" {}
`)
	descPath := filepath.Join(dir, "islands.json")
	require.NoError(t, os.WriteFile(descPath, []byte(`{"islands":[{"rule":"line","grammar":["words.hcl"],"start_rule":"words"}]}`), 0o644))

	call := newCall(t, gPath, "a b\nc d\n", containsAll("b"))
	call.Islands = islands.Load(context.Background(), descPath, "", listener.Nop{}, "job")
	require.NotNil(t, call.Islands)

	path, err := New().Reduce(context.Background(), call)
	require.NoError(t, err)
	assert.Equal(t, " b\n\n", readResult(t, path))
}

func TestEngine_KeepsInputEncoding(t *testing.T) {
	dir := t.TempDir()
	gPath := writeGrammar(t, dir, "lines.hcl", linesGrammar)
	src, err := textenc.Encode([]byte("café\nbar\n"), "latin1")
	require.NoError(t, err)

	call := newCall(t, gPath, "", containsAll("é"))
	call.Src = src
	call.Encoding = "latin1"
	path, err := New().Reduce(context.Background(), call)
	require.NoError(t, err)

	out, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xE9, '\n', '\n'}, out)
}

func TestEngine_Cleanup(t *testing.T) {
	dir := t.TempDir()
	gPath := writeGrammar(t, dir, "lines.hcl", linesGrammar)

	for _, cleanup := range []bool{true, false} {
		call := newCall(t, gPath, "a\nb\n", containsAll("a"))
		call.Cleanup = cleanup
		_, err := New().Reduce(context.Background(), call)
		require.NoError(t, err)

		entries, err := os.ReadDir(call.WorkDir)
		require.NoError(t, err)
		if cleanup {
			assert.Empty(t, entries)
			continue
		}
		require.Len(t, entries, 1)
		assert.True(t, strings.HasPrefix(entries[0].Name(), "hdd-"))
		snapshots, err := os.ReadDir(filepath.Join(call.WorkDir, entries[0].Name()))
		require.NoError(t, err)
		assert.NotEmpty(t, snapshots)
	}
}

func TestEngine_TesterErrorAborts(t *testing.T) {
	dir := t.TempDir()
	gPath := writeGrammar(t, dir, "lines.hcl", linesGrammar)
	boom := errors.New("sut unavailable")

	call := newCall(t, gPath, "a\nb\n", dd.TesterFunc(func(context.Context, []byte, string) (dd.Outcome, error) {
		return dd.Pass, boom
	}))
	_, err := New().Reduce(context.Background(), call)
	require.ErrorIs(t, err, boom)

	_, statErr := os.Stat(filepath.Join(call.Out, "test.txt"))
	assert.True(t, os.IsNotExist(statErr), "no result is written on failure")
}

func TestEngine_InvalidCalls(t *testing.T) {
	dir := t.TempDir()
	gPath := writeGrammar(t, dir, "lines.hcl", linesGrammar)

	call := newCall(t, gPath, "a", nil)
	_, err := New().Reduce(context.Background(), call)
	assert.Error(t, err)

	call = newCall(t, gPath, "a", containsAll("a"))
	call.StartRule = "nope"
	_, err = New().Reduce(context.Background(), call)
	assert.ErrorContains(t, err, "start rule")

	call = newCall(t, filepath.Join(dir, "missing.hcl"), "a", containsAll("a"))
	_, err = New().Reduce(context.Background(), call)
	assert.Error(t, err)
}

func TestVariant_String(t *testing.T) {
	assert.Equal(t, "full", Full.String())
	assert.Equal(t, "coarse", Coarse.String())
}
