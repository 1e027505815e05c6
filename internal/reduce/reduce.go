// Package reduce drives one test-case reduction: it assembles the strategy,
// oracle and engine payload from the job configuration, runs the engine and
// reconciles its outcome with the issues discovered on the way.
package reduce

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/hddreduce/internal/config"
	"github.com/vk/hddreduce/internal/ctxlog"
	"github.com/vk/hddreduce/internal/hdd"
	"github.com/vk/hddreduce/internal/issue"
	"github.com/vk/hddreduce/internal/islands"
	"github.com/vk/hddreduce/internal/listener"
	"github.com/vk/hddreduce/internal/oracle"
	"github.com/vk/hddreduce/internal/strategy"
	"github.com/vk/hddreduce/internal/sut"
	"github.com/vk/hddreduce/internal/textenc"
)

// Engine performs the actual minimisation and returns the path of the
// reduced file.
type Engine interface {
	Reduce(ctx context.Context, call *hdd.Call) (string, error)
}

// State is the phase a reduction is in.
type State int

const (
	Assemble State = iota
	Run
	Succeeded
	Failed
)

// String returns the name of the state.
func (s State) String() string {
	switch s {
	case Assemble:
		return "assemble"
	case Run:
		return "run"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Request describes one reduction job.
type Request struct {
	// Issue is the failure to preserve. Its Test is the artifact to reduce.
	Issue   *issue.Issue
	Caller  sut.Caller
	Args    sut.Args
	Options *config.Options
	// Listener defaults to listener.Nop.
	Listener listener.Listener
	// Ident names the job in notifications.
	Ident string
	// WorkDir holds scratch files; empty means os.TempDir().
	WorkDir string
}

// Result is the outcome of a reduction. Reduced is nil when the engine
// failed; Issues holds whatever was discovered before that.
type Result struct {
	Reduced []byte
	Issues  []*issue.Issue
	State   State
	// Err is the engine failure that moved the reduction to Failed.
	Err error
}

// Reducer runs reductions with one engine.
type Reducer struct {
	engine Engine
}

// New returns a Reducer. A nil engine selects the built-in hdd engine.
func New(engine Engine) *Reducer {
	if engine == nil {
		engine = hdd.New()
	}
	return &Reducer{engine: engine}
}

// Reduce runs req to completion. Invalid requests and configurations are
// returned as errors before anything runs. Engine failures, panics included,
// are not errors: they yield a Failed result that still carries the issues
// found so far.
func (r *Reducer) Reduce(ctx context.Context, req *Request) (*Result, error) {
	logger := ctxlog.FromContext(ctx).With("job", req.Ident)
	ctx = ctxlog.WithLogger(ctx, logger)

	logger.Debug("Reduction state changed.", "state", Assemble.String())
	job, err := assemble(ctx, req)
	if err != nil {
		return nil, err
	}
	if job.cleanup {
		defer func() {
			if err := os.RemoveAll(job.call.Out); err != nil {
				logger.Warn("Failed to remove output directory.", "dir", job.call.Out, "error", err)
			}
		}()
	}

	logger.Debug("Reduction state changed.", "state", Run.String())
	path, err := r.run(ctx, job.call)
	if err == nil {
		var reduced []byte
		if reduced, err = os.ReadFile(path); err == nil {
			logger.Info("Reduction succeeded.", "from", len(req.Issue.Test), "to", len(reduced), "new_issues", job.issues.Len())
			return &Result{Reduced: reduced, Issues: job.issues.List(), State: Succeeded}, nil
		}
		err = fmt.Errorf("reading reduced test: %w", err)
	}

	logger.Error("Reduction failed.",
		"error", err,
		"state", Failed.String(),
		"issue_id", req.Issue.ID,
		"kind", job.call.Kind.String(),
		"grammar", job.call.Grammar,
		"start_rule", job.call.StartRule,
		"new_issues", job.issues.Len())
	return &Result{Issues: job.issues.List(), State: Failed, Err: err}, nil
}

// run calls the engine and turns a panic into an error.
func (r *Reducer) run(ctx context.Context, call *hdd.Call) (path string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("engine panicked: %v", p)
		}
	}()
	path, err = r.engine.Reduce(ctx, call)
	if err == nil && path == "" {
		err = errors.New("engine returned no result")
	}
	return path, err
}

type job struct {
	call    *hdd.Call
	issues  *issue.Collection
	cleanup bool
}

func assemble(ctx context.Context, req *Request) (*job, error) {
	logger := ctxlog.FromContext(ctx)

	switch {
	case req.Issue == nil || req.Issue.ID == "":
		return nil, errors.New("reduce: an issue with an ID is required")
	case req.Caller == nil:
		return nil, errors.New("reduce: a SUT caller is required")
	case req.Options == nil:
		return nil, errors.New("reduce: options are required")
	}
	opts := req.Options
	l := req.Listener
	if l == nil {
		l = listener.Nop{}
	}

	plan, err := strategy.Resolve(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("reduce: %w", err)
	}

	filename := req.Issue.DisplayName()
	encoding := opts.Encoding
	if encoding == "" {
		encoding = textenc.Detect(req.Issue.Test)
		logger.Debug("Detected test encoding.", "encoding", encoding)
	}
	if encoding, err = textenc.Canonical(encoding); err != nil {
		return nil, fmt.Errorf("reduce: %w", err)
	}

	// The descriptor is a side file with its own encoding.
	desc := islands.Load(ctx, opts.Islands, "", l, req.Ident)

	replacements := opts.Replacements
	if replacements == nil {
		replacements = map[string]string{}
	}

	issues := issue.NewCollection(req.Issue.ID)
	tester, err := oracle.New(oracle.Config{
		Caller:   req.Caller,
		Args:     req.Args,
		Encoding: encoding,
		Expected: req.Issue.ID,
		Filename: filename,
		Listener: l,
		Ident:    req.Ident,
		Issues:   issues,
	})
	if err != nil {
		return nil, fmt.Errorf("reduce: %w", err)
	}

	workDir := req.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("reduce: creating work directory: %w", err)
	}
	out, err := os.MkdirTemp(workDir, "reduce-")
	if err != nil {
		return nil, fmt.Errorf("reduce: creating output directory: %w", err)
	}

	call := &hdd.Call{
		Input:                 filepath.Base(filename),
		Src:                   req.Issue.Test,
		Encoding:              encoding,
		Out:                   out,
		WorkDir:               workDir,
		Kind:                  plan.Kind,
		Reduce:                plan.Reduce,
		Tester:                tester,
		Cache:                 plan.Cache,
		HDDMin:                plan.HDDMin,
		Grammar:               opts.Grammar,
		StartRule:             opts.StartRule,
		Replacements:          replacements,
		Islands:               desc,
		Lang:                  opts.Lang,
		ANTLR:                 opts.ANTLR,
		HDDStar:               opts.HDDStar,
		SqueezeTree:           opts.SqueezeTree,
		SkipUnremovableTokens: opts.SkipUnremovableTokens,
		Cleanup:               opts.Cleanup,
	}
	logger.Debug("Reduction assembled.",
		"kind", plan.Kind.String(), "jobs", plan.Jobs, "cache", plan.CacheName,
		"hddmin", plan.HDDMin.String(), "encoding", encoding, "filename", filename, "islands", desc != nil)
	return &job{call: call, issues: issues, cleanup: opts.Cleanup}, nil
}
