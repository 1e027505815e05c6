package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/vk/hddreduce/internal/config"
	"github.com/vk/hddreduce/internal/ctxlog"
	"github.com/vk/hddreduce/internal/reduce"
	"github.com/vk/hddreduce/internal/sut"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW    io.Writer
	logger  *slog.Logger
	config  *Config
	opts    *config.Options
	args    sut.Args
	job     string
	caller  sut.Caller
	reducer *reduce.Reducer
}

// Option customises an App.
type Option func(*App)

// WithCaller replaces the subprocess SUT caller.
func WithCaller(c sut.Caller) Option {
	return func(a *App) { a.caller = c }
}

// WithEngine replaces the built-in reduction engine.
func WithEngine(e reduce.Engine) Option {
	return func(a *App) { a.reducer = reduce.New(e) }
}

// NewApp is the constructor for the main application. It loads the job file
// and panics when it cannot be used, since nothing can run without it.
func NewApp(outW io.Writer, cfg *Config, options ...Option) *App {
	logger := newLogger(cfg, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	file, err := config.LoadFile(ctx, cfg.ConfigPath)
	if err != nil {
		panic(fmt.Errorf("failed to load configuration: %w", err))
	}

	job, err := pick("reduce", cfg.Job, keys(file.Reducers))
	if err != nil {
		panic(err)
	}
	sutName, err := pick("sut", cfg.SUT, keys(file.SUTs))
	if err != nil {
		panic(err)
	}
	// Every record of the run names the system under test.
	logger = logger.With("sut", sutName)
	logger.Debug("Configuration loaded.", "job", job)

	a := &App{
		outW:    outW,
		logger:  logger,
		config:  cfg,
		opts:    file.Reducers[job],
		args:    sut.Args(file.SUTs[sutName]),
		job:     job,
		caller:  sut.Subprocess{},
		reducer: reduce.New(nil),
	}
	for _, o := range options {
		o(a)
	}
	return a
}

// pick resolves the block to use: the requested one, or the only one.
func pick(kind, want string, have []string) (string, error) {
	if want != "" {
		for _, h := range have {
			if h == want {
				return want, nil
			}
		}
		return "", fmt.Errorf("%s block %q not found (available: %v)", kind, want, have)
	}
	if len(have) != 1 {
		return "", fmt.Errorf("expected exactly one %s block or an explicit name, found %d", kind, len(have))
	}
	return have[0], nil
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Options returns the reduction options of the selected job. This is
// primarily for testing.
func (a *App) Options() *config.Options {
	return a.opts
}
