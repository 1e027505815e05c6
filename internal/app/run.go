package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/vk/hddreduce/internal/ctxlog"
	"github.com/vk/hddreduce/internal/issue"
	"github.com/vk/hddreduce/internal/listener"
	"github.com/vk/hddreduce/internal/reduce"
)

// ErrNotFailing is returned when the SUT does not fail on the original test.
var ErrNotFailing = errors.New("the system under test does not fail on the given test")

// Run reduces the configured test, writes the result and every newly
// discovered issue, and returns an error when the reduction failed.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	test, err := os.ReadFile(a.config.TestPath)
	if err != nil {
		return fmt.Errorf("failed to read test: %w", err)
	}
	original := &issue.Issue{ID: a.config.IssueID, Test: test, Filename: filepath.Base(a.config.TestPath)}

	if original.ID == "" {
		a.logger.Info("No issue ID given, running the SUT once to find it.")
		iss, err := a.caller.Call(ctx, test, a.args)
		if err != nil {
			return fmt.Errorf("failed to run the SUT on the original test: %w", err)
		}
		if iss == nil {
			return ErrNotFailing
		}
		original.ID = iss.ID
		a.logger.Info("Issue identified.", "issue_id", original.ID)
	}

	notify, closeListener, err := a.listener(ctx)
	if err != nil {
		return err
	}
	defer closeListener()

	a.logger.Info("🚀 Starting reduction...", "job", a.job, "issue_id", original.ID, "size", len(test))
	res, err := a.reducer.Reduce(ctx, &reduce.Request{
		Issue:    original,
		Caller:   a.caller,
		Args:     a.args,
		Options:  a.opts,
		Listener: notify,
		Ident:    a.job,
		WorkDir:  a.config.WorkDir,
	})
	if err != nil {
		return fmt.Errorf("invalid reduction job: %w", err)
	}

	if err := a.writeIssues(res.Issues); err != nil {
		return err
	}
	if res.State != reduce.Succeeded {
		return fmt.Errorf("reduction failed: %w", res.Err)
	}

	if err := os.WriteFile(a.config.OutPath, res.Reduced, 0o644); err != nil {
		return fmt.Errorf("failed to write reduced test: %w", err)
	}
	a.logger.Info("🏁 Reduction finished.", "from", len(test), "to", len(res.Reduced), "out", a.config.OutPath, "new_issues", len(res.Issues))
	return nil
}

// listener returns the notification channel of the run and a function that
// releases it.
func (a *App) listener(ctx context.Context) (listener.Listener, func(), error) {
	log := listener.NewLog(ctx)
	if a.config.ListenerURL == "" {
		return log, func() {}, nil
	}
	sio, err := listener.DialSocketIO(ctx, listener.SocketIOOptions{URL: a.config.ListenerURL})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect listener: %w", err)
	}
	return listener.Multi{log, sio}, func() { _ = sio.Close() }, nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// writeIssues stores every discovered issue as <workdir>/issues/<id>/<filename>.
func (a *App) writeIssues(issues []*issue.Issue) error {
	for _, iss := range issues {
		dir := filepath.Join(a.config.WorkDir, "issues", unsafeChars.ReplaceAllString(iss.ID, "_"))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create issue directory: %w", err)
		}
		path := filepath.Join(dir, filepath.Base(iss.DisplayName()))
		if err := os.WriteFile(path, iss.Test, 0o644); err != nil {
			return fmt.Errorf("failed to write issue %s: %w", iss.ID, err)
		}
		a.logger.Info("New issue saved.", "issue_id", iss.ID, "path", path)
	}
	return nil
}
