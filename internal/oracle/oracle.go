// Package oracle adapts the system-under-test contract to the pass/fail
// tester the reduction engine calls for every candidate.
package oracle

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/hddreduce/internal/ctxlog"
	"github.com/vk/hddreduce/internal/dd"
	"github.com/vk/hddreduce/internal/issue"
	"github.com/vk/hddreduce/internal/listener"
	"github.com/vk/hddreduce/internal/sut"
	"github.com/vk/hddreduce/internal/textenc"
)

// Config wires an Oracle.
type Config struct {
	Caller sut.Caller
	Args   sut.Args
	// Encoding is used to turn candidates back into test bytes.
	Encoding string
	// Expected is the ID of the issue being reduced.
	Expected string
	// Filename is attached to discovered issues that carry none.
	Filename string
	Listener listener.Listener
	Ident    string
	// Issues collects every other issue met along the way.
	Issues *issue.Collection
}

// Oracle decides whether a candidate still reproduces the expected issue. It
// is safe for concurrent use as long as the Caller and Listener are.
type Oracle struct {
	cfg Config
}

// New validates cfg and returns an Oracle.
func New(cfg Config) (*Oracle, error) {
	if cfg.Caller == nil {
		return nil, errors.New("oracle: caller is required")
	}
	if cfg.Expected == "" {
		return nil, errors.New("oracle: expected issue ID is required")
	}
	if cfg.Issues == nil {
		cfg.Issues = issue.NewCollection(cfg.Expected)
	}
	if cfg.Listener == nil {
		cfg.Listener = listener.Nop{}
	}
	if cfg.Encoding != "" {
		if _, err := textenc.Lookup(cfg.Encoding); err != nil {
			return nil, fmt.Errorf("oracle: %w", err)
		}
	}
	return &Oracle{cfg: cfg}, nil
}

// Issues returns the collection of discovered issues.
func (o *Oracle) Issues() *issue.Collection {
	return o.cfg.Issues
}

// Test runs the system under test on content. The expected issue means Fail;
// no issue or any other issue means Pass, and other issues are recorded.
func (o *Oracle) Test(ctx context.Context, content []byte, id string) (dd.Outcome, error) {
	logger := ctxlog.FromContext(ctx).With("candidate", id)

	test, err := textenc.Encode(content, o.cfg.Encoding)
	if err != nil {
		return dd.Pass, fmt.Errorf("encoding candidate %s: %w", id, err)
	}

	iss, err := o.cfg.Caller.Call(ctx, test, o.cfg.Args)
	if err != nil {
		return dd.Pass, fmt.Errorf("calling SUT on candidate %s: %w", id, err)
	}
	if iss == nil {
		logger.Debug("Candidate passed.")
		return dd.Pass, nil
	}
	if iss.ID == o.cfg.Expected {
		logger.Debug("Candidate reproduces the expected issue.")
		return dd.Fail, nil
	}

	if iss.Filename == "" {
		iss.Filename = o.cfg.Filename
	}
	if o.cfg.Issues.Add(iss) {
		logger.Info("Candidate triggered a different issue.", "issue_id", iss.ID)
		o.cfg.Listener.NewIssue(o.cfg.Ident, iss)
	}
	return dd.Pass, nil
}
