// Package sut defines how the reducer runs the system under test and turns
// its behaviour into an issue.
package sut

import (
	"context"

	"github.com/vk/hddreduce/internal/issue"
)

// Args are the fixed keyword arguments of a call, taken from a sut block.
type Args map[string]string

// Caller runs the system under test on one test artifact. A nil issue means
// the test did not fail. An error means the invocation itself broke and the
// outcome is unknown. Implementations must be safe for concurrent use.
type Caller interface {
	Call(ctx context.Context, test []byte, args Args) (*issue.Issue, error)
}

// CallerFunc adapts a function to the Caller interface.
type CallerFunc func(ctx context.Context, test []byte, args Args) (*issue.Issue, error)

// Call calls f.
func (f CallerFunc) Call(ctx context.Context, test []byte, args Args) (*issue.Issue, error) {
	return f(ctx, test, args)
}
