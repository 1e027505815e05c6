// Package listener delivers reduction notifications (warnings and newly
// discovered issues) to whoever drives the reduction.
package listener

import (
	"context"
	"log/slog"

	"github.com/vk/hddreduce/internal/ctxlog"
	"github.com/vk/hddreduce/internal/issue"
)

// Listener receives notifications about one or more reduction jobs. ident
// identifies the job. Implementations must be safe for concurrent use.
type Listener interface {
	Warning(ident string, msg string)
	NewIssue(ident string, iss *issue.Issue)
}

// Nop discards every notification.
type Nop struct{}

// Warning does nothing.
func (Nop) Warning(string, string) {}

// NewIssue does nothing.
func (Nop) NewIssue(string, *issue.Issue) {}

// Log writes notifications to a structured logger.
type Log struct {
	logger *slog.Logger
}

// NewLog returns a listener logging through the logger carried by ctx.
func NewLog(ctx context.Context) *Log {
	return &Log{logger: ctxlog.FromContext(ctx).With("component", "listener")}
}

// Warning logs msg at warn level.
func (l *Log) Warning(ident string, msg string) {
	l.logger.Warn(msg, "job", ident)
}

// NewIssue logs the discovered issue at info level.
func (l *Log) NewIssue(ident string, iss *issue.Issue) {
	l.logger.Info("New issue discovered during reduction.", "job", ident, "issue_id", iss.ID, "size", len(iss.Test))
}

// Multi fans every notification out to several listeners in order.
type Multi []Listener

// Warning forwards to every listener.
func (m Multi) Warning(ident string, msg string) {
	for _, l := range m {
		l.Warning(ident, msg)
	}
}

// NewIssue forwards to every listener.
func (m Multi) NewIssue(ident string, iss *issue.Issue) {
	for _, l := range m {
		l.NewIssue(ident, iss)
	}
}
