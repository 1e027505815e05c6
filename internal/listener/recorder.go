package listener

import (
	"sync"

	"github.com/vk/hddreduce/internal/issue"
)

// Notification is one call recorded by a Recorder.
type Notification struct {
	Ident   string
	Warning string
	Issue   *issue.Issue
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Notification
}

// Warning records a warning.
func (r *Recorder) Warning(ident string, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Notification{Ident: ident, Warning: msg})
}

// NewIssue records a discovered issue.
func (r *Recorder) NewIssue(ident string, iss *issue.Issue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Notification{Ident: ident, Issue: iss})
}

// Warnings returns the recorded warning messages.
func (r *Recorder) Warnings() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if e.Issue == nil {
			out = append(out, e.Warning)
		}
	}
	return out
}

// Issues returns the recorded issues.
func (r *Recorder) Issues() []*issue.Issue {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*issue.Issue
	for _, e := range r.events {
		if e.Issue != nil {
			out = append(out, e.Issue)
		}
	}
	return out
}

// Events returns every recorded notification in arrival order.
func (r *Recorder) Events() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.events...)
}
