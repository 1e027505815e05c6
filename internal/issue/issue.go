// Package issue defines the failure record exchanged between the fuzzer, the
// system-under-test contract and the reducer, together with the
// concurrency-safe collection that accumulates failures discovered while a
// reduction is running.
package issue

import "sync"

// DefaultFilename is used when an Issue carries no display filename.
const DefaultFilename = "test"

// Issue is a failure record identified by a stable identity key.
type Issue struct {
	// ID is the failure identity. Two issues with the same ID are the same failure.
	ID string
	// Test is the artifact that triggered the failure.
	Test []byte
	// Filename is an optional display name for Test.
	Filename string
	// Fields holds whatever extra details the invocation contract attached
	// (exit code, captured output, ...).
	Fields map[string]string
}

// DisplayName returns the filename of the issue or DefaultFilename.
func (i *Issue) DisplayName() string {
	if i.Filename == "" {
		return DefaultFilename
	}
	return i.Filename
}

// Collection is a set of issues keyed by ID that never admits the expected
// identity it was created with. It is safe for concurrent use.
type Collection struct {
	expected string

	mu    sync.Mutex
	byID  map[string]*Issue
	order []string
}

// NewCollection creates an empty collection excluding the expected ID.
func NewCollection(expected string) *Collection {
	return &Collection{
		expected: expected,
		byID:     make(map[string]*Issue),
	}
}

// Expected returns the identity excluded from the collection.
func (c *Collection) Expected() string {
	return c.expected
}

// Add records iss unless its ID is the expected one or already present. It
// reports whether the issue was newly recorded.
func (c *Collection) Add(iss *Issue) bool {
	if iss == nil || iss.ID == c.expected {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byID[iss.ID]; ok {
		return false
	}
	c.byID[iss.ID] = iss
	c.order = append(c.order, iss.ID)
	return true
}

// Get returns the issue recorded under id.
func (c *Collection) Get(id string) (*Issue, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	iss, ok := c.byID[id]
	return iss, ok
}

// Len returns the number of recorded issues.
func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// List returns a snapshot of the recorded issues in first-seen order.
func (c *Collection) List() []*Issue {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Issue, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}
