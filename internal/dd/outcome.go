package dd

import "context"

// Outcome is the verdict of a Tester on one candidate.
type Outcome int

const (
	// Pass means the candidate does not reproduce the failure being reduced.
	Pass Outcome = iota
	// Fail means the candidate reproduces the failure; reduction continues from it.
	Fail
)

// String returns the upper-case name of the outcome.
func (o Outcome) String() string {
	switch o {
	case Pass:
		return "PASS"
	case Fail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// Tester classifies a candidate content. id names the candidate for logs and
// intermediate artifacts. Implementations used by the parallel kinds must be
// safe for concurrent use.
type Tester interface {
	Test(ctx context.Context, content []byte, id string) (Outcome, error)
}

// TesterFunc adapts a function to the Tester interface.
type TesterFunc func(ctx context.Context, content []byte, id string) (Outcome, error)

// Test calls f.
func (f TesterFunc) Test(ctx context.Context, content []byte, id string) (Outcome, error) {
	return f(ctx, content, id)
}

// Builder renders the content a configuration stands for. It must not
// mutate shared state.
type Builder func(config []int) []byte
