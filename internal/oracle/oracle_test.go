package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/hddreduce/internal/dd"
	"github.com/vk/hddreduce/internal/issue"
	"github.com/vk/hddreduce/internal/listener"
	"github.com/vk/hddreduce/internal/sut"
)

// keywordCaller reports an issue named after the first keyword found in the test.
func keywordCaller(keywords ...string) sut.CallerFunc {
	return func(_ context.Context, test []byte, _ sut.Args) (*issue.Issue, error) {
		for _, k := range keywords {
			if strings.Contains(string(test), k) {
				return &issue.Issue{ID: k, Test: test}, nil
			}
		}
		return nil, nil
	}
}

func newOracle(t *testing.T, caller sut.Caller, rec listener.Listener) *Oracle {
	t.Helper()
	o, err := New(Config{
		Caller:   caller,
		Args:     sut.Args{"command": "x"},
		Encoding: "utf-8",
		Expected: "crash",
		Filename: "case.js",
		Listener: rec,
		Ident:    "job-1",
	})
	require.NoError(t, err)
	return o
}

func TestOracle_Outcomes(t *testing.T) {
	rec := &listener.Recorder{}
	o := newOracle(t, keywordCaller("crash", "hang"), rec)
	ctx := context.Background()

	outcome, err := o.Test(ctx, []byte("nothing"), "c1")
	require.NoError(t, err)
	assert.Equal(t, dd.Pass, outcome)

	outcome, err = o.Test(ctx, []byte("crash here"), "c2")
	require.NoError(t, err)
	assert.Equal(t, dd.Fail, outcome)
	assert.Zero(t, o.Issues().Len(), "the expected issue is never collected")

	outcome, err = o.Test(ctx, []byte("hang here"), "c3")
	require.NoError(t, err)
	assert.Equal(t, dd.Pass, outcome)

	outcome, err = o.Test(ctx, []byte("another hang"), "c4")
	require.NoError(t, err)
	assert.Equal(t, dd.Pass, outcome)

	issues := o.Issues().List()
	require.Len(t, issues, 1)
	assert.Equal(t, "hang", issues[0].ID)
	assert.Equal(t, []byte("hang here"), issues[0].Test, "the first occurrence is kept")
	assert.Equal(t, "case.js", issues[0].Filename)

	notified := rec.Issues()
	require.Len(t, notified, 1, "only the first occurrence is announced")
	assert.Equal(t, "hang", notified[0].ID)
	assert.Equal(t, "job-1", rec.Events()[0].Ident)
}

func TestOracle_PassesArgsAndEncodes(t *testing.T) {
	var gotTest []byte
	var gotArgs sut.Args
	caller := sut.CallerFunc(func(_ context.Context, test []byte, args sut.Args) (*issue.Issue, error) {
		gotTest, gotArgs = test, args
		return nil, nil
	})
	o, err := New(Config{Caller: caller, Args: sut.Args{"k": "v"}, Encoding: "latin1", Expected: "x"})
	require.NoError(t, err)

	_, err = o.Test(context.Background(), []byte("é"), "c")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xE9}, gotTest)
	assert.Equal(t, sut.Args{"k": "v"}, gotArgs)
}

func TestOracle_CallerError(t *testing.T) {
	boom := errors.New("cannot spawn")
	o := newOracle(t, sut.CallerFunc(func(context.Context, []byte, sut.Args) (*issue.Issue, error) {
		return nil, boom
	}), &listener.Recorder{})

	_, err := o.Test(context.Background(), []byte("x"), "c9")
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "c9")
}

func TestOracle_EncodingError(t *testing.T) {
	o, err := New(Config{Caller: keywordCaller(), Encoding: "latin1", Expected: "x"})
	require.NoError(t, err)
	_, err = o.Test(context.Background(), []byte("中"), "c")
	assert.Error(t, err)
}

func TestOracle_ConcurrentDiscovery(t *testing.T) {
	rec := &listener.Recorder{}
	caller := sut.CallerFunc(func(_ context.Context, test []byte, _ sut.Args) (*issue.Issue, error) {
		return &issue.Issue{ID: string(test)}, nil
	})
	o := newOracle(t, caller, rec)

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := o.Test(context.Background(), []byte(fmt.Sprintf("issue-%d", i%8)), fmt.Sprintf("c%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 8, o.Issues().Len())
	assert.Len(t, rec.Issues(), 8)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Expected: "x"})
	assert.Error(t, err)

	_, err = New(Config{Caller: keywordCaller()})
	assert.Error(t, err)

	_, err = New(Config{Caller: keywordCaller(), Expected: "x", Encoding: "klingon"})
	assert.Error(t, err)

	o, err := New(Config{Caller: keywordCaller(), Expected: "x"})
	require.NoError(t, err)
	assert.Equal(t, "x", o.Issues().Expected())
}

var _ dd.Tester = (*Oracle)(nil)
