package reduce

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/hddreduce/internal/config"
	"github.com/vk/hddreduce/internal/dd"
	"github.com/vk/hddreduce/internal/hdd"
	"github.com/vk/hddreduce/internal/issue"
	"github.com/vk/hddreduce/internal/listener"
	"github.com/vk/hddreduce/internal/registry"
	"github.com/vk/hddreduce/internal/sut"
	"github.com/vk/hddreduce/internal/textenc"
)

const linesGrammar = `
rule "file" {
  split = "\n"
  child = "line"
}

rule "line" {
  match = "\\w+"
  child = "word"
}

rule "word" {}
`

const original = "keep this line\nremove me\nalso keep\n"

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func sequentialOptions(t *testing.T, grammarSrc string) *config.Options {
	t.Helper()
	opts, err := config.FromStrings(context.Background(), map[string]string{
		config.OptGrammar:            `["` + writeFile(t, t.TempDir(), "g.hcl", grammarSrc) + `"]`,
		config.OptStartRule:          "file",
		config.OptParallel:           "False",
		config.OptSplitMethod:        "zeller",
		config.OptSubsetIterator:     "forward",
		config.OptComplementIterator: "forward",
		config.OptSubsetFirst:        "True",
	})
	require.NoError(t, err)
	return opts
}

// crashCaller reports "crash" for tests containing both "this" and "also",
// and "other" for tests mentioning "remove" without "this".
func crashCaller() sut.CallerFunc {
	return func(_ context.Context, test []byte, _ sut.Args) (*issue.Issue, error) {
		s := string(test)
		switch {
		case strings.Contains(s, "this") && strings.Contains(s, "also"):
			return &issue.Issue{ID: "crash", Test: test}, nil
		case strings.Contains(s, "remove") && !strings.Contains(s, "this"):
			return &issue.Issue{ID: "other", Test: test}, nil
		}
		return nil, nil
	}
}

func newRequest(t *testing.T, opts *config.Options, caller sut.Caller, l listener.Listener) *Request {
	t.Helper()
	return &Request{
		Issue:    &issue.Issue{ID: "crash", Test: []byte(original), Filename: "case.txt"},
		Caller:   caller,
		Args:     sut.Args{"command": "unused"},
		Options:  opts,
		Listener: l,
		Ident:    "job-1",
		WorkDir:  t.TempDir(),
	}
}

func TestReduce_UnchangedWhenNoCandidateFails(t *testing.T) {
	opts := sequentialOptions(t, `rule "file" {}`)
	caller := sut.CallerFunc(func(_ context.Context, test []byte, _ sut.Args) (*issue.Issue, error) {
		if string(test) == original {
			return &issue.Issue{ID: "crash"}, nil
		}
		return nil, nil
	})

	res, err := New(nil).Reduce(context.Background(), newRequest(t, opts, caller, nil))
	require.NoError(t, err)
	assert.Equal(t, Succeeded, res.State)
	assert.NoError(t, res.Err)
	assert.Equal(t, original, string(res.Reduced))
	assert.Empty(t, res.Issues)
}

func TestReduce_CollectsDifferentIssue(t *testing.T) {
	opts := sequentialOptions(t, linesGrammar)
	rec := &listener.Recorder{}

	res, err := New(nil).Reduce(context.Background(), newRequest(t, opts, crashCaller(), rec))
	require.NoError(t, err)
	assert.Equal(t, Succeeded, res.State)
	assert.Equal(t, " this \n\nalso \n", string(res.Reduced))

	require.Len(t, res.Issues, 1)
	assert.Equal(t, "other", res.Issues[0].ID)
	assert.Equal(t, "case.txt", res.Issues[0].Filename)
	require.Len(t, rec.Issues(), 1)
	assert.Equal(t, "other", rec.Issues()[0].ID)
}

func TestReduce_Parallel(t *testing.T) {
	for _, combine := range []string{"False", "True"} {
		t.Run("combine_loops="+combine, func(t *testing.T) {
			opts, err := config.FromStrings(context.Background(), map[string]string{
				config.OptGrammar:      `["` + writeFile(t, t.TempDir(), "g.hcl", linesGrammar) + `"]`,
				config.OptStartRule:    "file",
				config.OptParallel:     "True",
				config.OptCombineLoops: combine,
				config.OptJobs:         "4",
			})
			require.NoError(t, err)

			res, err := New(nil).Reduce(context.Background(), newRequest(t, opts, crashCaller(), nil))
			require.NoError(t, err)
			assert.Equal(t, " this \n\nalso \n", string(res.Reduced))
			require.Len(t, res.Issues, 1)
			assert.Equal(t, "other", res.Issues[0].ID)
		})
	}
}

func TestReduce_InvalidIslandsStillCompletes(t *testing.T) {
	opts := sequentialOptions(t, linesGrammar)
	opts.Islands = writeFile(t, t.TempDir(), "islands.json", `{"islands": [`)
	rec := &listener.Recorder{}

	res, err := New(nil).Reduce(context.Background(), newRequest(t, opts, crashCaller(), rec))
	require.NoError(t, err)
	assert.Equal(t, Succeeded, res.State)
	assert.Equal(t, " this \n\nalso \n", string(res.Reduced))
	assert.Len(t, rec.Warnings(), 1)
}

func TestReduce_IslandsDecodedIndependentlyOfTest(t *testing.T) {
	opts := sequentialOptions(t, linesGrammar)
	opts.Encoding = "utf-16le"
	opts.Islands = writeFile(t, t.TempDir(), "islands.json",
		`{"islands":[{"rule":"line","grammar":["g.hcl"],"start_rule":"éq"}]}`)
	rec := &listener.Recorder{}
	engine := &scriptedEngine{err: errors.New("stop")}

	req := newRequest(t, opts, crashCaller(), rec)
	src, err := textenc.Encode([]byte(original), "utf-16le")
	require.NoError(t, err)
	req.Issue.Test = src

	_, err = New(engine).Reduce(context.Background(), req)
	require.NoError(t, err)

	require.NotNil(t, engine.seen)
	assert.Equal(t, "utf-16le", engine.seen.Encoding)
	require.NotNil(t, engine.seen.Islands)
	assert.Equal(t, "éq", engine.seen.Islands.Islands[0].StartRule)
	assert.Empty(t, rec.Warnings())
}

// scriptedEngine tests a fixed list of candidates and then fails.
type scriptedEngine struct {
	candidates []string
	err        error
	panicValue any
	seen       *hdd.Call
}

func (e *scriptedEngine) Reduce(ctx context.Context, call *hdd.Call) (string, error) {
	e.seen = call
	for i, c := range e.candidates {
		if _, err := call.Tester.Test(ctx, []byte(c), "c"+string(rune('0'+i))); err != nil {
			return "", err
		}
	}
	if e.panicValue != nil {
		panic(e.panicValue)
	}
	return "", e.err
}

func TestReduce_EngineFailureKeepsIssues(t *testing.T) {
	caller := sut.CallerFunc(func(_ context.Context, test []byte, _ sut.Args) (*issue.Issue, error) {
		return &issue.Issue{ID: string(test)}, nil
	})

	testCases := []struct {
		name    string
		engine  *scriptedEngine
		wantMsg string
	}{
		{
			name:    "error",
			engine:  &scriptedEngine{candidates: []string{"a", "crash", "b", "a"}, err: errors.New("antlr exploded")},
			wantMsg: "antlr exploded",
		},
		{
			name:    "panic",
			engine:  &scriptedEngine{candidates: []string{"a", "b", "b"}, panicValue: "index out of range"},
			wantMsg: "engine panicked: index out of range",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			opts := sequentialOptions(t, linesGrammar)
			res, err := New(tc.engine).Reduce(context.Background(), newRequest(t, opts, caller, nil))
			require.NoError(t, err)

			assert.Equal(t, Failed, res.State)
			assert.Nil(t, res.Reduced)
			require.Error(t, res.Err)
			assert.Contains(t, res.Err.Error(), tc.wantMsg)

			var ids []string
			for _, iss := range res.Issues {
				ids = append(ids, iss.ID)
			}
			assert.Equal(t, []string{"a", "b"}, ids)
		})
	}
}

func TestReduce_AssemblesCall(t *testing.T) {
	opts := sequentialOptions(t, linesGrammar)
	opts.Replacements = nil
	opts.Encoding = ""
	opts.Lang = "java"
	opts.HDDStar = false
	engine := &scriptedEngine{err: errors.New("stop")}

	req := newRequest(t, opts, crashCaller(), nil)
	req.Issue.Filename = ""
	_, err := New(engine).Reduce(context.Background(), req)
	require.NoError(t, err)

	call := engine.seen
	require.NotNil(t, call)
	assert.Equal(t, issue.DefaultFilename, call.Input)
	assert.Equal(t, "utf-8", call.Encoding)
	assert.Equal(t, map[string]string{}, call.Replacements)
	assert.Equal(t, dd.LightDD, call.Kind)
	assert.Equal(t, hdd.Full, call.HDDMin)
	assert.Equal(t, "file", call.StartRule)
	assert.Equal(t, "java", call.Lang)
	assert.Equal(t, config.DefaultANTLR, call.ANTLR)
	assert.False(t, call.HDDStar)
	assert.True(t, call.SqueezeTree)
	assert.True(t, call.SkipUnremovableTokens)
	assert.Nil(t, call.Islands)
	assert.Equal(t, []byte(original), call.Src)
}

func TestReduce_CleansOutputDirectory(t *testing.T) {
	opts := sequentialOptions(t, linesGrammar)
	req := newRequest(t, opts, crashCaller(), nil)

	_, err := New(nil).Reduce(context.Background(), req)
	require.NoError(t, err)

	entries, err := os.ReadDir(req.WorkDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReduce_InvalidRequests(t *testing.T) {
	opts := sequentialOptions(t, linesGrammar)
	ctx := context.Background()

	t.Run("unknown strategy", func(t *testing.T) {
		bad := *opts
		bad.SplitMethod = "thirds"
		res, err := New(nil).Reduce(ctx, newRequest(t, &bad, crashCaller(), nil))
		assert.Nil(t, res)
		assert.ErrorIs(t, err, registry.ErrUnknownName)
	})

	t.Run("unknown encoding", func(t *testing.T) {
		bad := *opts
		bad.Encoding = "ebcdic-xyz"
		_, err := New(nil).Reduce(ctx, newRequest(t, &bad, crashCaller(), nil))
		assert.Error(t, err)
	})

	t.Run("missing issue", func(t *testing.T) {
		req := newRequest(t, opts, crashCaller(), nil)
		req.Issue = nil
		_, err := New(nil).Reduce(ctx, req)
		assert.Error(t, err)
	})

	t.Run("missing caller", func(t *testing.T) {
		req := newRequest(t, opts, nil, nil)
		req.Caller = nil
		_, err := New(nil).Reduce(ctx, req)
		assert.Error(t, err)
	})
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "assemble", Assemble.String())
	assert.Equal(t, "run", Run.String())
	assert.Equal(t, "succeeded", Succeeded.String())
	assert.Equal(t, "failed", Failed.String())
}
