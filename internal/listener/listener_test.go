package listener

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/hddreduce/internal/ctxlog"
	"github.com/vk/hddreduce/internal/issue"
)

var (
	_ Listener = Nop{}
	_ Listener = (*Log)(nil)
	_ Listener = Multi(nil)
	_ Listener = (*Recorder)(nil)
	_ Listener = (*SocketIO)(nil)
)

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	l := NewLog(ctxlog.WithLogger(context.Background(), logger))

	l.Warning("job-1", "Invalid islands descriptor.")
	l.NewIssue("job-1", &issue.Issue{ID: "crash-42", Test: []byte("abc")})

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, `msg="Invalid islands descriptor."`)
	assert.Contains(t, out, "job=job-1")
	assert.Contains(t, out, "issue_id=crash-42")
	assert.Contains(t, out, "size=3")
}

func TestMulti(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	m := Multi{a, Nop{}, b}

	iss := &issue.Issue{ID: "x"}
	m.Warning("j", "careful")
	m.NewIssue("j", iss)

	want := []Notification{
		{Ident: "j", Warning: "careful"},
		{Ident: "j", Issue: iss},
	}
	for _, r := range []*Recorder{a, b} {
		if diff := cmp.Diff(want, r.Events()); diff != "" {
			t.Errorf("recorded events mismatch (-want +got):\n%s", diff)
		}
		assert.Equal(t, []string{"careful"}, r.Warnings())
		assert.Equal(t, []*issue.Issue{iss}, r.Issues())
	}
}

func TestSocketIOPayloads(t *testing.T) {
	assert.Equal(t, map[string]any{"ident": "j", "msg": "m"}, warningPayload("j", "m"))

	got := issuePayload("j", &issue.Issue{ID: "id-1", Test: []byte("t"), Fields: map[string]string{"exit_code": "1"}})
	want := map[string]any{
		"ident": "j",
		"issue": map[string]any{
			"id":       "id-1",
			"filename": issue.DefaultFilename,
			"test":     "t",
			"fields":   map[string]any{"exit_code": "1"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestDialSocketIO_RejectsBadURL(t *testing.T) {
	_, err := DialSocketIO(context.Background(), SocketIOOptions{URL: "dashboard"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be absolute")

	_, err = DialSocketIO(context.Background(), SocketIOOptions{URL: "http://[::1"})
	require.Error(t, err)
}
