package listener

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/vk/hddreduce/internal/ctxlog"
	"github.com/vk/hddreduce/internal/issue"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// Event names emitted to the dashboard.
const (
	EventWarning  = "warning"
	EventNewIssue = "new_reduce_issue"
)

// SocketIOOptions configures the dashboard connection.
type SocketIOOptions struct {
	URL                string
	Namespace          string
	InsecureSkipVerify bool
	// ConnectTimeout defaults to 15s.
	ConnectTimeout time.Duration
}

// SocketIO emits notifications as socket.io events.
type SocketIO struct {
	io *socket.Socket
}

// DialSocketIO connects to a socket.io server and waits for the connection
// to be established.
func DialSocketIO(ctx context.Context, o SocketIOOptions) (*SocketIO, error) {
	logger := ctxlog.FromContext(ctx).With("listener", "socketio", "url", o.URL)

	parsedURL, err := url.Parse(o.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse listener URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("listener URL %q must be absolute", o.URL)
	}
	timeout := o.ConnectTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	if o.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	connectChan := make(chan error, 1)

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(o.Namespace, opts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Listener connected.", "sid", io.Id())
		select {
		case connectChan <- nil:
		default:
		}
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := fmt.Errorf("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		select {
		case connectChan <- err:
		default:
		}
	})

	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return &SocketIO{io: io}, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(timeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", timeout)
	}
}

// Warning emits a warning event.
func (s *SocketIO) Warning(ident string, msg string) {
	s.io.Emit(EventWarning, warningPayload(ident, msg))
}

// NewIssue emits a new_reduce_issue event.
func (s *SocketIO) NewIssue(ident string, iss *issue.Issue) {
	s.io.Emit(EventNewIssue, issuePayload(ident, iss))
}

// Close disconnects from the server.
func (s *SocketIO) Close() error {
	s.io.Disconnect()
	return nil
}

func warningPayload(ident, msg string) map[string]any {
	return map[string]any{"ident": ident, "msg": msg}
}

func issuePayload(ident string, iss *issue.Issue) map[string]any {
	fields := make(map[string]any, len(iss.Fields))
	for k, v := range iss.Fields {
		fields[k] = v
	}
	return map[string]any{
		"ident": ident,
		"issue": map[string]any{
			"id":       iss.ID,
			"filename": iss.DisplayName(),
			"test":     string(iss.Test),
			"fields":   fields,
		},
	}
}
