// Package events streams run lifecycle events to a socket.io endpoint so that
// dashboards can follow an execution live.
package events

import (
	"context"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/vk/wavegrid/internal/ctxlog"
	"github.com/vk/wavegrid/internal/executor"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// Event names emitted by the publisher.
const (
	RunStartedEvent  = "run_started"
	RunFinishedEvent = "run_finished"
)

// Payload is the body of every emitted event.
type Payload struct {
	ExecutionID string            `json:"execution_id"`
	Workflow    string            `json:"workflow"`
	Wave        int               `json:"wave"`
	Run         string            `json:"run"`
	Job         string            `json:"job"`
	Matrix      map[string]string `json:"matrix,omitempty"`
	Status      string            `json:"status"`
	Required    bool              `json:"required"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	FinishedAt  *time.Time        `json:"finished_at,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// Emitter sends one named event.
type Emitter interface {
	Emit(event string, payload Payload)
}

// Publisher is an executor.Observer that forwards every run transition to an
// Emitter.
type Publisher struct {
	emitter Emitter
	emitted atomic.Int64
	close   func()
}

var _ executor.Observer = (*Publisher)(nil)

// NewPublisher wraps an arbitrary Emitter.
func NewPublisher(e Emitter) *Publisher {
	return &Publisher{emitter: e, close: func() {}}
}

// RunStarted implements executor.Observer.
func (p *Publisher) RunStarted(ctx context.Context, ev executor.Event) {
	p.publish(ctx, RunStartedEvent, ev)
}

// RunFinished implements executor.Observer.
func (p *Publisher) RunFinished(ctx context.Context, ev executor.Event) {
	p.publish(ctx, RunFinishedEvent, ev)
}

// Emitted returns the number of events sent so far.
func (p *Publisher) Emitted() int64 {
	return p.emitted.Load()
}

// Close disconnects the underlying socket, if any.
func (p *Publisher) Close() {
	p.close()
}

func (p *Publisher) publish(ctx context.Context, name string, ev executor.Event) {
	payload := NewPayload(ev)
	ctxlog.FromContext(ctx).Debug("Emitting event.", "event", name, "run", payload.Run, "status", payload.Status)
	p.emitter.Emit(name, payload)
	p.emitted.Add(1)
}

// NewPayload converts an executor event into its wire representation.
func NewPayload(ev executor.Event) Payload {
	return Payload{
		ExecutionID: ev.ExecutionID,
		Workflow:    ev.Workflow,
		Wave:        ev.Wave,
		Run:         ev.Run.ID,
		Job:         ev.Run.Job,
		Matrix:      ev.Run.Matrix,
		Status:      ev.Run.Status.String(),
		Required:    ev.Required,
		StartedAt:   ev.Run.StartedAt,
		FinishedAt:  ev.Run.FinishedAt,
		Error:       ev.Run.Error,
	}
}

// socketEmitter adapts a socket.io client socket to Emitter.
type socketEmitter struct {
	io *socket.Socket
}

func (s *socketEmitter) Emit(event string, payload Payload) {
	s.io.Emit(event, payload)
}

// Options configures Dial.
type Options struct {
	// Namespace is the socket.io namespace. Defaults to "/".
	Namespace string
	// Timeout bounds the initial connection. Defaults to 10s.
	Timeout time.Duration
}

// Dial connects to the socket.io server at rawURL and returns a Publisher
// emitting on that connection. The URL path, when present, replaces the
// default "/socket.io/" handshake path.
func Dial(ctx context.Context, rawURL string, o Options) (*Publisher, error) {
	if o.Namespace == "" {
		o.Namespace = "/"
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	logger := ctxlog.FromContext(ctx).With("url", rawURL, "namespace", o.Namespace)

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse events URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("events URL %q must be absolute", rawURL)
	}

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	opts := socket.DefaultOptions()
	if parsedURL.Path != "" && parsedURL.Path != "/" {
		opts.SetPath(parsedURL.Path)
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(o.Namespace, opts)

	connected := make(chan error, 1)
	io.On(types.EventName("connect"), func(...any) {
		logger.Info("Connected to events endpoint.", "sid", io.Id())
		select {
		case connected <- nil:
		default:
		}
	})
	io.On(types.EventName("connect_error"), func(errs ...any) {
		err := fmt.Errorf("connection refused")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		select {
		case connected <- err:
		default:
		}
	})

	io.Connect()

	timer := time.NewTimer(o.Timeout)
	defer timer.Stop()

	select {
	case err := <-connected:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("failed to connect to events endpoint: %w", err)
		}
	case <-timer.C:
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s while waiting for events connection", o.Timeout)
	case <-ctx.Done():
		io.Disconnect()
		return nil, ctx.Err()
	}

	p := NewPublisher(&socketEmitter{io: io})
	p.close = func() {
		logger.Debug("Disconnecting events client.")
		io.Disconnect()
	}
	return p, nil
}
