package events

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/wavegrid/internal/executor"
	"github.com/vk/wavegrid/internal/plan"
)

type emitted struct {
	name    string
	payload Payload
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []emitted
}

func (r *recordingEmitter) Emit(name string, payload Payload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, emitted{name: name, payload: payload})
}

func (r *recordingEmitter) byRun() map[string][]emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string][]emitted)
	for _, e := range r.events {
		out[e.payload.Run] = append(out[e.payload.Run], e)
	}
	return out
}

func TestPublisher_EmitsLifecycle(t *testing.T) {
	p, err := plan.Build("ci", []*plan.JobSpec{
		plan.NewJobSpec("lint"),
		plan.NewJobSpec("test", "lint").WithAxis("os", "linux"),
	})
	require.NoError(t, err)

	rec := &recordingEmitter{}
	pub := NewPublisher(rec)
	defer pub.Close()

	res := executor.New(executor.Options{Observers: []executor.Observer{pub}}).Run(context.Background(), p,
		func(_ context.Context, run *plan.JobRun) error {
			if run.JobID() == "lint" {
				return errors.New("lint failed")
			}
			return nil
		})
	require.False(t, res.Succeeded)

	got := rec.byRun()

	lint := got["lint"]
	require.Len(t, lint, 2)
	assert.Equal(t, RunStartedEvent, lint[0].name)
	assert.Equal(t, "running", lint[0].payload.Status)
	assert.Equal(t, RunFinishedEvent, lint[1].name)
	assert.Equal(t, "failed", lint[1].payload.Status)
	assert.Contains(t, lint[1].payload.Error, "lint failed")
	assert.Equal(t, res.ExecutionID, lint[1].payload.ExecutionID)
	assert.Equal(t, "ci", lint[1].payload.Workflow)
	assert.NotNil(t, lint[1].payload.FinishedAt)

	test := got["test (os=linux)"]
	require.Len(t, test, 1, "skipped runs only finish")
	assert.Equal(t, RunFinishedEvent, test[0].name)
	assert.Equal(t, "skipped", test[0].payload.Status)
	assert.Equal(t, map[string]string{"os": "linux"}, test[0].payload.Matrix)
	assert.Equal(t, 1, test[0].payload.Wave)
	assert.Nil(t, test[0].payload.StartedAt)

	assert.EqualValues(t, 3, pub.Emitted())
}

func TestDial_RejectsRelativeURL(t *testing.T) {
	_, err := Dial(context.Background(), "localhost/socket.io", Options{})
	assert.ErrorContains(t, err, "must be absolute")
}

func TestDial_FailsWithoutServer(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	_, err = Dial(context.Background(), "http://"+addr, Options{Timeout: 2 * time.Second})
	assert.Error(t, err)
}
