package plan

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobRun_Transitions(t *testing.T) {
	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Second)

	t.Run("pending to running to succeeded", func(t *testing.T) {
		r := ExpandMatrix(NewJobSpec("lint"))[0]
		require.NoError(t, r.MarkRunning(start))
		assert.Equal(t, Running, r.Status())
		assert.Equal(t, start, r.StartedAt())
		assert.True(t, r.FinishedAt().IsZero())

		require.NoError(t, r.MarkSucceeded(end))
		assert.Equal(t, Succeeded, r.Status())
		assert.Equal(t, end, r.FinishedAt())
		assert.NoError(t, r.Err())
	})

	t.Run("failure records the cause", func(t *testing.T) {
		r := ExpandMatrix(NewJobSpec("lint"))[0]
		cause := errors.New("exit status 2")
		require.NoError(t, r.MarkRunning(start))
		require.NoError(t, r.MarkFailed(end, cause))
		assert.Equal(t, Failed, r.Status())
		assert.Same(t, cause, r.Err())
	})

	t.Run("skip from pending only", func(t *testing.T) {
		r := ExpandMatrix(NewJobSpec("lint"))[0]
		require.NoError(t, r.MarkSkipped(end, errors.New("upstream failed")))
		assert.Equal(t, Skipped, r.Status())
		assert.True(t, r.StartedAt().IsZero())
	})

	t.Run("terminal runs are frozen", func(t *testing.T) {
		r := ExpandMatrix(NewJobSpec("lint"))[0]
		require.NoError(t, r.MarkRunning(start))
		require.NoError(t, r.MarkSucceeded(end))

		assert.ErrorContains(t, r.MarkFailed(end, errors.New("late")), "illegal transition succeeded -> failed")
		assert.Error(t, r.MarkRunning(end))
		assert.Error(t, r.MarkSkipped(end, nil))
		assert.Equal(t, Succeeded, r.Status())
		assert.NoError(t, r.Err())
	})

	t.Run("cannot finish without starting", func(t *testing.T) {
		r := ExpandMatrix(NewJobSpec("lint"))[0]
		assert.Error(t, r.MarkSucceeded(end))
		assert.Error(t, r.MarkFailed(end, nil))
		assert.Equal(t, Pending, r.Status())
	})
}

func TestJobRun_Snapshot(t *testing.T) {
	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	r := ExpandMatrix(NewJobSpec("test").WithAxis("os", "ubuntu"))[0]
	require.NoError(t, r.MarkRunning(start))
	require.NoError(t, r.MarkFailed(start.Add(time.Minute), errors.New("boom")))

	snap := r.Snapshot()
	assert.Equal(t, "test (os=ubuntu)", snap.ID)
	assert.Equal(t, "test", snap.Job)
	assert.Equal(t, map[string]string{"os": "ubuntu"}, snap.Matrix)
	assert.Equal(t, Failed, snap.Status)
	assert.Equal(t, "boom", snap.Error)

	data, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status":"failed"`)
	assert.Contains(t, string(data), `"started_at":"2025-01-01T10:00:00Z"`)
}

func TestStatus(t *testing.T) {
	assert.Equal(t, "pending", Pending.String())
	assert.Equal(t, "skipped", Skipped.String())
	assert.Equal(t, "status(42)", Status(42).String())

	assert.False(t, Pending.IsTerminal())
	assert.False(t, Running.IsTerminal())
	assert.True(t, Succeeded.IsTerminal())
	assert.True(t, Failed.IsTerminal())
	assert.True(t, Skipped.IsTerminal())
}
