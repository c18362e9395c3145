package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIntakeTask(t *testing.T) {
	task, err := NewIntakeTask(42, "default", 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, TaskTypeIntakeAnalyze, task.Type())
	assert.JSONEq(t, `{"intake_id":42}`, string(task.Payload()))

	p, err := ParseIntakePayload(task.Payload())
	require.NoError(t, err)
	assert.Equal(t, int64(42), p.IntakeID)
}

func TestParseIntakePayloadRejectsBadInput(t *testing.T) {
	_, err := ParseIntakePayload([]byte(`{`))
	assert.ErrorContains(t, err, "failed to unmarshal payload")

	_, err = ParseIntakePayload([]byte(`{"intake_id":0}`))
	assert.ErrorContains(t, err, "missing intake_id")
}

func TestIntakeLeaseKey(t *testing.T) {
	assert.Equal(t, "intake:lease:7", IntakeLeaseKey(7))
}

func TestMemoryLockerExclusive(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	release, ok, err := l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, release(ctx))
	_, ok, err = l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLockerExpiry(t *testing.T) {
	l := NewMemoryLocker()
	now := time.Now()
	l.now = func() time.Time { return now }
	ctx := context.Background()

	stale, ok, _ := l.Acquire(ctx, "k", time.Second)
	require.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok, _ = l.Acquire(ctx, "k", time.Minute)
	require.True(t, ok)

	// The expired holder must not drop the new lease.
	require.NoError(t, stale(ctx))
	_, ok, _ = l.Acquire(ctx, "k", time.Minute)
	assert.False(t, ok)
}
