package exam

import (
	"context"
	"testing"
	"time"

	"github.com/examforge/examforge/internal/grading"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *time.Time) {
	t.Helper()
	store := seedStore(t)
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := &now
	svc := NewService(store, NewWindow(time.UTC), grading.NewGrader(),
		WithClock(func() time.Time { return *clock }))
	return svc, clock
}

func TestServiceAttemptLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestService(t)

	out, err := svc.Attempt(ctx, "u1", "t1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeStarted, out.State)
	assert.Equal(t, int64(3600), out.RemainingSec)
	startedAt := out.Attempt.StartedAtMS

	*clock = clock.Add(10 * time.Minute)
	out, err = svc.Attempt(ctx, "u1", "t1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeInProgress, out.State)
	assert.Equal(t, int64(3000), out.RemainingSec)
	assert.Equal(t, startedAt, out.Attempt.StartedAtMS)

	_, err = svc.SaveResponses(ctx, "u1", "t1", map[string]interface{}{"q1": "b"})
	require.NoError(t, err)

	// duration=60: a read at start+61min reports Completed with the lazily
	// finalized score of what was saved before expiry.
	*clock = clock.Add(51 * time.Minute)
	out, err = svc.Attempt(ctx, "u1", "t1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, out.State)
	assert.Equal(t, 4.0, out.Attempt.Score)

	// Further attempt requests keep resolving to the final record.
	out, err = svc.Attempt(ctx, "u1", "t1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, out.State)
	assert.Equal(t, 4.0, out.Attempt.Score)
}

func TestServiceSubmit(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestService(t)

	_, err := svc.Attempt(ctx, "u1", "t1")
	require.NoError(t, err)

	*clock = clock.Add(20 * time.Minute)
	res, err := svc.Submit(ctx, "u1", "t1", map[string]interface{}{
		"q1": "b",
		"q2": 41.0,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Attempt.Status)
	assert.Equal(t, 3.0, res.Attempt.Score)

	require.Len(t, res.Results, 3)
	byID := map[string]QuestionResult{}
	for _, qr := range res.Results {
		byID[qr.QuestionID] = qr
	}
	assert.True(t, byID["q1"].Correct)
	assert.Equal(t, 4.0, byID["q1"].Marks)
	assert.False(t, byID["q2"].Correct)
	assert.Equal(t, -1.0, byID["q2"].Marks)
	assert.False(t, byID["q3"].Answered)
	assert.Equal(t, 0.0, byID["q3"].Marks)

	_, err = svc.Submit(ctx, "u1", "t1", map[string]interface{}{"q3": 9.8})
	assert.ErrorIs(t, err, ErrAlreadyCompleted)
}

func TestServiceUnknownReferences(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Attempt(ctx, "ghost", "t1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Attempt(ctx, "u1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Submit(ctx, "ghost", "t1", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestServiceStatusDoesNotCreate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Status(ctx, "u1", "t1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Attempt(ctx, "u1", "t1")
	require.NoError(t, err)

	out, err := svc.Status(ctx, "u1", "t1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeInProgress, out.State)
}

func TestServiceAttemptBeforeWindow(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestService(t)
	*clock = time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)

	_, err := svc.Attempt(ctx, "u1", "t1")
	assert.ErrorIs(t, err, ErrAttemptNotAllowed)
}
