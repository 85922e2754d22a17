package exam

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/examforge/examforge/internal/grading"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int64) *int64 { return &v }

// seedStore loads a user, a one-hour test on 2026-03-10 and three questions.
func seedStore(t *testing.T) Store {
	t.Helper()
	ctx := context.Background()
	store := NewInMemoryStore()
	require.NoError(t, store.PutUser(ctx, User{ID: "u1", Username: "asha", Role: "student"}))
	require.NoError(t, store.PutTest(ctx, Test{
		ID: "t1", Name: "mock jee", TestDate: "2026-03-10", StartTime: "09:00", DurationMin: 60,
	}))
	questions := []Question{
		{
			ID: "q1", TestID: "t1", Text: "pick one", Type: MultipleChoice,
			PositiveMarks: 4, NegativeMarks: -1,
			Options:        []Option{{ID: "a"}, {ID: "b"}},
			CorrectOptions: []string{"b"},
		},
		{
			ID: "q2", TestID: "t1", Text: "count", Type: IntegerType,
			PositiveMarks: 4, NegativeMarks: -1,
			IntegerAnswer: intPtr(42),
		},
		{
			ID: "q3", TestID: "t1", Text: "measure", Type: NumericalType,
			PositiveMarks: 4, NegativeMarks: -1,
			Numerical: &NumericalAnswer{Correct: 9.8, Tolerance: 0.1},
		},
	}
	for _, q := range questions {
		require.NoError(t, q.Validate())
		require.NoError(t, store.PutQuestion(ctx, q))
	}
	return store
}

func newTestLedger(store Store) *Ledger {
	return NewLedger(store, NewWindow(time.UTC), graderScorer{g: grading.NewGrader()})
}

func TestGetOrCreateStartsAttempt(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t)
	ledger := newTestLedger(store)
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	a, created, err := ledger.GetOrCreate(ctx, User{ID: "u1"}, mustGetTest(t, store), now)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, StatusInProgress, a.Status)
	assert.Equal(t, now.UnixMilli(), a.StartedAtMS)
	assert.Equal(t, 0.0, a.Score)
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t)
	ledger := newTestLedger(store)
	test := mustGetTest(t, store)
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	first, created, err := ledger.GetOrCreate(ctx, User{ID: "u1"}, test, start)
	require.NoError(t, err)
	require.True(t, created)

	// A later "start" must not reset the clock or create a second record.
	second, created, err := ledger.GetOrCreate(ctx, User{ID: "u1"}, test, start.Add(10*time.Minute))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.StartedAtMS, second.StartedAtMS)
	assert.Equal(t, StatusInProgress, second.Status)
}

func TestGetOrCreateOutsideWindow(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t)
	ledger := newTestLedger(store)
	test := mustGetTest(t, store)

	_, _, err := ledger.GetOrCreate(ctx, User{ID: "u1"}, test, time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrAttemptNotAllowed)

	_, _, err = ledger.GetOrCreate(ctx, User{ID: "u1"}, test, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrAttemptNotAllowed)
}

func TestConcurrentStartsCreateOneAttempt(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t)
	ledger := newTestLedger(store)
	test := mustGetTest(t, store)
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	const n = 32
	var wg sync.WaitGroup
	createdCount := make(chan bool, n)
	starts := make(chan int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, created, err := ledger.GetOrCreate(ctx, User{ID: "u1"}, test, now)
			if !assert.NoError(t, err) {
				return
			}
			createdCount <- created
			starts <- a.StartedAtMS
		}()
	}
	wg.Wait()
	close(createdCount)
	close(starts)

	total := 0
	for c := range createdCount {
		if c {
			total++
		}
	}
	assert.Equal(t, 1, total, "exactly one caller must observe creation")

	var first int64 = -1
	for s := range starts {
		if first == -1 {
			first = s
		}
		assert.Equal(t, first, s, "all callers must observe the same start time")
	}
}

func TestLazyExpiryFinalizesWithSavedResponses(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t)
	ledger := newTestLedger(store)
	test := mustGetTest(t, store)
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	_, _, err := ledger.GetOrCreate(ctx, User{ID: "u1"}, test, start)
	require.NoError(t, err)

	// Saved before the deadline: q1 correct (+4), q2 wrong (-1), q3 unanswered.
	_, err = ledger.SaveResponses(ctx, test, "u1", map[string]interface{}{
		"q1": "b",
		"q2": 41.0,
	}, start.Add(30*time.Minute))
	require.NoError(t, err)

	// First read past the deadline observes the finalized record.
	a, created, err := ledger.GetOrCreate(ctx, User{ID: "u1"}, test, start.Add(61*time.Minute))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, StatusCompleted, a.Status)
	assert.Equal(t, 3.0, a.Score)
}

func TestLazyExpiryWithNothingSavedScoresZero(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t)
	ledger := newTestLedger(store)
	test := mustGetTest(t, store)
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	_, _, err := ledger.GetOrCreate(ctx, User{ID: "u1"}, test, start)
	require.NoError(t, err)

	a, _, err := ledger.GetOrCreate(ctx, User{ID: "u1"}, test, start.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, a.Status)
	assert.Equal(t, 0.0, a.Score)
}

func TestSubmitScoresAndFinalizes(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t)
	ledger := newTestLedger(store)
	test := mustGetTest(t, store)
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	_, _, err := ledger.GetOrCreate(ctx, User{ID: "u1"}, test, start)
	require.NoError(t, err)

	a, per, err := ledger.Submit(ctx, test, "u1", map[string]interface{}{
		"q1": "b",  // +4
		"q2": 42.0, // +4
		"q3": 9.9,  // at tolerance boundary: +4
	}, start.Add(45*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, a.Status)
	assert.Equal(t, 12.0, a.Score)
	assert.True(t, per["q3"].Correct)
}

func TestSubmitMergesSavedResponses(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t)
	ledger := newTestLedger(store)
	test := mustGetTest(t, store)
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	_, _, err := ledger.GetOrCreate(ctx, User{ID: "u1"}, test, start)
	require.NoError(t, err)
	_, err = ledger.SaveResponses(ctx, test, "u1", map[string]interface{}{"q1": "b"}, start.Add(5*time.Minute))
	require.NoError(t, err)

	// The final submission overrides q1 and adds q2.
	a, _, err := ledger.Submit(ctx, test, "u1", map[string]interface{}{
		"q1": "a",  // overridden to wrong: -1
		"q2": 42.0, // +4
	}, start.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 3.0, a.Score)
}

func TestResubmitFailsAndKeepsScore(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t)
	ledger := newTestLedger(store)
	test := mustGetTest(t, store)
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	_, _, err := ledger.GetOrCreate(ctx, User{ID: "u1"}, test, start)
	require.NoError(t, err)
	first, _, err := ledger.Submit(ctx, test, "u1", map[string]interface{}{"q2": 42.0}, start.Add(10*time.Minute))
	require.NoError(t, err)
	require.Equal(t, 4.0, first.Score)

	again, _, err := ledger.Submit(ctx, test, "u1", map[string]interface{}{
		"q1": "b", "q2": 42.0, "q3": 9.8,
	}, start.Add(20*time.Minute))
	assert.ErrorIs(t, err, ErrAlreadyCompleted)
	assert.Equal(t, 4.0, again.Score, "completed score must be immutable")

	stored, err := store.GetAttempt(ctx, "u1", "t1")
	require.NoError(t, err)
	assert.Equal(t, 4.0, stored.Score)
}

func TestSubmitAfterDeadlineExpiresInstead(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t)
	ledger := newTestLedger(store)
	test := mustGetTest(t, store)
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	_, _, err := ledger.GetOrCreate(ctx, User{ID: "u1"}, test, start)
	require.NoError(t, err)
	_, err = ledger.SaveResponses(ctx, test, "u1", map[string]interface{}{"q1": "b"}, start.Add(5*time.Minute))
	require.NoError(t, err)

	a, _, err := ledger.Submit(ctx, test, "u1", map[string]interface{}{"q2": 42.0}, start.Add(90*time.Minute))
	assert.ErrorIs(t, err, ErrAlreadyCompleted)
	// The late answers never count; only what was saved on the clock does.
	assert.Equal(t, StatusCompleted, a.Status)
	assert.Equal(t, 4.0, a.Score)
}

func TestSubmitWithoutAttempt(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t)
	ledger := newTestLedger(store)
	test := mustGetTest(t, store)

	_, _, err := ledger.Submit(ctx, test, "u1", map[string]interface{}{"q2": 42.0},
		time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBadShapeLeavesLedgerUntouched(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t)
	ledger := newTestLedger(store)
	test := mustGetTest(t, store)
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	_, _, err := ledger.GetOrCreate(ctx, User{ID: "u1"}, test, start)
	require.NoError(t, err)

	_, err = ledger.SaveResponses(ctx, test, "u1", map[string]interface{}{"q2": "forty-two"}, start.Add(5*time.Minute))
	assert.ErrorIs(t, err, ErrInvalidAnswerShape)

	_, err = ledger.SaveResponses(ctx, test, "u1", map[string]interface{}{"nope": "b"}, start.Add(5*time.Minute))
	assert.ErrorIs(t, err, ErrInvalidAnswerShape)

	_, _, err = ledger.Submit(ctx, test, "u1", map[string]interface{}{"q2": true}, start.Add(5*time.Minute))
	assert.ErrorIs(t, err, ErrInvalidAnswerShape)

	a, err := store.GetAttempt(ctx, "u1", "t1")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, a.Status)
	assert.Empty(t, a.Responses)
}

func mustGetTest(t *testing.T, store Store) Test {
	t.Helper()
	test, err := store.GetTest(context.Background(), "t1")
	require.NoError(t, err)
	return test
}
