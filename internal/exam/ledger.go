package exam

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/examforge/examforge/internal/grading"
)

// Ledger owns attempt-state transitions. Every operation is serialized per
// (user, test) key, so at most one in-progress record can ever exist for a
// pair even under duplicate concurrent start requests. Requests for distinct
// pairs proceed independently.
type Ledger struct {
	store  Store
	win    Window
	scorer Scorer
	locks  [64]sync.Mutex
}

func NewLedger(store Store, win Window, scorer Scorer) *Ledger {
	return &Ledger{store: store, win: win, scorer: scorer}
}

func (l *Ledger) lockFor(userID, testID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(userID))
	h.Write([]byte{0})
	h.Write([]byte(testID))
	return &l.locks[h.Sum32()%uint32(len(l.locks))]
}

// GetOrCreate returns the user's attempt for the test, creating it when the
// window allows. Repeated calls while in progress return the same record
// unchanged; an attempt found past its deadline is finalized first (lazy
// expiry) and returned as completed.
func (l *Ledger) GetOrCreate(ctx context.Context, user User, t Test, now time.Time) (Attempt, bool, error) {
	mu := l.lockFor(user.ID, t.ID)
	mu.Lock()
	defer mu.Unlock()

	a, err := l.store.GetAttempt(ctx, user.ID, t.ID)
	switch {
	case err == nil:
		a, err = l.expireIfDue(ctx, t, a, now)
		return a, false, err
	case errors.Is(err, ErrNotFound):
		// fall through to create
	default:
		return Attempt{}, false, err
	}

	if err := l.win.CanStart(t, now); err != nil {
		return Attempt{}, false, err
	}
	a = Attempt{
		UserID:      user.ID,
		TestID:      t.ID,
		Status:      StatusInProgress,
		StartedAtMS: now.UnixMilli(),
		AttemptedOn: now.UTC().Format(time.RFC3339),
		Responses:   map[string]interface{}{},
	}
	a, created, err := l.store.CreateAttempt(ctx, a)
	if err != nil {
		return Attempt{}, false, err
	}
	if !created {
		// Lost the insert race to another node sharing the store; the
		// existing record wins and this call degrades to a plain read.
		a, err = l.expireIfDue(ctx, t, a, now)
		return a, false, err
	}
	return a, true, nil
}

// SaveResponses merges partial answers into an in-progress attempt so lazy
// expiry can grade them later. Shapes are checked before anything is written:
// a rejected request leaves the ledger untouched.
func (l *Ledger) SaveResponses(ctx context.Context, t Test, userID string, resp map[string]interface{}, now time.Time) (Attempt, error) {
	mu := l.lockFor(userID, t.ID)
	mu.Lock()
	defer mu.Unlock()

	a, err := l.liveAttempt(ctx, t, userID, now)
	if err != nil {
		return a, err
	}
	questions, err := l.store.QuestionsByTest(ctx, t.ID)
	if err != nil {
		return Attempt{}, err
	}
	if err := checkKnown(questions, resp); err != nil {
		return Attempt{}, err
	}
	if _, _, err := l.scorer.ScoreAttempt(ctx, questions, resp); err != nil {
		return Attempt{}, err
	}
	return l.store.SaveResponses(ctx, userID, t.ID, resp)
}

// Submit scores the attempt against the test's question set and finalizes it.
// Answers passed here are merged over any responses saved earlier.
func (l *Ledger) Submit(ctx context.Context, t Test, userID string, answers map[string]interface{}, now time.Time) (Attempt, map[string]grading.Result, error) {
	mu := l.lockFor(userID, t.ID)
	mu.Lock()
	defer mu.Unlock()

	a, err := l.liveAttempt(ctx, t, userID, now)
	if err != nil {
		return a, nil, err
	}
	questions, err := l.store.QuestionsByTest(ctx, t.ID)
	if err != nil {
		return Attempt{}, nil, err
	}
	merged := make(map[string]interface{}, len(a.Responses)+len(answers))
	for k, v := range a.Responses {
		merged[k] = v
	}
	for k, v := range answers {
		merged[k] = v
	}
	if err := checkKnown(questions, merged); err != nil {
		return Attempt{}, nil, err
	}
	score, per, err := l.scorer.ScoreAttempt(ctx, questions, merged)
	if err != nil {
		return Attempt{}, nil, err
	}
	if len(answers) > 0 {
		if _, err := l.store.SaveResponses(ctx, userID, t.ID, answers); err != nil {
			return Attempt{}, nil, err
		}
	}
	a, err = l.finalizeLocked(ctx, a, score, now)
	if err != nil {
		return Attempt{}, nil, err
	}
	return a, per, nil
}

// Finalize completes an in-progress attempt with the given score. Completed
// records are immutable: re-finalization fails and leaves the score intact.
func (l *Ledger) Finalize(ctx context.Context, a Attempt, score float64, now time.Time) (Attempt, error) {
	mu := l.lockFor(a.UserID, a.TestID)
	mu.Lock()
	defer mu.Unlock()
	return l.finalizeLocked(ctx, a, score, now)
}

func (l *Ledger) finalizeLocked(ctx context.Context, a Attempt, score float64, now time.Time) (Attempt, error) {
	if a.Status == StatusCompleted {
		return a, ErrAlreadyCompleted
	}
	return l.store.FinalizeAttempt(ctx, a.UserID, a.TestID, score, now)
}

// liveAttempt loads the attempt and requires it to be in progress and on the
// clock, lazily expiring it otherwise. Callers must hold the pair's lock.
func (l *Ledger) liveAttempt(ctx context.Context, t Test, userID string, now time.Time) (Attempt, error) {
	a, err := l.store.GetAttempt(ctx, userID, t.ID)
	if err != nil {
		return Attempt{}, err
	}
	if a.Status == StatusCompleted {
		return a, ErrAlreadyCompleted
	}
	if l.win.Expired(t, a, now) {
		if a, err = l.expireIfDue(ctx, t, a, now); err != nil {
			return Attempt{}, err
		}
		return a, ErrAlreadyCompleted
	}
	return a, nil
}

// expireIfDue finalizes an in-progress attempt whose clock has run out,
// scoring whatever responses were saved before the deadline. The finalization
// timestamp is the deadline itself, not the observing read's clock. Callers
// must hold the pair's lock.
func (l *Ledger) expireIfDue(ctx context.Context, t Test, a Attempt, now time.Time) (Attempt, error) {
	deadline := l.win.Deadline(t, a)
	if a.Status != StatusInProgress || now.Before(deadline) {
		return a, nil
	}
	questions, err := l.store.QuestionsByTest(ctx, t.ID)
	if err != nil {
		return Attempt{}, err
	}
	score, _, err := l.scorer.ScoreAttempt(ctx, questions, a.Responses)
	if err != nil {
		// Saved responses were shape-checked on write; a failure here means
		// a corrupt record rather than a client error.
		return Attempt{}, fmt.Errorf("scoring expired attempt %s/%s: %w", a.UserID, a.TestID, err)
	}
	return l.finalizeLocked(ctx, a, score, deadline)
}

func checkKnown(questions []Question, resp map[string]interface{}) error {
	known := make(map[string]struct{}, len(questions))
	for _, q := range questions {
		known[q.ID] = struct{}{}
	}
	for id := range resp {
		if _, ok := known[id]; !ok {
			return fmt.Errorf("%w: unknown question %s", ErrInvalidAnswerShape, id)
		}
	}
	return nil
}
