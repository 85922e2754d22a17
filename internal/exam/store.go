package exam

import (
	"context"
	"time"

	"github.com/examforge/examforge/internal/grading"
)

// Store is the persistence boundary for the attempt lifecycle. Attempts are
// keyed by (user, test); CreateAttempt must be an atomic insert-if-absent so
// duplicate concurrent starts can never produce two records.
type Store interface {
	PutTest(ctx context.Context, t Test) error
	GetTest(ctx context.Context, id string) (Test, error)
	ListTests(ctx context.Context, opts ListOpts) ([]Test, error)

	PutQuestion(ctx context.Context, q Question) error
	QuestionsByTest(ctx context.Context, testID string) ([]Question, error)

	GetUser(ctx context.Context, id string) (User, error)
	PutUser(ctx context.Context, u User) error

	// GetAttempt returns ErrNotFound when the user has never started the test.
	GetAttempt(ctx context.Context, userID, testID string) (Attempt, error)
	// CreateAttempt inserts a; if a record already exists for the same
	// (user, test) key it returns that record with created=false.
	CreateAttempt(ctx context.Context, a Attempt) (Attempt, bool, error)
	// SaveResponses merges resp into the attempt's saved responses.
	SaveResponses(ctx context.Context, userID, testID string, resp map[string]interface{}) (Attempt, error)
	// FinalizeAttempt marks the attempt completed with the given score. It is
	// the only operation that writes Score.
	FinalizeAttempt(ctx context.Context, userID, testID string, score float64, at time.Time) (Attempt, error)
	ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error)
}

// Scorer computes the total score and per-question results for an attempt's
// responses. The grading engine satisfies this through the adapter in
// service.go.
type Scorer interface {
	ScoreAttempt(ctx context.Context, questions []Question, responses map[string]interface{}) (float64, map[string]grading.Result, error)
}
