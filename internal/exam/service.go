package exam

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/examforge/examforge/internal/grading"
)

type OutcomeState string

const (
	OutcomeStarted    OutcomeState = "started"
	OutcomeInProgress OutcomeState = "in_progress"
	OutcomeCompleted  OutcomeState = "completed"
)

// AttemptOutcome is what an attempt request resolves to: a fresh start, a
// resumed in-progress attempt with its remaining time, or the completed
// record with its final score.
type AttemptOutcome struct {
	State        OutcomeState `json:"state"`
	RemainingSec int64        `json:"remaining_sec"`
	Attempt      Attempt      `json:"attempt"`
}

type QuestionResult struct {
	QuestionID string  `json:"question_id"`
	Answered   bool    `json:"answered"`
	Correct    bool    `json:"correct"`
	Marks      float64 `json:"marks"`
}

type SubmitResult struct {
	Attempt Attempt          `json:"attempt"`
	Results []QuestionResult `json:"results"`
}

// Service is the attempt orchestrator: it resolves the principal and test,
// gates on the time window via the ledger, and runs scoring on submission.
// It never reads transport-level state; callers pass the authenticated user
// id explicitly.
type Service struct {
	store  Store
	win    Window
	ledger *Ledger
	now    func() time.Time
}

type ServiceOption func(*Service)

// WithClock overrides the service clock, for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, win Window, grader grading.Grader, opts ...ServiceOption) *Service {
	s := &Service{
		store: store,
		win:   win,
		now:   time.Now,
	}
	s.ledger = NewLedger(store, win, graderScorer{g: grader})
	for _, o := range opts {
		o(s)
	}
	return s
}

// Attempt starts or resumes the user's attempt at the test. Calling it on a
// completed attempt is not an error: the outcome carries the final score.
func (s *Service) Attempt(ctx context.Context, userID, testID string) (AttemptOutcome, error) {
	user, t, err := s.resolve(ctx, userID, testID)
	if err != nil {
		return AttemptOutcome{}, err
	}
	now := s.now()
	a, created, err := s.ledger.GetOrCreate(ctx, user, t, now)
	if err != nil {
		return AttemptOutcome{}, err
	}
	return s.outcome(t, a, created, now), nil
}

// SaveResponses records partial answers on an in-progress attempt.
func (s *Service) SaveResponses(ctx context.Context, userID, testID string, resp map[string]interface{}) (Attempt, error) {
	_, t, err := s.resolve(ctx, userID, testID)
	if err != nil {
		return Attempt{}, err
	}
	return s.ledger.SaveResponses(ctx, t, userID, resp, s.now())
}

// Submit finalizes the attempt with the score of the merged answer set.
func (s *Service) Submit(ctx context.Context, userID, testID string, answers map[string]interface{}) (SubmitResult, error) {
	_, t, err := s.resolve(ctx, userID, testID)
	if err != nil {
		return SubmitResult{}, err
	}
	questions, err := s.store.QuestionsByTest(ctx, t.ID)
	if err != nil {
		return SubmitResult{}, err
	}
	a, per, err := s.ledger.Submit(ctx, t, userID, answers, s.now())
	if err != nil {
		return SubmitResult{Attempt: a}, err
	}
	results := make([]QuestionResult, 0, len(questions))
	for _, q := range questions {
		r := per[q.ID]
		results = append(results, QuestionResult{
			QuestionID: q.ID,
			Answered:   r.Answered,
			Correct:    r.Correct,
			Marks:      r.Marks,
		})
	}
	return SubmitResult{Attempt: a, Results: results}, nil
}

// Status reports the current outcome without creating anything. It still
// performs lazy expiry, so a read past the deadline observes Completed.
func (s *Service) Status(ctx context.Context, userID, testID string) (AttemptOutcome, error) {
	user, t, err := s.resolve(ctx, userID, testID)
	if err != nil {
		return AttemptOutcome{}, err
	}
	now := s.now()
	a, err := s.store.GetAttempt(ctx, user.ID, t.ID)
	if err != nil {
		return AttemptOutcome{}, err
	}
	a, _, err = s.ledger.GetOrCreate(ctx, user, t, now)
	if err != nil {
		return AttemptOutcome{}, err
	}
	return s.outcome(t, a, false, now), nil
}

func (s *Service) resolve(ctx context.Context, userID, testID string) (User, Test, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return User{}, Test{}, fmt.Errorf("user %s: %w", userID, err)
	}
	t, err := s.store.GetTest(ctx, testID)
	if err != nil {
		return User{}, Test{}, fmt.Errorf("test %s: %w", testID, err)
	}
	return user, t, nil
}

func (s *Service) outcome(t Test, a Attempt, created bool, now time.Time) AttemptOutcome {
	out := AttemptOutcome{Attempt: a}
	switch {
	case a.Status == StatusCompleted:
		out.State = OutcomeCompleted
	case created:
		out.State = OutcomeStarted
		out.RemainingSec = int64(s.win.Remaining(t, a, now).Seconds())
	default:
		out.State = OutcomeInProgress
		out.RemainingSec = int64(s.win.Remaining(t, a, now).Seconds())
	}
	return out
}

// graderScorer adapts the grading engine to the ledger's Scorer contract and
// translates shape failures into the client-facing sentinel.
type graderScorer struct {
	g grading.Grader
}

func (gs graderScorer) ScoreAttempt(ctx context.Context, questions []Question, responses map[string]interface{}) (float64, map[string]grading.Result, error) {
	qs := make([]grading.Q, 0, len(questions))
	for _, q := range questions {
		qs = append(qs, toGradingQ(q))
	}
	total, per, err := grading.ScoreAttempt(ctx, gs.g, qs, responses)
	if err != nil {
		if errors.Is(err, grading.ErrBadShape) {
			return 0, nil, fmt.Errorf("%w: %v", ErrInvalidAnswerShape, err)
		}
		return 0, nil, err
	}
	return total, per, nil
}

func toGradingQ(q Question) grading.Q {
	gq := grading.Q{
		ID:             q.ID,
		Type:           string(q.Type),
		PositiveMarks:  q.PositiveMarks,
		NegativeMarks:  q.NegativeMarks,
		CorrectOptions: q.CorrectOptions,
		IntegerAnswer:  q.IntegerAnswer,
	}
	if q.Numerical != nil {
		gq.Numerical = &grading.NumericalKey{
			Value:     q.Numerical.Correct,
			Tolerance: q.Numerical.Tolerance,
		}
	}
	return gq
}
