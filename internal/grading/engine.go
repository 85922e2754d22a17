package grading

import (
	"context"
	"errors"
	"fmt"
)

// ErrBadShape marks a submission that does not match the question type's
// expected payload shape. Callers surface it as a client error.
var ErrBadShape = errors.New("bad answer shape")

// Q is the minimal view of a question needed for grading.
type Q struct {
	ID            string
	Type          string
	PositiveMarks float64
	NegativeMarks float64

	CorrectOptions []string
	IntegerAnswer  *int64
	Numerical      *NumericalKey
}

type NumericalKey struct {
	Value     float64
	Tolerance float64
}

// Result is the outcome of grading a single question response.
type Result struct {
	Answered bool
	Correct  bool
	Marks    float64
}

// Strategy grades a single question.
type Strategy interface {
	Grade(ctx context.Context, q Q, response interface{}) (Result, error)
}

// Grader routes by question type to the correct Strategy. Unknown types are
// an error, never a silent zero: malformed records must not grade.
type Grader interface {
	Grade(ctx context.Context, q Q, response interface{}) (Result, error)
}

type defaultGrader struct {
	strategies map[string]Strategy
}

func (g *defaultGrader) Grade(ctx context.Context, q Q, response interface{}) (Result, error) {
	s, ok := g.strategies[q.Type]
	if !ok {
		return Result{}, fmt.Errorf("no strategy for question type %q", q.Type)
	}
	return s.Grade(ctx, q, response)
}

type Option func(*defaultGrader)

// WithStrategy installs or overrides the strategy for a question type.
func WithStrategy(typ string, s Strategy) Option {
	return func(g *defaultGrader) { g.strategies[typ] = s }
}

// NewGrader installs the built-in strategies for the four question types.
func NewGrader(opts ...Option) Grader {
	g := &defaultGrader{
		strategies: map[string]Strategy{
			"multiple_choice":  choiceStrategy{},
			"multiple_correct": multiStrategy{},
			"integer":          integerStrategy{},
			"numerical":        numericalStrategy{},
		},
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// award applies the common marking rule: full positive marks when correct,
// negative marks when answered wrong. Unanswered never reaches here.
func award(q Q, correct bool) Result {
	if correct {
		return Result{Answered: true, Correct: true, Marks: q.PositiveMarks}
	}
	return Result{Answered: true, Correct: false, Marks: q.NegativeMarks}
}

type choiceStrategy struct{}

func (choiceStrategy) Grade(_ context.Context, q Q, response interface{}) (Result, error) {
	sel, ok := response.(string)
	if !ok {
		return Result{}, fmt.Errorf("%w: multiple_choice wants a string option id", ErrBadShape)
	}
	if sel == "" {
		return Result{}, nil
	}
	if len(q.CorrectOptions) != 1 {
		return Result{}, fmt.Errorf("question %s: malformed answer key", q.ID)
	}
	return award(q, sel == q.CorrectOptions[0]), nil
}

type multiStrategy struct{}

func (multiStrategy) Grade(_ context.Context, q Q, response interface{}) (Result, error) {
	sel, ok := toStringSlice(response)
	if !ok {
		return Result{}, fmt.Errorf("%w: multiple_correct wants a list of option ids", ErrBadShape)
	}
	if len(sel) == 0 {
		return Result{}, nil
	}
	// Exact set equality only: proper subsets of the key score no marks.
	return award(q, setEqual(toSet(sel), toSet(q.CorrectOptions))), nil
}

// ScoreAttempt sums marks across all of the test's questions. Questions with
// no matching submission contribute exactly zero, distinct from answered
// wrong, which draws negative marks.
func ScoreAttempt(ctx context.Context, g Grader, questions []Q, responses map[string]interface{}) (float64, map[string]Result, error) {
	total := 0.0
	per := make(map[string]Result, len(questions))
	for _, q := range questions {
		resp, has := responses[q.ID]
		if !has || resp == nil {
			per[q.ID] = Result{}
			continue
		}
		res, err := g.Grade(ctx, q, resp)
		if err != nil {
			return 0, nil, fmt.Errorf("question %s: %w", q.ID, err)
		}
		per[q.ID] = res
		total += res.Marks
	}
	return total, per, nil
}

func toStringSlice(v interface{}) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return t, true
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func toSet(arr []string) map[string]struct{} {
	m := make(map[string]struct{}, len(arr))
	for _, s := range arr {
		m[s] = struct{}{}
	}
	return m
}

func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
