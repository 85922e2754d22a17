package grading

import (
	"context"
	"fmt"
	"math"
)

// integerStrategy accepts a JSON number and requires an exact integer match.
// Fractional submissions are a shape error, not a wrong answer: rounding on
// the server would grade something the student never entered.
type integerStrategy struct{}

func (integerStrategy) Grade(_ context.Context, q Q, response interface{}) (Result, error) {
	v, ok := toFloat(response)
	if !ok {
		return Result{}, fmt.Errorf("%w: integer wants a number", ErrBadShape)
	}
	if v != math.Trunc(v) {
		return Result{}, fmt.Errorf("%w: integer wants a whole number", ErrBadShape)
	}
	if q.IntegerAnswer == nil {
		return Result{}, fmt.Errorf("question %s: malformed answer key", q.ID)
	}
	return award(q, int64(v) == *q.IntegerAnswer), nil
}

// numericalStrategy accepts any submission within the key's tolerance,
// inclusive at the boundary.
type numericalStrategy struct{}

func (numericalStrategy) Grade(_ context.Context, q Q, response interface{}) (Result, error) {
	v, ok := toFloat(response)
	if !ok {
		return Result{}, fmt.Errorf("%w: numerical wants a number", ErrBadShape)
	}
	if q.Numerical == nil {
		return Result{}, fmt.Errorf("question %s: malformed answer key", q.ID)
	}
	return award(q, math.Abs(v-q.Numerical.Value) <= q.Numerical.Tolerance), nil
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}
