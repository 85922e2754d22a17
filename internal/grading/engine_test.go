package grading

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int64) *int64 { return &v }

func TestGradeMultipleChoice(t *testing.T) {
	q := Q{
		ID: "q1", Type: "multiple_choice",
		PositiveMarks: 4, NegativeMarks: -1,
		CorrectOptions: []string{"b"},
	}
	g := NewGrader()

	tests := []struct {
		name     string
		response interface{}
		answered bool
		correct  bool
		marks    float64
		wantErr  bool
	}{
		{name: "correct option", response: "b", answered: true, correct: true, marks: 4},
		{name: "wrong option", response: "a", answered: true, correct: false, marks: -1},
		{name: "empty selection counts unanswered", response: "", marks: 0},
		{name: "non-string payload", response: 7.0, wantErr: true},
		{name: "list payload", response: []interface{}{"b"}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := g.Grade(context.Background(), q, tc.response)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrBadShape)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.answered, res.Answered)
			assert.Equal(t, tc.correct, res.Correct)
			assert.Equal(t, tc.marks, res.Marks)
		})
	}
}

func TestGradeMultipleCorrectExactSetOnly(t *testing.T) {
	q := Q{
		ID: "q2", Type: "multiple_correct",
		PositiveMarks: 4, NegativeMarks: -1,
		CorrectOptions: []string{"a", "c"},
	}
	g := NewGrader()

	tests := []struct {
		name     string
		response interface{}
		answered bool
		correct  bool
		marks    float64
	}{
		{name: "exact set any order", response: []interface{}{"c", "a"}, answered: true, correct: true, marks: 4},
		{name: "proper subset scores negative", response: []interface{}{"a"}, answered: true, correct: false, marks: -1},
		{name: "superset scores negative", response: []interface{}{"a", "c", "d"}, answered: true, correct: false, marks: -1},
		{name: "disjoint scores negative", response: []interface{}{"b"}, answered: true, correct: false, marks: -1},
		{name: "empty selection counts unanswered", response: []interface{}{}, marks: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := g.Grade(context.Background(), q, tc.response)
			require.NoError(t, err)
			assert.Equal(t, tc.answered, res.Answered)
			assert.Equal(t, tc.correct, res.Correct)
			assert.Equal(t, tc.marks, res.Marks)
		})
	}

	t.Run("non-list payload", func(t *testing.T) {
		_, err := g.Grade(context.Background(), q, "a")
		require.ErrorIs(t, err, ErrBadShape)
	})
}

func TestGradeInteger(t *testing.T) {
	q := Q{
		ID: "q3", Type: "integer",
		PositiveMarks: 4, NegativeMarks: -1,
		IntegerAnswer: intPtr(42),
	}
	g := NewGrader()

	res, err := g.Grade(context.Background(), q, 42.0)
	require.NoError(t, err)
	assert.True(t, res.Correct)
	assert.Equal(t, 4.0, res.Marks)

	res, err = g.Grade(context.Background(), q, 41.0)
	require.NoError(t, err)
	assert.False(t, res.Correct)
	assert.Equal(t, -1.0, res.Marks)

	_, err = g.Grade(context.Background(), q, 41.5)
	require.ErrorIs(t, err, ErrBadShape)

	_, err = g.Grade(context.Background(), q, "42")
	require.ErrorIs(t, err, ErrBadShape)
}

func TestGradeNumericalToleranceBoundary(t *testing.T) {
	q := Q{
		ID: "q4", Type: "numerical",
		PositiveMarks: 4, NegativeMarks: -1,
		Numerical: &NumericalKey{Value: 9.8, Tolerance: 0.1},
	}
	g := NewGrader()

	tests := []struct {
		name     string
		response float64
		correct  bool
	}{
		{name: "exact", response: 9.8, correct: true},
		{name: "at upper tolerance", response: 9.9, correct: true},
		{name: "at lower tolerance", response: 9.7, correct: true},
		{name: "one unit beyond", response: 10.0, correct: false},
		{name: "far off", response: 3.0, correct: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := g.Grade(context.Background(), q, tc.response)
			require.NoError(t, err)
			assert.Equal(t, tc.correct, res.Correct)
		})
	}
}

func TestGradeUnknownTypeRejected(t *testing.T) {
	g := NewGrader()
	_, err := g.Grade(context.Background(), Q{ID: "qx", Type: "essay"}, "anything")
	require.Error(t, err)
}

func TestScoreAttempt(t *testing.T) {
	qs := []Q{
		{ID: "q1", Type: "multiple_choice", PositiveMarks: 4, NegativeMarks: -1, CorrectOptions: []string{"a"}},
		{ID: "q2", Type: "integer", PositiveMarks: 4, NegativeMarks: -1, IntegerAnswer: intPtr(7)},
		{ID: "q3", Type: "numerical", PositiveMarks: 4, NegativeMarks: -2, Numerical: &NumericalKey{Value: 1.5, Tolerance: 0.5}},
	}
	g := NewGrader()

	t.Run("mixed outcomes", func(t *testing.T) {
		total, per, err := ScoreAttempt(context.Background(), g, qs, map[string]interface{}{
			"q1": "a", // +4
			"q2": 9.0, // wrong: -1
			// q3 unanswered: contributes 0, not its negative marks
		})
		require.NoError(t, err)
		assert.Equal(t, 3.0, total)
		assert.False(t, per["q3"].Answered)
		assert.Equal(t, 0.0, per["q3"].Marks)
	})

	t.Run("all unanswered totals zero", func(t *testing.T) {
		total, per, err := ScoreAttempt(context.Background(), g, qs, map[string]interface{}{})
		require.NoError(t, err)
		assert.Equal(t, 0.0, total)
		assert.Len(t, per, len(qs))
	})

	t.Run("shape error propagates", func(t *testing.T) {
		_, _, err := ScoreAttempt(context.Background(), g, qs, map[string]interface{}{
			"q2": "not a number",
		})
		require.ErrorIs(t, err, ErrBadShape)
	})
}
