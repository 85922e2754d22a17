package exam

import (
	"errors"
	"fmt"
	"time"
)

type QuestionType string

const (
	MultipleChoice  QuestionType = "multiple_choice"
	MultipleCorrect QuestionType = "multiple_correct"
	IntegerType     QuestionType = "integer"
	NumericalType   QuestionType = "numerical"
)

type AttemptStatus string

const (
	StatusNotStarted AttemptStatus = "not_started"
	StatusInProgress AttemptStatus = "in_progress"
	StatusCompleted  AttemptStatus = "completed"
)

const (
	DefaultPositiveMarks = 4
	DefaultNegativeMarks = -1
)

type Option struct {
	ID    string `json:"id"`
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

// NumericalAnswer is the key for numerical questions: any submission within
// Tolerance of Correct is accepted.
type NumericalAnswer struct {
	Correct   float64 `json:"correct"`
	Tolerance float64 `json:"tolerance"`
}

type Question struct {
	ID            string       `json:"id"`
	TestID        string       `json:"test_id"`
	Text          string       `json:"text"`
	Image         string       `json:"image,omitempty"`
	Type          QuestionType `json:"type"`
	Subject       string       `json:"subject,omitempty"`
	Topic         string       `json:"topic,omitempty"`
	PositiveMarks float64      `json:"positive_marks"`
	NegativeMarks float64      `json:"negative_marks"`

	// Exactly one of the key shapes below is populated, matching Type.
	Options        []Option         `json:"options,omitempty"`
	CorrectOptions []string         `json:"correct_options,omitempty"`
	IntegerAnswer  *int64           `json:"integer_answer,omitempty"`
	Numerical      *NumericalAnswer `json:"numerical,omitempty"`

	CreatedAt int64 `json:"created_at,omitempty"`
}

// Validate rejects questions whose answer key does not match their type, or
// that populate zero or multiple key shapes.
func (q Question) Validate() error {
	shapes := 0
	if len(q.CorrectOptions) > 0 {
		shapes++
	}
	if q.IntegerAnswer != nil {
		shapes++
	}
	if q.Numerical != nil {
		shapes++
	}
	if shapes != 1 {
		return fmt.Errorf("question %s: exactly one answer key shape required, got %d", q.ID, shapes)
	}
	switch q.Type {
	case MultipleChoice:
		if len(q.CorrectOptions) != 1 {
			return fmt.Errorf("question %s: multiple_choice needs exactly one correct option", q.ID)
		}
		return q.validateOptionRefs()
	case MultipleCorrect:
		if len(q.CorrectOptions) == 0 {
			return fmt.Errorf("question %s: multiple_correct needs correct options", q.ID)
		}
		return q.validateOptionRefs()
	case IntegerType:
		if q.IntegerAnswer == nil {
			return fmt.Errorf("question %s: integer answer required", q.ID)
		}
	case NumericalType:
		if q.Numerical == nil {
			return fmt.Errorf("question %s: numerical answer required", q.ID)
		}
		if q.Numerical.Tolerance < 0 {
			return fmt.Errorf("question %s: tolerance must be non-negative", q.ID)
		}
	default:
		return fmt.Errorf("question %s: unknown type %q", q.ID, q.Type)
	}
	return nil
}

func (q Question) validateOptionRefs() error {
	if len(q.Options) < 2 {
		return fmt.Errorf("question %s: at least two options required", q.ID)
	}
	ids := make(map[string]struct{}, len(q.Options))
	for _, o := range q.Options {
		if o.ID == "" {
			return fmt.Errorf("question %s: option id required", q.ID)
		}
		if _, dup := ids[o.ID]; dup {
			return fmt.Errorf("question %s: duplicate option id %q", q.ID, o.ID)
		}
		ids[o.ID] = struct{}{}
	}
	for _, c := range q.CorrectOptions {
		if _, ok := ids[c]; !ok {
			return fmt.Errorf("question %s: correct option %q not among options", q.ID, c)
		}
	}
	return nil
}

type Test struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	TestDate    string  `json:"test_date"`  // YYYY-MM-DD, venue-local
	StartTime   string  `json:"start_time"` // HH:MM wall clock
	DurationMin int     `json:"duration_min"`
	TotalMarks  float64 `json:"total_marks,omitempty"`
	CreatedBy   string  `json:"created_by,omitempty"`
	CreatedAt   int64   `json:"created_at,omitempty"`
}

// Validate fails fast on degenerate scheduling config; the runtime window
// gate (window.go) assumes these hold.
func (t Test) Validate() error {
	if t.Name == "" {
		return errors.New("test name required")
	}
	if t.DurationMin <= 0 {
		return errors.New("test duration must be positive")
	}
	if _, err := time.Parse(dateLayout, t.TestDate); err != nil {
		return fmt.Errorf("bad test date %q: %w", t.TestDate, err)
	}
	if t.StartTime != "" {
		if _, err := time.Parse(clockLayout, t.StartTime); err != nil {
			return fmt.Errorf("bad start time %q: %w", t.StartTime, err)
		}
	}
	return nil
}

func (t Test) Duration() time.Duration {
	return time.Duration(t.DurationMin) * time.Minute
}

// Attempt is one user's attempt at one test, keyed by (UserID, TestID).
// StartedAtMS is set once at creation and never changes; Score is mutable
// only through finalization.
type Attempt struct {
	UserID      string                 `json:"user_id"`
	TestID      string                 `json:"test_id"`
	Status      AttemptStatus          `json:"status"`
	StartedAtMS int64                  `json:"started_at_ms"`
	Score       float64                `json:"score"`
	AttemptedOn string                 `json:"attempted_on"` // ISO 8601
	Responses   map[string]interface{} `json:"responses,omitempty"`
}

func (a Attempt) StartedAt() time.Time {
	return time.UnixMilli(a.StartedAtMS)
}

type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Role      string `json:"role"` // student|admin|none
	CreatedAt int64  `json:"created_at,omitempty"`
}

type ListOpts struct {
	Q      string
	Limit  int
	Offset int
}

type AttemptListOpts struct {
	TestID string
	UserID string
	Status string
	Limit  int
	Offset int
}
