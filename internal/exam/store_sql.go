package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	syncx "github.com/examforge/examforge/internal/sync"
)

// SQLStore persists the exam domain over database/sql ("sqlite" or
// "postgres"). Attempt rows are keyed by the (user_id, test_id) primary key,
// which makes CreateAttempt an atomic insert-if-absent, and attempt
// transitions are appended to the event log for audit.
type SQLStore struct {
	db     *sql.DB
	driver string
	events *syncx.EventRepo
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver, events: syncx.NewEventRepo(db)}
}

func (s *SQLStore) PutTest(ctx context.Context, t Test) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tests (id,name,description,test_date,start_time,duration_min,total_marks,created_by,created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, description=EXCLUDED.description,
		   test_date=EXCLUDED.test_date, start_time=EXCLUDED.start_time,
		   duration_min=EXCLUDED.duration_min, total_marks=EXCLUDED.total_marks`,
		t.ID, t.Name, t.Description, t.TestDate, t.StartTime, t.DurationMin, t.TotalMarks, t.CreatedBy, time.Now().Unix())
	return err
}

func (s *SQLStore) GetTest(ctx context.Context, id string) (Test, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,name,description,test_date,start_time,duration_min,total_marks,created_by,created_at
		 FROM tests WHERE id=$1`, id)
	var t Test
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &t.TestDate, &t.StartTime,
		&t.DurationMin, &t.TotalMarks, &t.CreatedBy, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Test{}, fmt.Errorf("test %s: %w", id, ErrNotFound)
		}
		return Test{}, err
	}
	return t, nil
}

func (s *SQLStore) ListTests(ctx context.Context, opts ListOpts) ([]Test, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	q := opts.Q + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,name,description,test_date,start_time,duration_min,total_marks,created_by,created_at
		 FROM tests WHERE name LIKE $1 ORDER BY test_date, name LIMIT $2 OFFSET $3`,
		q, limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Test{}
	for rows.Next() {
		var t Test
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.TestDate, &t.StartTime,
			&t.DurationMin, &t.TotalMarks, &t.CreatedBy, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLStore) PutQuestion(ctx context.Context, q Question) error {
	if _, err := s.GetTest(ctx, q.TestID); err != nil {
		return err
	}
	body, err := json.Marshal(q)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO questions (id,test_id,body_json,created_at) VALUES ($1,$2,$3,$4)
		 ON CONFLICT (id) DO UPDATE SET body_json=EXCLUDED.body_json`,
		q.ID, q.TestID, string(body), time.Now().Unix())
	return err
}

func (s *SQLStore) QuestionsByTest(ctx context.Context, testID string) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT body_json FROM questions WHERE test_id=$1 ORDER BY created_at, id`, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Question{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var q Question
		if err := json.Unmarshal([]byte(body), &q); err != nil {
			return nil, fmt.Errorf("question row in test %s: %w", testID, err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetUser(ctx context.Context, id string) (User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,username,role,created_at FROM users WHERE id=$1 OR username=$1`, id)
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.Role, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return User{}, err
	}
	return u, nil
}

func (s *SQLStore) PutUser(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET username=$1, role=$2 WHERE id=$3`, u.Username, u.Role, u.ID)
	return err
}

func (s *SQLStore) GetAttempt(ctx context.Context, userID, testID string) (Attempt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id,test_id,status,started_at_ms,score,attempted_on,responses_json
		 FROM attempts WHERE user_id=$1 AND test_id=$2`, userID, testID)
	return scanAttempt(row)
}

func (s *SQLStore) CreateAttempt(ctx context.Context, a Attempt) (Attempt, bool, error) {
	resp, err := json.Marshal(a.Responses)
	if err != nil {
		return Attempt{}, false, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts (user_id,test_id,status,started_at_ms,score,attempted_on,responses_json)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (user_id,test_id) DO NOTHING`,
		a.UserID, a.TestID, string(a.Status), a.StartedAtMS, a.Score, a.AttemptedOn, string(resp))
	if err != nil {
		return Attempt{}, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Attempt{}, false, err
	}
	if n == 0 {
		existing, err := s.GetAttempt(ctx, a.UserID, a.TestID)
		return existing, false, err
	}
	s.logEvent(ctx, syncx.EventAttemptStarted, a)
	return a, true, nil
}

func (s *SQLStore) SaveResponses(ctx context.Context, userID, testID string, resp map[string]interface{}) (Attempt, error) {
	a, err := s.GetAttempt(ctx, userID, testID)
	if err != nil {
		return Attempt{}, err
	}
	if a.Responses == nil {
		a.Responses = map[string]interface{}{}
	}
	for qid, v := range resp {
		a.Responses[qid] = v
	}
	buf, err := json.Marshal(a.Responses)
	if err != nil {
		return Attempt{}, err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE attempts SET responses_json=$1 WHERE user_id=$2 AND test_id=$3`,
		string(buf), userID, testID)
	if err != nil {
		return Attempt{}, err
	}
	return a, nil
}

func (s *SQLStore) FinalizeAttempt(ctx context.Context, userID, testID string, score float64, at time.Time) (Attempt, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE attempts SET status=$1, score=$2, completed_at=$3
		 WHERE user_id=$4 AND test_id=$5 AND status=$6`,
		string(StatusCompleted), score, at.Unix(), userID, testID, string(StatusInProgress))
	if err != nil {
		return Attempt{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Attempt{}, err
	}
	a, err := s.GetAttempt(ctx, userID, testID)
	if err != nil {
		return Attempt{}, err
	}
	if n == 0 {
		if a.Status == StatusCompleted {
			return a, ErrAlreadyCompleted
		}
		return Attempt{}, fmt.Errorf("finalize attempt %s/%s: unexpected status %s", userID, testID, a.Status)
	}
	s.logEvent(ctx, syncx.EventAttemptSubmitted, a)
	return a, nil
}

func (s *SQLStore) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	// Empty filter strings match everything.
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id,test_id,status,started_at_ms,score,attempted_on,responses_json
		 FROM attempts
		 WHERE ($1 = '' OR test_id = $1)
		   AND ($2 = '' OR user_id = $2)
		   AND ($3 = '' OR status = $3)
		 ORDER BY started_at_ms DESC LIMIT $4 OFFSET $5`,
		opts.TestID, opts.UserID, opts.Status, limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (Attempt, error) {
	var a Attempt
	var status, rjson string
	if err := row.Scan(&a.UserID, &a.TestID, &status, &a.StartedAtMS, &a.Score, &a.AttemptedOn, &rjson); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Attempt{}, fmt.Errorf("attempt: %w", ErrNotFound)
		}
		return Attempt{}, err
	}
	a.Status = AttemptStatus(status)
	if err := json.Unmarshal([]byte(rjson), &a.Responses); err != nil {
		a.Responses = map[string]interface{}{}
	}
	return a, nil
}

// logEvent appends an audit record; failures are swallowed because the log
// is advisory and the owning write already committed.
func (s *SQLStore) logEvent(ctx context.Context, typ string, a Attempt) {
	data, err := json.Marshal(a)
	if err != nil {
		return
	}
	_ = s.events.Append(ctx, syncx.Event{
		Type:     typ,
		Key:      a.UserID + "/" + a.TestID,
		DataJSON: string(data),
	})
}
