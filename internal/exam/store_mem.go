package exam

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type attemptKey struct {
	userID string
	testID string
}

// memoryStore backs tests and the offline single-binary mode. The attempts
// map keyed by (user, test) is the secondary index the SQL store gets from
// its primary key.
type memoryStore struct {
	mu        sync.RWMutex
	tests     map[string]Test
	questions map[string][]Question // testID -> questions
	users     map[string]User
	attempts  map[attemptKey]Attempt
}

func NewInMemoryStore() Store {
	return &memoryStore{
		tests:     map[string]Test{},
		questions: map[string][]Question{},
		users:     map[string]User{},
		attempts:  map[attemptKey]Attempt{},
	}
}

func (m *memoryStore) PutTest(_ context.Context, t Test) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tests[t.ID] = t
	return nil
}

func (m *memoryStore) GetTest(_ context.Context, id string) (Test, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tests[id]
	if !ok {
		return Test{}, fmt.Errorf("test %s: %w", id, ErrNotFound)
	}
	return t, nil
}

func (m *memoryStore) ListTests(_ context.Context, opts ListOpts) ([]Test, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Test, 0, len(m.tests))
	for _, t := range m.tests {
		if opts.Q != "" && !strings.Contains(strings.ToLower(t.Name), strings.ToLower(opts.Q)) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TestDate < out[j].TestDate })
	return page(out, opts.Offset, opts.Limit), nil
}

func (m *memoryStore) PutQuestion(_ context.Context, q Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tests[q.TestID]; !ok {
		return fmt.Errorf("test %s: %w", q.TestID, ErrNotFound)
	}
	qs := m.questions[q.TestID]
	for i, old := range qs {
		if old.ID == q.ID {
			qs[i] = q
			return nil
		}
	}
	m.questions[q.TestID] = append(qs, q)
	return nil
}

func (m *memoryStore) QuestionsByTest(_ context.Context, testID string) ([]Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	qs := m.questions[testID]
	out := make([]Question, len(qs))
	copy(out, qs)
	return out, nil
}

func (m *memoryStore) GetUser(_ context.Context, id string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return u, nil
}

func (m *memoryStore) PutUser(_ context.Context, u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *memoryStore) GetAttempt(_ context.Context, userID, testID string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[attemptKey{userID, testID}]
	if !ok {
		return Attempt{}, fmt.Errorf("attempt %s/%s: %w", userID, testID, ErrNotFound)
	}
	return cloneAttempt(a), nil
}

func (m *memoryStore) CreateAttempt(_ context.Context, a Attempt) (Attempt, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := attemptKey{a.UserID, a.TestID}
	if existing, ok := m.attempts[k]; ok {
		return cloneAttempt(existing), false, nil
	}
	m.attempts[k] = cloneAttempt(a)
	return a, true, nil
}

func (m *memoryStore) SaveResponses(_ context.Context, userID, testID string, resp map[string]interface{}) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := attemptKey{userID, testID}
	a, ok := m.attempts[k]
	if !ok {
		return Attempt{}, fmt.Errorf("attempt %s/%s: %w", userID, testID, ErrNotFound)
	}
	if a.Responses == nil {
		a.Responses = map[string]interface{}{}
	}
	for qid, v := range resp {
		a.Responses[qid] = v
	}
	m.attempts[k] = a
	return cloneAttempt(a), nil
}

func (m *memoryStore) FinalizeAttempt(_ context.Context, userID, testID string, score float64, _ time.Time) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := attemptKey{userID, testID}
	a, ok := m.attempts[k]
	if !ok {
		return Attempt{}, fmt.Errorf("attempt %s/%s: %w", userID, testID, ErrNotFound)
	}
	if a.Status == StatusCompleted {
		return cloneAttempt(a), ErrAlreadyCompleted
	}
	a.Status = StatusCompleted
	a.Score = score
	m.attempts[k] = a
	return cloneAttempt(a), nil
}

func (m *memoryStore) ListAttempts(_ context.Context, opts AttemptListOpts) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Attempt{}
	for _, a := range m.attempts {
		if opts.TestID != "" && a.TestID != opts.TestID {
			continue
		}
		if opts.UserID != "" && a.UserID != opts.UserID {
			continue
		}
		if opts.Status != "" && string(a.Status) != opts.Status {
			continue
		}
		out = append(out, cloneAttempt(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAtMS > out[j].StartedAtMS })
	return page(out, opts.Offset, opts.Limit), nil
}

func cloneAttempt(a Attempt) Attempt {
	if a.Responses != nil {
		resp := make(map[string]interface{}, len(a.Responses))
		for k, v := range a.Responses {
			resp[k] = v
		}
		a.Responses = resp
	}
	return a
}

func page[T any](in []T, offset, limit int) []T {
	if offset >= len(in) {
		return []T{}
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}
