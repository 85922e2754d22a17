package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	authmw "github.com/examforge/examforge/internal/auth/middleware"
	"github.com/examforge/examforge/internal/exam"
	"github.com/examforge/examforge/internal/rbac"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// POST /tests (admin). Degenerate schedules (duration <= 0, bad dates) are
// rejected here, before anything is persisted.
func CreateTestHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var t exam.Test
		if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		t.ID = uuid.NewString()
		t.CreatedBy = authmw.SubjectFromContext(r.Context())
		t.CreatedAt = time.Now().Unix()
		if err := t.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := store.PutTest(r.Context(), t); err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, t)
	}
}

// GET /tests
func ListTestsHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts := exam.ListOpts{
			Q:      r.URL.Query().Get("q"),
			Limit:  parseIntDefault(r.URL.Query().Get("limit"), 50),
			Offset: parseIntDefault(r.URL.Query().Get("offset"), 0),
		}
		list, err := store.ListTests(r.Context(), opts)
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GET /tests/{testID}
func GetTestHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := store.GetTest(r.Context(), chi.URLParam(r, "testID"))
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

// POST /tests/{testID}/questions (admin). Marks default to +4/-1 when the
// payload omits them; the answer key must match the declared type exactly.
func CreateQuestionHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			exam.Question
			PositiveMarks *float64 `json:"positive_marks"`
			NegativeMarks *float64 `json:"negative_marks"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		q := req.Question
		q.ID = uuid.NewString()
		q.TestID = chi.URLParam(r, "testID")
		q.CreatedAt = time.Now().Unix()
		q.PositiveMarks = exam.DefaultPositiveMarks
		if req.PositiveMarks != nil {
			q.PositiveMarks = *req.PositiveMarks
		}
		q.NegativeMarks = exam.DefaultNegativeMarks
		if req.NegativeMarks != nil {
			q.NegativeMarks = *req.NegativeMarks
		}
		if q.Text == "" {
			http.Error(w, "question text required", http.StatusBadRequest)
			return
		}
		if err := q.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := store.PutQuestion(r.Context(), q); err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, q)
	}
}

// GET /tests/{testID}/questions. Students get the question set with answer
// keys stripped; admins see the full records.
func ListQuestionsHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		qs, err := store.QuestionsByTest(r.Context(), chi.URLParam(r, "testID"))
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		if rbac.RoleFromContext(r.Context()) != "admin" {
			for i := range qs {
				qs[i].CorrectOptions = nil
				qs[i].IntegerAnswer = nil
				qs[i].Numerical = nil
			}
		}
		writeJSON(w, http.StatusOK, qs)
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
