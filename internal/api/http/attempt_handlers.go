package http

import (
	"encoding/json"
	"errors"
	"net/http"

	authmw "github.com/examforge/examforge/internal/auth/middleware"
	"github.com/examforge/examforge/internal/exam"

	"github.com/go-chi/chi/v5"
)

// POST /tests/{testID}/attempt starts or resumes the caller's attempt.
// Re-attempting a completed test is not an error; the response carries the
// final score.
func AttemptHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := authmw.SubjectFromContext(r.Context())
		testID := chi.URLParam(r, "testID")
		out, err := svc.Attempt(r.Context(), userID, testID)
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// GET /tests/{testID}/attempt reports the current outcome without creating
// anything. Reads past the
// deadline observe the lazily finalized record.
func AttemptStatusHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := authmw.SubjectFromContext(r.Context())
		testID := chi.URLParam(r, "testID")
		out, err := svc.Status(r.Context(), userID, testID)
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// POST /tests/{testID}/responses saves partial answers mid-attempt.
func SaveResponsesHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := authmw.SubjectFromContext(r.Context())
		testID := chi.URLParam(r, "testID")
		var resp map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&resp); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		a, err := svc.SaveResponses(r.Context(), userID, testID, resp)
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// POST /tests/{testID}/submit scores and finalizes.
func SubmitHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := authmw.SubjectFromContext(r.Context())
		testID := chi.URLParam(r, "testID")
		var answers map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&answers); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		res, err := svc.Submit(r.Context(), userID, testID, answers)
		if err != nil {
			if errors.Is(err, exam.ErrAlreadyCompleted) {
				// Idempotent callers get the final record alongside the 409.
				writeJSON(w, http.StatusConflict, res.Attempt)
				return
			}
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
