package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/examforge/examforge/internal/exam"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDomainErr maps the exam error taxonomy onto status codes. Anything
// outside the taxonomy is a storage or programming failure and stays a 500.
func writeDomainErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, exam.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, exam.ErrAttemptNotAllowed):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, exam.ErrAlreadyCompleted):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, exam.ErrInvalidAnswerShape):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
