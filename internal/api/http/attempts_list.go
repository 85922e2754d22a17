package http

import (
	"net/http"
	"strings"

	authmw "github.com/examforge/examforge/internal/auth/middleware"
	"github.com/examforge/examforge/internal/exam"
	"github.com/examforge/examforge/internal/rbac"
)

// GET /attempts?test_id=...&user_id=...&status=...&limit=50&offset=0
// Admins may list with any filters; everyone else is scoped to their own
// attempts regardless of the user_id parameter.
func ListAttemptsHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := rbac.RoleFromContext(r.Context())
		sub := authmw.SubjectFromContext(r.Context())

		userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
		if role != "admin" {
			userID = sub
		}
		list, err := store.ListAttempts(r.Context(), exam.AttemptListOpts{
			TestID: strings.TrimSpace(r.URL.Query().Get("test_id")),
			UserID: userID,
			Status: strings.TrimSpace(r.URL.Query().Get("status")),
			Limit:  parseIntDefault(r.URL.Query().Get("limit"), 50),
			Offset: parseIntDefault(r.URL.Query().Get("offset"), 0),
		})
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}
