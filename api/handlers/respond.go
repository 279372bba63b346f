package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"civicwatch/core/identity"
	"civicwatch/core/incidents"
)

// requestToken pulls the session credential the same way the session
// middleware does; handlers forward it to the orchestrator untouched.
func requestToken(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); strings.HasPrefix(strings.ToLower(h), "bearer ") {
		return strings.TrimSpace(h[len("bearer "):])
	}
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return false
	}
	return true
}

func urlParam(r *http.Request, key string) string {
	return chi.URLParam(r, key)
}

// respondServiceError translates orchestrator error kinds to HTTP
// statuses, with the user-facing body built by FailureResult.
func respondServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var invalid *incidents.InvalidInputError
	switch {
	case errors.As(err, &invalid):
		status = http.StatusBadRequest
	case errors.Is(err, identity.ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, incidents.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, incidents.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, incidents.ErrInvalidTransition), errors.Is(err, incidents.ErrAlreadyTerminal):
		status = http.StatusConflict
	case errors.Is(err, incidents.ErrEmptyNote):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, incidents.FailureResult(err))
}
