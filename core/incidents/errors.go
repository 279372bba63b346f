package incidents

import (
	"errors"
	"fmt"
	"strings"

	"civicwatch/core/identity"
)

var (
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrAlreadyTerminal   = errors.New("incident already terminal")
	ErrEmptyNote         = errors.New("empty note")
	// ErrPersistence wraps any store failure, including an exhausted
	// conflict retry; backend details never reach the caller.
	ErrPersistence = errors.New("persistence failure")
)

type FieldIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type InvalidInputError struct {
	Issues []FieldIssue
}

func (e *InvalidInputError) Error() string {
	if len(e.Issues) == 0 {
		return "invalid input"
	}
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, fmt.Sprintf("%s: %s", issue.Field, issue.Message))
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// Result is the shape every mutating use case returns to its caller.
type Result struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Issues  []FieldIssue `json:"issues,omitempty"`
}

// FailureResult maps a service error to the caller-facing result
// without leaking internals.
func FailureResult(err error) Result {
	var invalid *InvalidInputError
	switch {
	case errors.As(err, &invalid):
		return Result{Message: "invalid input", Issues: invalid.Issues}
	case errors.Is(err, identity.ErrUnauthenticated):
		return Result{Message: "authentication required"}
	case errors.Is(err, ErrForbidden):
		return Result{Message: "not permitted"}
	case errors.Is(err, ErrNotFound):
		return Result{Message: "incident not found"}
	case errors.Is(err, ErrInvalidTransition):
		return Result{Message: "status change not allowed from the current status"}
	case errors.Is(err, ErrAlreadyTerminal):
		return Result{Message: "incident is closed and can no longer change"}
	case errors.Is(err, ErrEmptyNote):
		return Result{Message: "note text is required"}
	default:
		return Result{Message: "the change could not be saved, try again"}
	}
}
