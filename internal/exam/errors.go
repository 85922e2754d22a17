package exam

import "errors"

// Sentinel errors surfaced to the HTTP layer, which maps them onto status
// codes. None of these are retryable; storage failures are returned as-is.
var (
	ErrNotFound           = errors.New("not found")
	ErrAttemptNotAllowed  = errors.New("attempt not allowed")
	ErrAlreadyCompleted   = errors.New("attempt already completed")
	ErrInvalidAnswerShape = errors.New("invalid answer shape")
)
