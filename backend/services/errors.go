package services

import "errors"

// Service-level errors; controllers map these onto HTTP statuses.
var (
	ErrTestUnavailable  = errors.New("test unavailable")
	ErrNoAttemptsLeft   = errors.New("no attempts left")
	ErrNotOwner         = errors.New("attempt not found")
	ErrNotInProgress    = errors.New("attempt is not in progress")
	ErrAlreadySubmitted = errors.New("attempt already submitted")
	ErrAttemptExpired   = errors.New("attempt expired")
	ErrPayloadMismatch  = errors.New("answer payload does not match question type")
	ErrNotGradable      = errors.New("answer is not manually gradable")
	ErrNotAllGraded     = errors.New("not every answer has been graded")
	ErrNotSubmitted     = errors.New("attempt not yet submitted")
)
