package domain

import "errors"

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")

	// ErrAlreadyCompleted is returned when completing a record that has
	// already left PENDING. The first recorded outcome always wins.
	ErrAlreadyCompleted = errors.New("delivery already completed")

	// ErrNotRetryable covers records that can never be retried: the
	// original is still pending, succeeded, or its per-record retry
	// budget is exhausted.
	ErrNotRetryable = errors.New("delivery not retryable")

	// ErrRateLimited covers the global hourly retry budget: the record
	// itself stays eligible, try again later.
	ErrRateLimited = errors.New("retry rate limit exceeded")
)
