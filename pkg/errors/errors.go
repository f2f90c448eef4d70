package errors

import (
	"errors"
	"fmt"
)

var (
	ErrReauthRequired   = errors.New("re-authentication required")
	ErrSyncRunning      = errors.New("sync is already running")
	ErrNoSuccessfulSync = errors.New("no successful sync has completed")
	ErrStudentNotFound  = errors.New("student not found in synced data")
)

// TransientError marks a failure worth retrying: network errors, 5xx
// responses, rate-limit signals. The fetcher absorbs these up to its
// retry bound; anything still wrapped after that escalates as-is.
type TransientError struct {
	Err     error
	Message string
}

func (e TransientError) Error() string {
	return fmt.Sprintf("transient error: %s - %s", e.Message, e.Err.Error())
}

func (e TransientError) Unwrap() error {
	return e.Err
}

func NewTransientError(err error, message string) error {
	return TransientError{
		Err:     err,
		Message: message,
	}
}

func IsTransient(err error) bool {
	var te TransientError
	return errors.As(err, &te)
}

// FetchError identifies which resource kind, and for child resources which
// course, was in flight when a non-transient fetch failure aborted a run.
type FetchError struct {
	Kind     string
	CourseID string
	Err      error
}

func (e FetchError) Error() string {
	if e.CourseID == "" {
		return fmt.Sprintf("fetching %s: %s", e.Kind, e.Err.Error())
	}
	return fmt.Sprintf("fetching %s for course %s: %s", e.Kind, e.CourseID, e.Err.Error())
}

func (e FetchError) Unwrap() error {
	return e.Err
}

// ValidationWarning records one skipped record. It is carried on the sync
// run for visibility and never propagates as a failure.
type ValidationWarning struct {
	Kind     string
	RemoteID string
	Message  string
}

func (w ValidationWarning) String() string {
	return fmt.Sprintf("%s %s: %s", w.Kind, w.RemoteID, w.Message)
}
