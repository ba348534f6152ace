package analysis

import "errors"

// busyError signals that another request is active (return 429).
type busyError struct{ activeID string }

func (e busyError) Error() string { return "busy: another analysis is in progress" }

// ErrBusy constructs a busyError for the active request id.
func ErrBusy(activeID string) error { return busyError{activeID: activeID} }

// IsBusy reports whether err indicates a single-flight rejection.
func IsBusy(err error) bool {
	var e busyError
	return errors.As(err, &e)
}

// backendNotReadyError signals that the engine failed to load or was never started.
type backendNotReadyError struct{}

func (backendNotReadyError) Error() string { return "backend not ready" }

func ErrBackendNotReady() error { return backendNotReadyError{} }

// IsBackendNotReady reports whether err indicates an unavailable engine (return 503).
func IsBackendNotReady(err error) bool {
	var e backendNotReadyError
	return errors.As(err, &e)
}

type backendInitializingError struct{}

func (backendInitializingError) Error() string { return "backend initializing" }

func ErrBackendInitializing() error { return backendInitializingError{} }

// IsBackendInitializing reports whether err indicates the engine is still loading.
func IsBackendInitializing(err error) bool {
	var e backendInitializingError
	return errors.As(err, &e)
}

type emptyInputError struct{}

func (emptyInputError) Error() string { return "empty input" }

func ErrEmptyInput() error { return emptyInputError{} }

// IsEmptyInput reports whether err indicates a blank prompt (return 400).
func IsEmptyInput(err error) bool {
	var e emptyInputError
	return errors.As(err, &e)
}

type closedError struct{}

func (closedError) Error() string { return "analysis supervisor closed" }

func ErrClosed() error { return closedError{} }

// IsClosed reports whether err indicates admission after Close.
func IsClosed(err error) bool {
	var e closedError
	return errors.As(err, &e)
}

// ErrPartialDropped is returned by Stream.Partial when the partial buffer is full.
var ErrPartialDropped = errors.New("partial notification dropped")

// ErrSettled is returned by Stream when a notification arrives after the terminal one.
var ErrSettled = errors.New("stream already settled")

// rejectionLabel maps admission errors to the admissions metric label.
func rejectionLabel(err error) string {
	switch {
	case IsBusy(err):
		return "busy"
	case IsEmptyInput(err):
		return "empty_input"
	case IsBackendInitializing(err):
		return "initializing"
	case IsBackendNotReady(err):
		return "not_ready"
	case IsClosed(err):
		return "closed"
	default:
		return "other"
	}
}
