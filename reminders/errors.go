package reminders

import "fmt"

// DataError reports a failed read or write against the data source. The
// message is the data source's own.
type DataError struct {
	Collection string
	Err        error
}

func (e *DataError) Error() string {
	return e.Err.Error()
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// DispatchError reports that the dispatch action failed or was unreachable.
type DispatchError struct {
	Err error
}

func (e *DispatchError) Error() string {
	return "dispatch failed: " + e.Err.Error()
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
