package fetch

import "fmt"

// RequestError is returned when the API answers with a non-success status or
// a body that cannot be decoded into the expected shape. Message is meant to
// be shown to a user.
type RequestError struct {
	Method  string
	Path    string
	Status  int // zero when the failure happened before a response arrived
	Message string
	Err     error
}

func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: %d: %s", e.Method, e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Method, e.Path, e.Message)
}

func (e *RequestError) Unwrap() error { return e.Err }
