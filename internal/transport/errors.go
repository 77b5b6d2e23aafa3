package transport

import (
	"errors"
	"fmt"
)

var ErrRequestFailed = errors.New("request failed")

// RequestFailedError is the single failure outcome of every backend call.
type RequestFailedError struct {
	Op     string // logical operation: health, chat, stt, tts, stop
	Status int    // HTTP status, 0 when no response was received
	Reason string
	Err    error
}

func (e *RequestFailedError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Reason, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *RequestFailedError) Unwrap() error { return e.Err }

func (e *RequestFailedError) Is(target error) bool { return target == ErrRequestFailed }

func failed(op string, status int, err error, format string, args ...any) error {
	return &RequestFailedError{Op: op, Status: status, Reason: fmt.Sprintf(format, args...), Err: err}
}
