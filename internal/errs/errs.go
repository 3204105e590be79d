// Package errs defines the error taxonomy shared by the aggregation and
// streaming paths. Callers classify with errors.As / errors.Is.
package errs

import (
	"errors"
	"fmt"
)

// ResolutionError reports an unknown venue or market identifier. It rejects
// the whole request and is never retried.
type ResolutionError struct {
	ID string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve venue-market %q", e.ID)
}

// SourceUnavailable means an adapter could not produce any data. The affected
// venue pair is dropped from the result; the request itself continues.
type SourceUnavailable struct {
	Source string
	Err    error
}

func (e *SourceUnavailable) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("source %s unavailable: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("source %s unavailable", e.Source)
}

func (e *SourceUnavailable) Unwrap() error { return e.Err }

// TransientNetwork marks a timeout or a designated resend upstream code.
// It is retried immediately up to the hard cap, then degraded to
// SourceUnavailable by the caller.
type TransientNetwork struct {
	Err error
}

func (e *TransientNetwork) Error() string {
	return fmt.Sprintf("transient network error: %v", e.Err)
}

func (e *TransientNetwork) Unwrap() error { return e.Err }

// FatalUpstream marks a designated stop upstream code (bad signature,
// nonexistent listen key). The current operation aborts immediately.
type FatalUpstream struct {
	Code    int64
	Message string
}

func (e *FatalUpstream) Error() string {
	return fmt.Sprintf("fatal upstream error %d: %s", e.Code, e.Message)
}

// ErrStreamDisconnect is an unexpected transport closure while streaming.
// It triggers a reconnect unless the session was closed normally.
var ErrStreamDisconnect = errors.New("stream disconnected")

// IsTransient reports whether err should be retried in place.
func IsTransient(err error) bool {
	var t *TransientNetwork
	return errors.As(err, &t)
}

// IsFatal reports whether err must abort the current operation.
func IsFatal(err error) bool {
	var f *FatalUpstream
	return errors.As(err, &f)
}

// BizError is the business failure carried in a success-shaped transport
// response: non-zero code plus a human readable message.
type BizError struct {
	Code    int
	Message string
}

func (e *BizError) Error() string { return e.Message }

// Of wraps a message into a generic business failure with code 1.
func Of(msg string) *BizError {
	return &BizError{Code: 1, Message: msg}
}
