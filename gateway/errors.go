package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrUnreachable covers timeouts, connection failures and exhausted retries.
	ErrUnreachable = errors.New("payment gateway unreachable")
	// ErrSignature means the credentials are missing or were refused. Never retried.
	ErrSignature = errors.New("payment gateway rejected credentials")
	// ErrMalformedResponse is returned when the processor reply cannot be decoded.
	ErrMalformedResponse = errors.New("malformed payment gateway response")
)

// RejectedError is a business-level refusal by the processor. Message is
// passed through verbatim.
type RejectedError struct {
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("payment gateway rejected request: %s", e.Message)
	}
	return fmt.Sprintf("payment gateway rejected request (%s): %s", e.Code, e.Message)
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}
