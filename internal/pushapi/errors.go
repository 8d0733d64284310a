package pushapi

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrAuth is returned when no access token is supplied. No request is made.
	ErrAuth = errors.New("invalid token")

	// ErrTransport marks network, timeout and decode failures talking to the
	// push API.
	ErrTransport = errors.New("push api transport error")
)

// StatusError is a non-success HTTP response from the push API.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: push api status %d: %s", e.Op, e.Code, e.Body)
}

// Is lets errors.Is(err, ErrTransport) match status failures too.
func (e *StatusError) Is(target error) bool { return target == ErrTransport }

// transportErr wraps a lower-level failure so it matches ErrTransport while
// keeping the original cause reachable.
type transportErr struct {
	op    string
	cause error
}

func (e *transportErr) Error() string        { return e.op + ": " + ErrTransport.Error() + ": " + e.cause.Error() }
func (e *transportErr) Unwrap() error        { return e.cause }
func (e *transportErr) Is(target error) bool { return target == ErrTransport }

func wrapTransport(op string, err error) error {
	return &transportErr{op: op, cause: errors.WithStack(err)}
}
