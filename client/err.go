package client

import (
	"errors"
	"fmt"
)

var (
	ErrConnClosed = errors.New("connection closed")

	// ErrTrailingBytes reports a response payload longer than what the
	// expected result shape could consume.
	ErrTrailingBytes = errors.New("trailing bytes in response payload")
)

// ServerError is a non-zero status code from a completed exchange. The
// status is preserved verbatim; interpreting specific codes is left to
// the caller.
type ServerError struct {
	Code uint32
}

func (e ServerError) Error() string {
	return fmt.Sprintf("server error: status %d", e.Code)
}
