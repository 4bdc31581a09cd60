package database

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("not found")

// TransportError reports that the database was unreachable or rejected a call.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func transport(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Op: op, Err: err}
}

// IsTransport reports whether err came from the remote store.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
