package session

import (
	"errors"
	"fmt"
)

// ErrNotFound covers both a missing session and one owned by another user.
var ErrNotFound = errors.New("session not found")

// PersistenceError wraps a storage failure. It is never recovered locally.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s session: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
