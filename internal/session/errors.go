package session

import (
	"errors"
	"fmt"
)

// Sentinel errors for caller branching via errors.Is. Messages are stable
// prefixes clients may match on.
var (
	ErrNotFound = errors.New("session not found")
	ErrCapacity = errors.New("maximum sessions reached")
)

// CapacityError reports a failed admission while the registry is full and
// every session is busy. It unwraps to ErrCapacity and names the limit.
type CapacityError struct {
	Limit int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("maximum sessions reached (limit %d)", e.Limit)
}

func (e *CapacityError) Is(target error) bool {
	return target == ErrCapacity
}
