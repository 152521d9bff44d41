// Package counter allocates monotonically increasing, never reused IDs per
// named counter ("productId", "warehouseId", ...).
package counter

import (
	"context"
	"errors"
	"fmt"
)

// Store persists one int64 value per counter name.
//
// Implementations report backend failures as plain errors; the Allocator
// wraps them in ErrStorageUnavailable.
type Store interface {
	// Load returns the current value; found=false when the counter does not exist.
	Load(ctx context.Context, name string) (value int64, found bool, err error)
	// Create inserts the counter with value if it does not exist yet.
	// created=false means another writer created it first.
	Create(ctx context.Context, name string, value int64) (created bool, err error)
	// CompareAndSwap sets the counter to next only if it still equals current.
	CompareAndSwap(ctx context.Context, name string, current, next int64) (swapped bool, err error)
}

// Incrementer is implemented by stores with a native atomic add. IncrBy
// creates a missing counter at 0 before adding and returns the new value.
type Incrementer interface {
	IncrBy(ctx context.Context, name string, delta int64) (int64, error)
}

var (
	ErrStorageUnavailable = errors.New("counter: storage unavailable")
	ErrAllocationConflict = errors.New("counter: allocation conflict")
	ErrInvalidArgument    = errors.New("counter: invalid argument")
	ErrOverflow           = errors.New("counter: id space exhausted")
)

// AllocationError is returned when compare-and-swap kept losing races until
// the retry budget ran out. It matches both ErrAllocationConflict and
// ErrStorageUnavailable: the caller sees storage as unable to serve the request.
type AllocationError struct {
	Name     string
	Attempts int
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("counter %q: allocation conflict after %d attempts", e.Name, e.Attempts)
}

func (e *AllocationError) Unwrap() []error {
	return []error{ErrAllocationConflict, ErrStorageUnavailable}
}
