// Package remote is the typed boundary to the external data store that owns
// business records. Callers depend on Repository; the transport behind it is
// not stockcore's concern.
package remote

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("remote: not found")
	ErrConflict = errors.New("remote: conflict")
)

// Error is a backend failure while talking to the remote store.
type Error struct {
	Entity string
	Op     string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("remote %s %s: %v", e.Entity, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// PageRequest asks for up to Limit records after Token. "" starts at the
// beginning; Limit <= 0 means the repository default.
type PageRequest struct {
	Token string
	Limit int
}

// Page holds one slice of results. Next is "" on the last page.
type Page[T any] struct {
	Items []T
	Next  string
}

type Repository[T any, ID comparable] interface {
	Get(ctx context.Context, id ID) (T, error)
	List(ctx context.Context, req PageRequest) (Page[T], error)
	// Create fails with ErrConflict when a record with the same ID exists.
	Create(ctx context.Context, items ...T) error
	// Update fails with ErrNotFound when the record does not exist.
	Update(ctx context.Context, item T) error
	// UpdateIf is Update guarded by the stored record's version. It fails with
	// ErrConflict when that version is no longer expected.
	UpdateIf(ctx context.Context, item T, expected int64) error
}

// All drains every page of r.
func All[T any, ID comparable](ctx context.Context, r Repository[T, ID], pageSize int) ([]T, error) {
	var (
		out []T
		req = PageRequest{Limit: pageSize}
	)
	for {
		p, err := r.List(ctx, req)
		if err != nil {
			return nil, err
		}
		out = append(out, p.Items...)
		if p.Next == "" {
			return out, nil
		}
		req.Token = p.Next
	}
}
