// Package memory is an in-process remote.Repository for tests and demos.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/unkn0wn-root/stockcore/remote"
)

const defaultPageSize = 100

// Table keeps records in insertion order. Page tokens are offsets.
type Table[T any, ID comparable] struct {
	entity    string
	idOf      func(T) ID
	versionOf func(T) int64

	mu    sync.RWMutex
	order []ID
	rows  map[ID]T

	// Fail, when set, is returned (wrapped in *remote.Error) by every call.
	failMu sync.RWMutex
	fail   error
}

var _ remote.Repository[struct{}, int] = (*Table[struct{}, int])(nil)

func NewTable[T any, ID comparable](entity string, idOf func(T) ID) *Table[T, ID] {
	return &Table[T, ID]{entity: entity, idOf: idOf, rows: make(map[ID]T)}
}

// WithVersion enables UpdateIf, reading a record's version with versionOf.
func (t *Table[T, ID]) WithVersion(versionOf func(T) int64) *Table[T, ID] {
	t.versionOf = versionOf
	return t
}

// SetFailure makes every following call fail with err; nil restores service.
func (t *Table[T, ID]) SetFailure(err error) {
	t.failMu.Lock()
	t.fail = err
	t.failMu.Unlock()
}

func (t *Table[T, ID]) failure(op string) error {
	t.failMu.RLock()
	defer t.failMu.RUnlock()
	if t.fail != nil {
		return &remote.Error{Entity: t.entity, Op: op, Err: t.fail}
	}
	return nil
}

func (t *Table[T, ID]) Get(ctx context.Context, id ID) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if err := t.failure("get"); err != nil {
		return zero, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.rows[id]
	if !ok {
		return zero, fmt.Errorf("%s %v: %w", t.entity, id, remote.ErrNotFound)
	}
	return v, nil
}

func (t *Table[T, ID]) List(ctx context.Context, req remote.PageRequest) (remote.Page[T], error) {
	if err := ctx.Err(); err != nil {
		return remote.Page[T]{}, err
	}
	if err := t.failure("list"); err != nil {
		return remote.Page[T]{}, err
	}
	off := 0
	if req.Token != "" {
		n, err := strconv.Atoi(req.Token)
		if err != nil || n < 0 {
			return remote.Page[T]{}, &remote.Error{Entity: t.entity, Op: "list", Err: fmt.Errorf("bad page token %q", req.Token)}
		}
		off = n
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	if off >= len(t.order) {
		return remote.Page[T]{}, nil
	}
	end := min(off+limit, len(t.order))
	items := make([]T, 0, end-off)
	for _, id := range t.order[off:end] {
		items = append(items, t.rows[id])
	}
	p := remote.Page[T]{Items: items}
	if end < len(t.order) {
		p.Next = strconv.Itoa(end)
	}
	return p, nil
}

// Create is all-or-nothing: one conflicting ID rejects the whole batch.
func (t *Table[T, ID]) Create(ctx context.Context, items ...T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.failure("create"); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	seen := make(map[ID]struct{}, len(items))
	for _, it := range items {
		id := t.idOf(it)
		if _, ok := t.rows[id]; ok {
			return fmt.Errorf("%s %v: %w", t.entity, id, remote.ErrConflict)
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("%s %v: duplicate in batch: %w", t.entity, id, remote.ErrConflict)
		}
		seen[id] = struct{}{}
	}
	for _, it := range items {
		id := t.idOf(it)
		t.rows[id] = it
		t.order = append(t.order, id)
	}
	return nil
}

func (t *Table[T, ID]) Update(ctx context.Context, item T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.failure("update"); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.idOf(item)
	if _, ok := t.rows[id]; !ok {
		return fmt.Errorf("%s %v: %w", t.entity, id, remote.ErrNotFound)
	}
	t.rows[id] = item
	return nil
}

func (t *Table[T, ID]) UpdateIf(ctx context.Context, item T, expected int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.failure("update"); err != nil {
		return err
	}
	if t.versionOf == nil {
		return &remote.Error{Entity: t.entity, Op: "update", Err: errors.New("table is not versioned")}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.idOf(item)
	cur, ok := t.rows[id]
	if !ok {
		return fmt.Errorf("%s %v: %w", t.entity, id, remote.ErrNotFound)
	}
	if v := t.versionOf(cur); v != expected {
		return fmt.Errorf("%s %v: version %d, expected %d: %w", t.entity, id, v, expected, remote.ErrConflict)
	}
	t.rows[id] = item
	return nil
}

// Len reports the number of stored records.
func (t *Table[T, ID]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}
