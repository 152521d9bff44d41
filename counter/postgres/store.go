// Package postgres keeps counters in a single "counters" table.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/unkn0wn-root/stockcore/counter"
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const table = "counters"

type Store struct {
	db *sql.DB
}

var (
	_ counter.Store       = (*Store)(nil)
	_ counter.Incrementer = (*Store)(nil)
)

func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("postgres counter: nil db")
	}
	return &Store{db: db}, nil
}

func (s *Store) Load(ctx context.Context, name string) (int64, bool, error) {
	query, args, err := psq.Select("value").From(table).Where(sq.Eq{"name": name}).ToSql()
	if err != nil {
		return 0, false, fmt.Errorf("building load query: %w", err)
	}
	var v int64
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("loading counter: %w", err)
	}
	return v, true, nil
}

func (s *Store) Create(ctx context.Context, name string, value int64) (bool, error) {
	query, args, err := psq.Insert(table).
		Columns("name", "value").
		Values(name, value).
		Suffix("ON CONFLICT (name) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("building create query: %w", err)
	}
	return s.execOne(ctx, "creating counter", query, args)
}

func (s *Store) CompareAndSwap(ctx context.Context, name string, current, next int64) (bool, error) {
	query, args, err := psq.Update(table).
		Set("value", next).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"name": name, "value": current}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("building cas query: %w", err)
	}
	return s.execOne(ctx, "swapping counter", query, args)
}

// IncrBy upserts in one statement, so concurrent callers serialize on the row lock.
func (s *Store) IncrBy(ctx context.Context, name string, delta int64) (int64, error) {
	query, args, err := psq.Insert(table).
		Columns("name", "value").
		Values(name, delta).
		Suffix("ON CONFLICT (name) DO UPDATE SET value = "+table+".value + EXCLUDED.value, updated_at = NOW() RETURNING value").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building increment query: %w", err)
	}
	var v int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&v); err != nil {
		return 0, fmt.Errorf("incrementing counter: %w", err)
	}
	return v, nil
}

func (s *Store) execOne(ctx context.Context, what, query string, args []any) (bool, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", what, err)
	}
	return n == 1, nil
}
