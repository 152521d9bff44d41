package counter

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/unkn0wn-root/stockcore/logx"
)

// MaxRange is the largest count one AllocateRange call may reserve.
const MaxRange = 1 << 20

const (
	defaultMaxAttempts = 16
	defaultBaseBackoff = 2 * time.Millisecond
	defaultMaxBackoff  = 50 * time.Millisecond
)

type Options struct {
	// MaxAttempts bounds the compare-and-swap loop. 0 => 16.
	MaxAttempts int
	// BaseBackoff/MaxBackoff shape the jittered exponential wait between lost
	// races. 0 => 2ms / 50ms. Negative disables waiting.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// DisableNative forces the compare-and-swap loop even when the store
	// implements Incrementer.
	DisableNative bool
	Logger        logx.Logger
}

// Allocator hands out IDs from a Store. Safe for concurrent use; uniqueness
// across processes comes from the store's compare-and-swap or native increment.
type Allocator struct {
	store       Store
	incr        Incrementer
	maxAttempts int
	base, max   time.Duration
	log         logx.Logger
}

func NewAllocator(store Store, opts Options) (*Allocator, error) {
	if store == nil {
		return nil, errors.New("counter: store is required")
	}
	a := &Allocator{
		store:       store,
		maxAttempts: opts.MaxAttempts,
		base:        opts.BaseBackoff,
		max:         opts.MaxBackoff,
		log:         logx.OrNop(opts.Logger),
	}
	if a.maxAttempts <= 0 {
		a.maxAttempts = defaultMaxAttempts
	}
	if a.base == 0 {
		a.base = defaultBaseBackoff
	}
	if a.max == 0 {
		a.max = defaultMaxBackoff
	}
	if inc, ok := store.(Incrementer); ok && !opts.DisableNative {
		a.incr = inc
	}
	return a, nil
}

// AllocateRange reserves count contiguous IDs for name and returns them in
// ascending order. Every returned ID is strictly greater than any ID
// previously issued for name.
func (a *Allocator) AllocateRange(ctx context.Context, name string, count int) ([]int64, error) {
	if name == "" || count <= 0 || count > MaxRange {
		return nil, fmt.Errorf("%w: name=%q count=%d", ErrInvalidArgument, name, count)
	}

	var last int64
	if a.incr != nil {
		v, err := a.incr.IncrBy(ctx, name, int64(count))
		if err != nil {
			return nil, a.storageErr(name, "incr", err)
		}
		last = v
	} else {
		v, err := a.casAdd(ctx, name, int64(count))
		if err != nil {
			return nil, err
		}
		last = v
	}

	ids := make([]int64, count)
	first := last - int64(count) + 1
	for i := range ids {
		ids[i] = first + int64(i)
	}
	return ids, nil
}

// Next allocates a single ID.
func (a *Allocator) Next(ctx context.Context, name string) (int64, error) {
	ids, err := a.AllocateRange(ctx, name, 1)
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// Current returns the last issued ID for name, 0 when nothing was issued.
func (a *Allocator) Current(ctx context.Context, name string) (int64, error) {
	if name == "" {
		return 0, fmt.Errorf("%w: empty counter name", ErrInvalidArgument)
	}
	v, _, err := a.store.Load(ctx, name)
	if err != nil {
		return 0, a.storageErr(name, "load", err)
	}
	return v, nil
}

// EnsureAtLeast raises the counter to min when it is lower. It never lowers
// the counter, so IDs assigned outside the allocator (imports) are never
// handed out again.
func (a *Allocator) EnsureAtLeast(ctx context.Context, name string, min int64) error {
	if name == "" || min < 0 {
		return fmt.Errorf("%w: name=%q min=%d", ErrInvalidArgument, name, min)
	}
	return a.retry(ctx, name, func() (bool, error) {
		cur, found, err := a.store.Load(ctx, name)
		if err != nil {
			return false, a.storageErr(name, "load", err)
		}
		if !found {
			created, err := a.store.Create(ctx, name, min)
			if err != nil {
				return false, a.storageErr(name, "create", err)
			}
			return created, nil
		}
		if cur >= min {
			return true, nil
		}
		swapped, err := a.store.CompareAndSwap(ctx, name, cur, min)
		if err != nil {
			return false, a.storageErr(name, "cas", err)
		}
		return swapped, nil
	})
}

func (a *Allocator) casAdd(ctx context.Context, name string, delta int64) (int64, error) {
	var next int64
	err := a.retry(ctx, name, func() (bool, error) {
		cur, found, err := a.store.Load(ctx, name)
		if err != nil {
			return false, a.storageErr(name, "load", err)
		}
		if !found {
			// A lost create race falls through to the next attempt as an update.
			created, err := a.store.Create(ctx, name, delta)
			if err != nil {
				return false, a.storageErr(name, "create", err)
			}
			if created {
				next = delta
			}
			return created, nil
		}
		if cur > math.MaxInt64-delta {
			return false, fmt.Errorf("%w: %s at %d cannot grow by %d", ErrOverflow, name, cur, delta)
		}
		swapped, err := a.store.CompareAndSwap(ctx, name, cur, cur+delta)
		if err != nil {
			return false, a.storageErr(name, "cas", err)
		}
		if swapped {
			next = cur + delta
		}
		return swapped, nil
	})
	return next, err
}

// retry runs attempt until it reports done, fails, or the attempt budget is
// spent. Between lost races it sleeps a jittered, growing backoff.
func (a *Allocator) retry(ctx context.Context, name string, attempt func() (bool, error)) error {
	for i := 0; i < a.maxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		done, err := attempt()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if i == a.maxAttempts-1 {
			break
		}
		if err := a.wait(ctx, i); err != nil {
			return err
		}
	}
	a.log.Warn("counter allocation conflict", logx.Fields{"counter": name, "attempts": a.maxAttempts})
	return &AllocationError{Name: name, Attempts: a.maxAttempts}
}

func (a *Allocator) wait(ctx context.Context, attempt int) error {
	if a.base < 0 {
		return nil
	}
	d := a.base << min(attempt, 10)
	if d > a.max || d <= 0 {
		d = a.max
	}
	if d <= 0 {
		return nil
	}
	d = d/2 + rand.N(d/2+1)

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (a *Allocator) storageErr(name, op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	a.log.Error("counter store failed", logx.Fields{"counter": name, "op": op, "err": err})
	return fmt.Errorf("%w: %s %q: %w", ErrStorageUnavailable, op, name, err)
}
