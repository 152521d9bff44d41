package stockcore

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/unkn0wn-root/stockcore/auth"
	"github.com/unkn0wn-root/stockcore/counter"
	"github.com/unkn0wn-root/stockcore/logx"
	"github.com/unkn0wn-root/stockcore/session"
	"github.com/unkn0wn-root/stockcore/tagcache"
)

// Core bundles the collaborators every action needs. Build one at startup
// and pass it down; there are no package-level singletons.
type Core struct {
	Counters *counter.Allocator
	Cache    *tagcache.Store
	Log      logx.Logger
}

func (c *Core) log() logx.Logger { return logx.OrNop(c.Log) }

// IDRequest asks Mutate to reserve Count IDs from the named counter.
type IDRequest struct {
	Counter string
	Count   int
}

// IDs are the allocations made for one mutation, keyed by counter name.
type IDs map[string][]int64

// First returns the first ID allocated from name, 0 if none.
func (ids IDs) First(name string) int64 {
	if r := ids[name]; len(r) > 0 {
		return r[0]
	}
	return 0
}

// Mutation describes one state-changing action.
type Mutation[In, Out any] struct {
	Name     string
	MinLevel session.AccessLevel

	// Validate rejects malformed input before anything is allocated.
	Validate func(in In) error
	// Allocate returns the IDs the write needs. nil => no allocation.
	Allocate func(in In) []IDRequest
	// Write performs the durable write against the remote store.
	Write func(ctx context.Context, s session.Session, in In, ids IDs) (Out, error)
	// Invalidates lists the tags whose data the write changed.
	Invalidates []string
}

// Mutate runs m in a fixed order: access check, validation, ID allocation,
// write, tag invalidation. Tags are invalidated only after Write returned
// without error. A failed invalidation is logged and does not fail the
// action: the write is durable and the entry TTL bounds the staleness.
func Mutate[In, Out any](ctx context.Context, c *Core, m Mutation[In, Out], in In) (res Result[Out]) {
	log := c.log()
	defer recoverInto(log, m.Name, &res)

	s, err := auth.Require(ctx, m.MinLevel)
	if err != nil {
		return fail[Out](log, m.Name, err)
	}
	if m.Write == nil {
		return fail[Out](log, m.Name, errors.New("mutation has no write"))
	}
	if m.Validate != nil {
		if err := m.Validate(in); err != nil {
			return fail[Out](log, m.Name, err)
		}
	}

	var ids IDs
	if m.Allocate != nil {
		reqs := m.Allocate(in)
		if len(reqs) > 0 && c.Counters == nil {
			return fail[Out](log, m.Name, errors.New("mutation needs ids but no allocator is configured"))
		}
		ids = make(IDs, len(reqs))
		for _, r := range reqs {
			got, err := c.Counters.AllocateRange(ctx, r.Counter, r.Count)
			if err != nil {
				return fail[Out](log, m.Name, err)
			}
			ids[r.Counter] = append(ids[r.Counter], got...)
		}
	}

	out, err := m.Write(ctx, s, in, ids)
	if err != nil {
		return fail[Out](log, m.Name, err)
	}

	if len(m.Invalidates) > 0 && c.Cache != nil {
		if err := c.Cache.Invalidate(ctx, m.Invalidates...); err != nil {
			log.Error("invalidation after write failed; readers may see stale data until TTL",
				logx.Fields{"action": m.Name, "tags": m.Invalidates, "err": err})
		}
	}
	log.Info("action done", logx.Fields{"action": m.Name, "subject": s.SubjectID})
	return Success(out)
}

// Query runs a read action after the access check.
func Query[Out any](ctx context.Context, c *Core, name string, min session.AccessLevel,
	read func(ctx context.Context, s session.Session) (Out, error)) (res Result[Out]) {
	log := c.log()
	defer recoverInto(log, name, &res)

	s, err := auth.Require(ctx, min)
	if err != nil {
		return fail[Out](log, name, err)
	}
	out, err := read(ctx, s)
	if err != nil {
		return fail[Out](log, name, err)
	}
	return Success(out)
}

func fail[Out any](log logx.Logger, action string, err error) Result[Out] {
	r := Failure[Out](err)
	f := logx.Fields{"action": action, "kind": string(r.Kind), "err": err}
	switch r.Kind {
	case KindUnauthenticated, KindValidation:
		log.Debug("action rejected", f)
	case KindForbidden, KindAuthentication:
		log.Info("action rejected", f)
	case KindStorage, KindRemote:
		log.Warn("action failed", f)
	default:
		log.Error("action failed", f)
	}
	return r
}

func recoverInto[Out any](log logx.Logger, action string, res *Result[Out]) {
	if p := recover(); p != nil {
		log.Error("action panicked", logx.Fields{"action": action, "panic": fmt.Sprint(p), "stack": string(debug.Stack())})
		*res = Result[Out]{Error: message(KindInternal, nil), Kind: KindInternal, Err: fmt.Errorf("panic: %v", p)}
	}
}
