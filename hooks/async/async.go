// Package asynchook moves tag cache hook calls off the read path.
//
//	raw := sloghook.New(slog.Default(), sloghook.Options{SelfHealEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	store, _ := tagcache.New(tagcache.Options{
//	    Namespace: "stockcore:prod",
//	    Provider:  provider,
//	    Hooks:     hooks,
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/stockcore/tagcache"
)

// Hooks forwards events to inner on worker goroutines. Events are dropped,
// never blocked on, when the queue is full.
type Hooks struct {
	inner   tagcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ tagcache.Hooks = (*Hooks)(nil)

func New(inner tagcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events after Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped returns how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) SelfHeal(k, r string)             { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) ProviderError(op string, e error) { h.try(func() { h.inner.ProviderError(op, e) }) }
func (h *Hooks) ProviderSetRejected(k string)     { h.try(func() { h.inner.ProviderSetRejected(k) }) }
func (h *Hooks) GenSnapshotError(n int, e error)  { h.try(func() { h.inner.GenSnapshotError(n, e) }) }
func (h *Hooks) GenBumpError(t string, e error)   { h.try(func() { h.inner.GenBumpError(t, e) }) }
func (h *Hooks) StaleWriteSkipped(k string)       { h.try(func() { h.inner.StaleWriteSkipped(k) }) }
func (h *Hooks) LocalGenWithSharedProvider() {
	h.try(func() { h.inner.LocalGenWithSharedProvider() })
}
