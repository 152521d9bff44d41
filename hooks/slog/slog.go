// Package sloghook logs tag cache hook events through log/slog, with
// sampling for the noisy ones and storage keys redacted.
package sloghook

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/stockcore/tagcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery  uint64
	StaleSkipEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr  atomic.Uint64
	staleSkipCtr atomic.Uint64
}

var _ tagcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("tagcache.self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) ProviderError(op string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("tagcache.provider_error",
		"op", op,
		"err", err)
}

func (h *Hooks) ProviderSetRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("tagcache.provider_set_rejected",
		"key", h.redact(storageKey))
}

func (h *Hooks) GenSnapshotError(count int, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("tagcache.gen_snapshot_error",
		"count", count,
		"err", err)
}

// GenBumpError logs the tag in clear; tags are a fixed registry, not user data.
func (h *Hooks) GenBumpError(tag string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("tagcache.gen_bump_error",
		"tag", tag,
		"err", err)
}

func (h *Hooks) StaleWriteSkipped(storageKey string) {
	if h.l == nil || !sample(h.opts.StaleSkipEvery, &h.staleSkipCtr) {
		return
	}
	h.l.Debug("tagcache.stale_write_skipped",
		"key", h.redact(storageKey))
}

func (h *Hooks) LocalGenWithSharedProvider() {
	if h.l == nil {
		return
	}
	h.l.Warn("tagcache.local_gen_with_shared_provider",
		"msg", "shared provider with in-process genstore; invalidations do not reach other replicas")
}
