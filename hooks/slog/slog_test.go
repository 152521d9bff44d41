package sloghook

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestSelfHealIsSampledAndRedacted(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := New(l, Options{SelfHealEvery: 3})

	for i := 0; i < 6; i++ {
		h.SelfHeal("entry:inv:secret-key", "gen_mismatch")
	}
	out := buf.String()
	if n := strings.Count(out, "tagcache.self_heal"); n != 2 {
		t.Fatalf("logged %d self heals, want 2:\n%s", n, out)
	}
	if strings.Contains(out, "secret-key") {
		t.Fatalf("key not redacted: %s", out)
	}
}

func TestGenBumpErrorLogsTag(t *testing.T) {
	var buf bytes.Buffer
	h := New(slog.New(slog.NewTextHandler(&buf, nil)), Options{})
	h.GenBumpError("ref:warehouses", errors.New("down"))
	if !strings.Contains(buf.String(), "tag=ref:warehouses") || !strings.Contains(buf.String(), "level=ERROR") {
		t.Fatalf("unexpected output: %s", buf.String())
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	h := New(nil, Options{})
	h.SelfHeal("k", "corrupt")
	h.ProviderError("get", errors.New("x"))
	h.LocalGenWithSharedProvider()
}
