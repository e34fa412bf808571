package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	casdict "github.com/unkn0wn-root/casdict"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	RetryEvery    uint64
	ReadRaceEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	retryCtr    atomic.Uint64
	readRaceCtr atomic.Uint64
}

var _ casdict.Hooks = (*Hooks)(nil)

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

func (h *Hooks) RetryScheduled(op, target string, attempt int, err error) {
	if h.l == nil || !sample(h.opts.RetryEvery, &h.retryCtr) {
		return
	}
	h.l.Debug("casdict.retry_scheduled",
		"op", op,
		"target", h.redact(target),
		"attempt", attempt,
		"err", err)
}

func (h *Hooks) RetriesExhausted(op, target string, attempts int, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("casdict.retries_exhausted",
		"op", op,
		"target", h.redact(target),
		"attempts", attempts,
		"err", err)
}

func (h *Hooks) ReadRaceDetected(target string, attempt int) {
	if h.l == nil || !sample(h.opts.ReadRaceEvery, &h.readRaceCtr) {
		return
	}
	h.l.Debug("casdict.read_race_detected",
		"target", h.redact(target),
		"attempt", attempt)
}

func (h *Hooks) CreateRaceDetected(target string, attempt int) {
	if h.l == nil {
		return
	}
	h.l.Info("casdict.create_race_detected",
		"target", h.redact(target),
		"attempt", attempt)
}

func (h *Hooks) CacheRefreshFailed(target string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("casdict.cache_refresh_failed",
		"target", h.redact(target),
		"err", err)
}

func (h *Hooks) VerifyFailed(target string) {
	if h.l == nil {
		return
	}
	h.l.Error("casdict.verify_failed",
		"target", h.redact(target))
}
