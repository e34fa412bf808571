// Package cache wraps a casdict dictionary with a value cache and an etag
// cache over byte providers.
//
// The wrapper maintains one invariant above all: after any write attempt,
// successful or rejected, the caches reflect the main store's actual state.
// A rejected value is never cached; a successful write seeds the caches from
// the operation's own result without a re-read. When a refresh cannot be
// completed the affected entries are dropped instead, so a cache miss is the
// worst observable outcome.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	casdict "github.com/unkn0wn-root/casdict"
	c "github.com/unkn0wn-root/casdict/codec"
	"github.com/unkn0wn-root/casdict/internal/wire"
	"github.com/unkn0wn-root/casdict/key"
	"github.com/unkn0wn-root/casdict/provider"
)

// Options tune the caching wrapper. Main, Codec, Values and Namespace are
// required. Codec must be the same codec the main dictionary was built with;
// the wrapper re-encodes values for the byte store with it.
type Options[V any] struct {
	Main      casdict.Dict[V]
	Codec     c.Codec[V]
	Values    provider.Provider
	ETags     provider.Provider // nil => share Values
	Namespace string

	ValueTTL time.Duration // 0 => 10m
	ETagTTL  time.Duration // 0 => 1m; etags go stale faster than values

	Logger casdict.Logger
	Hooks  casdict.Hooks
}

// New wraps main with the configured caches.
func New[V any](opts Options[V]) (casdict.Dict[V], error) {
	if opts.Main == nil {
		return nil, fmt.Errorf("cache: main dictionary is required")
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("cache: codec is required")
	}
	if opts.Values == nil {
		return nil, fmt.Errorf("cache: value provider is required")
	}
	if opts.Namespace == "" {
		return nil, fmt.Errorf("cache: namespace is required")
	}
	w := &cached[V]{
		main:    opts.Main,
		codec:   opts.Codec,
		vals:    opts.Values,
		etags:   opts.ETags,
		ns:      opts.Namespace,
		valTTL:  opts.ValueTTL,
		etagTTL: opts.ETagTTL,
		log:     opts.Logger,
		hooks:   opts.Hooks,
	}
	if w.etags == nil {
		w.etags = w.vals
	}
	if w.valTTL == 0 {
		w.valTTL = 10 * time.Minute
	}
	if w.etagTTL == 0 {
		w.etagTTL = time.Minute
	}
	if w.log == nil {
		w.log = casdict.NopLogger{}
	}
	if w.hooks == nil {
		w.hooks = casdict.NopHooks{}
	}
	return w, nil
}

type cached[V any] struct {
	main    casdict.Dict[V]
	codec   c.Codec[V]
	vals    provider.Provider
	etags   provider.Provider
	ns      string
	valTTL  time.Duration
	etagTTL time.Duration
	log     casdict.Logger
	hooks   casdict.Hooks
}

func (w *cached[V]) valKey(k key.Key) string  { return "val:" + w.ns + ":" + key.Join(k, "/") }
func (w *cached[V]) etagKey(k key.Key) string { return "etag:" + w.ns + ":" + key.Join(k, "/") }

// cachedETag returns the cached version token; ItemNotAvailable means a
// cached known-absence. ok=false is a miss.
func (w *cached[V]) cachedETag(ctx context.Context, k key.Key) (casdict.ETag, bool) {
	raw, ok, err := w.etags.Get(ctx, w.etagKey(k))
	if err != nil || !ok {
		return casdict.ItemNotAvailable, false
	}
	e, err := wire.Decode(raw)
	if err != nil || e.HasData {
		_ = w.etags.Del(ctx, w.etagKey(k)) // self-heal corrupt
		return casdict.ItemNotAvailable, false
	}
	if e.Absent {
		return casdict.ItemNotAvailable, true
	}
	return casdict.ETag(e.ETag), true
}

// cachedValue returns the cached value and the etag it was stored under.
func (w *cached[V]) cachedValue(ctx context.Context, k key.Key) (V, casdict.ETag, bool) {
	var zero V
	raw, ok, err := w.vals.Get(ctx, w.valKey(k))
	if err != nil || !ok {
		return zero, casdict.ItemNotAvailable, false
	}
	e, err := wire.Decode(raw)
	if err != nil || !e.HasData {
		_ = w.vals.Del(ctx, w.valKey(k))
		return zero, casdict.ItemNotAvailable, false
	}
	v, err := w.codec.Decode(e.Payload)
	if err != nil {
		_ = w.vals.Del(ctx, w.valKey(k)) // self-heal
		return zero, casdict.ItemNotAvailable, false
	}
	return v, casdict.ETag(e.ETag), true
}

func (w *cached[V]) dropBoth(ctx context.Context, k key.Key) {
	_ = w.vals.Del(ctx, w.valKey(k))
	_ = w.etags.Del(ctx, w.etagKey(k))
}

func (w *cached[V]) noteAbsent(ctx context.Context, k key.Key) {
	_ = w.vals.Del(ctx, w.valKey(k))
	if _, err := w.etags.Set(ctx, w.etagKey(k), wire.EncodeAbsent(), 1, w.etagTTL); err != nil {
		w.refreshFailed(ctx, k, err)
	}
}

func (w *cached[V]) noteETag(ctx context.Context, k key.Key, etag casdict.ETag) {
	// without the value bytes a stale value entry must go, or a later read
	// could pair it with a token it was never stored under
	_ = w.vals.Del(ctx, w.valKey(k))
	if _, err := w.etags.Set(ctx, w.etagKey(k), wire.EncodeETag(string(etag)), 1, w.etagTTL); err != nil {
		w.refreshFailed(ctx, k, err)
	}
}

func (w *cached[V]) noteValue(ctx context.Context, k key.Key, etag casdict.ETag, v V) {
	raw, err := w.codec.Encode(v)
	if err != nil {
		w.refreshFailed(ctx, k, err)
		return
	}
	frame := wire.EncodeValue(string(etag), raw)
	if _, err := w.vals.Set(ctx, w.valKey(k), frame, int64(len(frame)), w.valTTL); err != nil {
		w.refreshFailed(ctx, k, err)
		return
	}
	if _, err := w.etags.Set(ctx, w.etagKey(k), wire.EncodeETag(string(etag)), 1, w.etagTTL); err != nil {
		w.refreshFailed(ctx, k, err)
	}
}

// refreshFailed drops the entries for k so the cache falls back to a miss.
func (w *cached[V]) refreshFailed(ctx context.Context, k key.Key, err error) {
	w.dropBoth(ctx, k)
	w.hooks.CacheRefreshFailed(k.String(), err)
	w.log.Warn("cache refresh failed, entries dropped", casdict.Fields{"key": k.String(), "error": err.Error()})
}

// refresh reconciles the caches with the state an operation result reports.
// Works for successes and rejections alike: the result always carries the
// main store's actual state.
func (w *cached[V]) refresh(ctx context.Context, k key.Key, res casdict.Result[V]) {
	switch {
	case res.Resulting == casdict.ItemNotAvailable:
		w.noteAbsent(ctx, k)
	case res.ValueState == casdict.ValueRetrieved:
		w.noteValue(ctx, k, res.Resulting, res.Value)
	default:
		w.noteETag(ctx, k, res.Resulting)
	}
}

func (w *cached[V]) GetIf(ctx context.Context, k key.Key, expected casdict.ETag, cond casdict.Condition, retrieve casdict.RetrievePolicy) (casdict.Result[V], error) {
	et, hit := w.cachedETag(ctx, k)
	if hit {
		sat := cond.Satisfied(et, expected)
		if et == casdict.ItemNotAvailable {
			return casdict.Result[V]{Satisfied: sat, Actual: et, Resulting: et, ValueState: casdict.ValueNotAvailable}, nil
		}
		if !retrieve.ShouldFetch(et, expected) {
			return casdict.Result[V]{Satisfied: sat, Actual: et, Resulting: et, ValueState: casdict.ValueNotRetrieved}, nil
		}
		if v, vet, ok := w.cachedValue(ctx, k); ok && vet == et {
			return casdict.Result[V]{Satisfied: sat, Actual: et, Resulting: et, Value: v, ValueState: casdict.ValueRetrieved}, nil
		}
	}
	res, err := w.main.GetIf(ctx, k, expected, cond, retrieve)
	if err != nil {
		return res, err
	}
	w.refresh(ctx, k, res)
	return res, nil
}

func (w *cached[V]) PutIf(ctx context.Context, k key.Key, upd casdict.Update[V], expected casdict.ETag, cond casdict.Condition, retrieve casdict.RetrievePolicy) (casdict.Result[V], error) {
	res, err := w.main.PutIf(ctx, k, upd, expected, cond, retrieve)
	if err != nil {
		// state unknown; a miss is always safe
		w.dropBoth(ctx, k)
		return res, err
	}
	w.refresh(ctx, k, res)
	return res, nil
}

func (w *cached[V]) SetDefaultIf(ctx context.Context, k key.Key, def V, expected casdict.ETag, cond casdict.Condition, retrieve casdict.RetrievePolicy) (casdict.Result[V], error) {
	res, err := w.main.SetDefaultIf(ctx, k, def, expected, cond, retrieve)
	if err != nil {
		w.dropBoth(ctx, k)
		return res, err
	}
	w.refresh(ctx, k, res)
	return res, nil
}

func (w *cached[V]) DiscardIf(ctx context.Context, k key.Key, expected casdict.ETag, cond casdict.Condition) (casdict.Result[V], error) {
	res, err := w.main.DiscardIf(ctx, k, expected, cond)
	if err != nil {
		w.dropBoth(ctx, k)
		return res, err
	}
	w.refresh(ctx, k, res)
	return res, nil
}

func (w *cached[V]) Get(ctx context.Context, k key.Key) (V, casdict.ETag, error) {
	var zero V
	if et, hit := w.cachedETag(ctx, k); hit {
		if et == casdict.ItemNotAvailable {
			return zero, casdict.ItemNotAvailable, &casdict.NotFoundError{Key: k}
		}
		if v, vet, ok := w.cachedValue(ctx, k); ok && vet == et {
			return v, et, nil
		}
	}
	v, et, err := w.main.Get(ctx, k)
	if err != nil {
		var nf *casdict.NotFoundError
		if errors.As(err, &nf) {
			w.noteAbsent(ctx, k)
		}
		return zero, casdict.ItemNotAvailable, err
	}
	w.noteValue(ctx, k, et, v)
	return v, et, nil
}

func (w *cached[V]) Set(ctx context.Context, k key.Key, v V) (casdict.ETag, error) {
	et, err := w.main.Set(ctx, k, v)
	if err != nil {
		w.dropBoth(ctx, k)
		return casdict.ItemNotAvailable, err
	}
	w.noteValue(ctx, k, et, v)
	return et, nil
}

func (w *cached[V]) Discard(ctx context.Context, k key.Key) error {
	if err := w.main.Discard(ctx, k); err != nil {
		w.dropBoth(ctx, k)
		return err
	}
	w.noteAbsent(ctx, k)
	return nil
}

func (w *cached[V]) Contains(ctx context.Context, k key.Key) (bool, error) {
	if et, hit := w.cachedETag(ctx, k); hit {
		return et != casdict.ItemNotAvailable, nil
	}
	return w.main.Contains(ctx, k)
}

func (w *cached[V]) ETagOf(ctx context.Context, k key.Key) (casdict.ETag, error) {
	if et, hit := w.cachedETag(ctx, k); hit {
		return et, nil
	}
	et, err := w.main.ETagOf(ctx, k)
	if err != nil {
		return casdict.ItemNotAvailable, err
	}
	if et == casdict.ItemNotAvailable {
		w.noteAbsent(ctx, k)
	} else {
		w.noteETag(ctx, k, et)
	}
	return et, nil
}

// Enumeration always goes to the main store; the caches hold point lookups,
// not a consistent snapshot.

func (w *cached[V]) Keys(ctx context.Context) ([]key.Key, error) { return w.main.Keys(ctx) }

func (w *cached[V]) Items(ctx context.Context, fn func(k key.Key, v V, etag casdict.ETag) bool) error {
	return w.main.Items(ctx, fn)
}

func (w *cached[V]) Len(ctx context.Context) (int, error) { return w.main.Len(ctx) }

func (w *cached[V]) Params() casdict.Params { return w.main.Params() }

func (w *cached[V]) Close(ctx context.Context) error {
	if w.etags != w.vals {
		_ = w.etags.Close(ctx)
	}
	_ = w.vals.Close(ctx)
	return w.main.Close(ctx)
}
