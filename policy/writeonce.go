package policy

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	casdict "github.com/unkn0wn-root/casdict"
	"github.com/unkn0wn-root/casdict/backend"
	c "github.com/unkn0wn-root/casdict/codec"
	"github.com/unkn0wn-root/casdict/key"
)

// ConsistencyError reports a write-once read-back that did not return the
// bytes just written.
type ConsistencyError struct {
	Key key.Key
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("policy: key %q: read-back does not match written value", e.Key)
}

// WriteOnceOptions tune a write-once dictionary. Main and Codec are
// required; Codec must match the main dictionary's codec, it drives the
// byte-level read-back comparison.
type WriteOnceOptions[V any] struct {
	Main  casdict.Dict[V]
	Codec c.Codec[V]

	// Probability of verifying a successful insert by reading it back,
	// in [0,1]. Nil disables verification entirely.
	Probability *float64

	// Rand is the sampling source; nil uses a private seeded source.
	// Inject a deterministic one in tests.
	Rand *rand.Rand

	Logger casdict.Logger
	Hooks  casdict.Hooks
}

// WriteOnceStats are cumulative verification counters.
type WriteOnceStats struct {
	Attempted uint64
	Passed    uint64
	Failed    uint64
}

// WriteOnce is an insert-only dictionary that probabilistically verifies its
// own inserts by reading them back. The conditional mutating surface is
// unsupported: a written key is immutable, so there is nothing for a CAS to
// do. Returned as a concrete type for Stats.
type WriteOnce[V any] struct {
	main  casdict.Dict[V]
	codec c.Codec[V]
	prob  *float64
	log   casdict.Logger
	hooks casdict.Hooks

	mu  sync.Mutex
	rng *rand.Rand

	attempted atomic.Uint64
	passed    atomic.Uint64
	failed    atomic.Uint64
}

// NewWriteOnce builds a write-once dictionary over main.
func NewWriteOnce[V any](opts WriteOnceOptions[V]) (*WriteOnce[V], error) {
	if opts.Main == nil {
		return nil, fmt.Errorf("policy: main dictionary is required")
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("policy: codec is required")
	}
	if opts.Probability != nil && (*opts.Probability < 0 || *opts.Probability > 1) {
		return nil, fmt.Errorf("policy: verification probability %v out of [0,1]", *opts.Probability)
	}
	w := &WriteOnce[V]{
		main:  opts.Main,
		codec: opts.Codec,
		prob:  opts.Probability,
		log:   opts.Logger,
		hooks: opts.Hooks,
		rng:   opts.Rand,
	}
	if w.rng == nil {
		w.rng = rand.New(rand.NewSource(rand.Int63()))
	}
	if w.log == nil {
		w.log = casdict.NopLogger{}
	}
	if w.hooks == nil {
		w.hooks = casdict.NopHooks{}
	}
	return w, nil
}

// Stats returns the verification counters so far.
func (w *WriteOnce[V]) Stats() WriteOnceStats {
	return WriteOnceStats{
		Attempted: w.attempted.Load(),
		Passed:    w.passed.Load(),
		Failed:    w.failed.Load(),
	}
}

func (w *WriteOnce[V]) err() error { return &backend.PolicyError{Policy: "write-once"} }

func (w *WriteOnce[V]) shouldVerify() bool {
	if w.prob == nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rng.Float64() < *w.prob
}

// verify reads k back and compares encoded bytes against the written value.
func (w *WriteOnce[V]) verify(ctx context.Context, k key.Key, written []byte) error {
	w.attempted.Add(1)
	got, _, err := w.main.Get(ctx, k)
	if err != nil {
		w.failed.Add(1)
		w.hooks.VerifyFailed(k.String())
		return fmt.Errorf("policy: read-back %q: %w", k, err)
	}
	raw, err := w.codec.Encode(got)
	if err != nil {
		w.failed.Add(1)
		w.hooks.VerifyFailed(k.String())
		return fmt.Errorf("policy: re-encode %q: %w", k, err)
	}
	if !bytes.Equal(raw, written) {
		w.failed.Add(1)
		w.hooks.VerifyFailed(k.String())
		w.log.Error("write-once read-back mismatch", casdict.Fields{"key": k.String()})
		return &ConsistencyError{Key: k}
	}
	w.passed.Add(1)
	return nil
}

// Set inserts v, refusing to overwrite, then verifies the insert with the
// configured probability.
func (w *WriteOnce[V]) Set(ctx context.Context, k key.Key, v V) (casdict.ETag, error) {
	res, err := w.main.SetDefaultIf(ctx, k, v, casdict.ItemNotAvailable, casdict.AnyETag, casdict.NeverRetrieve)
	if err != nil {
		return casdict.ItemNotAvailable, err
	}
	if !res.Mutated {
		return casdict.ItemNotAvailable, w.err()
	}
	if w.shouldVerify() {
		raw, err := w.codec.Encode(v)
		if err != nil {
			return casdict.ItemNotAvailable, fmt.Errorf("policy: encode %q: %w", k, err)
		}
		if err := w.verify(ctx, k, raw); err != nil {
			return casdict.ItemNotAvailable, err
		}
	}
	return res.Resulting, nil
}

// The conditional mutating surface is unsupported on immutable entries.

func (w *WriteOnce[V]) PutIf(ctx context.Context, k key.Key, upd casdict.Update[V], expected casdict.ETag, cond casdict.Condition, retrieve casdict.RetrievePolicy) (casdict.Result[V], error) {
	if upd.IsKeepCurrent() {
		return w.main.PutIf(ctx, k, upd, expected, cond, retrieve)
	}
	return casdict.Result[V]{}, w.err()
}

func (w *WriteOnce[V]) SetDefaultIf(context.Context, key.Key, V, casdict.ETag, casdict.Condition, casdict.RetrievePolicy) (casdict.Result[V], error) {
	return casdict.Result[V]{}, w.err()
}

func (w *WriteOnce[V]) DiscardIf(context.Context, key.Key, casdict.ETag, casdict.Condition) (casdict.Result[V], error) {
	return casdict.Result[V]{}, w.err()
}

func (w *WriteOnce[V]) Discard(context.Context, key.Key) error { return w.err() }

// Read surface passes through.

func (w *WriteOnce[V]) GetIf(ctx context.Context, k key.Key, expected casdict.ETag, cond casdict.Condition, retrieve casdict.RetrievePolicy) (casdict.Result[V], error) {
	return w.main.GetIf(ctx, k, expected, cond, retrieve)
}

func (w *WriteOnce[V]) Get(ctx context.Context, k key.Key) (V, casdict.ETag, error) {
	return w.main.Get(ctx, k)
}

func (w *WriteOnce[V]) Contains(ctx context.Context, k key.Key) (bool, error) {
	return w.main.Contains(ctx, k)
}

func (w *WriteOnce[V]) ETagOf(ctx context.Context, k key.Key) (casdict.ETag, error) {
	return w.main.ETagOf(ctx, k)
}

func (w *WriteOnce[V]) Keys(ctx context.Context) ([]key.Key, error) { return w.main.Keys(ctx) }

func (w *WriteOnce[V]) Items(ctx context.Context, fn func(k key.Key, v V, etag casdict.ETag) bool) error {
	return w.main.Items(ctx, fn)
}

func (w *WriteOnce[V]) Len(ctx context.Context) (int, error) { return w.main.Len(ctx) }

func (w *WriteOnce[V]) Params() casdict.Params {
	p := w.main.Params()
	p.AppendOnly = true
	p.CheckProbability = w.prob
	return p
}

func (w *WriteOnce[V]) Close(ctx context.Context) error { return w.main.Close(ctx) }
