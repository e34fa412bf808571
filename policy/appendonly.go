// Package policy wraps a casdict dictionary with mutation policies.
//
// AppendOnly turns any dictionary insert-only regardless of what its backend
// permits; WriteOnce adds probabilistic read-back verification on top of
// insert-only semantics. Both report forbidden mutations as
// *backend.PolicyError so callers can tell policy refusals from lost races.
package policy

import (
	"context"
	"fmt"

	casdict "github.com/unkn0wn-root/casdict"
	"github.com/unkn0wn-root/casdict/backend"
	"github.com/unkn0wn-root/casdict/key"
)

// AppendOnly wraps main so existing keys can never be overwritten or
// deleted. Inserts, probes and the whole read surface stay available.
func AppendOnly[V any](main casdict.Dict[V]) (casdict.Dict[V], error) {
	if main == nil {
		return nil, fmt.Errorf("policy: main dictionary is required")
	}
	return &appendOnly[V]{main: main}, nil
}

type appendOnly[V any] struct {
	main casdict.Dict[V]
}

func (a *appendOnly[V]) err() error { return &backend.PolicyError{Policy: "append-only"} }

func (a *appendOnly[V]) GetIf(ctx context.Context, k key.Key, expected casdict.ETag, cond casdict.Condition, retrieve casdict.RetrievePolicy) (casdict.Result[V], error) {
	return a.main.GetIf(ctx, k, expected, cond, retrieve)
}

func (a *appendOnly[V]) PutIf(ctx context.Context, k key.Key, upd casdict.Update[V], expected casdict.ETag, cond casdict.Condition, retrieve casdict.RetrievePolicy) (casdict.Result[V], error) {
	if upd.IsKeepCurrent() {
		// pure probe, nothing to forbid
		return a.main.PutIf(ctx, k, upd, expected, cond, retrieve)
	}
	if upd.IsDeleteCurrent() {
		return casdict.Result[V]{}, a.err()
	}
	v, _ := upd.Get()
	return a.insert(ctx, k, v, expected, cond, retrieve)
}

// insert routes a value write through SetDefaultIf, which refuses to
// overwrite atomically. A present key is a policy error, not a lost race.
func (a *appendOnly[V]) insert(ctx context.Context, k key.Key, v V, expected casdict.ETag, cond casdict.Condition, retrieve casdict.RetrievePolicy) (casdict.Result[V], error) {
	res, err := a.main.SetDefaultIf(ctx, k, v, expected, cond, retrieve)
	if err != nil {
		return casdict.Result[V]{}, err
	}
	if !res.Mutated && res.Resulting != casdict.ItemNotAvailable {
		return casdict.Result[V]{}, a.err()
	}
	return res, nil
}

func (a *appendOnly[V]) SetDefaultIf(ctx context.Context, k key.Key, def V, expected casdict.ETag, cond casdict.Condition, retrieve casdict.RetrievePolicy) (casdict.Result[V], error) {
	// inherently insert-only
	return a.main.SetDefaultIf(ctx, k, def, expected, cond, retrieve)
}

func (a *appendOnly[V]) DiscardIf(context.Context, key.Key, casdict.ETag, casdict.Condition) (casdict.Result[V], error) {
	return casdict.Result[V]{}, a.err()
}

func (a *appendOnly[V]) Get(ctx context.Context, k key.Key) (V, casdict.ETag, error) {
	return a.main.Get(ctx, k)
}

func (a *appendOnly[V]) Set(ctx context.Context, k key.Key, v V) (casdict.ETag, error) {
	res, err := a.insert(ctx, k, v, casdict.ItemNotAvailable, casdict.AnyETag, casdict.NeverRetrieve)
	if err != nil {
		return casdict.ItemNotAvailable, err
	}
	return res.Resulting, nil
}

func (a *appendOnly[V]) Discard(context.Context, key.Key) error { return a.err() }

func (a *appendOnly[V]) Contains(ctx context.Context, k key.Key) (bool, error) {
	return a.main.Contains(ctx, k)
}

func (a *appendOnly[V]) ETagOf(ctx context.Context, k key.Key) (casdict.ETag, error) {
	return a.main.ETagOf(ctx, k)
}

func (a *appendOnly[V]) Keys(ctx context.Context) ([]key.Key, error) { return a.main.Keys(ctx) }

func (a *appendOnly[V]) Items(ctx context.Context, fn func(k key.Key, v V, etag casdict.ETag) bool) error {
	return a.main.Items(ctx, fn)
}

func (a *appendOnly[V]) Len(ctx context.Context) (int, error) { return a.main.Len(ctx) }

func (a *appendOnly[V]) Params() casdict.Params {
	p := a.main.Params()
	p.AppendOnly = true
	return p
}

func (a *appendOnly[V]) Close(ctx context.Context) error { return a.main.Close(ctx) }
