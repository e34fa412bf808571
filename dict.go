package casdict

import (
	"context"
	"fmt"

	"github.com/unkn0wn-root/casdict/backend"
	c "github.com/unkn0wn-root/casdict/codec"
	"github.com/unkn0wn-root/casdict/key"
)

type dict[V any] struct {
	be        backend.Backend
	codec     c.Codec[V]
	signer    *key.Signer
	check     func(V) error
	log       Logger
	hooks     Hooks
	maxCreate int
}

// storageKey signs the caller's key when signing is configured.
func (d *dict[V]) storageKey(k key.Key) (key.Key, error) {
	if k.Len() == 0 {
		return key.Key{}, &key.ValidationError{Reason: "key needs at least one segment"}
	}
	if d.signer != nil {
		return d.signer.Sign(k), nil
	}
	return k, nil
}

func (d *dict[V]) readETag(ctx context.Context, k, sk key.Key) (ETag, error) {
	s, ok, err := d.be.ETag(ctx, sk)
	if err != nil {
		return ItemNotAvailable, fmt.Errorf("casdict: etag %q: %w", k, err)
	}
	if !ok {
		return ItemNotAvailable, nil
	}
	return ETag(s), nil
}

func (d *dict[V]) decode(k key.Key, raw []byte) (V, error) {
	v, err := d.codec.Decode(raw)
	if err != nil {
		var zero V
		return zero, fmt.Errorf("casdict: decode %q: %w", k, err)
	}
	if d.check != nil {
		if cerr := d.check(v); cerr != nil {
			var zero V
			return zero, &CheckError{Key: k, Err: cerr}
		}
	}
	return v, nil
}

// resultAt builds a non-mutating result for the state observed at actual,
// fetching the value only when the retrieve policy asks for it. The fetch
// decision compares actual against expected and is independent of whether
// the condition was satisfied.
func (d *dict[V]) resultAt(ctx context.Context, k, sk key.Key, actual, expected ETag, retrieve RetrievePolicy, satisfied bool) (Result[V], error) {
	r := Result[V]{Satisfied: satisfied, Actual: actual, Resulting: actual}
	if actual == ItemNotAvailable {
		r.ValueState = ValueNotAvailable
		return r, nil
	}
	if !retrieve.ShouldFetch(actual, expected) {
		r.ValueState = ValueNotRetrieved
		return r, nil
	}
	raw, s, ok, err := d.be.Load(ctx, sk)
	if err != nil {
		return Result[V]{}, fmt.Errorf("casdict: load %q: %w", k, err)
	}
	if !ok {
		// vanished between the etag read and the fetch
		r.Actual, r.Resulting = ItemNotAvailable, ItemNotAvailable
		r.ValueState = ValueNotAvailable
		return r, nil
	}
	v, err := d.decode(k, raw)
	if err != nil {
		return Result[V]{}, err
	}
	r.Actual, r.Resulting = ETag(s), ETag(s)
	r.Value, r.ValueState = v, ValueRetrieved
	return r, nil
}

// lostRace re-reads the authoritative state after a backend precondition
// failed and reports it with Satisfied=false. Losing a conditional write
// never blocks and never errors; the caller gets the real current state.
func (d *dict[V]) lostRace(ctx context.Context, k, sk key.Key, expected ETag, retrieve RetrievePolicy) (Result[V], error) {
	actual, err := d.readETag(ctx, k, sk)
	if err != nil {
		return Result[V]{}, err
	}
	return d.resultAt(ctx, k, sk, actual, expected, retrieve, false)
}

func (d *dict[V]) checkArgs(cond Condition, retrieve RetrievePolicy) error {
	if !cond.valid() {
		return fmt.Errorf("casdict: unknown condition %v", cond)
	}
	if !retrieve.valid() {
		return fmt.Errorf("casdict: unknown retrieve policy %v", retrieve)
	}
	return nil
}

func (d *dict[V]) GetIf(ctx context.Context, k key.Key, expected ETag, cond Condition, retrieve RetrievePolicy) (Result[V], error) {
	if err := d.checkArgs(cond, retrieve); err != nil {
		return Result[V]{}, err
	}
	sk, err := d.storageKey(k)
	if err != nil {
		return Result[V]{}, err
	}
	actual, err := d.readETag(ctx, k, sk)
	if err != nil {
		return Result[V]{}, err
	}
	return d.resultAt(ctx, k, sk, actual, expected, retrieve, cond.Satisfied(actual, expected))
}

func (d *dict[V]) PutIf(ctx context.Context, k key.Key, upd Update[V], expected ETag, cond Condition, retrieve RetrievePolicy) (Result[V], error) {
	if err := d.checkArgs(cond, retrieve); err != nil {
		return Result[V]{}, err
	}
	sk, err := d.storageKey(k)
	if err != nil {
		return Result[V]{}, err
	}
	actual, err := d.readETag(ctx, k, sk)
	if err != nil {
		return Result[V]{}, err
	}
	if !cond.Satisfied(actual, expected) {
		return d.resultAt(ctx, k, sk, actual, expected, retrieve, false)
	}

	switch upd.kind {
	case updateKeep:
		// pure probe; no mutation reaches the backend
		return d.resultAt(ctx, k, sk, actual, expected, retrieve, true)

	case updateDelete:
		if actual == ItemNotAvailable {
			return Result[V]{Satisfied: true, Actual: ItemNotAvailable, Resulting: ItemNotAvailable, ValueState: ValueNotAvailable}, nil
		}
		done, err := d.be.Delete(ctx, sk, backend.IfMatch(string(actual)))
		if err != nil {
			return Result[V]{}, fmt.Errorf("casdict: delete %q: %w", k, err)
		}
		if !done {
			return d.lostRace(ctx, k, sk, expected, retrieve)
		}
		return Result[V]{Satisfied: true, Mutated: true, Actual: actual, Resulting: ItemNotAvailable, ValueState: ValueNotAvailable}, nil

	default:
		raw, err := d.codec.Encode(upd.value)
		if err != nil {
			return Result[V]{}, fmt.Errorf("casdict: encode %q: %w", k, err)
		}
		pre := backend.IfAbsent()
		if actual != ItemNotAvailable {
			pre = backend.IfMatch(string(actual))
		}
		ns, done, err := d.be.Store(ctx, sk, raw, pre)
		if err != nil {
			return Result[V]{}, fmt.Errorf("casdict: store %q: %w", k, err)
		}
		if !done {
			return d.lostRace(ctx, k, sk, expected, retrieve)
		}
		r := Result[V]{Satisfied: true, Mutated: true, Actual: actual, Resulting: ETag(ns)}
		if retrieve == NeverRetrieve {
			r.ValueState = ValueNotRetrieved
		} else {
			r.Value, r.ValueState = upd.value, ValueRetrieved
		}
		return r, nil
	}
}

func (d *dict[V]) SetDefaultIf(ctx context.Context, k key.Key, def V, expected ETag, cond Condition, retrieve RetrievePolicy) (Result[V], error) {
	if err := d.checkArgs(cond, retrieve); err != nil {
		return Result[V]{}, err
	}
	sk, err := d.storageKey(k)
	if err != nil {
		return Result[V]{}, err
	}
	raw, err := d.codec.Encode(def)
	if err != nil {
		return Result[V]{}, fmt.Errorf("casdict: encode %q: %w", k, err)
	}

	for attempt := 1; attempt <= d.maxCreate; attempt++ {
		actual, err := d.readETag(ctx, k, sk)
		if err != nil {
			return Result[V]{}, err
		}
		sat := cond.Satisfied(actual, expected)
		if actual != ItemNotAvailable || !sat {
			// present keys are never overwritten, whatever the condition
			return d.resultAt(ctx, k, sk, actual, expected, retrieve, sat)
		}
		ns, done, err := d.be.Store(ctx, sk, raw, backend.IfAbsent())
		if err != nil {
			return Result[V]{}, fmt.Errorf("casdict: store %q: %w", k, err)
		}
		if done {
			r := Result[V]{Satisfied: true, Mutated: true, Actual: ItemNotAvailable, Resulting: ETag(ns)}
			if retrieve == NeverRetrieve {
				r.ValueState = ValueNotRetrieved
			} else {
				r.Value, r.ValueState = def, ValueRetrieved
			}
			return r, nil
		}
		// Create saw the key present while our read saw it absent: a
		// concurrent deleter is racing us. Bounded, not forever.
		d.hooks.CreateRaceDetected(k.String(), attempt)
		d.log.Debug("insert-if-absent lost create race", Fields{"key": k.String(), "attempt": attempt})
	}
	return Result[V]{}, &ConflictError{Key: k, Attempts: d.maxCreate}
}

func (d *dict[V]) DiscardIf(ctx context.Context, k key.Key, expected ETag, cond Condition) (Result[V], error) {
	if !cond.valid() {
		return Result[V]{}, fmt.Errorf("casdict: unknown condition %v", cond)
	}
	sk, err := d.storageKey(k)
	if err != nil {
		return Result[V]{}, err
	}
	actual, err := d.readETag(ctx, k, sk)
	if err != nil {
		return Result[V]{}, err
	}
	sat := cond.Satisfied(actual, expected)
	if actual == ItemNotAvailable {
		// absent key: a no-op success when the condition holds on absence
		return Result[V]{Satisfied: sat, Actual: ItemNotAvailable, Resulting: ItemNotAvailable, ValueState: ValueNotAvailable}, nil
	}
	if !sat {
		return Result[V]{Satisfied: false, Actual: actual, Resulting: actual, ValueState: ValueNotRetrieved}, nil
	}
	done, err := d.be.Delete(ctx, sk, backend.IfMatch(string(actual)))
	if err != nil {
		return Result[V]{}, fmt.Errorf("casdict: delete %q: %w", k, err)
	}
	if !done {
		fresh, err := d.readETag(ctx, k, sk)
		if err != nil {
			return Result[V]{}, err
		}
		vs := ValueNotRetrieved
		if fresh == ItemNotAvailable {
			vs = ValueNotAvailable
		}
		return Result[V]{Satisfied: false, Actual: fresh, Resulting: fresh, ValueState: vs}, nil
	}
	return Result[V]{Satisfied: true, Mutated: true, Actual: actual, Resulting: ItemNotAvailable, ValueState: ValueNotAvailable}, nil
}

func (d *dict[V]) Get(ctx context.Context, k key.Key) (V, ETag, error) {
	var zero V
	sk, err := d.storageKey(k)
	if err != nil {
		return zero, ItemNotAvailable, err
	}
	raw, s, ok, err := d.be.Load(ctx, sk)
	if err != nil {
		return zero, ItemNotAvailable, fmt.Errorf("casdict: load %q: %w", k, err)
	}
	if !ok {
		return zero, ItemNotAvailable, &NotFoundError{Key: k}
	}
	v, err := d.decode(k, raw)
	if err != nil {
		return zero, ItemNotAvailable, err
	}
	return v, ETag(s), nil
}

func (d *dict[V]) Set(ctx context.Context, k key.Key, v V) (ETag, error) {
	sk, err := d.storageKey(k)
	if err != nil {
		return ItemNotAvailable, err
	}
	raw, err := d.codec.Encode(v)
	if err != nil {
		return ItemNotAvailable, fmt.Errorf("casdict: encode %q: %w", k, err)
	}
	ns, _, err := d.be.Store(ctx, sk, raw, backend.Any())
	if err != nil {
		return ItemNotAvailable, fmt.Errorf("casdict: store %q: %w", k, err)
	}
	return ETag(ns), nil
}

func (d *dict[V]) Discard(ctx context.Context, k key.Key) error {
	sk, err := d.storageKey(k)
	if err != nil {
		return err
	}
	if _, err := d.be.Delete(ctx, sk, backend.Any()); err != nil {
		return fmt.Errorf("casdict: delete %q: %w", k, err)
	}
	return nil
}

func (d *dict[V]) Contains(ctx context.Context, k key.Key) (bool, error) {
	sk, err := d.storageKey(k)
	if err != nil {
		return false, err
	}
	_, ok, err := d.be.ETag(ctx, sk)
	if err != nil {
		return false, fmt.Errorf("casdict: etag %q: %w", k, err)
	}
	return ok, nil
}

func (d *dict[V]) ETagOf(ctx context.Context, k key.Key) (ETag, error) {
	sk, err := d.storageKey(k)
	if err != nil {
		return ItemNotAvailable, err
	}
	return d.readETag(ctx, k, sk)
}

// callerKey maps a stored key back to the caller's view, unsigning when
// signing is configured. ok=false marks foreign entries (not signed by us)
// that enumeration should skip.
func (d *dict[V]) callerKey(sk key.Key) (key.Key, bool) {
	if d.signer == nil {
		return sk, true
	}
	if !d.signer.Verify(sk) {
		return key.Key{}, false
	}
	k, err := d.signer.Unsign(sk)
	if err != nil {
		return key.Key{}, false
	}
	return k, true
}

func (d *dict[V]) Keys(ctx context.Context) ([]key.Key, error) {
	stored, err := d.be.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("casdict: keys: %w", err)
	}
	keys := make([]key.Key, 0, len(stored))
	for _, sk := range stored {
		if k, ok := d.callerKey(sk); ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (d *dict[V]) Items(ctx context.Context, fn func(k key.Key, v V, etag ETag) bool) error {
	var iterErr error
	err := d.be.Items(ctx, func(kv backend.KV) bool {
		k, ok := d.callerKey(kv.Key)
		if !ok {
			return true
		}
		v, derr := d.decode(k, kv.Value)
		if derr != nil {
			iterErr = derr
			return false
		}
		return fn(k, v, ETag(kv.ETag))
	})
	if err != nil {
		return fmt.Errorf("casdict: items: %w", err)
	}
	return iterErr
}

func (d *dict[V]) Len(ctx context.Context) (int, error) {
	keys, err := d.Keys(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

func (d *dict[V]) Params() Params {
	p := Params{
		Backend:    d.be.Params(),
		Format:     d.codec.Ext(),
		AppendOnly: d.be.AppendOnly(),
	}
	if d.signer != nil {
		p.DigestLen = d.signer.DigestLen()
	}
	return p
}

func (d *dict[V]) Close(ctx context.Context) error {
	return d.be.Close(ctx)
}
