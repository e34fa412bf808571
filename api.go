package casdict

import (
	"context"
	"fmt"

	"github.com/unkn0wn-root/casdict/backend"
	c "github.com/unkn0wn-root/casdict/codec"
	"github.com/unkn0wn-root/casdict/key"
)

// Dict is the conditional dictionary API: a persistent map from validated
// keys to values of type V, where every value carries an opaque version
// token (ETag) and reads/writes can be made conditional on that token.
// V is the caller's value type; serialization is handled by a pluggable
// codec.Codec[V].
type Dict[V any] interface {
	// Conditional surface. Absence is reported in the Result as
	// ItemNotAvailable, never as an error.

	// GetIf reads under a condition. It never mutates.
	GetIf(ctx context.Context, k key.Key, expected ETag, cond Condition, retrieve RetrievePolicy) (Result[V], error)

	// PutIf writes, probes (KeepCurrent), or deletes (DeleteCurrent) under
	// a condition. A write that loses the backend race reports
	// Satisfied=false with the real current state.
	PutIf(ctx context.Context, k key.Key, upd Update[V], expected ETag, cond Condition, retrieve RetrievePolicy) (Result[V], error)

	// SetDefaultIf writes def only when the key is absent AND the
	// condition is satisfied; it never overwrites an existing key.
	SetDefaultIf(ctx context.Context, k key.Key, def V, expected ETag, cond Condition, retrieve RetrievePolicy) (Result[V], error)

	// DiscardIf deletes only when the key is present and the condition is
	// satisfied. An absent key whose condition holds on absence is a no-op
	// success.
	DiscardIf(ctx context.Context, k key.Key, expected ETag, cond Condition) (Result[V], error)

	// Unconditional surface. Get raises *NotFoundError for absent keys;
	// Discard is idempotent.

	Get(ctx context.Context, k key.Key) (V, ETag, error)
	Set(ctx context.Context, k key.Key, v V) (ETag, error)
	Discard(ctx context.Context, k key.Key) error
	Contains(ctx context.Context, k key.Key) (bool, error)
	ETagOf(ctx context.Context, k key.Key) (ETag, error)
	Keys(ctx context.Context) ([]key.Key, error)
	Items(ctx context.Context, fn func(k key.Key, v V, etag ETag) bool) error
	Len(ctx context.Context) (int, error)

	// Params returns the construction surface of the handle; a handle can
	// be reconstructed identically from its own reported configuration.
	Params() Params

	Close(ctx context.Context) error
}

// Options tune a dictionary. Only Backend and Codec are required.
type Options[V any] struct {
	// Required
	Backend backend.Backend
	Codec   c.Codec[V]

	// Signer signs keys before they reach the backend and unsigns them on
	// enumeration. Nil disables signing.
	Signer *key.Signer

	// Check is the dynamic value constraint, applied on every read path
	// including iteration. A violation surfaces as *CheckError.
	Check func(V) error

	Logger Logger // nil => NopLogger
	Hooks  Hooks  // nil => NopHooks

	// MaxCreateAttempts bounds the insert/delete race loop in
	// SetDefaultIf; 0 => 3.
	MaxCreateAttempts int
}

// New builds a dictionary over the given backend.
func New[V any](opts Options[V]) (Dict[V], error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("casdict: backend is required")
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("casdict: codec is required")
	}
	d := &dict[V]{
		be:        opts.Backend,
		codec:     opts.Codec,
		signer:    opts.Signer,
		check:     opts.Check,
		maxCreate: coalesce(opts.MaxCreateAttempts, 3),
	}
	d.log = opts.Logger
	if d.log == nil {
		d.log = NopLogger{}
	}
	d.hooks = opts.Hooks
	if d.hooks == nil {
		d.hooks = NopHooks{}
	}
	if d.maxCreate < 1 {
		return nil, fmt.Errorf("casdict: MaxCreateAttempts must be positive")
	}
	return d, nil
}
