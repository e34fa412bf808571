// Package backend defines the storage contract casdict dictionaries run on.
//
// Implementations MUST be safe for concurrent use and byte-for-byte
// transparent: Load must return exactly the same []byte that was previously
// passed to Store for a key (no prepended/appended metadata, no re-encoding,
// no mutation).
//
// Conditional writes are expressed as Preconditions evaluated against the
// key's current version token by the backend's own native primitive (mutex,
// atomic rename, server-side script). A lost precondition is reported as
// ok=false, never as an error; errors are reserved for policy violations and
// infrastructure failures.
package backend

import (
	"context"
	"fmt"

	"github.com/unkn0wn-root/casdict/key"
)

// Backend is the capability set the dictionary layer composes over.
type Backend interface {
	// ETag returns the current version token for k; ok=false when absent.
	ETag(ctx context.Context, k key.Key) (etag string, ok bool, err error)

	// Load returns a consistent (value, etag) pair; ok=false when absent.
	Load(ctx context.Context, k key.Key) (value []byte, etag string, ok bool, err error)

	// Store writes value iff pre holds against the current state and
	// returns the new etag. ok=false reports a lost precondition.
	// Append-only backends refuse overwrites with a *PolicyError even when
	// the precondition would hold.
	Store(ctx context.Context, k key.Key, value []byte, pre Precondition) (etag string, ok bool, err error)

	// Delete removes k iff pre holds. Deleting an absent key under Any or
	// IfAbsent is ok=true (idempotent); under IfMatch it is ok=false.
	// Append-only backends always refuse with a *PolicyError.
	Delete(ctx context.Context, k key.Key, pre Precondition) (ok bool, err error)

	// Keys lists stored keys in a deterministic order.
	Keys(ctx context.Context) ([]key.Key, error)

	// Items streams stored entries; fn returning false stops iteration.
	// Entries that vanish mid-iteration are skipped, not reported.
	Items(ctx context.Context, fn func(KV) bool) error

	// AppendOnly reports whether the backend refuses overwrites and deletes.
	AppendOnly() bool

	// Params returns the construction surface of the backend, sufficient to
	// rebuild an equivalent handle.
	Params() Params

	// Close releases resources.
	Close(ctx context.Context) error
}

// KV is one enumerated entry.
type KV struct {
	Key   key.Key
	ETag  string
	Value []byte
}

// Params is a backend's introspectable configuration.
type Params struct {
	Kind       string `yaml:"kind" json:"kind"`
	Root       string `yaml:"root,omitempty" json:"root,omitempty"`
	Bucket     string `yaml:"bucket,omitempty" json:"bucket,omitempty"`
	Prefix     string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	Ext        string `yaml:"ext,omitempty" json:"ext,omitempty"`
	Fanout     int    `yaml:"fanout,omitempty" json:"fanout,omitempty"`
	AppendOnly bool   `yaml:"append_only,omitempty" json:"append_only,omitempty"`
}

type preKind uint8

const (
	preAny preKind = iota
	preIfAbsent
	preIfMatch
)

// Precondition gates a Store or Delete on the key's current version.
type Precondition struct {
	kind preKind
	etag string
}

// Any holds unconditionally.
func Any() Precondition { return Precondition{kind: preAny} }

// IfAbsent holds only when the key has no stored value.
func IfAbsent() Precondition { return Precondition{kind: preIfAbsent} }

// IfMatch holds only when the key exists with exactly this etag.
func IfMatch(etag string) Precondition { return Precondition{kind: preIfMatch, etag: etag} }

// Holds evaluates the precondition against the observed state.
func (p Precondition) Holds(etag string, exists bool) bool {
	switch p.kind {
	case preIfAbsent:
		return !exists
	case preIfMatch:
		return exists && etag == p.etag
	default:
		return true
	}
}

// IsAny reports whether the precondition is unconditional.
func (p Precondition) IsAny() bool { return p.kind == preAny }

// MatchETag returns the etag an IfMatch precondition compares against.
func (p Precondition) MatchETag() (string, bool) {
	return p.etag, p.kind == preIfMatch
}

func (p Precondition) String() string {
	switch p.kind {
	case preIfAbsent:
		return "if-absent"
	case preIfMatch:
		return fmt.Sprintf("if-match(%s)", p.etag)
	default:
		return "any"
	}
}

// PolicyError reports a mutation forbidden by a backend or wrapper policy.
// It carries the policy name, not the attempted operation.
type PolicyError struct {
	Policy string // "append-only", "write-once"
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("backend: mutation forbidden by %s policy", e.Policy)
}
