// Package key validates and encodes the segment sequences casdict uses as
// storage keys. A key is an ordered, non-empty list of non-empty string
// segments; segments equal to "." or ".." and segments carrying control
// characters are rejected outright so a key can never smuggle a path
// traversal into a backend. Keys can be HMAC-signed per segment and mapped
// to digest-fanout filesystem paths.
package key

import (
	"fmt"
	"strings"
)

// Key is an immutable, ordered sequence of validated string segments.
// The zero value is the empty key; it is only meaningful as a view prefix
// and is rejected by New.
type Key struct {
	segs []string
}

// ValidationError reports a malformed key, segment, or path mapping.
type ValidationError struct {
	Segment string // offending segment, when one exists
	Reason  string
}

func (e *ValidationError) Error() string {
	if e.Segment != "" {
		return fmt.Sprintf("key: invalid segment %q: %s", e.Segment, e.Reason)
	}
	return "key: " + e.Reason
}

// New builds a Key from parts. A part may be a string, a Key, a []string, or
// a []any nesting more of the same; nesting is flattened left to right.
// Empty input, empty segments, "." or "..", control characters, and
// non-string leaves are all rejected with a *ValidationError.
func New(parts ...any) (Key, error) {
	k, err := NewPrefix(parts...)
	if err != nil {
		return Key{}, err
	}
	if k.Len() == 0 {
		return Key{}, &ValidationError{Reason: "key needs at least one segment"}
	}
	return k, nil
}

// NewPrefix is New without the non-empty requirement. An empty prefix is a
// valid view scope (it addresses the root itself).
func NewPrefix(parts ...any) (Key, error) {
	segs, err := flatten(nil, parts)
	if err != nil {
		return Key{}, err
	}
	for _, seg := range segs {
		if err := CheckSegment(seg); err != nil {
			return Key{}, err
		}
	}
	return Key{segs: segs}, nil
}

// MustNew is New for package-level variables in tests and examples.
func MustNew(parts ...any) Key {
	k, err := New(parts...)
	if err != nil {
		panic(err)
	}
	return k
}

func flatten(dst []string, parts []any) ([]string, error) {
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			dst = append(dst, v)
		case Key:
			dst = append(dst, v.segs...)
		case []string:
			dst = append(dst, v...)
		case []any:
			var err error
			if dst, err = flatten(dst, v); err != nil {
				return nil, err
			}
		default:
			return nil, &ValidationError{Reason: fmt.Sprintf("segment must be a string, got %T", p)}
		}
	}
	return dst, nil
}

// CheckSegment validates a single segment against the keyspace rules.
func CheckSegment(seg string) error {
	if seg == "" {
		return &ValidationError{Reason: "empty segment"}
	}
	if seg == "." || seg == ".." {
		return &ValidationError{Segment: seg, Reason: "path traversal token"}
	}
	for _, r := range seg {
		if r < 0x20 {
			return &ValidationError{Segment: seg, Reason: fmt.Sprintf("control character %#x", r)}
		}
	}
	return nil
}

// Segments returns a copy of the segment list.
func (k Key) Segments() []string {
	out := make([]string, len(k.segs))
	copy(out, k.segs)
	return out
}

// Len returns the number of segments.
func (k Key) Len() int { return len(k.segs) }

// String joins the segments with "/" for display. It is not a storage
// encoding; see Join for that.
func (k Key) String() string { return strings.Join(k.segs, "/") }

// Equal reports structural equality.
func (k Key) Equal(o Key) bool {
	if len(k.segs) != len(o.segs) {
		return false
	}
	for i := range k.segs {
		if k.segs[i] != o.segs[i] {
			return false
		}
	}
	return true
}

// Less orders keys segment-wise, shorter prefix first.
func (k Key) Less(o Key) bool {
	for i := 0; i < len(k.segs) && i < len(o.segs); i++ {
		if k.segs[i] != o.segs[i] {
			return k.segs[i] < o.segs[i]
		}
	}
	return len(k.segs) < len(o.segs)
}

// Child returns a new key with parts appended.
func (k Key) Child(parts ...any) (Key, error) {
	extra, err := NewPrefix(parts...)
	if err != nil {
		return Key{}, err
	}
	segs := make([]string, 0, len(k.segs)+len(extra.segs))
	segs = append(segs, k.segs...)
	segs = append(segs, extra.segs...)
	if len(segs) == 0 {
		return Key{}, &ValidationError{Reason: "key needs at least one segment"}
	}
	return Key{segs: segs}, nil
}

// HasPrefix reports whether k starts with the segments of p.
func (k Key) HasPrefix(p Key) bool {
	if len(p.segs) > len(k.segs) {
		return false
	}
	for i := range p.segs {
		if k.segs[i] != p.segs[i] {
			return false
		}
	}
	return true
}

// TrimPrefix returns k without the leading segments of p.
// The caller must have checked HasPrefix first.
func (k Key) TrimPrefix(p Key) Key {
	return Key{segs: k.segs[len(p.segs):]}
}

// Concat concatenates a prefix and a key.
func Concat(prefix, k Key) Key {
	if prefix.Len() == 0 {
		return k
	}
	segs := make([]string, 0, len(prefix.segs)+len(k.segs))
	segs = append(segs, prefix.segs...)
	segs = append(segs, k.segs...)
	return Key{segs: segs}
}
