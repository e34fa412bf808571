package casdict

import "fmt"

// ETag is an opaque version token for a stored value. Tokens are only ever
// compared for equality; their content carries no meaning to callers.
type ETag string

// ItemNotAvailable is the reserved ETag reporting that a key holds no value
// and therefore has no real version token. It compares equal only to itself
// and is never produced by a backend for a stored value.
const ItemNotAvailable ETag = "~item-not-available~"

// Available reports whether e denotes a real stored version.
func (e ETag) Available() bool { return e != ItemNotAvailable }

// Condition selects how an expected ETag is compared against the actual one
// during a conditional operation.
type Condition uint8

const (
	// AnyETag is satisfied regardless of the actual version.
	AnyETag Condition = iota
	// ETagIsTheSame is satisfied iff actual == expected.
	// ItemNotAvailable compares equal only to itself.
	ETagIsTheSame
	// ETagHasChanged is satisfied iff actual != expected.
	ETagHasChanged
)

// Satisfied evaluates the condition.
func (c Condition) Satisfied(actual, expected ETag) bool {
	switch c {
	case ETagIsTheSame:
		return actual == expected
	case ETagHasChanged:
		return actual != expected
	default:
		return true
	}
}

func (c Condition) valid() bool { return c <= ETagHasChanged }

func (c Condition) String() string {
	switch c {
	case AnyETag:
		return "any-etag"
	case ETagIsTheSame:
		return "etag-is-the-same"
	case ETagHasChanged:
		return "etag-has-changed"
	default:
		return fmt.Sprintf("condition(%d)", uint8(c))
	}
}

// RetrievePolicy decides whether a conditional operation populates the
// result value. The zero value is IfETagChanged.
type RetrievePolicy uint8

const (
	// IfETagChanged fetches only when actual != expected. The comparison is
	// deliberately independent of whether the condition itself was
	// satisfied: with AnyETag and a stale expectation the condition holds
	// trivially, yet the value is still fetched because the caller's copy
	// is out of date.
	IfETagChanged RetrievePolicy = iota
	// AlwaysRetrieve fetches whenever a value exists.
	AlwaysRetrieve
	// NeverRetrieve never fetches; present values report ValueNotRetrieved.
	NeverRetrieve
)

// ShouldFetch evaluates the policy against the observed and expected tokens.
func (p RetrievePolicy) ShouldFetch(actual, expected ETag) bool {
	switch p {
	case AlwaysRetrieve:
		return true
	case NeverRetrieve:
		return false
	default:
		return actual != expected
	}
}

func (p RetrievePolicy) valid() bool { return p <= NeverRetrieve }

func (p RetrievePolicy) String() string {
	switch p {
	case IfETagChanged:
		return "if-etag-changed"
	case AlwaysRetrieve:
		return "always-retrieve"
	case NeverRetrieve:
		return "never-retrieve"
	default:
		return fmt.Sprintf("retrieve-policy(%d)", uint8(p))
	}
}
