package casdict

// ValueState tags the Value field of a Result. The three states are the
// process-wide sentinels of the protocol: a value that was fetched, a value
// intentionally not fetched, and "no value stored at all".
type ValueState uint8

const (
	// ValueNotRetrieved marks a value present in the store but intentionally
	// not fetched under the active RetrievePolicy.
	ValueNotRetrieved ValueState = iota
	// ValueRetrieved marks Value as populated, either from the store or
	// from an accepted write.
	ValueRetrieved
	// ValueNotAvailable marks a key with no stored value.
	ValueNotAvailable
)

func (s ValueState) String() string {
	switch s {
	case ValueRetrieved:
		return "retrieved"
	case ValueNotAvailable:
		return "not-available"
	default:
		return "not-retrieved"
	}
}

// Result reports the outcome of one conditional operation. A Result is
// created fresh per call, never mutated after return, and owned solely by
// the caller.
type Result[V any] struct {
	// Satisfied reports whether the condition held against the actual etag.
	Satisfied bool
	// Mutated reports whether the operation changed the stored state.
	Mutated bool
	// Actual is the version observed during the operation;
	// ItemNotAvailable when the key was absent.
	Actual ETag
	// Resulting is the version after the operation. Equal to Actual unless
	// the operation mutated.
	Resulting ETag
	// Value is meaningful only when ValueState is ValueRetrieved.
	Value V
	// ValueState tags Value.
	ValueState ValueState
}

type updateKind uint8

const (
	updateValue updateKind = iota
	updateKeep
	updateDelete
)

// Update is the value argument of PutIf. Besides an ordinary value it can
// carry one of the two write jokers: keep the current value (a pure
// condition probe) or delete the key instead of writing.
type Update[V any] struct {
	kind  updateKind
	value V
}

// Value wraps an ordinary value to write.
func Value[V any](v V) Update[V] { return Update[V]{kind: updateValue, value: v} }

// KeepCurrent probes the condition without mutating anything.
func KeepCurrent[V any]() Update[V] { return Update[V]{kind: updateKeep} }

// DeleteCurrent removes the key when the condition is satisfied.
func DeleteCurrent[V any]() Update[V] { return Update[V]{kind: updateDelete} }

// IsJoker reports whether the update carries no ordinary value.
func (u Update[V]) IsJoker() bool { return u.kind != updateValue }

// IsKeepCurrent reports the probe joker.
func (u Update[V]) IsKeepCurrent() bool { return u.kind == updateKeep }

// IsDeleteCurrent reports the delete joker.
func (u Update[V]) IsDeleteCurrent() bool { return u.kind == updateDelete }

// Get returns the ordinary value; ok=false for jokers.
func (u Update[V]) Get() (V, bool) { return u.value, u.kind == updateValue }
