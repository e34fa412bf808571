// Package codec defines the serialization collaborator used by casdict.
// The dictionary core never inspects value bytes; it hands them to a
// Codec[V] and only relies on Ext() as a stable, file-extension-like tag for
// the format (backends use it to name and filter stored entries).
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)

	// Ext is the stable format tag ("json", "cbor", ...). It must not
	// contain path separators or dots.
	Ext() string
}
