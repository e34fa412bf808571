// Package casdict is a persistent dictionary with optimistic concurrency
// control. Every stored value carries an opaque version token (ETag); reads
// and writes can be made conditional on a previously observed token, and a
// lost race is reported as data (Satisfied=false plus the real current
// state), never as a retryable error the caller has to parse.
//
// A dictionary is a generic Dict[V] composed from three pluggable parts:
//
//   - a backend.Backend holding raw bytes with native conditional
//     primitives (memory, file, redis),
//   - a codec.Codec[V] serializing V (json, cbor, msgpack, protobuf, raw),
//   - optional key signing, value checks, caching (cache) and mutation
//     policies (policy).
//
// Construction does no I/O; the first operation touches the backend.
//
//	be := memory.New(false)
//	d, err := casdict.New(casdict.Options[Config]{
//		Backend: be,
//		Codec:   codec.JSON[Config]{},
//	})
//	res, err := d.PutIf(ctx, k, casdict.Value(cfg), etag,
//		casdict.ETagIsTheSame, casdict.IfETagChanged)
package casdict
