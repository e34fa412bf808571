// Package memory implements the in-process casdict backend: a shared table
// guarded by one mutex, with a single monotonic counter as the version
// source. Prefix sub-views created with Sub share the table and the counter,
// so etags observed through any view of the same table are strictly
// increasing and globally unique. Nothing is persisted across restarts.
package memory

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/unkn0wn-root/casdict/backend"
	"github.com/unkn0wn-root/casdict/key"
)

// table is the storage shared by every view.
type table struct {
	mu   sync.Mutex
	seq  uint64
	rows map[string]*row
}

type row struct {
	key   key.Key
	value []byte
	etag  string
	order uint64 // insertion tick, for deterministic iteration
}

// Store is one view of an in-memory table. The zero value is not usable;
// construct with New and derive scoped views with Sub.
type Store struct {
	tbl        *table
	prefix     key.Key
	appendOnly bool
}

var _ backend.Backend = (*Store)(nil)

// New creates a fresh table and returns the root view over it.
func New(appendOnly bool) *Store {
	return &Store{
		tbl:        &table{rows: make(map[string]*row)},
		appendOnly: appendOnly,
	}
}

// Sub returns a view scoped under prefix. The view shares the underlying
// table and version counter with its parent; it does not copy data.
func (s *Store) Sub(prefix ...any) (*Store, error) {
	p, err := key.NewPrefix(prefix...)
	if err != nil {
		return nil, err
	}
	return &Store{
		tbl:        s.tbl,
		prefix:     key.Concat(s.prefix, p),
		appendOnly: s.appendOnly,
	}, nil
}

// mapKey joins segments with NUL, which validation keeps out of segments.
func mapKey(k key.Key) string {
	return strings.Join(k.Segments(), "\x00")
}

func (s *Store) full(k key.Key) key.Key { return key.Concat(s.prefix, k) }

// next must be called with the table lock held.
func (t *table) next() uint64 {
	t.seq++
	return t.seq
}

func (s *Store) ETag(_ context.Context, k key.Key) (string, bool, error) {
	t := s.tbl
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.rows[mapKey(s.full(k))]
	if !ok {
		return "", false, nil
	}
	return r.etag, true, nil
}

func (s *Store) Load(_ context.Context, k key.Key) ([]byte, string, bool, error) {
	t := s.tbl
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.rows[mapKey(s.full(k))]
	if !ok {
		return nil, "", false, nil
	}
	v := make([]byte, len(r.value))
	copy(v, r.value)
	return v, r.etag, true, nil
}

func (s *Store) Store(_ context.Context, k key.Key, value []byte, pre backend.Precondition) (string, bool, error) {
	fk := s.full(k)
	mk := mapKey(fk)

	t := s.tbl
	t.mu.Lock()
	defer t.mu.Unlock()

	cur, exists := t.rows[mk]
	if exists && s.appendOnly {
		return "", false, &backend.PolicyError{Policy: "append-only"}
	}
	curETag := ""
	if exists {
		curETag = cur.etag
	}
	if !pre.Holds(curETag, exists) {
		return "", false, nil
	}

	v := make([]byte, len(value))
	copy(v, value)
	tick := t.next()
	etag := strconv.FormatUint(tick, 10)
	if exists {
		cur.value = v
		cur.etag = etag
	} else {
		t.rows[mk] = &row{key: fk, value: v, etag: etag, order: tick}
	}
	return etag, true, nil
}

func (s *Store) Delete(_ context.Context, k key.Key, pre backend.Precondition) (bool, error) {
	if s.appendOnly {
		return false, &backend.PolicyError{Policy: "append-only"}
	}
	mk := mapKey(s.full(k))

	t := s.tbl
	t.mu.Lock()
	defer t.mu.Unlock()

	cur, exists := t.rows[mk]
	curETag := ""
	if exists {
		curETag = cur.etag
	}
	if !pre.Holds(curETag, exists) {
		return false, nil
	}
	delete(t.rows, mk)
	return true, nil
}

// snapshot copies the view's rows in insertion order, releasing the lock
// before any caller code runs.
func (s *Store) snapshot() []backend.KV {
	t := s.tbl
	t.mu.Lock()
	rows := make([]*row, 0, len(t.rows))
	for _, r := range t.rows {
		if r.key.HasPrefix(s.prefix) {
			rows = append(rows, r)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].order < rows[j].order })

	out := make([]backend.KV, len(rows))
	for i, r := range rows {
		v := make([]byte, len(r.value))
		copy(v, r.value)
		out[i] = backend.KV{Key: r.key.TrimPrefix(s.prefix), ETag: r.etag, Value: v}
	}
	t.mu.Unlock()
	return out
}

func (s *Store) Keys(_ context.Context) ([]key.Key, error) {
	kvs := s.snapshot()
	keys := make([]key.Key, len(kvs))
	for i, kv := range kvs {
		keys[i] = kv.Key
	}
	return keys, nil
}

func (s *Store) Items(_ context.Context, fn func(backend.KV) bool) error {
	for _, kv := range s.snapshot() {
		if !fn(kv) {
			return nil
		}
	}
	return nil
}

func (s *Store) AppendOnly() bool { return s.appendOnly }

func (s *Store) Params() backend.Params {
	return backend.Params{
		Kind:       "memory",
		Prefix:     s.prefix.String(),
		AppendOnly: s.appendOnly,
	}
}

func (s *Store) Close(context.Context) error { return nil }
