package memory

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/casdict/backend"
	"github.com/unkn0wn-root/casdict/key"
)

func TestStoreLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New(false)
	k := key.MustNew("users", "42")

	_, ok, err := s.ETag(ctx, k)
	require.NoError(t, err)
	require.False(t, ok)

	et, ok, err := s.Store(ctx, k, []byte("v1"), backend.Any())
	require.NoError(t, err)
	require.True(t, ok)

	v, lt, ok, err := s.Load(ctx, k)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), v)
	assert.Equal(t, et, lt)
}

func TestPreconditions(t *testing.T) {
	ctx := context.Background()
	s := New(false)
	k := key.MustNew("k")

	// IfMatch against an absent key never holds
	_, ok, err := s.Store(ctx, k, []byte("x"), backend.IfMatch("1"))
	require.NoError(t, err)
	require.False(t, ok)

	et, ok, err := s.Store(ctx, k, []byte("v1"), backend.IfAbsent())
	require.NoError(t, err)
	require.True(t, ok)

	// second IfAbsent loses
	_, ok, err = s.Store(ctx, k, []byte("v2"), backend.IfAbsent())
	require.NoError(t, err)
	require.False(t, ok)

	// stale IfMatch loses, fresh one wins
	_, ok, err = s.Store(ctx, k, []byte("v2"), backend.IfMatch("bogus"))
	require.NoError(t, err)
	require.False(t, ok)

	et2, ok, err := s.Store(ctx, k, []byte("v2"), backend.IfMatch(et))
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEqual(t, et, et2)

	// delete mirrors store semantics
	ok, err = s.Delete(ctx, k, backend.IfMatch(et))
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = s.Delete(ctx, k, backend.IfMatch(et2))
	require.NoError(t, err)
	require.True(t, ok)

	// deleting an absent key unconditionally is idempotent
	ok, err = s.Delete(ctx, k, backend.Any())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestETagsAreStrictlyIncreasingAcrossViews(t *testing.T) {
	ctx := context.Background()
	root := New(false)
	a, err := root.Sub("a")
	require.NoError(t, err)
	b, err := root.Sub("b")
	require.NoError(t, err)

	var last uint64
	for i := 0; i < 5; i++ {
		for _, s := range []*Store{a, b, root} {
			et, ok, err := s.Store(ctx, key.MustNew("k", strconv.Itoa(i)), []byte("v"), backend.Any())
			require.NoError(t, err)
			require.True(t, ok)
			n, err := strconv.ParseUint(et, 10, 64)
			require.NoError(t, err)
			require.Greater(t, n, last, "etags must be strictly increasing table-wide")
			last = n
		}
	}
}

func TestSubViewsShareTheTable(t *testing.T) {
	ctx := context.Background()
	root := New(false)
	sub, err := root.Sub("users")
	require.NoError(t, err)

	_, ok, err := sub.Store(ctx, key.MustNew("42"), []byte("v"), backend.Any())
	require.NoError(t, err)
	require.True(t, ok)

	// the root sees the prefixed key, the view the bare one
	v, _, ok, err := root.Load(ctx, key.MustNew("users", "42"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	keys, err := sub.Keys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, key.MustNew("42"), keys[0])
}

func TestSubViewEnumerationIsScoped(t *testing.T) {
	ctx := context.Background()
	root := New(false)
	sub, err := root.Sub("a")
	require.NoError(t, err)

	for _, parts := range [][]any{{"a", "1"}, {"a", "2"}, {"b", "1"}} {
		_, ok, err := root.Store(ctx, key.MustNew(parts...), []byte("v"), backend.Any())
		require.NoError(t, err)
		require.True(t, ok)
	}

	keys, err := sub.Keys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 2)

	var n int
	require.NoError(t, sub.Items(ctx, func(kv backend.KV) bool {
		n++
		return true
	}))
	assert.Equal(t, 2, n)
}

func TestAppendOnly(t *testing.T) {
	ctx := context.Background()
	s := New(true)
	k := key.MustNew("k")

	_, ok, err := s.Store(ctx, k, []byte("v1"), backend.Any())
	require.NoError(t, err)
	require.True(t, ok)

	var perr *backend.PolicyError
	_, _, err = s.Store(ctx, k, []byte("v2"), backend.Any())
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "append-only", perr.Policy)

	_, err = s.Delete(ctx, k, backend.Any())
	require.True(t, errors.As(err, &perr))

	v, _, ok, err := s.Load(ctx, k)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), v)
}

func TestLoadCopiesValue(t *testing.T) {
	ctx := context.Background()
	s := New(false)
	k := key.MustNew("k")

	_, _, err := s.Store(ctx, k, []byte("abc"), backend.Any())
	require.NoError(t, err)

	v, _, _, err := s.Load(ctx, k)
	require.NoError(t, err)
	v[0] = 'x'

	again, _, _, err := s.Load(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}

func TestParams(t *testing.T) {
	s := New(true)
	sub, err := s.Sub("users", "eu")
	require.NoError(t, err)

	p := sub.Params()
	assert.Equal(t, "memory", p.Kind)
	assert.Equal(t, "users/eu", p.Prefix)
	assert.True(t, p.AppendOnly)
}
