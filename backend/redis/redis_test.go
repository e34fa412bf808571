package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/casdict/backend"
	"github.com/unkn0wn-root/casdict/key"
)

func newStore(t *testing.T, mut func(*Config)) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := Config{Client: client, Bucket: "test"}
	if mut != nil {
		mut(&cfg)
	}
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{})
	require.ErrorIs(t, err, ErrNilClient)
}

func TestStoreLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, nil)
	k := key.MustNew("users", "42")

	_, ok, err := s.ETag(ctx, k)
	require.NoError(t, err)
	require.False(t, ok)

	et, ok, err := s.Store(ctx, k, []byte(`{"a":1}`), backend.IfAbsent())
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, et)

	v, lt, ok, err := s.Load(ctx, k)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte(`{"a":1}`), v)
	assert.Equal(t, et, lt)
}

func TestConditionalWrites(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, nil)
	k := key.MustNew("k")

	et1, ok, err := s.Store(ctx, k, []byte("v1"), backend.IfAbsent())
	require.NoError(t, err)
	require.True(t, ok)

	// a second create loses
	_, ok, err = s.Store(ctx, k, []byte("v2"), backend.IfAbsent())
	require.NoError(t, err)
	require.False(t, ok)

	// replace only under the current token
	_, ok, err = s.Store(ctx, k, []byte("v2"), backend.IfMatch("bogus"))
	require.NoError(t, err)
	require.False(t, ok)

	et2, ok, err := s.Store(ctx, k, []byte("v2"), backend.IfMatch(et1))
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEqual(t, et1, et2)

	v, lt, ok, err := s.Load(ctx, k)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), v)
	assert.Equal(t, et2, lt)
}

func TestConditionalDelete(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, nil)
	k := key.MustNew("k")

	et, ok, err := s.Store(ctx, k, []byte("v"), backend.Any())
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.Delete(ctx, k, backend.IfMatch("bogus"))
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = s.Delete(ctx, k, backend.IfMatch(et))
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = s.ETag(ctx, k)
	require.NoError(t, err)
	require.False(t, ok)

	// idempotent unconditional delete
	ok, err = s.Delete(ctx, k, backend.Any())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAppendOnly(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, func(c *Config) { c.AppendOnly = true })
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
}

func TestKeysAndItemsScopedToBucket(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, nil)

	want := []key.Key{key.MustNew("a", "1"), key.MustNew("b")}
	for _, k := range want {
		_, ok, err := s.Store(ctx, k, []byte("v"), backend.Any())
		require.NoError(t, err)
		require.True(t, ok)
	}

	// a foreign member under the same database, outside the bucket
	require.NoError(t, s.rdb.Set(ctx, "other/key", "x", 0).Err())

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.True(t, keys[0].Equal(want[0]))
	assert.True(t, keys[1].Equal(want[1]))

	var items int
	require.NoError(t, s.Items(ctx, func(kv backend.KV) bool {
		items++
		assert.Equal(t, []byte("v"), kv.Value)
		assert.NotEmpty(t, kv.ETag)
		return true
	}))
	assert.Equal(t, 2, items)
}

func TestSubViews(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, nil)
	sub, err := s.Sub("users")
	require.NoError(t, err)

	_, ok, err := sub.Store(ctx, key.MustNew("42"), []byte("v"), backend.Any())
	require.NoError(t, err)
	require.True(t, ok)

	v, _, ok, err := s.Load(ctx, key.MustNew("users", "42"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	keys, err := sub.Keys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.True(t, keys[0].Equal(key.MustNew("42")))
}

func TestSegmentsWithSlashAreEscaped(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, nil)
	k := key.MustNew("a/b")

	_, ok, err := s.Store(ctx, k, []byte("v"), backend.Any())
	require.NoError(t, err)
	require.True(t, ok)

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.True(t, keys[0].Equal(k))
}

func TestParams(t *testing.T) {
	s := newStore(t, nil)
	p := s.Params()
	assert.Equal(t, "redis", p.Kind)
	assert.Equal(t, "test/", p.Bucket)
}
