package key

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFlattensNestedParts(t *testing.T) {
	k, err := New("users", []string{"eu", "berlin"}, []any{"42", Key{segs: []string{"profile"}}})
	require.NoError(t, err)
	assert.Equal(t, []string{"users", "eu", "berlin", "42", "profile"}, k.Segments())
}

func TestNewRejectsBadInput(t *testing.T) {
	cases := []struct {
		name  string
		parts []any
	}{
		{"empty key", nil},
		{"empty segment", []any{""}},
		{"dot", []any{"."}},
		{"dotdot", []any{"a", ".."}},
		{"control char", []any{"a\x00b"}},
		{"newline", []any{"a\nb"}},
		{"non-string leaf", []any{42}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.parts...)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "want *ValidationError, got %v", err)
		})
	}
}

func TestNewPrefixAllowsEmpty(t *testing.T) {
	p, err := NewPrefix()
	require.NoError(t, err)
	assert.Equal(t, 0, p.Len())

	_, err = New()
	require.Error(t, err)
}

func TestPrefixOperations(t *testing.T) {
	p := Key{segs: []string{"users", "eu"}}
	k := MustNew("users", "eu", "42")

	assert.True(t, k.HasPrefix(p))
	assert.False(t, p.HasPrefix(k))
	assert.Equal(t, MustNew("42"), k.TrimPrefix(p))
	assert.Equal(t, k, Concat(p, MustNew("42")))
}

func TestLessOrdersSegmentWise(t *testing.T) {
	assert.True(t, MustNew("a").Less(MustNew("a", "b")))
	assert.True(t, MustNew("a", "b").Less(MustNew("b")))
	assert.False(t, MustNew("b").Less(MustNew("a", "z")))
}

func TestSignRoundTrip(t *testing.T) {
	s, err := NewSigner([]byte("secret"), 8)
	require.NoError(t, err)

	k := MustNew("users", "42")
	signed := s.Sign(k)
	require.NotEqual(t, k, signed)
	for i, seg := range signed.Segments() {
		assert.Len(t, seg, len(k.Segments()[i])+8)
	}
	assert.True(t, s.Verify(signed))

	back, err := s.Unsign(signed)
	require.NoError(t, err)
	assert.Equal(t, k, back)
}

func TestUnsignIsUnchecked(t *testing.T) {
	s, err := NewSigner([]byte("secret"), 8)
	require.NoError(t, err)

	// wrong-secret key unsigns without complaint but fails Verify
	other, err := NewSigner([]byte("other"), 8)
	require.NoError(t, err)
	foreign := other.Sign(MustNew("users", "42"))

	assert.False(t, s.Verify(foreign))
	back, err := s.Unsign(foreign)
	require.NoError(t, err)
	assert.Equal(t, MustNew("users", "42"), back)

	// segment too short to carry a digest is the one unsign error
	_, err = s.Unsign(MustNew("short"))
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
}

func TestNewSignerRejectsBadDigestLen(t *testing.T) {
	for _, n := range []int{0, -1, 65} {
		_, err := NewSigner([]byte("secret"), n)
		require.Error(t, err, "digestLen %d", n)
	}
}

func TestJoinSplitRoundTrip(t *testing.T) {
	k := MustNew("a/b", "plain")
	member := Join(k, "/")
	assert.Equal(t, "a%2Fb/plain", member)

	back, err := Split(member, "/")
	require.NoError(t, err)
	assert.Equal(t, k, back)
}

func TestPathFansOutAndEscapes(t *testing.T) {
	root := t.TempDir()
	k := MustNew("users", "a/b")

	p, err := Path(root, k, 2)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(p, root))

	rel, err := filepath.Rel(root, p)
	require.NoError(t, err)
	parts := strings.Split(rel, string(filepath.Separator))
	require.Len(t, parts, 3)
	assert.Equal(t, FanoutDir("users", 2), parts[0])
	assert.Equal(t, "users", parts[1])
	assert.Equal(t, EscapeSegment("a/b"), parts[2])
	assert.NotContains(t, parts[2], "/")
}

func TestPathEmptyKeyIsRoot(t *testing.T) {
	root := t.TempDir()
	p, err := Path(root, Key{}, 2)
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(root), p)
}

func TestFanoutDirIsStable(t *testing.T) {
	assert.Equal(t, FanoutDir("users", 2), FanoutDir("users", 2))
	assert.Len(t, FanoutDir("users", 3), 3)
	assert.Len(t, FanoutDir("users", 0), DefaultFanout)
}
