package ristretto

import (
	"bytes"
	"context"
	"testing"
)

func newProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := New(Config{NumCounters: 1000, MaxCost: 1 << 20, BufferItems: 64})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { p.Close(context.Background()) })
	return p
}

func TestNewValidatesConfig(t *testing.T) {
	for _, cfg := range []Config{
		{MaxCost: 1, BufferItems: 1},
		{NumCounters: 1, BufferItems: 1},
		{NumCounters: 1, MaxCost: 1},
	} {
		if _, err := New(cfg); err == nil {
			t.Fatalf("config %+v must be rejected", cfg)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t)

	in := []byte(`{"name":"ada"}`)
	ok, err := p.Set(ctx, "val:t:k", in, int64(len(in)), 0)
	if err != nil || !ok {
		t.Fatalf("set: ok=%v err=%v", ok, err)
	}
	// writes apply through a buffer; flush before reading back
	p.Wait()

	out, hit, err := p.Get(ctx, "val:t:k")
	if err != nil || !hit {
		t.Fatalf("get: hit=%v err=%v", hit, err)
	}
	if !bytes.Equal(out, in) {
		t.Fatalf("stored bytes must come back unchanged: %q", out)
	}

	if err := p.Del(ctx, "val:t:k"); err != nil {
		t.Fatal(err)
	}
	if _, hit, _ := p.Get(ctx, "val:t:k"); hit {
		t.Fatal("deleted entry must miss")
	}
}

func TestMissIsNotAnError(t *testing.T) {
	p := newProvider(t)
	v, hit, err := p.Get(context.Background(), "etag:t:absent")
	if v != nil || hit || err != nil {
		t.Fatalf("miss: v=%v hit=%v err=%v", v, hit, err)
	}
}
