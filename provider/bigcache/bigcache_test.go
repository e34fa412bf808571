package bigcache

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	p, err := New(Config{LifeWindow: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close(ctx)

	if _, hit, err := p.Get(ctx, "val:t:k"); err != nil || hit {
		t.Fatalf("empty cache: hit=%v err=%v", hit, err)
	}

	in := []byte(`{"name":"ada"}`)
	ok, err := p.Set(ctx, "val:t:k", in, int64(len(in)), time.Minute)
	if err != nil || !ok {
		t.Fatalf("set: ok=%v err=%v", ok, err)
	}

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

func TestOverwriteReplaces(t *testing.T) {
	ctx := context.Background()
	p, err := New(Config{LifeWindow: time.Minute, MaxEntrySize: 64})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close(ctx)

	for _, v := range []string{"v1", "v2-longer"} {
		if ok, err := p.Set(ctx, "etag:t:k", []byte(v), int64(len(v)), time.Minute); err != nil || !ok {
			t.Fatalf("set %q: ok=%v err=%v", v, ok, err)
		}
	}
	out, hit, err := p.Get(ctx, "etag:t:k")
	if err != nil || !hit || string(out) != "v2-longer" {
		t.Fatalf("got %q hit=%v err=%v", out, hit, err)
	}
}
