package codec

import (
	"strings"
	"testing"
)

type sample struct {
	Name string `json:"name" msgpack:"name"`
	Age  int    `json:"age" msgpack:"age"`
}

func TestRoundTrips(t *testing.T) {
	in := sample{Name: "ada", Age: 36}
	codecs := map[string]Codec[sample]{
		"json":    JSON[sample]{},
		"cbor":    MustCBOR[sample](false),
		"msgpack": Msgpack[sample]{},
	}
	for ext, c := range codecs {
		t.Run(ext, func(t *testing.T) {
			if c.Ext() != ext {
				t.Fatalf("Ext() = %q, want %q", c.Ext(), ext)
			}
			b, err := c.Encode(in)
			if err != nil {
				t.Fatal(err)
			}
			out, err := c.Decode(b)
			if err != nil {
				t.Fatal(err)
			}
			if out != in {
				t.Fatalf("got %+v, want %+v", out, in)
			}
		})
	}
}

func TestDeterministicCBORIsStable(t *testing.T) {
	c := MustCBOR[map[string]int](true)
	in := map[string]int{"b": 2, "a": 1, "c": 3}

	first, err := c.Encode(in)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		again, err := c.Encode(in)
		if err != nil {
			t.Fatal(err)
		}
		if string(again) != string(first) {
			t.Fatal("deterministic encoding must be byte-stable")
		}
	}
}

func TestLimitRejectsOversizedPayloads(t *testing.T) {
	c := Limit[sample]{Inner: JSON[sample]{}, MaxDecode: 4}

	b, err := c.Encode(sample{Name: strings.Repeat("x", 100)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Decode(b); err == nil {
		t.Fatal("oversized payload must be rejected")
	}

	// no limit when MaxDecode <= 0
	c.MaxDecode = 0
	if _, err := c.Decode(b); err != nil {
		t.Fatal(err)
	}

	if c.Ext() != "json" {
		t.Fatalf("Ext must forward: %q", c.Ext())
	}
}

func TestRawCodecs(t *testing.T) {
	b, err := Bytes{}.Encode([]byte("raw"))
	if err != nil || string(b) != "raw" {
		t.Fatalf("Bytes: %q %v", b, err)
	}
	s, err := String{}.Decode([]byte("txt"))
	if err != nil || s != "txt" {
		t.Fatalf("String: %q %v", s, err)
	}
}
