package casdict

import "testing"

func TestConditionSatisfied(t *testing.T) {
	const (
		a = ETag("1")
		b = ETag("2")
	)
	cases := []struct {
		name             string
		cond             Condition
		actual, expected ETag
		want             bool
	}{
		{"any/equal", AnyETag, a, a, true},
		{"any/different", AnyETag, a, b, true},
		{"any/absent", AnyETag, ItemNotAvailable, a, true},

		{"same/equal", ETagIsTheSame, a, a, true},
		{"same/different", ETagIsTheSame, a, b, false},
		{"same/absent-vs-real", ETagIsTheSame, ItemNotAvailable, a, false},
		{"same/absent-vs-absent", ETagIsTheSame, ItemNotAvailable, ItemNotAvailable, true},

		{"changed/equal", ETagHasChanged, a, a, false},
		{"changed/different", ETagHasChanged, a, b, true},
		{"changed/appeared", ETagHasChanged, a, ItemNotAvailable, true},
		{"changed/vanished", ETagHasChanged, ItemNotAvailable, a, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.cond.Satisfied(tc.actual, tc.expected); got != tc.want {
				t.Fatalf("Satisfied(%q, %q) = %v, want %v", tc.actual, tc.expected, got, tc.want)
			}
		})
	}
}

func TestRetrievePolicyShouldFetch(t *testing.T) {
	const (
		a = ETag("1")
		b = ETag("2")
	)
	cases := []struct {
		name             string
		policy           RetrievePolicy
		actual, expected ETag
		want             bool
	}{
		// the default fetches on any token difference, including absence
		{"default/same", IfETagChanged, a, a, false},
		{"default/changed", IfETagChanged, a, b, true},
		{"default/vanished", IfETagChanged, ItemNotAvailable, a, true},
		{"default/appeared", IfETagChanged, a, ItemNotAvailable, true},

		{"always/same", AlwaysRetrieve, a, a, true},
		{"never/changed", NeverRetrieve, a, b, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.policy.ShouldFetch(tc.actual, tc.expected); got != tc.want {
				t.Fatalf("ShouldFetch(%q, %q) = %v, want %v", tc.actual, tc.expected, got, tc.want)
			}
		})
	}
}

// The fetch decision does not consult the condition: a trivially satisfied
// AnyETag with a stale expectation still fetches under the default policy.
func TestDefaultPolicyIgnoresConditionOutcome(t *testing.T) {
	actual, expected := ETag("5"), ETag("3")
	if !AnyETag.Satisfied(actual, expected) {
		t.Fatal("AnyETag must always be satisfied")
	}
	if !IfETagChanged.ShouldFetch(actual, expected) {
		t.Fatal("stale expectation must fetch even though the condition held")
	}
}

func TestItemNotAvailable(t *testing.T) {
	if ItemNotAvailable.Available() {
		t.Fatal("ItemNotAvailable must not report available")
	}
	if !ETag("1").Available() {
		t.Fatal("real tokens must report available")
	}
}
