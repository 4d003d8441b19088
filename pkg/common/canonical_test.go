package common

import "testing"

func TestCanonicalIDAcceptsHyphenatedAndHex32(t *testing.T) {
	hyphenated := "11111111-1111-1111-1111-111111111111"
	hex32 := "11111111111111111111111111111111"

	a, err := CanonicalID(hyphenated)
	if err != nil {
		t.Fatalf("hyphenated: %v", err)
	}
	b, err := CanonicalID(hex32)
	if err != nil {
		t.Fatalf("hex32: %v", err)
	}
	if a != b {
		t.Fatalf("expected equal canonical forms, got %q vs %q", a, b)
	}
	if len(a) != 32 {
		t.Fatalf("expected 32-char canonical id, got %d chars", len(a))
	}
}

func TestCanonicalIDRejectsGarbage(t *testing.T) {
	if _, err := CanonicalID("not-a-uuid"); err == nil {
		t.Fatal("expected error for malformed id")
	}
}

func TestDedupeIDsDropsNilAndDuplicates(t *testing.T) {
	nilID := "00000000000000000000000000000000"
	dup := "22222222222222222222222222222222"
	out := DedupeIDs([]string{dup, dup, nilID, "bad-id"})
	if len(out) != 1 || out[0] != dup {
		t.Fatalf("expected [%s], got %v", dup, out)
	}
}

func TestUnionIDsDeduplicatesAndSorts(t *testing.T) {
	a := []string{"22222222222222222222222222222222"}
	b := []string{"11111111111111111111111111111111", "22222222222222222222222222222222"}
	out := UnionIDs(a, b)
	if len(out) != 2 {
		t.Fatalf("expected 2 unique ids, got %d", len(out))
	}
	if out[0] > out[1] {
		t.Fatalf("expected sorted output, got %v", out)
	}
}

func TestDedupeConceptsCaseInsensitive(t *testing.T) {
	out := DedupeConcepts([]string{"Cat", "cat", "Dog", ""})
	if len(out) != 2 || out[0] != "Cat" || out[1] != "Dog" {
		t.Fatalf("unexpected dedup result: %v", out)
	}
}
