package textutil

import (
	"strings"
	"testing"
)

func TestSanitizeToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Vocab-42", "vocab-42"},
		{"  owner id ", "owner_id"},
		{"Café/Crème", "cafe_creme"},
		{"../etc", "etc"},
		{"", "unknown"},
		{"???", "unknown"},
	}
	for _, tt := range tests {
		if got := SanitizeToken(tt.in); got != tt.want {
			t.Errorf("SanitizeToken(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeTokenCollapsesAndCaps(t *testing.T) {
	if got := SanitizeToken("a  //  b__c"); got != "a_b_c" {
		t.Fatalf("SanitizeToken = %q", got)
	}
	long := SanitizeToken(strings.Repeat("ab", 50))
	if len(long) != 64 {
		t.Fatalf("expected 64 byte token, got %d", len(long))
	}
}

func TestNormalizeWord(t *testing.T) {
	decomposed := "cafe\u0301"
	if got := NormalizeWord("  " + decomposed + "\t au  lait "); got != "caf\u00e9 au lait" {
		t.Fatalf("NormalizeWord = %q", got)
	}
}

func TestFoldWordIgnoresCase(t *testing.T) {
	if FoldWord("Apple") != FoldWord("APPLE") {
		t.Fatal("expected folded words to match")
	}
	if FoldWord("Apple") == FoldWord("Apples") {
		t.Fatal("distinct words must not fold together")
	}
}

func TestNormalizeTextKeepsInteriorWhitespace(t *testing.T) {
	in := "  One.\n\nTwo.  "
	if got := NormalizeText(in); got != "One.\n\nTwo." {
		t.Fatalf("NormalizeText = %q", got)
	}
}

func TestPathKeyKeepsDistinctOwnersApart(t *testing.T) {
	keys := map[string]string{}
	for _, id := range []string{"Alice", "alice", "a.b", "a_b", "Café", "Cafe", "???", "!!!"} {
		key := PathKey(id)
		if other, dup := keys[key]; dup {
			t.Fatalf("PathKey(%q) collides with PathKey(%q): %s", id, other, key)
		}
		keys[key] = id
		if strings.ContainsAny(key, `/\.`) {
			t.Fatalf("PathKey(%q) = %q is not a safe path element", id, key)
		}
	}
	if PathKey("alice") != PathKey("  alice ") {
		t.Fatal("expected surrounding whitespace to be ignored")
	}
	if got := PathKey("Vocab-42"); !strings.HasPrefix(got, "vocab-42-") || len(got) != len("vocab-42-")+16 {
		t.Fatalf("PathKey(Vocab-42) = %q", got)
	}
	if got := PathKey(strings.Repeat("x", 200)); len(got) > keyPrefixLen+1+2*keyDigestSize {
		t.Fatalf("PathKey too long: %d", len(got))
	}
}
