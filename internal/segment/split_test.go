package segment_test

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"narrator/internal/segment"
)

// buildText produces n sentences of roughly sentenceLen characters each.
func buildText(n, sentenceLen int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		prefix := fmt.Sprintf("Sentence %d ", i)
		body := strings.Repeat("w", max(1, sentenceLen-len(prefix)-1))
		b.WriteString(prefix + body + ".")
	}
	return b.String()
}

func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func TestSplitShortTextIsSingleSegment(t *testing.T) {
	text := "Short text. Still short!"
	for _, target := range []int{0, 1, 5, 12} {
		got := segment.Split(text, target, 2200)
		if len(got) != 1 || got[0] != text {
			t.Fatalf("target %d: expected single unchanged segment, got %q", target, got)
		}
	}
}

func TestSplitExactlyMaxCharsIsSingleSegment(t *testing.T) {
	text := strings.Repeat("a", 50)
	got := segment.Split(text, 4, 50)
	if len(got) != 1 {
		t.Fatalf("expected one segment, got %d", len(got))
	}
}

func TestSplitLongTextHonoursCapAndReassembles(t *testing.T) {
	text := buildText(60, 83) // ~5000 characters
	if utf8.RuneCountInString(text) < 4900 {
		t.Fatalf("fixture too short: %d", utf8.RuneCountInString(text))
	}
	policy := segment.DefaultPolicy()
	segments := policy.Plan(text)

	if len(segments) < policy.MinSegments || len(segments) > policy.MaxSegments {
		t.Fatalf("segment count %d outside [%d,%d]", len(segments), policy.MinSegments, policy.MaxSegments)
	}
	for i, seg := range segments {
		if n := utf8.RuneCountInString(seg); n > policy.MaxChars {
			t.Fatalf("segment %d has %d chars", i, n)
		}
		if !strings.HasSuffix(seg, ".") {
			t.Fatalf("segment %d does not end on a sentence boundary: %q", i, seg[len(seg)-10:])
		}
	}
	if squash(strings.Join(segments, " ")) != squash(text) {
		t.Fatal("segments do not reassemble to the input")
	}
}

func TestSplitRespectsCapAcrossLengths(t *testing.T) {
	for _, n := range []int{30, 45, 90, 150, 260} {
		text := buildText(n, 97)
		for _, maxChars := range []int{500, 1000, 2200} {
			segments := segment.Split(text, 0, maxChars)
			for i, seg := range segments {
				if l := utf8.RuneCountInString(seg); l > maxChars {
					t.Fatalf("n=%d max=%d: segment %d has %d chars", n, maxChars, i, l)
				}
			}
			if squash(strings.Join(segments, " ")) != squash(text) {
				t.Fatalf("n=%d max=%d: data lost or duplicated", n, maxChars)
			}
		}
	}
}

func TestSplitKeepsOversizeSentenceWhole(t *testing.T) {
	giant := strings.Repeat("x", 300) + "."
	text := "Intro sentence here. " + giant + " Outro sentence here."
	segments := segment.Split(text, 2, 100)
	found := false
	for _, seg := range segments {
		if seg == giant {
			found = true
		}
		if utf8.RuneCountInString(seg) > 100 && seg != giant {
			t.Fatalf("unexpected oversize segment %q", seg)
		}
	}
	if !found {
		t.Fatalf("expected oversize sentence emitted whole, got %q", segments)
	}
}

func TestSplitCountsCharactersNotBytes(t *testing.T) {
	sentence := strings.Repeat("é", 40) + "."
	text := strings.Repeat(sentence+" ", 3)
	text = strings.TrimSpace(text)
	// 3*41+2 = 125 characters but 248 bytes.
	got := segment.Split(text, 2, 130)
	if len(got) != 1 {
		t.Fatalf("expected single segment for 125 characters, got %d", len(got))
	}
}

func TestSentences(t *testing.T) {
	got := segment.Sentences("  Hello there.  How are you?\nFine!Thanks. Pi is 3.14 today.")
	want := []string{"Hello there.", "How are you?", "Fine!Thanks.", "Pi is 3.14 today."}
	if len(got) != len(want) {
		t.Fatalf("got %q want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sentence %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestDefaultTarget(t *testing.T) {
	cases := map[int]int{100: 2, 4000: 2, 9000: 4, 50000: 10}
	for length, want := range cases {
		if got := segment.DefaultTarget(length); got != want {
			t.Fatalf("DefaultTarget(%d) = %d want %d", length, got, want)
		}
	}
}

func TestPolicyTargetCount(t *testing.T) {
	p := segment.DefaultPolicy()
	cases := []struct {
		length int
		want   int
	}{
		{1000, 1},   // fits in one segment
		{3000, 3},   // base 2, 2.8 truncates to 2, clamped to 3
		{5000, 3},   // base 2, clamped to 3
		{7300, 5},   // base 4, 5.6
		{20000, 11}, // base 8, 11.2
	}
	for _, tc := range cases {
		text := strings.Repeat("a", tc.length)
		if got := p.TargetCount(text); got != tc.want {
			t.Fatalf("length %d: got %d want %d", tc.length, got, tc.want)
		}
	}
}

func TestPreviews(t *testing.T) {
	long := strings.Repeat("b", 150)
	previews := segment.Previews([]string{"short", long})
	if previews[0].Preview != "short" || previews[0].Length != 5 {
		t.Fatalf("unexpected first preview %+v", previews[0])
	}
	if previews[1].Index != 1 || previews[1].Length != 150 {
		t.Fatalf("unexpected second preview %+v", previews[1])
	}
	if !strings.HasSuffix(previews[1].Preview, "...") || utf8.RuneCountInString(previews[1].Preview) != 103 {
		t.Fatalf("expected truncated preview, got %q", previews[1].Preview)
	}
}
