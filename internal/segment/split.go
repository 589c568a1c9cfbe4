package segment

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// Greedy splits only happen once the pending segment exceeds this share of maxChars.
	minSplitRatio = 0.6
	// Redistribution only halves segments longer than this share of maxChars.
	halveRatio = 0.8
)

// DefaultTarget derives a segment count from the text length when the caller
// does not supply one.
func DefaultTarget(length int) int {
	return clamp(length/2000, 2, 10)
}

// Split cuts text into ordered segments of at most maxChars characters,
// aiming for targetCount segments. A targetCount <= 0 derives one from the
// text length. Lengths are counted in characters, not bytes.
func Split(text string, targetCount, maxChars int) []string {
	length := runeLen(text)
	if maxChars <= 0 || length <= maxChars {
		return []string{text}
	}

	sentences := Sentences(text)
	if targetCount <= 0 {
		targetCount = DefaultTarget(length)
	}
	ideal := float64(length) / float64(targetCount)
	floor := float64(maxChars) * minSplitRatio

	segments := make([]string, 0, targetCount)
	var current strings.Builder
	currentLen := 0
	for _, sentence := range sentences {
		sentenceLen := runeLen(sentence)
		testLen := sentenceLen
		if currentLen > 0 {
			testLen = currentLen + 1 + sentenceLen
		}
		shouldSplit := float64(testLen) > ideal &&
			currentLen > 0 &&
			len(segments) < targetCount-1 &&
			float64(testLen) > floor
		if shouldSplit {
			segments = append(segments, current.String())
			current.Reset()
			current.WriteString(sentence)
			currentLen = sentenceLen
			continue
		}
		if currentLen > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
		currentLen = testLen
	}
	if currentLen > 0 {
		segments = append(segments, current.String())
	}

	segments = redistribute(segments, targetCount, maxChars)

	final := make([]string, 0, len(segments))
	for _, seg := range segments {
		if runeLen(seg) <= maxChars {
			final = append(final, seg)
			continue
		}
		final = append(final, splitLong(seg, maxChars)...)
	}
	return final
}

// redistribute halves the longest segment until the target count is reached
// or the longest segment is too short (or too indivisible) to split.
func redistribute(segments []string, targetCount, maxChars int) []string {
	limit := float64(maxChars) * halveRatio
	for len(segments) > 0 && len(segments) < targetCount {
		longest := 0
		longestLen := runeLen(segments[0])
		for i := 1; i < len(segments); i++ {
			if l := runeLen(segments[i]); l > longestLen {
				longest, longestLen = i, l
			}
		}
		if float64(longestLen) <= limit {
			break
		}
		parts := splitLong(segments[longest], longestLen/2)
		if len(parts) <= 1 {
			break
		}
		expanded := make([]string, 0, len(segments)+len(parts)-1)
		expanded = append(expanded, segments[:longest]...)
		expanded = append(expanded, parts...)
		expanded = append(expanded, segments[longest+1:]...)
		segments = expanded
	}
	return segments
}

// splitLong accumulates sentences up to maxChars per piece. A single sentence
// longer than maxChars becomes its own piece.
func splitLong(segment string, maxChars int) []string {
	if runeLen(segment) <= maxChars {
		return []string{segment}
	}
	var pieces []string
	var current strings.Builder
	currentLen := 0
	for _, sentence := range Sentences(segment) {
		sentenceLen := runeLen(sentence)
		testLen := sentenceLen
		if currentLen > 0 {
			testLen = currentLen + 1 + sentenceLen
		}
		if testLen > maxChars && currentLen > 0 {
			pieces = append(pieces, current.String())
			current.Reset()
			current.WriteString(sentence)
			currentLen = sentenceLen
			continue
		}
		if currentLen > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
		currentLen = testLen
	}
	if currentLen > 0 {
		pieces = append(pieces, current.String())
	}
	return pieces
}

// Sentences splits text after '.', '!' or '?' when followed by whitespace.
// The whitespace run is dropped; each sentence keeps its punctuation and is
// trimmed. Empty sentences are skipped.
func Sentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		end := i
		j := i
		for j < len(text) {
			next, nsize := utf8.DecodeRuneInString(text[j:])
			if !unicode.IsSpace(next) {
				break
			}
			j += nsize
		}
		if j == end {
			continue
		}
		if s := strings.TrimSpace(text[start:end]); s != "" {
			sentences = append(sentences, s)
		}
		start = j
		i = j
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
