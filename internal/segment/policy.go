package segment

import (
	"unicode/utf8"

	"narrator/internal/config"
)

// Policy picks how many segments a long text should be cut into.
type Policy struct {
	MaxChars    int
	BaseDivisor int
	BaseMin     int
	BaseMax     int
	Redundancy  float64
	MinSegments int
	MaxSegments int
}

// DefaultPolicy returns the tuned long-form narration policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxChars:    2200,
		BaseDivisor: 1800,
		BaseMin:     2,
		BaseMax:     8,
		Redundancy:  1.4,
		MinSegments: 3,
		MaxSegments: 12,
	}
}

// PolicyFromConfig builds a Policy from the [segmenting] section.
func PolicyFromConfig(cfg *config.Config) Policy {
	if cfg == nil {
		return DefaultPolicy()
	}
	s := cfg.Segmenting
	return Policy{
		MaxChars:    s.MaxChars,
		BaseDivisor: s.BaseDivisor,
		BaseMin:     s.BaseMin,
		BaseMax:     s.BaseMax,
		Redundancy:  s.Redundancy,
		MinSegments: s.MinSegments,
		MaxSegments: s.MaxSegments,
	}
}

// TargetCount returns the segment count the policy aims for. Texts that fit in
// one segment return 1.
func (p Policy) TargetCount(text string) int {
	length := utf8.RuneCountInString(text)
	if length <= p.MaxChars {
		return 1
	}
	divisor := p.BaseDivisor
	if divisor <= 0 {
		divisor = 1
	}
	base := clamp(length/divisor, p.BaseMin, p.BaseMax)
	target := int(float64(base) * p.Redundancy)
	return clamp(target, p.MinSegments, p.MaxSegments)
}

// Plan segments text according to the policy.
func (p Policy) Plan(text string) []string {
	if utf8.RuneCountInString(text) <= p.MaxChars {
		return []string{text}
	}
	return Split(text, p.TargetCount(text), p.MaxChars)
}

// Preview summarizes one planned segment.
type Preview struct {
	Index   int    `json:"index"`
	Length  int    `json:"length"`
	Preview string `json:"preview"`
}

const previewChars = 100

// Previews describes each segment for a dry run.
func Previews(segments []string) []Preview {
	out := make([]Preview, len(segments))
	for i, seg := range segments {
		runes := []rune(seg)
		text := seg
		if len(runes) > previewChars {
			text = string(runes[:previewChars]) + "..."
		}
		out[i] = Preview{Index: i, Length: len(runes), Preview: text}
	}
	return out
}
