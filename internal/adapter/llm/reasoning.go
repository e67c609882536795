package llm

import "strings"

// MarkerPair delimits a reasoning section some models emit before their
// actual answer (for example <think> ... </think>).
type MarkerPair struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// DefaultMarkers covers the common local reasoning models.
var DefaultMarkers = []MarkerPair{
	{Start: "<think>", End: "</think>"},
	{Start: "<thinking>", End: "</thinking>"},
}

// StripReasoning removes reasoning sections from generated text. Pairs are
// applied in the order given; within one pair, every well-formed
// start..end span is removed, scanning left to right. An unmatched start
// marker leaves the text untouched from that point, since dropping an
// unterminated section could swallow the whole answer.
//
// This is a best-effort transform. Marker precedence when pairs nest or
// interleave is deliberately not specified beyond the ordering above.
func StripReasoning(text string, pairs []MarkerPair) string {
	for _, p := range pairs {
		if p.Start == "" || p.End == "" {
			continue
		}
		text = stripPair(text, p)
	}
	return strings.TrimSpace(text)
}

func stripPair(text string, p MarkerPair) string {
	var sb strings.Builder
	for {
		start := strings.Index(text, p.Start)
		if start < 0 {
			sb.WriteString(text)
			break
		}
		end := strings.Index(text[start+len(p.Start):], p.End)
		if end < 0 {
			sb.WriteString(text)
			break
		}
		sb.WriteString(text[:start])
		text = text[start+len(p.Start)+end+len(p.End):]
	}
	return sb.String()
}
