package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NoEvidenceAnswer is returned verbatim whenever the documents do not support an answer.
const NoEvidenceAnswer = "Bu bilgi belgede bulunamadi."

// GroundedAnswer is the provider's reply to a grounded question.
type GroundedAnswer struct {
	Answer      string
	CitationIDs []string
	// Answerable is the provider's explicit abstain flag; nil when omitted.
	Answerable *bool
}

// Declined reports whether the provider abstained, either through the flag
// or by returning the sentinel phrase.
func (g *GroundedAnswer) Declined() bool {
	if g.Answerable != nil && !*g.Answerable {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(g.Answer), NoEvidenceAnswer)
}

// ParseGroundedAnswer decodes {"answer", "citation_ids", "answerable"}. If the
// raw text is not a JSON object, the first brace-delimited object inside it
// is tried before giving up with ErrResponseParse.
func ParseGroundedAnswer(raw string) (*GroundedAnswer, error) {
	if ans, err := decodeGroundedAnswer(raw); err == nil {
		return ans, nil
	}
	if obj, ok := firstJSONObject(raw); ok {
		if ans, err := decodeGroundedAnswer(obj); err == nil {
			return ans, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrResponseParse, truncate(raw, 200))
}

func decodeGroundedAnswer(raw string) (*GroundedAnswer, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &fields); err != nil {
		return nil, err
	}

	answerRaw, ok := fields["answer"]
	if !ok {
		return nil, fmt.Errorf("missing answer field")
	}
	var answer string
	if err := json.Unmarshal(answerRaw, &answer); err != nil {
		return nil, fmt.Errorf("answer is not a string: %w", err)
	}

	out := &GroundedAnswer{Answer: strings.TrimSpace(answer), CitationIDs: []string{}}

	// A non-list citation_ids is treated as no citations.
	var ids []any
	if err := json.Unmarshal(fields["citation_ids"], &ids); err == nil {
		for _, id := range ids {
			if s, ok := id.(string); ok {
				out.CitationIDs = append(out.CitationIDs, strings.TrimSpace(s))
			}
		}
	}

	var answerable *bool
	if err := json.Unmarshal(fields["answerable"], &answerable); err == nil {
		out.Answerable = answerable
	}
	return out, nil
}

// firstJSONObject returns the first balanced {...} span, skipping braces inside strings.
func firstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
