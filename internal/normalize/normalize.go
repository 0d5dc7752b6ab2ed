// Package normalize turns raw analysis-provider output into a structured
// result. The provider returns free text that usually, but not always,
// contains a JSON object, often wrapped in prose or markdown code fences.
// Normalize is total: every input yields a well-formed result and malformed
// output degrades to a zero-confidence fallback instead of an error.
package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/workless-ai/docscan/internal/model"
)

// DefaultExplanation is used when the parsed object carries no explanation.
const DefaultExplanation = "Document processed successfully."

// Normalize parses rawText into a NormalizedResult. elapsedSeconds is
// carried through unchanged for the response payload.
func Normalize(rawText string, elapsedSeconds float64) model.NormalizedResult {
	parsed, ok := parseObject(rawText)
	if !ok {
		return model.NormalizedResult{
			Fields:         []model.ExtractedField{},
			Explanation:    rawText,
			Changes:        []model.FormattingChange{},
			Confidence:     0,
			ElapsedSeconds: elapsedSeconds,
		}
	}

	fields := extractFields(parsed)
	changes := extractChanges(parsed)

	confidence := 0.0
	if len(fields) > 0 {
		sum := 0.0
		for _, f := range fields {
			sum += f.Confidence
		}
		confidence = sum / float64(len(fields))
	} else if v, ok := toFloat64(parsed["overall_confidence"]); ok {
		confidence = clamp(v)
	}

	explanation, _ := parsed["explanation"].(string)
	if explanation == "" {
		explanation = DefaultExplanation
	}

	return model.NormalizedResult{
		Fields:         fields,
		Explanation:    explanation,
		Changes:        changes,
		Confidence:     round2(confidence),
		ElapsedSeconds: elapsedSeconds,
	}
}

// parseObject locates the first balanced top-level {...} object in the text
// (skipping surrounding prose and code-fence markers) and unmarshals it.
// Failing that, it tries the whole trimmed text.
func parseObject(text string) (map[string]any, bool) {
	if candidate := firstBalancedObject(text); candidate != "" {
		var m map[string]any
		if err := json.Unmarshal([]byte(candidate), &m); err == nil {
			return m, true
		}
	}

	var m map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &m); err == nil {
		return m, true
	}
	return nil, false
}

// firstBalancedObject returns the first brace-balanced substring, tracking
// JSON string literals so braces inside them don't count. Returns "" when no
// balanced object exists.
func firstBalancedObject(text string) string {
	start := strings.Index(text, "{")
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
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
				return text[start : i+1]
			}
		}
	}
	return ""
}

func extractFields(parsed map[string]any) []model.ExtractedField {
	raw, _ := parsed["fields"].([]any)
	fields := make([]model.ExtractedField, 0, len(raw))
	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}

		name, _ := entry["field"].(string)
		if name == "" {
			name = "Unknown"
		}

		conf := 0.0
		if v, ok := toFloat64(entry["confidence"]); ok {
			conf = clamp(v)
		}

		fields = append(fields, model.ExtractedField{
			Field:      name,
			Value:      stringify(entry["value"]),
			Confidence: conf,
		})
	}
	return fields
}

func extractChanges(parsed map[string]any) []model.FormattingChange {
	raw, _ := parsed["formatting_changes"].([]any)
	changes := make([]model.FormattingChange, 0, len(raw))
	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}

		typ, _ := entry["type"].(string)
		if typ == "" {
			typ = "formatting"
		}
		msg, _ := entry["message"].(string)

		changes = append(changes, model.FormattingChange{Type: typ, Message: msg})
	}
	return changes
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func toFloat64(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
