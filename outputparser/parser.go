// Package outputparser extracts structured data (mainly JSON) from raw LLM
// completions. The decomposer and synthesizer both ask the backend for JSON
// via guided decoding but still have to recover from fences, surrounding
// prose and mid-object truncation before the result can be unmarshaled.
package outputparser

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// OutputParser is the interface for parsing LLM output.
type OutputParser interface {
	// Parse parses the LLM output into structured data.
	Parse(text string) (any, error)

	// GetFormatInstructions returns instructions for the LLM.
	GetFormatInstructions() string
}

// StringOutputParser returns the output as-is, trimmed. Used for
// subtask agent output, which is free-form text rather than JSON.
type StringOutputParser struct{}

// NewStringOutputParser creates a new string output parser.
func NewStringOutputParser() *StringOutputParser {
	return &StringOutputParser{}
}

// Parse returns the text as-is.
func (p *StringOutputParser) Parse(text string) (any, error) {
	return strings.TrimSpace(text), nil
}

// GetFormatInstructions returns empty instructions.
func (p *StringOutputParser) GetFormatInstructions() string {
	return ""
}

var jsonFenceRegex = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)```")

// JSONOutputParser parses JSON output, tolerating code fences and
// leading/trailing prose around the JSON value.
type JSONOutputParser struct {
	schema map[string]any
}

// JSONOutputParserConfig configures the JSON parser.
type JSONOutputParserConfig struct {
	// Schema is an optional JSON schema to describe in format instructions.
	Schema map[string]any
}

// NewJSONOutputParser creates a new JSON output parser.
func NewJSONOutputParser(cfg JSONOutputParserConfig) *JSONOutputParser {
	return &JSONOutputParser{
		schema: cfg.Schema,
	}
}

// ExtractJSON strips code fences and surrounding prose, returning the
// substring that looks like a single JSON object or array.
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)

	if matches := jsonFenceRegex.FindStringSubmatch(text); len(matches) > 1 {
		text = strings.TrimSpace(matches[1])
	}

	startIdx := strings.IndexAny(text, "{[")
	if startIdx < 0 {
		return text
	}

	var endChar byte
	if text[startIdx] == '{' {
		endChar = '}'
	} else {
		endChar = ']'
	}

	depth := 0
	for i := startIdx; i < len(text); i++ {
		switch text[i] {
		case text[startIdx]:
			depth++
		case endChar:
			depth--
			if depth == 0 {
				return text[startIdx : i+1]
			}
		}
	}

	return text[startIdx:]
}

// RepairTruncatedJSON attempts to salvage a JSON object that was cut off
// mid-generation by a token-limited completion: if it doesn't already end
// on a closing brace and contains a double quote after its first byte, it
// closes an unterminated string (odd number of quotes), then appends one
// "]" per unmatched "[" followed by one "}" per unmatched "{". Brackets are
// counted naively, including any inside strings, and all "]" come before
// all "}", so the repaired string may still fail to parse, in which case
// the caller should fall back rather than retry indefinitely.
func RepairTruncatedJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasSuffix(text, "}") {
		return text
	}

	if strings.LastIndex(text, `"`) <= 0 {
		return text
	}

	if strings.Count(text, `"`)%2 == 1 {
		text += `"`
	}
	text += strings.Repeat("]", max(0, strings.Count(text, "[")-strings.Count(text, "]")))
	return text + strings.Repeat("}", max(0, strings.Count(text, "{")-strings.Count(text, "}")))
}

// Parse parses JSON from the output, repairing truncation if the first
// attempt fails.
func (p *JSONOutputParser) Parse(text string) (any, error) {
	extracted := ExtractJSON(text)

	var result any
	if err := json.Unmarshal([]byte(extracted), &result); err == nil {
		return result, nil
	}

	repaired := RepairTruncatedJSON(extracted)
	if err := json.Unmarshal([]byte(repaired), &result); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w\nRaw output: %s", err, text)
	}

	return result, nil
}

// GetFormatInstructions returns JSON format instructions.
func (p *JSONOutputParser) GetFormatInstructions() string {
	if p.schema != nil {
		schemaBytes, _ := json.MarshalIndent(p.schema, "", "  ")
		return fmt.Sprintf("Return your response as a valid JSON object matching this schema:\n```json\n%s\n```", string(schemaBytes))
	}
	return "Return your response as a valid JSON object."
}
