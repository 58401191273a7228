package outputparser

import (
	"testing"
)

func TestStringOutputParser(t *testing.T) {
	parser := NewStringOutputParser()

	t.Run("BasicParse", func(t *testing.T) {
		result, err := parser.Parse("  Hello World  ")
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}

		if result != "Hello World" {
			t.Errorf("expected 'Hello World', got '%v'", result)
		}
	})

	t.Run("EmptyInstructions", func(t *testing.T) {
		instructions := parser.GetFormatInstructions()
		if instructions != "" {
			t.Errorf("expected empty instructions, got '%s'", instructions)
		}
	})
}

func TestJSONOutputParser(t *testing.T) {
	t.Run("ParseObject", func(t *testing.T) {
		parser := NewJSONOutputParser(JSONOutputParserConfig{})

		result, err := parser.Parse(`{"name": "Alice", "age": 30}`)
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}

		obj, ok := result.(map[string]any)
		if !ok {
			t.Fatalf("expected map, got %T", result)
		}

		if obj["name"] != "Alice" {
			t.Errorf("expected name 'Alice', got '%v'", obj["name"])
		}
	})

	t.Run("ParseArray", func(t *testing.T) {
		parser := NewJSONOutputParser(JSONOutputParserConfig{})

		result, err := parser.Parse(`["a", "b", "c"]`)
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}

		arr, ok := result.([]any)
		if !ok {
			t.Fatalf("expected array, got %T", result)
		}

		if len(arr) != 3 {
			t.Errorf("expected 3 items, got %d", len(arr))
		}
	})

	t.Run("ParseFromCodeBlock", func(t *testing.T) {
		parser := NewJSONOutputParser(JSONOutputParserConfig{})

		text := "Here's the JSON:\n```json\n{\"key\": \"value\"}\n```"
		result, err := parser.Parse(text)
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}

		obj, ok := result.(map[string]any)
		if !ok {
			t.Fatalf("expected map, got %T", result)
		}

		if obj["key"] != "value" {
			t.Errorf("expected 'value', got '%v'", obj["key"])
		}
	})

	t.Run("ParseEmbedded", func(t *testing.T) {
		parser := NewJSONOutputParser(JSONOutputParserConfig{})

		text := "The result is: {\"answer\": 42} as expected."
		result, err := parser.Parse(text)
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}

		obj, ok := result.(map[string]any)
		if !ok {
			t.Fatalf("expected map, got %T", result)
		}

		if obj["answer"] != float64(42) {
			t.Errorf("expected 42, got '%v'", obj["answer"])
		}
	})

	t.Run("ParseTruncated", func(t *testing.T) {
		parser := NewJSONOutputParser(JSONOutputParserConfig{})

		text := `{"answer": "The result is 42", "used_agents": ["task1`
		result, err := parser.Parse(text)
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}

		obj, ok := result.(map[string]any)
		if !ok {
			t.Fatalf("expected map, got %T", result)
		}

		if obj["answer"] != "The result is 42" {
			t.Errorf("expected answer to survive repair, got '%v'", obj["answer"])
		}
	})

	t.Run("FormatInstructions", func(t *testing.T) {
		parser := NewJSONOutputParser(JSONOutputParserConfig{
			Schema: map[string]any{
				"name": "string",
				"age":  "number",
			},
		})

		instructions := parser.GetFormatInstructions()
		if instructions == "" {
			t.Error("expected non-empty instructions")
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		parser := NewJSONOutputParser(JSONOutputParserConfig{})

		_, err := parser.Parse("not json at all")
		if err == nil {
			t.Error("expected error for invalid JSON")
		}
	})
}

func TestExtractJSON(t *testing.T) {
	t.Run("plain object", func(t *testing.T) {
		got := ExtractJSON(`{"a": 1}`)
		if got != `{"a": 1}` {
			t.Errorf("unexpected extraction: %s", got)
		}
	})

	t.Run("fenced", func(t *testing.T) {
		got := ExtractJSON("```json\n{\"a\": 1}\n```")
		if got != `{"a": 1}` {
			t.Errorf("unexpected extraction: %s", got)
		}
	})

	t.Run("embedded in prose", func(t *testing.T) {
		got := ExtractJSON(`Sure, here it is: {"a": 1} hope that helps`)
		if got != `{"a": 1}` {
			t.Errorf("unexpected extraction: %s", got)
		}
	})
}

func TestRepairTruncatedJSON(t *testing.T) {
	t.Run("already complete is unchanged", func(t *testing.T) {
		got := RepairTruncatedJSON(`{"a": 1}`)
		if got != `{"a": 1}` {
			t.Errorf("expected unchanged, got %s", got)
		}
	})

	t.Run("truncated mid-string is closed", func(t *testing.T) {
		got := RepairTruncatedJSON(`{"answer": "hello world`)
		if got != `{"answer": "hello world"}` {
			t.Errorf("unexpected repair: %s", got)
		}
	})

	t.Run("truncated with no quotes returned as-is", func(t *testing.T) {
		got := RepairTruncatedJSON(`{`)
		if got != `{` {
			t.Errorf("expected unchanged, got %s", got)
		}
	})
}
