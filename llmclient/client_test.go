package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGenerateSuccess(t *testing.T) {
	var received completionRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/completions" {
			t.Errorf("expected path /completions, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}

		resp := completionResponse{
			Choices: []completionChoice{{Text: "  the answer is 42  ", FinishReason: "stop"}},
			Usage:   completionUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := New(Config{SmallEndpointURL: server.URL})

	text, usage, err := client.Generate(context.Background(), GenerateRequest{
		EndpointKey: EndpointSmall,
		ModelName:   "llama-3.2-1b-instruct",
		Prompt:      "what is the answer?",
		MaxTokens:   128,
		Temperature: 0.5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "the answer is 42" {
		t.Errorf("expected trimmed text, got %q", text)
	}
	if usage.TotalTokens != 15 {
		t.Errorf("expected 15 total tokens, got %d", usage.TotalTokens)
	}
	if received.RepetitionPenalty != 1.0 {
		t.Errorf("expected base-model repetition penalty 1.0, got %v", received.RepetitionPenalty)
	}
	if len(received.Stop) != 1 || received.Stop[0] != "\n\n\n" {
		t.Errorf("unexpected stop sequences for base model: %v", received.Stop)
	}
}

func TestGenerateAdapterModelParams(t *testing.T) {
	var received completionRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		resp := completionResponse{Choices: []completionChoice{{Text: "ok"}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := New(Config{LargeEndpointURL: server.URL})

	_, _, err := client.Generate(context.Background(), GenerateRequest{
		EndpointKey: EndpointLarge,
		ModelName:   "medical-domain-lora",
		Prompt:      "diagnose",
		MaxTokens:   256,
		Temperature: 0.2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if received.RepetitionPenalty != 1.1 {
		t.Errorf("expected adapter repetition penalty 1.1, got %v", received.RepetitionPenalty)
	}
	if len(received.Stop) != 3 {
		t.Errorf("expected 3 stop sequences for adapter model, got %v", received.Stop)
	}
}

func TestGenerateGuidedJSON(t *testing.T) {
	var received completionRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		resp := completionResponse{Choices: []completionChoice{{Text: `{"answer":"ok"}`}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := New(Config{SmallEndpointURL: server.URL})
	schema := map[string]any{"type": "object"}

	_, _, err := client.Generate(context.Background(), GenerateRequest{
		EndpointKey: EndpointSmall,
		ModelName:   "llama-3.2-1b-instruct",
		Prompt:      "synthesize",
		GuidedJSON:  schema,
		GuidedRegex: "should be ignored when guided_json set",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if received.GuidedJSON == nil {
		t.Error("expected guided_json to be sent")
	}
	if received.GuidedRegex != "" {
		t.Error("expected guided_regex to be suppressed when guided_json is set")
	}
}

func TestGenerateEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(completionResponse{Choices: nil})
	}))
	defer server.Close()

	client := New(Config{SmallEndpointURL: server.URL})

	_, _, err := client.Generate(context.Background(), GenerateRequest{
		EndpointKey: EndpointSmall,
		ModelName:   "llama-3.2-1b-instruct",
		Prompt:      "anything",
	})
	if err == nil {
		t.Fatal("expected error for empty choices array")
	}
}

func TestGenerateNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	}))
	defer server.Close()

	client := New(Config{SmallEndpointURL: server.URL})

	_, _, err := client.Generate(context.Background(), GenerateRequest{
		EndpointKey: EndpointSmall,
		ModelName:   "llama-3.2-1b-instruct",
		Prompt:      "anything",
	})
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestGenerateUnknownEndpoint(t *testing.T) {
	client := New(Config{SmallEndpointURL: "http://example.invalid"})

	_, _, err := client.Generate(context.Background(), GenerateRequest{
		EndpointKey: EndpointLarge,
		ModelName:   "llama-3.1-8b-instruct",
		Prompt:      "anything",
	})
	if err == nil {
		t.Fatal("expected error for unconfigured endpoint")
	}
}
