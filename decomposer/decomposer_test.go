package decomposer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/SincerityHun/LLM-Agent-Orchestrator/domain"
	"github.com/SincerityHun/LLM-Agent-Orchestrator/llmclient"
)

func newLLMTextServer(t *testing.T, texts []string) *httptest.Server {
	t.Helper()
	i := 0
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		text := texts[i]
		if i < len(texts)-1 {
			i++
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"text": text, "finish_reason": "stop"}},
			"usage":   map[string]any{"prompt_tokens": 5, "completion_tokens": 5, "total_tokens": 10},
		})
	}))
}

func newDecomposer(t *testing.T, server *httptest.Server) *Decomposer {
	t.Helper()
	client := llmclient.New(llmclient.Config{SmallEndpointURL: server.URL, LargeEndpointURL: server.URL})
	return New(Config{LLMClient: client, Endpoint: llmclient.EndpointLarge, ModelName: "decomposer-model"})
}

func TestDecomposeValidResponseFirstTry(t *testing.T) {
	validJSON := `{"tasks": [{"id": "task1", "domain": "commonsense", "content": "explain in simple terms why the sky appears blue to human observers", "dependencies": []}]}`
	server := newLLMTextServer(t, []string{validJSON})
	defer server.Close()

	dag := newDecomposer(t, server).Decompose(t.Context(), "why is the sky blue", "", "", nil)

	if len(dag.Tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(dag.Tasks))
	}
	if dag.Tasks[0].Domain != domain.Commonsense {
		t.Errorf("expected commonsense domain, got %s", dag.Tasks[0].Domain)
	}
}

func TestDecomposeRetriesOnInvalidDAGThenSucceeds(t *testing.T) {
	invalidJSON := `{"tasks": [{"id": "task1", "domain": "commonsense", "content": "too short", "dependencies": ["task1"]}]}`
	validJSON := `{"tasks": [{"id": "task1", "domain": "commonsense", "content": "explain why the sky appears blue to observers", "dependencies": []}]}`
	server := newLLMTextServer(t, []string{invalidJSON, validJSON})
	defer server.Close()

	dag := newDecomposer(t, server).Decompose(t.Context(), "why is the sky blue", "", "", nil)

	if len(dag.Tasks) != 1 || dag.Tasks[0].Content != "explain why the sky appears blue to observers" {
		t.Fatalf("expected the valid retry result, got %+v", dag.Tasks)
	}
}

func TestDecomposeFallsBackAfterExhaustingRetries(t *testing.T) {
	alwaysInvalid := `{"tasks": [{"id": "task1", "domain": "unknown", "content": "too short", "dependencies": ["task1"]}]}`
	server := newLLMTextServer(t, []string{alwaysInvalid})
	defer server.Close()

	dag := newDecomposer(t, server).Decompose(t.Context(), "why is the sky blue", "", "", nil)

	fallback := domain.FallbackDAG("why is the sky blue")
	if len(dag.Tasks) != 1 || dag.Tasks[0].ID != fallback.Tasks[0].ID || dag.Tasks[0].Content != fallback.Tasks[0].Content {
		t.Fatalf("expected fallback DAG, got %+v", dag.Tasks)
	}
}

func TestValidateDAGDetectsCycle(t *testing.T) {
	dag := domain.TaskDAG{Tasks: []domain.SubTask{
		{ID: "a", Domain: domain.Math, Content: "compute the derivative of the given polynomial function", Dependencies: []string{"b"}},
		{ID: "b", Domain: domain.Math, Content: "compute the integral of the given polynomial function", Dependencies: []string{"a"}},
	}}

	errs := validateDAG(dag)
	if !errs.HasErrors() {
		t.Fatal("expected cycle to be detected")
	}
}
