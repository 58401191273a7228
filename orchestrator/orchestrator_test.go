package orchestrator

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/SincerityHun/LLM-Agent-Orchestrator/config"
	"github.com/SincerityHun/LLM-Agent-Orchestrator/eventbus"
	"github.com/SincerityHun/LLM-Agent-Orchestrator/llmclient"
	"github.com/SincerityHun/LLM-Agent-Orchestrator/observability"
	"github.com/SincerityHun/LLM-Agent-Orchestrator/routerclient"
)

// newScriptedLLMServer returns a server whose /completions response depends
// on which role issued the prompt: the decomposer gets a one-node DAG, the
// worker gets a plain text answer, and the synthesizer gets a valid
// synthesis JSON payload referencing it.
func newScriptedLLMServer(t *testing.T) *httptest.Server {
	t.Helper()
	dagJSON := `{"tasks": [{"id": "task1", "domain": "commonsense", "content": "explain in detail why the sky appears blue to human observers outdoors", "dependencies": []}]}`
	answerJSON := `{"answer": "The sky appears blue because air molecules scatter shorter wavelengths of sunlight more than longer ones.", "used_agents": ["task1"]}`

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Prompt     string         `json:"prompt"`
			GuidedJSON map[string]any `json:"guided_json"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		var text string
		switch {
		case strings.Contains(body.Prompt, "decomposes a task"):
			text = dagJSON
		case body.GuidedJSON != nil && strings.Contains(body.Prompt, "answer synthesis"):
			text = answerJSON
		default:
			text = "the sky is blue due to Rayleigh scattering"
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"text": text, "finish_reason": "stop"}},
			"usage":   map[string]any{"prompt_tokens": 10, "completion_tokens": 10, "total_tokens": 20},
		})
	}))
}

func newAlwaysSmallRouterServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"prediction": "1b", "probability": 0.5})
	}))
}

func testConfig(llmURL, routerURL string) *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "development"},
		Models: config.ModelsConfig{
			SmallEndpointURL: llmURL,
			LargeEndpointURL: llmURL,
			DecomposerModel:  "decomposer-model",
			SynthesizerModel: "synth-model",
			Commonsense:      config.DomainModelConfig{Small: "small-model", Large: "large-model"},
			Medical:          config.DomainModelConfig{Small: "small-model", Large: "large-model"},
			Law:              config.DomainModelConfig{Small: "small-model", Large: "large-model"},
			Math:             config.DomainModelConfig{Small: "small-model", Large: "large-model"},
		},
		Router: config.RouterConfig{BaseURL: routerURL, CacheBackend: "memory"},
		Orchestrator: config.OrchestratorConfig{
			MaxRetry:              3,
			MaxConcurrentSubtasks: 4,
		},
	}
}

func newTestObservability(t *testing.T) *observability.Observability {
	t.Helper()
	tracer, err := observability.NewTracer(observability.TracingConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewTracer: %v", err)
	}
	return &observability.Observability{
		Logger:  observability.NewNoOpLogger(),
		Tracer:  tracer,
		Metrics: observability.NewMetricsCollector(observability.MetricsConfig{Enabled: false}, nil),
	}
}

func TestProcessSucceedsOnFirstIteration(t *testing.T) {
	llm := newScriptedLLMServer(t)
	defer llm.Close()
	router := newAlwaysSmallRouterServer(t)
	defer router.Close()

	cfg := testConfig(llm.URL, router.URL)
	llmClient := llmclient.New(llmclient.Config{SmallEndpointURL: llm.URL, LargeEndpointURL: llm.URL})
	routerClient := routerclient.New(routerclient.Config{BaseURL: router.URL})
	obs := newTestObservability(t)

	orch := New(cfg, llmClient, routerClient, eventbus.NewNoopEventBus(), obs)

	result := orch.Process(t.Context(), "why is the sky blue", "user-1")

	if !result.Success {
		t.Fatalf("expected success, got failure: %s", result.Reason)
	}
	if result.Iterations != 1 {
		t.Errorf("expected 1 iteration, got %d", result.Iterations)
	}
	if !strings.Contains(result.FinalAnswer, "scatter") {
		t.Errorf("expected synthesized answer, got %q", result.FinalAnswer)
	}
	if result.Metrics.CallCount == 0 {
		t.Error("expected metrics to record at least one call")
	}
	if result.Metrics.Decomposer.Calls == 0 {
		t.Error("expected a decomposer call recorded in the per-class breakdown")
	}
	if result.Metrics.Routing.Calls == 0 {
		t.Error("expected a routing call recorded in the per-class breakdown")
	}
	if result.Metrics.Worker.Calls == 0 {
		t.Error("expected a worker call recorded in the per-class breakdown")
	}
	if result.Metrics.Synthesizer.Calls == 0 {
		t.Error("expected a synthesizer call recorded in the per-class breakdown")
	}
}
