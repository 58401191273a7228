package executor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/SincerityHun/LLM-Agent-Orchestrator/config"
	"github.com/SincerityHun/LLM-Agent-Orchestrator/domain"
	"github.com/SincerityHun/LLM-Agent-Orchestrator/llmclient"
	"github.com/SincerityHun/LLM-Agent-Orchestrator/observability"
	"github.com/SincerityHun/LLM-Agent-Orchestrator/routerclient"
)

func newTestObservability(t *testing.T) *observability.Observability {
	t.Helper()
	tracer, err := observability.NewTracer(observability.TracingConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewTracer: %v", err)
	}
	metrics := observability.NewMetricsCollector(observability.MetricsConfig{Enabled: false}, nil)
	return &observability.Observability{
		Logger:  observability.NewNoOpLogger(),
		Tracer:  tracer,
		Metrics: metrics,
	}
}

func newRouterServer(t *testing.T, prediction string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"prediction": prediction, "probability": 0.8})
	}))
}

func newLLMServer(t *testing.T, text string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"text": text, "finish_reason": "stop"}},
			"usage":   map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}))
}

func testAgent(t *testing.T, router *httptest.Server, llm *httptest.Server) Agent {
	t.Helper()
	llmClient := llmclient.New(llmclient.Config{SmallEndpointURL: llm.URL, LargeEndpointURL: llm.URL})
	routerClient := routerclient.New(routerclient.Config{BaseURL: router.URL})

	return Agent{
		Domain: domain.Commonsense,
		Config: ExecutorConfig{
			DomainSpec: domain.DefaultDomainSpecs()[domain.Commonsense],
			Models: config.ModelsConfig{
				Commonsense: config.DomainModelConfig{Small: "small-model", Large: "large-model"},
			},
			LLMClient:    llmClient,
			RouterClient: routerClient,
			RunMetrics:   observability.NewRunMetrics(observability.ModelParams{Small: 1.0, Large: 8.0}),
			Obs:          newTestObservability(t),
			RunID:        "run-1",
		},
	}
}

func TestExecuteReturnsOKResult(t *testing.T) {
	router := newRouterServer(t, "1b")
	defer router.Close()
	llm := newLLMServer(t, "the sky is blue")
	defer llm.Close()

	agent := testAgent(t, router, llm)
	node := domain.SubTask{ID: "task1", Domain: domain.Commonsense, Content: "why is the sky blue"}

	result := Execute(t.Context(), agent, node, nil, nil)

	if result.Status != domain.StatusOK {
		t.Fatalf("expected ok status, got %s", result.Status)
	}
	if !strings.Contains(result.Text, "the sky is blue") {
		t.Errorf("expected generated text, got %q", result.Text)
	}
	if result.ModelSize != domain.Small {
		t.Errorf("expected small route, got %s", result.ModelSize)
	}
}

func TestExecuteDegradesToMockOnLLMFailure(t *testing.T) {
	router := newRouterServer(t, "1b")
	defer router.Close()
	llm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer llm.Close()

	agent := testAgent(t, router, llm)
	node := domain.SubTask{ID: "task1", Domain: domain.Commonsense, Content: "why is the sky blue"}

	result := Execute(t.Context(), agent, node, nil, nil)

	if result.Status != domain.StatusMock {
		t.Fatalf("expected mock status, got %s", result.Status)
	}
	if !strings.HasPrefix(result.Text, "[MOCK RESPONSE") {
		t.Errorf("expected mock sentinel text, got %q", result.Text)
	}
}

func TestExecuteRecordsRoutingCall(t *testing.T) {
	router := newRouterServer(t, "1b")
	defer router.Close()
	llm := newLLMServer(t, "the sky is blue")
	defer llm.Close()

	agent := testAgent(t, router, llm)
	node := domain.SubTask{ID: "task1", Domain: domain.Commonsense, Content: "why is the sky blue"}

	Execute(t.Context(), agent, node, nil, nil)

	var sawRouting bool
	for _, call := range agent.Config.RunMetrics.Summary().Calls {
		if call.Role == "routing" {
			sawRouting = true
		}
	}
	if !sawRouting {
		t.Error("expected a routing call to be recorded in RunMetrics")
	}
}

func TestBuildContextSummaryFiltersPrivateAndEmpty(t *testing.T) {
	summary := buildContextSummary(
		map[string]string{"task1": "some upstream result", "user_id": "secret-123"},
		map[string]string{"locale": "", "topic": "weather"},
	)

	if strings.Contains(summary, "secret-123") {
		t.Errorf("expected user_id to be filtered out, got %q", summary)
	}
	if strings.Contains(summary, "locale") {
		t.Errorf("expected empty value to be filtered out, got %q", summary)
	}
	if !strings.Contains(summary, "some upstream result") || !strings.Contains(summary, "weather") {
		t.Errorf("expected surviving keys in summary, got %q", summary)
	}
}
