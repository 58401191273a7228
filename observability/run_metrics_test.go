package observability

import (
	"testing"
	"time"
)

func TestEstimateTFLOPs(t *testing.T) {
	got := EstimateTFLOPs(1.0, 1000)
	want := 2 * 1.0 * 1e9 * 1000 / 1e12
	if got != want {
		t.Errorf("EstimateTFLOPs(1.0, 1000) = %v, want %v", got, want)
	}
}

func TestRunMetricsRecordCall(t *testing.T) {
	m := NewRunMetrics(DefaultModelParams())

	usage := m.RecordCall("large", "llama-3.1-8b-instruct", "medical", 100, 50, 10*time.Millisecond)
	if usage.TFLOPs <= 0 {
		t.Error("expected positive TFLOPs estimate")
	}

	m.RecordCall("small", "llama-3.2-1b-instruct", "math", 40, 20, 5*time.Millisecond)
	m.IncrementRetries()

	summary := m.Summary()
	if summary.CallCount != 2 {
		t.Errorf("expected 2 calls, got %d", summary.CallCount)
	}
	if summary.PromptTokens != 140 {
		t.Errorf("expected 140 prompt tokens, got %d", summary.PromptTokens)
	}
	if summary.CompletionTokens != 70 {
		t.Errorf("expected 70 completion tokens, got %d", summary.CompletionTokens)
	}
	if summary.Retries != 1 {
		t.Errorf("expected 1 retry, got %d", summary.Retries)
	}
	if summary.TotalTFLOPs <= 0 {
		t.Error("expected positive total TFLOPs")
	}
	if len(summary.Calls) != 2 {
		t.Errorf("expected 2 call records, got %d", len(summary.Calls))
	}
}

func TestRunMetricsParamsForRole(t *testing.T) {
	params := ModelParams{Small: 1.0, Large: 8.0, Decomposer: 8.0, Synthesizer: 8.0, Routing: 1.0}
	m := NewRunMetrics(params)

	cases := []struct {
		role string
		want float64
	}{
		{"small", 1.0},
		{"large", 8.0},
		{"decomposer", 8.0},
		{"synthesizer", 8.0},
		{"routing", 1.0},
		{"unknown", 1.0},
	}

	for _, tc := range cases {
		if got := m.paramsForRole(tc.role); got != tc.want {
			t.Errorf("paramsForRole(%q) = %v, want %v", tc.role, got, tc.want)
		}
	}
}
