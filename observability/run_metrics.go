package observability

import (
	"sync"
	"time"
)

// ModelParams gives the parameter count (in billions) used for the FLOPs
// estimate of a model role. Routing-classifier calls are charged against the
// Routing entry, which defaults to 1B since the classifier is a ~1B model.
type ModelParams struct {
	Small       float64
	Large       float64
	Decomposer  float64
	Synthesizer float64
	Routing     float64
}

// DefaultModelParams returns the parameter table used to estimate FLOPs
// for the LLM roles in a run.
func DefaultModelParams() ModelParams {
	return ModelParams{
		Small:       1.0,
		Large:       8.0,
		Decomposer:  8.0,
		Synthesizer: 8.0,
		Routing:     1.0,
	}
}

// EstimateTFLOPs estimates the compute cost of a completion call in TFLOPs
// using the standard forward-pass approximation: 2 * params * tokens.
func EstimateTFLOPs(paramsBillions float64, totalTokens int) float64 {
	flops := 2 * paramsBillions * 1e9 * float64(totalTokens)
	return flops / 1e12
}

// LLMCallRecord records the token and compute cost of a single LLM call.
// Named distinctly from domain.CallUsage, which is the plain token-only
// shape carried on a domain.SubTaskResult.
type LLMCallRecord struct {
	Role             string // decomposer, synthesizer, small, large, worker (failed worker call), routing
	Model            string
	Domain           string
	PromptTokens     int
	CompletionTokens int
	TFLOPs           float64
	Duration         time.Duration
	Timestamp        time.Time
}

// RunMetrics accumulates cost and usage figures for a single orchestrator
// run. Unlike MetricsCollector, it is not cumulative across runs: a fresh
// instance is created per Process call and discarded once its Summary is
// folded into the run's orchestrator.RunResult.Metrics.
type RunMetrics struct {
	mu                sync.Mutex
	params            ModelParams
	startTime         time.Time
	calls             []LLMCallRecord
	promptTokens      int
	completionTokens  int
	totalTFLOPs       float64
	retries           int
}

// NewRunMetrics creates a metrics accumulator for one run.
func NewRunMetrics(params ModelParams) *RunMetrics {
	return &RunMetrics{
		params:    params,
		startTime: time.Now(),
		calls:     make([]LLMCallRecord, 0, 8),
	}
}

// RecordCall records the usage of a single LLM call and returns the
// estimated TFLOPs for that call.
func (r *RunMetrics) RecordCall(role, model, domain string, promptTokens, completionTokens int, duration time.Duration) LLMCallRecord {
	params := r.paramsForRole(role)
	usage := LLMCallRecord{
		Role:             role,
		Model:            model,
		Domain:           domain,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TFLOPs:           EstimateTFLOPs(params, promptTokens+completionTokens),
		Duration:         duration,
		Timestamp:        time.Now(),
	}

	r.mu.Lock()
	r.calls = append(r.calls, usage)
	r.promptTokens += promptTokens
	r.completionTokens += completionTokens
	r.totalTFLOPs += usage.TFLOPs
	r.mu.Unlock()

	return usage
}

// IncrementRetries records one synthesis retry.
func (r *RunMetrics) IncrementRetries() {
	r.mu.Lock()
	r.retries++
	r.mu.Unlock()
}

func (r *RunMetrics) paramsForRole(role string) float64 {
	switch role {
	case "small":
		return r.params.Small
	case "large":
		return r.params.Large
	case "decomposer":
		return r.params.Decomposer
	case "synthesizer":
		return r.params.Synthesizer
	case "routing":
		return r.params.Routing
	default:
		return r.params.Small
	}
}

// RunSummary is the final, read-only snapshot of a run's resource usage.
type RunSummary struct {
	Duration         time.Duration   `json:"duration"`
	PromptTokens     int             `json:"prompt_tokens"`
	CompletionTokens int             `json:"completion_tokens"`
	TotalTokens      int             `json:"total_tokens"`
	TotalTFLOPs      float64         `json:"total_tflops"`
	Retries          int             `json:"retries"`
	CallCount        int             `json:"call_count"`
	Calls            []LLMCallRecord `json:"calls"`
}

// Summary returns a snapshot of the run's accumulated usage.
func (r *RunMetrics) Summary() RunSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	calls := make([]LLMCallRecord, len(r.calls))
	copy(calls, r.calls)

	return RunSummary{
		Duration:         time.Since(r.startTime),
		PromptTokens:     r.promptTokens,
		CompletionTokens: r.completionTokens,
		TotalTokens:      r.promptTokens + r.completionTokens,
		TotalTFLOPs:      r.totalTFLOPs,
		Retries:          r.retries,
		CallCount:        len(calls),
		Calls:            calls,
	}
}
