// Package domain holds the data shapes shared across the orchestrator:
// the closed set of task domains, subtasks and their DAG, routing and
// usage records, and the per-run state threaded through one Process call.
package domain

import "fmt"

// Domain tags a SubTask with the expertise it requires and selects the
// prompt template and model pair used to execute it.
type Domain string

const (
	Commonsense Domain = "commonsense"
	Medical     Domain = "medical"
	Law         Domain = "law"
	Math        Domain = "math"
)

// Domains lists the closed set of recognized domains, in a stable order.
var Domains = []Domain{Commonsense, Medical, Law, Math}

// Valid reports whether d is one of the closed set of domains.
func (d Domain) Valid() bool {
	switch d {
	case Commonsense, Medical, Law, Math:
		return true
	default:
		return false
	}
}

// DomainSpec is the immutable configuration for one domain: its keyword
// list (for optional heuristic fallback), model identifiers, prompt
// template, and generation defaults.
type DomainSpec struct {
	Domain       Domain
	Keywords     []string
	SmallModel   string
	LargeModel   string
	PromptTemplate string
	Temperature  float64
	MaxTokens    int
}

// DefaultDomainSpecs returns the static per-domain configuration shipped
// with the orchestrator: keyword lists, prompt template prefixes, and
// generation defaults. Endpoint URLs and concrete model/adapter names come
// from the Config Store instead, since those vary per deployment.
func DefaultDomainSpecs() map[Domain]DomainSpec {
	return map[Domain]DomainSpec{
		Commonsense: {
			Domain:         Commonsense,
			Keywords:       []string{"everyday", "common sense", "general knowledge", "why", "how"},
			PromptTemplate: "You are a helpful assistant answering a general knowledge question.",
			Temperature:    0.7,
			MaxTokens:      512,
		},
		Medical: {
			Domain:         Medical,
			Keywords:       []string{"diagnosis", "symptom", "treatment", "medication", "patient"},
			PromptTemplate: "You are a clinical assistant. Answer precisely and note any uncertainty.",
			Temperature:    0.3,
			MaxTokens:      768,
		},
		Law: {
			Domain:         Law,
			Keywords:       []string{"contract", "statute", "clause", "liability", "jurisdiction"},
			PromptTemplate: "You are a legal assistant. Cite the relevant reasoning and avoid giving definitive legal advice.",
			Temperature:    0.3,
			MaxTokens:      768,
		},
		Math: {
			Domain:         Math,
			Keywords:       []string{"compute", "solve", "equation", "derivative", "integral"},
			PromptTemplate: "You are a math assistant. Show your reasoning steps before the final result.",
			Temperature:    0.2,
			MaxTokens:      512,
		},
	}
}

// ModelSize selects between the small and large backend model for a
// subtask. The mapping to a concrete endpoint+model name is resolved by
// the Config Store.
type ModelSize string

const (
	Small ModelSize = "small"
	Large ModelSize = "large"
)

// RouteDecision is the outcome of a Router Client classification.
type RouteDecision struct {
	Size        ModelSize
	Probability float64
}

// CallUsage is the token accounting for one LLM completion call.
type CallUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ResultStatus is the terminal status of one executed subtask.
type ResultStatus string

const (
	StatusOK    ResultStatus = "ok"
	StatusMock  ResultStatus = "mock"
	StatusError ResultStatus = "error"
)

// SubTask is one node of a TaskDAG.
type SubTask struct {
	ID           string   `json:"id"`
	Domain       Domain   `json:"domain"`
	Content      string   `json:"content"`
	Dependencies []string `json:"dependencies"`
}

// SubTaskResult is produced once per executed node and is immutable
// thereafter.
type SubTaskResult struct {
	NodeID         string
	Domain         Domain
	SubtaskContent string
	Text           string
	Usage          CallUsage
	ModelSize      ModelSize
	Status         ResultStatus
}

// TaskDAG is the full set of subtasks produced by the Decomposer for one
// run. It is built once at iteration 0 and read-only thereafter.
type TaskDAG struct {
	Tasks []SubTask `json:"tasks"`
}

// ByID returns the node with the given id, if present.
func (d TaskDAG) ByID(id string) (SubTask, bool) {
	for _, t := range d.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return SubTask{}, false
}

// FallbackDAG returns the single-node default DAG used when the Decomposer
// exhausts its retry budget without producing a valid DAG.
func FallbackDAG(task string) TaskDAG {
	return TaskDAG{
		Tasks: []SubTask{
			{ID: "task1", Domain: Commonsense, Content: task, Dependencies: nil},
		},
	}
}

func (s SubTask) String() string {
	return fmt.Sprintf("SubTask{id=%s domain=%s deps=%v}", s.ID, s.Domain, s.Dependencies)
}

// ClassMetrics totals calls, tokens, and estimated compute for one caller
// class (decomposer, routing, worker, synthesizer), mirroring the
// router_calls/agent_calls/handler_calls breakdown of get_summary().
type ClassMetrics struct {
	Calls  int
	Tokens int
	TFLOPs float64
}

// RunMetrics is the read-only summary of a run's resource usage, folded in
// from the observability package's live accumulator once a run finishes.
// It carries no behavior: it is the data shape the orchestrator attaches to
// its final result.
type RunMetrics struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	TotalTFLOPs      float64
	Retries          int
	CallCount        int
	SmallCalls       int
	LargeCalls       int
	Decomposer       ClassMetrics
	Routing          ClassMetrics
	Worker           ClassMetrics
	Synthesizer      ClassMetrics
}

// RunState is the mutable state threaded through one Process call across
// decompose/execute/synthesize iterations. A fresh RunState is built at
// iteration 0; each refinement iteration updates it in place.
type RunState struct {
	RunID           string
	OriginalTask    string
	Iteration       int
	MaxIterations   int
	DAG             TaskDAG
	Results         map[string]SubTaskResult
	LastFeedback    string
	LastMerged      string
	LastFinalAnswer string
	Metrics         RunMetrics
}

// NewRunState creates the initial state for a run.
func NewRunState(runID, task string, maxIterations int) *RunState {
	return &RunState{
		RunID:         runID,
		OriginalTask:  task,
		MaxIterations: maxIterations,
		Results:       make(map[string]SubTaskResult),
	}
}

// ExhaustedRetries reports whether the run has used up its refinement
// budget and must return whatever answer it has.
func (s *RunState) ExhaustedRetries() bool {
	return s.Iteration >= s.MaxIterations
}
