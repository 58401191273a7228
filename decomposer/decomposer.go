// Package decomposer turns an original task into a validated TaskDAG by
// calling the LLM Client under guided JSON decoding, retrying with the
// validation errors fed back into the prompt, and falling back to a
// single-node DAG if every attempt fails. Grounded on the teacher's
// planTask/extractJSON/parseSubtasks prompt-and-parse shape.
package decomposer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/SincerityHun/LLM-Agent-Orchestrator/domain"
	"github.com/SincerityHun/LLM-Agent-Orchestrator/llmclient"
	"github.com/SincerityHun/LLM-Agent-Orchestrator/observability"
	"github.com/SincerityHun/LLM-Agent-Orchestrator/outputparser"
	"github.com/SincerityHun/LLM-Agent-Orchestrator/validation"
)

const maxRetry = 3

const systemPrompt = `You are an orchestrator that decomposes a task into a directed acyclic graph of subtasks.

Rules:
1. Every subtask's "domain" must be one of: commonsense, medical, law, math.
2. Every subtask's "content" must be phrased as an imperative instruction of at least ten words.
3. "id" values must be unique within the response.
4. "dependencies" lists the "id" of other subtasks in this response; a subtask must never depend on itself, and every dependency must reference a subtask that exists.
5. The dependency graph must be acyclic.
6. Respond with ONLY a JSON object of the form {"tasks": [{"id": "...", "domain": "...", "content": "...", "dependencies": ["..."]}]}. No prose, no markdown fences.`

// Decomposer builds DAGs from a task description.
type Decomposer struct {
	llmClient *llmclient.Client
	endpoint  llmclient.EndpointKey
	modelName string
}

// Config configures a Decomposer.
type Config struct {
	LLMClient *llmclient.Client
	Endpoint  llmclient.EndpointKey
	ModelName string
}

// New creates a Decomposer.
func New(cfg Config) *Decomposer {
	return &Decomposer{
		llmClient: cfg.LLMClient,
		endpoint:  cfg.Endpoint,
		modelName: cfg.ModelName,
	}
}

func taskDAGSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tasks": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id":           map[string]any{"type": "string"},
						"domain":       map[string]any{"type": "string", "enum": []string{"commonsense", "medical", "law", "math"}},
						"content":      map[string]any{"type": "string"},
						"dependencies": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					},
					"required": []string{"id", "domain", "content", "dependencies"},
				},
			},
		},
		"required": []string{"tasks"},
	}
}

func userPrompt(task, feedback, previousMerged string, attempt int, lastErrors []string) string {
	var b strings.Builder
	if feedback == "" && previousMerged == "" {
		fmt.Fprintf(&b, "Original Task: %s\n\nDecompose this task into subtasks.", task)
	} else {
		fmt.Fprintf(&b, "Original Task: %s\n\nPrevious Attempt Result: %s\n\nFeedback: %s\n\nRevise the decomposition to address the feedback.", task, previousMerged, feedback)
	}

	if attempt >= 2 && len(lastErrors) > 0 {
		b.WriteString("\n\nYour previous response failed validation with these errors:\n")
		start := 0
		if len(lastErrors) > 2 {
			start = len(lastErrors) - 2
		}
		for _, e := range lastErrors[start:] {
			b.WriteString("- " + e + "\n")
		}
		b.WriteString("Fix these issues and respond again with ONLY the JSON object.")
	}
	return b.String()
}

type dagWire struct {
	Tasks []domain.SubTask `json:"tasks"`
}

func validateDAG(dag domain.TaskDAG) validation.ValidationErrors {
	v := validation.NewValidator()

	if len(dag.Tasks) == 0 {
		v.AddError("tasks", "must contain at least one subtask", nil)
		return v.Errors()
	}

	ids := make([]string, 0, len(dag.Tasks))
	allIDs := make(map[string]bool, len(dag.Tasks))
	edges := make(map[string][]string, len(dag.Tasks))
	for _, t := range dag.Tasks {
		ids = append(ids, t.ID)
		allIDs[t.ID] = true
		edges[t.ID] = t.Dependencies
	}
	v.UniqueIDs("tasks[].id", ids)

	for _, t := range dag.Tasks {
		v.Required(fmt.Sprintf("tasks[%s].content", t.ID), t.Content)
		v.MinWords(fmt.Sprintf("tasks[%s].content", t.ID), t.Content, 10)
		v.DomainInSet(fmt.Sprintf("tasks[%s].domain", t.ID), string(t.Domain), []string{
			string(domain.Commonsense), string(domain.Medical), string(domain.Law), string(domain.Math),
		})
		v.NoSelfDependency(t.ID, t.Dependencies)
		v.DependenciesExist(t.ID, t.Dependencies, allIDs)
	}
	v.Acyclic("tasks[].dependencies", edges)

	return v.Errors()
}

// Decompose builds a validated TaskDAG for task, optionally refining a
// prior attempt using feedback and the previous run's merged output. It
// never returns an error from the LLM path: on exhausted retries it
// returns the fallback single-node DAG.
func (d *Decomposer) Decompose(ctx context.Context, task, feedback, previousMerged string, runMetrics *observability.RunMetrics) domain.TaskDAG {
	var lastErrors []string

	for attempt := 1; attempt <= maxRetry; attempt++ {
		prompt := systemPrompt + "\n\n" + userPrompt(task, feedback, previousMerged, attempt, lastErrors)

		start := time.Now()
		text, usage, err := d.llmClient.Generate(ctx, llmclient.GenerateRequest{
			EndpointKey: d.endpoint,
			ModelName:   d.modelName,
			Prompt:      prompt,
			MaxTokens:   1024,
			Temperature: 0.7,
			GuidedJSON:  taskDAGSchema(),
			Label:       "decomposer",
		})
		if runMetrics != nil {
			runMetrics.RecordCall("decomposer", d.modelName, "", usage.PromptTokens, usage.CompletionTokens, time.Since(start))
		}
		if err != nil {
			lastErrors = []string{err.Error()}
			continue
		}

		cleaned := outputparser.ExtractJSON(text)
		if cleaned == "" {
			lastErrors = []string{"no JSON object found in decomposer response"}
			continue
		}

		dag, parseErr := parseDAG(cleaned)
		if parseErr != nil {
			lastErrors = []string{parseErr.Error()}
			continue
		}

		if errs := validateDAG(dag); errs.HasErrors() {
			lastErrors = errs.Messages()
			continue
		}

		return dag
	}

	return domain.FallbackDAG(task)
}

func parseDAG(jsonText string) (domain.TaskDAG, error) {
	repaired := outputparser.RepairTruncatedJSON(jsonText)
	var wire dagWire
	if err := json.Unmarshal([]byte(repaired), &wire); err != nil {
		return domain.TaskDAG{}, fmt.Errorf("failed to parse decomposer JSON: %w", err)
	}
	if len(wire.Tasks) == 0 {
		return domain.TaskDAG{}, fmt.Errorf("decomposer response contained no tasks")
	}
	return domain.TaskDAG{Tasks: wire.Tasks}, nil
}
