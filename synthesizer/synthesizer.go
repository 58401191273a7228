// Package synthesizer turns a DAG's execution results into a final answer,
// treating agent output as retrieved reference material rather than
// something to score or reject. Grounded verbatim on
// result_handler.py's evaluate_results/_build_structured_context/
// _parse_json_response/_is_empty_answer.
package synthesizer

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/SincerityHun/LLM-Agent-Orchestrator/domain"
	"github.com/SincerityHun/LLM-Agent-Orchestrator/llmclient"
	"github.com/SincerityHun/LLM-Agent-Orchestrator/observability"
	"github.com/SincerityHun/LLM-Agent-Orchestrator/outputparser"
)

const maxRetry = 3

var placeholderAnswers = []string{
	"[no result available]",
	"no answer",
	"insufficient information",
	"unable to answer",
	"cannot answer",
}

// Outcome is the result of one synthesis attempt.
type Outcome struct {
	Status   domain.ResultStatus // StatusOK or StatusInsufficient
	Answer   string
	Feedback string
}

const (
	StatusOK           = domain.StatusOK
	StatusInsufficient domain.ResultStatus = "insufficient"
)

// Synthesizer produces final answers from a run's subtask results.
type Synthesizer struct {
	llmClient *llmclient.Client
	endpoint  llmclient.EndpointKey
	modelName string
}

// Config configures a Synthesizer.
type Config struct {
	LLMClient *llmclient.Client
	Endpoint  llmclient.EndpointKey
	ModelName string
}

// New creates a Synthesizer.
func New(cfg Config) *Synthesizer {
	return &Synthesizer{
		llmClient: cfg.LLMClient,
		endpoint:  cfg.Endpoint,
		modelName: cfg.ModelName,
	}
}

func answerSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"answer":      map[string]any{"type": "string"},
			"used_agents": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required": []string{"answer"},
	}
}

func buildStructuredContext(dag domain.TaskDAG, results map[string]domain.SubTaskResult) string {
	var lines []string
	counter := 0
	for _, node := range dag.Tasks {
		result, ok := results[node.ID]
		if !ok {
			continue
		}
		if result.Status != domain.StatusOK {
			continue
		}
		if strings.HasPrefix(result.Text, "[MOCK RESPONSE") || result.Text == "[No result available]" {
			continue
		}

		counter++
		depStr := "No dependencies (independent subtask)"
		if len(node.Dependencies) > 0 {
			depStr = "Depends on: " + strings.Join(node.Dependencies, ", ")
		}

		lines = append(lines,
			fmt.Sprintf("\nSubtask %d (ID: %s):", counter, node.ID),
			fmt.Sprintf("  Domain: %s", strings.ToUpper(string(node.Domain))),
			fmt.Sprintf("  Dependencies: %s", depStr),
			fmt.Sprintf("  Subtask Description: %s", node.Content),
			fmt.Sprintf("  Agent Response: %s", result.Text),
			strings.Repeat("-", 80),
		)
	}
	return strings.Join(lines, "\n")
}

func buildSynthesisPrompt(originalTask, mergedResults, structuredContext string) string {
	resultsSection := "Retrieved Agent Results:\n" + mergedResults
	if structuredContext != "" {
		resultsSection = "Structured Task Decomposition and Results:\n" + structuredContext
	}

	return fmt.Sprintf(`You are an answer synthesis component.

Below are results generated by multiple specialized agents.
Treat them as retrieved reference materials.
They may be incomplete or partially irrelevant.

Your task:
- Answer the Original Task directly and clearly.
- Use the agent results only as supporting knowledge.
- Do NOT judge, score, or reject the results.
- If the information is insufficient to answer, return an empty answer.

Original Task:
%s

%s

Response (JSON):`, originalTask, resultsSection)
}

func isEmptyAnswer(answer string) bool {
	if answer == "" {
		return true
	}
	if len(answer) < 20 {
		return true
	}
	lower := strings.ToLower(strings.TrimSpace(answer))
	for _, placeholder := range placeholderAnswers {
		if lower == placeholder || strings.HasPrefix(lower, placeholder) {
			return true
		}
	}
	return false
}

type answerWire struct {
	Answer     string   `json:"answer"`
	UsedAgents []string `json:"used_agents"`
}

func parseAnswer(jsonText, mergedResults string) Outcome {
	repaired := outputparser.RepairTruncatedJSON(jsonText)

	var wire answerWire
	if err := json.Unmarshal([]byte(repaired), &wire); err != nil {
		return Outcome{
			Status:   StatusInsufficient,
			Answer:   mergedResults,
			Feedback: "ResultHandler failed to generate valid JSON response. Retrying with clearer synthesis instructions.",
		}
	}

	answer := strings.TrimSpace(wire.Answer)
	if isEmptyAnswer(answer) {
		return Outcome{
			Status:   StatusInsufficient,
			Answer:   mergedResults,
			Feedback: "Empty or insufficient answer generated. Agent results may be incomplete. Retrying with refinement.",
		}
	}

	return Outcome{Status: StatusOK, Answer: answer}
}

// MergeForDisplay joins every non-empty subtask result sorted by node ID, for
// use as the merged text the orchestrator carries between iterations and
// returns verbatim on retry exhaustion.
func MergeForDisplay(dag domain.TaskDAG, results map[string]domain.SubTaskResult) string {
	ids := make([]string, 0, len(dag.Tasks))
	for _, t := range dag.Tasks {
		ids = append(ids, t.ID)
	}
	sort.Strings(ids)

	var parts []string
	for _, id := range ids {
		if r, ok := results[id]; ok && r.Text != "" {
			parts = append(parts, fmt.Sprintf("[%s] %s", id, r.Text))
		}
	}
	return strings.Join(parts, "\n\n")
}

// Synthesize produces a final answer or insufficiency feedback for one
// iteration. It never returns a Go error: LLM and parse failures surface as
// an insufficient Outcome carrying feedback, per the ambient contract that
// the orchestrator's refinement loop degrades rather than aborts.
func (s *Synthesizer) Synthesize(ctx context.Context, originalTask string, results map[string]domain.SubTaskResult, dag domain.TaskDAG, iteration int, runMetrics *observability.RunMetrics) Outcome {
	merged := MergeForDisplay(dag, results)

	if iteration >= maxRetry {
		return Outcome{Status: StatusOK, Answer: merged}
	}

	structuredContext := buildStructuredContext(dag, results)
	prompt := buildSynthesisPrompt(originalTask, merged, structuredContext)

	start := time.Now()
	text, usage, err := s.llmClient.Generate(ctx, llmclient.GenerateRequest{
		EndpointKey: s.endpoint,
		ModelName:   s.modelName,
		Prompt:      prompt,
		MaxTokens:   2048,
		Temperature: 0.5,
		GuidedJSON:  answerSchema(),
		Label:       "synthesizer",
	})
	if runMetrics != nil {
		runMetrics.RecordCall("synthesizer", s.modelName, "", usage.PromptTokens, usage.CompletionTokens, time.Since(start))
	}
	if err != nil {
		return Outcome{
			Status:   StatusInsufficient,
			Answer:   merged,
			Feedback: fmt.Sprintf("ResultHandler LLM call failed: %v. Unable to evaluate results. Please retry with different task decomposition.", err),
		}
	}

	if strings.TrimSpace(text) == "" {
		return Outcome{
			Status:   StatusInsufficient,
			Answer:   merged,
			Feedback: "ResultHandler received empty response. Unable to evaluate results. Please retry.",
		}
	}

	cleaned := outputparser.ExtractJSON(text)
	if cleaned == "" {
		cleaned = text
	}
	return parseAnswer(cleaned, merged)
}
