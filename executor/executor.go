// Package executor runs one DAG node: it routes the subtask to a model
// size, resolves the concrete endpoint and model name, assembles the
// prompt, and calls the LLM Client. Per the REDESIGN FLAG applied to this
// component, the agent carrying this behavior is a plain struct with no
// conversation history or reply-function registry, unlike the teacher's
// embedding-based ConversableAgent chain.
package executor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/SincerityHun/LLM-Agent-Orchestrator/config"
	"github.com/SincerityHun/LLM-Agent-Orchestrator/domain"
	"github.com/SincerityHun/LLM-Agent-Orchestrator/eventbus"
	"github.com/SincerityHun/LLM-Agent-Orchestrator/llmclient"
	"github.com/SincerityHun/LLM-Agent-Orchestrator/observability"
	"github.com/SincerityHun/LLM-Agent-Orchestrator/routerclient"
)

// privateContextKeys are dropped from the context block before it reaches
// the prompt: orchestrator bookkeeping the model has no business seeing.
var privateContextKeys = map[string]bool{
	"user_id": true,
}

// ExecutorConfig bundles everything Execute needs beyond the node itself:
// the domain's static spec, the Config Store's model mapping, and the
// shared clients. Held on Agent rather than threaded as separate
// parameters, per the REDESIGN FLAG's plain-struct shape.
type ExecutorConfig struct {
	DomainSpec   domain.DomainSpec
	Models       config.ModelsConfig
	LLMClient    *llmclient.Client
	RouterClient *routerclient.Client
	RunMetrics   *observability.RunMetrics
	Obs          *observability.Observability
	EventBus     eventbus.EventBus
	RunID        string
}

// Agent is the plain, history-free executor identity for one domain.
type Agent struct {
	Domain domain.Domain
	Config ExecutorConfig
}

// filterContext merges upstream results and user context, dropping private
// keys and empty values, for the router's context object and the prompt's
// Context block.
func filterContext(upstreamResults, userContext map[string]string) map[string]string {
	merged := make(map[string]string, len(upstreamResults)+len(userContext))
	for k, v := range upstreamResults {
		merged[k] = v
	}
	for k, v := range userContext {
		merged[k] = v
	}

	filtered := make(map[string]string, len(merged))
	for k, v := range merged {
		if privateContextKeys[k] || strings.TrimSpace(v) == "" {
			continue
		}
		filtered[k] = v
	}
	return filtered
}

// joinContext renders a filtered context map into the newline-delimited
// form used in the prompt's Context block.
func joinContext(filtered map[string]string) string {
	keys := make([]string, 0, len(filtered))
	for k := range filtered {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, filtered[k]))
	}
	return strings.Join(parts, "\n")
}

// buildContextSummary merges upstream results and user context, dropping
// private keys and empty values, for the prompt's Context block.
func buildContextSummary(upstreamResults, userContext map[string]string) string {
	return joinContext(filterContext(upstreamResults, userContext))
}

// estimateTokens approximates token count from character length, since the
// routing classifier doesn't report usage the way the LLM endpoints do.
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}

func resolveModel(models config.ModelsConfig, dom domain.Domain, size domain.ModelSize) (llmclient.EndpointKey, string, error) {
	var cfg config.DomainModelConfig
	switch dom {
	case domain.Commonsense:
		cfg = models.Commonsense
	case domain.Medical:
		cfg = models.Medical
	case domain.Law:
		cfg = models.Law
	case domain.Math:
		cfg = models.Math
	default:
		return "", "", fmt.Errorf("unrecognized domain %q", dom)
	}

	modelName := cfg.Small
	endpoint := llmclient.EndpointSmall
	if size == domain.Large {
		modelName = cfg.Large
		endpoint = llmclient.EndpointLarge
	}
	if modelName == "" {
		return "", "", fmt.Errorf("no model configured for domain %q size %q", dom, size)
	}
	return endpoint, modelName, nil
}

func mockResult(node domain.SubTask, size domain.ModelSize, cause error) domain.SubTaskResult {
	return domain.SubTaskResult{
		NodeID:         node.ID,
		Domain:         node.Domain,
		SubtaskContent: node.Content,
		Text:           fmt.Sprintf("[MOCK RESPONSE: %v]", cause),
		ModelSize:      size,
		Status:         domain.StatusMock,
	}
}

// Execute runs one subtask to completion. It never returns an error: any
// failure downgrades the node to a mock result, since the Scheduler must
// always be able to complete the DAG.
func Execute(ctx context.Context, agent Agent, node domain.SubTask, upstreamResults map[string]string, userContext map[string]string) domain.SubTaskResult {
	cfg := agent.Config
	filteredContext := filterContext(upstreamResults, userContext)
	contextSummary := joinContext(filteredContext)

	route := cfg.RouterClient.Route(ctx, string(node.Domain), node.Content, filteredContext)
	if cfg.RunMetrics != nil {
		cfg.RunMetrics.RecordCall("routing", "router-classifier", string(node.Domain), estimateTokens(node.Content+contextSummary), 0, 0)
	}

	endpointKey, modelName, err := resolveModel(cfg.Models, node.Domain, route.Size)
	if err != nil {
		return mockResult(node, route.Size, err)
	}

	prompt := cfg.DomainSpec.PromptTemplate + "\n\nTask: " + node.Content
	if contextSummary != "" {
		prompt += "\n\nContext: " + contextSummary
	}
	prompt += "\n\nResponse:"

	var result domain.SubTaskResult
	err = cfg.Obs.ObserveSubtaskExecution(ctx, node.ID, string(node.Domain), string(route.Size), func(ctx context.Context) error {
		start := time.Now()
		text, usage, genErr := cfg.LLMClient.Generate(ctx, llmclient.GenerateRequest{
			EndpointKey: endpointKey,
			ModelName:   modelName,
			Prompt:      prompt,
			MaxTokens:   cfg.DomainSpec.MaxTokens,
			Temperature: cfg.DomainSpec.Temperature,
			Label:       "worker",
		})
		duration := time.Since(start)

		if genErr != nil {
			result = mockResult(node, route.Size, genErr)
			if cfg.RunMetrics != nil {
				cfg.RunMetrics.RecordCall("worker", modelName, string(node.Domain), 0, 0, duration)
			}
			return genErr
		}

		if cfg.RunMetrics != nil {
			cfg.RunMetrics.RecordCall(string(route.Size), modelName, string(node.Domain), usage.PromptTokens, usage.CompletionTokens, duration)
		}

		result = domain.SubTaskResult{
			NodeID:         node.ID,
			Domain:         node.Domain,
			SubtaskContent: node.Content,
			Text:           text,
			Usage:          usage,
			ModelSize:      route.Size,
			Status:         domain.StatusOK,
		}
		return nil
	})
	_ = err // Execute itself never surfaces an error; ObserveSubtaskExecution already logged/traced it.

	if cfg.EventBus != nil {
		_ = cfg.EventBus.Publish(ctx, eventbus.RunEvent{
			RunID:  cfg.RunID,
			Kind:   eventbus.NodeCompleted,
			NodeID: node.ID,
			Status: string(result.Status),
		})
	}

	return result
}
