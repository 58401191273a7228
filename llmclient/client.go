// Package llmclient issues completion requests against the small and large
// model endpoints. It speaks a raw vLLM-style /completions contract with
// guided_json/guided_regex fields the chat-completion SDKs cannot express,
// so it is built the way the teacher built its TupleLeap provider: marshal
// a request struct, POST with net/http, decode the response.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/SincerityHun/LLM-Agent-Orchestrator/domain"
	errorsx "github.com/SincerityHun/LLM-Agent-Orchestrator/errors"
	"github.com/SincerityHun/LLM-Agent-Orchestrator/resilience"
	"github.com/SincerityHun/LLM-Agent-Orchestrator/retry"
)

const defaultTimeout = 60 * time.Second

// EndpointKey selects which backend a call is routed to.
type EndpointKey string

const (
	EndpointSmall EndpointKey = "small"
	EndpointLarge EndpointKey = "large"
)

// Config configures the set of backend endpoints a Client can reach.
type Config struct {
	SmallEndpointURL string
	LargeEndpointURL string
	Timeout          time.Duration
	HTTPClient       *http.Client
}

// Client issues completion requests to the backend named by an EndpointKey.
type Client struct {
	endpoints  map[EndpointKey]string
	httpClient *http.Client
}

// New creates a Client from Config. A shared, bounded-transport http.Client
// is used across all calls so connections pool instead of being
// reestablished per request; if cfg.HTTPClient is nil a default is built.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 16,
				MaxConnsPerHost:     16,
			},
		}
	}

	return &Client{
		endpoints: map[EndpointKey]string{
			EndpointSmall: strings.TrimRight(cfg.SmallEndpointURL, "/"),
			EndpointLarge: strings.TrimRight(cfg.LargeEndpointURL, "/"),
		},
		httpClient: httpClient,
	}
}

// GenerateRequest is the input to a single completion call.
type GenerateRequest struct {
	EndpointKey EndpointKey
	ModelName   string
	Prompt      string
	MaxTokens   int
	Temperature float64
	GuidedJSON  map[string]any
	GuidedRegex string
	Label       string // decomposer, synthesizer, worker; used only for logging/metrics by the caller
}

// completionRequest is the wire body sent to {endpoint}/completions.
type completionRequest struct {
	Model             string         `json:"model"`
	Prompt            string         `json:"prompt"`
	MaxTokens         int            `json:"max_tokens"`
	Temperature       float64        `json:"temperature"`
	RepetitionPenalty float64        `json:"repetition_penalty"`
	Stop              []string       `json:"stop"`
	GuidedJSON        map[string]any `json:"guided_json,omitempty"`
	GuidedRegex       string         `json:"guided_regex,omitempty"`
}

type completionChoice struct {
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason"`
}

type completionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type completionResponse struct {
	Choices []completionChoice `json:"choices"`
	Usage   completionUsage    `json:"usage"`
}

// isAdapterModel reports whether modelName names a LoRA adapter rather than
// a base model: any name containing "lora" or "adapter", case-insensitively,
// in this deployment's naming convention.
func isAdapterModel(modelName string) bool {
	lower := strings.ToLower(modelName)
	return strings.Contains(lower, "lora") || strings.Contains(lower, "adapter")
}

func generationParams(modelName string) (repetitionPenalty float64, stop []string) {
	if isAdapterModel(modelName) {
		return 1.1, []string{"\n\n\n", "Task:", "Response:"}
	}
	return 1.0, []string{"\n\n\n"}
}

// generateResult bundles Generate's two return values so the call can be
// wrapped in a single resilience.WithTimeoutResult invocation.
type generateResult struct {
	text  string
	usage domain.CallUsage
}

// Generate issues one completion request and returns the trimmed text of
// the first choice plus the usage the endpoint reported. The whole
// marshal/POST/decode sequence runs under a bounded timeout independent of
// the caller's context deadline, so one slow backend can't stall a run
// past defaultTimeout. Transient failures (connection errors, 429/5xx) are
// retried a couple of times with a short backoff before giving up; callers
// above (the Subtask Executor, Decomposer, Synthesizer) treat a returned
// error as final and degrade accordingly.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (string, domain.CallUsage, error) {
	result, err := retry.Do(ctx, func() (generateResult, error) {
		return resilience.WithTimeoutResult(ctx, defaultTimeout, func(ctx context.Context) (generateResult, error) {
			return c.doGenerate(ctx, req)
		})
	}, retry.WithMaxRetries(2), retry.WithInitialDelay(200*time.Millisecond), retry.WithMaxDelay(2*time.Second))
	if err != nil {
		return "", domain.CallUsage{}, err
	}
	return result.text, result.usage, nil
}

func (c *Client) doGenerate(ctx context.Context, req GenerateRequest) (generateResult, error) {
	endpoint, ok := c.endpoints[req.EndpointKey]
	if !ok || endpoint == "" {
		return generateResult{}, errorsx.NewLLMError(string(req.EndpointKey), req.ModelName, "generate", 0,
			fmt.Errorf("no endpoint configured for key %q", req.EndpointKey))
	}

	repetitionPenalty, stop := generationParams(req.ModelName)

	body := completionRequest{
		Model:             req.ModelName,
		Prompt:            req.Prompt,
		MaxTokens:         req.MaxTokens,
		Temperature:       req.Temperature,
		RepetitionPenalty: repetitionPenalty,
		Stop:              stop,
		GuidedJSON:        req.GuidedJSON,
	}
	if req.GuidedJSON == nil {
		body.GuidedRegex = req.GuidedRegex
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return generateResult{}, errorsx.NewLLMError(string(req.EndpointKey), req.ModelName, "marshal", 0, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/completions", bytes.NewReader(payload))
	if err != nil {
		return generateResult{}, errorsx.NewLLMError(string(req.EndpointKey), req.ModelName, "build_request", 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return generateResult{}, errorsx.NewLLMError(string(req.EndpointKey), req.ModelName, "do_request", 0, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return generateResult{}, errorsx.NewLLMError(string(req.EndpointKey), req.ModelName, "read_body", resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return generateResult{}, errorsx.NewLLMError(string(req.EndpointKey), req.ModelName, "completions", resp.StatusCode,
			fmt.Errorf("non-2xx response: %s", strings.TrimSpace(string(respBody))))
	}

	var parsed completionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return generateResult{}, errorsx.NewLLMError(string(req.EndpointKey), req.ModelName, "decode_response", resp.StatusCode, err)
	}

	if len(parsed.Choices) == 0 {
		return generateResult{}, errorsx.NewLLMError(string(req.EndpointKey), req.ModelName, "completions", resp.StatusCode,
			fmt.Errorf("empty choices array"))
	}

	text := strings.TrimSpace(parsed.Choices[0].Text)
	if text == "" {
		return generateResult{}, errorsx.NewLLMError(string(req.EndpointKey), req.ModelName, "completions", resp.StatusCode,
			fmt.Errorf("empty completion text"))
	}

	usage := domain.CallUsage{
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
		TotalTokens:      parsed.Usage.TotalTokens,
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}

	return generateResult{text: text, usage: usage}, nil
}
