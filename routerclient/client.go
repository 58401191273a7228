// Package routerclient classifies a subtask to a model size by calling the
// remote routing service, fronted by an in-process decision cache and a
// circuit breaker. Router failure degrades routing, never execution: every
// failure path returns the conservative small-model default instead of an
// error.
package routerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SincerityHun/LLM-Agent-Orchestrator/domain"
	"github.com/SincerityHun/LLM-Agent-Orchestrator/observability"
	"github.com/SincerityHun/LLM-Agent-Orchestrator/resilience"
)

const (
	routeTimeout  = 5 * time.Second
	healthTimeout = 5 * time.Second
	defaultTTL    = 10 * time.Minute
)

// mode tracks whether the remote classifier is reachable.
type mode int32

const (
	modeEnabled mode = iota
	modeDisabled
)

// Config configures a Client.
type Config struct {
	BaseURL        string
	CacheBackend   string // "memory" or "redis"
	CacheRedisAddr string
	CacheTTL       time.Duration
	HTTPClient     *http.Client
	Metrics        *observability.MetricsCollector
}

// Client calls the routing classifier service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      *decisionCache
	breaker    *resilience.CircuitBreaker
	metrics    *observability.MetricsCollector
	mode       atomic.Int32
}

// New creates a Client and probes the classifier's health endpoint once to
// decide whether to start in enabled or disabled mode.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: routeTimeout}
	}

	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = defaultTTL
	}

	var backend cacheBackend
	if cfg.CacheBackend == "redis" && cfg.CacheRedisAddr != "" {
		backend = newRedisCacheBackend(redis.NewClient(&redis.Options{Addr: cfg.CacheRedisAddr}))
	} else {
		backend = newInMemoryCacheBackend()
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		cache:      newDecisionCache(backend, ttl),
		breaker:    resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "router"}),
		metrics:    cfg.Metrics,
	}

	if c.checkHealth() {
		c.mode.Store(int32(modeEnabled))
	} else {
		c.mode.Store(int32(modeDisabled))
	}

	return c
}

func (c *Client) checkHealth() bool {
	if c.baseURL == "" {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

type routeRequestBody struct {
	Task    string            `json:"task"`
	Context map[string]string `json:"context,omitempty"`
}

type routeResponseBody struct {
	Prediction    string             `json:"prediction"`
	Probability   float64            `json:"probability"`
	Label         string             `json:"label,omitempty"`
	SoftmaxScores map[string]float64 `json:"softmax_scores,omitempty"`
}

// conservativeDefault is returned whenever routing cannot be resolved.
func conservativeDefault() domain.RouteDecision {
	return domain.RouteDecision{Size: domain.Small, Probability: 0.0}
}

// Route classifies one subtask to a model size. It never returns an error:
// any failure degrades to the conservative small-model default. taskContext
// is sent to the classifier as a JSON object, matching the reference
// service's RouteRequest.context: Optional[Dict] contract.
func (c *Client) Route(ctx context.Context, dom, task string, taskContext map[string]string) domain.RouteDecision {
	if mode(c.mode.Load()) == modeDisabled {
		return conservativeDefault()
	}

	key := cacheKey(dom, task, taskContext)

	if decision, hit := c.cache.Get(ctx, key); hit {
		if c.metrics != nil {
			c.metrics.RecordRoutingDecision(dom, string(decision.Size), true, 0)
		}
		return decision
	}

	start := time.Now()
	decision, err := resilience.DoWithResult(ctx, c.breaker, func(ctx context.Context) (domain.RouteDecision, error) {
		return resilience.WithTimeoutResult(ctx, routeTimeout, func(ctx context.Context) (domain.RouteDecision, error) {
			return c.callRoute(ctx, dom, task, taskContext)
		})
	})
	duration := time.Since(start)

	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordRoutingDecision(dom, string(domain.Small), false, duration)
		}
		return conservativeDefault()
	}

	if c.metrics != nil {
		c.metrics.RecordRoutingDecision(dom, string(decision.Size), false, duration)
	}
	c.cache.Put(ctx, key, decision)
	return decision
}

func (c *Client) callRoute(ctx context.Context, dom, task string, taskContext map[string]string) (domain.RouteDecision, error) {
	body := routeRequestBody{Task: task, Context: taskContext}
	payload, err := json.Marshal(body)
	if err != nil {
		return domain.RouteDecision{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/route/"+dom, bytes.NewReader(payload))
	if err != nil {
		return domain.RouteDecision{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.RouteDecision{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.RouteDecision{}, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.RouteDecision{}, fmt.Errorf("router returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed routeResponseBody
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return domain.RouteDecision{}, err
	}

	size, err := mapPrediction(parsed.Prediction)
	if err != nil {
		return domain.RouteDecision{}, err
	}

	return domain.RouteDecision{Size: size, Probability: parsed.Probability}, nil
}

func mapPrediction(prediction string) (domain.ModelSize, error) {
	switch prediction {
	case "1b":
		return domain.Small, nil
	case "8b":
		return domain.Large, nil
	default:
		return "", fmt.Errorf("unrecognized prediction %q", prediction)
	}
}

// Mode reports whether the client is currently talking to the classifier
// or has degraded to static small-model routing.
func (c *Client) Mode() string {
	if mode(c.mode.Load()) == modeDisabled {
		return "disabled"
	}
	return "enabled"
}
