// Package orchestrator runs the outer decompose/execute/synthesize loop
// for one task, reworked from the teacher's ExecuteTask into the
// decompose-once, re-synthesize-on-feedback shape this spec calls for.
package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/SincerityHun/LLM-Agent-Orchestrator/config"
	"github.com/SincerityHun/LLM-Agent-Orchestrator/decomposer"
	"github.com/SincerityHun/LLM-Agent-Orchestrator/domain"
	"github.com/SincerityHun/LLM-Agent-Orchestrator/eventbus"
	"github.com/SincerityHun/LLM-Agent-Orchestrator/executor"
	"github.com/SincerityHun/LLM-Agent-Orchestrator/llmclient"
	"github.com/SincerityHun/LLM-Agent-Orchestrator/observability"
	"github.com/SincerityHun/LLM-Agent-Orchestrator/routerclient"
	"github.com/SincerityHun/LLM-Agent-Orchestrator/scheduler"
	"github.com/SincerityHun/LLM-Agent-Orchestrator/synthesizer"
)

// RunResult is the outcome of one Process call.
type RunResult struct {
	Success     bool
	FinalAnswer string
	Iterations  int
	Metrics     domain.RunMetrics
	Reason      string
}

// Orchestrator wires the Decomposer, Scheduler and Synthesizer into the
// refinement loop described by Process.
type Orchestrator struct {
	decomposer   *decomposer.Decomposer
	synthesizer  *synthesizer.Synthesizer
	scheduler    *scheduler.Scheduler
	llmClient    *llmclient.Client
	routerClient *routerclient.Client
	eventBus     eventbus.EventBus
	obs          *observability.Observability
	models       config.ModelsConfig
	domainSpecs  map[domain.Domain]domain.DomainSpec
	maxRetry     int
	modelParams  observability.ModelParams
}

// New wires an Orchestrator from configuration and the shared clients and
// observability stack. Call sites build the clients once at process start
// and pass them in, the way the teacher wires its Protocol/LedgerBackend
// into the Orchestrator constructor.
func New(cfg *config.Config, llmClient *llmclient.Client, routerClient *routerclient.Client, bus eventbus.EventBus, obs *observability.Observability) *Orchestrator {
	decomp := decomposer.New(decomposer.Config{
		LLMClient: llmClient,
		Endpoint:  llmclient.EndpointLarge,
		ModelName: cfg.Models.DecomposerModel,
	})
	synth := synthesizer.New(synthesizer.Config{
		LLMClient: llmClient,
		Endpoint:  llmclient.EndpointLarge,
		ModelName: cfg.Models.SynthesizerModel,
	})
	sched := scheduler.New(cfg.Orchestrator.MaxConcurrentSubtasks)

	return &Orchestrator{
		decomposer:   decomp,
		synthesizer:  synth,
		scheduler:    sched,
		llmClient:    llmClient,
		routerClient: routerClient,
		eventBus:     bus,
		obs:          obs,
		models:       cfg.Models,
		domainSpecs:  domain.DefaultDomainSpecs(),
		maxRetry:     cfg.Orchestrator.MaxRetry,
		modelParams:  observability.DefaultModelParams(),
	}
}

func (o *Orchestrator) agentFor(runID string, runMetrics *observability.RunMetrics) scheduler.AgentFor {
	return func(d domain.Domain) executor.Agent {
		return executor.Agent{
			Domain: d,
			Config: executor.ExecutorConfig{
				DomainSpec:   o.domainSpecs[d],
				Models:       o.models,
				LLMClient:    o.llmClient,
				RouterClient: o.routerClient,
				RunMetrics:   runMetrics,
				Obs:          o.obs,
				EventBus:     o.eventBus,
				RunID:        runID,
			},
		}
	}
}

// foldSummary folds the live observability.RunMetrics accumulator into the
// read-only domain.RunMetrics snapshot, preserving the per-class breakdown
// (decomposer, routing, worker, synthesizer) that each LLMCallRecord's Role
// already carries, the way get_summary() breaks router/agent/handler calls
// out of a single flat call list.
func foldSummary(summary observability.RunSummary) domain.RunMetrics {
	var smallCalls, largeCalls int
	var decomposer, routing, worker, synthesizer domain.ClassMetrics
	accumulate := func(m *domain.ClassMetrics, call observability.LLMCallRecord) {
		m.Calls++
		m.Tokens += call.PromptTokens + call.CompletionTokens
		m.TFLOPs += call.TFLOPs
	}
	for _, call := range summary.Calls {
		switch call.Role {
		case "small":
			smallCalls++
			accumulate(&worker, call)
		case "large":
			largeCalls++
			accumulate(&worker, call)
		case "worker":
			accumulate(&worker, call)
		case "decomposer":
			accumulate(&decomposer, call)
		case "routing":
			accumulate(&routing, call)
		case "synthesizer":
			accumulate(&synthesizer, call)
		}
	}
	return domain.RunMetrics{
		PromptTokens:     summary.PromptTokens,
		CompletionTokens: summary.CompletionTokens,
		TotalTokens:      summary.TotalTokens,
		TotalTFLOPs:      summary.TotalTFLOPs,
		Retries:          summary.Retries,
		CallCount:        summary.CallCount,
		SmallCalls:       smallCalls,
		LargeCalls:       largeCalls,
		Decomposer:       decomposer,
		Routing:          routing,
		Worker:           worker,
		Synthesizer:      synthesizer,
	}
}

// Process runs the decompose/execute/synthesize loop for task on behalf of
// userID, returning once an answer is synthesized or the retry budget is
// exhausted.
func (o *Orchestrator) Process(ctx context.Context, task string, userID string) RunResult {
	runID := uuid.New().String()
	runMetrics := observability.NewRunMetrics(o.modelParams)
	logger := o.obs.GetLogger(ctx)

	ctx, span := o.obs.Tracer.StartOrchestratorSpan(ctx, runID)
	defer o.obs.Tracer.EndSpan(span, nil)

	_ = o.eventBus.Publish(ctx, eventbus.RunEvent{RunID: runID, Kind: eventbus.RunStarted, At: time.Now()})
	logger.Info("run started", observability.String("run_id", runID), observability.String("task", task))

	userContext := map[string]string{"user_id": userID}

	var (
		dag      domain.TaskDAG
		merged   string
		feedback string
	)

	for iteration := 0; iteration < o.maxRetry; iteration++ {
		if iteration == 0 {
			dag = o.decomposer.Decompose(ctx, task, "", "", runMetrics)
		}

		results := o.scheduler.Run(ctx, dag, o.agentFor(runID, runMetrics), userContext)
		merged = synthesizer.MergeForDisplay(dag, results)

		outcome := o.synthesizer.Synthesize(ctx, task, results, dag, iteration, runMetrics)
		if outcome.Status == synthesizer.StatusOK {
			summary := runMetrics.Summary()
			_ = o.eventBus.Publish(ctx, eventbus.RunEvent{RunID: runID, Kind: eventbus.RunFinished, Status: "success", At: time.Now()})
			logger.Info("run finished",
				observability.String("run_id", runID),
				observability.Int("iteration", iteration+1),
				observability.Int("total_tokens", summary.TotalTokens))
			return RunResult{
				Success:     true,
				FinalAnswer: outcome.Answer,
				Iterations:  iteration + 1,
				Metrics:     foldSummary(summary),
				Reason:      "answer synthesized successfully",
			}
		}

		feedback = outcome.Feedback
		runMetrics.IncrementRetries()
		logger.Info("synthesis insufficient, retrying",
			observability.String("run_id", runID),
			observability.Int("iteration", iteration+1),
			observability.String("feedback", feedback))
	}

	summary := runMetrics.Summary()
	_ = o.eventBus.Publish(ctx, eventbus.RunEvent{RunID: runID, Kind: eventbus.RunFinished, Status: "failure", At: time.Now()})
	logger.Info("run exhausted retries",
		observability.String("run_id", runID),
		observability.Int("max_retry", o.maxRetry))

	return RunResult{
		Success:     false,
		FinalAnswer: merged,
		Iterations:  o.maxRetry,
		Metrics:     foldSummary(summary),
		Reason:      "max_retry_reached",
	}
}
