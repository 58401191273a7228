// Package scheduler runs a TaskDAG's nodes concurrently, respecting
// dependency order. Unlike the teacher's sequential executeSubtasks poll
// loop, nodes with satisfied dependencies run as soon as they're ready,
// bounded by a worker semaphore, using the teacher's mutex-guarded shared
// state bookkeeping style from its worker pool.
package scheduler

import (
	"context"
	"sync"

	"github.com/SincerityHun/LLM-Agent-Orchestrator/domain"
	"github.com/SincerityHun/LLM-Agent-Orchestrator/executor"
)

// AgentFor resolves the executor Agent that should run nodes of a domain.
// The scheduler calls it once per node it dispatches. Each
// Agent carries its own Observability, so per-node tracing happens inside
// executor.Execute rather than here.
type AgentFor func(d domain.Domain) executor.Agent

// Scheduler dispatches a TaskDAG's nodes across a bounded pool of
// goroutines, in dependency order.
type Scheduler struct {
	maxConcurrent int
}

// New creates a Scheduler. maxConcurrent bounds how many nodes run at once;
// values below 1 are treated as 1.
func New(maxConcurrent int) *Scheduler {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Scheduler{maxConcurrent: maxConcurrent}
}

// Run executes every node of dag, returning a result for each node keyed by
// node ID. The Subtask Executor never errors, so Run always returns a
// complete result set once every node has had a chance to execute.
//
// Each node's context is the union of every previously completed node's
// result text, not just its declared dependencies: a node can legitimately
// benefit from context produced by a sibling branch that happened to
// finish first, and nothing about withholding it improves correctness.
func (s *Scheduler) Run(ctx context.Context, dag domain.TaskDAG, agentFor AgentFor, userContext map[string]string) map[string]domain.SubTaskResult {
	n := len(dag.Tasks)
	results := make(map[string]domain.SubTaskResult, n)
	resultTexts := make(map[string]string, n)
	var mu sync.Mutex

	inDegree := make(map[string]int, n)
	dependents := make(map[string][]string, n)
	for _, task := range dag.Tasks {
		inDegree[task.ID] = len(task.Dependencies)
		for _, dep := range task.Dependencies {
			dependents[dep] = append(dependents[dep], task.ID)
		}
	}

	remaining := n
	sem := make(chan struct{}, s.maxConcurrent)
	ready := make(chan domain.SubTask, n)
	var wg sync.WaitGroup

	for _, task := range dag.Tasks {
		if inDegree[task.ID] == 0 {
			ready <- task
		}
	}

	run := func(task domain.SubTask) {
		defer wg.Done()
		defer func() { <-sem }()

		mu.Lock()
		snapshot := make(map[string]string, len(resultTexts))
		for k, v := range resultTexts {
			snapshot[k] = v
		}
		mu.Unlock()

		agent := agentFor(task.Domain)
		result := executor.Execute(ctx, agent, task, snapshot, userContext)

		mu.Lock()
		results[task.ID] = result
		resultTexts[task.ID] = result.Text

		var unblocked []domain.SubTask
		for _, depID := range dependents[task.ID] {
			inDegree[depID]--
			if inDegree[depID] == 0 {
				if next, ok := dag.ByID(depID); ok {
					unblocked = append(unblocked, next)
				}
			}
		}
		remaining--
		done := remaining == 0
		mu.Unlock()

		for _, next := range unblocked {
			ready <- next
		}
		if done {
			close(ready)
		}
	}

	if n == 0 {
		return results
	}

	for task := range ready {
		sem <- struct{}{}
		wg.Add(1)
		go run(task)
	}
	wg.Wait()

	return results
}
