// Package pipeline implements the plan -> solve -> aggregate pipeline:
// a planning phase produces a set of tasks, each task is solved
// concurrently (bounded fan-out via a semaphore), and an aggregation
// phase folds the task results into a single answer. Each phase emits
// its own start/completed events so a client can render progress as it
// happens; a run cancelled during SolveAndAggregate emits plan.cancelled.
// Cancelling a single task emits no event of its own.
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/ashureev/agentrelay/internal/protocol"
)

// Phase is the pipeline's current stage.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhasePlanning        Phase = "planning"
	PhaseConfirmingPlan  Phase = "confirming_plan"
	PhaseSolving         Phase = "solving"
	PhaseAggregating     Phase = "aggregating"
	PhaseDone            Phase = "done"
	PhaseCancelled       Phase = "cancelled"
	PhaseFailed          Phase = "failed"
)

// Sender is the outbound surface the pipeline sends events through.
type Sender interface {
	Send(ctx context.Context, e protocol.Event) error
}

// Planner produces a task breakdown for a request.
type Planner interface {
	Plan(ctx context.Context, request string) ([]TaskSpec, error)
}

// Solver executes a single task and returns its result.
type Solver interface {
	Solve(ctx context.Context, task TaskSpec) (string, error)
}

// Aggregator folds completed task results into a final answer.
type Aggregator interface {
	Aggregate(ctx context.Context, results []TaskResult) (string, error)
}

// TaskSpec describes one unit of work, either produced by planning or
// supplied directly by a client via user.solve_tasks.
type TaskSpec struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// TaskResult is what a solved (or cancelled/failed) task produced.
type TaskResult struct {
	TaskID string `json:"task_id"`
	Output string `json:"output"`
	Err    error  `json:"error,omitempty"`
}

// Pipeline coordinates one plan-solve-aggregate run for a session. It
// is not safe for concurrent use by more than one logical request at a
// time, matching session.Session's single-run-at-a-time discipline.
type Pipeline struct {
	sessionID    string
	connectionID string
	out          Sender
	planner      Planner
	solver       Solver
	aggregator   Aggregator
	maxConcurrent int
	confirmRequired bool

	mu     sync.Mutex
	phase  Phase
	tasks  map[string]*taskHandle
	cancel context.CancelFunc
}

// Config controls pipeline behavior.
type Config struct {
	MaxConcurrentTasks       int
	PlanConfirmationRequired bool
}

// New builds a Pipeline for one session.
func New(sessionID, connectionID string, planner Planner, solver Solver, aggregator Aggregator, out Sender, cfg Config) *Pipeline {
	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = 8
	}
	return &Pipeline{
		sessionID:       sessionID,
		connectionID:    connectionID,
		out:             out,
		planner:         planner,
		solver:          solver,
		aggregator:      aggregator,
		maxConcurrent:   cfg.MaxConcurrentTasks,
		confirmRequired: cfg.PlanConfirmationRequired,
		phase:           PhaseIdle,
		tasks:           make(map[string]*taskHandle),
	}
}

// Phase returns the pipeline's current stage.
func (p *Pipeline) Phase() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

func (p *Pipeline) setPhase(ph Phase) {
	p.mu.Lock()
	p.phase = ph
	p.mu.Unlock()
}

func (p *Pipeline) event(tag protocol.Tag, content any) protocol.Event {
	return protocol.Event{
		Tag:          tag,
		SessionID:    p.sessionID,
		ConnectionID: p.connectionID,
		Content:      content,
	}
}

// Run executes planning, optionally waits for a plan confirmation,
// solves every planned task, and aggregates the results. It returns
// once the pipeline reaches Done, Cancelled, or Failed.
func (p *Pipeline) Run(ctx context.Context, request string) error {
	runCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()
	defer cancel()

	p.setPhase(PhasePlanning)
	if err := p.out.Send(ctx, p.event(protocol.TagPlanStart, nil)); err != nil {
		return err
	}
	specs, err := p.planner.Plan(runCtx, request)
	if err != nil {
		p.setPhase(PhaseFailed)
		return p.out.Send(ctx, protocol.NewAgentError(p.sessionID, protocol.ErrorPlanFailed, err.Error()))
	}
	if err := p.out.Send(ctx, p.event(protocol.TagPlanCompleted, specs)); err != nil {
		return err
	}

	if p.confirmRequired {
		p.setPhase(PhaseConfirmingPlan)
		// Run only gets as far as emitting the plan when confirmation
		// is required; solving starts only if a caller later invokes
		// SolveAndAggregate with the confirmed task list.
		return nil
	}

	return p.SolveAndAggregate(ctx, specs)
}

// SolveAndAggregate runs the solve and aggregate phases for an
// already-produced (and, if required, already-confirmed) task list.
func (p *Pipeline) SolveAndAggregate(ctx context.Context, specs []TaskSpec) error {
	runCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()
	defer cancel()

	results, cancelled := p.solveAll(runCtx, specs)
	if cancelled {
		p.setPhase(PhaseCancelled)
		return p.out.Send(ctx, p.event(protocol.TagPlanCancelled, nil))
	}

	p.setPhase(PhaseAggregating)
	if err := p.out.Send(ctx, p.event(protocol.TagAggregateStart, nil)); err != nil {
		return err
	}
	final, err := p.aggregator.Aggregate(ctx, results)
	if err != nil {
		p.setPhase(PhaseFailed)
		return p.out.Send(ctx, protocol.NewAgentError(p.sessionID, protocol.ErrorAggregateFailed, err.Error()))
	}
	if err := p.out.Send(ctx, p.event(protocol.TagAggregateCompleted, final)); err != nil {
		return err
	}
	p.setPhase(PhaseDone)
	if err := p.out.Send(ctx, p.event(protocol.TagPipelineCompleted, final)); err != nil {
		return err
	}
	return p.out.Send(ctx, p.event(protocol.TagAgentFinalAnswer, final))
}

// SolveOnly runs specs through the solve phase and stops: no planning,
// no aggregation, no pipeline.completed or agent.final_answer. This is
// the user.solve_tasks bypass (spec.md §4.6), for a client that already
// has its own task breakdown and only wants this gateway's concurrent
// solve fan-out.
func (p *Pipeline) SolveOnly(ctx context.Context, specs []TaskSpec) error {
	runCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()
	defer cancel()

	_, cancelled := p.solveAll(runCtx, specs)
	if cancelled {
		p.setPhase(PhaseCancelled)
		return nil
	}
	p.setPhase(PhaseDone)
	return nil
}

// CancelPlan aborts the entire pipeline run, cancelling every
// in-flight task.
func (p *Pipeline) CancelPlan() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

var ErrUnknownTask = fmt.Errorf("pipeline: unknown task id")
