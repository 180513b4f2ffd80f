package pipeline

import (
	"context"
	"sync"

	"github.com/ashureev/agentrelay/internal/protocol"
)

type taskStatus string

const (
	taskRunning   taskStatus = "running"
	taskCompleted taskStatus = "completed"
	taskCancelled taskStatus = "cancelled"
	taskFailed    taskStatus = "failed"
)

// taskHandle tracks one task's own cancellation scope, isolated from
// every other task's: cancelling one task must never affect another
// task running concurrently in the same solve phase.
type taskHandle struct {
	spec   TaskSpec
	cancel context.CancelFunc
	status taskStatus
	result TaskResult
}

// solveAll runs every spec concurrently, bounded by p.maxConcurrent,
// and returns their results in spec order. It returns cancelled=true if
// the parent context was cancelled (CancelPlan), in which case results
// is nil.
func (p *Pipeline) solveAll(ctx context.Context, specs []TaskSpec) (results []TaskResult, cancelled bool) {
	p.setPhase(PhaseSolving)
	if err := p.out.Send(ctx, p.event(protocol.TagSolverStart, specs)); err != nil {
		return nil, false
	}

	sem := make(chan struct{}, p.maxConcurrent)
	var wg sync.WaitGroup
	out := make([]TaskResult, len(specs))

	p.mu.Lock()
	p.tasks = make(map[string]*taskHandle, len(specs))
	for i, spec := range specs {
		taskCtx, cancel := context.WithCancel(ctx)
		p.tasks[spec.ID] = &taskHandle{spec: spec, cancel: cancel, status: taskRunning}
		i, spec, taskCtx := i, spec, taskCtx
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			out[i] = p.runOneTask(taskCtx, spec)
		}()
	}
	p.mu.Unlock()

	wg.Wait()

	if ctx.Err() != nil {
		return nil, true
	}
	if err := p.out.Send(ctx, p.event(protocol.TagSolverCompleted, out)); err != nil {
		return out, false
	}
	return out, false
}

func (p *Pipeline) runOneTask(ctx context.Context, spec TaskSpec) TaskResult {
	output, err := p.solver.Solve(ctx, spec)

	p.mu.Lock()
	handle, ok := p.tasks[spec.ID]
	p.mu.Unlock()

	result := TaskResult{TaskID: spec.ID, Output: output, Err: err}
	if !ok {
		return result
	}
	p.mu.Lock()
	switch {
	case ctx.Err() != nil:
		handle.status = taskCancelled
	case err != nil:
		handle.status = taskFailed
	default:
		handle.status = taskCompleted
	}
	handle.result = result
	p.mu.Unlock()
	return result
}

// CancelTask cancels a single in-flight task. Cancelling a task that
// has already completed is a no-op: the result already recorded stands
// and no event is re-emitted.
func (p *Pipeline) CancelTask(taskID string) error {
	p.mu.Lock()
	handle, ok := p.tasks[taskID]
	if !ok {
		p.mu.Unlock()
		return ErrUnknownTask
	}
	alreadyDone := handle.status != taskRunning
	cancel := handle.cancel
	p.mu.Unlock()

	if alreadyDone {
		return nil
	}
	cancel()
	return nil
}

// RestartTask re-runs a single task with a fresh cancellation scope,
// replacing its previous result once the new run completes. Other
// tasks' state is untouched.
func (p *Pipeline) RestartTask(ctx context.Context, taskID string) error {
	p.mu.Lock()
	handle, ok := p.tasks[taskID]
	p.mu.Unlock()
	if !ok {
		return ErrUnknownTask
	}

	taskCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	handle.cancel = cancel
	handle.status = taskRunning
	p.mu.Unlock()

	if err := p.out.Send(ctx, p.event(protocol.TagSolverRestarted, taskID)); err != nil {
		return err
	}

	go func() {
		result := p.runOneTask(taskCtx, handle.spec)
		p.mu.Lock()
		handle.result = result
		p.mu.Unlock()
	}()
	return nil
}
