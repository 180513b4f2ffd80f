package pipeline

import "context"

// Replan discards the current plan and tasks and runs planning again
// for a revised request, starting the pipeline over from PhasePlanning.
func (p *Pipeline) Replan(ctx context.Context, request string) error {
	p.mu.Lock()
	p.tasks = make(map[string]*taskHandle)
	p.mu.Unlock()
	return p.Run(ctx, request)
}

// TaskResults returns a snapshot of every task's current result, for
// callers (e.g. a confirming_plan -> solving transition) that need to
// inspect completed work without waiting on the full run to return.
func (p *Pipeline) TaskResults() []TaskResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	results := make([]TaskResult, 0, len(p.tasks))
	for _, h := range p.tasks {
		results = append(results, h.result)
	}
	return results
}
