package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ashureev/agentrelay/internal/agentapi"
	"github.com/ashureev/agentrelay/internal/outbound"
	"github.com/ashureev/agentrelay/internal/pipeline"
	"github.com/ashureev/agentrelay/internal/protocol"
	"github.com/ashureev/agentrelay/internal/session"
)

// agentBackend adapts a single agentapi.Agent into the Planner/Solver/
// Aggregator roles the pipeline package expects, by driving distinct
// turns of the same underlying agent and collecting its final answer
// text. This keeps the plan-solve-aggregate pipeline on the same
// Go-native Agent contract as ordinary chat turns rather than
// inventing a second agent interface.
type agentBackend struct {
	agent agentapi.Agent
}

func (b agentBackend) Plan(ctx context.Context, request string) ([]pipeline.TaskSpec, error) {
	answer, err := b.runToFinalAnswer(ctx, "plan: "+request)
	if err != nil {
		return nil, err
	}
	var specs []pipeline.TaskSpec
	if err := json.Unmarshal([]byte(answer), &specs); err != nil {
		return []pipeline.TaskSpec{{ID: "task-1", Description: answer}}, nil
	}
	return specs, nil
}

func (b agentBackend) Solve(ctx context.Context, task pipeline.TaskSpec) (string, error) {
	return b.runToFinalAnswer(ctx, "solve: "+task.Description)
}

func (b agentBackend) Aggregate(ctx context.Context, results []pipeline.TaskResult) (string, error) {
	summary := ""
	for _, r := range results {
		if r.Err != nil {
			summary += fmt.Sprintf("[%s failed: %v] ", r.TaskID, r.Err)
			continue
		}
		summary += fmt.Sprintf("[%s] %s ", r.TaskID, r.Output)
	}
	return b.runToFinalAnswer(ctx, "aggregate: "+summary)
}

func (b agentBackend) runToFinalAnswer(ctx context.Context, text string) (string, error) {
	var answer string
	for step, err := range b.agent.Run(ctx, agentapi.Input{Text: text}) {
		if err != nil {
			return "", err
		}
		if step.Kind == agentapi.StepFinalAnswer {
			if s, ok := step.Content.(string); ok {
				answer = s
			}
		}
	}
	return answer, nil
}

func (h *Handler) dispatchPipelineEvent(ctx context.Context, connectionID string, sess *session.Session, channel *outbound.Channel, ev protocol.Event) {
	p, ok := h.pipelineFor(sess.ID)

	switch ev.Tag {
	case protocol.TagUserSolveTasks:
		// user.solve_tasks always supplies its own task breakdown and
		// bypasses planning entirely (spec.md §4.6): only solver.start/
		// solver.completed are emitted, never plan.*, aggregate.*,
		// pipeline.completed, or agent.final_answer.
		specs := decodeTaskSpecs(ev.Content)
		if !ok {
			p = h.newPipeline(sess, channel)
			h.bindPipeline(sess.ID, p)
		}
		go p.SolveOnly(ctx, specs)
	case protocol.TagUserCancelTask:
		if ok {
			taskID, _ := ev.Content.(string)
			if err := p.CancelTask(taskID); err != nil {
				channel.Send(ctx, protocol.NewAgentError(sess.ID, protocol.ErrorBadSession, err.Error()))
			}
		}
	case protocol.TagUserRestartTask:
		if ok {
			taskID, _ := ev.Content.(string)
			p.RestartTask(ctx, taskID)
		}
	case protocol.TagUserCancelPlan:
		if ok {
			p.CancelPlan()
		}
	case protocol.TagUserReplan:
		if ok {
			request, _ := ev.Content.(string)
			go p.Replan(ctx, request)
		}
	}
}

// decodeTaskSpecs extracts the client-supplied task breakdown from a
// user.solve_tasks event's content ({"tasks": [...], ...}, spec.md
// §4.6). Content arrives JSON-decoded into generic maps/slices, never
// as a literal []pipeline.TaskSpec, so it's round-tripped through
// encoding/json rather than type-asserted.
func decodeTaskSpecs(content any) []pipeline.TaskSpec {
	m, ok := content.(map[string]any)
	if !ok {
		return nil
	}
	raw, err := json.Marshal(m["tasks"])
	if err != nil {
		return nil
	}
	var specs []pipeline.TaskSpec
	if err := json.Unmarshal(raw, &specs); err != nil {
		return nil
	}
	return specs
}

func (h *Handler) newPipeline(sess *session.Session, channel *outbound.Channel) *pipeline.Pipeline {
	backend := agentBackend{agent: sess.Agent()}
	return pipeline.New(sess.ID, sess.ConnectionID, backend, backend, backend, channel, pipeline.Config{
		MaxConcurrentTasks:       h.cfg.Pipeline.MaxConcurrentTasks,
		PlanConfirmationRequired: h.cfg.Pipeline.PlanConfirmationRequired,
	})
}
