package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/agentrelay/internal/protocol"
)

type fakeSender struct {
	mu  sync.Mutex
	got []protocol.Event
}

func (f *fakeSender) Send(ctx context.Context, e protocol.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, e)
	return nil
}

func (f *fakeSender) tags() []protocol.Tag {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.Tag, len(f.got))
	for i, e := range f.got {
		out[i] = e.Tag
	}
	return out
}

type fakePlanner struct{ specs []TaskSpec }

func (p fakePlanner) Plan(ctx context.Context, request string) ([]TaskSpec, error) {
	return p.specs, nil
}

type fakeSolver struct {
	delay time.Duration
}

func (s fakeSolver) Solve(ctx context.Context, task TaskSpec) (string, error) {
	select {
	case <-time.After(s.delay):
		return "solved:" + task.ID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type fakeAggregator struct{}

func (fakeAggregator) Aggregate(ctx context.Context, results []TaskResult) (string, error) {
	return fmt.Sprintf("aggregated %d results", len(results)), nil
}

func TestPipelineRunsEndToEnd(t *testing.T) {
	specs := []TaskSpec{{ID: "t1"}, {ID: "t2"}, {ID: "t3"}}
	out := &fakeSender{}
	p := New("sess-1", "conn-1", fakePlanner{specs}, fakeSolver{}, fakeAggregator{}, out, Config{MaxConcurrentTasks: 2})

	if err := p.Run(context.Background(), "do the thing"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if p.Phase() != PhaseDone {
		t.Fatalf("Phase() = %q, want done", p.Phase())
	}

	tags := out.tags()
	want := []protocol.Tag{
		protocol.TagPlanStart, protocol.TagPlanCompleted,
		protocol.TagSolverStart, protocol.TagSolverCompleted,
		protocol.TagAggregateStart, protocol.TagAggregateCompleted,
		protocol.TagPipelineCompleted, protocol.TagAgentFinalAnswer,
	}
	if len(tags) != len(want) {
		t.Fatalf("tags = %v, want %v", tags, want)
	}
	for i := range want {
		if tags[i] != want[i] {
			t.Errorf("tags[%d] = %q, want %q", i, tags[i], want[i])
		}
	}
}

func TestCancelTaskIsolatesOtherTasks(t *testing.T) {
	specs := []TaskSpec{{ID: "t1"}, {ID: "t2"}}
	out := &fakeSender{}
	p := New("sess-1", "conn-1", fakePlanner{specs}, fakeSolver{delay: 100 * time.Millisecond}, fakeAggregator{}, out, Config{MaxConcurrentTasks: 2})

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background(), "go") }()

	time.Sleep(10 * time.Millisecond)
	if err := p.CancelTask("t1"); err != nil {
		t.Fatalf("CancelTask: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}

	results := p.TaskResults()
	var t1Cancelled, t2Succeeded bool
	for _, r := range results {
		if r.TaskID == "t1" && r.Err != nil {
			t1Cancelled = true
		}
		if r.TaskID == "t2" && r.Err == nil {
			t2Succeeded = true
		}
	}
	if !t1Cancelled {
		t.Error("expected t1 to be cancelled")
	}
	if !t2Succeeded {
		t.Error("expected t2 to complete successfully despite t1 being cancelled")
	}
}

func TestCancelAlreadyCompletedTaskIsNoOp(t *testing.T) {
	specs := []TaskSpec{{ID: "t1"}}
	out := &fakeSender{}
	p := New("sess-1", "conn-1", fakePlanner{specs}, fakeSolver{}, fakeAggregator{}, out, Config{MaxConcurrentTasks: 1})

	if err := p.Run(context.Background(), "go"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := p.CancelTask("t1"); err != nil {
		t.Fatalf("CancelTask on completed task: %v", err)
	}
}

func TestSolveOnlyBypassesPlanningAndAggregation(t *testing.T) {
	specs := []TaskSpec{{ID: "t1"}, {ID: "t2"}}
	out := &fakeSender{}
	p := New("sess-1", "conn-1", fakePlanner{specs}, fakeSolver{}, fakeAggregator{}, out, Config{MaxConcurrentTasks: 2})

	if err := p.SolveOnly(context.Background(), specs); err != nil {
		t.Fatalf("SolveOnly: %v", err)
	}
	if p.Phase() != PhaseDone {
		t.Fatalf("Phase() = %q, want done", p.Phase())
	}

	tags := out.tags()
	want := []protocol.Tag{protocol.TagSolverStart, protocol.TagSolverCompleted}
	if len(tags) != len(want) {
		t.Fatalf("tags = %v, want %v (no plan.*/aggregate.*/pipeline.completed/agent.final_answer)", tags, want)
	}
	for i := range want {
		if tags[i] != want[i] {
			t.Errorf("tags[%d] = %q, want %q", i, tags[i], want[i])
		}
	}
}

func TestCancelUnknownTaskReturnsError(t *testing.T) {
	out := &fakeSender{}
	p := New("sess-1", "conn-1", fakePlanner{nil}, fakeSolver{}, fakeAggregator{}, out, Config{MaxConcurrentTasks: 1})
	if err := p.CancelTask("nope"); err != ErrUnknownTask {
		t.Fatalf("err = %v, want ErrUnknownTask", err)
	}
}
