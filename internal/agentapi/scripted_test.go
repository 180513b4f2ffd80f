package agentapi

import (
	"context"
	"testing"
	"time"
)

func TestScriptedAgentSimpleRun(t *testing.T) {
	a := NewScriptedAgent([]Step{
		{Kind: StepThinking, Content: "pondering"},
		{Kind: StepFinalAnswer, Content: "42"},
	})
	var kinds []StepKind
	for step, err := range a.Run(context.Background(), Input{SessionID: "s1", Text: "hi"}) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		kinds = append(kinds, step.Kind)
	}
	if len(kinds) != 2 || kinds[0] != StepThinking || kinds[1] != StepFinalAnswer {
		t.Fatalf("kinds = %v, want [thinking final_answer]", kinds)
	}
}

func TestScriptedAgentConfirmApproved(t *testing.T) {
	a := NewScriptedAgent([]Step{
		{Kind: StepConfirm, ConfirmToken: "tok-1", ToolName: "delete_file"},
		{Kind: StepToolResult, Content: "deleted"},
		{Kind: StepFinalAnswer, Content: "done"},
	})

	results := make(chan []StepKind, 1)
	go func() {
		var kinds []StepKind
		for step, err := range a.Run(context.Background(), Input{SessionID: "s1"}) {
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			kinds = append(kinds, step.Kind)
			if step.Kind == StepConfirm {
				go a.Confirm(context.Background(), step.ConfirmToken, ConfirmDecision{Approved: true})
			}
		}
		results <- kinds
	}()

	select {
	case kinds := <-results:
		if len(kinds) != 3 {
			t.Fatalf("kinds = %v, want 3 steps", kinds)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for scripted agent to finish")
	}
}

func TestScriptedAgentConfirmDenied(t *testing.T) {
	a := NewScriptedAgent([]Step{
		{Kind: StepConfirm, ConfirmToken: "tok-2", ToolName: "delete_file"},
		{Kind: StepToolResult, Content: "deleted"},
	})

	results := make(chan []StepKind, 1)
	go func() {
		var kinds []StepKind
		for step, err := range a.Run(context.Background(), Input{SessionID: "s1"}) {
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			kinds = append(kinds, step.Kind)
			if step.Kind == StepConfirm {
				go a.Confirm(context.Background(), step.ConfirmToken, ConfirmDecision{Approved: false, Reason: "no"})
			}
		}
		results <- kinds
	}()

	select {
	case kinds := <-results:
		if len(kinds) != 2 || kinds[1] != StepFinalAnswer {
			t.Fatalf("kinds = %v, want [confirm final_answer]", kinds)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for scripted agent to finish")
	}
}
