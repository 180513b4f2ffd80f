package testkit

import "github.com/ashureev/agentrelay/internal/agentapi"

// SimpleAnswer builds a one-shot ScriptedAgent factory that thinks
// briefly and then answers with text, useful for gateway end-to-end
// tests that only care about the connection lifecycle.
func SimpleAnswer(text string) agentapi.Factory {
	return func() (agentapi.Agent, error) {
		return agentapi.NewScriptedAgent([]agentapi.Step{
			{Kind: agentapi.StepThinking, Content: "thinking"},
			{Kind: agentapi.StepFinalAnswer, Content: text},
		}), nil
	}
}

// ConfirmGated builds a factory whose agent asks for confirmation
// before returning text.
func ConfirmGated(toolName, text string) agentapi.Factory {
	return func() (agentapi.Agent, error) {
		return agentapi.NewScriptedAgent([]agentapi.Step{
			{Kind: agentapi.StepConfirm, ConfirmToken: "tok", ToolName: toolName},
			{Kind: agentapi.StepFinalAnswer, Content: text},
		}), nil
	}
}
