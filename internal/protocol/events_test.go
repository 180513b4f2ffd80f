package protocol

import "testing"

func TestTagCategory(t *testing.T) {
	cases := []struct {
		tag  Tag
		want Category
	}{
		{TagUserMessage, CategoryUser},
		{TagAgentFinalAnswer, CategoryAgent},
		{TagPlanStart, CategoryPlanSolve},
		{TagSystemHeartbeat, CategorySystem},
		{Tag("bogus.tag"), categoryUnknown},
	}
	for _, c := range cases {
		if got := c.tag.Category(); got != c.want {
			t.Errorf("Tag(%q).Category() = %q, want %q", c.tag, got, c.want)
		}
	}
}

func TestRequiresSession(t *testing.T) {
	if RequiresSession(TagUserCreateSession) {
		t.Error("create_session must not require an existing session")
	}
	if RequiresSession(TagUserReconnect) {
		t.Error("reconnect must not require an existing session")
	}
	if !RequiresSession(TagUserMessage) {
		t.Error("user.message must require a bound session")
	}
	if !RequiresSession(TagUserCancelTask) {
		t.Error("user.cancel_task must require a bound session")
	}
}

func TestCarriesSessionID(t *testing.T) {
	if !CarriesSessionID(TagAgentThinking) {
		t.Error("agent category events must carry session_id")
	}
	if !CarriesSessionID(TagSolverStart) {
		t.Error("plan_solve category events must carry session_id")
	}
	if CarriesSessionID(TagSystemHeartbeat) {
		t.Error("system category events must never carry session_id")
	}
}

func TestStreamingAndTerminatingAreDisjoint(t *testing.T) {
	for tag := range streamingTags {
		if terminatingTags[tag] {
			t.Errorf("tag %q is both streaming and terminating", tag)
		}
	}
}
