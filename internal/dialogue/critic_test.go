package dialogue

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"go-advisor/internal/goal"
)

func TestCritic_Review(t *testing.T) {
	c := Critic{Persona: DefaultPersona(), Threshold: 40}
	prev := NewConversationState(DefaultPersona()).Goals
	progressed := goal.MarkComplete(prev, GoalDiagnoseIntent, nil)

	msg, patched := c.Review(prev, prev, "Short answer.")
	assert.True(t, patched)
	assert.Equal(t, "Short answer. Could you tell me a little more so we can pin down the outcome you want?", msg)

	msg, patched = c.Review(prev, progressed, "Short answer.")
	assert.False(t, patched, "progress suppresses the follow-up")
	assert.Equal(t, "Short answer.", msg)

	long := strings.Repeat("a", 40)
	msg, patched = c.Review(prev, prev, long)
	assert.False(t, patched)
	assert.Equal(t, long, msg)
}

func TestCritic_MultipleCompletionsCountAsProgress(t *testing.T) {
	c := Critic{Persona: DefaultPersona()}
	prev := NewConversationState(DefaultPersona()).Goals
	next := goal.MarkComplete(goal.MarkComplete(prev, GoalDiagnoseIntent, nil), GoalGatherConstraints, nil)

	_, patched := c.Review(prev, next, "ok")
	assert.False(t, patched)
}

func TestCritic_AllGoalsDone(t *testing.T) {
	c := Critic{Persona: DefaultPersona()}
	done := NewConversationState(DefaultPersona()).Goals
	for _, g := range DefaultPersona().Goals {
		done = goal.MarkComplete(done, g.ID, nil)
	}
	msg, patched := c.Review(done, done, "")
	assert.True(t, patched)
	assert.Equal(t, "Is there anything else you would like to adjust?", msg)
}
