package dialogue

import (
	"strings"
	"unicode/utf8"

	"go-advisor/internal/goal"
)

// DefaultFollowUpThreshold is the reply length, in runes, under which a
// turn that completed no goal gets a follow-up question appended.
const DefaultFollowUpThreshold = 160

// Critic guarantees minimum progress: a turn that completes no goal and
// produces a short reply is patched with one clarifying question.
type Critic struct {
	Persona   Persona
	Threshold int
}

// Review returns the final message and whether it was patched. A turn
// counts as progress when at least one goal is complete in next that was
// not complete in prev.
func (c Critic) Review(prev, next []goal.Goal, reply string) (string, bool) {
	if len(goal.NewlyCompleted(prev, next)) > 0 {
		return reply, false
	}
	trimmed := strings.TrimSpace(reply)
	if utf8.RuneCountInString(trimmed) >= c.threshold() {
		return reply, false
	}
	follow := c.followUp(next)
	if trimmed == "" {
		return follow, true
	}
	return trimmed + " " + follow, true
}

func (c Critic) threshold() int {
	if c.Threshold <= 0 {
		return DefaultFollowUpThreshold
	}
	return c.Threshold
}

func (c Critic) followUp(goals []goal.Goal) string {
	open := goal.Incomplete(goals)
	if len(open) == 0 {
		return "Is there anything else you would like to adjust?"
	}
	return "Could you tell me a little more so we can " + c.Persona.Describe(open[0]) + "?"
}
