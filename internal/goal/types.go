package goal

// GoalID names a persona-defined dialogue objective.
type GoalID string

// Spec declares one goal in a persona's ordered goal list.
type Spec struct {
	ID          GoalID `json:"id" yaml:"id"`
	Description string `json:"description" yaml:"description"`
}

// Goal is the per-conversation completion record for a Spec.
// Evidence only ever grows; Complete never goes back to false.
type Goal struct {
	ID       GoalID         `json:"id"`
	Complete bool           `json:"complete"`
	Evidence map[string]any `json:"evidence"`
}

// Status is the externally reported view of one goal.
type Status struct {
	Complete bool           `json:"complete"`
	Evidence map[string]any `json:"evidence"`
}

// NewGraph instantiates fresh, incomplete goals in declared order.
func NewGraph(specs []Spec) []Goal {
	goals := make([]Goal, 0, len(specs))
	for _, s := range specs {
		goals = append(goals, Goal{ID: s.ID, Evidence: map[string]any{}})
	}
	return goals
}

// Clone deep-copies the goal list including evidence maps.
func Clone(goals []Goal) []Goal {
	if goals == nil {
		return nil
	}
	out := make([]Goal, len(goals))
	for i, g := range goals {
		out[i] = Goal{ID: g.ID, Complete: g.Complete, Evidence: copyEvidence(g.Evidence)}
	}
	return out
}

func copyEvidence(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
