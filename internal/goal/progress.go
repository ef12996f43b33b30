package goal

// Incomplete returns ids of goals not yet complete, in declared order.
func Incomplete(goals []Goal) []GoalID {
	var ids []GoalID
	for _, g := range goals {
		if !g.Complete {
			ids = append(ids, g.ID)
		}
	}
	return ids
}

// Progress reports completion and evidence per goal. Evidence maps are
// copies so callers cannot reach back into conversation state.
func Progress(goals []Goal) map[GoalID]Status {
	out := make(map[GoalID]Status, len(goals))
	for _, g := range goals {
		out[g.ID] = Status{Complete: g.Complete, Evidence: copyEvidence(g.Evidence)}
	}
	return out
}

// Lookup finds a goal by id.
func Lookup(goals []Goal, id GoalID) (Goal, bool) {
	for _, g := range goals {
		if g.ID == id {
			return g, true
		}
	}
	return Goal{}, false
}

// IsComplete reports whether id exists and is complete. Unknown goals
// count as incomplete.
func IsComplete(goals []Goal, id GoalID) bool {
	g, ok := Lookup(goals, id)
	return ok && g.Complete
}

func CountComplete(goals []Goal) int {
	n := 0
	for _, g := range goals {
		if g.Complete {
			n++
		}
	}
	return n
}

// NewlyCompleted lists goals complete in next but not in prev.
func NewlyCompleted(prev, next []Goal) []GoalID {
	var ids []GoalID
	for _, g := range next {
		if g.Complete && !IsComplete(prev, g.ID) {
			ids = append(ids, g.ID)
		}
	}
	return ids
}

// AddEvidence returns a copy of goals with evidence merged into goal id.
// Unknown ids leave the list unchanged.
func AddEvidence(goals []Goal, id GoalID, evidence map[string]any) []Goal {
	out := Clone(goals)
	for i := range out {
		if out[i].ID != id {
			continue
		}
		for k, v := range evidence {
			out[i].Evidence[k] = v
		}
	}
	return out
}

// MarkComplete returns a copy of goals with id completed and evidence
// merged. A goal that is already complete stays complete.
func MarkComplete(goals []Goal, id GoalID, evidence map[string]any) []Goal {
	out := AddEvidence(goals, id, evidence)
	for i := range out {
		if out[i].ID == id {
			out[i].Complete = true
		}
	}
	return out
}

// Reverted returns the first goal that was complete in prev but is not
// complete in next, if any.
func Reverted(prev, next []Goal) (GoalID, bool) {
	for _, g := range prev {
		if g.Complete && !IsComplete(next, g.ID) {
			return g.ID, true
		}
	}
	return "", false
}

// SameShape reports whether both lists carry the same goal ids in the same order.
func SameShape(a, b []Goal) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}
