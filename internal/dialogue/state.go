package dialogue

import (
	"go-advisor/internal/goal"
)

// InitialSatisfaction is the neutral prior for a new conversation.
const InitialSatisfaction = 0.7

// ConversationState is the explicit per-conversation value passed into and
// returned from every turn. Callers own it and must not run two turns of
// the same conversation concurrently.
type ConversationState struct {
	Goals        []goal.Goal `json:"goals"`
	DetoursUsed  int         `json:"detours_used"`
	LastUserAct  UserAct     `json:"last_user_act,omitempty"`
	Satisfaction float64     `json:"satisfaction"`
}

// NewConversationState starts a conversation with every persona goal incomplete.
func NewConversationState(p Persona) ConversationState {
	return ConversationState{
		Goals:        goal.NewGraph(p.Goals),
		Satisfaction: InitialSatisfaction,
	}
}

// Clone returns a deep copy, so tactics can work on a snapshot.
func (s ConversationState) Clone() ConversationState {
	out := s
	out.Goals = goal.Clone(s.Goals)
	return out
}

func (s ConversationState) IncompleteGoals() []goal.GoalID {
	return goal.Incomplete(s.Goals)
}

func (s ConversationState) GoalProgress() map[goal.GoalID]goal.Status {
	return goal.Progress(s.Goals)
}

func (s ConversationState) has(id goal.GoalID) bool {
	_, ok := goal.Lookup(s.Goals, id)
	return ok
}

func (s ConversationState) done(id goal.GoalID) bool {
	return goal.IsComplete(s.Goals, id)
}

// settled is true when a goal is complete or not part of this persona,
// so tactics that depend on it can proceed.
func (s ConversationState) settled(id goal.GoalID) bool {
	return !s.has(id) || s.done(id)
}

// open is true when a goal exists and still needs work.
func (s ConversationState) open(id goal.GoalID) bool {
	return s.has(id) && !s.done(id)
}

func (s ConversationState) evidence(id goal.GoalID, key string) (any, bool) {
	g, ok := goal.Lookup(s.Goals, id)
	if !ok {
		return nil, false
	}
	v, ok := g.Evidence[key]
	return v, ok
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
