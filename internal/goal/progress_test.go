package goal

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func specs() []Spec {
	return []Spec{
		{ID: "diagnose_intent", Description: "understand what the user wants"},
		{ID: "gather_constraints"},
		{ID: "propose_plan"},
	}
}

func TestNewGraph_AllIncompleteInOrder(t *testing.T) {
	goals := NewGraph(specs())
	require.Len(t, goals, 3)
	for _, g := range goals {
		assert.False(t, g.Complete)
		assert.NotNil(t, g.Evidence)
	}
	assert.Equal(t, []GoalID{"diagnose_intent", "gather_constraints", "propose_plan"}, Incomplete(goals))
}

func TestIncomplete_PreservesDeclaredOrder(t *testing.T) {
	goals := MarkComplete(NewGraph(specs()), "gather_constraints", nil)
	assert.Equal(t, []GoalID{"diagnose_intent", "propose_plan"}, Incomplete(goals))
}

func TestMarkComplete_DoesNotMutateInput(t *testing.T) {
	before := NewGraph(specs())
	snapshot := Clone(before)

	after := MarkComplete(before, "diagnose_intent", map[string]any{"intent": "hire a contractor"})

	if diff := cmp.Diff(snapshot, before); diff != "" {
		t.Fatalf("input mutated (-want +got):\n%s", diff)
	}
	assert.True(t, IsComplete(after, "diagnose_intent"))
	g, ok := Lookup(after, "diagnose_intent")
	require.True(t, ok)
	assert.Equal(t, "hire a contractor", g.Evidence["intent"])
}

func TestAddEvidence_Accumulates(t *testing.T) {
	goals := AddEvidence(NewGraph(specs()), "propose_plan", map[string]any{"draft": 1})
	goals = AddEvidence(goals, "propose_plan", map[string]any{"plan": "x"})

	g, _ := Lookup(goals, "propose_plan")
	assert.Equal(t, map[string]any{"draft": 1, "plan": "x"}, g.Evidence)
	assert.False(t, g.Complete)
}

func TestMarkComplete_UnknownGoalIsNoop(t *testing.T) {
	goals := NewGraph(specs())
	out := MarkComplete(goals, "missing", nil)
	assert.Equal(t, 0, CountComplete(out))
	assert.True(t, SameShape(goals, out))
}

func TestNewlyCompletedAndReverted(t *testing.T) {
	prev := MarkComplete(NewGraph(specs()), "diagnose_intent", nil)
	next := MarkComplete(MarkComplete(prev, "gather_constraints", nil), "propose_plan", nil)

	assert.Equal(t, []GoalID{"gather_constraints", "propose_plan"}, NewlyCompleted(prev, next))
	_, reverted := Reverted(prev, next)
	assert.False(t, reverted)

	broken := Clone(next)
	broken[0].Complete = false
	id, reverted := Reverted(next, broken)
	assert.True(t, reverted)
	assert.Equal(t, GoalID("diagnose_intent"), id)
}

func TestProgress_ReturnsCopies(t *testing.T) {
	goals := AddEvidence(NewGraph(specs()), "diagnose_intent", map[string]any{"intent": "a"})
	p := Progress(goals)
	require.Len(t, p, 3)

	p["diagnose_intent"].Evidence["intent"] = "changed"
	g, _ := Lookup(goals, "diagnose_intent")
	assert.Equal(t, "a", g.Evidence["intent"])
}

func TestSameShape(t *testing.T) {
	a := NewGraph(specs())
	b := NewGraph([]Spec{{ID: "propose_plan"}, {ID: "diagnose_intent"}, {ID: "gather_constraints"}})
	assert.False(t, SameShape(a, b))
	assert.False(t, SameShape(a, a[:2]))
	assert.True(t, SameShape(a, Clone(a)))
}
