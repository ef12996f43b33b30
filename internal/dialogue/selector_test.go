package dialogue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-advisor/internal/goal"
)

// stubTactic is a tactic with fixed applicability and utility.
type stubTactic struct {
	id      TacticID
	when    bool
	utility float64
}

func (s stubTactic) ID() TacticID                                            { return s.id }
func (s stubTactic) When(ConversationState) bool                             { return s.when }
func (s stubTactic) Utility(ConversationState) float64                       { return s.utility }
func (s stubTactic) Enact(ConversationState) Enactment                       { return Enactment{SystemHint: string(s.id)} }
func (s stubTactic) Apply(c ConversationState, _ Exchange) ConversationState { return c }

func TestNewLibrary_RequiresFallback(t *testing.T) {
	_, err := NewLibrary([]Tactic{stubTactic{id: "a", when: true, utility: 1}}, nil)
	assert.ErrorIs(t, err, ErrMissingFallbackTactic)

	_, err = NewLibrary(nil, nil)
	assert.ErrorIs(t, err, ErrEmptyLibrary)

	_, err = NewLibrary([]Tactic{reflectBack{}, reflectBack{}}, nil)
	assert.ErrorIs(t, err, ErrDuplicateTactic)

	assert.Panics(t, func() { MustLibrary([]Tactic{askIntent{}}, nil) })
}

func TestSelect_TiesGoToEarlierDeclared(t *testing.T) {
	lib := MustLibrary([]Tactic{
		stubTactic{id: "first", when: true, utility: 0.5},
		stubTactic{id: "second", when: true, utility: 0.5},
		reflectBack{},
	}, nil)
	s := ConversationState{}

	for i := 0; i < 20; i++ {
		assert.Equal(t, TacticID("first"), lib.Select(s).ID())
	}
	ranked := lib.Rank(s)
	require.Len(t, ranked, 3)
	assert.Equal(t, TacticID("second"), ranked[1].Tactic.ID())
}

func TestSelect_FallsBackWhenNothingApplies(t *testing.T) {
	fallback := stubTactic{id: TacticReflectBack, when: false, utility: 0}
	lib := MustLibrary([]Tactic{stubTactic{id: "a", when: false, utility: 1}, fallback}, nil)
	assert.Equal(t, TacticReflectBack, lib.Select(ConversationState{}).ID())
	assert.Empty(t, lib.Rank(ConversationState{}))
}

func TestScore_PushbackPenaltyOnlyForPressuring(t *testing.T) {
	lib := MustLibrary(DefaultTactics(DefaultPersona()), DefaultPressuring())
	s := NewConversationState(DefaultPersona())
	s.Goals = goal.MarkComplete(s.Goals, GoalProposePlan, nil)

	commit := askCommitment{}
	raw := commit.Utility(s)

	for _, act := range []UserAct{"", ActQuestion, ActApproval, ActOffTopic, ActProvideInfo} {
		s.LastUserAct = act
		assert.Equal(t, raw, lib.Score(commit, s), "act %q", act)
	}

	s.LastUserAct = ActPushback
	assert.InDelta(t, raw-PushbackPenalty, lib.Score(commit, s), 1e-12)
	assert.Equal(t, reflectBack{}.Utility(s), lib.Score(reflectBack{}, s))
}

func TestScore_NeverNegative(t *testing.T) {
	lib := MustLibrary([]Tactic{stubTactic{id: "push", when: true, utility: 0.1}, reflectBack{}}, []TacticID{"push"})
	s := ConversationState{LastUserAct: ActPushback}
	assert.Equal(t, 0.0, lib.Score(stubTactic{id: "push", utility: 0.1}, s))
}

func TestSelect_HappyPathPicksAskIntent(t *testing.T) {
	p := Persona{Goals: []goal.Spec{{ID: GoalDiagnoseIntent}, {ID: GoalProposePlan}}}
	lib := MustLibrary(DefaultTactics(p), DefaultPressuring())
	s := ObserveAct(NewConversationState(p), ActProvideInfo)

	assert.Equal(t, TacticAskIntent, lib.Select(s).ID())
}

func TestSelect_PushbackAvoidsCommitment(t *testing.T) {
	p := DefaultPersona()
	lib := MustLibrary(DefaultTactics(p), DefaultPressuring())
	s := NewConversationState(p)
	for _, id := range []goal.GoalID{GoalDiagnoseIntent, GoalGatherConstraints, GoalProposePlan} {
		s.Goals = goal.MarkComplete(s.Goals, id, nil)
	}

	// without pushback commitment is the best tactic
	assert.Equal(t, TacticAskCommitment, lib.Select(ObserveAct(s, ActProvideInfo)).ID())

	pushed := ObserveAct(s, HeuristicClassifier{}.Classify("I don't think that will work"))
	require.Equal(t, ActPushback, pushed.LastUserAct)
	assert.NotEqual(t, TacticAskCommitment, lib.Select(pushed).ID())
	assert.Equal(t, TacticReflectBack, lib.Select(pushed).ID())
}

func TestSelect_PushbackStillAllowsCommitmentWhenEverythingElseScoresLower(t *testing.T) {
	lib := MustLibrary([]Tactic{
		stubTactic{id: TacticAskCommitment, when: true, utility: 0.9},
		stubTactic{id: "other", when: true, utility: 0.6},
		stubTactic{id: TacticReflectBack, when: true, utility: 0.3},
	}, DefaultPressuring())
	s := ConversationState{LastUserAct: ActPushback}
	assert.Equal(t, TacticAskCommitment, lib.Select(s).ID())
}

func TestSelect_DetourBudget(t *testing.T) {
	p := DefaultPersona()
	p.Flex.DetourBudget = 1
	lib := MustLibrary(DefaultTactics(p), DefaultPressuring())
	s := NewConversationState(p)

	s = ObserveAct(s, ActOffTopic)
	assert.Equal(t, TacticAskIntent, lib.Select(s).ID(), "within budget the goals still lead")

	s = ObserveAct(s, ActOffTopic)
	assert.Equal(t, TacticRedirectDetour, lib.Select(s).ID(), "over budget the detour is redirected")
}

func TestLibrary_IsDeterministicAcrossCalls(t *testing.T) {
	lib := MustLibrary(DefaultTactics(DefaultPersona()), DefaultPressuring())
	s := ObserveAct(NewConversationState(DefaultPersona()), ActQuestion)
	first := lib.Select(s).ID()
	for i := 0; i < 50; i++ {
		require.Equal(t, first, lib.Select(s).ID())
	}
	assert.Equal(t, TacticAnswerQuestion, first)
}
