package dialogue

import (
	"strings"
	"unicode/utf8"

	"go-advisor/internal/goal"
)

// TacticID names a tactic in the catalogue.
type TacticID string

const (
	TacticAskIntent          TacticID = "ask_intent"
	TacticClarifyConstraints TacticID = "clarify_constraints"
	TacticProposePlan        TacticID = "propose_plan"
	TacticAskCommitment      TacticID = "ask_commitment"
	TacticAnswerQuestion     TacticID = "answer_question"
	TacticRedirectDetour     TacticID = "redirect_detour"
	TacticReflectBack        TacticID = "reflect_back"
)

// Goal ids the built-in tactics know how to advance.
const (
	GoalDiagnoseIntent    goal.GoalID = "diagnose_intent"
	GoalGatherConstraints goal.GoalID = "gather_constraints"
	GoalProposePlan       goal.GoalID = "propose_plan"
	GoalConfirmCommitment goal.GoalID = "confirm_commitment"
)

// minPlanLength is the shortest reply accepted as a proposed plan.
const minPlanLength = 40

// Enactment is what a tactic contributes to the model request.
type Enactment struct {
	SystemHint string
	UserPrompt string
}

// Exchange is one completed round: what the user said and what the model replied.
type Exchange struct {
	Utterance string
	Reply     string
}

// Tactic is a conversational policy unit. Apply must not mutate its
// input; it returns the next state.
type Tactic interface {
	ID() TacticID
	When(s ConversationState) bool
	Utility(s ConversationState) float64
	Enact(s ConversationState) Enactment
	Apply(s ConversationState, ex Exchange) ConversationState
}

// informative acts answer a probe.
func informative(act UserAct) bool {
	return act == ActProvideInfo || act == ActApproval
}

func probed(s ConversationState, id goal.GoalID) bool {
	v, ok := s.evidence(id, "probe")
	b, _ := v.(bool)
	return ok && b
}

// probeOrCapture implements the two-step pattern shared by information
// gathering tactics: the first time it runs the tactic records that it
// asked; once asked, an informative answer completes the goal with the
// utterance stored under key.
func probeOrCapture(s ConversationState, id goal.GoalID, key string, ex Exchange, accept func(UserAct) bool) ConversationState {
	if !s.open(id) {
		return s
	}
	if probed(s, id) && accept(s.LastUserAct) {
		s.Goals = goal.MarkComplete(s.Goals, id, map[string]any{key: strings.TrimSpace(ex.Utterance)})
		return s
	}
	ev := map[string]any{"probe": true}
	if _, ok := s.evidence(id, "first_request"); !ok && ex.Utterance != "" {
		ev["first_request"] = strings.TrimSpace(ex.Utterance)
	}
	s.Goals = goal.AddEvidence(s.Goals, id, ev)
	return s
}

type askIntent struct{}

func (askIntent) ID() TacticID                      { return TacticAskIntent }
func (askIntent) When(s ConversationState) bool     { return s.open(GoalDiagnoseIntent) }
func (askIntent) Utility(ConversationState) float64 { return 0.9 }

func (askIntent) Enact(ConversationState) Enactment {
	return Enactment{
		SystemHint: "Find out what the user is ultimately trying to achieve. Ask a single focused question.",
		UserPrompt: "Acknowledge the message and ask what outcome the user wants.",
	}
}

func (askIntent) Apply(s ConversationState, ex Exchange) ConversationState {
	return probeOrCapture(s, GoalDiagnoseIntent, "intent", ex, informative)
}

type clarifyConstraints struct{}

func (clarifyConstraints) ID() TacticID                  { return TacticClarifyConstraints }
func (clarifyConstraints) When(s ConversationState) bool { return s.open(GoalGatherConstraints) }

func (clarifyConstraints) Utility(s ConversationState) float64 {
	if s.settled(GoalDiagnoseIntent) {
		return 0.8
	}
	return 0.3
}

func (clarifyConstraints) Enact(ConversationState) Enactment {
	return Enactment{
		SystemHint: "Clarify the constraints that matter: budget, timing, people involved.",
		UserPrompt: "Ask about the most important constraint that is still unknown.",
	}
}

func (clarifyConstraints) Apply(s ConversationState, ex Exchange) ConversationState {
	return probeOrCapture(s, GoalGatherConstraints, "constraints", ex, informative)
}

type proposePlan struct{}

func (proposePlan) ID() TacticID                  { return TacticProposePlan }
func (proposePlan) When(s ConversationState) bool { return s.open(GoalProposePlan) }

func (proposePlan) Utility(s ConversationState) float64 {
	switch {
	case s.settled(GoalDiagnoseIntent) && s.settled(GoalGatherConstraints):
		return 0.85
	case s.settled(GoalDiagnoseIntent):
		return 0.5
	default:
		return 0.2
	}
}

func (proposePlan) Enact(ConversationState) Enactment {
	return Enactment{
		SystemHint: "Propose a short, concrete plan of at most three steps based on what you know.",
		UserPrompt: "Lay out the plan and invite the user to adjust it.",
	}
}

func (proposePlan) Apply(s ConversationState, ex Exchange) ConversationState {
	if !s.open(GoalProposePlan) || !s.settled(GoalDiagnoseIntent) {
		return s
	}
	reply := strings.TrimSpace(ex.Reply)
	if utf8.RuneCountInString(reply) < minPlanLength {
		return s
	}
	s.Goals = goal.MarkComplete(s.Goals, GoalProposePlan, map[string]any{"plan": reply})
	return s
}

type askCommitment struct{}

func (askCommitment) ID() TacticID                  { return TacticAskCommitment }
func (askCommitment) When(s ConversationState) bool { return s.open(GoalConfirmCommitment) }

func (askCommitment) Utility(s ConversationState) float64 {
	if s.settled(GoalProposePlan) {
		return 0.95
	}
	return 0.1
}

func (askCommitment) Enact(ConversationState) Enactment {
	return Enactment{
		SystemHint: "Ask the user to commit to the first step of the plan.",
		UserPrompt: "Ask whether the user is ready to take the first step.",
	}
}

func (askCommitment) Apply(s ConversationState, ex Exchange) ConversationState {
	return probeOrCapture(s, GoalConfirmCommitment, "commitment", ex, func(a UserAct) bool { return a == ActApproval })
}

type answerQuestion struct{}

func (answerQuestion) ID() TacticID                      { return TacticAnswerQuestion }
func (answerQuestion) When(s ConversationState) bool     { return s.LastUserAct == ActQuestion }
func (answerQuestion) Utility(ConversationState) float64 { return 0.92 }

func (answerQuestion) Enact(ConversationState) Enactment {
	return Enactment{
		SystemHint: "Answer the user's question directly before anything else.",
		UserPrompt: "Answer the question, then connect it back to the open goals in one sentence.",
	}
}

func (answerQuestion) Apply(s ConversationState, _ Exchange) ConversationState { return s }

type redirectDetour struct {
	budget int
}

func (redirectDetour) ID() TacticID                  { return TacticRedirectDetour }
func (redirectDetour) When(s ConversationState) bool { return s.LastUserAct == ActOffTopic }

func (t redirectDetour) Utility(s ConversationState) float64 {
	if s.DetoursUsed > t.budget {
		return 1.0
	}
	return 0.35
}

func (redirectDetour) Enact(ConversationState) Enactment {
	return Enactment{
		SystemHint: "The user went off-topic. Acknowledge it briefly and steer back to the open goals.",
		UserPrompt: "Respond in one sentence to the aside, then return to the open goals.",
	}
}

func (redirectDetour) Apply(s ConversationState, _ Exchange) ConversationState { return s }

type reflectBack struct{}

func (reflectBack) ID() TacticID                { return TacticReflectBack }
func (reflectBack) When(ConversationState) bool { return true }

func (reflectBack) Utility(s ConversationState) float64 {
	if s.LastUserAct == ActPushback {
		return 0.8
	}
	return 0.4
}

func (reflectBack) Enact(ConversationState) Enactment {
	return Enactment{
		SystemHint: "Reflect back what you heard in your own words and check that you understood.",
		UserPrompt: "Summarize the user's position and ask if you got it right.",
	}
}

func (reflectBack) Apply(s ConversationState, _ Exchange) ConversationState { return s }

// DefaultTactics returns the built-in catalogue in declaration order.
// Order is the tie-break for equal scores.
func DefaultTactics(p Persona) []Tactic {
	return []Tactic{
		askIntent{},
		clarifyConstraints{},
		proposePlan{},
		askCommitment{},
		answerQuestion{},
		redirectDetour{budget: p.Flex.DetourBudget},
		reflectBack{},
	}
}

// DefaultPressuring lists tactics penalized right after pushback.
func DefaultPressuring() []TacticID {
	return []TacticID{TacticAskCommitment}
}
