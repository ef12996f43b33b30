package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"go-advisor/internal/goal"
	"go-advisor/internal/llm"
)

// FallbackMessage is returned to the user whenever a turn fails.
const FallbackMessage = "Sorry, something went wrong on my side. Could you rephrase that?"

var (
	ErrNoGenerator  = errors.New("dialogue engine needs a generator")
	ErrGoalReverted = errors.New("tactic reverted a completed goal")
	ErrGoalsChanged = errors.New("tactic changed the goal set")
)

// Generator is the text generation capability invoked once per turn.
type Generator interface {
	Invoke(ctx context.Context, p llm.Prompt) (string, error)
}

// ContextSource supplies retrieval context for a user's utterance.
type ContextSource interface {
	ContextFor(ctx context.Context, userID, query string) (string, error)
}

// TurnRequest carries one user utterance and the state it applies to.
// Context, when non-empty, is used as retrieval context as-is.
type TurnRequest struct {
	UserID    string
	Utterance string
	State     ConversationState
	Context   string
}

type TurnResult struct {
	Message      string                      `json:"message"`
	Tactic       TacticID                    `json:"tactic"`
	Act          UserAct                     `json:"act"`
	State        ConversationState           `json:"state"`
	GoalProgress map[goal.GoalID]goal.Status `json:"goal_progress"`
	Patched      bool                        `json:"patched"`
	Failed       bool                        `json:"failed"`
}

// Engine runs turns for one persona. It holds no per-conversation state
// and is safe for concurrent use across conversations.
type Engine struct {
	persona    Persona
	library    *Library
	classifier Classifier
	generator  Generator
	contexts   ContextSource
	critic     Critic
	timeout    time.Duration
	log        *TurnLogger
}

type Option func(*Engine)

func WithClassifier(c Classifier) Option {
	return func(e *Engine) { e.classifier = c }
}

func WithLibrary(l *Library) Option {
	return func(e *Engine) { e.library = l }
}

func WithContextSource(c ContextSource) Option {
	return func(e *Engine) { e.contexts = c }
}

// WithTimeout bounds the generation call of each turn.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

func WithFollowUpThreshold(n int) Option {
	return func(e *Engine) { e.critic.Threshold = n }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = NewTurnLogger(l) }
}

// NewEngine validates the persona and tactic library. Both failures are
// configuration errors and should stop startup.
func NewEngine(p Persona, gen Generator, opts ...Option) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid persona: %w", err)
	}
	if gen == nil {
		return nil, ErrNoGenerator
	}
	e := &Engine{
		persona:    p,
		classifier: HeuristicClassifier{},
		generator:  gen,
		critic:     Critic{Persona: p, Threshold: DefaultFollowUpThreshold},
		log:        NewTurnLogger(nil),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.library == nil {
		lib, err := NewLibrary(DefaultTactics(p), DefaultPressuring())
		if err != nil {
			return nil, err
		}
		e.library = lib
	}
	return e, nil
}

func (e *Engine) Persona() Persona { return e.persona }

// NewConversation returns the start state for this engine's persona.
func (e *Engine) NewConversation() ConversationState {
	return NewConversationState(e.persona)
}

// GoalTurn runs one turn. It never returns an error: on any generation or
// update failure the result carries FallbackMessage, the reflect_back
// tactic and the caller's state unchanged.
func (e *Engine) GoalTurn(ctx context.Context, req TurnRequest) TurnResult {
	start := time.Now()
	prior := req.State

	act := e.classifier.Classify(req.Utterance)
	e.log.ActClassified(req.UserID, act)
	observed := ObserveAct(prior, act)

	ranked := e.library.Rank(observed)
	tactic := e.library.Fallback()
	if len(ranked) > 0 {
		tactic = ranked[0].Tactic
	}
	e.log.TacticSelected(tactic.ID(), ranked)

	en := tactic.Enact(observed)
	prompt := llm.Prompt{
		System: e.composeSystem(observed, en),
		User:   composeUser(en, req.Utterance, e.retrievalContext(ctx, req)),
	}

	reply, err := e.generate(ctx, prompt)
	if err != nil {
		return e.fail(req, act, "generate", err)
	}

	next, err := applyTactic(tactic, observed, Exchange{Utterance: req.Utterance, Reply: reply})
	if err != nil {
		return e.fail(req, act, "apply", err)
	}

	message, patched := e.critic.Review(observed.Goals, next.Goals, reply)
	if patched {
		e.log.Patched(tactic.ID(), len(reply))
	}

	e.log.TurnCompleted(req.UserID, tactic.ID(), goal.NewlyCompleted(observed.Goals, next.Goals), time.Since(start))
	return TurnResult{
		Message:      message,
		Tactic:       tactic.ID(),
		Act:          act,
		State:        next,
		GoalProgress: next.GoalProgress(),
		Patched:      patched,
	}
}

func (e *Engine) fail(req TurnRequest, act UserAct, stage string, err error) TurnResult {
	e.log.TurnFailed(req.UserID, stage, err)
	return TurnResult{
		Message:      FallbackMessage,
		Tactic:       TacticReflectBack,
		Act:          act,
		State:        req.State,
		GoalProgress: req.State.GoalProgress(),
		Failed:       true,
	}
}

func (e *Engine) retrievalContext(ctx context.Context, req TurnRequest) string {
	if req.Context != "" || e.contexts == nil {
		return req.Context
	}
	text, err := e.contexts.ContextFor(ctx, req.UserID, req.Utterance)
	if err != nil {
		e.log.ContextUnavailable(req.UserID, err)
		return ""
	}
	return text
}

func (e *Engine) generate(ctx context.Context, p llm.Prompt) (reply string, err error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generator panic: %v", r)
		}
	}()
	reply, err = e.generator.Invoke(ctx, p)
	if err != nil {
		return "", err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if strings.TrimSpace(reply) == "" {
		return "", errors.New("generator returned an empty reply")
	}
	return reply, nil
}

// applyTactic runs Apply on a private snapshot and checks that the goal
// set kept its shape and no completed goal was reverted.
func applyTactic(t Tactic, observed ConversationState, ex Exchange) (next ConversationState, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tactic %s panicked: %v", t.ID(), r)
		}
	}()
	next = t.Apply(observed.Clone(), ex)
	if !goal.SameShape(observed.Goals, next.Goals) {
		return ConversationState{}, fmt.Errorf("%w: tactic %s", ErrGoalsChanged, t.ID())
	}
	if id, ok := goal.Reverted(observed.Goals, next.Goals); ok {
		return ConversationState{}, fmt.Errorf("%w: %s by %s", ErrGoalReverted, id, t.ID())
	}
	next.Satisfaction = clamp01(next.Satisfaction)
	return next, nil
}

func (e *Engine) composeSystem(s ConversationState, en Enactment) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(e.persona.Mission))
	b.WriteString("\n\n")

	open := s.IncompleteGoals()
	if len(open) == 0 {
		b.WriteString("All conversation goals are met. Help with whatever the user needs next.\n")
	} else {
		b.WriteString("Open goals, in order:\n")
		for i, id := range open {
			fmt.Fprintf(&b, "%d. %s: %s\n", i+1, id, e.persona.Describe(id))
		}
	}

	b.WriteString("\nInstruction: ")
	b.WriteString(en.SystemHint)
	b.WriteString("\n")

	if tone := toneInstruction(e.persona.Tone); tone != "" {
		b.WriteString("Tone: ")
		b.WriteString(tone)
		b.WriteString("\n")
	}

	b.WriteString(detourInstruction(s.DetoursUsed, e.persona.Flex))
	return b.String()
}

func toneInstruction(t Tone) string {
	var parts []string
	if t.Warm {
		parts = append(parts, "warm")
	}
	if t.Concise {
		parts = append(parts, "concise")
	}
	if t.PlainLanguage {
		parts = append(parts, "plain language, no jargon")
	}
	if t.Formal {
		parts = append(parts, "formal")
	}
	return strings.Join(parts, "; ")
}

func detourInstruction(used int, f Flex) string {
	var b strings.Builder
	if used > f.DetourBudget {
		fmt.Fprintf(&b, "Detours: the user has gone off-topic %d times, over the allowance of %d. Bring the conversation back to the open goals now.\n", used, f.DetourBudget)
	} else {
		fmt.Fprintf(&b, "Detours: %d of %d off-topic asides used. Answer asides briefly, then return to the open goals.\n", used, f.DetourBudget)
	}
	if f.NeverBlockUser {
		b.WriteString("Never refuse to help because a goal is unmet.\n")
	}
	return b.String()
}

func composeUser(en Enactment, utterance, retrieval string) string {
	var b strings.Builder
	b.WriteString(en.UserPrompt)
	b.WriteString("\n\nUser message:\n")
	b.WriteString(strings.TrimSpace(utterance))
	if r := strings.TrimSpace(retrieval); r != "" {
		b.WriteString("\n\nRelevant context:\n")
		b.WriteString(r)
	}
	return b.String()
}
