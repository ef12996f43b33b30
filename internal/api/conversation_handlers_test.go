package api

import (
	"net/http"
	"strings"
	"testing"

	"go-advisor/internal/dialogue"
	"go-advisor/internal/session"
)

type conversationBody struct {
	Conversation session.Conversation `json:"conversation"`
	GoalProgress map[string]struct {
		Complete bool `json:"complete"`
	} `json:"goal_progress"`
}

type turnBody struct {
	ConversationID string                     `json:"conversation_id"`
	Turn           int                        `json:"turn"`
	Message        string                     `json:"message"`
	Tactic         dialogue.TacticID          `json:"tactic"`
	Act            dialogue.UserAct           `json:"act"`
	State          dialogue.ConversationState `json:"state"`
	Failed         bool                       `json:"failed"`
	GoalProgress   map[string]map[string]any  `json:"goal_progress"`
}

func createConversation(t *testing.T, env *testEnv, userID string) string {
	t.Helper()
	w := env.do(t, "POST", "/conversations", userID, nil)
	expectStatus(t, w, http.StatusCreated)
	body := decode[conversationBody](t, w)
	if body.Conversation.ID == "" {
		t.Fatalf("conversation id missing: %s", w.Body.String())
	}
	return body.Conversation.ID
}

func TestConversationLifecycle(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/conversations", "u1", nil)
	expectStatus(t, w, http.StatusCreated)
	created := decode[conversationBody](t, w)
	if len(created.GoalProgress) != 4 {
		t.Fatalf("expected 4 goals, got %d", len(created.GoalProgress))
	}
	for id, g := range created.GoalProgress {
		if g.Complete {
			t.Errorf("goal %s should start incomplete", id)
		}
	}
	id := created.Conversation.ID

	w = env.do(t, "POST", "/conversations/"+id+"/turns", "u1", turnRequest{Message: "I need help hiring a contractor"})
	expectStatus(t, w, http.StatusOK)
	turn := decode[turnBody](t, w)
	if turn.Tactic != dialogue.TacticAskIntent || turn.Act != dialogue.ActProvideInfo {
		t.Errorf("expected ask_intent for provide_info, got %s/%s", turn.Tactic, turn.Act)
	}
	if turn.Failed || turn.Turn != 1 || turn.ConversationID != id {
		t.Errorf("unexpected turn metadata: %s", w.Body.String())
	}
	if turn.Message == "" {
		t.Errorf("expected a reply message")
	}

	w = env.do(t, "GET", "/conversations/"+id, "u1", nil)
	expectStatus(t, w, http.StatusOK)
	got := decode[conversationBody](t, w)
	if got.Conversation.Turns != 1 || got.Conversation.State.LastUserAct != dialogue.ActProvideInfo {
		t.Errorf("turn was not persisted: %s", w.Body.String())
	}

	w = env.do(t, "DELETE", "/conversations/"+id, "u1", nil)
	expectStatus(t, w, http.StatusOK)
	if body := decode[map[string]any](t, w); body["archived"] != true {
		t.Errorf("expected archived conversation, got %s", w.Body.String())
	}

	expectStatus(t, env.do(t, "GET", "/conversations/"+id, "u1", nil), http.StatusNotFound)

	w = env.do(t, "GET", "/conversations/archived", "u1", nil)
	expectStatus(t, w, http.StatusOK)
	recs := decode[[]session.ConversationRecord](t, w)
	if len(recs) != 1 || recs[0].ID != id || recs[0].Turns != 1 {
		t.Errorf("unexpected archive: %s", w.Body.String())
	}
}

func TestConversation_OtherUserGetsNotFound(t *testing.T) {
	env := newTestEnv(t)
	id := createConversation(t, env, "owner")

	w := env.do(t, "GET", "/conversations/"+id, "intruder", nil)
	expectStatus(t, w, http.StatusNotFound)
	if msg := errorMessage(t, w); msg != "conversation not found" {
		t.Errorf("unexpected error message %q", msg)
	}
	expectStatus(t, env.do(t, "POST", "/conversations/"+id+"/turns", "intruder", turnRequest{Message: "hi"}), http.StatusNotFound)
	expectStatus(t, env.do(t, "DELETE", "/conversations/"+id, "intruder", nil), http.StatusNotFound)
}

func TestTurn_GenerationFailureKeepsState(t *testing.T) {
	env := newTestEnv(t)
	id := createConversation(t, env, "u1")
	env.gen.fail(errModelDown)

	w := env.do(t, "POST", "/conversations/"+id+"/turns", "u1", turnRequest{Message: "I don't think that will work"})
	expectStatus(t, w, http.StatusOK)
	turn := decode[turnBody](t, w)
	if !turn.Failed || turn.Message != dialogue.FallbackMessage || turn.Tactic != dialogue.TacticReflectBack {
		t.Errorf("expected fallback result, got %s", w.Body.String())
	}

	w = env.do(t, "GET", "/conversations/"+id, "u1", nil)
	got := decode[conversationBody](t, w)
	if got.Conversation.Turns != 0 || got.Conversation.State.LastUserAct != "" {
		t.Errorf("failed turn must not change stored state: %s", w.Body.String())
	}
}

func TestTurn_BadRequests(t *testing.T) {
	env := newTestEnv(t)
	id := createConversation(t, env, "u1")

	w := env.do(t, "POST", "/conversations/"+id+"/turns", "u1", turnRequest{Message: "   "})
	expectStatus(t, w, http.StatusBadRequest)
	if msg := errorMessage(t, w); msg != "missing message" {
		t.Errorf("unexpected error message %q", msg)
	}

	expectStatus(t, env.do(t, "POST", "/conversations/missing/turns", "u1", turnRequest{Message: "hi"}), http.StatusNotFound)
}

func TestTurn_ContextPassedToPrompt(t *testing.T) {
	env := newTestEnv(t)
	id := createConversation(t, env, "u1")

	w := env.do(t, "POST", "/conversations/"+id+"/turns", "u1", turnRequest{Message: "We want a new kitchen", Context: "Budget noted earlier: 12k"})
	expectStatus(t, w, http.StatusOK)

	env.gen.mu.Lock()
	defer env.gen.mu.Unlock()
	if len(env.gen.prompts) != 1 {
		t.Fatalf("expected one generation call, got %d", len(env.gen.prompts))
	}
	if want := "Relevant context:\nBudget noted earlier: 12k"; !strings.Contains(env.gen.prompts[0].User, want) {
		t.Errorf("prompt missing context: %q", env.gen.prompts[0].User)
	}
}

func TestEndConversation_WithoutArchive(t *testing.T) {
	env := newTestEnv(t)
	env.deps.Archive = nil
	env.router = SetupRouter(env.deps)
	id := createConversation(t, env, "u1")

	w := env.do(t, "DELETE", "/conversations/"+id, "u1", nil)
	expectStatus(t, w, http.StatusOK)
	if body := decode[map[string]any](t, w); body["archived"] != false {
		t.Errorf("expected archived=false, got %s", w.Body.String())
	}
	expectStatus(t, env.do(t, "GET", "/conversations/archived", "u1", nil), http.StatusServiceUnavailable)
}
