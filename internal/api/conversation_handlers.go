package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"go-advisor/internal/auth"
	"go-advisor/internal/dialogue"
	"go-advisor/internal/goal"
	"go-advisor/internal/session"
)

type conversationResponse struct {
	Conversation session.Conversation        `json:"conversation"`
	GoalProgress map[goal.GoalID]goal.Status `json:"goal_progress"`
}

type turnRequest struct {
	Message string `json:"message"`
	Context string `json:"context"`
}

type turnResponse struct {
	ConversationID string `json:"conversation_id"`
	Turn           int    `json:"turn"`
	dialogue.TurnResult
}

// apiError carries the status a handler should answer with.
type apiError struct {
	status  int
	message string
}

func (e *apiError) Error() string { return e.message }

func writeAPIError(c *gin.Context, err error) {
	var ae *apiError
	if errors.As(err, &ae) {
		abortError(c, ae.status, ae.message)
		return
	}
	abortError(c, http.StatusInternalServerError, "internal error")
}

// loadOwned returns the conversation only if it belongs to userID; other
// users get the same not-found answer as a missing id.
func loadOwned(ctx context.Context, store session.Store, id, userID string) (session.Conversation, error) {
	conv, err := store.Load(ctx, id)
	if errors.Is(err, session.ErrConversationNotFound) || (err == nil && conv.UserID != userID) {
		return session.Conversation{}, &apiError{http.StatusNotFound, "conversation not found"}
	}
	if err != nil {
		return session.Conversation{}, err
	}
	return conv, nil
}

// runTurn applies one utterance to a conversation under its lock. A failed
// turn still answers 200 with the fallback message and leaves the stored
// state untouched.
func runTurn(ctx context.Context, d Deps, id, userID string, req turnRequest) (turnResponse, error) {
	if strings.TrimSpace(req.Message) == "" {
		return turnResponse{}, &apiError{http.StatusBadRequest, "missing message"}
	}
	unlock := d.Locks.Lock(id)
	defer unlock()

	conv, err := loadOwned(ctx, d.Conversations, id, userID)
	if err != nil {
		return turnResponse{}, err
	}

	res := d.Engine.GoalTurn(ctx, dialogue.TurnRequest{
		UserID:    userID,
		Utterance: req.Message,
		State:     conv.State,
		Context:   req.Context,
	})
	if !res.Failed {
		conv.State = res.State
		conv.Turns++
		if err := d.Conversations.Save(ctx, conv); err != nil {
			d.Logger.Error("failed to save conversation", zap.String("conversation_id", id), zap.Error(err))
			return turnResponse{}, &apiError{http.StatusInternalServerError, "failed to save conversation"}
		}
	}
	return turnResponse{ConversationID: id, Turn: conv.Turns, TurnResult: res}, nil
}

// POST /conversations
func CreateConversationHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := auth.UserID(c)
		if userID == "" {
			abortError(c, http.StatusUnauthorized, "unauthorized")
			return
		}
		conv, err := d.Conversations.Create(c.Request.Context(), userID, d.Engine.NewConversation())
		if err != nil {
			d.Logger.Error("failed to create conversation", zap.String("user_id", userID), zap.Error(err))
			abortError(c, http.StatusInternalServerError, "failed to create conversation")
			return
		}
		c.JSON(http.StatusCreated, conversationResponse{Conversation: conv, GoalProgress: conv.State.GoalProgress()})
	}
}

// GET /conversations/:id
func GetConversationHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		conv, err := loadOwned(c.Request.Context(), d.Conversations, c.Param("id"), auth.UserID(c))
		if err != nil {
			writeAPIError(c, err)
			return
		}
		c.JSON(http.StatusOK, conversationResponse{Conversation: conv, GoalProgress: conv.State.GoalProgress()})
	}
}

// POST /conversations/:id/turns
func TurnHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req turnRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortError(c, http.StatusBadRequest, "invalid request")
			return
		}
		resp, err := runTurn(c.Request.Context(), d, c.Param("id"), auth.UserID(c), req)
		if err != nil {
			writeAPIError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// DELETE /conversations/:id archives the conversation, then removes the
// live state.
func EndConversationHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		unlock := d.Locks.Lock(id)
		defer unlock()

		ctx := c.Request.Context()
		conv, err := loadOwned(ctx, d.Conversations, id, auth.UserID(c))
		if err != nil {
			writeAPIError(c, err)
			return
		}
		archived := false
		if d.Archive != nil {
			if _, err := d.Archive.Save(ctx, conv, time.Now()); err != nil {
				d.Logger.Error("failed to archive conversation", zap.String("conversation_id", id), zap.Error(err))
				abortError(c, http.StatusInternalServerError, "failed to archive conversation")
				return
			}
			archived = true
		}
		if err := d.Conversations.Delete(ctx, id); err != nil && !errors.Is(err, session.ErrConversationNotFound) {
			d.Logger.Error("failed to delete conversation", zap.String("conversation_id", id), zap.Error(err))
			abortError(c, http.StatusInternalServerError, "failed to delete conversation")
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id, "archived": archived, "goal_progress": conv.State.GoalProgress()})
	}
}

// GET /conversations/archived
func ListArchivedHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d.Archive == nil {
			unavailable(c, "conversation archive")
			return
		}
		recs, err := d.Archive.ListByUser(c.Request.Context(), auth.UserID(c))
		if err != nil {
			d.Logger.Error("failed to list archived conversations", zap.Error(err))
			abortError(c, http.StatusInternalServerError, "failed to list conversations")
			return
		}
		c.JSON(http.StatusOK, recs)
	}
}
