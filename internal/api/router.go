package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"go-advisor/internal/auth"
	"go-advisor/internal/config"
	"go-advisor/internal/dialogue"
	"go-advisor/internal/memory"
	"go-advisor/internal/session"
)

// TurnRunner is the dialogue engine as seen by the handlers.
type TurnRunner interface {
	NewConversation() dialogue.ConversationState
	GoalTurn(ctx context.Context, req dialogue.TurnRequest) dialogue.TurnResult
}

// Memories is the memory service as seen by the handlers.
type Memories interface {
	StoreMemory(ctx context.Context, userID string, t memory.MemoryType, content string, extra map[string]any, tags []string) (string, error)
	RetrieveMemories(ctx context.Context, q memory.RetrievalQuery) ([]memory.Item, error)
	UpdateMemoryAccess(ctx context.Context, memoryID, userID string) (memory.Item, error)
	GenerateContextualResponse(ctx context.Context, userID, query string, extra map[string]any) (string, error)
	ClearCache(userID string)
}

// Archiver snapshots conversations when they end.
type Archiver interface {
	Save(ctx context.Context, conv session.Conversation, endedAt time.Time) (session.ConversationRecord, error)
	ListByUser(ctx context.Context, userID string) ([]session.ConversationRecord, error)
}

// Deps is everything the router wires into handlers. Archive and Memory
// may be nil; their routes then answer 503.
type Deps struct {
	Config        *config.Config
	Engine        TurnRunner
	Conversations session.Store
	Locks         *session.Locker
	Archive       Archiver
	Memory        Memories
	Logger        *zap.Logger
}

func SetupRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Locks == nil {
		d.Locks = session.NewLocker()
	}
	d.Logger = d.Logger.Named("api")

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(d.Logger))

	secret := ""
	subpath := ""
	if d.Config != nil {
		secret = d.Config.Server.JWTSecret
		subpath = d.Config.Server.Subpath
	}

	group := r.Group(subpath)
	{
		group.GET("/health", healthHandler(d.Conversations))
		group.GET("/config", configHandler(d.Config))

		authed := group.Group("", auth.AuthMiddleware(secret))

		// --- Conversations ---
		authed.POST("/conversations", CreateConversationHandler(d))
		authed.GET("/conversations/archived", ListArchivedHandler(d))
		authed.GET("/conversations/:id", GetConversationHandler(d))
		authed.POST("/conversations/:id/turns", TurnHandler(d))
		authed.DELETE("/conversations/:id", EndConversationHandler(d))

		// --- Streaming WebSocket endpoint ---
		authed.GET("/ws/conversations/:id", WSConversationHandler(d))

		// --- Memories ---
		authed.POST("/memories", StoreMemoryHandler(d))
		authed.GET("/memories", ListMemoriesHandler(d))
		authed.POST("/memories/respond", RespondHandler(d))
		authed.POST("/memories/:id/access", AccessMemoryHandler(d))
		authed.DELETE("/memories/cache", ClearMemoryCacheHandler(d))
	}
	return r
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}

func abortError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": gin.H{"message": message}})
}

func unavailable(c *gin.Context, what string) {
	abortError(c, http.StatusServiceUnavailable, what+" is not configured")
}
