package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"go-advisor/internal/config"
	"go-advisor/internal/session"
)

type activeCounter interface {
	ActiveCount(ctx context.Context) (int, error)
}

// GET /health
func healthHandler(store session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := gin.H{"status": "ok"}
		if counter, ok := store.(activeCounter); ok {
			if n, err := counter.ActiveCount(c.Request.Context()); err == nil {
				resp["active_conversations"] = n
			} else {
				resp["status"] = "degraded"
			}
		}
		c.JSON(http.StatusOK, resp)
	}
}

// GET /config
func configHandler(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg == nil {
			c.JSON(http.StatusOK, gin.H{})
			return
		}
		models := make([]gin.H, len(cfg.LLMs))
		for i, m := range cfg.LLMs {
			models[i] = gin.H{"name": m.Name, "url": m.URL}
		}
		// Only return non-sensitive config fields
		c.JSON(http.StatusOK, gin.H{
			"server": gin.H{
				"host":    cfg.Server.Host,
				"port":    cfg.Server.Port,
				"subpath": cfg.Server.Subpath,
			},
			"llms": models,
			"generation": gin.H{
				"model":           cfg.Generation.Model,
				"timeout_seconds": cfg.Generation.TimeoutSeconds,
			},
			"memory": gin.H{
				"cache_ttl_seconds": cfg.Memory.CacheTTLSeconds,
				"retrieval_limit":   cfg.Memory.RetrievalLimit,
			},
		})
	}
}
