package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"go-advisor/internal/auth"
	"go-advisor/internal/memory"
)

type storeMemoryRequest struct {
	Type    memory.MemoryType `json:"type"`
	Content string            `json:"content"`
	Context map[string]any    `json:"context"`
	Tags    []string          `json:"tags"`
}

type respondRequest struct {
	Query   string         `json:"query"`
	Context map[string]any `json:"context"`
}

// POST /memories
func StoreMemoryHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d.Memory == nil {
			unavailable(c, "memory")
			return
		}
		var req storeMemoryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortError(c, http.StatusBadRequest, "invalid request")
			return
		}
		extra := req.Context
		if org := auth.OrgID(c); org != "" {
			if extra == nil {
				extra = map[string]any{}
			}
			extra["org_id"] = org
		}
		id, err := d.Memory.StoreMemory(c.Request.Context(), auth.UserID(c), req.Type, req.Content, extra, req.Tags)
		switch {
		case errors.Is(err, memory.ErrInvalidType), errors.Is(err, memory.ErrEmptyContent):
			abortError(c, http.StatusBadRequest, err.Error())
			return
		case err != nil:
			abortError(c, http.StatusInternalServerError, "failed to store memory")
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": id})
	}
}

// GET /memories?q=&limit=&types=&min_importance=
func ListMemoriesHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d.Memory == nil {
			unavailable(c, "memory")
			return
		}
		q := memory.RetrievalQuery{
			UserID: auth.UserID(c),
			OrgID:  auth.OrgID(c),
			Query:  c.Query("q"),
		}
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				abortError(c, http.StatusBadRequest, "invalid limit")
				return
			}
			q.Limit = n
		}
		if v := c.Query("min_importance"); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				abortError(c, http.StatusBadRequest, "invalid min_importance")
				return
			}
			q.MinImportance = f
		}
		if v := c.Query("types"); v != "" {
			for _, t := range strings.Split(v, ",") {
				mt := memory.MemoryType(strings.TrimSpace(t))
				if !mt.Valid() {
					abortError(c, http.StatusBadRequest, "invalid memory type "+string(mt))
					return
				}
				q.MemoryTypes = append(q.MemoryTypes, mt)
			}
		}
		items, err := d.Memory.RetrieveMemories(c.Request.Context(), q)
		if err != nil {
			abortError(c, http.StatusInternalServerError, "failed to retrieve memories")
			return
		}
		c.JSON(http.StatusOK, items)
	}
}

// POST /memories/:id/access
func AccessMemoryHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d.Memory == nil {
			unavailable(c, "memory")
			return
		}
		item, err := d.Memory.UpdateMemoryAccess(c.Request.Context(), c.Param("id"), auth.UserID(c))
		if errors.Is(err, memory.ErrNotFound) {
			abortError(c, http.StatusNotFound, "memory not found")
			return
		}
		if err != nil {
			abortError(c, http.StatusInternalServerError, "failed to update memory")
			return
		}
		c.JSON(http.StatusOK, item)
	}
}

// POST /memories/respond
func RespondHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d.Memory == nil {
			unavailable(c, "memory")
			return
		}
		var req respondRequest
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Query) == "" {
			abortError(c, http.StatusBadRequest, "missing query")
			return
		}
		answer, err := d.Memory.GenerateContextualResponse(c.Request.Context(), auth.UserID(c), req.Query, req.Context)
		if err != nil {
			d.Logger.Warn("contextual response failed", zap.String("user_id", auth.UserID(c)), zap.Error(err))
			abortError(c, http.StatusBadGateway, "failed to generate response")
			return
		}
		c.JSON(http.StatusOK, gin.H{"response": answer})
	}
}

// DELETE /memories/cache drops the caller's cached memory list.
func ClearMemoryCacheHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d.Memory == nil {
			unavailable(c, "memory")
			return
		}
		d.Memory.ClearCache(auth.UserID(c))
		c.Status(http.StatusNoContent)
	}
}
