package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"go-advisor/internal/auth"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	wsReadLimit = 64 << 10
	wsIdle      = 10 * time.Minute
)

type wsError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func wsErrorMessage(msg string) wsError {
	var e wsError
	e.Error.Message = msg
	return e
}

// GET /ws/conversations/:id runs one turn per text message and answers
// each with the turn result.
func WSConversationHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		userID := auth.UserID(c)
		if _, err := loadOwned(c.Request.Context(), d.Conversations, id, userID); err != nil {
			writeAPIError(c, err)
			return
		}

		conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			d.Logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		defer conn.Close()
		conn.SetReadLimit(wsReadLimit)

		log := d.Logger.With(zap.String("conversation_id", id))
		for {
			_ = conn.SetReadDeadline(time.Now().Add(wsIdle))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Debug("websocket closed", zap.Error(err))
				}
				return
			}

			var req turnRequest
			if err := json.Unmarshal(msg, &req); err != nil {
				if err := conn.WriteJSON(wsErrorMessage("invalid JSON")); err != nil {
					return
				}
				continue
			}

			resp, err := runTurn(c.Request.Context(), d, id, userID, req)
			if err != nil {
				var ae *apiError
				text := "internal error"
				if errors.As(err, &ae) {
					text = ae.message
				}
				if err := conn.WriteJSON(wsErrorMessage(text)); err != nil {
					return
				}
				continue
			}
			if err := conn.WriteJSON(resp); err != nil {
				log.Debug("websocket write failed", zap.Error(err))
				return
			}
		}
	}
}
