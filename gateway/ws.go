package gateway

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mrjvadi/go-lbbroker/client"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20
)

// GET /ws: every text message is one JSON job, answered in order.
func (s *Server) serveWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	ctx := c.Request.Context()
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}

		var reply any
		var job map[string]any
		if err := json.Unmarshal(message, &job); err != nil || job == nil {
			reply = gin.H{"error": "job must be a JSON object"}
		} else if out, err := client.Annotate(ctx, s.requests, s.codec, job, s.timeout); err != nil {
			reply = gin.H{"error": err.Error()}
		} else {
			reply = out
		}

		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(reply); err != nil {
			s.logger.Debug("websocket write error", zap.Error(err))
			return
		}
	}
}
