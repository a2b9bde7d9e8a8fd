package api

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/mindmirror-ai/mindmirror/internal/chat"
)

var chatUpgrader = websocket.Upgrader{
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 4 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type wsChatFrame struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
}

// handleChatWS runs turn exchange over a websocket. Each inbound frame is
// one utterance; each outbound frame is the assistant reply or an error.
// The same per-conversation guard applies as on the HTTP endpoint.
func (h *Handler) handleChatWS(c *gin.Context) {
	conn, err := chatUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnf("chat websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	userID := currentUserID(c)
	ctx := c.Request.Context()

	var writeMu sync.Mutex
	sendJSON := func(payload interface{}) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(payload)
	}

	sendError := func(message string) {
		if err := sendJSON(gin.H{"type": "error", "error": message}); err != nil {
			h.logger.Warnf("chat websocket write failed: %v", err)
		}
	}

	for {
		var frame wsChatFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warnf("chat websocket closed unexpectedly: %v", err)
			}
			return
		}

		if frame.ConversationID == "" {
			sendError("conversationId is required")
			continue
		}

		result, err := h.exchange.Exchange(ctx, userID, frame.ConversationID, frame.Message)
		if err != nil {
			switch {
			case errors.Is(err, chat.ErrEmptyMessage):
				sendError("message is required")
			case errors.Is(err, chat.ErrConversationBusy):
				sendError("a message is already being processed for this conversation")
			case errors.Is(err, chat.ErrConversationNotFound):
				sendError("conversation not found")
			default:
				h.logger.Warnf("chat websocket exchange failed: %v", err)
				sendError("chat completion failed")
			}
			continue
		}

		if err := sendJSON(gin.H{
			"type":           "message",
			"conversationId": frame.ConversationID,
			"message":        result.Reply,
		}); err != nil {
			h.logger.Warnf("chat websocket write failed: %v", err)
			return
		}
	}
}
