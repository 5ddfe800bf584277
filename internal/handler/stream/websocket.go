package stream

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/rapport/backend/internal/service/assistant"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 25 * time.Second
	writeTimeout = 5 * time.Second
)

// Message types on the WebSocket.
const (
	TypeMessage   = "message"
	TypeConnected = "connected"
	TypeReply     = "reply"
	TypeError     = "error"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type inboundMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// handleWebSocket keeps one conversation open: every inbound message is
// processed in order and answered with a reply or an error.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID, sessionID := q.Get("user_id"), q.Get("session_id")
	connID := uuid.NewString()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	log := h.log.WithFields(logrus.Fields{"conn_id": connID, "user_id": userID, "session_id": sessionID})
	log.Debug("websocket connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	go pingLoop(ctx, conn)

	h.write(conn, TypeConnected, map[string]string{
		"connection_id": connID,
		"persona":       h.engine.Overview().Persona.ID,
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Warn("websocket read failed")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		if msg.Type != TypeMessage {
			h.write(conn, TypeError, map[string]string{"error": "unsupported message type: " + strings.TrimSpace(msg.Type)})
			continue
		}

		result := h.engine.Process(ctx, msg.Message, userID, sessionID)
		kind := TypeReply
		if result.Status != assistant.StatusSuccess {
			kind = TypeError
		}
		if !h.write(conn, kind, result) {
			return
		}
	}
}

func (h *Handler) write(conn *websocket.Conn, kind string, data any) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err := conn.WriteJSON(outgoingMessage{Type: kind, Data: data, Timestamp: time.Now().UnixMilli()})
	if err != nil {
		h.log.WithError(err).Debug("websocket write failed")
		return false
	}
	return true
}

func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
