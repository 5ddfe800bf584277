package stream

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/rapport/backend/internal/logging"
	"github.com/zhouzirui/rapport/backend/internal/service/assistant"
	"github.com/zhouzirui/rapport/backend/pkg/utils"
)

// Event names sent over the SSE stream.
const (
	EventAnalysis = "analysis"
	EventMessage  = "message"
	EventEnd      = "end"
	EventError    = "error"
)

// Handler streams engine results over Server-Sent Events and WebSocket.
type Handler struct {
	engine *assistant.Engine
	log    logrus.FieldLogger
}

// New creates a stream handler.
func New(engine *assistant.Engine, logger logrus.FieldLogger) *Handler {
	return &Handler{
		engine: engine,
		log:    logging.Component(logger, "http.stream"),
	}
}

// RegisterRoutes registers the SSE and WebSocket endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream", h.handleSSE)
	r.Get("/ws", h.handleWebSocket)
}

// Analysis is the first SSE event: what the engine understood.
type Analysis struct {
	Intent     string                `json:"intent"`
	Confidence float64               `json:"confidence"`
	Emotion    assistant.EmotionView `json:"emotion"`
	Context    assistant.ContextView `json:"context"`
}

// Reply is the SSE message event.
type Reply struct {
	Content  string             `json:"content"`
	Metadata assistant.Metadata `json:"metadata"`
}

// handleSSE processes one message and streams the analysis, the reply and
// an end marker.
func (h *Handler) handleSSE(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	message := q.Get("message")
	if message == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	sse, err := utils.NewSSEWriter(w)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	result := h.engine.Process(r.Context(), message, q.Get("user_id"), q.Get("session_id"))
	if result.Status == assistant.StatusError {
		h.send(sse, EventError, result)
		h.send(sse, EventEnd, map[string]bool{"finished": true})
		return
	}

	h.send(sse, EventAnalysis, Analysis{
		Intent:     string(result.Intent),
		Confidence: result.Confidence,
		Emotion:    result.Emotion,
		Context:    result.Context,
	})
	h.send(sse, EventMessage, Reply{Content: result.Content, Metadata: result.Metadata})
	h.send(sse, EventEnd, map[string]bool{"finished": true})
}

func (h *Handler) send(sse *utils.SSEWriter, event string, data any) {
	if err := sse.Event(event, data); err != nil {
		h.log.WithError(err).WithField("event", event).Debug("sse write failed")
	}
}
