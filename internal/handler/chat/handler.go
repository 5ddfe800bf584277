package chat

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/rapport/backend/internal/logging"
	"github.com/zhouzirui/rapport/backend/internal/service/assistant"
	chatservice "github.com/zhouzirui/rapport/backend/internal/service/chat"
	"github.com/zhouzirui/rapport/backend/pkg/utils"
)

const defaultConversationLimit = 3

// Handler 聊天与用户数据的HTTP处理器
type Handler struct {
	engine *assistant.Engine
	log    logrus.FieldLogger
}

// New 创建聊天处理器
func New(engine *assistant.Engine, logger logrus.FieldLogger) *Handler {
	return &Handler{
		engine: engine,
		log:    logging.Component(logger, "http.chat"),
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
	r.Get("/stats", h.handleStats)

	r.Route("/users/{userID}", func(r chi.Router) {
		r.Get("/profile", h.handleProfile)
		r.Get("/insights", h.handleInsights)
		r.Get("/conversations", h.handleConversations)
		r.Delete("/", h.handleDeleteUser)
	})
}

type chatRequest struct {
	Message   string `json:"message"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// handleChat 处理一条用户消息
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload chatRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result := h.engine.Process(r.Context(), payload.Message, payload.UserID, payload.SessionID)
	utils.RespondJSON(w, StatusFor(result), result)
}

// StatusFor maps a result's error kind to an HTTP status.
func StatusFor(result assistant.Result) int {
	switch result.ErrorKind {
	case assistant.ErrorInput:
		return http.StatusBadRequest
	case assistant.ErrorAnalysis:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.engine.Store().ExportProfile(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, p)
}

func (h *Handler) handleInsights(w http.ResponseWriter, r *http.Request) {
	insights, err := h.engine.Store().PersonalizedContext(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, insights)
}

func (h *Handler) handleConversations(w http.ResponseWriter, r *http.Request) {
	limit := defaultConversationLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			utils.RespondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	history, err := h.engine.Store().RecentConversation(r.Context(), chi.URLParam(r, "userID"), limit)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"conversations": history})
}

func (h *Handler) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Store().DeleteUser(r.Context(), chi.URLParam(r, "userID")); err != nil {
		h.respondStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.engine.Store().Stats(r.Context()))
}

func (h *Handler) respondStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, chatservice.ErrUserNotFound) {
		utils.RespondError(w, http.StatusNotFound, "user not found")
		return
	}
	h.log.WithError(err).Warn("user data request failed")
	utils.RespondError(w, http.StatusServiceUnavailable, "profile store unavailable")
}
