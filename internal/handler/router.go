package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/rapport/backend/internal/handler/chat"
	"github.com/zhouzirui/rapport/backend/internal/handler/persona"
	"github.com/zhouzirui/rapport/backend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/rapport/backend/internal/middleware"
	personaModel "github.com/zhouzirui/rapport/backend/internal/model/persona"
	"github.com/zhouzirui/rapport/backend/internal/service/assistant"
	"github.com/zhouzirui/rapport/backend/pkg/utils"
)

// Deps are the services the HTTP layer exposes.
type Deps struct {
	Engine   *assistant.Engine
	Personas personaModel.Store
	// Gatherer serves /metrics. Nil leaves the route out.
	Gatherer prometheus.Gatherer
	// RateLimiter guards /api. Nil disables limiting.
	RateLimiter *middlewarePkg.RateLimiter
	Logger      logrus.FieldLogger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	engine := deps.Engine
	chatHandler := chat.New(engine, deps.Logger)
	streamHandler := stream.New(engine, deps.Logger)
	personaHandler := persona.New(deps.Personas, engine.Overview().Persona.ID)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, engine.Health())
	})
	r.Get("/brain/status", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, engine.Overview())
	})
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(api chi.Router) {
		if deps.RateLimiter != nil {
			api.Use(deps.RateLimiter.Handler)
		}

		personaHandler.RegisterRoutes(api)
		chatHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)
	})

	return r
}
