package assistant

import (
	"time"

	"github.com/zhouzirui/rapport/backend/internal/model/persona"
)

var capabilities = []string{
	"emotional_intelligence",
	"context_awareness",
	"creative_brainstorming",
	"intent_recognition",
	"personality_consistency",
}

// Health is the liveness report.
type Health struct {
	Status         string          `json:"status"`
	EngineType     string          `json:"engine_type"`
	Capabilities   map[string]bool `json:"capabilities"`
	Backend        string          `json:"backend"`
	AIEnabled      bool            `json:"ai_enabled"`
	TrackedUsers   int             `json:"tracked_users"`
	ActiveSessions int             `json:"active_sessions"`
	Uptime         string          `json:"uptime"`
}

// Overview describes the engine's persona and load.
type Overview struct {
	Persona        persona.Persona `json:"personality"`
	ActiveContexts int             `json:"active_contexts"`
	InFlight       int             `json:"in_flight"`
	Capabilities   []string        `json:"capabilities"`
}

// Health reports whether the engine is serving and what it is backed by.
func (e *Engine) Health() Health {
	caps := make(map[string]bool, len(capabilities)+1)
	for _, c := range capabilities {
		caps[c] = true
	}
	caps["ai_responses"] = e.responder != nil

	return Health{
		Status:         "healthy",
		EngineType:     "lexical_heuristic",
		Capabilities:   caps,
		Backend:        e.store.Backend(),
		AIEnabled:      e.responder != nil,
		TrackedUsers:   e.store.TrackedUsers(),
		ActiveSessions: e.store.ActiveSessions(),
		Uptime:         e.now().Sub(e.started).Truncate(time.Second).String(),
	}
}

// Overview returns the persona and current load.
func (e *Engine) Overview() Overview {
	return Overview{
		Persona:        e.composer.Persona(),
		ActiveContexts: e.store.ActiveSessions(),
		InFlight:       e.sessions.Len(),
		Capabilities:   append([]string(nil), capabilities...),
	}
}
