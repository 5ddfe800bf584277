package chat

import (
	"time"

	"github.com/zhouzirui/rapport/backend/internal/lexicon"
)

const (
	// RecentLimit caps the recent emotion and intent sequences.
	RecentLimit = 5
	// DefaultTopic is the topic of a context that has not seen an intent yet.
	DefaultTopic = "general"
	// DefaultSession is used when the caller does not name a session.
	DefaultSession = "default"
	// DefaultUser is used when the caller does not name a user.
	DefaultUser = "default"
)

// Context captures the volatile state of one (user, session) conversation.
type Context struct {
	UserID          string           `json:"userId"`
	SessionID       string           `json:"sessionId"`
	CurrentTopic    string           `json:"currentTopic"`
	TurnCount       int              `json:"turnCount"`
	RecentEmotions  []EmotionalState `json:"recentEmotions"`
	RecentIntents   []lexicon.Intent `json:"recentIntents"`
	LastInteraction time.Time        `json:"lastInteraction"`
}

// NewContext returns an empty context for the given key.
func NewContext(userID, sessionID string, now time.Time) *Context {
	if sessionID == "" {
		sessionID = DefaultSession
	}
	return &Context{
		UserID:          userID,
		SessionID:       sessionID,
		CurrentTopic:    DefaultTopic,
		RecentEmotions:  make([]EmotionalState, 0, RecentLimit),
		RecentIntents:   make([]lexicon.Intent, 0, RecentLimit),
		LastInteraction: now,
	}
}

// Record appends one turn, dropping the oldest entries past RecentLimit.
func (c *Context) Record(intent lexicon.Intent, state EmotionalState, now time.Time) {
	c.RecentEmotions = append(c.RecentEmotions, state)
	if over := len(c.RecentEmotions) - RecentLimit; over > 0 {
		c.RecentEmotions = append(c.RecentEmotions[:0:0], c.RecentEmotions[over:]...)
	}
	c.RecentIntents = append(c.RecentIntents, intent)
	if over := len(c.RecentIntents) - RecentLimit; over > 0 {
		c.RecentIntents = append(c.RecentIntents[:0:0], c.RecentIntents[over:]...)
	}
	if intent != lexicon.Chat && intent != "" {
		c.CurrentTopic = string(intent)
	}
	c.TurnCount++
	c.LastInteraction = now
}

// LastIntent returns the most recent intent, or "" for a fresh context.
func (c *Context) LastIntent() lexicon.Intent {
	if c == nil || len(c.RecentIntents) == 0 {
		return ""
	}
	return c.RecentIntents[len(c.RecentIntents)-1]
}

// Clone returns a deep copy safe to hand out of the store.
func (c *Context) Clone() Context {
	if c == nil {
		return Context{}
	}
	out := *c
	out.RecentEmotions = append([]EmotionalState(nil), c.RecentEmotions...)
	out.RecentIntents = append([]lexicon.Intent(nil), c.RecentIntents...)
	return out
}
