package chat

import (
	"time"

	"github.com/zhouzirui/rapport/backend/internal/lexicon"
)

// Message is one remembered exchange: the user's utterance, the reply it
// received and how it was read.
type Message struct {
	ID        string          `json:"id"`
	Content   string          `json:"content"`
	Response  string          `json:"response,omitempty"`
	Intent    lexicon.Intent  `json:"intent"`
	Emotion   lexicon.Emotion `json:"emotion"`
	Topics    []string        `json:"topics,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// EmotionalState is the analyzer's reading of a single utterance.
type EmotionalState struct {
	Primary    lexicon.Emotion `json:"primary"`
	Intensity  float64         `json:"intensity"`
	Confidence float64         `json:"confidence"`
	Timestamp  time.Time       `json:"timestamp"`
}

// NeutralState is the state reported whenever analysis cannot say more.
func NeutralState(at time.Time) EmotionalState {
	return EmotionalState{
		Primary:    lexicon.Neutral,
		Intensity:  0.5,
		Confidence: 0.5,
		Timestamp:  at,
	}
}
