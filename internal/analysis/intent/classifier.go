package intent

import (
	"math"
	"strings"

	"github.com/zhouzirui/rapport/backend/internal/lexicon"
	"github.com/zhouzirui/rapport/backend/internal/model/chat"
)

// 打分权重。
const (
	primaryWeight   = 0.5
	secondaryWeight = 0.3
	phraseWeight    = 0.8
	clueWeight      = 0.4

	questionBoost = 0.2
	questionSeed  = 0.3

	// Threshold is the minimum winning score; anything lower is chat.
	Threshold = 0.3
	// FallbackConfidence is reported with the chat fallback.
	FallbackConfidence = 0.6
)

// Score is one intent candidate.
type Score struct {
	Intent lexicon.Intent `json:"intent"`
	Value  float64        `json:"score"`
}

// Classification is the classifier's verdict for one utterance.
type Classification struct {
	Intent     lexicon.Intent `json:"intent"`
	Confidence float64        `json:"confidence"`
	Scores     []Score        `json:"scores,omitempty"`
}

// Classifier maps an utterance to one intent using the lexicon tables.
type Classifier struct {
	lex *lexicon.Lexicon
}

// NewClassifier creates a classifier over lex.
func NewClassifier(lex *lexicon.Lexicon) *Classifier {
	return &Classifier{lex: lex}
}

// Classify scores text against every intent. The previous intent recorded
// in conv, if any, boosts related intents. A nil conv is a fresh conversation.
func (c *Classifier) Classify(text lexicon.Text, conv *chat.Context) Classification {
	scores := c.Scores(text, conv.LastIntent())
	if len(scores) == 0 {
		return Classification{Intent: lexicon.Chat, Confidence: FallbackConfidence}
	}

	best := scores[0]
	for _, s := range scores[1:] {
		if s.Value > best.Value {
			best = s
		}
	}
	if best.Value < Threshold {
		return Classification{Intent: lexicon.Chat, Confidence: FallbackConfidence, Scores: scores}
	}
	return Classification{
		Intent:     best.Intent,
		Confidence: math.Min(best.Value, 1),
		Scores:     scores,
	}
}

// Scores returns the candidates with a positive score in lexicon order.
func (c *Classifier) Scores(text lexicon.Text, previous lexicon.Intent) []Score {
	var scores []Score
	if !text.Empty() {
		for _, entry := range c.lex.Intents {
			raw := primaryWeight*float64(text.Count(entry.Primary)) +
				secondaryWeight*float64(text.Count(entry.Secondary)) +
				phraseWeight*float64(text.Count(entry.Phrases)) +
				clueWeight*float64(text.Count(entry.ContextClues))
			if raw <= 0 {
				continue
			}
			scores = append(scores, Score{Intent: entry.Intent, Value: raw * entry.Weight})
		}
	}

	if previous != "" {
		for i := range scores {
			scores[i].Value += c.lex.Boost(previous, scores[i].Intent)
		}
	}

	if strings.Contains(text.String(), "?") {
		scores = c.questionHeuristic(scores)
	}
	return scores
}

func (c *Classifier) questionHeuristic(scores []Score) []Score {
	for i := range scores {
		if scores[i].Intent == lexicon.HelpRequest {
			scores[i].Value += questionBoost
			return scores
		}
	}
	if _, ok := c.lex.Intent(lexicon.HelpRequest); !ok {
		return scores
	}
	return append(scores, Score{Intent: lexicon.HelpRequest, Value: questionSeed})
}
