package emotion

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/rapport/backend/internal/lexicon"
	"github.com/zhouzirui/rapport/backend/internal/logging"
	"github.com/zhouzirui/rapport/backend/internal/model/chat"
)

// 评分权重。
const (
	keywordWeight     = 0.4
	phraseWeight      = 0.7
	markerWeight      = 0.3
	intensifierWeight = 0.2
	stickiness        = 1.1
	stickyWindow      = 2

	polarityThreshold = 0.3
	confidenceDivisor = 2.0
	intensityDivisor  = 3.0
	fallbackScore     = 0.5
)

// Score is one candidate emotion and its weighted score.
type Score struct {
	Emotion lexicon.Emotion
	Value   float64
}

// Analyzer infers the primary emotion of an utterance.
type Analyzer struct {
	lex      *lexicon.Lexicon
	polarity PolarityScorer
	memory   *Memory
	now      func() time.Time
	log      logrus.FieldLogger
}

// Option customizes an Analyzer.
type Option func(*Analyzer)

// WithPolarity replaces the VADER polarity scorer.
func WithPolarity(p PolarityScorer) Option {
	return func(a *Analyzer) {
		if p != nil {
			a.polarity = p
		}
	}
}

// WithMemory shares an emotional memory with other components.
func WithMemory(m *Memory) Option {
	return func(a *Analyzer) {
		if m != nil {
			a.memory = m
		}
	}
}

// WithClock sets the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) {
		if now != nil {
			a.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.log = logging.Component(l, "emotion")
		}
	}
}

// NewAnalyzer creates an analyzer over lex.
func NewAnalyzer(lex *lexicon.Lexicon, opts ...Option) *Analyzer {
	a := &Analyzer{
		lex:      lex,
		polarity: NewVaderPolarity(),
		memory:   NewMemory(MemoryLimit),
		now:      time.Now,
		log:      logging.Component(nil, "emotion"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Memory returns the analyzer's per-user emotional memory.
func (a *Analyzer) Memory() *Memory { return a.memory }

// Analyze returns the emotional state of text for userID and remembers it.
// Any internal failure yields the neutral state instead of an error.
func (a *Analyzer) Analyze(ctx context.Context, text, userID string) (state chat.EmotionalState) {
	defer func() {
		if r := recover(); r != nil {
			a.log.WithField("panic", r).Error("emotion analysis failed, using neutral state")
			state = chat.NeutralState(a.now())
		}
	}()

	normalized := lexicon.Normalize(text)
	scores := a.Scores(normalized, userID)

	if len(scores) == 0 {
		state = a.fallback(ctx, text, normalized)
	} else {
		best := scores[0]
		for _, s := range scores[1:] {
			if s.Value > best.Value {
				best = s
			}
		}
		state = chat.EmotionalState{
			Primary:    best.Emotion,
			Confidence: math.Min(best.Value/confidenceDivisor, 1),
			Intensity:  math.Min(best.Value/intensityDivisor, 1),
			Timestamp:  a.now(),
		}
	}

	a.memory.Remember(userID, state)
	return state
}

// Scores returns every emotion with a positive score, in lexicon order,
// after the recency boost from the user's emotional memory.
func (a *Analyzer) Scores(text lexicon.Text, userID string) []Score {
	if text.Empty() {
		return nil
	}

	amplifier := 1 + intensifierWeight*float64(text.Count(a.lex.Intensifiers))

	var scores []Score
	for _, entry := range a.lex.Emotions {
		raw := keywordWeight*float64(text.Count(entry.Keywords)) +
			phraseWeight*float64(text.Count(entry.Phrases)) +
			markerWeight*float64(text.Count(entry.Markers))
		if raw <= 0 {
			continue
		}
		scores = append(scores, Score{Emotion: entry.Emotion, Value: raw * amplifier})
	}
	if len(scores) == 0 {
		return nil
	}

	recent := a.memory.Recent(userID, stickyWindow)
	for i := range scores {
		for _, past := range recent {
			if past.Primary == scores[i].Emotion {
				scores[i].Value *= stickiness
				break
			}
		}
	}
	return scores
}

// fallback maps the generic polarity signal to an emotion when no lexicon
// entry matched.
func (a *Analyzer) fallback(ctx context.Context, raw string, text lexicon.Text) chat.EmotionalState {
	polarity, err := a.polarity.Polarity(ctx, raw)
	if err != nil {
		a.log.WithError(err).Warn("polarity scorer failed, treating text as neutral")
		polarity = 0
	}

	state := chat.NeutralState(a.now())
	state.Confidence = fallbackScore
	switch {
	case polarity > polarityThreshold:
		state.Primary = lexicon.Excited
		state.Intensity = clamp(math.Abs(polarity), fallbackScore, 1)
	case polarity < -polarityThreshold:
		state.Primary = lexicon.Frustrated
		state.Intensity = clamp(math.Abs(polarity), fallbackScore, 1)
	case strings.Contains(text.String(), "?"):
		state.Primary = lexicon.Curious
	}
	return state
}
