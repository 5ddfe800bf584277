package emotion

import (
	"context"
	"math"

	"github.com/jonreiter/govader"
)

// PolarityScorer returns a sentiment polarity in [-1, 1] for text.
type PolarityScorer interface {
	Polarity(ctx context.Context, text string) (float64, error)
}

// VaderPolarity scores polarity with the VADER sentiment model. The compound
// score it reports is already normalized to [-1, 1].
type VaderPolarity struct {
	analyzer *govader.SentimentIntensityAnalyzer
}

// NewVaderPolarity builds a scorer over VADER's bundled lexicon.
func NewVaderPolarity() *VaderPolarity {
	return &VaderPolarity{analyzer: govader.NewSentimentIntensityAnalyzer()}
}

// Polarity implements PolarityScorer. It never fails.
func (p *VaderPolarity) Polarity(_ context.Context, text string) (float64, error) {
	compound := p.analyzer.PolarityScores(text).Compound
	if math.IsNaN(compound) {
		return 0, nil
	}
	return clamp(compound, -1, 1), nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
