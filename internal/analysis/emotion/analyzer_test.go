package emotion

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/rapport/backend/internal/lexicon"
	"github.com/zhouzirui/rapport/backend/internal/model/chat"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestAnalyzer(opts ...Option) *Analyzer {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewAnalyzer(lexicon.Default(), opts...)
}

type stubPolarity struct {
	value float64
	err   error
	calls int
}

func (s *stubPolarity) Polarity(context.Context, string) (float64, error) {
	s.calls++
	return s.value, s.err
}

type panickyPolarity struct{}

func (panickyPolarity) Polarity(context.Context, string) (float64, error) {
	panic("boom")
}

func TestAnalyzeExcitedGreeting(t *testing.T) {
	a := newTestAnalyzer()

	state := a.Analyze(context.Background(), "Hello! I'm so excited to build a platformer!", "u1")

	assert.Equal(t, lexicon.Excited, state.Primary)
	assert.Greater(t, state.Confidence, 0.3)
	assert.InDelta(t, 0.84/2, state.Confidence, 1e-9)
	assert.InDelta(t, 0.84/3, state.Intensity, 1e-9)
	assert.Equal(t, fixedNow, state.Timestamp)
}

func TestAnalyzeUncertainty(t *testing.T) {
	a := newTestAnalyzer()

	state := a.Analyze(context.Background(), "maybe I don't know what to do", "u1")

	assert.Equal(t, lexicon.Uncertain, state.Primary)
	assert.InDelta(t, 0.55, state.Confidence, 1e-9)
}

func TestAnalyzeFallbacks(t *testing.T) {
	cases := []struct {
		name      string
		text      string
		polarity  float64
		want      lexicon.Emotion
		intensity float64
	}{
		{"positive polarity", "that sounds nice", 0.6, lexicon.Excited, 0.6},
		{"weak positive polarity floors intensity", "ok nice", 0.35, lexicon.Excited, 0.5},
		{"negative polarity", "this is bad", -0.9, lexicon.Frustrated, 0.9},
		{"question mark", "is it raining?", 0, lexicon.Curious, 0.5},
		{"nothing matched", "the sky is blue", 0.1, lexicon.Neutral, 0.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := newTestAnalyzer(WithPolarity(&stubPolarity{value: tc.polarity}))

			state := a.Analyze(context.Background(), tc.text, "u1")

			assert.Equal(t, tc.want, state.Primary)
			assert.InDelta(t, 0.5, state.Confidence, 1e-9)
			assert.InDelta(t, tc.intensity, state.Intensity, 1e-9)
		})
	}
}

func TestPolarityOnlyConsultedWithoutCandidates(t *testing.T) {
	stub := &stubPolarity{value: -1}
	a := newTestAnalyzer(WithPolarity(stub))

	state := a.Analyze(context.Background(), "this is awesome", "u1")

	assert.Equal(t, lexicon.Excited, state.Primary)
	assert.Zero(t, stub.calls)
}

func TestPolarityErrorTreatedAsNeutral(t *testing.T) {
	a := newTestAnalyzer(WithPolarity(&stubPolarity{value: 0.9, err: errors.New("model unavailable")}))

	state := a.Analyze(context.Background(), "the sky is blue", "u1")

	assert.Equal(t, lexicon.Neutral, state.Primary)
}

func TestAnalyzeRecoversFromPanic(t *testing.T) {
	a := newTestAnalyzer(WithPolarity(panickyPolarity{}))

	state := a.Analyze(context.Background(), "the sky is blue", "u1")

	assert.Equal(t, chat.NeutralState(fixedNow), state)
}

func TestEmptyTextIsNeutral(t *testing.T) {
	a := newTestAnalyzer()

	state := a.Analyze(context.Background(), "   ", "u1")

	assert.Equal(t, lexicon.Neutral, state.Primary)
	assert.InDelta(t, 0.5, state.Intensity, 1e-9)
}

func TestRecentEmotionsAreSticky(t *testing.T) {
	a := newTestAnalyzer()
	ctx := context.Background()

	// "build" and "love" tie at 0.4 each; creative is listed after excited.
	tie := "I love to build"
	first := a.Analyze(ctx, tie, "fresh")
	assert.Equal(t, lexicon.Excited, first.Primary)

	a.Memory().Remember("creator", chat.EmotionalState{Primary: lexicon.Creative})
	second := a.Analyze(ctx, tie, "creator")
	assert.Equal(t, lexicon.Creative, second.Primary)
	assert.InDelta(t, 0.44/2, second.Confidence, 1e-9)
}

func TestAnalyzeRemembersResult(t *testing.T) {
	mem := NewMemory(3)
	a := newTestAnalyzer(WithMemory(mem))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		a.Analyze(ctx, "I'm stuck", "u1")
	}

	require.Equal(t, 3, mem.Len("u1"))
	recent := mem.Recent("u1", 1)
	require.Len(t, recent, 1)
	assert.Equal(t, lexicon.Frustrated, recent[0].Primary)
	assert.Zero(t, mem.Len("u2"))
}

func TestConfidenceAndIntensityStayInRange(t *testing.T) {
	a := newTestAnalyzer()
	inputs := []string{
		"",
		"!!!!!!",
		"SO SO really extremely super totally incredibly truly seriously excited amazing awesome great love fantastic wonderful thrilled stoked incredible!!! 🎉🤩😄 can't wait so cool love it let's go",
		"stuck hard difficult impossible hate frustrated annoying ugh doesn't work giving up 😤😡",
		"how what why when where? 🤔",
		"¿qué tal? ñandú",
	}
	for i, in := range inputs {
		t.Run(fmt.Sprintf("input_%d", i), func(t *testing.T) {
			state := a.Analyze(context.Background(), in, "u1")
			assert.GreaterOrEqual(t, state.Confidence, 0.0)
			assert.LessOrEqual(t, state.Confidence, 1.0)
			assert.GreaterOrEqual(t, state.Intensity, 0.0)
			assert.LessOrEqual(t, state.Intensity, 1.0)
		})
	}
}

func TestVaderPolarity(t *testing.T) {
	p := NewVaderPolarity()
	ctx := context.Background()

	good, err := p.Polarity(ctx, "this is good")
	require.NoError(t, err)
	assert.Greater(t, good, 0.3)

	notGood, err := p.Polarity(ctx, "this is not good")
	require.NoError(t, err)
	assert.Less(t, notGood, 0.0)

	flat, err := p.Polarity(ctx, "nothing to see")
	require.NoError(t, err)
	assert.Zero(t, flat)

	loud, err := p.Polarity(ctx, "GREAT GREAT GREAT GREAT GREAT!!!!")
	require.NoError(t, err)
	assert.LessOrEqual(t, loud, 1.0)
}

func TestDefaultPolarityDrivesFallback(t *testing.T) {
	a := newTestAnalyzer()
	ctx := context.Background()

	assert.Equal(t, lexicon.Excited, a.Analyze(ctx, "such a lovely day", "u1").Primary)
	assert.Equal(t, lexicon.Frustrated, a.Analyze(ctx, "the food was disgusting", "u2").Primary)
	assert.Equal(t, lexicon.Neutral, a.Analyze(ctx, "the train leaves at noon", "u3").Primary)
}

func TestMemoryRecentOrder(t *testing.T) {
	m := NewMemory(5)
	for _, e := range []lexicon.Emotion{lexicon.Curious, lexicon.Excited, lexicon.Creative} {
		m.Remember("u1", chat.EmotionalState{Primary: e})
	}

	recent := m.Recent("u1", 2)
	require.Len(t, recent, 2)
	assert.Equal(t, lexicon.Excited, recent[0].Primary)
	assert.Equal(t, lexicon.Creative, recent[1].Primary)
	assert.Empty(t, m.Recent("u1", -1))

	m.Forget("u1")
	assert.Zero(t, m.Len("u1"))
}
