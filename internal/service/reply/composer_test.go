package reply

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/rapport/backend/internal/lexicon"
	"github.com/zhouzirui/rapport/backend/internal/model/chat"
	"github.com/zhouzirui/rapport/backend/internal/model/persona"
	"github.com/zhouzirui/rapport/backend/internal/model/profile"
)

func newTestComposer(seed uint64) *Composer {
	return NewComposer(lexicon.Default(), persona.Seed()[0], WithSeed(seed))
}

func input(message string, intent lexicon.Intent, emotion lexicon.Emotion, intensity float64, turns int) Input {
	p := profile.New("u1", time.Unix(1700000000, 0))
	return Input{
		Message: message,
		Intent:  intent,
		Emotion: chat.EmotionalState{Primary: emotion, Intensity: intensity, Confidence: 0.5},
		Context: chat.Context{UserID: "u1", SessionID: "s1", CurrentTopic: chat.DefaultTopic, TurnCount: turns},
		Profile: p,
	}
}

// variants renders every variant of a bucket the way the composer would.
func variants(t *testing.T, c Category, emotion string, keys ...string) []string {
	t.Helper()
	tmpl := DefaultTemplates()
	encouragement, ok := tmpl.Encouragement[emotion]
	if !ok {
		encouragement = tmpl.Encouragement["default"]
	}
	r := strings.NewReplacer("{name}", "Aria", "{emotion}", emotion, "{encouragement}", encouragement)
	var out []string
	for _, v := range c.Select(keys...) {
		out = append(out, r.Replace(v))
	}
	require.NotEmpty(t, out)
	return out
}

func TestGreetingUsesStyleBucket(t *testing.T) {
	c := newTestComposer(1)
	tmpl := DefaultTemplates()

	got := c.Compose(input("Hello! I'm so excited to build a platformer!", lexicon.GameRequest, lexicon.Excited, 0.28, 1))
	assert.Contains(t, variants(t, tmpl.Greeting, "excited", "excited"), got)
	assert.Contains(t, got, "Aria")
	assert.NotContains(t, got, "{name}")

	got = c.Compose(input("hi there", lexicon.Chat, lexicon.Neutral, 0.5, 1))
	assert.Contains(t, variants(t, tmpl.Greeting, "neutral", "professional"), got)
}

func TestGreetingNeedsWholeWord(t *testing.T) {
	c := newTestComposer(1)

	got := c.Compose(input("this thing is odd", lexicon.Chat, lexicon.Neutral, 0.5, 1))
	assert.Contains(t, variants(t, DefaultTemplates().Generic, "neutral"), got)
}

func TestIntentTemplates(t *testing.T) {
	tmpl := DefaultTemplates()
	cases := []struct {
		name   string
		in     Input
		bucket []string
	}{
		{
			"game keyed by emotion",
			input("let's make a game", lexicon.GameRequest, lexicon.Creative, 0.3, 1),
			variants(t, tmpl.GameRequest, "creative", "creative"),
		},
		{
			"game falls back to style",
			input("let's make a game", lexicon.GameRequest, lexicon.Curious, 0.3, 1),
			variants(t, tmpl.GameRequest, "curious", "professional"),
		},
		{
			"media keyed by emotion",
			input("make a video", lexicon.MediaRequest, lexicon.Excited, 0.3, 1),
			variants(t, tmpl.MediaRequest, "excited", "excited"),
		},
		{
			"long conversations are professional",
			input("make a video", lexicon.MediaRequest, lexicon.Confident, 0.9, 6),
			variants(t, tmpl.MediaRequest, "confident", "professional"),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := newTestComposer(7).Compose(tc.in)
			assert.Contains(t, tc.bucket, got)
		})
	}
}

func TestTopicRecapAfterThreeTurns(t *testing.T) {
	c := newTestComposer(3)
	in := input("make a game", lexicon.GameRequest, lexicon.Excited, 0.3, 4)
	in.Profile.PreferredTopics = []string{"game_request", "media_request", "help_request"}

	got := c.Compose(in)
	assert.Contains(t, got, "media request, help request")

	in.Context.TurnCount = 3
	assert.NotContains(t, c.Compose(in), "exploring")
}

func TestEmpathyForFrustrationAndUncertainty(t *testing.T) {
	tmpl := DefaultTemplates()
	c := newTestComposer(5)

	got := c.Compose(input("this doesn't work", lexicon.TechnicalQuestion, lexicon.Frustrated, 0.9, 1))
	assert.Contains(t, variants(t, tmpl.Empathy, "frustrated", "frustrated"), got)

	got = c.Compose(input("maybe I don't know what to do", lexicon.Chat, lexicon.Uncertain, 0.4, 1))
	assert.Contains(t, variants(t, tmpl.Empathy, "uncertain", "uncertain"), got)
}

func TestContextualGenerator(t *testing.T) {
	tmpl := DefaultTemplates()
	c := newTestComposer(9)

	progress := c.Compose(input("ok", lexicon.Chat, lexicon.Confident, 0.4, 3))
	assert.Contains(t, variants(t, tmpl.Progress, "confident"), progress)

	question := input("how does this work", lexicon.Chat, lexicon.Curious, 0.4, 1)
	question.Profile.PreferredTopics = []string{"game_request"}
	got := c.Compose(question)
	assert.Contains(t, got, tmpl.Help["game_request"])

	got = c.Compose(input("how does this work", lexicon.Chat, lexicon.Curious, 0.4, 1))
	assert.Contains(t, got, tmpl.Help["default"])

	got = c.Compose(input("i want to try", lexicon.Chat, lexicon.Curious, 0.4, 1))
	assert.Contains(t, got, tmpl.Encouragement["curious"])

	got = c.Compose(input("there is an issue", lexicon.Chat, lexicon.Neutral, 0.5, 1))
	assert.Contains(t, variants(t, tmpl.Problem, "neutral"), got)

	got = c.Compose(input("ok", lexicon.Chat, lexicon.Neutral, 0.5, 1))
	assert.Contains(t, got, "neutral")
	assert.NotContains(t, got, "{")
}

func TestSameSeedSameReplies(t *testing.T) {
	a, b := newTestComposer(42), newTestComposer(42)
	for i := 0; i < 10; i++ {
		in := input("make a game", lexicon.GameRequest, lexicon.Excited, 0.3, 1)
		assert.Equal(t, a.Compose(in), b.Compose(in))
	}
}

func TestComposeDoesNotMutateInput(t *testing.T) {
	in := input("make a game", lexicon.GameRequest, lexicon.Excited, 0.3, 5)
	in.Profile.PreferredTopics = []string{"game_request", "media_request"}
	before := in.Profile.Clone()

	newTestComposer(1).Compose(in)

	if diff := cmp.Diff(before, in.Profile); diff != "" {
		t.Fatalf("profile mutated (-before +after):\n%s", diff)
	}
}

func TestCategorySelectFallsBackToFirstBucket(t *testing.T) {
	c := Category{
		{Key: "first", Variants: []string{"a"}},
		{Key: "second", Variants: []string{"b"}},
	}
	assert.Equal(t, []string{"b"}, c.Select("missing", "second"))
	assert.Equal(t, []string{"a"}, c.Select("missing"))
	assert.Nil(t, Category{}.Select("any"))
}

func TestParseTemplatesRejectsEmptyCategories(t *testing.T) {
	_, err := ParseTemplates([]byte("greeting: []\n"))
	assert.ErrorIs(t, err, ErrInvalidTemplates)
}
