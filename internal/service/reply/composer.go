package reply

import (
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/zhouzirui/rapport/backend/internal/lexicon"
	"github.com/zhouzirui/rapport/backend/internal/model/chat"
	"github.com/zhouzirui/rapport/backend/internal/model/persona"
	"github.com/zhouzirui/rapport/backend/internal/model/profile"
)

const (
	progressAfterTurns = 2
	recapAfterTurns    = 3
	recapTopics        = 2
)

var progressEmotions = map[lexicon.Emotion]bool{
	lexicon.Excited:   true,
	lexicon.Confident: true,
	lexicon.Creative:  true,
}

// Input is everything the composer reads for one reply.
type Input struct {
	Message string
	Intent  lexicon.Intent
	Emotion chat.EmotionalState
	Context chat.Context
	Profile *profile.Profile
}

// Composer picks a reply template for an analysed turn. It never mutates
// its input.
type Composer struct {
	lex       *lexicon.Lexicon
	templates *Templates
	persona   persona.Persona

	mu  sync.Mutex
	rng *rand.Rand
}

// Option customizes a Composer.
type Option func(*Composer)

// WithSeed makes template picks reproducible.
func WithSeed(seed uint64) Option {
	return func(c *Composer) {
		c.rng = rand.New(rand.NewPCG(seed, seed))
	}
}

// WithTemplates replaces the built-in templates.
func WithTemplates(t *Templates) Option {
	return func(c *Composer) {
		if t != nil {
			c.templates = t
		}
	}
}

// NewComposer creates a composer speaking as p.
func NewComposer(lex *lexicon.Lexicon, p persona.Persona, opts ...Option) *Composer {
	now := uint64(time.Now().UnixNano())
	c := &Composer{
		lex:       lex,
		templates: DefaultTemplates(),
		persona:   p,
		rng:       rand.New(rand.NewPCG(now, now>>1)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Persona returns the persona the composer speaks as.
func (c *Composer) Persona() persona.Persona { return c.persona }

// Compose returns the reply for in.
func (c *Composer) Compose(in Input) string {
	text := lexicon.Normalize(in.Message)
	style := string(profile.StyleFor(in.Context.TurnCount, in.Emotion.Primary, in.Emotion.Intensity))
	emotion := string(in.Emotion.Primary)

	if text.HasAny(c.lex.Greetings) {
		return c.render(c.templates.Greeting.Select(style), emotion)
	}

	switch in.Intent {
	case lexicon.GameRequest, lexicon.MediaRequest:
		category := c.templates.GameRequest
		if in.Intent == lexicon.MediaRequest {
			category = c.templates.MediaRequest
		}
		out := c.render(category.Select(emotion, style), emotion)
		if recap := c.recap(in); recap != "" {
			out += "\n\n" + recap
		}
		return out
	}

	if in.Emotion.Primary == lexicon.Frustrated || in.Emotion.Primary == lexicon.Uncertain {
		return c.render(c.templates.Empathy.Select(emotion), emotion)
	}

	return c.contextual(in, text)
}

// contextual is the fallback generator for turns no template category claims.
func (c *Composer) contextual(in Input, text lexicon.Text) string {
	emotion := string(in.Emotion.Primary)
	cues := c.templates.Cues

	category := c.templates.Generic
	switch {
	case in.Context.TurnCount > progressAfterTurns && progressEmotions[in.Emotion.Primary]:
		category = c.templates.Progress
	case text.HasAny(cues.Questions):
		category = c.templates.Question
	case text.HasAny(cues.FirstPerson):
		category = c.templates.Statement
	case text.HasAny(cues.Problems):
		category = c.templates.Problem
	}

	line := c.render(category.Select(), emotion)
	return strings.ReplaceAll(line, "{help}", c.help(in.Profile))
}

// render picks one variant and fills the placeholders that do not depend
// on the profile.
func (c *Composer) render(variants []string, emotion string) string {
	if len(variants) == 0 {
		return ""
	}
	c.mu.Lock()
	picked := variants[c.rng.IntN(len(variants))]
	c.mu.Unlock()

	return strings.NewReplacer(
		"{name}", c.persona.Name,
		"{emotion}", emotion,
		"{encouragement}", c.encouragement(emotion),
	).Replace(picked)
}

func (c *Composer) recap(in Input) string {
	if in.Context.TurnCount <= recapAfterTurns || in.Profile == nil || c.templates.Recap == "" {
		return ""
	}
	topics := in.Profile.PreferredTopics
	if len(topics) > recapTopics {
		topics = topics[len(topics)-recapTopics:]
	}
	if len(topics) == 0 {
		return ""
	}
	readable := make([]string, len(topics))
	for i, t := range topics {
		readable[i] = strings.ReplaceAll(t, "_", " ")
	}
	return strings.ReplaceAll(c.templates.Recap, "{topics}", strings.Join(readable, ", "))
}

func (c *Composer) help(p *profile.Profile) string {
	if p != nil {
		for _, key := range []string{string(lexicon.GameRequest), string(lexicon.MediaRequest)} {
			for _, topic := range p.PreferredTopics {
				if topic == key && c.templates.Help[key] != "" {
					return c.templates.Help[key]
				}
			}
		}
	}
	return c.templates.Help["default"]
}

func (c *Composer) encouragement(emotion string) string {
	if line, ok := c.templates.Encouragement[emotion]; ok {
		return line
	}
	return c.templates.Encouragement["default"]
}
