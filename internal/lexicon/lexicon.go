package lexicon

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Emotion 表示一条话语的主情绪标签。
type Emotion string

const (
	Neutral    Emotion = "neutral"
	Excited    Emotion = "excited"
	Frustrated Emotion = "frustrated"
	Curious    Emotion = "curious"
	Confident  Emotion = "confident"
	Uncertain  Emotion = "uncertain"
	Creative   Emotion = "creative"
)

// Intent 表示一条话语的意图类别。
type Intent string

const (
	GameRequest        Intent = "game_request"
	MediaRequest       Intent = "media_request"
	HelpRequest        Intent = "help_request"
	CreativeBrainstorm Intent = "creative_brainstorm"
	TechnicalQuestion  Intent = "technical_question"
	Feedback           Intent = "feedback"
	Chat               Intent = "chat"
	Error              Intent = "error"
)

// ErrInvalid is returned when a lexicon document fails validation.
var ErrInvalid = errors.New("invalid lexicon")

// EmotionEntry lists the terms that vote for one emotion.
type EmotionEntry struct {
	Emotion  Emotion  `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Phrases  []string `yaml:"phrases"`
	Markers  []string `yaml:"markers"`
}

// IntentEntry lists the terms that vote for one intent. Weight scales the
// raw score; more specific intents carry a higher weight.
type IntentEntry struct {
	Intent       Intent   `yaml:"name"`
	Weight       float64  `yaml:"weight"`
	Primary      []string `yaml:"primary"`
	Secondary    []string `yaml:"secondary"`
	Phrases      []string `yaml:"phrases"`
	ContextClues []string `yaml:"context_clues"`
}

// Relationship boosts To when the previous turn was classified as From.
type Relationship struct {
	From  Intent  `yaml:"from"`
	To    Intent  `yaml:"to"`
	Boost float64 `yaml:"boost"`
}

// PreferencePattern maps keywords to a learned preference category.
type PreferencePattern struct {
	Name     string   `yaml:"name"`
	Category string   `yaml:"category"`
	Keywords []string `yaml:"keywords"`
}

// Lexicon is the immutable scoring table shared by the analyzers. Callers
// must treat every slice as read-only once the lexicon has been loaded.
type Lexicon struct {
	Emotions      []EmotionEntry      `yaml:"emotions"`
	Intensifiers  []string            `yaml:"intensifiers"`
	Intents       []IntentEntry       `yaml:"intents"`
	Relationships []Relationship      `yaml:"relationships"`
	Preferences   []PreferencePattern `yaml:"preferences"`
	Greetings     []string            `yaml:"greetings"`
}

//go:embed default.yaml
var defaultDocument []byte

var loadDefault = sync.OnceValues(func() (*Lexicon, error) {
	return Parse(defaultDocument)
})

// Default returns the built-in lexicon. The embedded document is parsed once.
func Default() *Lexicon {
	lex, err := loadDefault()
	if err != nil {
		panic(fmt.Sprintf("lexicon: embedded default is invalid: %v", err))
	}
	return lex
}

// Load reads a lexicon document from r.
func Load(r io.Reader) (*Lexicon, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read lexicon: %w", err)
	}
	return Parse(data)
}

// LoadFile reads a lexicon from path, falling back to the built-in lexicon
// when path is empty.
func LoadFile(path string) (*Lexicon, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open lexicon: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Parse decodes and validates a YAML lexicon document.
func Parse(data []byte) (*Lexicon, error) {
	lex := &Lexicon{}
	if err := yaml.Unmarshal(data, lex); err != nil {
		return nil, fmt.Errorf("decode lexicon: %w", err)
	}
	if err := lex.validate(); err != nil {
		return nil, err
	}
	return lex, nil
}

func (l *Lexicon) validate() error {
	if len(l.Emotions) == 0 {
		return fmt.Errorf("%w: no emotions defined", ErrInvalid)
	}
	if len(l.Intents) == 0 {
		return fmt.Errorf("%w: no intents defined", ErrInvalid)
	}

	emotions := make(map[Emotion]bool, len(l.Emotions))
	for _, e := range l.Emotions {
		if e.Emotion == "" {
			return fmt.Errorf("%w: emotion without name", ErrInvalid)
		}
		if emotions[e.Emotion] {
			return fmt.Errorf("%w: duplicate emotion %q", ErrInvalid, e.Emotion)
		}
		emotions[e.Emotion] = true
	}

	intents := make(map[Intent]bool, len(l.Intents))
	for _, in := range l.Intents {
		if in.Intent == "" {
			return fmt.Errorf("%w: intent without name", ErrInvalid)
		}
		if in.Intent == Chat || in.Intent == Error {
			return fmt.Errorf("%w: intent %q is reserved", ErrInvalid, in.Intent)
		}
		if intents[in.Intent] {
			return fmt.Errorf("%w: duplicate intent %q", ErrInvalid, in.Intent)
		}
		if in.Weight <= 0 || in.Weight > 1 {
			return fmt.Errorf("%w: intent %q weight %.2f outside (0,1]", ErrInvalid, in.Intent, in.Weight)
		}
		intents[in.Intent] = true
	}

	for _, rel := range l.Relationships {
		if !intents[rel.From] || !intents[rel.To] {
			return fmt.Errorf("%w: relationship %s->%s references unknown intent", ErrInvalid, rel.From, rel.To)
		}
		if rel.Boost < 0 {
			return fmt.Errorf("%w: relationship %s->%s has negative boost", ErrInvalid, rel.From, rel.To)
		}
	}

	for _, p := range l.Preferences {
		if p.Category == "" {
			return fmt.Errorf("%w: preference pattern %q without category", ErrInvalid, p.Name)
		}
	}
	return nil
}

// Intent returns the entry for name.
func (l *Lexicon) Intent(name Intent) (IntentEntry, bool) {
	for _, in := range l.Intents {
		if in.Intent == name {
			return in, true
		}
	}
	return IntentEntry{}, false
}

// Boost returns the relationship boost applied to `to` when the previous
// intent was `from`.
func (l *Lexicon) Boost(from, to Intent) float64 {
	for _, rel := range l.Relationships {
		if rel.From == from && rel.To == to {
			return rel.Boost
		}
	}
	return 0
}
