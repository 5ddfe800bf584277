package reply

import (
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrInvalidTemplates is returned when a template document fails validation.
var ErrInvalidTemplates = errors.New("invalid reply templates")

// Bucket is one keyed group of interchangeable replies.
type Bucket struct {
	Key      string   `yaml:"key"`
	Variants []string `yaml:"variants"`
}

// Category is an ordered list of buckets.
type Category []Bucket

// Select returns the variants of the first bucket whose key matches one of
// keys, trying keys in order. Without a match it falls back to the first
// bucket defined.
func (c Category) Select(keys ...string) []string {
	for _, key := range keys {
		for _, b := range c {
			if b.Key == key {
				return b.Variants
			}
		}
	}
	if len(c) == 0 {
		return nil
	}
	return c[0].Variants
}

// Cues are the word lists the contextual generator matches on.
type Cues struct {
	Questions   []string `yaml:"questions"`
	FirstPerson []string `yaml:"first_person"`
	Problems    []string `yaml:"problems"`
}

// Templates is the full reply table.
type Templates struct {
	Greeting      Category          `yaml:"greeting"`
	GameRequest   Category          `yaml:"game_request"`
	MediaRequest  Category          `yaml:"media_request"`
	Empathy       Category          `yaml:"empathy"`
	Progress      Category          `yaml:"progress"`
	Question      Category          `yaml:"question"`
	Statement     Category          `yaml:"statement"`
	Problem       Category          `yaml:"problem"`
	Generic       Category          `yaml:"generic"`
	Recap         string            `yaml:"recap"`
	Help          map[string]string `yaml:"help"`
	Encouragement map[string]string `yaml:"encouragement"`
	Cues          Cues              `yaml:"cues"`
}

//go:embed templates.yaml
var defaultTemplates []byte

var loadDefaultTemplates = sync.OnceValues(func() (*Templates, error) {
	return ParseTemplates(defaultTemplates)
})

// DefaultTemplates returns the built-in templates.
func DefaultTemplates() *Templates {
	t, err := loadDefaultTemplates()
	if err != nil {
		panic(fmt.Sprintf("reply: embedded templates are invalid: %v", err))
	}
	return t
}

// ParseTemplates decodes and validates a template document.
func ParseTemplates(data []byte) (*Templates, error) {
	t := &Templates{}
	if err := yaml.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("decode templates: %w", err)
	}
	categories := map[string]Category{
		"greeting":      t.Greeting,
		"game_request":  t.GameRequest,
		"media_request": t.MediaRequest,
		"empathy":       t.Empathy,
		"progress":      t.Progress,
		"question":      t.Question,
		"statement":     t.Statement,
		"problem":       t.Problem,
		"generic":       t.Generic,
	}
	for name, c := range categories {
		if len(c) == 0 {
			return nil, fmt.Errorf("%w: category %q is empty", ErrInvalidTemplates, name)
		}
		for _, b := range c {
			if len(b.Variants) == 0 {
				return nil, fmt.Errorf("%w: bucket %s/%s has no variants", ErrInvalidTemplates, name, b.Key)
			}
		}
	}
	return t, nil
}
