package profile

import (
	"sort"
	"time"

	"github.com/zhouzirui/rapport/backend/internal/lexicon"
	"github.com/zhouzirui/rapport/backend/internal/model/chat"
)

// Style is the communication register inferred for a user.
type Style string

const (
	StyleFriendly     Style = "friendly"
	StyleProfessional Style = "professional"
	StyleExcited      Style = "excited"
)

const (
	// PatternDecay is the weight kept from the previous emotional-pattern value.
	PatternDecay = 0.8
	// PreferenceSeed is the confidence of a freshly learned preference.
	PreferenceSeed = 0.6
	// PreferenceStep is added each time a preference is observed again.
	PreferenceStep = 0.1
	// TraitThreshold is the number of conversations needed before traits are derived.
	TraitThreshold = 5
)

// StyleFor picks the reply register for a turn.
func StyleFor(turnCount int, emotion lexicon.Emotion, intensity float64) Style {
	if turnCount > 5 {
		return StyleProfessional
	}
	if emotion == lexicon.Excited || intensity > 0.7 {
		return StyleExcited
	}
	return StyleProfessional
}

// Preference is something learned about the user from their own words.
type Preference struct {
	Category    string         `json:"category"`
	Preference  string         `json:"preference"`
	Confidence  float64        `json:"confidence"`
	LearnedFrom lexicon.Intent `json:"learnedFrom"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Insights tallies what a user tends to feel and ask for.
type Insights struct {
	Emotions map[lexicon.Emotion]int `json:"emotions"`
	Intents  map[lexicon.Intent]int  `json:"intents"`
	Traits   []string                `json:"traits,omitempty"`
}

// Profile is the durable, user-scoped learned state.
type Profile struct {
	UserID             string                      `json:"userId"`
	CommunicationStyle Style                       `json:"communicationStyle"`
	PreferredTopics    []string                    `json:"preferredTopics"`
	EmotionalPatterns  map[lexicon.Emotion]float64 `json:"emotionalPatterns"`
	ConversationCount  int                         `json:"conversationCount"`
	Preferences        []Preference                `json:"preferences"`
	History            []chat.Message              `json:"history"`
	Insights           Insights                    `json:"insights"`
	FirstInteraction   time.Time                   `json:"firstInteraction"`
	LastInteraction    time.Time                   `json:"lastInteraction"`
}

// New returns a fully populated profile for a user seen for the first time.
func New(userID string, now time.Time) *Profile {
	return &Profile{
		UserID:             userID,
		CommunicationStyle: StyleFriendly,
		PreferredTopics:    []string{},
		EmotionalPatterns:  map[lexicon.Emotion]float64{},
		Preferences:        []Preference{},
		History:            []chat.Message{},
		Insights: Insights{
			Emotions: map[lexicon.Emotion]int{},
			Intents:  map[lexicon.Intent]int{},
		},
		FirstInteraction: now,
		LastInteraction:  now,
	}
}

// Normalize fills collections a decoded record may be missing so callers
// never observe nil maps.
func (p *Profile) Normalize() {
	if p.CommunicationStyle == "" {
		p.CommunicationStyle = StyleFriendly
	}
	if p.PreferredTopics == nil {
		p.PreferredTopics = []string{}
	}
	if p.EmotionalPatterns == nil {
		p.EmotionalPatterns = map[lexicon.Emotion]float64{}
	}
	if p.Preferences == nil {
		p.Preferences = []Preference{}
	}
	if p.History == nil {
		p.History = []chat.Message{}
	}
	if p.Insights.Emotions == nil {
		p.Insights.Emotions = map[lexicon.Emotion]int{}
	}
	if p.Insights.Intents == nil {
		p.Insights.Intents = map[lexicon.Intent]int{}
	}
}

// ObserveEmotion folds a new intensity into the emotion's moving average.
func (p *Profile) ObserveEmotion(emotion lexicon.Emotion, intensity float64) float64 {
	intensity = clamp01(intensity)
	next := intensity
	if old, ok := p.EmotionalPatterns[emotion]; ok {
		next = old*PatternDecay + intensity*(1-PatternDecay)
	}
	p.EmotionalPatterns[emotion] = clamp01(next)
	return p.EmotionalPatterns[emotion]
}

// AddTopic records topic once, keeping first-seen order.
func (p *Profile) AddTopic(topic string) bool {
	if topic == "" {
		return false
	}
	for _, existing := range p.PreferredTopics {
		if existing == topic {
			return false
		}
	}
	p.PreferredTopics = append(p.PreferredTopics, topic)
	return true
}

// Learn strengthens or adds preferences for every pattern keyword found in
// text and returns the matched keywords.
func (p *Profile) Learn(text lexicon.Text, patterns []lexicon.PreferencePattern, intent lexicon.Intent, now time.Time) []string {
	var matched []string
	for _, pattern := range patterns {
		for _, keyword := range text.Matches(pattern.Keywords) {
			matched = append(matched, keyword)
			p.strengthen(pattern.Category, keyword, intent, now)
		}
	}
	return matched
}

func (p *Profile) strengthen(category, keyword string, intent lexicon.Intent, now time.Time) {
	for i := range p.Preferences {
		pref := &p.Preferences[i]
		if pref.Category == category && pref.Preference == keyword {
			pref.Confidence = clamp01(pref.Confidence + PreferenceStep)
			return
		}
	}
	p.Preferences = append(p.Preferences, Preference{
		Category:    category,
		Preference:  keyword,
		Confidence:  PreferenceSeed,
		LearnedFrom: intent,
		Timestamp:   now,
	})
}

// Remember appends a history entry, dropping the oldest past limit.
func (p *Profile) Remember(msg chat.Message, limit int) {
	p.History = append(p.History, msg)
	if limit > 0 && len(p.History) > limit {
		p.History = append([]chat.Message(nil), p.History[len(p.History)-limit:]...)
	}
}

// Tally counts the turn in the insights and re-derives traits once enough
// conversations have been seen.
func (p *Profile) Tally(emotion lexicon.Emotion, intent lexicon.Intent) {
	p.Insights.Emotions[emotion]++
	p.Insights.Intents[intent]++
	if p.ConversationCount >= TraitThreshold {
		p.Insights.Traits = deriveTraits(p.Insights, p.ConversationCount)
	}
}

func deriveTraits(in Insights, total int) []string {
	ratio := func(n int) float64 { return float64(n) / float64(total) }

	traits := []string{}
	if ratio(in.Emotions[lexicon.Excited]) > 0.3 {
		traits = append(traits, "enthusiastic")
	}
	if ratio(in.Emotions[lexicon.Curious]) > 0.2 {
		traits = append(traits, "inquisitive")
	}
	if ratio(in.Emotions[lexicon.Creative]) > 0.2 {
		traits = append(traits, "creative")
	}
	if ratio(in.Intents[lexicon.GameRequest]) > 0.3 {
		traits = append(traits, "game_oriented")
	}
	if ratio(in.Intents[lexicon.MediaRequest]) > 0.3 {
		traits = append(traits, "visually_creative")
	}
	if ratio(in.Intents[lexicon.HelpRequest]) > 0.4 {
		traits = append(traits, "collaborative")
	}
	return traits
}

// TopPreferences returns up to n preferences by descending confidence.
// Ties keep learning order.
func (p *Profile) TopPreferences(n int) []Preference {
	sorted := append([]Preference(nil), p.Preferences...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// Clone returns a deep copy.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	out := *p
	out.PreferredTopics = append([]string{}, p.PreferredTopics...)
	out.EmotionalPatterns = make(map[lexicon.Emotion]float64, len(p.EmotionalPatterns))
	for k, v := range p.EmotionalPatterns {
		out.EmotionalPatterns[k] = v
	}
	out.Preferences = append([]Preference{}, p.Preferences...)
	out.History = make([]chat.Message, len(p.History))
	for i, msg := range p.History {
		msg.Topics = append([]string(nil), msg.Topics...)
		out.History[i] = msg
	}
	out.Insights = Insights{
		Emotions: make(map[lexicon.Emotion]int, len(p.Insights.Emotions)),
		Intents:  make(map[lexicon.Intent]int, len(p.Insights.Intents)),
		Traits:   append([]string(nil), p.Insights.Traits...),
	}
	for k, v := range p.Insights.Emotions {
		out.Insights.Emotions[k] = v
	}
	for k, v := range p.Insights.Intents {
		out.Insights.Intents[k] = v
	}
	return &out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
