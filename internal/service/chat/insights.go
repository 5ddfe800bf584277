package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/zhouzirui/rapport/backend/internal/lexicon"
	"github.com/zhouzirui/rapport/backend/internal/model/chat"
	"github.com/zhouzirui/rapport/backend/internal/model/profile"
)

const (
	personalizedTopics      = 5
	personalizedPreferences = 5
	// DefaultRecentConversations is used when RecentConversation is asked for n <= 0.
	DefaultRecentConversations = 3
	statsTopPreferences        = 10
)

// Personalized summarizes a user for reply generation.
type Personalized struct {
	IsNewUser          bool                `json:"isNewUser"`
	InteractionCount   int                 `json:"interactionCount"`
	CommunicationStyle profile.Style       `json:"communicationStyle,omitempty"`
	FavoriteTopics     []string            `json:"favoriteTopics"`
	RecentTopics       []string            `json:"recentTopics"`
	Preferences        map[string][]string `json:"preferences"`
	Traits             []string            `json:"personalityTraits"`
	LastEmotion        lexicon.Emotion     `json:"lastEmotion"`
	LastIntent         lexicon.Intent      `json:"lastIntent"`
}

// PreferenceCount is how many tracked users share one preference.
type PreferenceCount struct {
	Key   string `json:"preference"`
	Users int    `json:"users"`
}

// Stats aggregates the users currently held in memory.
type Stats struct {
	TotalUsers           int               `json:"totalUsers"`
	ActiveSessions       int               `json:"activeSessions"`
	TotalConversations   int               `json:"totalConversations"`
	TotalPreferences     int               `json:"totalPreferences"`
	AverageConversations float64           `json:"averageConversationsPerUser"`
	TopPreferences       []PreferenceCount `json:"topPreferences"`
	Backend              string            `json:"backend"`
	// StoredProfiles counts durable records, including users evicted from
	// memory. Nil when the backend cannot count or is unreachable.
	StoredProfiles *int `json:"storedProfiles,omitempty"`
}

// ExportProfile returns a copy of everything known about the user.
func (s *Service) ExportProfile(ctx context.Context, userID string) (*profile.Profile, error) {
	return s.lookup(ctx, userID)
}

// PersonalizedContext summarizes the user's profile. Unknown users are
// reported as new rather than as an error.
func (s *Service) PersonalizedContext(ctx context.Context, userID string) (Personalized, error) {
	p, err := s.lookup(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return Personalized{IsNewUser: true, LastEmotion: lexicon.Neutral, LastIntent: lexicon.Chat}, nil
	}
	if err != nil {
		return Personalized{}, err
	}

	out := Personalized{
		InteractionCount:   p.ConversationCount,
		CommunicationStyle: p.CommunicationStyle,
		FavoriteTopics:     head(p.PreferredTopics, personalizedTopics),
		RecentTopics:       recentTopics(p.History, personalizedTopics),
		Preferences:        map[string][]string{},
		Traits:             append([]string{}, p.Insights.Traits...),
		LastEmotion:        lexicon.Neutral,
		LastIntent:         lexicon.Chat,
	}
	for _, pref := range p.TopPreferences(personalizedPreferences) {
		out.Preferences[pref.Category] = append(out.Preferences[pref.Category], pref.Preference)
	}
	if n := len(p.History); n > 0 {
		out.LastEmotion = p.History[n-1].Emotion
		out.LastIntent = p.History[n-1].Intent
	}
	return out, nil
}

// RecentConversation returns the user's last n history entries, oldest first.
func (s *Service) RecentConversation(ctx context.Context, userID string, n int) ([]chat.Message, error) {
	if n <= 0 {
		n = DefaultRecentConversations
	}
	p, err := s.lookup(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(p.History) > n {
		return p.History[len(p.History)-n:], nil
	}
	return p.History, nil
}

// DeleteUser forgets the user everywhere: memory, contexts and the
// durable record.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	u, inMemory := s.users[userID]
	delete(s.users, userID)
	s.opts.Metrics.SetTrackedUsers(len(s.users))
	s.mu.Unlock()

	if inMemory {
		// Let any in-flight update finish before the record is removed.
		u.mu.Lock()
		u.synced = false
		u.mu.Unlock()
	} else if _, err := s.load(ctx, userID); err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("look up %s: %w", userID, err)
	}

	if s.opts.OnForget != nil {
		s.opts.OnForget(userID)
	}

	dctx, cancel := s.durableContext(ctx)
	defer cancel()
	if err := s.durable.Delete(dctx, userID); err != nil {
		s.opts.Metrics.StoreFailure("delete")
		return fmt.Errorf("delete %s: %w", userID, err)
	}
	return nil
}

// Stats aggregates the users held in memory and, when the backend supports
// it, the number of durable records.
func (s *Service) Stats(ctx context.Context) Stats {
	users := s.snapshotUsers()
	out := Stats{TotalUsers: len(users), Backend: s.Backend(), TopPreferences: []PreferenceCount{}}
	out.StoredProfiles = s.storedProfiles(ctx)

	counts := map[string]int{}
	for _, u := range users {
		u.mu.Lock()
		out.ActiveSessions += len(u.contexts)
		out.TotalConversations += len(u.profile.History)
		out.TotalPreferences += len(u.profile.Preferences)
		for _, pref := range u.profile.Preferences {
			counts[pref.Category+":"+pref.Preference]++
		}
		u.mu.Unlock()
	}
	if out.TotalUsers > 0 {
		out.AverageConversations = float64(out.TotalConversations) / float64(out.TotalUsers)
	}

	for key, n := range counts {
		out.TopPreferences = append(out.TopPreferences, PreferenceCount{Key: key, Users: n})
	}
	sort.Slice(out.TopPreferences, func(i, j int) bool {
		a, b := out.TopPreferences[i], out.TopPreferences[j]
		if a.Users != b.Users {
			return a.Users > b.Users
		}
		return a.Key < b.Key
	})
	out.TopPreferences = head(out.TopPreferences, statsTopPreferences)
	return out
}

func (s *Service) storedProfiles(ctx context.Context) *int {
	counter, ok := s.durable.(profile.Counter)
	if !ok {
		return nil
	}
	ctx, cancel := s.durableContext(ctx)
	defer cancel()
	n, err := counter.Count(ctx)
	if err != nil {
		s.opts.Metrics.StoreFailure("count")
		s.log.WithError(err).Warn("counting stored profiles failed")
		return nil
	}
	return &n
}

// lookup returns a copy of the user's profile from memory, or from the
// durable store without admitting the user.
func (s *Service) lookup(ctx context.Context, userID string) (*profile.Profile, error) {
	s.mu.Lock()
	u, ok := s.users[userID]
	s.mu.Unlock()
	if ok {
		u.mu.Lock()
		defer u.mu.Unlock()
		return u.profile.Clone(), nil
	}

	p, err := s.load(ctx, userID)
	if errors.Is(err, profile.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		s.opts.Metrics.StoreFailure("get")
		return nil, fmt.Errorf("load %s: %w", userID, err)
	}
	return p, nil
}

func recentTopics(history []chat.Message, n int) []string {
	if len(history) > n {
		history = history[len(history)-n:]
	}
	seen := map[string]bool{}
	topics := []string{}
	for _, msg := range history {
		for _, topic := range msg.Topics {
			if seen[topic] || len(topics) == n {
				continue
			}
			seen[topic] = true
			topics = append(topics, topic)
		}
	}
	return topics
}

func head[T any](items []T, n int) []T {
	if len(items) > n {
		return append([]T{}, items[:n]...)
	}
	return append([]T{}, items...)
}
