package chat

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/zhouzirui/rapport/backend/internal/lexicon"
	"github.com/zhouzirui/rapport/backend/internal/logging"
	"github.com/zhouzirui/rapport/backend/internal/metrics"
	"github.com/zhouzirui/rapport/backend/internal/model/chat"
	"github.com/zhouzirui/rapport/backend/internal/model/profile"
)

// ErrUserNotFound is returned when neither memory nor the durable store
// knows the user.
var ErrUserNotFound = errors.New("user not found")

// 默认容量策略。
const (
	DefaultMaxUsers     = 1000
	DefaultRetainUsers  = 800
	DefaultHistoryLimit = 100
	DefaultTimeout      = 2 * time.Second
)

// Options tunes the Service. Zero values take the defaults above.
type Options struct {
	MaxUsers     int
	RetainUsers  int
	HistoryLimit int
	// Timeout bounds every durable-store call.
	Timeout time.Duration
	// Preferences are the patterns used to learn user preferences.
	Preferences []lexicon.PreferencePattern
	Logger      logrus.FieldLogger
	Metrics     *metrics.Metrics
	Clock       func() time.Time
	// OnForget is called with the ids of users dropped from memory, by
	// eviction or deletion.
	OnForget func(userIDs ...string)
}

// Service owns every user Profile and conversation Context. It is the
// single source of truth: callers only ever receive copies.
type Service struct {
	durable profile.Store
	opts    Options
	log     logrus.FieldLogger

	mu    sync.Mutex
	users map[string]*userState
	group singleflight.Group
}

// userState is everything held in memory for one user. mu serializes all
// reads and writes for the user, including the durable write-through.
type userState struct {
	mu       sync.Mutex
	profile  *profile.Profile
	contexts map[string]*chat.Context
	// synced is false while the durable record could not be read; writes
	// are held back until it can, so a fresh profile never overwrites it.
	synced bool
	last   atomic.Int64
	// pins counts requests working on this state. Guarded by Service.mu;
	// a pinned user is never evicted.
	pins int
}

func (u *userState) touch(t time.Time) { u.last.Store(t.UnixNano()) }

// Update describes one analysed turn.
type Update struct {
	UserID    string
	SessionID string
	Message   string
	Intent    lexicon.Intent
	Emotion   chat.EmotionalState
}

// Snapshot is the state right after an update.
type Snapshot struct {
	MessageID string
	Context   chat.Context
	Profile   *profile.Profile
}

// NewService creates a Service backed by durable. A nil durable store means
// memory only.
func NewService(durable profile.Store, opts Options) *Service {
	if durable == nil {
		durable = profile.NewMemoryStore()
	}
	if opts.MaxUsers <= 0 {
		opts.MaxUsers = DefaultMaxUsers
	}
	if opts.RetainUsers <= 0 || opts.RetainUsers >= opts.MaxUsers {
		opts.RetainUsers = opts.MaxUsers * DefaultRetainUsers / DefaultMaxUsers
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Service{
		durable: durable,
		opts:    opts,
		log:     logging.Component(opts.Logger, "store"),
		users:   make(map[string]*userState),
	}
}

// Backend names the durable store.
func (s *Service) Backend() string { return s.durable.Name() }

// GetOrCreateProfile returns a copy of the user's profile, loading it from
// the durable store or creating and writing a fresh one on first sight.
// Concurrent first requests for the same user share one construction.
func (s *Service) GetOrCreateProfile(ctx context.Context, userID string) *profile.Profile {
	u, release := s.acquire(ctx, userID)
	defer release()
	s.sync(ctx, userID, u)
	return u.profile.Clone()
}

// PeekContext returns a copy of the session's context without creating it.
func (s *Service) PeekContext(userID, sessionID string) (chat.Context, bool) {
	if sessionID == "" {
		sessionID = chat.DefaultSession
	}
	s.mu.Lock()
	u, ok := s.users[userID]
	s.mu.Unlock()
	if !ok {
		return chat.Context{}, false
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	conv, ok := u.contexts[sessionID]
	if !ok {
		return chat.Context{}, false
	}
	return conv.Clone(), true
}

// UpdateContext records one turn in the session context, folds it into the
// user's profile and writes the profile through before returning. A store
// outage is logged and the update is kept in memory only.
func (s *Service) UpdateContext(ctx context.Context, upd Update) Snapshot {
	if upd.SessionID == "" {
		upd.SessionID = chat.DefaultSession
	}
	u, release := s.acquire(ctx, upd.UserID)
	defer release()
	now := s.opts.Clock()
	s.sync(ctx, upd.UserID, u)

	conv, ok := u.contexts[upd.SessionID]
	if !ok {
		conv = chat.NewContext(upd.UserID, upd.SessionID, now)
		u.contexts[upd.SessionID] = conv
	}
	conv.Record(upd.Intent, upd.Emotion, now)

	p := u.profile
	p.ConversationCount++
	p.AddTopic(string(upd.Intent))
	p.ObserveEmotion(upd.Emotion.Primary, upd.Emotion.Intensity)
	learned := p.Learn(lexicon.Normalize(upd.Message), s.opts.Preferences, upd.Intent, now)
	p.Tally(upd.Emotion.Primary, upd.Intent)
	p.CommunicationStyle = profile.StyleFor(conv.TurnCount, upd.Emotion.Primary, upd.Emotion.Intensity)

	msg := chat.Message{
		ID:        uuid.NewString(),
		Content:   upd.Message,
		Intent:    upd.Intent,
		Emotion:   upd.Emotion.Primary,
		Topics:    append([]string{string(upd.Intent)}, learned...),
		CreatedAt: now,
	}
	p.Remember(msg, s.opts.HistoryLimit)
	p.LastInteraction = now
	u.touch(now)

	s.writeThrough(ctx, upd.UserID, u)

	return Snapshot{MessageID: msg.ID, Context: conv.Clone(), Profile: p.Clone()}
}

// RememberReply attaches the composed reply to a history entry. It is best
// effort: an unknown user or message is ignored.
func (s *Service) RememberReply(ctx context.Context, userID, messageID, reply string) {
	s.mu.Lock()
	u, ok := s.users[userID]
	s.mu.Unlock()
	if !ok {
		return
	}
	release, ok := s.lockCanonical(userID, u)
	if !ok {
		return
	}
	defer release()

	history := u.profile.History
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].ID == messageID {
			history[i].Response = reply
			s.writeThrough(ctx, userID, u)
			return
		}
	}
}

// acquire returns the canonical state for userID, locked and pinned. The
// returned func unlocks and unpins it.
func (s *Service) acquire(ctx context.Context, userID string) (*userState, func()) {
	for {
		u := s.user(ctx, userID)
		if release, ok := s.lockCanonical(userID, u); ok {
			return u, release
		}
	}
}

// lockCanonical pins and locks u, then confirms it is still the state held
// for userID. It fails when u was evicted or deleted before it could be
// pinned, or deleted while waiting for the lock.
func (s *Service) lockCanonical(userID string, u *userState) (func(), bool) {
	s.mu.Lock()
	if s.users[userID] != u {
		s.mu.Unlock()
		return nil, false
	}
	u.pins++
	s.mu.Unlock()

	u.mu.Lock()
	release := func() {
		u.mu.Unlock()
		s.mu.Lock()
		u.pins--
		s.mu.Unlock()
	}

	s.mu.Lock()
	current := s.users[userID] == u
	s.mu.Unlock()
	if !current {
		release()
		return nil, false
	}
	return release, true
}

// user returns the in-memory state for userID, admitting it on first sight.
func (s *Service) user(ctx context.Context, userID string) *userState {
	s.mu.Lock()
	u, ok := s.users[userID]
	s.mu.Unlock()
	if ok {
		return u
	}

	v, _, _ := s.group.Do(userID, func() (any, error) {
		s.mu.Lock()
		if u, ok := s.users[userID]; ok {
			s.mu.Unlock()
			return u, nil
		}
		s.mu.Unlock()

		u := &userState{contexts: make(map[string]*chat.Context)}
		now := s.opts.Clock()
		u.profile = profile.New(userID, now)
		s.sync(ctx, userID, u)
		u.touch(u.profile.LastInteraction)

		s.mu.Lock()
		s.admit(userID, u)
		s.mu.Unlock()
		return u, nil
	})
	return v.(*userState)
}

// sync reconciles u with the durable record. Must be called with u.mu held
// (or before u is visible to other goroutines).
func (s *Service) sync(ctx context.Context, userID string, u *userState) {
	if u.synced {
		return
	}
	stored, err := s.load(ctx, userID)
	switch {
	case err == nil:
		u.profile = stored
		u.synced = true
	case errors.Is(err, profile.ErrNotFound):
		u.synced = true
		s.writeThrough(ctx, userID, u)
	default:
		s.opts.Metrics.StoreFailure("get")
		s.log.WithError(err).WithField("user_id", userID).Warn("profile store unavailable, serving from memory")
	}
}

func (s *Service) load(ctx context.Context, userID string) (*profile.Profile, error) {
	ctx, cancel := s.durableContext(ctx)
	defer cancel()
	return s.durable.Get(ctx, userID)
}

// writeThrough persists u's profile. Failures are logged and left for the
// next write to repair.
func (s *Service) writeThrough(ctx context.Context, userID string, u *userState) {
	if !u.synced {
		return
	}
	ctx, cancel := s.durableContext(ctx)
	defer cancel()
	if err := s.durable.Put(ctx, userID, u.profile); err != nil {
		s.opts.Metrics.StoreFailure("put")
		s.log.WithError(err).WithField("user_id", userID).Warn("profile write-through failed, keeping memory-only state")
	}
}

// durableContext detaches from the caller's cancellation so a dropped
// request cannot leave a half-finished write, and applies the store timeout.
func (s *Service) durableContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.opts.Timeout)
}

// admit inserts u, evicting the least recently active users first when the
// store is full. Users with a request in flight are skipped. Must be called
// with s.mu held.
func (s *Service) admit(userID string, u *userState) {
	if len(s.users) >= s.opts.MaxUsers {
		evicted := s.evictLocked()
		if len(evicted) > 0 {
			s.opts.Metrics.Evicted(len(evicted))
			s.log.WithField("evicted", len(evicted)).Info("user capacity reached, evicted least recently active users")
			if s.opts.OnForget != nil {
				s.opts.OnForget(evicted...)
			}
		}
	}
	s.users[userID] = u
	s.opts.Metrics.SetTrackedUsers(len(s.users))
}

func (s *Service) evictLocked() []string {
	type entry struct {
		id   string
		last int64
	}
	entries := make([]entry, 0, len(s.users))
	pinned := 0
	for id, u := range s.users {
		if u.pins > 0 {
			pinned++
			continue
		}
		entries = append(entries, entry{id: id, last: u.last.Load()})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].last != entries[j].last {
			return entries[i].last < entries[j].last
		}
		return entries[i].id < entries[j].id
	})

	drop := len(entries) + pinned - s.opts.RetainUsers
	if drop > len(entries) {
		drop = len(entries)
	}
	if drop <= 0 {
		return nil
	}
	evicted := make([]string, 0, drop)
	for _, e := range entries[:drop] {
		delete(s.users, e.id)
		evicted = append(evicted, e.id)
	}
	return evicted
}

// TrackedUsers reports how many users are held in memory.
func (s *Service) TrackedUsers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// ActiveSessions reports how many session contexts are held in memory.
func (s *Service) ActiveSessions() int {
	total := 0
	for _, u := range s.snapshotUsers() {
		u.mu.Lock()
		total += len(u.contexts)
		u.mu.Unlock()
	}
	return total
}

func (s *Service) snapshotUsers() map[string]*userState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*userState, len(s.users))
	for id, u := range s.users {
		out[id] = u
	}
	return out
}
