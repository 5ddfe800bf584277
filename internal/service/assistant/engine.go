package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/rapport/backend/internal/analysis/emotion"
	"github.com/zhouzirui/rapport/backend/internal/analysis/intent"
	"github.com/zhouzirui/rapport/backend/internal/lexicon"
	"github.com/zhouzirui/rapport/backend/internal/logging"
	"github.com/zhouzirui/rapport/backend/internal/metrics"
	"github.com/zhouzirui/rapport/backend/internal/model/chat"
	"github.com/zhouzirui/rapport/backend/internal/model/persona"
	"github.com/zhouzirui/rapport/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/rapport/backend/internal/service/chat"
	"github.com/zhouzirui/rapport/backend/internal/service/reply"
)

// ErrEmptyMessage is reported for blank input.
var ErrEmptyMessage = errors.New("message is empty")

// Status tells whether a Result carries a real reply.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// ErrorKind classifies a failed Result.
type ErrorKind string

const (
	ErrorInput    ErrorKind = "input"
	ErrorAnalysis ErrorKind = "analysis"
)

// 降级结果使用的固定取值。
const (
	inputErrorConfidence    = 0.1
	analysisErrorConfidence = 0.5

	inputErrorReply    = "I didn't catch anything there. What would you like to talk about?"
	analysisErrorReply = "Sorry, I lost my train of thought for a moment. Could you say that again?"
)

// Source names where a reply came from.
const (
	SourceTemplate = "template"
	SourceAI       = "ai"
)

// EmotionView is the emotion part of a Result.
type EmotionView struct {
	Primary    lexicon.Emotion `json:"primary"`
	Intensity  float64         `json:"intensity"`
	Confidence float64         `json:"confidence"`
}

// ContextView is the conversation part of a Result.
type ContextView struct {
	TurnCount         int    `json:"turn_count"`
	CurrentTopic      string `json:"current_topic"`
	UserConversations int    `json:"user_conversations"`
}

// Metadata describes how a Result was produced.
type Metadata struct {
	Timestamp        time.Time `json:"timestamp"`
	SessionID        string    `json:"session_id"`
	UserID           string    `json:"user_id"`
	MessageID        string    `json:"message_id,omitempty"`
	Persona          string    `json:"persona"`
	Source           string    `json:"source,omitempty"`
	ActiveTraits     []string  `json:"active_traits,omitempty"`
	SuggestedActions []string  `json:"suggested_actions,omitempty"`
	ProcessingMillis float64   `json:"processing_ms"`
}

// Result is the outcome of processing one message. It is always well formed,
// even when Status is StatusError.
type Result struct {
	Content    string         `json:"content"`
	Intent     lexicon.Intent `json:"intent"`
	Confidence float64        `json:"confidence"`
	Emotion    EmotionView    `json:"emotion"`
	Context    ContextView    `json:"context"`
	Metadata   Metadata       `json:"metadata"`
	Status     Status         `json:"status"`
	ErrorKind  ErrorKind      `json:"error_kind,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Responder is an optional external reply source.
type Responder interface {
	Respond(ctx context.Context, brief ai.Brief) (string, error)
}

// Options wires the engine's collaborators. Nil fields get in-memory defaults.
type Options struct {
	Lexicon   *lexicon.Lexicon
	Store     *chatservice.Service
	Analyzer  *emotion.Analyzer
	Composer  *reply.Composer
	Responder Responder
	Metrics   *metrics.Metrics
	Logger    logrus.FieldLogger
	Clock     func() time.Time
}

// Engine runs the per-message pipeline: analyse, classify, update state,
// compose.
type Engine struct {
	lex        *lexicon.Lexicon
	store      *chatservice.Service
	analyzer   *emotion.Analyzer
	classifier *intent.Classifier
	composer   *reply.Composer
	responder  Responder
	metrics    *metrics.Metrics
	log        logrus.FieldLogger
	now        func() time.Time
	sessions   *keyedMutex
	started    time.Time
}

// New creates an engine.
func New(opts Options) *Engine {
	lex := opts.Lexicon
	if lex == nil {
		lex = lexicon.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	analyzer := opts.Analyzer
	if analyzer == nil {
		analyzer = emotion.NewAnalyzer(lex, emotion.WithLogger(opts.Logger), emotion.WithClock(clock))
	}
	store := opts.Store
	if store == nil {
		store = chatservice.NewService(nil, chatservice.Options{
			Preferences: lex.Preferences,
			Logger:      opts.Logger,
			Metrics:     opts.Metrics,
			Clock:       clock,
			OnForget:    analyzer.Memory().Forget,
		})
	}
	composer := opts.Composer
	if composer == nil {
		composer = reply.NewComposer(lex, persona.Resolve(persona.NewMemoryStore(persona.Seed()), persona.DefaultID))
	}

	return &Engine{
		lex:        lex,
		store:      store,
		analyzer:   analyzer,
		classifier: intent.NewClassifier(lex),
		composer:   composer,
		responder:  opts.Responder,
		metrics:    opts.Metrics,
		log:        logging.Component(opts.Logger, "engine"),
		now:        clock,
		sessions:   newKeyedMutex(),
		started:    clock(),
	}
}

// Store exposes the profile and context store.
func (e *Engine) Store() *chatservice.Service { return e.store }

// Process handles one message from userID in sessionID. It never fails:
// problems are reported through Result.Status and Result.ErrorKind.
func (e *Engine) Process(ctx context.Context, message, userID, sessionID string) (result Result) {
	start := e.now()
	userID = strings.TrimSpace(userID)
	if userID == "" {
		userID = chat.DefaultUser
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		sessionID = chat.DefaultSession
	}

	defer func() {
		result.Metadata.ProcessingMillis = float64(e.now().Sub(start).Microseconds()) / 1000
		e.metrics.ObserveMessage(string(result.Intent), string(result.Emotion.Primary), string(result.Status), e.now().Sub(start))
	}()

	if strings.TrimSpace(message) == "" {
		e.metrics.Fallback(string(ErrorInput))
		return e.inputError(userID, sessionID, start)
	}

	unlock := e.sessions.Lock(userID + "\x00" + sessionID)
	defer unlock()

	defer func() {
		if r := recover(); r != nil {
			e.log.WithFields(logrus.Fields{
				"user_id":    userID,
				"session_id": sessionID,
				"panic":      r,
			}).Error("message processing failed, returning neutral fallback")
			e.metrics.Fallback(string(ErrorAnalysis))
			result = e.analysisError(userID, sessionID, start, fmt.Errorf("%v", r))
		}
	}()

	return e.process(ctx, message, userID, sessionID, start)
}

func (e *Engine) process(ctx context.Context, message, userID, sessionID string, start time.Time) Result {
	conv, _ := e.store.PeekContext(userID, sessionID)

	state := e.analyzer.Analyze(ctx, message, userID)
	verdict := e.classifier.Classify(lexicon.Normalize(message), &conv)

	snap := e.store.UpdateContext(ctx, chatservice.Update{
		UserID:    userID,
		SessionID: sessionID,
		Message:   message,
		Intent:    verdict.Intent,
		Emotion:   state,
	})

	content, source := e.reply(ctx, message, verdict.Intent, state, snap)
	e.store.RememberReply(ctx, userID, snap.MessageID, content)

	e.log.WithFields(logrus.Fields{
		"user_id": userID,
		"intent":  verdict.Intent,
		"emotion": state.Primary,
		"turn":    snap.Context.TurnCount,
		"source":  source,
	}).Debug("message processed")

	return Result{
		Content:    content,
		Intent:     verdict.Intent,
		Confidence: verdict.Confidence,
		Emotion:    viewOf(state),
		Context: ContextView{
			TurnCount:         snap.Context.TurnCount,
			CurrentTopic:      snap.Context.CurrentTopic,
			UserConversations: snap.Profile.ConversationCount,
		},
		Metadata: Metadata{
			Timestamp:        start,
			SessionID:        sessionID,
			UserID:           userID,
			MessageID:        snap.MessageID,
			Persona:          e.composer.Persona().ID,
			Source:           source,
			ActiveTraits:     activeTraits(verdict.Intent, state.Primary),
			SuggestedActions: actionsFor(verdict.Intent),
		},
		Status: StatusSuccess,
	}
}

// reply asks the external responder first, when configured, and falls back
// to the template composer.
func (e *Engine) reply(ctx context.Context, message string, in lexicon.Intent, state chat.EmotionalState, snap chatservice.Snapshot) (string, string) {
	if e.responder != nil {
		content, err := e.respond(ctx, message, in, state, snap)
		if err == nil {
			return content, SourceAI
		}
		e.log.WithError(err).Warn("AI responder failed, using templates")
		e.metrics.Fallback(SourceAI)
	}

	return e.composer.Compose(reply.Input{
		Message: message,
		Intent:  in,
		Emotion: state,
		Context: snap.Context,
		Profile: snap.Profile,
	}), SourceTemplate
}

func (e *Engine) respond(ctx context.Context, message string, in lexicon.Intent, state chat.EmotionalState, snap chatservice.Snapshot) (string, error) {
	personalized, err := e.store.PersonalizedContext(ctx, snap.Profile.UserID)
	if err != nil {
		return "", err
	}
	// The current message is already the last history entry.
	history := snap.Profile.History
	if n := len(history); n > 0 {
		history = history[:n-1]
	}
	return e.responder.Respond(ctx, ai.Brief{
		Persona:      e.composer.Persona(),
		Message:      message,
		Intent:       in,
		Emotion:      state,
		Personalized: personalized,
		History:      history,
	})
}

func (e *Engine) inputError(userID, sessionID string, at time.Time) Result {
	conv, ok := e.store.PeekContext(userID, sessionID)
	if !ok {
		conv = *chat.NewContext(userID, sessionID, at)
	}
	res := e.errorResult(userID, sessionID, at, conv, ErrorInput, ErrEmptyMessage)
	res.Content = inputErrorReply
	res.Confidence = inputErrorConfidence
	return res
}

func (e *Engine) analysisError(userID, sessionID string, at time.Time, cause error) Result {
	conv, ok := e.store.PeekContext(userID, sessionID)
	if !ok {
		conv = *chat.NewContext(userID, sessionID, at)
	}
	res := e.errorResult(userID, sessionID, at, conv, ErrorAnalysis, cause)
	res.Content = analysisErrorReply
	res.Confidence = analysisErrorConfidence
	return res
}

func (e *Engine) errorResult(userID, sessionID string, at time.Time, conv chat.Context, kind ErrorKind, cause error) Result {
	return Result{
		Intent:  lexicon.Error,
		Emotion: viewOf(chat.NeutralState(at)),
		Context: ContextView{
			TurnCount:    conv.TurnCount,
			CurrentTopic: conv.CurrentTopic,
		},
		Metadata: Metadata{
			Timestamp: at,
			SessionID: sessionID,
			UserID:    userID,
			Persona:   e.composer.Persona().ID,
		},
		Status:    StatusError,
		ErrorKind: kind,
		Error:     cause.Error(),
	}
}

func viewOf(s chat.EmotionalState) EmotionView {
	return EmotionView{Primary: s.Primary, Intensity: s.Intensity, Confidence: s.Confidence}
}
