// Package app assembles the engine and its collaborators from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cloudwego/eino/components/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/rapport/backend/internal/analysis/emotion"
	"github.com/zhouzirui/rapport/backend/internal/config"
	"github.com/zhouzirui/rapport/backend/internal/lexicon"
	"github.com/zhouzirui/rapport/backend/internal/logging"
	"github.com/zhouzirui/rapport/backend/internal/metrics"
	"github.com/zhouzirui/rapport/backend/internal/model/persona"
	"github.com/zhouzirui/rapport/backend/internal/model/profile"
	"github.com/zhouzirui/rapport/backend/internal/service/ai"
	"github.com/zhouzirui/rapport/backend/internal/service/assistant"
	chatservice "github.com/zhouzirui/rapport/backend/internal/service/chat"
	"github.com/zhouzirui/rapport/backend/internal/service/reply"
	"github.com/zhouzirui/rapport/backend/internal/service/sentiment"
	"github.com/zhouzirui/rapport/backend/internal/store/redisstore"
	"github.com/zhouzirui/rapport/backend/internal/store/sqlitestore"
)

// App is a fully wired engine.
type App struct {
	Engine   *assistant.Engine
	Personas persona.Store
	Metrics  *metrics.Metrics

	closers []io.Closer
}

// Close releases the durable store.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// ChatModelFactory builds the optional LLM. It is swapped out in tests.
type ChatModelFactory func(ctx context.Context, cfg config.AIConfig) (model.BaseChatModel, error)

// ArkChatModel is the production ChatModelFactory.
func ArkChatModel(ctx context.Context, cfg config.AIConfig) (model.BaseChatModel, error) {
	return cfg.NewChatModel(ctx)
}

// Build wires an App. reg may be nil to skip metrics; newModel may be nil to
// run without an LLM.
func Build(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger, reg prometheus.Registerer, newModel ChatModelFactory) (*App, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	a := &App{Personas: persona.NewMemoryStore(persona.Seed())}
	if reg != nil {
		a.Metrics = metrics.New(reg)
	}

	lex := lexicon.Default()
	if path := cfg.Engine.LexiconPath; path != "" {
		loaded, err := lexicon.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load lexicon: %w", err)
		}
		lex = loaded
	}

	durable, err := a.openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	chatModel := a.chatModel(ctx, cfg.AI, logger, newModel)

	var polarity emotion.PolarityScorer = emotion.NewVaderPolarity()
	if cfg.AI.SentimentLLMEnabled && chatModel != nil {
		svc, err := sentiment.NewService(ctx, chatModel, polarity, sentiment.Config{Enabled: true, Timeout: cfg.AI.Timeout}, logger, a.Metrics)
		if err != nil {
			logger.WithError(err).Warn("LLM sentiment unavailable, using VADER polarity")
		} else {
			polarity = svc
		}
	}

	var responder assistant.Responder
	if cfg.AI.ResponsesEnabled && chatModel != nil {
		svc, err := ai.NewService(ctx, chatModel, cfg.AI.Timeout, logger)
		if err != nil {
			logger.WithError(err).Warn("AI responder unavailable, using templates")
		} else {
			responder = svc
		}
	}

	analyzer := emotion.NewAnalyzer(lex, emotion.WithPolarity(polarity), emotion.WithLogger(logger))

	store := chatservice.NewService(durable, chatservice.Options{
		MaxUsers:     cfg.Engine.MaxUsers,
		RetainUsers:  cfg.Engine.RetainUsers,
		HistoryLimit: cfg.Engine.HistoryLimit,
		Timeout:      cfg.Store.Timeout,
		Preferences:  lex.Preferences,
		Logger:       logger,
		Metrics:      a.Metrics,
		OnForget:     analyzer.Memory().Forget,
	})

	var composerOpts []reply.Option
	if cfg.Engine.Seed != nil {
		composerOpts = append(composerOpts, reply.WithSeed(*cfg.Engine.Seed))
	}
	voice := persona.Resolve(a.Personas, cfg.Engine.PersonaID)

	a.Engine = assistant.New(assistant.Options{
		Lexicon:   lex,
		Store:     store,
		Analyzer:  analyzer,
		Composer:  reply.NewComposer(lex, voice, composerOpts...),
		Responder: responder,
		Metrics:   a.Metrics,
		Logger:    logger,
	})
	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg config.StoreConfig) (profile.Store, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		s, err := redisstore.Open(ctx, redisstore.Config{URL: cfg.RedisURL, Prefix: cfg.RedisPrefix, TTL: cfg.RedisTTL})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s)
		return s, nil
	case config.BackendSQLite:
		s, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s)
		return s, nil
	default:
		return profile.NewMemoryStore(), nil
	}
}

func (a *App) chatModel(ctx context.Context, cfg config.AIConfig, logger logrus.FieldLogger, newModel ChatModelFactory) model.BaseChatModel {
	if newModel == nil || !(cfg.ResponsesEnabled || cfg.SentimentLLMEnabled) {
		return nil
	}
	if !cfg.Enabled() {
		logger.Info("Ark 凭证未配置，跳过 AI 功能初始化")
		return nil
	}
	m, err := newModel(ctx, cfg)
	if err != nil {
		logger.WithError(err).Warn("failed to initialize chat model, continuing without AI")
		return nil
	}
	logger.Info("AI chat model initialized")
	return m
}
