package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/rapport/backend/internal/config"
	"github.com/zhouzirui/rapport/backend/internal/service/assistant"
)

type fixedModel struct{ content string }

func (m fixedModel) Generate(context.Context, []*schema.Message, ...model.Option) (*schema.Message, error) {
	return schema.AssistantMessage(m.content, nil), nil
}

func (m fixedModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (fixedModel) BindTools([]*schema.ToolInfo) error { return nil }

func factory(content string) ChatModelFactory {
	return func(context.Context, config.AIConfig) (model.BaseChatModel, error) {
		return fixedModel{content: content}, nil
	}
}

func baseConfig() *config.Config {
	seed := uint64(7)
	return &config.Config{
		Store:  config.StoreConfig{Backend: config.BackendMemory, Timeout: time.Second},
		Engine: config.EngineConfig{MaxUsers: 100, RetainUsers: 80, HistoryLimit: 10, Seed: &seed, PersonaID: "sage"},
		AI:     config.AIConfig{Timeout: time.Second},
	}
}

func TestBuildMemoryEngine(t *testing.T) {
	a, err := Build(context.Background(), baseConfig(), nil, prometheus.NewRegistry(), nil)
	require.NoError(t, err)
	defer a.Close()

	res := a.Engine.Process(context.Background(), "hello", "u1", "s1")
	assert.Equal(t, assistant.StatusSuccess, res.Status)
	assert.Equal(t, "sage", res.Metadata.Persona)
	assert.Equal(t, assistant.SourceTemplate, res.Metadata.Source)
	assert.False(t, a.Engine.Health().AIEnabled)
	assert.NotNil(t, a.Metrics)
}

func TestBuildWithAIResponses(t *testing.T) {
	cfg := baseConfig()
	cfg.AI.APIKey = "key"
	cfg.AI.Model = "model"
	cfg.AI.ResponsesEnabled = true

	a, err := Build(context.Background(), cfg, nil, nil, factory("a reply from the model"))
	require.NoError(t, err)

	res := a.Engine.Process(context.Background(), "let's make a game", "u1", "s1")
	assert.Equal(t, assistant.SourceAI, res.Metadata.Source)
	assert.Equal(t, "a reply from the model", res.Content)
	assert.True(t, a.Engine.Health().AIEnabled)
}

func TestBuildSkipsAIWithoutCredentials(t *testing.T) {
	cfg := baseConfig()
	cfg.AI.ResponsesEnabled = true

	called := false
	a, err := Build(context.Background(), cfg, nil, nil, func(context.Context, config.AIConfig) (model.BaseChatModel, error) {
		called = true
		return nil, errors.New("unreachable")
	})
	require.NoError(t, err)

	assert.False(t, called)
	assert.False(t, a.Engine.Health().AIEnabled)
}

func TestBuildWithLLMSentiment(t *testing.T) {
	cfg := baseConfig()
	cfg.AI.APIKey = "key"
	cfg.AI.Model = "model"
	cfg.AI.SentimentLLMEnabled = true

	a, err := Build(context.Background(), cfg, nil, nil, factory(`{"polarity": -0.8}`))
	require.NoError(t, err)

	// No lexicon emotion matches, so the model's polarity decides.
	res := a.Engine.Process(context.Background(), "the weather today", "u1", "s1")
	assert.Equal(t, "frustrated", string(res.Emotion.Primary))
	assert.Equal(t, assistant.SourceTemplate, res.Metadata.Source)
}

func TestBuildSQLiteBackend(t *testing.T) {
	cfg := baseConfig()
	cfg.Store.Backend = config.BackendSQLite
	cfg.Store.SQLitePath = filepath.Join(t.TempDir(), "rapport.db")

	a, err := Build(context.Background(), cfg, nil, nil, nil)
	require.NoError(t, err)
	a.Engine.Process(context.Background(), "hello", "u1", "s1")
	assert.Equal(t, "sqlite", a.Engine.Health().Backend)
	require.NoError(t, a.Close())

	again, err := Build(context.Background(), cfg, nil, nil, nil)
	require.NoError(t, err)
	defer again.Close()
	p, err := again.Engine.Store().ExportProfile(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.ConversationCount)

	stats := again.Engine.Store().Stats(context.Background())
	assert.Zero(t, stats.TotalUsers)
	require.NotNil(t, stats.StoredProfiles)
	assert.Equal(t, 1, *stats.StoredProfiles)
}

func TestBuildRedisBackendAppliesTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := baseConfig()
	cfg.Store.Backend = config.BackendRedis
	cfg.Store.RedisURL = "redis://" + mr.Addr()
	cfg.Store.RedisPrefix = "rapport"
	cfg.Store.RedisTTL = 24 * time.Hour

	a, err := Build(context.Background(), cfg, nil, nil, nil)
	require.NoError(t, err)
	defer a.Close()

	res := a.Engine.Process(context.Background(), "hello", "u1", "s1")
	require.Equal(t, assistant.StatusSuccess, res.Status)
	assert.Equal(t, "redis", a.Engine.Health().Backend)
	assert.True(t, mr.Exists("rapport:u1"))
	assert.Equal(t, 24*time.Hour, mr.TTL("rapport:u1"))

	stats := a.Engine.Store().Stats(context.Background())
	require.NotNil(t, stats.StoredProfiles)
	assert.Equal(t, 1, *stats.StoredProfiles)
}

func TestBuildBadLexiconPath(t *testing.T) {
	cfg := baseConfig()
	cfg.Engine.LexiconPath = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := Build(context.Background(), cfg, nil, nil, nil)
	assert.Error(t, err)
}
