package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/rapport/backend/internal/analysis/emotion"
	"github.com/zhouzirui/rapport/backend/internal/logging"
	"github.com/zhouzirui/rapport/backend/internal/metrics"
)

// Config 控制情感极性服务的行为。
type Config struct {
	Enabled bool
	Timeout time.Duration
}

// Service 使用大模型给出文本的情感极性，失败时回退到 VADER 打分。
// It satisfies emotion.PolarityScorer and never returns an error.
type Service struct {
	enabled  bool
	timeout  time.Duration
	scorer   compose.Runnable[map[string]any, *schema.Message]
	fallback emotion.PolarityScorer
	metrics  *metrics.Metrics
	log      logrus.FieldLogger
}

// NewService creates the polarity service. A nil chatModel or a disabled
// config yields a service that only uses fallback.
func NewService(ctx context.Context, chatModel model.BaseChatModel, fallback emotion.PolarityScorer, cfg Config, logger logrus.FieldLogger, m *metrics.Metrics) (*Service, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}

	svc := &Service{
		enabled:  cfg.Enabled && chatModel != nil,
		timeout:  timeout,
		fallback: fallback,
		metrics:  m,
		log:      logging.Component(logger, "sentiment"),
	}
	if !svc.enabled {
		return svc, nil
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(polaritySystemPrompt),
		schema.UserMessage("{text}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile polarity chain: %w", err)
	}
	svc.scorer = runnable
	return svc, nil
}

// Enabled 返回是否启用大模型打分。
func (s *Service) Enabled() bool {
	return s != nil && s.enabled && s.scorer != nil
}

// Polarity implements emotion.PolarityScorer.
func (s *Service) Polarity(ctx context.Context, text string) (float64, error) {
	if !s.Enabled() || strings.TrimSpace(text) == "" {
		return s.fallbackPolarity(ctx, text)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	msg, err := s.scorer.Invoke(ctx, map[string]any{"text": strings.TrimSpace(text)})
	if err != nil {
		s.log.WithError(err).Warn("polarity model invoke failed, use fallback")
		s.metrics.Fallback("sentiment")
		return s.fallbackPolarity(ctx, text)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		s.metrics.Fallback("sentiment")
		return s.fallbackPolarity(ctx, text)
	}

	value, err := parsePolarity(msg.Content)
	if err != nil {
		s.log.WithError(err).Warn("polarity model output parse failed, use fallback")
		s.metrics.Fallback("sentiment")
		return s.fallbackPolarity(ctx, text)
	}
	return value, nil
}

func (s *Service) fallbackPolarity(ctx context.Context, text string) (float64, error) {
	if s.fallback == nil {
		return 0, nil
	}
	value, err := s.fallback.Polarity(ctx, text)
	if err != nil {
		return 0, nil
	}
	return value, nil
}

// parsePolarity 解析大模型返回的 JSON，并把结果收敛到 [-1, 1]。
func parsePolarity(content string) (float64, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return 0, fmt.Errorf("missing json object")
	}

	payload := struct {
		Polarity *float64 `json:"polarity"`
	}{}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &payload); err != nil {
		return 0, err
	}
	if payload.Polarity == nil || math.IsNaN(*payload.Polarity) {
		return 0, fmt.Errorf("missing polarity field")
	}
	return math.Max(-1, math.Min(1, *payload.Polarity)), nil
}

const polaritySystemPrompt = "You rate the sentiment of a single chat message. Reply with one JSON object and nothing else. " +
	"The object has exactly one numeric field named polarity, between -1 (very negative) and 1 (very positive); 0 means neutral. " +
	"Judge only the writer's feeling, not the topic."
