package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/rapport/backend/internal/lexicon"
	"github.com/zhouzirui/rapport/backend/internal/logging"
	"github.com/zhouzirui/rapport/backend/internal/model/chat"
	"github.com/zhouzirui/rapport/backend/internal/model/persona"
	chatservice "github.com/zhouzirui/rapport/backend/internal/service/chat"
)

const historyLimit = 10

// Brief is what the model is told about the current turn.
type Brief struct {
	Persona      persona.Persona
	Message      string
	Intent       lexicon.Intent
	Emotion      chat.EmotionalState
	Personalized chatservice.Personalized
	History      []chat.Message
}

// Service generates replies with a chat model. It is an optional reply
// source: callers fall back to templates when it fails.
type Service struct {
	chain   compose.Runnable[map[string]any, *schema.Message]
	prompts *PersonaPromptManager
	timeout time.Duration
	log     logrus.FieldLogger
}

// NewService compiles the reply chain around chatModel.
func NewService(ctx context.Context, chatModel model.BaseChatModel, timeout time.Duration, logger logrus.FieldLogger) (*Service, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		chain:   runnable,
		prompts: NewPersonaPromptManager(),
		timeout: timeout,
		log:     logging.Component(logger, "ai"),
	}, nil
}

// Respond generates a reply for the brief.
func (s *Service) Respond(ctx context.Context, brief Brief) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	response, err := s.chain.Invoke(ctx, s.buildChainInput(brief))
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}
	content := strings.TrimSpace(response.Content)
	if content == "" {
		return "", fmt.Errorf("model returned an empty reply")
	}

	s.log.WithFields(logrus.Fields{
		"persona": brief.Persona.ID,
		"intent":  brief.Intent,
		"length":  len(content),
	}).Debug("generated response")
	return content, nil
}

func (s *Service) buildChainInput(brief Brief) map[string]any {
	return map[string]any{
		"system":  s.buildSystemPrompt(brief),
		"history": buildHistoryMessages(brief.History),
		"query":   brief.Message,
	}
}

// buildSystemPrompt combines the persona prompt with what is known about
// the user and the current turn.
func (s *Service) buildSystemPrompt(brief Brief) string {
	var builder strings.Builder
	builder.WriteString(s.prompts.BuildSystemPrompt(brief.Persona))

	builder.WriteString("\n\nCurrent turn analysis:")
	builder.WriteString(fmt.Sprintf("\n- Intent: %s", brief.Intent))
	builder.WriteString(fmt.Sprintf("\n- Emotion: %s (intensity %.2f, confidence %.2f)",
		brief.Emotion.Primary, brief.Emotion.Intensity, brief.Emotion.Confidence))
	if hint := describeEmotion(brief.Emotion.Primary); hint != "" {
		builder.WriteString("\n- Tone: ")
		builder.WriteString(hint)
	}

	p := brief.Personalized
	if p.IsNewUser {
		builder.WriteString("\n\nThis is a new user; introduce yourself briefly.")
		return builder.String()
	}

	builder.WriteString("\n\nWhat you know about the user:")
	builder.WriteString(fmt.Sprintf("\n- Conversations so far: %d", p.InteractionCount))
	if len(p.FavoriteTopics) > 0 {
		builder.WriteString("\n- Favourite topics: " + strings.Join(p.FavoriteTopics, ", "))
	}
	if len(p.RecentTopics) > 0 {
		builder.WriteString("\n- Recent topics: " + strings.Join(p.RecentTopics, ", "))
	}
	categories := make([]string, 0, len(p.Preferences))
	for category := range p.Preferences {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	for _, category := range categories {
		builder.WriteString(fmt.Sprintf("\n- %s: %s", strings.ReplaceAll(category, "_", " "), strings.Join(p.Preferences[category], ", ")))
	}
	if len(p.Traits) > 0 {
		builder.WriteString("\n- Traits: " + strings.Join(p.Traits, ", "))
	}
	return builder.String()
}

// buildHistoryMessages replays the last exchanges as user/assistant turns.
func buildHistoryMessages(messages []chat.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}
	if len(messages) > historyLimit {
		messages = messages[len(messages)-historyLimit:]
	}

	history := make([]*schema.Message, 0, len(messages)*2)
	for _, msg := range messages {
		if content := strings.TrimSpace(msg.Content); content != "" {
			history = append(history, schema.UserMessage(content))
		}
		if reply := strings.TrimSpace(msg.Response); reply != "" {
			history = append(history, schema.AssistantMessage(reply, nil))
		}
	}
	return history
}

func describeEmotion(e lexicon.Emotion) string {
	switch e {
	case lexicon.Excited:
		return "the user is excited; keep the energy up and build on it."
	case lexicon.Frustrated:
		return "the user is frustrated; acknowledge it first, then offer one small next step."
	case lexicon.Curious:
		return "the user is curious; explain clearly and invite a follow-up."
	case lexicon.Confident:
		return "the user is confident; be direct and help them move fast."
	case lexicon.Uncertain:
		return "the user is unsure; reassure them and offer two or three options."
	case lexicon.Creative:
		return "the user is in a creative mood; riff on their ideas."
	case lexicon.Neutral:
		return "the user is calm; keep a clear, friendly tone."
	default:
		return ""
	}
}
