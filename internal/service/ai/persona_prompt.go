package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/rapport/backend/internal/model/persona"
)

// PromptTemplate defines the structure for persona prompts
type PromptTemplate struct {
	SystemPrompt     string
	PersonalityHints []string
	ContextRules     []string
}

// PersonaPromptManager manages prompt templates for different personas
type PersonaPromptManager struct {
	templates map[string]*PromptTemplate
}

// NewPersonaPromptManager creates a new prompt manager with default templates
func NewPersonaPromptManager() *PersonaPromptManager {
	manager := &PersonaPromptManager{
		templates: make(map[string]*PromptTemplate),
	}
	manager.loadDefaultTemplates()
	return manager
}

// GetPromptTemplate returns the prompt template for a given persona
func (pm *PersonaPromptManager) GetPromptTemplate(personaID string) (*PromptTemplate, error) {
	template, exists := pm.templates[personaID]
	if !exists {
		return nil, fmt.Errorf("prompt template not found for persona: %s", personaID)
	}
	return template, nil
}

// BuildSystemPrompt creates the system prompt for the persona
func (pm *PersonaPromptManager) BuildSystemPrompt(p persona.Persona) string {
	template, err := pm.GetPromptTemplate(p.ID)
	if err != nil {
		return pm.buildBasicSystemPrompt(p)
	}

	return fmt.Sprintf(`%s

Persona:
- Name: %s
- Role: %s
- Tone: %s
- Expertise: %s

Personality hints:
- %s

Conversation rules:
- %s`,
		template.SystemPrompt,
		p.Name,
		p.Title,
		p.Tone,
		strings.Join(p.Expertise, ", "),
		strings.Join(template.PersonalityHints, "\n- "),
		strings.Join(template.ContextRules, "\n- "),
	)
}

// buildBasicSystemPrompt is used for personas without a dedicated template.
func (pm *PersonaPromptManager) buildBasicSystemPrompt(p persona.Persona) string {
	return fmt.Sprintf(`You are %s, a %s.

Tone: %s
Guidance: %s

Stay in character and keep replies short: two to four sentences, ending with a question that moves the user forward.`,
		p.Name,
		p.Title,
		p.Tone,
		p.PromptHint,
	)
}

// loadDefaultTemplates loads the prompt templates for built-in personas
func (pm *PersonaPromptManager) loadDefaultTemplates() {
	pm.templates["aria"] = &PromptTemplate{
		SystemPrompt: "You are Aria, a creative companion who helps people design games, plan media projects and grow half-formed ideas into plans.",
		PersonalityHints: []string{
			"Match the user's energy: celebrate excitement, slow down for frustration",
			"Offer one concrete suggestion before asking a question",
			"Refer back to topics and preferences the user has mentioned before",
		},
		ContextRules: []string{
			"Keep replies to two to four sentences",
			"Never invent facts about the user that are not in the context",
			"End with a question that moves the project forward",
		},
	}

	pm.templates["sage"] = &PromptTemplate{
		SystemPrompt: "You are Sage, a calm mentor who helps people untangle technical and creative problems one step at a time.",
		PersonalityHints: []string{
			"Stay measured and precise, even when the user is excited or upset",
			"Break problems into small, ordered steps",
			"Acknowledge uncertainty instead of guessing",
		},
		ContextRules: []string{
			"Ask at most one clarifying question per reply",
			"Prefer plain language over jargon",
			"Summarize the next step at the end of the reply",
		},
	}
}
