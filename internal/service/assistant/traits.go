package assistant

import "github.com/zhouzirui/rapport/backend/internal/lexicon"

var suggestedActions = map[lexicon.Intent][]string{
	lexicon.GameRequest:        {"explore_genres", "define_mechanics", "create_prototype"},
	lexicon.MediaRequest:       {"define_style", "gather_references", "plan_creation"},
	lexicon.HelpRequest:        {"break_down_problem", "identify_resources", "create_action_plan"},
	lexicon.CreativeBrainstorm: {"expand_ideas", "explore_variations", "combine_concepts"},
}

var defaultActions = []string{"continue_conversation", "ask_questions", "explore_ideas"}

// activeTraits lists the persona traits a reply leans on.
func activeTraits(intent lexicon.Intent, emotion lexicon.Emotion) []string {
	traits := []string{"helpful", "encouraging"}
	if intent == lexicon.GameRequest || intent == lexicon.MediaRequest {
		traits = append(traits, "creative")
	}
	switch emotion {
	case lexicon.Frustrated:
		traits = append(traits, "empathetic", "supportive")
	case lexicon.Excited:
		traits = append(traits, "enthusiastic", "inspiring")
	}
	return traits
}

// actionsFor suggests follow-ups for an intent.
func actionsFor(intent lexicon.Intent) []string {
	if actions, ok := suggestedActions[intent]; ok {
		return append([]string(nil), actions...)
	}
	return append([]string(nil), defaultActions...)
}
