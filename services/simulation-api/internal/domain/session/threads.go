package session

import (
	"strings"

	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/conversation"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/persona"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/provider"
)

// Each side sees itself as the provider "assistant" and the other side as the
// "user".

func freshSeeds(p persona.Persona) (personaSeed, assistantSeed []provider.ThreadMessage) {
	if p.HasSeed() {
		personaSeed = []provider.ThreadMessage{{Role: provider.MessageRoleAssistant, Content: strings.TrimSpace(p.OpeningQuestion)}}
	}
	return personaSeed, nil
}

func personaThreadHistory(turns []conversation.Turn) []provider.ThreadMessage {
	return threadHistory(turns, conversation.RolePersona)
}

func assistantThreadHistory(turns []conversation.Turn) []provider.ThreadMessage {
	return threadHistory(turns, conversation.RoleAssistant)
}

func threadHistory(turns []conversation.Turn, self conversation.Role) []provider.ThreadMessage {
	out := make([]provider.ThreadMessage, 0, len(turns))
	for _, t := range turns {
		if t.IsLoading || t.Content == "" {
			continue
		}
		role := provider.MessageRoleUser
		if t.Role == self {
			role = provider.MessageRoleAssistant
		}
		out = append(out, provider.ThreadMessage{Role: role, Content: t.Content})
	}
	return out
}
