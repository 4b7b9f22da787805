package handlers

import "github.com/rs/zerolog"

// Provider wires all HTTP handlers for dependency injection.
type Provider struct {
	Persona *PersonaHandler
	Run     *RunHandler
}

// NewProvider constructs the handler provider with domain services.
func NewProvider(personas PersonaService, runs RunService, log zerolog.Logger) *Provider {
	return &Provider{
		Persona: NewPersonaHandler(personas, log),
		Run:     NewRunHandler(runs, log),
	}
}
