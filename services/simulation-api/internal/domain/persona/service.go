package persona

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/janhq/persona-sim/services/simulation-api/internal/utils/idgen"
)

// Service manages personas.
type Service struct {
	repo Repository
	log  zerolog.Logger
}

// NewService creates a persona service.
func NewService(repo Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With().Str("component", "persona-service").Logger(),
	}
}

// CreateParams are the user supplied persona fields.
type CreateParams struct {
	OwnerID         string
	Name            string
	Description     string
	Prompt          string
	OpeningQuestion string
}

// Create validates and stores a new persona.
func (s *Service) Create(ctx context.Context, params CreateParams) (*Persona, error) {
	p := &Persona{
		PublicID:        idgen.NewID(idgen.PrefixPersona),
		OwnerID:         params.OwnerID,
		Name:            strings.TrimSpace(params.Name),
		Description:     strings.TrimSpace(params.Description),
		Prompt:          strings.TrimSpace(params.Prompt),
		OpeningQuestion: strings.TrimSpace(params.OpeningQuestion),
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create persona: %w", err)
	}
	s.log.Info().Str("persona_id", p.PublicID).Bool("seeded", p.HasSeed()).Msg("persona created")
	return p, nil
}

// Get returns a persona by public ID if owner can see it.
func (s *Service) Get(ctx context.Context, ownerID, publicID string) (*Persona, error) {
	p, err := s.repo.FindByPublicID(ctx, publicID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != "" && p.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPersona, publicID)
	}
	return p, nil
}

// List returns the personas visible to owner: their own plus shared ones.
func (s *Service) List(ctx context.Context, ownerID string) ([]*Persona, error) {
	return s.repo.FindByFilter(ctx, Filter{OwnerID: &ownerID})
}

// Resolve loads the personas with the given public IDs in the requested order.
func (s *Service) Resolve(ctx context.Context, ownerID string, publicIDs []string) ([]*Persona, error) {
	found, err := s.repo.FindByFilter(ctx, Filter{OwnerID: &ownerID, PublicIDs: publicIDs})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*Persona, len(found))
	for _, p := range found {
		byID[p.PublicID] = p
	}
	out := make([]*Persona, 0, len(publicIDs))
	for _, id := range publicIDs {
		p, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPersona, id)
		}
		out = append(out, p)
	}
	return out, nil
}

// SeedFile is the YAML document listing shared personas.
type SeedFile struct {
	Personas []SeedPersona `yaml:"personas"`
}

// SeedPersona is one entry of a seed file.
type SeedPersona struct {
	Name            string `yaml:"name"`
	Description     string `yaml:"description"`
	Prompt          string `yaml:"prompt"`
	OpeningQuestion string `yaml:"opening_question"`
}

// ParseSeed decodes a persona seed document.
func ParseSeed(data []byte) (*SeedFile, error) {
	var file SeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse persona seed: %w", err)
	}
	for i, p := range file.Personas {
		if err := (Persona{Name: p.Name, Prompt: p.Prompt}).Validate(); err != nil {
			return nil, fmt.Errorf("persona seed entry %d: %w", i, err)
		}
	}
	return &file, nil
}

// LoadSeedFile creates the shared personas listed in path that do not exist
// yet, matched by name.
func (s *Service) LoadSeedFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read persona seed: %w", err)
	}
	file, err := ParseSeed(data)
	if err != nil {
		return 0, err
	}

	shared := ""
	existing, err := s.repo.FindByFilter(ctx, Filter{OwnerID: &shared})
	if err != nil {
		return 0, err
	}
	names := make(map[string]bool, len(existing))
	for _, p := range existing {
		names[p.Name] = true
	}

	created := 0
	for _, sp := range file.Personas {
		if names[strings.TrimSpace(sp.Name)] {
			continue
		}
		if _, err := s.Create(ctx, CreateParams{
			Name:            sp.Name,
			Description:     sp.Description,
			Prompt:          sp.Prompt,
			OpeningQuestion: sp.OpeningQuestion,
		}); err != nil {
			return created, err
		}
		created++
	}
	s.log.Info().Str("path", path).Int("created", created).Msg("persona seed loaded")
	return created, nil
}
