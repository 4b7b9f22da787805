package persona

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/janhq/persona-sim/services/simulation-api/internal/domain/persona"
	"github.com/janhq/persona-sim/services/simulation-api/internal/infrastructure/database/databasetest"
	"github.com/janhq/persona-sim/services/simulation-api/internal/utils/platformerrors"
)

func TestPostgresRepository_CreateAndFind(t *testing.T) {
	repo := NewPostgresRepository(databasetest.Open(t))
	ctx := context.Background()

	p := &domain.Persona{PublicID: "persona_1", OwnerID: "user_1", Name: "Skeptic", Prompt: "Doubt everything.", OpeningQuestion: "Why?"}
	require.NoError(t, repo.Create(ctx, p))
	assert.NotZero(t, p.ID)
	assert.False(t, p.CreatedAt.IsZero())

	found, err := repo.FindByPublicID(ctx, "persona_1")
	require.NoError(t, err)
	assert.Equal(t, "Skeptic", found.Name)
	assert.Equal(t, "Why?", found.OpeningQuestion)

	_, err = repo.FindByPublicID(ctx, "persona_missing")
	require.Error(t, err)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound))
	assert.ErrorIs(t, err, domain.ErrUnknownPersona)
}

func TestPostgresRepository_FindByFilter(t *testing.T) {
	repo := NewPostgresRepository(databasetest.Open(t))
	ctx := context.Background()

	for _, p := range []*domain.Persona{
		{PublicID: "persona_shared", Name: "Shared", Prompt: "p"},
		{PublicID: "persona_mine", OwnerID: "user_1", Name: "Mine", Prompt: "p"},
		{PublicID: "persona_theirs", OwnerID: "user_2", Name: "Theirs", Prompt: "p"},
	} {
		require.NoError(t, repo.Create(ctx, p))
	}

	owner := "user_1"
	visible, err := repo.FindByFilter(ctx, domain.Filter{OwnerID: &owner})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"persona_shared", "persona_mine"}, publicIDs(visible))

	picked, err := repo.FindByFilter(ctx, domain.Filter{OwnerID: &owner, PublicIDs: []string{"persona_mine", "persona_theirs"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"persona_mine"}, publicIDs(picked))

	all, err := repo.FindByFilter(ctx, domain.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestService_ResolveThroughRepository(t *testing.T) {
	repo := NewPostgresRepository(databasetest.Open(t))
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &domain.Persona{PublicID: "persona_b", Name: "B", Prompt: "p"}))
	require.NoError(t, repo.Create(ctx, &domain.Persona{PublicID: "persona_a", Name: "A", Prompt: "p"}))

	svc := domain.NewService(repo, zerolog.Nop())
	got, err := svc.Resolve(ctx, "user_1", []string{"persona_a", "persona_b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"persona_a", "persona_b"}, publicIDs(got))

	_, err = svc.Resolve(ctx, "user_1", []string{"persona_a", "persona_zzz"})
	assert.ErrorIs(t, err, domain.ErrUnknownPersona)
}

func publicIDs(ps []*domain.Persona) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.PublicID)
	}
	return out
}
