package testrun

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/status"
	domain "github.com/janhq/persona-sim/services/simulation-api/internal/domain/testrun"
	"github.com/janhq/persona-sim/services/simulation-api/internal/infrastructure/database/databasetest"
	"github.com/janhq/persona-sim/services/simulation-api/internal/utils/platformerrors"
)

func seedRun(t *testing.T, repo *PostgresRepository, publicID, owner string) (*domain.TestRun, []*domain.PersonaConversation) {
	t.Helper()
	run := &domain.TestRun{
		PublicID: publicID,
		OwnerID:  owner,
		Status:   status.StatusPending,
		Config: domain.RunConfig{
			MaxTurnsPerSide: 3,
			AssistantID:     "asst_tutor",
			FileIDs:         []string{"file_a", "file_b"},
			Context:         "exam week",
		},
	}
	convs := []*domain.PersonaConversation{
		{PublicID: publicID + "_conv_1", PersonaID: "persona_1", Status: status.StatusPending},
		{PublicID: publicID + "_conv_2", PersonaID: "persona_2", Status: status.StatusPending},
	}
	require.NoError(t, repo.CreateRun(context.Background(), run, convs))
	return run, convs
}

func TestCreateRun_RoundTrip(t *testing.T) {
	repo := NewPostgresRepository(databasetest.Open(t))
	ctx := context.Background()
	run, convs := seedRun(t, repo, "run_1", "user_1")

	assert.NotZero(t, run.ID)
	for _, c := range convs {
		assert.NotZero(t, c.ID)
		assert.Equal(t, run.ID, c.TestRunID)
	}

	found, err := repo.FindRunByPublicID(ctx, "run_1")
	require.NoError(t, err)
	assert.Equal(t, run.Config, found.Config)
	assert.Equal(t, status.StatusPending, found.Status)
	assert.Nil(t, found.CompletedAt)

	listed, err := repo.ListConversations(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "persona_1", listed[0].PersonaID)
	assert.Equal(t, "persona_2", listed[1].PersonaID)
}

func TestFindRunByPublicID_NotFound(t *testing.T) {
	repo := NewPostgresRepository(databasetest.Open(t))

	_, err := repo.FindRunByPublicID(context.Background(), "run_missing")
	require.Error(t, err)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound))
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}

func TestUpdateRunStatus_StampsCompletion(t *testing.T) {
	repo := NewPostgresRepository(databasetest.Open(t))
	ctx := context.Background()
	run, _ := seedRun(t, repo, "run_2", "user_1")

	require.NoError(t, repo.UpdateRunStatus(ctx, run.ID, status.StatusCompleted))
	found, err := repo.FindRunByPublicID(ctx, "run_2")
	require.NoError(t, err)
	assert.Equal(t, status.StatusCompleted, found.Status)
	assert.NotNil(t, found.CompletedAt)

	require.NoError(t, repo.UpdateRunStatus(ctx, run.ID, status.StatusInProgress))
	found, err = repo.FindRunByPublicID(ctx, "run_2")
	require.NoError(t, err)
	assert.Equal(t, status.StatusInProgress, found.Status)
	assert.Nil(t, found.CompletedAt)
}

func TestUpdateConversation_ClearsFields(t *testing.T) {
	repo := NewPostgresRepository(databasetest.Open(t))
	ctx := context.Background()
	run, convs := seedRun(t, repo, "run_3", "user_1")

	conv := *convs[0]
	conv.PersonaThreadID = "thread_1"
	conv.AssistantThreadID = "thread_2"
	conv.Status = status.StatusFailed
	conv.Error = "run creation exhausted"
	require.NoError(t, repo.UpdateConversation(ctx, &conv))

	conv.PersonaThreadID = ""
	conv.AssistantThreadID = ""
	conv.Status = status.StatusInProgress
	conv.Error = ""
	require.NoError(t, repo.UpdateConversation(ctx, &conv))

	listed, err := repo.ListConversations(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, listed[0].PersonaThreadID)
	assert.Empty(t, listed[0].Error)
	assert.Equal(t, status.StatusInProgress, listed[0].Status)
	assert.Equal(t, status.StatusPending, listed[1].Status)
}

func TestListRuns_ScopesToOwner(t *testing.T) {
	repo := NewPostgresRepository(databasetest.Open(t))
	seedRun(t, repo, "run_a", "user_1")
	seedRun(t, repo, "run_b", "user_2")
	seedRun(t, repo, "run_c", "user_1")

	runs, err := repo.ListRuns(context.Background(), "user_1", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run_c", runs[0].PublicID)
	assert.Equal(t, "run_a", runs[1].PublicID)

	runs, err = repo.ListRuns(context.Background(), "user_1", 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
