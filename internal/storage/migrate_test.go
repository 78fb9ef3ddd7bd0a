package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xaenox/lingua-bot/internal/models"
)

func TestMigrate_CopiesUserToRemote(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	local := NewLocalConversations(t.TempDir(), logger)
	remote := NewRemoteConversations(NewMemoryKV(), logger)

	require.NoError(t, local.Save(ctx, "u1", newConversation("conv_u1_1", "hi", "hello")))
	require.NoError(t, local.Save(ctx, "u1", newConversation("conv_u1_2.5", "refunds?")))
	require.NoError(t, local.SetTitle(ctx, "u1", "conv_u1_2.5", "Refunds"))
	require.NoError(t, local.SaveProfile(ctx, &models.UserProfile{UserID: "u1", LanguagePreference: "arabic"}))
	require.NoError(t, local.Save(ctx, "u2", newConversation("conv_u2_1", "other user")))

	users, err := local.Users()
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, users)

	result, err := Migrate(ctx, local, remote, "u1", logger)
	require.NoError(t, err)
	assert.Equal(t, MigrationResult{UserID: "u1", Conversations: 2, Titles: 1, Profile: true}, result)

	conv, err := remote.Load(ctx, "u1", "conv_u1_1")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "hello", conv.Messages[1].Text)

	titles, err := remote.Titles(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Refunds", titles[SanitizeKey("conv_u1_2.5")])

	profile, err := remote.LoadProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "arabic", profile.LanguagePreference)

	others, err := remote.List(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, others)
}

func TestMigrate_WithoutProfile(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	local := NewLocalConversations(t.TempDir(), logger)
	remote := NewRemoteConversations(NewMemoryKV(), logger)

	require.NoError(t, local.Save(ctx, "u1", newConversation("conv_u1_1", "hi")))

	result, err := Migrate(ctx, local, remote, "u1", logger)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Conversations)
	assert.False(t, result.Profile)
}

func TestMigrate_RemoteDown(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	local := NewLocalConversations(t.TempDir(), logger)
	require.NoError(t, local.Save(ctx, "u1", newConversation("conv_u1_1", "hi")))

	_, err := Migrate(ctx, local, NewRemoteConversations(downKV{}, logger), "u1", logger)
	assert.ErrorIs(t, err, errUnavailable)
}

func TestMigrate_RejectsAnonymous(t *testing.T) {
	logger := zaptest.NewLogger(t)
	local := NewLocalConversations(t.TempDir(), logger)

	_, err := Migrate(context.Background(), local, NewRemoteConversations(NewMemoryKV(), logger), models.AnonymousUserID, logger)
	assert.Error(t, err)
}

func TestLocalConversations_UsersEmptyDir(t *testing.T) {
	users, err := NewLocalConversations(t.TempDir(), zaptest.NewLogger(t)).Users()
	require.NoError(t, err)
	assert.Empty(t, users)
}
