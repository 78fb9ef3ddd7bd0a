package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/xaenox/lingua-bot/internal/models"
)

// MigrationResult counts what Migrate copied for one user.
type MigrationResult struct {
	UserID        string `json:"user_id"`
	Conversations int    `json:"conversations"`
	Titles        int    `json:"titles"`
	Profile       bool   `json:"profile"`
}

// Users returns the ids of every user with a directory under the data dir.
// Ids are the directory names, i.e. already passed through SanitizeKey.
func (s *LocalConversations) Users() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, "users"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	users := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			users = append(users, entry.Name())
		}
	}
	sort.Strings(users)
	return users, nil
}

// rawTitles returns custom titles keyed by the unsanitised conversation id.
func (s *LocalConversations) rawTitles(owner string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, titles, err := s.load(owner)
	return titles, err
}

// Migrate copies the conversations, custom titles and profile of userID from
// the local files into to. Existing remote documents with the same ids are
// overwritten. Anonymous conversations are not migrated.
func Migrate(ctx context.Context, from *LocalConversations, to ConversationStore, userID string, logger *zap.Logger) (MigrationResult, error) {
	result := MigrationResult{UserID: userID}
	if models.IsAnonymous(userID) {
		return result, errAnonymous
	}

	convs, err := from.List(ctx, userID)
	if err != nil {
		return result, fmt.Errorf("failed to read local conversations of %s: %w", userID, err)
	}
	for _, conv := range convs {
		if err := to.Save(ctx, userID, conv); err != nil {
			return result, fmt.Errorf("failed to migrate conversation %s: %w", conv.ID, err)
		}
		result.Conversations++
	}

	titles, err := from.rawTitles(userID)
	if err != nil {
		return result, fmt.Errorf("failed to read local titles of %s: %w", userID, err)
	}
	for id, title := range titles {
		if err := to.SetTitle(ctx, userID, id, title); err != nil {
			return result, fmt.Errorf("failed to migrate title of %s: %w", id, err)
		}
		result.Titles++
	}

	profile, err := from.LoadProfile(ctx, userID)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return result, fmt.Errorf("failed to read local profile of %s: %w", userID, err)
	default:
		if err := to.SaveProfile(ctx, profile); err != nil {
			return result, fmt.Errorf("failed to migrate profile of %s: %w", userID, err)
		}
		result.Profile = true
	}

	logger.Info("Migrated user",
		zap.String("user_id", userID),
		zap.Int("conversations", result.Conversations),
		zap.Int("titles", result.Titles),
		zap.Bool("profile", result.Profile))
	return result, nil
}
