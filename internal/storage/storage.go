package storage

import (
	"context"
	"errors"

	"github.com/xaenox/lingua-bot/internal/models"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrBadDocument = errors.New("unrecognised conversation document")
)

// KV is the remote document store. Documents are addressed by a parent path
// and a key below it, e.g. parent "u1/conversations", key "conv_u1_17".
type KV interface {
	Get(ctx context.Context, parent, key string) ([]byte, error)
	Set(ctx context.Context, parent, key string, value []byte) error
	Delete(ctx context.Context, parent, key string) error
	List(ctx context.Context, parent string) (map[string][]byte, error)
	Ping(ctx context.Context) error
	Close() error
}

// ConversationStore persists conversations, custom titles and profiles per
// owner. Owner is the user id, or models.AnonymousUserID for session-bound
// conversations.
type ConversationStore interface {
	Load(ctx context.Context, owner, id string) (*models.Conversation, error)
	Save(ctx context.Context, owner string, conv *models.Conversation) error
	Delete(ctx context.Context, owner, id string) error
	List(ctx context.Context, owner string) ([]*models.Conversation, error)

	// SetTitle stores a custom title; Titles returns them keyed by
	// SanitizeKey(conversationID).
	SetTitle(ctx context.Context, owner, id, title string) error
	Titles(ctx context.Context, owner string) (map[string]string, error)

	LoadProfile(ctx context.Context, userID string) (*models.UserProfile, error)
	SaveProfile(ctx context.Context, profile *models.UserProfile) error
}
