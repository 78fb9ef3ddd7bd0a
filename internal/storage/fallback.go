package storage

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/xaenox/lingua-bot/internal/models"
)

// fallbackStore serves every operation from primary and silently switches to
// secondary when primary fails. Reads also consult secondary when primary
// simply does not have the record, so writes made during an outage stay
// visible once primary is back.
type fallbackStore struct {
	primary   ConversationStore
	secondary ConversationStore
	logger    *zap.Logger
}

// WithFallback combines two stores. A nil primary yields secondary unchanged.
func WithFallback(primary, secondary ConversationStore, logger *zap.Logger) ConversationStore {
	if primary == nil {
		return secondary
	}
	return &fallbackStore{
		primary:   primary,
		secondary: secondary,
		logger:    logger.Named("fallback"),
	}
}

func (s *fallbackStore) degraded(op string, err error, fields ...zap.Field) {
	if err == nil || errors.Is(err, ErrNotFound) {
		return
	}
	s.logger.Warn("Primary store failed, using fallback",
		append(fields, zap.String("op", op), zap.Error(err))...)
}

func (s *fallbackStore) Load(ctx context.Context, owner, id string) (*models.Conversation, error) {
	conv, err := s.primary.Load(ctx, owner, id)
	if err == nil {
		return conv, nil
	}
	s.degraded("load", err, zap.String("conversation_id", id))
	return s.secondary.Load(ctx, owner, id)
}

func (s *fallbackStore) Save(ctx context.Context, owner string, conv *models.Conversation) error {
	err := s.primary.Save(ctx, owner, conv)
	if err == nil {
		return nil
	}
	s.degraded("save", err, zap.String("conversation_id", conv.ID))
	return s.secondary.Save(ctx, owner, conv)
}

// Delete removes the conversation from both stores; it is only reported
// missing when neither had it.
func (s *fallbackStore) Delete(ctx context.Context, owner, id string) error {
	primaryErr := s.primary.Delete(ctx, owner, id)
	s.degraded("delete", primaryErr, zap.String("conversation_id", id))

	secondaryErr := s.secondary.Delete(ctx, owner, id)
	if primaryErr == nil || secondaryErr == nil {
		return nil
	}
	if errors.Is(secondaryErr, ErrNotFound) {
		return ErrNotFound
	}
	return secondaryErr
}

// List merges both stores, primary winning on conflicts.
func (s *fallbackStore) List(ctx context.Context, owner string) ([]*models.Conversation, error) {
	primary, err := s.primary.List(ctx, owner)
	s.degraded("list", err)

	secondary, secondaryErr := s.secondary.List(ctx, owner)
	if err != nil && secondaryErr != nil {
		return nil, secondaryErr
	}

	seen := make(map[string]bool, len(primary))
	out := make([]*models.Conversation, 0, len(primary)+len(secondary))
	for _, conv := range primary {
		seen[conv.ID] = true
		out = append(out, conv)
	}
	for _, conv := range secondary {
		if !seen[conv.ID] {
			out = append(out, conv)
		}
	}
	return out, nil
}

func (s *fallbackStore) SetTitle(ctx context.Context, owner, id, title string) error {
	err := s.primary.SetTitle(ctx, owner, id, title)
	if err == nil {
		return nil
	}
	s.degraded("set_title", err, zap.String("conversation_id", id))
	return s.secondary.SetTitle(ctx, owner, id, title)
}

func (s *fallbackStore) Titles(ctx context.Context, owner string) (map[string]string, error) {
	primary, err := s.primary.Titles(ctx, owner)
	s.degraded("titles", err)

	secondary, secondaryErr := s.secondary.Titles(ctx, owner)
	if err != nil && secondaryErr != nil {
		return nil, secondaryErr
	}

	out := make(map[string]string, len(primary)+len(secondary))
	for id, title := range secondary {
		out[id] = title
	}
	for id, title := range primary {
		out[id] = title
	}
	return out, nil
}

func (s *fallbackStore) LoadProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	profile, err := s.primary.LoadProfile(ctx, userID)
	if err == nil {
		return profile, nil
	}
	s.degraded("load_profile", err, zap.String("user_id", userID))
	return s.secondary.LoadProfile(ctx, userID)
}

func (s *fallbackStore) SaveProfile(ctx context.Context, profile *models.UserProfile) error {
	err := s.primary.SaveProfile(ctx, profile)
	if err == nil {
		return nil
	}
	s.degraded("save_profile", err, zap.String("user_id", profile.UserID))
	return s.secondary.SaveProfile(ctx, profile)
}
