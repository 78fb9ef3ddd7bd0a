package storage

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xaenox/lingua-bot/internal/jsonx"
	"github.com/xaenox/lingua-bot/internal/models"
)

// RemoteConversations lays conversations out in a KV under
// {owner}/conversations/{id}, {owner}/customTitles/{id} and users/{id}/profile.
// Anonymous owners are never stored remotely.
type RemoteConversations struct {
	kv     KV
	logger *zap.Logger
}

var errAnonymous = errors.New("anonymous conversations are not stored remotely")

func NewRemoteConversations(kv KV, logger *zap.Logger) *RemoteConversations {
	return &RemoteConversations{
		kv:     kv,
		logger: logger.Named("remote_conversations"),
	}
}

func (s *RemoteConversations) Load(ctx context.Context, owner, id string) (*models.Conversation, error) {
	if models.IsAnonymous(owner) {
		return nil, errAnonymous
	}

	data, err := s.kv.Get(ctx, conversationsPath(owner), SanitizeKey(id))
	if err != nil {
		return nil, err
	}

	conv, err := DecodeConversation(id, data)
	if err != nil {
		return nil, err
	}
	conv.ID = id
	return conv, nil
}

func (s *RemoteConversations) Save(ctx context.Context, owner string, conv *models.Conversation) error {
	if models.IsAnonymous(owner) {
		return errAnonymous
	}

	data, err := EncodeConversation(conv)
	if err != nil {
		return fmt.Errorf("failed to encode conversation: %w", err)
	}

	if err := s.kv.Set(ctx, conversationsPath(owner), SanitizeKey(conv.ID), data); err != nil {
		return err
	}
	s.logger.Debug("Conversation saved",
		zap.String("user_id", owner),
		zap.String("conversation_id", conv.ID),
		zap.Int("messages", len(conv.Messages)))
	return nil
}

func (s *RemoteConversations) Delete(ctx context.Context, owner, id string) error {
	if models.IsAnonymous(owner) {
		return errAnonymous
	}

	key := SanitizeKey(id)
	err := s.kv.Delete(ctx, conversationsPath(owner), key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	if titleErr := s.kv.Delete(ctx, titlesPath(owner), key); titleErr != nil && !errors.Is(titleErr, ErrNotFound) {
		s.logger.Warn("Failed to delete custom title",
			zap.Error(titleErr),
			zap.String("conversation_id", id))
	}
	return err
}

func (s *RemoteConversations) List(ctx context.Context, owner string) ([]*models.Conversation, error) {
	if models.IsAnonymous(owner) {
		return nil, errAnonymous
	}

	docs, err := s.kv.List(ctx, conversationsPath(owner))
	if err != nil {
		return nil, err
	}

	out := make([]*models.Conversation, 0, len(docs))
	for key, data := range docs {
		conv, err := DecodeConversation(key, data)
		if err != nil {
			s.logger.Warn("Skipping malformed conversation",
				zap.Error(err),
				zap.String("user_id", owner),
				zap.String("key", key))
			continue
		}
		out = append(out, conv)
	}
	return out, nil
}

func (s *RemoteConversations) SetTitle(ctx context.Context, owner, id, title string) error {
	if models.IsAnonymous(owner) {
		return errAnonymous
	}

	data, err := jsonx.Marshal(title)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, titlesPath(owner), SanitizeKey(id), data)
}

func (s *RemoteConversations) Titles(ctx context.Context, owner string) (map[string]string, error) {
	if models.IsAnonymous(owner) {
		return nil, errAnonymous
	}

	docs, err := s.kv.List(ctx, titlesPath(owner))
	if err != nil {
		return nil, err
	}

	titles := make(map[string]string, len(docs))
	for key, data := range docs {
		var title string
		if err := jsonx.Unmarshal(data, &title); err != nil {
			continue
		}
		titles[key] = title
	}
	return titles, nil
}

func (s *RemoteConversations) LoadProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	if models.IsAnonymous(userID) {
		return nil, errAnonymous
	}

	data, err := s.kv.Get(ctx, profilePath(userID), profileKey)
	if err != nil {
		return nil, err
	}

	profile := &models.UserProfile{}
	if err := jsonx.Unmarshal(data, profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	return profile, nil
}

func (s *RemoteConversations) SaveProfile(ctx context.Context, profile *models.UserProfile) error {
	if models.IsAnonymous(profile.UserID) {
		return errAnonymous
	}

	data, err := jsonx.Marshal(profile)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, profilePath(profile.UserID), profileKey, data)
}
