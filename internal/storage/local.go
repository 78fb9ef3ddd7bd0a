package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/xaenox/lingua-bot/internal/jsonx"
	"github.com/xaenox/lingua-bot/internal/models"
)

const (
	globalConversationsFile = "conversation_memory.json"
	userConversationsFile   = "conversations.json"
	userTitlesFile          = "custom_titles.json"
	userProfileFile         = "profile.json"
)

// LocalConversations keeps conversations in JSON files under a data
// directory. Anonymous conversations share one global document
// ({"conversations": ..., "custom_titles": ...}); each user gets a directory
// of their own. Files are read whole and rewritten whole on every change.
type LocalConversations struct {
	dir    string
	logger *zap.Logger

	mu sync.Mutex
}

type globalDocument struct {
	Conversations map[string]json.RawMessage `json:"conversations"`
	CustomTitles  map[string]string          `json:"custom_titles"`
}

func NewLocalConversations(dir string, logger *zap.Logger) *LocalConversations {
	return &LocalConversations{
		dir:    dir,
		logger: logger.Named("local_conversations"),
	}
}

func (s *LocalConversations) userDir(userID string) string {
	return filepath.Join(s.dir, "users", SanitizeKey(userID))
}

// load returns the raw conversation documents and custom titles of owner.
func (s *LocalConversations) load(owner string) (map[string]json.RawMessage, map[string]string, error) {
	docs := map[string]json.RawMessage{}
	titles := map[string]string{}

	if !models.IsAnonymous(owner) {
		if _, err := ReadJSONFile(filepath.Join(s.userDir(owner), userConversationsFile), &docs); err != nil {
			return nil, nil, err
		}
		if _, err := ReadJSONFile(filepath.Join(s.userDir(owner), userTitlesFile), &titles); err != nil {
			return nil, nil, err
		}
		if docs == nil {
			docs = map[string]json.RawMessage{}
		}
		if titles == nil {
			titles = map[string]string{}
		}
		return docs, titles, nil
	}

	var raw map[string]json.RawMessage
	if _, err := ReadJSONFile(filepath.Join(s.dir, globalConversationsFile), &raw); err != nil {
		return nil, nil, err
	}

	convs, isCurrent := raw["conversations"]
	if !isCurrent || !bytes.HasPrefix(bytes.TrimSpace(convs), []byte("{")) {
		// Older files are a bare id -> messages map.
		for id, doc := range raw {
			docs[id] = doc
		}
		return docs, titles, nil
	}

	if err := jsonx.Unmarshal(convs, &docs); err != nil {
		return nil, nil, fmt.Errorf("error decoding %s: %w", globalConversationsFile, err)
	}
	if rawTitles, ok := raw["custom_titles"]; ok {
		if err := jsonx.Unmarshal(rawTitles, &titles); err != nil {
			return nil, nil, fmt.Errorf("error decoding %s: %w", globalConversationsFile, err)
		}
		if titles == nil {
			titles = map[string]string{}
		}
	}
	return docs, titles, nil
}

func (s *LocalConversations) store(owner string, docs map[string]json.RawMessage, titles map[string]string) error {
	if !models.IsAnonymous(owner) {
		if err := WriteJSONFile(filepath.Join(s.userDir(owner), userConversationsFile), docs); err != nil {
			return err
		}
		return WriteJSONFile(filepath.Join(s.userDir(owner), userTitlesFile), titles)
	}

	return WriteJSONFile(filepath.Join(s.dir, globalConversationsFile), globalDocument{
		Conversations: docs,
		CustomTitles:  titles,
	})
}

func (s *LocalConversations) Load(ctx context.Context, owner, id string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, titles, err := s.load(owner)
	if err != nil {
		return nil, err
	}

	doc, exists := docs[id]
	if !exists {
		return nil, ErrNotFound
	}

	conv, err := DecodeConversation(id, doc)
	if err != nil {
		return nil, err
	}
	if title, ok := titles[id]; ok && conv.Title == "" {
		conv.Title = title
	}
	return conv, nil
}

func (s *LocalConversations) Save(ctx context.Context, owner string, conv *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, titles, err := s.load(owner)
	if err != nil {
		return err
	}

	data, err := EncodeConversation(conv)
	if err != nil {
		return fmt.Errorf("failed to encode conversation: %w", err)
	}
	docs[conv.ID] = data

	return s.store(owner, docs, titles)
}

func (s *LocalConversations) Delete(ctx context.Context, owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, titles, err := s.load(owner)
	if err != nil {
		return err
	}

	_, exists := docs[id]
	delete(docs, id)
	delete(titles, id)

	if err := s.store(owner, docs, titles); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

func (s *LocalConversations) List(ctx context.Context, owner string) ([]*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, titles, err := s.load(owner)
	if err != nil {
		return nil, err
	}

	out := make([]*models.Conversation, 0, len(docs))
	for id, doc := range docs {
		conv, err := DecodeConversation(id, doc)
		if err != nil {
			s.logger.Warn("Skipping malformed conversation",
				zap.Error(err),
				zap.String("conversation_id", id))
			continue
		}
		if title, ok := titles[id]; ok && conv.Title == "" {
			conv.Title = title
		}
		out = append(out, conv)
	}
	return out, nil
}

func (s *LocalConversations) SetTitle(ctx context.Context, owner, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, titles, err := s.load(owner)
	if err != nil {
		return err
	}
	titles[id] = title
	return s.store(owner, docs, titles)
}

func (s *LocalConversations) Titles(ctx context.Context, owner string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, titles, err := s.load(owner)
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(titles))
	for id, title := range titles {
		out[SanitizeKey(id)] = title
	}
	return out, nil
}

func (s *LocalConversations) LoadProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	if models.IsAnonymous(userID) {
		return nil, errAnonymous
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	profile := &models.UserProfile{}
	found, err := ReadJSONFile(filepath.Join(s.userDir(userID), userProfileFile), profile)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return profile, nil
}

func (s *LocalConversations) SaveProfile(ctx context.Context, profile *models.UserProfile) error {
	if models.IsAnonymous(profile.UserID) {
		return errAnonymous
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return WriteJSONFile(filepath.Join(s.userDir(profile.UserID), userProfileFile), profile)
}
