// Package memory keeps per-conversation message history with access control
// on top of the conversation stores.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/xaenox/lingua-bot/internal/lang"
	"github.com/xaenox/lingua-bot/internal/models"
	"github.com/xaenox/lingua-bot/internal/storage"
)

// ErrAccessDenied is returned both for conversations the caller may not see
// and for conversations that do not exist.
var ErrAccessDenied = errors.New("conversation not found or access denied")

const (
	DefaultRetentionWindow = 50
	DefaultContextMessages = 5
	defaultCacheSize       = 1024

	summaryLength = 30

	untitledConversation = "محادثة جديدة | New conversation"
	emptyPreview         = "لا توجد رسائل | No messages"
)

// Caller identifies who is asking. An empty or "anonymous" UserID is an
// anonymous caller bound to SessionID.
type Caller struct {
	UserID    string
	SessionID string
}

func (c Caller) Anonymous() bool {
	return models.IsAnonymous(c.UserID)
}

// Owner is the storage owner for the caller's conversations.
func (c Caller) Owner() string {
	if c.Anonymous() {
		return models.AnonymousUserID
	}
	return c.UserID
}

// ConversationPrefix is the id prefix reserved for the caller's conversations.
func (c Caller) ConversationPrefix() string {
	return "conv_" + c.UserID + "_"
}

// NewConversationID returns a fresh id owned by an authenticated caller.
func (c Caller) NewConversationID(now time.Time) string {
	return fmt.Sprintf("%s%d", c.ConversationPrefix(), now.Unix())
}

type Config struct {
	RetentionWindow int
	ContextMessages int
	CacheSize       int
}

type cacheEntry struct {
	owner string
	conv  *models.Conversation
}

type Service struct {
	users  storage.ConversationStore
	local  storage.ConversationStore
	cfg    Config
	cache  *lru.Cache[string, cacheEntry]
	locks  *KeyedMutex
	logger *zap.Logger

	mu    sync.Mutex
	known map[string]struct{}
}

// New builds the service. remote may be nil, in which case authenticated
// callers are served from local alone.
func New(remote, local storage.ConversationStore, cfg Config, logger *zap.Logger) (*Service, error) {
	if local == nil {
		return nil, errors.New("local conversation store is required")
	}
	if cfg.RetentionWindow <= 0 {
		cfg.RetentionWindow = DefaultRetentionWindow
	}
	if cfg.ContextMessages <= 0 {
		cfg.ContextMessages = DefaultContextMessages
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}

	cache, err := lru.New[string, cacheEntry](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation cache: %w", err)
	}

	return &Service{
		users:  storage.WithFallback(remote, local, logger),
		local:  local,
		cfg:    cfg,
		cache:  cache,
		locks:  NewKeyedMutex(),
		logger: logger.Named("memory"),
		known:  make(map[string]struct{}),
	}, nil
}

func (s *Service) store(caller Caller) storage.ConversationStore {
	if caller.Anonymous() {
		return s.local
	}
	return s.users
}

// load returns the stored conversation, nil when it does not exist yet but
// the caller may create it, or ErrAccessDenied.
func (s *Service) load(ctx context.Context, caller Caller, id string) (*models.Conversation, error) {
	if id == "" {
		return nil, ErrAccessDenied
	}
	if caller.Anonymous() && id != caller.SessionID {
		return nil, ErrAccessDenied
	}

	owner := caller.Owner()
	conv, err := s.store(caller).Load(ctx, owner, id)
	switch {
	case err == nil:
		return conv, nil
	case errors.Is(err, storage.ErrNotFound):
	default:
		s.logger.Error("Failed to load conversation",
			zap.Error(err),
			zap.String("user_id", owner),
			zap.String("conversation_id", id))
	}

	if entry, ok := s.cache.Get(id); ok && entry.owner == owner {
		return entry.conv.Clone(), nil
	}
	if caller.Anonymous() || strings.HasPrefix(id, caller.ConversationPrefix()) {
		return nil, nil
	}
	return nil, ErrAccessDenied
}

// lookup is load with the cache consulted first.
func (s *Service) lookup(ctx context.Context, caller Caller, id string) (*models.Conversation, error) {
	if caller.Anonymous() && id != caller.SessionID {
		return nil, ErrAccessDenied
	}
	if entry, ok := s.cache.Get(id); ok && entry.owner == caller.Owner() {
		return entry.conv.Clone(), nil
	}
	return s.load(ctx, caller, id)
}

// Append adds msg to conversation id, creating it when the caller may own it.
func (s *Service) Append(ctx context.Context, caller Caller, id string, msg models.Message) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	conv, err := s.load(ctx, caller, id)
	if err != nil {
		return err
	}
	if conv == nil {
		conv = &models.Conversation{ID: id}
	}
	conv.Append(msg, s.cfg.RetentionWindow)

	owner := caller.Owner()
	s.cache.Add(id, cacheEntry{owner: owner, conv: conv.Clone()})
	s.remember(id)

	if err := s.store(caller).Save(ctx, owner, conv); err != nil {
		s.logger.Error("Failed to save conversation",
			zap.Error(err),
			zap.String("user_id", owner),
			zap.String("conversation_id", id))
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}

// Recent returns the last limit messages, oldest first. A limit <= 0 uses
// the configured context size. Unknown conversations the caller could
// create yield no messages.
func (s *Service) Recent(ctx context.Context, caller Caller, id string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = s.cfg.ContextMessages
	}
	conv, err := s.lookup(ctx, caller, id)
	if err != nil || conv == nil {
		return nil, err
	}
	return conv.Recent(limit), nil
}

func (s *Service) Get(ctx context.Context, caller Caller, id string) (*models.Conversation, error) {
	conv, err := s.lookup(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrAccessDenied
	}
	return conv, nil
}

// Delete removes the conversation and its custom title.
func (s *Service) Delete(ctx context.Context, caller Caller, id string) bool {
	unlock := s.locks.Lock(id)
	defer unlock()

	conv, err := s.lookup(ctx, caller, id)
	if err != nil || conv == nil {
		return false
	}

	s.cache.Remove(id)
	s.forget(id)

	owner := caller.Owner()
	if err := s.store(caller).Delete(ctx, owner, id); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Error("Failed to delete conversation",
				zap.Error(err),
				zap.String("user_id", owner),
				zap.String("conversation_id", id))
		}
		return false
	}

	s.logger.Info("Conversation deleted",
		zap.String("user_id", owner),
		zap.String("conversation_id", id))
	return true
}

// Rename sets a custom title. The conversation's updated time is unchanged.
func (s *Service) Rename(ctx context.Context, caller Caller, id, title string) bool {
	title = strings.TrimSpace(title)
	if title == "" {
		return false
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	conv, err := s.load(ctx, caller, id)
	if err != nil || conv == nil {
		return false
	}
	conv.Title = title

	owner := caller.Owner()
	store := s.store(caller)
	if err := store.Save(ctx, owner, conv); err != nil {
		s.logger.Error("Failed to save renamed conversation",
			zap.Error(err),
			zap.String("conversation_id", id))
		return false
	}
	if err := store.SetTitle(ctx, owner, id, title); err != nil {
		s.logger.Warn("Failed to store custom title",
			zap.Error(err),
			zap.String("conversation_id", id))
	}
	s.cache.Add(id, cacheEntry{owner: owner, conv: conv.Clone()})
	return true
}

// List summarises every non-empty conversation visible to caller, newest
// first. Anonymous callers only see their session conversation.
func (s *Service) List(ctx context.Context, caller Caller) []models.ConversationSummary {
	var convs []*models.Conversation
	titles := map[string]string{}

	if caller.Anonymous() {
		conv, err := s.lookup(ctx, caller, caller.SessionID)
		if err == nil && conv != nil {
			convs = append(convs, conv)
		}
	} else {
		owner := caller.Owner()
		store := s.store(caller)

		stored, err := store.List(ctx, owner)
		if err != nil {
			s.logger.Error("Failed to list conversations",
				zap.Error(err),
				zap.String("user_id", owner))
		}
		if t, err := store.Titles(ctx, owner); err == nil {
			titles = t
		}

		seen := make(map[string]bool, len(stored))
		for _, conv := range stored {
			seen[conv.ID] = true
			convs = append(convs, conv)
		}
		for _, id := range s.cache.Keys() {
			if seen[id] {
				continue
			}
			if entry, ok := s.cache.Peek(id); ok && entry.owner == owner {
				convs = append(convs, entry.conv.Clone())
			}
		}
	}

	out := make([]models.ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		if len(conv.Messages) == 0 {
			continue
		}
		out = append(out, summarize(conv, titles[storage.SanitizeKey(conv.ID)]))
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp > out[j].Timestamp
	})
	return out
}

func summarize(conv *models.Conversation, customTitle string) models.ConversationSummary {
	title := conv.Title
	if title == "" {
		title = customTitle
	}
	if title == "" {
		title = untitledConversation
		for _, msg := range conv.Messages {
			if msg.Role == models.RoleUser {
				title = lang.Truncate(msg.Text, summaryLength, "...")
				break
			}
		}
	}

	preview := emptyPreview
	timestamp := conv.UpdatedAt
	if n := len(conv.Messages); n > 0 {
		last := conv.Messages[n-1]
		preview = lang.Truncate(last.Text, summaryLength, "...")
		timestamp = last.Timestamp
	}

	return models.ConversationSummary{
		ID:        conv.ID,
		Title:     title,
		Preview:   preview,
		Timestamp: timestamp,
	}
}

// TouchProfile records activity for an authenticated caller. Failures are
// logged only.
func (s *Service) TouchProfile(ctx context.Context, caller Caller, language, topic string, at time.Time) {
	if caller.Anonymous() {
		return
	}

	store := s.store(caller)
	profile, err := store.LoadProfile(ctx, caller.UserID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("Failed to load user profile",
				zap.Error(err),
				zap.String("user_id", caller.UserID))
		}
		profile = &models.UserProfile{UserID: caller.UserID}
	}

	profile.Touch(language, topic, models.UnixSeconds(at))
	if err := store.SaveProfile(ctx, profile); err != nil {
		s.logger.Warn("Failed to save user profile",
			zap.Error(err),
			zap.String("user_id", caller.UserID))
	}
}

// Profile returns the caller's stored profile, if any.
func (s *Service) Profile(ctx context.Context, caller Caller) (*models.UserProfile, error) {
	if caller.Anonymous() {
		return nil, storage.ErrNotFound
	}
	return s.store(caller).LoadProfile(ctx, caller.UserID)
}

// SessionCount is the number of conversations this process has written to.
func (s *Service) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.known)
}

func (s *Service) remember(id string) {
	s.mu.Lock()
	s.known[id] = struct{}{}
	s.mu.Unlock()
}

func (s *Service) forget(id string) {
	s.mu.Lock()
	delete(s.known, id)
	s.mu.Unlock()
}
