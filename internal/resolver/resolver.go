// Package resolver decides which source answers an incoming message and
// records the exchange in conversation memory.
package resolver

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/xaenox/lingua-bot/internal/classifier"
	"github.com/xaenox/lingua-bot/internal/generative"
	"github.com/xaenox/lingua-bot/internal/lang"
	"github.com/xaenox/lingua-bot/internal/learning"
	"github.com/xaenox/lingua-bot/internal/memory"
	"github.com/xaenox/lingua-bot/internal/models"
)

// ErrAccessDenied is the only error Resolve returns.
var ErrAccessDenied = memory.ErrAccessDenied

// Source names the pipeline stage that produced a reply.
type Source string

const (
	SourceSystem     Source = "system"
	SourceLearning   Source = "learning"
	SourceLearned    Source = "learned"
	SourceSpecial    Source = "special"
	SourceIntent     Source = "intent"
	SourceGenerative Source = "generative"
	SourceUnknown    Source = "unknown"
)

const (
	DefaultMaxMessageLength = 1000
	popularIntentsLimit     = 5
	priorTurnsScanned       = 2
)

// DefaultLocalIntents are answered from the response table without asking
// the generative model.
var DefaultLocalIntents = []string{
	classifier.IntentGreeting,
	classifier.IntentFarewell,
	classifier.IntentThanks,
	classifier.IntentTime,
	classifier.IntentDate,
}

var learnCommand = regexp.MustCompile(`(?is)^(learn:|تعلم:)\s*(.*)`)

type Config struct {
	MaxMessageLength  int
	DefaultLanguage   string
	LocalIntents      []string
	EagerGenerative   bool
	ContextMessages   int
	FormattingEnabled bool
}

type Reply struct {
	Text           string `json:"response"`
	ConversationID string `json:"conversation_id"`
	Source         Source `json:"source"`
	Intent         string `json:"intent,omitempty"`
	Language       string `json:"language"`
}

// ChatMessage is the transport view of a stored message.
type ChatMessage struct {
	Text      string  `json:"text"`
	Sender    string  `json:"sender"`
	Timestamp float64 `json:"timestamp"`
}

type Stats struct {
	LearnedCount        int                    `json:"learned_count"`
	SessionCount        int                    `json:"session_count"`
	PopularIntents      []learning.IntentCount `json:"popular_intents"`
	GenerativeAvailable bool                   `json:"generative_available"`
	FormattingEnabled   bool                   `json:"formatting_enabled"`
}

type Resolver struct {
	memory    *memory.Service
	learning  *learning.Store
	matcher   *classifier.Matcher
	responses *classifier.ResponseTable
	gen       *generative.Client
	cfg       Config
	local     map[string]bool
	locks     *memory.KeyedMutex
	now       func() time.Time
	logger    *zap.Logger
}

func New(
	mem *memory.Service,
	store *learning.Store,
	matcher *classifier.Matcher,
	responses *classifier.ResponseTable,
	gen *generative.Client,
	cfg Config,
	logger *zap.Logger,
) *Resolver {
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = DefaultMaxMessageLength
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = lang.English
	}
	if cfg.ContextMessages <= 0 {
		cfg.ContextMessages = memory.DefaultContextMessages
	}
	if len(cfg.LocalIntents) == 0 {
		cfg.LocalIntents = DefaultLocalIntents
	}

	local := make(map[string]bool, len(cfg.LocalIntents))
	for _, intent := range cfg.LocalIntents {
		local[intent] = true
	}

	return &Resolver{
		memory:    mem,
		learning:  store,
		matcher:   matcher,
		responses: responses,
		gen:       gen,
		cfg:       cfg,
		local:     local,
		locks:     memory.NewKeyedMutex(),
		now:       time.Now,
		logger:    logger.Named("resolver"),
	}
}

// conversationID picks the id used when the caller did not name one.
func (r *Resolver) conversationID(caller memory.Caller, id string) string {
	if id != "" {
		return id
	}
	if caller.Anonymous() {
		return caller.SessionID
	}
	return caller.NewConversationID(r.now())
}

// Resolve answers input within conversation id. User-facing problems are
// reported in the reply text; only access violations are errors.
func (r *Resolver) Resolve(ctx context.Context, caller memory.Caller, id, input string) (Reply, error) {
	id = r.conversationID(caller, id)
	language := lang.Detect(input, r.cfg.DefaultLanguage)
	reply := Reply{ConversationID: id, Language: language}

	if utf8.RuneCountInString(input) > r.cfg.MaxMessageLength {
		reply.Text = localize(msgTooLong, language, r.cfg.MaxMessageLength)
		reply.Source = SourceSystem
		return reply, nil
	}

	unlock := r.locks.Lock(id)
	defer unlock()

	history, err := r.memory.Recent(ctx, caller, id, r.cfg.ContextMessages)
	if err != nil {
		return Reply{}, ErrAccessDenied
	}

	if m := learnCommand.FindStringSubmatch(input); m != nil {
		reply.Text = r.learn(history, input, strings.TrimSpace(m[2]), language)
		reply.Source = SourceLearning
		return reply, nil
	}

	userMsg := models.NewMessage(models.RoleUser, input, r.now())
	if err := r.memory.Append(ctx, caller, id, userMsg); err != nil {
		if errors.Is(err, memory.ErrAccessDenied) {
			return Reply{}, ErrAccessDenied
		}
		r.logger.Error("Failed to record user message",
			zap.Error(err),
			zap.String("conversation_id", id))
	}
	history = append(history, userMsg)

	normalized := lang.Normalize(input)
	r.answer(ctx, &reply, input, normalized, history)

	r.record(ctx, caller, id, reply.Text)
	r.memory.TouchProfile(ctx, caller, language, reply.Intent, r.now())

	r.logger.Debug("Message resolved",
		zap.String("conversation_id", id),
		zap.String("source", string(reply.Source)),
		zap.String("intent", reply.Intent),
		zap.String("language", language))
	return reply, nil
}

// answer runs the stages that follow recording the user turn. The first
// stage that produces text wins.
func (r *Resolver) answer(ctx context.Context, reply *Reply, input, normalized string, history []models.Message) {
	language := reply.Language

	if text, ok := r.learning.Lookup(normalized); ok {
		reply.Text, reply.Source = text, SourceLearned
		return
	}

	if r.matcher.Matches(classifier.IntentFormatting, normalized) {
		if text, ok := r.responses.Pick(classifier.IntentFormatting, language, r.now()); ok {
			reply.Text, reply.Source, reply.Intent = text, SourceSpecial, classifier.IntentFormatting
			return
		}
	}

	if r.cfg.EagerGenerative {
		if text, ok := r.gen.Respond(ctx, input, history, language); ok {
			reply.Text, reply.Source = text, SourceGenerative
			return
		}
	}

	if intent, ok := r.matcher.MatchAmong(normalized, r.local); ok {
		r.learning.RecordIntent(intent)
		if text, ok := r.responses.Pick(intent, language, r.now()); ok {
			reply.Text, reply.Source, reply.Intent = text, SourceIntent, intent
			return
		}
	}

	if !r.cfg.EagerGenerative {
		if text, ok := r.gen.Respond(ctx, input, history, language); ok {
			reply.Text, reply.Source = text, SourceGenerative
			return
		}
	}

	text, _ := r.responses.Pick(classifier.IntentUnknown, language, r.now())
	reply.Text, reply.Source = text, SourceUnknown
}

// learn handles an explicit correction of the caller's previous message.
func (r *Resolver) learn(history []models.Message, input, correction, language string) string {
	if correction == "" {
		return localize(msgLearnEmpty, language)
	}

	var prior string
	for i, scanned := len(history)-1, 0; i >= 0 && scanned < priorTurnsScanned; i, scanned = i-1, scanned+1 {
		msg := history[i]
		if msg.Role == models.RoleUser && msg.Text != input {
			prior = msg.Text
			break
		}
	}
	if prior == "" {
		return localize(msgLearnNoTarget, language)
	}

	if err := r.learning.Teach(prior, correction); err != nil {
		r.logger.Error("Failed to store correction", zap.Error(err))
		return localize(msgLearnNoTarget, language)
	}

	text, _ := r.responses.Pick(classifier.IntentLearning, language, r.now())
	return text
}

func (r *Resolver) record(ctx context.Context, caller memory.Caller, id, text string) {
	msg := models.NewMessage(models.RoleAssistant, text, r.now())
	if err := r.memory.Append(ctx, caller, id, msg); err != nil {
		r.logger.Error("Failed to record reply",
			zap.Error(err),
			zap.String("conversation_id", id))
	}
}

func (r *Resolver) ListConversations(ctx context.Context, caller memory.Caller) []models.ConversationSummary {
	return r.memory.List(ctx, caller)
}

// GetConversation returns the messages of conversation id, oldest first.
func (r *Resolver) GetConversation(ctx context.Context, caller memory.Caller, id string) ([]ChatMessage, error) {
	conv, err := r.memory.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	out := make([]ChatMessage, 0, len(conv.Messages))
	for _, msg := range conv.Messages {
		sender := "bot"
		if msg.Role.Normalize() == models.RoleUser {
			sender = "user"
		}
		out = append(out, ChatMessage{Text: msg.Text, Sender: sender, Timestamp: msg.Timestamp})
	}
	return out, nil
}

func (r *Resolver) DeleteConversation(ctx context.Context, caller memory.Caller, id string) bool {
	unlock := r.locks.Lock(id)
	defer unlock()
	return r.memory.Delete(ctx, caller, id)
}

func (r *Resolver) RenameConversation(ctx context.Context, caller memory.Caller, id, title string) bool {
	return r.memory.Rename(ctx, caller, id, title)
}

// GenerateTitle asks the generative model to name the conversation and
// stores the result as its title.
func (r *Resolver) GenerateTitle(ctx context.Context, caller memory.Caller, id string) (string, error) {
	conv, err := r.memory.Get(ctx, caller, id)
	if err != nil {
		return "", err
	}

	title := r.gen.Title(ctx, conv.Messages)
	if !r.memory.Rename(ctx, caller, id, title) {
		r.logger.Warn("Failed to store generated title", zap.String("conversation_id", id))
	}
	return title, nil
}

func (r *Resolver) Stats() Stats {
	return Stats{
		LearnedCount:        r.learning.Count(),
		SessionCount:        r.memory.SessionCount(),
		PopularIntents:      r.learning.PopularIntents(popularIntentsLimit),
		GenerativeAvailable: r.gen.Available(),
		FormattingEnabled:   r.cfg.FormattingEnabled,
	}
}
