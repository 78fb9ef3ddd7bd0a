package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xaenox/lingua-bot/internal/learning"
	"github.com/xaenox/lingua-bot/internal/memory"
	"github.com/xaenox/lingua-bot/internal/resolver"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
}

func (s *recordingSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		s.sent = append(s.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (s *recordingSender) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.sent)
	return s.sent[len(s.sent)-1]
}

type fakeResolver struct {
	mu      sync.Mutex
	callers []memory.Caller
	ids     []string
	inputs  []string
	deleted bool
	history []resolver.ChatMessage

	// slow delays replies to this input.
	slow string
}

func (r *fakeResolver) Resolve(ctx context.Context, caller memory.Caller, id, input string) (resolver.Reply, error) {
	if input == r.slow {
		time.Sleep(50 * time.Millisecond)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callers = append(r.callers, caller)
	r.ids = append(r.ids, id)
	r.inputs = append(r.inputs, input)
	return resolver.Reply{Text: "echo: " + input, ConversationID: id}, nil
}

func (r *fakeResolver) GetConversation(ctx context.Context, caller memory.Caller, id string) ([]resolver.ChatMessage, error) {
	if r.history == nil {
		return nil, resolver.ErrAccessDenied
	}
	return r.history, nil
}

func (r *fakeResolver) DeleteConversation(ctx context.Context, caller memory.Caller, id string) bool {
	return r.deleted
}

func (r *fakeResolver) Stats() resolver.Stats {
	return resolver.Stats{
		LearnedCount:   3,
		SessionCount:   2,
		PopularIntents: []learning.IntentCount{{Intent: "greeting", Count: 4}},
	}
}

func newTestBot(t *testing.T, r Resolver) (*Bot, *recordingSender) {
	t.Helper()
	s := &recordingSender{}
	b := &Bot{sender: s, resolver: r, logger: zaptest.NewLogger(t)}
	b.queue = newChatQueue(b.handleMessage)
	return b, s
}

func textMessage(text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 7,
		From:      &tgbotapi.User{ID: 42},
		Chat:      &tgbotapi.Chat{ID: 1001},
		Text:      text,
	}
}

func commandMessage(command string) *tgbotapi.Message {
	msg := textMessage("/" + command)
	msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(command) + 1}}
	return msg
}

func TestBot_TextGoesThroughResolver(t *testing.T) {
	r := &fakeResolver{}
	b, s := newTestBot(t, r)

	b.handleMessage(context.Background(), textMessage("hello"))

	require.Len(t, r.ids, 1)
	assert.Equal(t, "conv_tg42_1001", r.ids[0])
	assert.Equal(t, "tg42", r.callers[0].UserID)
	assert.False(t, r.callers[0].Anonymous())

	sent := s.last(t)
	assert.Equal(t, "echo: hello", sent.Text)
	assert.Equal(t, 7, sent.ReplyToMessageID)
}

func TestBot_KeepsOrderWithinChat(t *testing.T) {
	r := &fakeResolver{slow: "first"}
	b, s := newTestBot(t, r)

	other := textMessage("elsewhere")
	other.Chat = &tgbotapi.Chat{ID: 2002}

	ctx := context.Background()
	b.queue.push(ctx, textMessage("first"))
	b.queue.push(ctx, textMessage("second"))
	b.queue.push(ctx, other)
	b.queue.wait()

	var sameChat []string
	for i, id := range r.ids {
		if id == "conv_tg42_1001" {
			sameChat = append(sameChat, r.inputs[i])
		}
	}
	assert.Equal(t, []string{"first", "second"}, sameChat)
	assert.Len(t, r.inputs, 3)

	var replies []string
	s.mu.Lock()
	for _, msg := range s.sent {
		if msg.ChatID == 1001 {
			replies = append(replies, msg.Text)
		}
	}
	s.mu.Unlock()
	require.Len(t, replies, 2)
	assert.Contains(t, replies[0], "first")
	assert.Contains(t, replies[1], "second")
}

func TestBot_Commands(t *testing.T) {
	r := &fakeResolver{}
	b, s := newTestBot(t, r)
	ctx := context.Background()

	b.handleMessage(ctx, commandMessage("stats"))
	sent := s.last(t)
	assert.Equal(t, tgbotapi.ModeMarkdownV2, sent.ParseMode)
	assert.Contains(t, sent.Text, "Learned corrections: 3")
	assert.Contains(t, sent.Text, `\#greeting 4`)

	b.handleMessage(ctx, commandMessage("history"))
	assert.Equal(t, "You don't have any messages yet.", s.last(t).Text)

	b.handleMessage(ctx, commandMessage("reset"))
	assert.Equal(t, "There is nothing to clear yet.", s.last(t).Text)

	r.deleted = true
	b.handleMessage(ctx, commandMessage("reset"))
	assert.Equal(t, "Conversation cleared.", s.last(t).Text)

	b.handleMessage(ctx, commandMessage("nope"))
	assert.Contains(t, s.last(t).Text, "Unknown command")
	assert.Empty(t, r.ids)
}

func TestFormatHistory(t *testing.T) {
	msgs := []resolver.ChatMessage{
		{Text: "one", Sender: "user"},
		{Text: "two", Sender: "bot"},
		{Text: "3.5!", Sender: "user"},
	}

	got := formatHistory(msgs, 2)
	assert.NotContains(t, got, "one")
	assert.Contains(t, got, "🤖 _two_")
	assert.Contains(t, got, `🧑 _3\.5\!_`)
}
