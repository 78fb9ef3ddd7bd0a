// Package bot exposes the resolver over Telegram.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/xaenox/lingua-bot/internal/memory"
	"github.com/xaenox/lingua-bot/internal/models"
	"github.com/xaenox/lingua-bot/internal/resolver"
)

const historyLimit = 5

// Resolver is the part of resolver.Resolver the bot talks to.
type Resolver interface {
	Resolve(ctx context.Context, caller memory.Caller, id, input string) (resolver.Reply, error)
	GetConversation(ctx context.Context, caller memory.Caller, id string) ([]resolver.ChatMessage, error)
	DeleteConversation(ctx context.Context, caller memory.Caller, id string) bool
	Stats() resolver.Stats
}

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Bot struct {
	api      *tgbotapi.BotAPI
	sender   sender
	resolver Resolver
	logger   *zap.Logger

	queue *chatQueue
}

func New(token string, debug bool, r Resolver, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	api.Debug = debug

	b := &Bot{
		api:      api,
		sender:   api,
		resolver: r,
		logger:   logger.Named("telegram"),
	}
	b.queue = newChatQueue(b.handleMessage)
	return b, nil
}

// Start polls for updates until ctx is cancelled. Messages of one chat are
// handled in the order they arrive. Start returns after in-flight messages
// are done.
func (b *Bot) Start(ctx context.Context) error {
	defer b.queue.wait()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("Telegram bot started", zap.String("username", b.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			b.queue.push(ctx, update.Message)
		}
	}
}

// caller maps a Telegram chat onto a memory caller and conversation id.
func caller(message *tgbotapi.Message) (memory.Caller, string) {
	var userID int64
	if message.From != nil {
		userID = message.From.ID
	} else {
		userID = message.Chat.ID
	}
	c := memory.Caller{UserID: fmt.Sprintf("tg%d", userID)}
	id := fmt.Sprintf("%s%d", c.ConversationPrefix(), message.Chat.ID)
	c.SessionID = id
	return c, id
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.IsCommand() {
		b.handleCommand(ctx, message)
		return
	}

	content := message.Text
	if content == "" {
		content = message.Caption
	}
	if strings.TrimSpace(content) == "" {
		b.sendMessage(message.Chat.ID, "I can only read text messages for now.")
		return
	}

	c, id := caller(message)
	reply, err := b.resolver.Resolve(ctx, c, id, content)
	if err != nil {
		b.logger.Error("Failed to resolve message",
			zap.Error(err),
			zap.String("conversation_id", id))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't process your message. Please try again.")
		return
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, reply.Text)
	msg.ReplyToMessageID = message.MessageID
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send reply",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
	}
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		b.sendMessage(message.Chat.ID, welcomeText)
	case "help":
		b.sendMessage(message.Chat.ID, helpText)
	case "stats":
		b.sendMarkdown(message.Chat.ID, formatStats(b.resolver.Stats()))
	case "history":
		b.handleHistory(ctx, message)
	case "reset":
		c, id := caller(message)
		if b.resolver.DeleteConversation(ctx, c, id) {
			b.sendMessage(message.Chat.ID, "Conversation cleared.")
		} else {
			b.sendMessage(message.Chat.ID, "There is nothing to clear yet.")
		}
	default:
		b.sendMessage(message.Chat.ID, "Unknown command. Use /help to see available commands.")
	}
}

const welcomeText = `Welcome to LinguaBot! 👋
مرحباً بك!

I chat in English and Arabic, remember our conversation and learn from your corrections.
Use /help to see all available commands.`

const helpText = `Available commands:
/start - Start the bot
/help - Show this help message
/stats - Show what I have learned so far
/history - Show the last messages of this chat
/reset - Forget this chat's conversation

If I answer badly, reply with "learn: <better answer>" (or "تعلم: ...") and I'll use it next time.`

func (b *Bot) handleHistory(ctx context.Context, message *tgbotapi.Message) {
	c, id := caller(message)
	messages, err := b.resolver.GetConversation(ctx, c, id)
	if err != nil && !errors.Is(err, resolver.ErrAccessDenied) {
		b.logger.Error("Failed to get conversation",
			zap.Error(err),
			zap.String("conversation_id", id))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't retrieve your message history.")
		return
	}

	if len(messages) == 0 {
		b.sendMessage(message.Chat.ID, "You don't have any messages yet.")
		return
	}
	b.sendMarkdown(message.Chat.ID, formatHistory(messages, historyLimit))
}

func formatStats(stats resolver.Stats) string {
	var sb strings.Builder
	sb.WriteString("*Stats*\n")
	fmt.Fprintf(&sb, "Learned corrections: %d\n", stats.LearnedCount)
	fmt.Fprintf(&sb, "Conversations: %d\n", stats.SessionCount)
	if len(stats.PopularIntents) > 0 {
		sb.WriteString("\n*Popular topics:*\n")
		for _, ic := range stats.PopularIntents {
			fmt.Fprintf(&sb, "%s %d\n", escapeMarkdown("#"+ic.Intent), ic.Count)
		}
	}
	return sb.String()
}

func formatHistory(messages []resolver.ChatMessage, limit int) string {
	if len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}

	var sb strings.Builder
	sb.WriteString("*Your recent messages:*\n\n")
	for _, msg := range messages {
		who := "🤖"
		if msg.Sender == string(models.RoleUser) {
			who = "🧑"
		}
		fmt.Fprintf(&sb, "%s _%s_\n", who, escapeMarkdown(msg.Text))
	}
	return sb.String()
}

// escapeMarkdown escapes the characters MarkdownV2 reserves.
func escapeMarkdown(text string) string {
	specialChars := []string{"\\", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	escaped := text
	for _, char := range specialChars {
		escaped = strings.ReplaceAll(escaped, char, "\\"+char)
	}
	return escaped
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendMarkdown(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendErrorMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, "⚠️ "+text)
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send error message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}
