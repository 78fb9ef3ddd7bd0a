// Package generative wraps the external text-generation model used when no
// local rule answers a message.
package generative

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/lingua-bot/internal/lang"
	"github.com/xaenox/lingua-bot/internal/models"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

type Turn struct {
	Role Role
	Text string
}

// Params are the static sampling settings sent with every call.
type Params struct {
	Temperature float32
	MaxTokens   int
	TopP        float32
	TopK        int
}

type Request struct {
	Instruction string
	Prompt      string
	History     []Turn
	Params      Params
}

// Generator is the external capability: given a prompt and optional history
// it returns text or fails.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

type Config struct {
	Params            Params
	Timeout           time.Duration
	PreserveHistory   bool
	EnableFormatting  bool
	MaxResponseLength int
}

const (
	defaultTimeout           = 20 * time.Second
	defaultMaxResponseLength = 800
	maxTitleLength           = 50
	titleFallbackLength      = 30
	titleContextLength       = 150

	DefaultTitle = "New Conversation"
)

var (
	prefixPattern = regexp.MustCompile(`(?i)^\s*(question:|response:|answer:|السؤال:|الإجابة:|الجواب:)\s*`)
	fencePattern  = regexp.MustCompile("(?m)^[ \t]*```[^\n]*(\n|$)")
)

var truncatedNotice = map[string]string{
	lang.English: "\n\n(Response truncated)",
	lang.Arabic:  "\n\n(تم اختصار الرد)",
}

// Client builds prompts, calls the Generator and cleans up what it returns.
type Client struct {
	gen    Generator
	cfg    Config
	logger *zap.Logger
}

func NewClient(gen Generator, cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxResponseLength <= 0 {
		cfg.MaxResponseLength = defaultMaxResponseLength
	}
	return &Client{
		gen:    gen,
		cfg:    cfg,
		logger: logger.Named("generative"),
	}
}

// Available reports whether a Generator is configured.
func (c *Client) Available() bool {
	return c != nil && c.gen != nil
}

// Respond answers input in language. It returns false on any failure of the
// model; the reason is logged, never returned.
func (c *Client) Respond(ctx context.Context, input string, history []models.Message, language string) (string, bool) {
	if !c.Available() {
		return "", false
	}

	req := Request{
		Instruction: c.instruction(language),
		Params:      c.cfg.Params,
	}

	turns := historyTurns(history, input)
	if c.cfg.PreserveHistory && len(turns) > 0 {
		req.History = turns
		req.Prompt = input
	} else {
		req.Prompt = questionPrompt(input, language)
	}

	raw, err := c.generate(ctx, req)
	if err != nil {
		c.logger.Warn("Generative model failed",
			zap.Error(err),
			zap.String("language", language),
			zap.Int("history", len(req.History)))
		return "", false
	}

	reply := c.clean(raw, language)
	if reply == "" {
		c.logger.Warn("Generative model returned an empty reply")
		return "", false
	}
	return reply, true
}

// Title asks the model for a short conversation title, falling back to the
// first user message.
func (c *Client) Title(ctx context.Context, messages []models.Message) string {
	if len(messages) == 0 {
		return DefaultTitle
	}

	var (
		sb        strings.Builder
		language  = lang.English
		firstUser string
		seenUser  bool
	)
	for _, msg := range messages {
		role := "Assistant"
		if msg.Role == models.RoleUser {
			role = "User"
			if !seenUser {
				firstUser = msg.Text
				language = lang.Detect(msg.Text, lang.English)
				seenUser = true
			}
		}
		fmt.Fprintf(&sb, "%s: %s\n", role, lang.Truncate(msg.Text, titleContextLength, ""))
	}

	if c.Available() {
		raw, err := c.generate(ctx, Request{
			Prompt: titlePrompt(sb.String(), language),
			Params: c.cfg.Params,
		})
		if err == nil {
			if title := cleanTitle(raw); title != "" {
				return title
			}
		} else {
			c.logger.Warn("Failed to generate title", zap.Error(err))
		}
	}

	if firstUser != "" {
		return lang.Truncate(firstUser, titleFallbackLength, "...")
	}
	return DefaultTitle
}

func (c *Client) generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := c.gen.Generate(ctx, req)
		done <- result{text: text, err: err}
	}()

	select {
	case r := <-done:
		return r.text, r.err
	case <-ctx.Done():
		return "", fmt.Errorf("generation timed out: %w", ctx.Err())
	}
}

// clean strips echoed prompt labels, optionally code fences, and bounds the
// length of a raw model reply.
func (c *Client) clean(raw, language string) string {
	text := strings.TrimSpace(raw)
	for {
		stripped := prefixPattern.ReplaceAllString(text, "")
		if stripped == text {
			break
		}
		text = stripped
	}

	if !c.cfg.EnableFormatting {
		text = fencePattern.ReplaceAllString(text, "")
	}
	text = strings.TrimSpace(text)

	runes := []rune(text)
	if len(runes) > c.cfg.MaxResponseLength {
		cut := c.cfg.MaxResponseLength - 3
		if cut < 0 {
			cut = 0
		}
		notice, ok := truncatedNotice[language]
		if !ok {
			notice = truncatedNotice[lang.English]
		}
		text = string(runes[:cut]) + "..." + notice
	}
	return text
}

func (c *Client) instruction(language string) string {
	if language == lang.Arabic {
		s := "أنت مساعد محادثة ذكي يتحدث باللغة العربية. أجب بطريقة طبيعية وإنسانية وليس كروبوت. " +
			"استخدم لغة عادية وواضحة. احرص على أن تكون إجاباتك مفيدة وودية ودقيقة. " +
			"إذا لم تكن متأكدًا من إجابة ما، فلا بأس أن تقول ذلك."
		if c.cfg.EnableFormatting {
			s += " استخدم تنسيق Markdown عند الضرورة، مثل **النص الغامق** والقوائم ورموز `الشفرة`."
		}
		return s
	}

	s := "You are an intelligent conversation assistant. Respond naturally and in a human-like manner, not like a robot. " +
		"Use plain, clear language. Make sure your responses are helpful, friendly, and accurate. " +
		"If you're not sure about an answer, it's okay to say so."
	if c.cfg.EnableFormatting {
		s += " Use Markdown formatting where appropriate, such as **bold text**, lists and `code snippets`."
	}
	return s
}

func questionPrompt(input, language string) string {
	if language == lang.Arabic {
		return fmt.Sprintf("السؤال: %s\n\nالإجابة:", input)
	}
	return fmt.Sprintf("Question: %s\n\nResponse:", input)
}

func titlePrompt(conversation, language string) string {
	if language == lang.Arabic {
		return "بناءً على هذه المحادثة، قم بإنشاء عنوان قصير ووصفي (بحد أقصى 4-6 كلمات) يلخص الموضوع الرئيسي أو السؤال. يجب أن يكون العنوان باللغة العربية.\n\n" +
			"المحادثة:\n" + conversation + "\nاكتب العنوان فقط، بدون أي شيء آخر."
	}
	return "Based on this conversation, generate a short, descriptive title (maximum 4-6 words) that captures the main topic or question. The title should be in English.\n\n" +
		"Conversation:\n" + conversation + "\nGenerate only the title, nothing else."
}

func cleanTitle(raw string) string {
	title := strings.NewReplacer(`"`, "", "'", "", "**", "").Replace(raw)
	title = strings.TrimSpace(title)
	if i := strings.Index(title, "\n"); i >= 0 {
		title = strings.TrimSpace(title[:i])
	}
	if len([]rune(title)) > maxTitleLength {
		title = lang.Truncate(title, maxTitleLength-3, "...")
	}
	return title
}

// historyTurns converts stored messages into model turns, dropping the
// current input when it is already the last stored turn.
func historyTurns(history []models.Message, input string) []Turn {
	if n := len(history); n > 0 && history[n-1].Role == models.RoleUser && history[n-1].Text == input {
		history = history[:n-1]
	}

	turns := make([]Turn, 0, len(history))
	for _, msg := range history {
		role := RoleUser
		if msg.Role != models.RoleUser {
			role = RoleModel
		}
		turns = append(turns, Turn{Role: role, Text: msg.Text})
	}
	return turns
}
