package classifier

import (
	"fmt"
	"regexp"
)

const (
	IntentGreeting        = "greeting"
	IntentFarewell        = "farewell"
	IntentThanks          = "thanks"
	IntentBot             = "bot"
	IntentCapabilities    = "capabilities"
	IntentWeather         = "weather"
	IntentTime            = "time"
	IntentDate            = "date"
	IntentName            = "name"
	IntentHelp            = "help"
	IntentLearning        = "learning"
	IntentSelfImprovement = "self_improvement"
	IntentFormatting      = "formatting"
	IntentUnknown         = "unknown"
)

type Classifier interface {
	Match(text string) (string, bool)
}

// Pattern binds an intent to the expression that triggers it.
type Pattern struct {
	Intent string
	Expr   string
}

// DefaultPatterns lists the built-in intents in priority order. Earlier
// entries win when a message triggers several of them.
var DefaultPatterns = []Pattern{
	{IntentGreeting, `(hello|hi|hey|مرحبا|أهلا|السلام عليكم)`},
	{IntentFarewell, `(goodbye|bye|see you|وداعا|مع السلامة)`},
	{IntentThanks, `(thank|thanks|شكرا|شكراً)`},
	{IntentBot, `(who are you|what are you|من أنت|ما هو أنت)`},
	{IntentCapabilities, `(what can you do|what are your capabilities|ماذا يمكنك أن تفعل|ما هي قدراتك)`},
	{IntentWeather, `(weather|forecast|temperature|الطقس|درجة الحرارة)`},
	{IntentTime, `(time|الوقت|الساعة)`},
	{IntentDate, `(date|today|التاريخ|اليوم)`},
	{IntentName, `(your name|اسمك)`},
	{IntentHelp, `(help|مساعدة)`},
	{IntentLearning, `(learn:|تعلم:)`},
	{IntentSelfImprovement, `(learn from mistakes|self-learning|improve yourself|تعلم من أخطائك|التعلم الذاتي|تحسين نفسك)`},
	{IntentFormatting, `(markdown|formatting|تنسيق|ماركداون)`},
}

type compiledPattern struct {
	intent string
	re     *regexp.Regexp
}

// Matcher tests text against an ordered list of intent patterns.
type Matcher struct {
	patterns []compiledPattern
}

// NewMatcher compiles patterns case-insensitively, keeping their order.
func NewMatcher(patterns []Pattern) (*Matcher, error) {
	m := &Matcher{patterns: make([]compiledPattern, 0, len(patterns))}
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p.Expr)
		if err != nil {
			return nil, fmt.Errorf("failed to compile pattern for intent %q: %w", p.Intent, err)
		}
		m.patterns = append(m.patterns, compiledPattern{intent: p.Intent, re: re})
	}
	return m, nil
}

// NewDefaultMatcher returns a matcher over DefaultPatterns.
func NewDefaultMatcher() *Matcher {
	m, err := NewMatcher(DefaultPatterns)
	if err != nil {
		panic(err)
	}
	return m
}

// Match returns the first declared intent whose pattern occurs in text.
func (m *Matcher) Match(text string) (string, bool) {
	for _, p := range m.patterns {
		if p.re.MatchString(text) {
			return p.intent, true
		}
	}
	return "", false
}

// MatchAmong is Match restricted to the intents in allowed. Declaration order
// still decides between several matching intents.
func (m *Matcher) MatchAmong(text string, allowed map[string]bool) (string, bool) {
	for _, p := range m.patterns {
		if !allowed[p.intent] {
			continue
		}
		if p.re.MatchString(text) {
			return p.intent, true
		}
	}
	return "", false
}

// Matches reports whether the pattern of a single intent occurs in text.
func (m *Matcher) Matches(intent, text string) bool {
	for _, p := range m.patterns {
		if p.intent == intent {
			return p.re.MatchString(text)
		}
	}
	return false
}
