package classifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xaenox/lingua-bot/internal/lang"
)

func TestMatcher_Match(t *testing.T) {
	m := NewDefaultMatcher()

	tests := []struct {
		name   string
		text   string
		want   string
		wantOk bool
	}{
		{name: "greeting", text: "hello", want: IntentGreeting, wantOk: true},
		{name: "arabic_greeting", text: "مرحبا", want: IntentGreeting, wantOk: true},
		{name: "greeting_declared_before_farewell", text: "hello and goodbye", want: IntentGreeting, wantOk: true},
		{name: "farewell", text: "goodbye", want: IntentFarewell, wantOk: true},
		{name: "case_insensitive", text: "THANKS a lot", want: IntentThanks, wantOk: true},
		{name: "arabic_time", text: "كم الساعة", want: IntentTime, wantOk: true},
		{name: "no_match", text: "quantum mechanics", wantOk: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.Match(tt.text)
			assert.Equal(t, tt.wantOk, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatcher_MatchAmong(t *testing.T) {
	m := NewDefaultMatcher()
	local := map[string]bool{IntentTime: true, IntentDate: true}

	got, ok := m.MatchAmong("who are you and what time is it", local)
	require.True(t, ok)
	assert.Equal(t, IntentTime, got)

	_, ok = m.MatchAmong("who are you", local)
	assert.False(t, ok)
}

func TestMatcher_InvalidPattern(t *testing.T) {
	_, err := NewMatcher([]Pattern{{Intent: "broken", Expr: "(unclosed"}})
	assert.Error(t, err)
}

func TestMatcher_Matches(t *testing.T) {
	m := NewDefaultMatcher()
	assert.True(t, m.Matches(IntentFormatting, "do you support markdown"))
	assert.False(t, m.Matches(IntentFormatting, "hello"))
	assert.False(t, m.Matches("missing", "hello"))
}

func TestResponseTable_PickByLanguage(t *testing.T) {
	table := NewResponseTable(DefaultResponses, 1)
	now := time.Date(2024, 5, 1, 13, 4, 5, 0, time.UTC)

	for i := 0; i < 20; i++ {
		en, ok := table.Pick(IntentGreeting, lang.English, now)
		require.True(t, ok)
		assert.Contains(t, DefaultResponses[IntentGreeting].English, en)

		ar, ok := table.Pick(IntentGreeting, lang.Arabic, now)
		require.True(t, ok)
		assert.Contains(t, DefaultResponses[IntentGreeting].Arabic, ar)
	}
}

func TestResponseTable_ExpandsPlaceholders(t *testing.T) {
	table := NewResponseTable(DefaultResponses, 1)
	now := time.Date(2024, 5, 1, 13, 4, 5, 0, time.UTC)

	got, ok := table.Pick(IntentTime, lang.English, now)
	require.True(t, ok)
	assert.Equal(t, "The current server time is 13:04:05", got)

	got, ok = table.Pick(IntentDate, lang.Arabic, now)
	require.True(t, ok)
	assert.Equal(t, "اليوم هو 2024-05-01", got)
}

func TestResponseTable_FallsBackToLastItem(t *testing.T) {
	table := NewResponseTable(map[string]Candidates{
		"only_english": {English: []string{"first", "second"}},
		"empty":        {},
	}, 1)

	got, ok := table.Pick("only_english", lang.Arabic, time.Now())
	require.True(t, ok)
	assert.Equal(t, "second", got)

	_, ok = table.Pick("empty", lang.English, time.Now())
	assert.False(t, ok)

	_, ok = table.Pick("missing", lang.English, time.Now())
	assert.False(t, ok)
}
