package learning

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xaenox/lingua-bot/internal/lang"
)

func TestStore_TeachIsIdempotent(t *testing.T) {
	s, err := Open("", zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, s.Teach("What is the answer", "42"))
	require.NoError(t, s.Teach("what is the answer?", "42"))

	assert.Equal(t, []string{"42"}, s.Corrections("what is the answer"))
	assert.Equal(t, 1, s.Count())

	require.NoError(t, s.Teach("what is the answer", "forty-two"))
	assert.Equal(t, []string{"42", "forty-two"}, s.Corrections("what is the answer"))
}

func TestStore_TeachRejectsEmpty(t *testing.T) {
	s, err := Open("", zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.ErrorIs(t, s.Teach("???", "x"), ErrEmptyCorrection)
	assert.ErrorIs(t, s.Teach("question", "  "), ErrEmptyCorrection)
	assert.Equal(t, 0, s.Count())
}

func TestStore_TeachRollsBackWhenSaveFails(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, s.Teach("hello", "hi there"))

	// A directory in place of the memory file makes the rename fail.
	path := filepath.Join(dir, memoryFile)
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.Mkdir(path, 0o755))

	require.Error(t, s.Teach("hello", "welcome"))
	require.Error(t, s.Teach("bye", "see you"))

	assert.Equal(t, 1, s.Count())
	assert.Equal(t, []string{"hi there"}, s.Corrections("hello"))
	_, ok := s.Lookup("bye")
	assert.False(t, ok)
}

func TestStore_LookupRoundTrip(t *testing.T) {
	s, err := Open("", zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, s.Teach(lang.Normalize("what is your refund policy"), "30 days"))

	got, ok := s.Lookup(lang.Normalize("What's your refund policy??"))
	require.True(t, ok)
	assert.Equal(t, "30 days", got)

	// Symmetric containment: a shorter input contained by the key matches too.
	got, ok = s.Lookup("refund policy")
	require.True(t, ok)
	assert.Equal(t, "30 days", got)

	_, ok = s.Lookup("shipping times")
	assert.False(t, ok)

	_, ok = s.Lookup("")
	assert.False(t, ok)
}

func TestStore_LookupUsesTeachingOrder(t *testing.T) {
	s, err := Open("", zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, s.Teach("refund", "first"))
	require.NoError(t, s.Teach("refund policy", "second"))

	for i := 0; i < 10; i++ {
		got, ok := s.Lookup("what is the refund policy")
		require.True(t, ok)
		assert.Equal(t, "first", got)
	}
}

func TestStore_PersistsAcrossOpen(t *testing.T) {
	dir := t.TempDir()
	logger := zaptest.NewLogger(t)

	s, err := Open(dir, logger)
	require.NoError(t, err)
	require.NoError(t, s.Teach("zeta question", "z"))
	require.NoError(t, s.Teach("alpha question", "a"))
	s.RecordIntent("greeting")
	s.RecordIntent("greeting")
	s.RecordIntent("thanks")

	reopened, err := Open(dir, logger)
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Count())
	assert.Equal(t, 2, reopened.IntentCount("greeting"))

	// Teaching order survives the reload.
	got, ok := reopened.Lookup("zeta question alpha question")
	require.True(t, ok)
	assert.Equal(t, "z", got)
}

func TestStore_LoadsFileWithoutOrder(t *testing.T) {
	dir := t.TempDir()
	content := `{"pattern_frequency": {"greeting": 3}, "user_corrections": {"b key": ["B"], "a key": ["A"]}, "similar_queries": {}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, memoryFile), []byte(content), 0o644))

	s, err := Open(dir, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 3, s.IntentCount("greeting"))

	got, ok := s.Lookup("a key b key")
	require.True(t, ok)
	assert.Equal(t, "A", got)
}

func TestStore_PopularIntents(t *testing.T) {
	s, err := Open("", zaptest.NewLogger(t))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		s.RecordIntent("greeting")
	}
	s.RecordIntent("thanks")
	s.RecordIntent("farewell")

	popular := s.PopularIntents(2)
	require.Len(t, popular, 2)
	assert.Equal(t, IntentCount{Intent: "greeting", Count: 3}, popular[0])
	assert.Equal(t, IntentCount{Intent: "farewell", Count: 1}, popular[1])
}

func TestStore_ConcurrentWriters(t *testing.T) {
	s, err := Open(t.TempDir(), zaptest.NewLogger(t))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.RecordIntent("greeting")
			_ = s.Teach("shared question", fmt.Sprintf("answer %d", i%2))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, s.IntentCount("greeting"))
	assert.ElementsMatch(t, []string{"answer 0", "answer 1"}, s.Corrections("shared question"))
}
