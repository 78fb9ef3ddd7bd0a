package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xaenox/lingua-bot/internal/classifier"
	"github.com/xaenox/lingua-bot/internal/generative"
	"github.com/xaenox/lingua-bot/internal/jsonx"
	"github.com/xaenox/lingua-bot/internal/learning"
	"github.com/xaenox/lingua-bot/internal/memory"
	"github.com/xaenox/lingua-bot/internal/resolver"
	"github.com/xaenox/lingua-bot/internal/storage"
)

const testSecret = "test-secret-test-secret-test-secret"

type staticGenerator struct {
	reply string
}

func (g staticGenerator) Generate(ctx context.Context, req generative.Request) (string, error) {
	return g.reply, nil
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("down") }

func newTestServer(t *testing.T, remote Pinger) *httptest.Server {
	t.Helper()
	logger := zaptest.NewLogger(t)

	mem, err := memory.New(
		storage.NewRemoteConversations(storage.NewMemoryKV(), logger),
		storage.NewLocalConversations(t.TempDir(), logger),
		memory.Config{},
		logger,
	)
	require.NoError(t, err)

	store, err := learning.Open("", logger)
	require.NoError(t, err)

	gen := generative.NewClient(staticGenerator{reply: "Here is **bold** text"}, generative.Config{EnableFormatting: true}, logger)
	r := resolver.New(mem, store, classifier.NewDefaultMatcher(), classifier.NewDefaultResponseTable(), gen,
		resolver.Config{FormattingEnabled: true}, logger)

	srv := New(r, NewAuth(testSecret, false, logger), remote, Options{FormattingEnabled: true}, logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func token(t *testing.T, userID string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

type client struct {
	t      *testing.T
	base   string
	bearer string
	cookie *http.Cookie
}

func (c *client) do(method, path, body string) (int, map[string]interface{}) {
	c.t.Helper()
	req, err := http.NewRequest(method, c.base+path, strings.NewReader(body))
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	for _, ck := range resp.Cookies() {
		if ck.Name == sessionCookie {
			c.cookie = ck
		}
	}

	var out map[string]interface{}
	data, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	if len(data) > 0 {
		require.NoError(c.t, jsonx.Unmarshal(data, &out))
	}
	return resp.StatusCode, out
}

func TestServer_AnonymousChat(t *testing.T) {
	ts := newTestServer(t, nil)
	c := &client{t: t, base: ts.URL}

	status, body := c.do(http.MethodPost, "/chat", `{"message":"hello"}`)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, c.cookie)
	assert.Equal(t, c.cookie.Value, body["conversation_id"])
	assert.Contains(t, classifier.DefaultResponses[classifier.IntentGreeting].English, body["response"])
	assert.Equal(t, false, body["has_markdown"])

	status, body = c.do(http.MethodPost, "/chat", `{"message":"explain quantum mechanics"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["has_markdown"])
	assert.Contains(t, body["response_html"], "<strong>bold</strong>")

	status, body = c.do(http.MethodGet, "/conversations", "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["conversations"], 1)

	status, body = c.do(http.MethodGet, "/conversations/"+c.cookie.Value, "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["messages"], 4)

	other := &client{t: t, base: ts.URL}
	status, _ = other.do(http.MethodGet, "/conversations/"+c.cookie.Value, "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServer_EmptyMessage(t *testing.T) {
	ts := newTestServer(t, nil)
	c := &client{t: t, base: ts.URL}

	status, body := c.do(http.MethodPost, "/send_message", `{"message":"  "}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "No message provided", body["error"])

	status, _ = c.do(http.MethodPost, "/chat", `not json`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestServer_AuthenticatedConversations(t *testing.T) {
	ts := newTestServer(t, nil)
	alice := &client{t: t, base: ts.URL, bearer: token(t, "alice")}
	bob := &client{t: t, base: ts.URL, bearer: token(t, "bob")}

	status, body := alice.do(http.MethodPost, "/send_message", `{"message":"thanks","conversation_id":"conv_alice_1"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "conv_alice_1", body["conversation_id"])
	assert.NotNil(t, body["stats"])

	status, _ = bob.do(http.MethodPost, "/send_message", `{"message":"hi","conversation_id":"conv_alice_1"}`)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = bob.do(http.MethodPost, "/conversations/conv_alice_1/title", `{"title":"mine"}`)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = alice.do(http.MethodPost, "/conversations/conv_alice_1/title", `{"title":"Gratitude"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Gratitude", body["title"])

	status, body = alice.do(http.MethodGet, "/conversations", "")
	require.Equal(t, http.StatusOK, status)
	convs, ok := body["conversations"].([]interface{})
	require.True(t, ok)
	require.Len(t, convs, 1)
	assert.Equal(t, "Gratitude", convs[0].(map[string]interface{})["title"])

	status, body = alice.do(http.MethodPost, "/conversations/conv_alice_1/generate_title", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Here is bold text", body["title"])

	status, _ = bob.do(http.MethodDelete, "/conversations/conv_alice_1", "")
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = alice.do(http.MethodDelete, "/conversations/conv_alice_1", "")
	assert.Equal(t, http.StatusOK, status)
	status, _ = alice.do(http.MethodDelete, "/conversations/conv_alice_1", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServer_InvalidToken(t *testing.T) {
	ts := newTestServer(t, nil)
	c := &client{t: t, base: ts.URL, bearer: "not-a-token"}

	status, _ := c.do(http.MethodGet, "/stats", "")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestServer_StatsAndHealth(t *testing.T) {
	ts := newTestServer(t, failingPinger{})
	c := &client{t: t, base: ts.URL}

	c.do(http.MethodPost, "/chat", `{"message":"hello"}`)

	status, body := c.do(http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["session_count"])
	assert.Equal(t, true, body["generative_available"])

	status, body = c.do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "unavailable", body["remote"])
}

func TestAuth_UserID(t *testing.T) {
	auth := NewAuth(testSecret, false, zaptest.NewLogger(t))

	id, err := auth.userID(token(t, "u1"))
	require.NoError(t, err)
	assert.Equal(t, "u1", id)

	_, err = auth.userID(token(t, "anonymous"))
	assert.ErrorIs(t, err, errMissingSubject)

	other := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1"})
	signed, err := other.SignedString([]byte("another-secret"))
	require.NoError(t, err)
	_, err = auth.userID(signed)
	assert.Error(t, err)
}

func TestMarkdown(t *testing.T) {
	assert.True(t, hasMarkdown("use `go test`"))
	assert.True(t, hasMarkdown("- item"))
	assert.False(t, hasMarkdown("plain sentence."))

	html := renderMarkdown("**hi** <script>alert(1)</script>")
	assert.Contains(t, html, "<strong>hi</strong>")
	assert.NotContains(t, html, "<script>")
}
