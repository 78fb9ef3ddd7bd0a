// Package server exposes the resolver over HTTP.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/xaenox/lingua-bot/internal/jsonx"
	"github.com/xaenox/lingua-bot/internal/resolver"
)

const maxBodyBytes = 1 << 20

// Pinger reports the health of the remote store.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	AllowedOrigins    []string
	FormattingEnabled bool
}

type Server struct {
	resolver *resolver.Resolver
	auth     *Auth
	remote   Pinger
	opts     Options
	logger   *zap.Logger
}

// New builds the HTTP layer. remote may be nil when no remote store is
// configured.
func New(r *resolver.Resolver, auth *Auth, remote Pinger, opts Options, logger *zap.Logger) *Server {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Server{
		resolver: r,
		auth:     auth,
		remote:   remote,
		opts:     opts,
		logger:   logger.Named("http"),
	}
}

// Handler returns the routed and wrapped handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	api := r.NewRoute().Subrouter()
	api.Use(s.auth.Middleware)
	api.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)
	api.HandleFunc("/send_message", s.handleSendMessage).Methods(http.MethodPost)
	api.HandleFunc("/conversations", s.handleListConversations).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}", s.handleGetConversation).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}", s.handleDeleteConversation).Methods(http.MethodDelete)
	api.HandleFunc("/conversations/{id}/title", s.handleRenameConversation).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id}/generate_title", s.handleGenerateTitle).Methods(http.MethodPost)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)

	cors := handlers.CORS(
		handlers.AllowedOrigins(s.opts.AllowedOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		handlers.AllowCredentials(),
	)

	var h http.Handler = r
	h = handlers.CustomLoggingHandler(io.Discard, h, s.logRequest)
	h = cors(h)
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{s.logger}))(h)
	return h
}

func (s *Server) logRequest(_ io.Writer, params handlers.LogFormatterParams) {
	s.logger.Info("HTTP request",
		zap.String("method", params.Request.Method),
		zap.String("path", params.URL.Path),
		zap.Int("status", params.StatusCode),
		zap.Int("size", params.Size))
}

type recoveryLogger struct {
	logger *zap.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error("Recovered from panic", zap.Any("panic", v))
}

type messageRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

type titleRequest struct {
	Title string `json:"title"`
}

type chatResponse struct {
	Response       string `json:"response"`
	ResponseHTML   string `json:"response_html,omitempty"`
	HasMarkdown    bool   `json:"has_markdown"`
	ConversationID string `json:"conversation_id"`
}

type sendMessageResponse struct {
	Response       string         `json:"response"`
	ConversationID string         `json:"conversation_id"`
	Stats          resolver.Stats `json:"stats"`
}

// handleChat answers within the caller's session conversation.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "No message provided")
		return
	}

	caller := CallerFromContext(r.Context())
	id := ""
	if !caller.Anonymous() {
		id = caller.ConversationPrefix() + caller.SessionID
	}

	reply, err := s.resolver.Resolve(r.Context(), caller, id, req.Message)
	if err != nil {
		s.writeResolveError(w, err)
		return
	}

	resp := chatResponse{Response: reply.Text, ConversationID: reply.ConversationID}
	if s.opts.FormattingEnabled && hasMarkdown(reply.Text) {
		resp.HasMarkdown = true
		resp.ResponseHTML = renderMarkdown(reply.Text)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "No message provided")
		return
	}

	reply, err := s.resolver.Resolve(r.Context(), CallerFromContext(r.Context()), req.ConversationID, req.Message)
	if err != nil {
		s.writeResolveError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sendMessageResponse{
		Response:       reply.Text,
		ConversationID: reply.ConversationID,
		Stats:          s.resolver.Stats(),
	})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	list := s.resolver.ListConversations(r.Context(), CallerFromContext(r.Context()))
	writeJSON(w, http.StatusOK, map[string]interface{}{"conversations": list})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	messages, err := s.resolver.GetConversation(r.Context(), CallerFromContext(r.Context()), id)
	if err != nil {
		s.writeResolveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversation_id": id,
		"messages":        messages,
	})
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.resolver.DeleteConversation(r.Context(), CallerFromContext(r.Context()), id) {
		writeError(w, http.StatusNotFound, "Conversation not found or access denied")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) handleRenameConversation(w http.ResponseWriter, r *http.Request) {
	var req titleRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "No title provided")
		return
	}

	id := mux.Vars(r)["id"]
	if !s.resolver.RenameConversation(r.Context(), CallerFromContext(r.Context()), id, req.Title) {
		writeError(w, http.StatusNotFound, "Conversation not found or access denied")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "title": strings.TrimSpace(req.Title)})
}

func (s *Server) handleGenerateTitle(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	title, err := s.resolver.GenerateTitle(r.Context(), CallerFromContext(r.Context()), id)
	if err != nil {
		s.writeResolveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "title": title})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.resolver.Stats())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	remote := "disabled"
	if s.remote != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.remote.Ping(ctx); err != nil {
			s.logger.Warn("Remote store unhealthy", zap.Error(err))
			remote = "unavailable"
		} else {
			remote = "ok"
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "remote": remote})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return false
	}
	if err := jsonx.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

func (s *Server) writeResolveError(w http.ResponseWriter, err error) {
	if errors.Is(err, resolver.ErrAccessDenied) {
		writeError(w, http.StatusNotFound, "Conversation not found or access denied")
		return
	}
	s.logger.Error("Request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := jsonx.Marshal(v)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
