package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/xaenox/lingua-bot/internal/bot"
	"github.com/xaenox/lingua-bot/internal/classifier"
	"github.com/xaenox/lingua-bot/internal/generative"
	"github.com/xaenox/lingua-bot/internal/learning"
	"github.com/xaenox/lingua-bot/internal/memory"
	"github.com/xaenox/lingua-bot/internal/resolver"
	"github.com/xaenox/lingua-bot/internal/server"
	"github.com/xaenox/lingua-bot/internal/storage"
	"github.com/xaenox/lingua-bot/pkg/config"
)

// app holds the wired services shared by every subcommand.
type app struct {
	cfg      *config.Config
	kv       storage.KV
	resolver *resolver.Resolver
	logger   *zap.Logger
}

func loadConfig(configPath string, logger *zap.Logger) (*config.Config, error) {
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		logger.Info("Config file not found, using defaults", zap.String("path", configPath))
		configPath = ""
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newApp(ctx context.Context, configPath string, logger *zap.Logger) (*app, error) {
	cfg, err := loadConfig(configPath, logger)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Clean(cfg.Storage.DataDir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	kv, err := openRemote(ctx, cfg.Remote, logger)
	if err != nil {
		// Local storage keeps the bot usable without the remote store.
		logger.Error("Remote store unavailable, continuing with local storage only", zap.Error(err))
		kv = nil
	}

	var remote storage.ConversationStore
	if kv != nil {
		remote = storage.NewRemoteConversations(kv, logger)
	}
	local := storage.NewLocalConversations(cfg.Storage.DataDir, logger)

	mem, err := memory.New(remote, local, memory.Config{
		RetentionWindow: cfg.Chat.RetentionWindow,
		ContextMessages: cfg.Chat.ContextMessages,
		CacheSize:       cfg.Chat.CacheSize,
	}, logger)
	if err != nil {
		return nil, err
	}

	store, err := learning.Open(cfg.Storage.DataDir, logger)
	if err != nil {
		return nil, err
	}

	var gen generative.Generator
	if cfg.OpenAI.APIKey != "" {
		gen = generative.NewOpenAIGenerator(generative.OpenAIConfig{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.Model,
		}, logger)
	} else {
		logger.Warn("No OpenAI API key configured, generative fallback disabled")
	}

	client := generative.NewClient(gen, generative.Config{
		Params: generative.Params{
			Temperature: float32(cfg.OpenAI.Temperature),
			MaxTokens:   cfg.OpenAI.MaxTokens,
			TopP:        float32(cfg.OpenAI.TopP),
			TopK:        cfg.OpenAI.TopK,
		},
		Timeout:           cfg.OpenAI.Timeout,
		PreserveHistory:   cfg.Chat.PreserveHistory,
		EnableFormatting:  cfg.Chat.EnableFormatting,
		MaxResponseLength: cfg.Chat.MaxResponseLength,
	}, logger)

	r := resolver.New(
		mem,
		store,
		classifier.NewDefaultMatcher(),
		classifier.NewDefaultResponseTable(),
		client,
		resolver.Config{
			MaxMessageLength:  cfg.Chat.MaxMessageLength,
			DefaultLanguage:   cfg.Chat.DefaultLanguage,
			LocalIntents:      cfg.Chat.LocalIntents,
			EagerGenerative:   cfg.Chat.EagerGenerative(),
			ContextMessages:   cfg.Chat.ContextMessages,
			FormattingEnabled: cfg.Chat.EnableFormatting,
		},
		logger,
	)

	return &app{cfg: cfg, kv: kv, resolver: r, logger: logger}, nil
}

// openRemote connects the configured remote KV backend, or returns nil when
// the remote store is disabled.
func openRemote(ctx context.Context, cfg config.RemoteConfig, logger *zap.Logger) (storage.KV, error) {
	if !cfg.Enabled {
		logger.Info("Remote store disabled")
		return nil, nil
	}

	switch cfg.Backend {
	case "redis":
		logger.Info("Using Redis remote store", zap.String("addr", cfg.Redis.Addr))
		return storage.NewRedisKV(ctx, storage.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}, logger)
	case "postgres":
		logger.Info("Using PostgreSQL remote store", zap.String("host", cfg.Database.Host))
		return storage.NewPostgresKV(ctx, storage.DatabaseConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		}, logger)
	case "memory", "":
		logger.Info("Using in-memory remote store")
		return storage.NewMemoryKV(), nil
	default:
		return nil, fmt.Errorf("unknown remote backend %q", cfg.Backend)
	}
}

func (a *app) Serve(ctx context.Context) error {
	var pinger server.Pinger
	if a.kv != nil {
		pinger = a.kv
	}

	srv := server.New(
		a.resolver,
		server.NewAuth(a.cfg.Auth.JWTSecret, a.cfg.Server.SecureCookies, a.logger),
		pinger,
		server.Options{
			AllowedOrigins:    a.cfg.Server.AllowedOrigins,
			FormattingEnabled: a.cfg.Chat.EnableFormatting,
		},
		a.logger,
	)

	httpServer := &http.Server{
		Addr:         a.cfg.Server.Addr,
		Handler:      srv.Handler(),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server listening", zap.String("addr", a.cfg.Server.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	a.logger.Info("Shutting down HTTP server")
	return httpServer.Shutdown(shutdownCtx)
}

func (a *app) Telegram(ctx context.Context) error {
	if a.cfg.Telegram.Token == "" {
		return errors.New("telegram token is not configured")
	}

	b, err := bot.New(a.cfg.Telegram.Token, a.cfg.Telegram.Debug, a.resolver, a.logger)
	if err != nil {
		return err
	}
	return b.Start(ctx)
}

func (a *app) Close() {
	if a.kv == nil {
		return
	}
	if err := a.kv.Close(); err != nil {
		a.logger.Warn("Failed to close remote store", zap.Error(err))
	}
}

// migrate copies local user data into the remote store. An empty userID
// migrates every user found under the data dir.
func migrate(ctx context.Context, configPath, userID string, logger *zap.Logger) ([]storage.MigrationResult, error) {
	cfg, err := loadConfig(configPath, logger)
	if err != nil {
		return nil, err
	}

	kv, err := openRemote(ctx, cfg.Remote, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open remote store: %w", err)
	}
	if kv == nil {
		return nil, errors.New("remote store is disabled, nothing to migrate to")
	}
	defer kv.Close()

	local := storage.NewLocalConversations(cfg.Storage.DataDir, logger)
	remote := storage.NewRemoteConversations(kv, logger)

	users := []string{userID}
	if userID == "" {
		if users, err = local.Users(); err != nil {
			return nil, fmt.Errorf("failed to list local users: %w", err)
		}
	}

	results := make([]storage.MigrationResult, 0, len(users))
	for _, user := range users {
		result, err := storage.Migrate(ctx, local, remote, user, logger)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}
