package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/PabloGalante/engigen-agent/internal/adapters/http"
	"github.com/PabloGalante/engigen-agent/internal/adapters/llm"
	filestore "github.com/PabloGalante/engigen-agent/internal/adapters/storage/file"
	memstore "github.com/PabloGalante/engigen-agent/internal/adapters/storage/memory"
	redisstore "github.com/PabloGalante/engigen-agent/internal/adapters/storage/redis"
	sqlitestore "github.com/PabloGalante/engigen-agent/internal/adapters/storage/sqlite"
	"github.com/PabloGalante/engigen-agent/internal/app/conversation"
	"github.com/PabloGalante/engigen-agent/internal/app/persistence"
	"github.com/PabloGalante/engigen-agent/internal/config"
	"github.com/PabloGalante/engigen-agent/internal/domain"
	"github.com/PabloGalante/engigen-agent/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		observability.Logger().Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := observability.Configure(os.Stdout, cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("engigen api stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	factory, err := newConnectorFactory(ctx, cfg, logger)
	if err != nil {
		return err
	}

	blobs, closer, err := newBlobStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	store := conversation.NewSessionStore()
	detach := persistence.NewBridge(blobs).Rehydrate(ctx, store)
	defer detach()

	svc := conversation.NewService(store, conversation.NewAgentRegistry(factory),
		conversation.WithStreamTimeout(cfg.StreamTimeout),
	)

	var opts []httpadapter.Option
	if p, ok := blobs.(httpadapter.Pinger); ok {
		opts = append(opts, httpadapter.WithPinger(p))
	}

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     httpadapter.NewServer(svc, opts...),
		ReadTimeout: 15 * time.Second,
		// Replies stream for up to StreamTimeout.
		WriteTimeout: cfg.StreamTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("engigen api listening",
			"port", cfg.Port,
			"mode", cfg.Mode,
			"storage", cfg.StorageBackend,
			"sessions", len(store.Sessions()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return err
	case <-quit:
	}

	logger.Info("shutting down server...")
	svc.Cancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("server stopped")
	return nil
}

func newConnectorFactory(ctx context.Context, cfg *config.Config, logger *slog.Logger) (domain.ConnectorFactory, error) {
	if cfg.Mode == config.ModeMock {
		logger.Info("using mock model connector")
		return llm.NewMockFactory(), nil
	}

	persona, err := llm.NewPersonaTemplate(cfg.PersonaTemplate)
	if err != nil {
		return nil, err
	}

	logger.Info("using gemini model connector", "mode", cfg.Mode, "model", cfg.ModelName)
	return llm.NewGeminiFactory(ctx, llm.GeminiConfig{
		APIKey:    cfg.APIKey,
		Project:   cfg.GCPProjectID,
		Location:  cfg.GCPLocation,
		ModelName: cfg.ModelName,
	}, persona)
}

func newBlobStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (domain.BlobStore, io.Closer, error) {
	switch cfg.StorageBackend {
	case config.StorageSQLite:
		logger.Info("using sqlite storage", "path", cfg.SQLitePath)
		s, err := sqlitestore.NewBlobStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil

	case config.StorageRedis:
		logger.Info("using redis storage")
		s, err := redisstore.NewBlobStore(ctx, cfg.RedisURL, "engigen:")
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil

	case config.StorageMemory:
		logger.Warn("using in-memory storage, sessions are lost on restart")
		return memstore.NewBlobStore(), nil, nil

	default:
		logger.Info("using file storage", "path", cfg.StatePath)
		s, err := filestore.NewBlobStore(cfg.StatePath, persistence.StateKey)
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	}
}
