package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"pr-reaction-bridge/internal/auth"
	"pr-reaction-bridge/internal/clock"
	"pr-reaction-bridge/internal/config"
	"pr-reaction-bridge/internal/handlers"
	"pr-reaction-bridge/internal/log"
	"pr-reaction-bridge/internal/services"
	"pr-reaction-bridge/internal/utils"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Text logs for development, JSON in release mode
	log.Setup(os.Stdout, cfg.LogLevel, cfg.GinMode == gin.ReleaseMode)
	gin.SetMode(cfg.GinMode)

	ctx := context.Background()

	store, closeStore, err := services.OpenTrackingStore(ctx, cfg)
	if err != nil {
		slog.Error("Failed to open tracking store", "component", "startup", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := closeStore.Close(); err != nil {
			slog.Error("Error closing tracking store", "component", "shutdown", "error", err)
		}
	}()

	switch s := store.(type) {
	case *services.SQLService:
		if err := s.Migrate(ctx); err != nil {
			slog.Error("Failed to migrate tracking schema", "component", "startup", "error", err)
			os.Exit(1)
		}
	case *services.MemoryTrackingStore:
		slog.Warn("Using in-memory tracking store; records are lost on restart", "component", "startup")
	}

	clk := clock.Real{}
	slackClient := services.NewSlackClient(cfg.SlackBotToken, cfg.SlackAPIURL, nil)
	notifier := services.NewNotificationService(
		store,
		services.NewSlackService(slackClient),
		cfg.Emoji,
		cfg.ReactionTimeout,
	)

	router := handlers.NewRouter(handlers.RouterConfig{
		Slack: handlers.NewSlackHandler(
			store,
			utils.NewPRURLExtractor(cfg.GitHubHost),
			clk,
			cfg.TrackDuplicateMentions,
		),
		GitHub:        handlers.NewGitHubHandler(notifier),
		Records:       handlers.NewRecordsHandler(store),
		SlackVerifier: auth.NewSlackVerifier(cfg.SlackSigningSecret, cfg.SlackTimestampMaxAge, clk),
		GitHubSecret:  cfg.GitHubWebhookSecret,
		APIAdminKey:   cfg.APIAdminKey,
	})

	slog.Info("Starting server", "component", "server", "addr", cfg.Addr(), "store_backend", cfg.StoreBackend)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed to start", "component", "server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server...", "component", "server")

	// Give outstanding requests time to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "component", "server", "error", err)
		return
	}

	slog.Info("Server exited gracefully", "component", "server")
}
