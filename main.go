package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"chatclient/client/auth"
	"chatclient/client/channel"
	"chatclient/client/config"
	"chatclient/client/directory"
	"chatclient/client/store"
	"chatclient/client/ui"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, cleanup, err := setupLogger(cfg.Env)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer cleanup()

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	credStore, err := store.New("", logger)
	if err != nil {
		return err
	}

	authManager, err := auth.NewManager(auth.ManagerConfig{
		BaseURL: cfg.APIBaseURL(),
		Store:   credStore,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	dir, err := directory.NewClient(directory.ClientConfig{
		BaseURL: cfg.APIBaseURL(),
		Auth:    authManager,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	channels, err := channel.NewController(channel.ControllerConfig{
		BaseURL: cfg.ChannelBaseURL(),
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer channels.Close()

	logger.Info("starting chat client",
		slog.String("env", cfg.Env),
		slog.String("server", cfg.ServerAddress),
	)

	return ui.Run(ui.Deps{
		Auth:      authManager,
		Directory: dir,
		Channels:  channels,
		Logger:    logger,
	})
}

// setupLogger writes to a file rather than the terminal so log lines
// do not tear the alternate screen. Local runs get a text handler with
// debug level, dev and prod get JSON.
func setupLogger(env string) (*slog.Logger, func(), error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return nil, nil, fmt.Errorf("setupLogger: %w", err)
	}
	dir := filepath.Join(base, "chatclient")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("setupLogger: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, "client.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("setupLogger: %w", err)
	}

	var logger *slog.Logger
	switch env {
	case envLocal:
		logger = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envDev:
		logger = slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	default:
		logger = slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return logger, func() { f.Close() }, nil
}
