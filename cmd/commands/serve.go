package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"filippo.io/age"
	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/ozzie/internal/config"
	"github.com/dohr-michael/ozzie/internal/gatewayhttp"
	"github.com/dohr-michael/ozzie/internal/models"
	"github.com/dohr-michael/ozzie/internal/secrets"
	"github.com/dohr-michael/ozzie/internal/upstream"
)

// NewServeCommand returns the subcommand that starts the broker's
// HTTP/WS front door.
func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the broker server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to listen on",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on",
			},
		},
		Action: runServe,
	}
}

func runServe(_ context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Warn("config not found, using defaults", "path", configPath, "error", err)
		cfg = &config.Config{}
		cfg.Gateway.Host = "127.0.0.1"
		cfg.Gateway.Port = 18420
		cfg.Events.BufferSize = 1024
		cfg.Events.LogLevel = "info"
		cfg.Agent.Type = "questionnaire"
	}

	logLevel := resolveLogLevel(cfg.Events.LogLevel)
	if cmd.Bool("debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	if cmd.IsSet("host") {
		cfg.Gateway.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Gateway.Port = cmd.Int("port")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	registry := models.NewRegistry(cfg.LLM)
	if _, err := registry.Default(ctx); err != nil {
		return fmt.Errorf("init default model provider: %w", err)
	}

	dispatcher := upstream.NewDispatcher(upstream.NewModelConnector(registry, ""))

	recipient := loadSpellingSealRecipient()

	srv := gatewayhttp.NewServer(cfg, dispatcher, recipient)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}
}

// loadSpellingSealRecipient loads (generating on first run) the broker's
// age key and returns its public recipient, so spelling-sensitive
// questionnaire answers render sealed instead of in plaintext. A failure
// here is non-fatal: the broker still serves, just without sealing.
func loadSpellingSealRecipient() *age.X25519Recipient {
	path := secrets.KeyPath()
	if err := secrets.GenerateIdentity(path); err != nil {
		slog.Warn("failed to generate age key, spelling-sensitive answers will render in plaintext", "error", err)
		return nil
	}
	identity, err := secrets.LoadIdentity(path)
	if err != nil {
		slog.Warn("failed to load age key, spelling-sensitive answers will render in plaintext", "error", err)
		return nil
	}
	return identity.Recipient()
}

func resolveLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
