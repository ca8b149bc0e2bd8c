// memoryd is the process entrypoint: it loads configuration, wires
// storage, the LLM gateway, the session manager, the plugin channel, and
// the HTTP API server, then serves until terminated.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/taleweave/memoryd/pkg/api"
	"github.com/taleweave/memoryd/pkg/channel"
	"github.com/taleweave/memoryd/pkg/config"
	"github.com/taleweave/memoryd/pkg/extraction"
	"github.com/taleweave/memoryd/pkg/llm"
	"github.com/taleweave/memoryd/pkg/sessionmanager"
	"github.com/taleweave/memoryd/pkg/storage"
	"github.com/taleweave/memoryd/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "path to configuration directory")
	tavernMode := flag.Bool("tavern-mode", getEnv("MEMORYD_TAVERN_MODE", "true") == "true", "start with the plugin socket surface enabled")
	flag.Parse()

	setupLogging()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("no .env file loaded", "path", envPath, "error", err)
	}

	slog.Info("starting memoryd", "version", version.Full(), "config_dir", *configDir)

	ctx := context.Background()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	st, err := storage.New(cfg.Storage.DataDir)
	if err != nil {
		slog.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}

	agent, useAgent := buildAgent(cfg)

	ch := channel.New(time.Duration(cfg.Channel.WriteTimeoutSeconds) * time.Second)

	manager := sessionmanager.New(st, ch, sessionmanager.EngineDefaults{
		WindowCapacity: cfg.Window.WindowSize,
		WindowDelay:    cfg.Window.ProcessingDelay,
		HotMemorySize:  cfg.Memory.HotMemorySize,
		Agent:          agent,
		UseAgent:       useAgent && cfg.Window.EnableEnhancedAgent,
	}, *tavernMode)

	server := api.NewServer(manager, ch, st)

	addr := fmt.Sprintf(":%d", cfg.APIServer.Port)
	slog.Info("HTTP server listening", "addr", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	case <-sigCh:
		slog.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("error during shutdown", "error", err)
	}
}

// buildAgent wires the LLM gateway and extraction agent when an API key is
// configured; otherwise every session runs the local rule extractor and
// minimal bootstrap only (spec §4.4, §4.11: "never fails outright").
func buildAgent(cfg *config.Config) (*extraction.Agent, bool) {
	apiKey := os.Getenv(cfg.LLM.APIKeyEnv)
	if apiKey == "" {
		slog.Warn("no LLM API key configured, enhanced agent disabled", "env_var", cfg.LLM.APIKeyEnv)
		return nil, false
	}

	gateway := llm.New(llm.Config{
		APIKey:  apiKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: time.Duration(cfg.LLM.RequestTimeoutSeconds) * time.Second,
	})

	return extraction.NewAgent(gateway), true
}

// setupLogging installs a process-wide structured logger: JSON in
// production, text when MEMORYD_ENV=development (spec §6.5).
func setupLogging() {
	level := slog.LevelInfo
	if getEnv("MEMORYD_LOG_LEVEL", "") == "debug" {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if getEnv("MEMORYD_ENV", "production") == "development" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}
