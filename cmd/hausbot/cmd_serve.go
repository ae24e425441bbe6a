package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/hausbot/internal/config"
	"github.com/user/hausbot/internal/delivery"
	"github.com/user/hausbot/internal/gateway"
	"github.com/user/hausbot/internal/httpapi"
	"github.com/user/hausbot/internal/prompt"
	"github.com/user/hausbot/internal/scheduler"
	"github.com/user/hausbot/internal/session"
	"github.com/user/hausbot/internal/telegram"
	"github.com/user/hausbot/pkg/ollama"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the hausbot daemon",
	RunE:  runServe,
}

func writePIDFile() (string, error) {
	pidPath := filepath.Join(filepath.Dir(cfgPath), "hausbot.pid")
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

// validateFrontends rejects a configuration where the daemon would start
// with no reachable surface at all. A missing Telegram token alone is
// tolerated as long as the HTTP API can still accept messages.
func validateFrontends(cfg *config.Config) error {
	if cfg.Telegram.Token == "" && !cfg.HTTP.Enabled {
		return fmt.Errorf("no front-end configured: set telegram.token (or TELEGRAM_BOT_TOKEN) or enable http.enabled")
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := validateFrontends(cfg); err != nil {
		return err
	}

	pidPath, err := writePIDFile()
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	store := session.NewStore(cfg.Chat.MaxTurns)

	client := ollama.NewClient(&ollama.Config{
		Host:          cfg.Ollama.Host,
		Model:         cfg.Ollama.Model,
		Timeout:       cfg.OllamaTimeout(),
		StreamTimeout: cfg.OllamaStreamTimeout(),
		HealthTimeout: cfg.OllamaHealthTimeout(),
	})

	engine, err := prompt.New(cfg.Ollama.Model)
	if err != nil {
		return fmt.Errorf("create prompt engine: %w", err)
	}

	registry := delivery.NewRegistry()

	gw := gateway.New(store, client, engine, registry, gateway.Options{
		SystemPrompt:  cfg.Chat.SystemPrompt,
		EditInterval:  cfg.EditInterval(),
		MaxConcurrent: int64(cfg.MaxConcurrent),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw.Start(ctx)
	defer gw.Stop()

	// Startup health probe: a down backend is a warning, not a refusal
	// to start. Responses will use fallback texts until it comes back.
	probeCtx, probeCancel := context.WithTimeout(ctx, cfg.OllamaHealthTimeout())
	if err := client.CheckRunning(probeCtx); err != nil {
		slog.Warn("ollama backend not reachable, responses may fail", "host", cfg.Ollama.Host, "error", err)
	}
	probeCancel()

	slog.Info("hausbot started",
		"log_level", cfg.LogLevel,
		"max_concurrent", cfg.MaxConcurrent,
		"ollama_host", cfg.Ollama.Host,
		"ollama_model", cfg.Ollama.Model,
		"max_turns", cfg.Chat.MaxTurns,
		"session_ttl", cfg.SessionTTL(),
		"pid_file", pidPath,
	)

	// Telegram adapter
	if cfg.Telegram.Token != "" {
		adapter, err := telegram.New(cfg.Telegram.Token, gw, store, engine)
		if err != nil {
			return fmt.Errorf("create telegram adapter: %w", err)
		}
		go adapter.Start(ctx)
		registry.Register(telegram.SourcePrefix+":", adapter)
		slog.Info("telegram adapter started")
	} else {
		slog.Warn("telegram adapter disabled (no token)")
	}

	// Scheduler: session sweep on a fixed cadence.
	sched := scheduler.New()
	if err := sched.Add("session-sweep", cfg.Chat.SweepSchedule, func() {
		if removed := store.Sweep(time.Now(), cfg.SessionTTL()); removed > 0 {
			slog.Info("swept idle sessions", "removed", removed, "remaining", store.Len())
		}
	}); err != nil {
		return fmt.Errorf("schedule session sweep: %w", err)
	}
	sched.Start()
	defer sched.Stop()
	slog.Info("scheduler started", "sweep_schedule", cfg.Chat.SweepSchedule)

	// Status HTTP server
	if cfg.HTTP.Enabled {
		apiSrv := httpapi.NewServer(store, gw, client)
		httpServer := &http.Server{
			Addr:    cfg.HTTP.Listen,
			Handler: apiSrv,
		}
		go func() {
			slog.Info("http api started", "listen", cfg.HTTP.Listen)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("http api error", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			httpServer.Close()
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			slog.Info("received SIGHUP, restarting")
			execPath, err := os.Executable()
			if err != nil {
				slog.Error("failed to get executable path", "error", err)
				continue
			}
			// Clean up PID file before re-exec
			os.Remove(pidPath)
			if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
				slog.Error("failed to re-exec", "error", err)
				// Re-write PID file since we failed to re-exec
				if _, writeErr := writePIDFile(); writeErr != nil {
					slog.Error("failed to re-write PID file", "error", writeErr)
				}
				continue
			}
		}
		// SIGINT or SIGTERM
		slog.Info("shutting down", "signal", sig)
		return nil
	}
}
