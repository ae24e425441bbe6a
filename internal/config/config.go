package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const defaultSystemPrompt = "Du bist ein hilfreicher Assistent der Nutzern Chats antwortet. " +
	"Antworte immer auf deutsch und verwende keine Textformatierung außer Zeilenumbrüchen. " +
	"Antworte in maximal 400 Wörtern."

type Config struct {
	LogLevel      string `json:"log_level"`
	MaxConcurrent int    `json:"max_concurrent"`
	Ollama        struct {
		Host                 string `json:"host"`
		Model                string `json:"model"`
		TimeoutSeconds       int    `json:"timeout_seconds"`
		StreamTimeoutSeconds int    `json:"stream_timeout_seconds"`
		HealthTimeoutSeconds int    `json:"health_timeout_seconds"`
	} `json:"ollama"`
	Chat struct {
		SystemPrompt      string `json:"system_prompt"`
		MaxTurns          int    `json:"max_turns"`
		SessionTTLSeconds int    `json:"session_ttl_seconds"`
		EditIntervalMS    int    `json:"edit_interval_ms"`
		SweepSchedule     string `json:"sweep_schedule"`
	} `json:"chat"`
	Telegram struct {
		Token string `json:"token"`
	} `json:"telegram"`
	HTTP struct {
		Enabled bool   `json:"enabled"`
		Listen  string `json:"listen"`
	} `json:"http"`
}

func Load(path string) (*Config, error) {
	cfg := &Config{
		LogLevel:      "info",
		MaxConcurrent: 2,
	}
	cfg.Ollama.Host = "http://127.0.0.1:11434"
	cfg.Ollama.Model = "llama3.2"
	cfg.Ollama.TimeoutSeconds = 120
	cfg.Ollama.StreamTimeoutSeconds = 300
	cfg.Ollama.HealthTimeoutSeconds = 5
	cfg.Chat.SystemPrompt = defaultSystemPrompt
	cfg.Chat.MaxTurns = 20
	cfg.Chat.SessionTTLSeconds = 300
	cfg.Chat.EditIntervalMS = 1500
	cfg.Chat.SweepSchedule = "@every 1m"
	cfg.HTTP.Listen = "127.0.0.1:8090"

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		cfg.Ollama.Host = host
	}
	if model := os.Getenv("OLLAMA_MODEL"); model != "" {
		cfg.Ollama.Model = model
	}
	if tgToken := os.Getenv("TELEGRAM_BOT_TOKEN"); tgToken != "" {
		cfg.Telegram.Token = tgToken
	}

	return cfg, nil
}

// Save writes the config atomically, creating the directory if needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

func (c *Config) OllamaTimeout() time.Duration {
	return time.Duration(c.Ollama.TimeoutSeconds) * time.Second
}

func (c *Config) OllamaStreamTimeout() time.Duration {
	return time.Duration(c.Ollama.StreamTimeoutSeconds) * time.Second
}

func (c *Config) OllamaHealthTimeout() time.Duration {
	return time.Duration(c.Ollama.HealthTimeoutSeconds) * time.Second
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Chat.SessionTTLSeconds) * time.Second
}

func (c *Config) EditInterval() time.Duration {
	return time.Duration(c.Chat.EditIntervalMS) * time.Millisecond
}
