package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/hausbot/pkg/ollama"
)

func init() {
	rootCmd.AddCommand(healthCmd)
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check whether the Ollama backend is reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		client := ollama.NewClient(&ollama.Config{
			Host:          cfg.Ollama.Host,
			Model:         cfg.Ollama.Model,
			HealthTimeout: cfg.OllamaHealthTimeout(),
		})

		ctx, cancel := context.WithTimeout(context.Background(), cfg.OllamaHealthTimeout())
		defer cancel()

		if err := client.CheckRunning(ctx); err != nil {
			return fmt.Errorf("ollama at %s: %w", cfg.Ollama.Host, err)
		}
		fmt.Fprintf(os.Stdout, "ollama at %s is reachable (model %s)\n", cfg.Ollama.Host, cfg.Ollama.Model)
		return nil
	},
}
