package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/hausbot/pkg/ollama"
)

func init() {
	rootCmd.AddCommand(askCmd)
}

var askCmd = &cobra.Command{
	Use:   "ask <prompt...>",
	Short: "Ask the model a one-shot question without a session",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		client := ollama.NewClient(&ollama.Config{
			Host:          cfg.Ollama.Host,
			Model:         cfg.Ollama.Model,
			Timeout:       cfg.OllamaTimeout(),
			StreamTimeout: cfg.OllamaStreamTimeout(),
			HealthTimeout: cfg.OllamaHealthTimeout(),
		})

		messages := []ollama.Message{
			{Role: "system", Content: cfg.Chat.SystemPrompt},
			{Role: "user", Content: strings.Join(args, " ")},
		}

		response, err := client.Chat(context.Background(), messages)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, response)
		return nil
	},
}
