// Package prompt converts window snapshots into backend messages and
// estimates their token cost.
package prompt

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/hausbot/internal/types"
	"github.com/user/hausbot/pkg/ollama"
)

// Engine turns a window snapshot into the ordered role/content pairs the
// backend expects. Token counts are estimates: local models do not share
// a tokenizer, but the estimate is close enough for the status surface
// and request logging.
type Engine struct {
	tokenizer *tiktoken.Tiktoken
}

// New creates an engine. model selects the tokenizer; unknown models fall
// back to cl100k_base.
func New(model string) (*Engine, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &Engine{tokenizer: enc}, nil
}

// Messages maps turns to backend messages, preserving order.
func (e *Engine) Messages(turns []types.Turn) []ollama.Message {
	messages := make([]ollama.Message, len(turns))
	for i, turn := range turns {
		messages[i] = ollama.Message{Role: string(turn.Role), Content: turn.Content}
	}
	return messages
}

// CountTokens estimates the token cost of the given turns.
func (e *Engine) CountTokens(turns []types.Turn) int {
	total := 0
	for _, turn := range turns {
		total += len(e.tokenizer.Encode(turn.Content, nil, nil))
	}
	return total
}
