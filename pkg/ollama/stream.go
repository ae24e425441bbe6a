package ollama

import (
	"bufio"
	"context"
	"io"
	"strings"
)

// PartialHandler receives each partial text fragment during streaming.
// The client invokes it sequentially from the read loop and never after
// the completion flag has been observed.
type PartialHandler func(text string)

// ChatStream opens a streaming chat request and decodes newline-delimited
// fragments as they arrive. Partial text is accumulated and handed to
// onPartial; malformed lines are skipped; the loop ends on the completion
// flag or when the transport closes.
//
// A failure after partial accumulation still returns the accumulated text
// alongside the error, so callers can degrade gracefully instead of
// discarding what was already generated.
func (c *Client) ChatStream(ctx context.Context, messages []Message, onPartial PartialHandler) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.StreamTimeout)
	defer cancel()

	resp, err := c.post(ctx, chatRequest{Model: c.config.Model, Messages: messages, Stream: true})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var acc strings.Builder
	reader := bufio.NewReader(resp.Body)

	for {
		select {
		case <-ctx.Done():
			return acc.String(), classifyTransport(ctx.Err(), "stream aborted")
		default:
		}

		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			ev := DecodeLine(line)
			if ev.Text != "" {
				acc.WriteString(ev.Text)
				if onPartial != nil {
					onPartial(ev.Text)
				}
			}
			if ev.Done {
				return acc.String(), nil
			}
		}
		if err != nil {
			if err == io.EOF {
				return acc.String(), nil
			}
			// Deadline expiry surfaces as a read error on the closed body.
			if ctxErr := ctx.Err(); ctxErr != nil {
				return acc.String(), classifyTransport(ctxErr, "stream aborted")
			}
			return acc.String(), classifyTransport(err, "read stream")
		}
	}
}
