// Package gateway orchestrates conversation turns: it serializes inbound
// messages per session, drives the generation backend, relays throttled
// partial output to the front-end, and keeps each session's window
// consistent even when the backend fails.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/user/hausbot/internal/delivery"
	"github.com/user/hausbot/internal/prompt"
	"github.com/user/hausbot/internal/session"
	"github.com/user/hausbot/internal/types"
	"github.com/user/hausbot/pkg/ollama"
)

// placeholderText is posted as the first reply and edited in place as
// partial output arrives.
const placeholderText = "..."

// Generator is the backend the gateway drives. *ollama.Client satisfies
// it; tests substitute their own.
type Generator interface {
	Chat(ctx context.Context, messages []ollama.Message) (string, error)
	ChatStream(ctx context.Context, messages []ollama.Message, onPartial ollama.PartialHandler) (string, error)
}

// Options configures optional gateway behavior.
type Options struct {
	// SystemPrompt seeds every new session's window.
	SystemPrompt string

	// EditInterval is the minimum gap between in-place edits.
	EditInterval time.Duration

	// MaxConcurrent bounds simultaneous turn processing across sessions.
	MaxConcurrent int64
}

// Gateway bridges front-end adapters and the generation backend. One
// turn at a time per session; sessions run in parallel up to the
// configured concurrency.
type Gateway struct {
	store    *session.Store
	gen      Generator
	engine   *prompt.Engine
	registry *delivery.Registry
	Queue    *Queue

	systemPrompt string
	editInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Gateway wired to the provided collaborators.
func New(store *session.Store, gen Generator, engine *prompt.Engine, registry *delivery.Registry, opts Options) *Gateway {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 2
	}
	if opts.EditInterval <= 0 {
		opts.EditInterval = DefaultEditInterval
	}
	g := &Gateway{
		store:        store,
		gen:          gen,
		engine:       engine,
		registry:     registry,
		Queue:        NewQueue(opts.MaxConcurrent),
		systemPrompt: opts.SystemPrompt,
		editInterval: opts.EditInterval,
	}
	g.Queue.SetProcessor(g.processTurn)
	return g
}

// Start initialises the gateway's context and starts the internal queue.
func (g *Gateway) Start(ctx context.Context) {
	g.ctx, g.cancel = context.WithCancel(ctx)
	g.Queue.Start(g.ctx)
}

// Stop cancels the gateway context, stops the queue, and waits for any
// outstanding work to finish.
func (g *Gateway) Stop() {
	if g.cancel != nil {
		g.cancel()
	}
	g.Queue.Stop()
	g.wg.Wait()
}

// RunOption configures optional behavior on a Run.
type RunOption func(*Run)

// WithOnComplete sets a callback invoked with the turn's final text.
func WithOnComplete(fn func(string)) RunOption {
	return func(r *Run) { r.OnComplete = fn }
}

// HandleInbound wraps the message in a Run and enqueues it on the
// session's lane. Returns ErrSessionBusy (wrapped) when the lane is full.
func (g *Gateway) HandleInbound(_ context.Context, msg *types.InboundMessage, opts ...RunOption) error {
	run := NewRun(msg)
	for _, opt := range opts {
		opt(run)
	}
	if err := g.Queue.Enqueue(run); err != nil {
		return fmt.Errorf("enqueue turn: %w", err)
	}
	return nil
}

// SystemPrompt returns the prompt used to seed new sessions.
func (g *Gateway) SystemPrompt() string {
	return g.systemPrompt
}

// processTurn runs one turn end to end. The session is held for the
// whole turn, so appends from different turns can never interleave and
// the window's user/assistant alternation is preserved. Backend failures
// do not return an error: the fallback text is relayed and appended so
// the window stays consistent.
func (g *Gateway) processTurn(run *Run) error {
	ctx := run.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	sess := g.store.Acquire(run.SessionKey, g.systemPrompt)
	defer g.store.Release(sess)

	g.store.Append(sess, types.Turn{Role: types.RoleUser, Content: run.Msg.Text})

	turns := sess.Window.Snapshot()
	messages := g.engine.Messages(turns)

	slog.Debug("generating",
		"run_id", string(run.ID),
		"session_key", string(run.SessionKey),
		"sender", run.Msg.Sender,
		"turns", len(turns),
		"prompt_tokens", g.engine.CountTokens(turns),
	)

	// Placeholder reply, edited in place as output arrives. A failed
	// send disables partial relay but never fails the turn.
	var update func(string) error
	ref, sendErr := g.registry.Send(run.SessionKey, placeholderText)
	if sendErr != nil {
		slog.Warn("placeholder send failed", "session_key", string(run.SessionKey), "error", sendErr)
	} else {
		update = func(text string) error {
			return g.registry.Update(run.SessionKey, ref, text)
		}
	}
	throttler := NewEditThrottler(g.editInterval, update)

	var acc strings.Builder
	final, err := g.gen.ChatStream(ctx, messages, func(delta string) {
		acc.WriteString(delta)
		throttler.Partial(acc.String())
	})
	if err != nil {
		slog.Error("generation failed",
			"run_id", string(run.ID),
			"session_key", string(run.SessionKey),
			"error", err,
		)
		// Keep whatever was streamed before the failure.
		if final == "" {
			final = ollama.FallbackText(err)
		}
	}
	if final == "" {
		final = ollama.FallbackEmpty
	}

	throttler.Flush(final)
	if update == nil {
		// No placeholder to edit; deliver the final text as a fresh reply.
		if _, err := g.registry.Send(run.SessionKey, final); err != nil {
			slog.Warn("final delivery failed", "session_key", string(run.SessionKey), "error", err)
		}
	}

	g.store.Append(sess, types.Turn{Role: types.RoleAssistant, Content: final})

	if run.OnComplete != nil {
		run.OnComplete(final)
	}
	return nil
}
