package gateway

import (
	"context"
	"time"

	"github.com/user/hausbot/internal/types"
)

// RunStatus represents the lifecycle state of a Run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run tracks a single turn: one inbound message processed against its
// session.
type Run struct {
	ID         types.RunID
	SessionKey types.SessionKey
	Msg        *types.InboundMessage
	Status     RunStatus
	CreatedAt  time.Time

	// Ctx is set by the queue when the run is dispatched.
	Ctx context.Context

	// OnComplete receives the final assistant text (or fallback).
	OnComplete func(response string)
}

// NewRun creates a Run in the Queued state for the given message.
func NewRun(msg *types.InboundMessage) *Run {
	return &Run{
		ID:         types.NewRunID(),
		SessionKey: msg.SessionKey,
		Msg:        msg,
		Status:     RunStatusQueued,
		CreatedAt:  time.Now(),
	}
}
