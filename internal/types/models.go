// internal/types/models.go
package types

import "time"

// Role tags a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one role-tagged message in a conversation. Turns are immutable
// once appended to a window.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// InboundMessage is a user message delivered by a front-end adapter.
type InboundMessage struct {
	Source     string     `json:"source"`
	SessionKey SessionKey `json:"session_key"`
	Sender     string     `json:"sender"`
	Text       string     `json:"text"`
}

// SessionStat is a read-only view of one active session, exposed by the
// HTTP API and the session subcommand.
type SessionStat struct {
	Key          SessionKey `json:"session_key"`
	Turns        int        `json:"turns"`
	LastActivity time.Time  `json:"last_activity"`
}
