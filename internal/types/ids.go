// internal/types/ids.go
package types

import (
	"strings"

	"github.com/google/uuid"
)

// SessionKey identifies one conversation across a front-end transport,
// e.g. "telegram:<userID>:<chatID>".
type SessionKey string

// RunID identifies one processed turn.
type RunID string

func NewRunID() RunID {
	return RunID(uuid.New().String())
}

func NewSessionKey(parts ...string) SessionKey {
	return SessionKey(strings.Join(parts, ":"))
}

// Prefix returns the transport part of the key (up to and including the
// first separator), used for delivery routing.
func (k SessionKey) Prefix() string {
	s := string(k)
	if i := strings.Index(s, ":"); i >= 0 {
		return s[:i+1]
	}
	return s
}
