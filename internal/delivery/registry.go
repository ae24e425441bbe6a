// internal/delivery/registry.go
package delivery

import (
	"fmt"
	"strings"
	"sync"

	"github.com/user/hausbot/internal/types"
)

// MessageRef identifies a previously sent message within its transport so
// it can be updated in place.
type MessageRef int

// Messenger is one outbound transport: it can post a new reply into a
// session's conversation and edit a previously posted reply in place.
type Messenger interface {
	Send(sessionKey types.SessionKey, text string) (MessageRef, error)
	Update(sessionKey types.SessionKey, ref MessageRef, text string) error
}

// Registry routes outbound calls to the appropriate Messenger based on
// session key prefix (e.g. "telegram:").
type Registry struct {
	mu         sync.RWMutex
	messengers map[string]Messenger
}

// NewRegistry creates an empty delivery registry.
func NewRegistry() *Registry {
	return &Registry{
		messengers: make(map[string]Messenger),
	}
}

// Register adds a messenger for session keys starting with prefix.
func (r *Registry) Register(prefix string, m Messenger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messengers[prefix] = m
}

// Send posts a new reply into the session's conversation.
func (r *Registry) Send(sessionKey types.SessionKey, text string) (MessageRef, error) {
	m, err := r.lookup(sessionKey)
	if err != nil {
		return 0, err
	}
	return m.Send(sessionKey, text)
}

// Update edits a previously sent reply in place.
func (r *Registry) Update(sessionKey types.SessionKey, ref MessageRef, text string) error {
	m, err := r.lookup(sessionKey)
	if err != nil {
		return err
	}
	return m.Update(sessionKey, ref, text)
}

func (r *Registry) lookup(sessionKey types.SessionKey) (Messenger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for prefix, m := range r.messengers {
		if strings.HasPrefix(string(sessionKey), prefix) {
			return m, nil
		}
	}
	return nil, fmt.Errorf("no messenger for session key: %s", sessionKey)
}
