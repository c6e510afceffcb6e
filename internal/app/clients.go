package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/callrelay/internal/core"
	"github.com/dkeye/callrelay/internal/domain"
)

type clientEntry struct {
	Signal core.SignalConnection
	Cancel context.CancelFunc
}

// ClientRegistry tracks the push connection of each user's browser.
// One connection per user; a new one replaces and cancels the old.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[domain.UserID]*clientEntry
}

func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{clients: make(map[domain.UserID]*clientEntry)}
}

func (r *ClientRegistry) Bind(user domain.UserID, sig core.SignalConnection, cancel context.CancelFunc) {
	r.mu.Lock()
	old := r.clients[user]
	r.clients[user] = &clientEntry{Signal: sig, Cancel: cancel}
	r.mu.Unlock()
	if old != nil && old.Cancel != nil {
		old.Cancel()
		log.Info().Str("module", "app.clients").Str("user", string(user)).Msg("replaced push client")
	}
	log.Info().Str("module", "app.clients").Str("user", string(user)).Msg("bound push client")
}

func (r *ClientRegistry) Get(user domain.UserID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.clients[user]; ok {
		return e.Signal, true
	}
	return nil, false
}

// Unbind removes sig if it is still the user's current connection.
func (r *ClientRegistry) Unbind(user domain.UserID, sig core.SignalConnection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.clients[user]
	if !ok || e.Signal != sig {
		return false
	}
	delete(r.clients, user)
	log.Info().Str("module", "app.clients").Str("user", string(user)).Msg("unbind push client")
	return true
}

func (r *ClientRegistry) Cancel(user domain.UserID) bool {
	r.mu.RLock()
	e, ok := r.clients[user]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.clients").Str("user", string(user)).Msg("canceled push client")
	return true
}

func (r *ClientRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
