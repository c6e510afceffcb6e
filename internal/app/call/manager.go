package call

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/callrelay/internal/core"
	"github.com/dkeye/callrelay/internal/domain"
)

// UserEvent is a machine Event tagged with the participant it belongs to.
type UserEvent struct {
	User  domain.UserID
	Event Event
}

// Manager owns one Machine per local participant.
type Manager struct {
	sig   core.CallSignaler
	media core.MediaFactory
	newID func() domain.CallID

	mu       sync.RWMutex
	machines map[domain.UserID]*Machine

	events core.Bus[UserEvent]
}

func NewManager(sig core.CallSignaler, media core.MediaFactory) *Manager {
	return &Manager{
		sig:      sig,
		media:    media,
		newID:    func() domain.CallID { return domain.CallID(uuid.NewString()) },
		machines: make(map[domain.UserID]*Machine),
	}
}

func (m *Manager) OnEvent(fn func(UserEvent)) func() { return m.events.Subscribe(fn) }

// For returns the user's machine, creating it on first use.
func (m *Manager) For(user domain.UserID) *Machine {
	m.mu.RLock()
	mc, ok := m.machines[user]
	m.mu.RUnlock()
	if ok {
		return mc
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if mc, ok = m.machines[user]; ok {
		return mc
	}
	mc = NewMachine(user, m.sig, m.media, m.newID)
	mc.OnEvent(func(ev Event) { m.events.Publish(UserEvent{User: user, Event: ev}) })
	m.machines[user] = mc
	return mc
}

func (m *Manager) Lookup(user domain.UserID) (*Machine, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mc, ok := m.machines[user]
	return mc, ok
}

// Dispatch routes a call or ICE event to the addressed participant. Events
// for users without a machine are dropped; machines are only created on
// registration.
func (m *Manager) Dispatch(ctx context.Context, p domain.Push) {
	if p.User == "" {
		log.Warn().Str("module", "call").Str("event", string(p.Kind)).Msg("event without recipient")
		return
	}
	mc, ok := m.Lookup(p.User)
	if !ok {
		log.Debug().Str("module", "call").Str("user", string(p.User)).Str("event", string(p.Kind)).Msg("no machine, event dropped")
		return
	}
	mc.Handle(ctx, p)
}

// Drop hangs up the user's call, if any, and forgets the machine.
func (m *Manager) Drop(ctx context.Context, user domain.UserID) {
	m.mu.Lock()
	mc, ok := m.machines[user]
	delete(m.machines, user)
	m.mu.Unlock()
	if !ok {
		return
	}
	if err := mc.End(ctx, ""); err != nil {
		log.Error().Err(err).Str("module", "call").Str("user", string(user)).Msg("end on drop")
	}
}

// Close hangs up every call.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	all := m.machines
	m.machines = make(map[domain.UserID]*Machine)
	m.mu.Unlock()
	for _, mc := range all {
		_ = mc.End(ctx, "")
	}
}
