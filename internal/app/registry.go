package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/callrelay/internal/core"
	"github.com/dkeye/callrelay/internal/domain"
)

// RegisterResult is the outcome of a registration. AlreadyConnected is a soft
// result: the existing session is kept and no error is returned.
type RegisterResult struct {
	Greeting         string `json:"message"`
	AlreadyConnected bool   `json:"already_connected"`
}

type RegistryOptions struct {
	Addr  string
	Grace time.Duration
	Clock clock.Clock
}

// Registry owns every per-user chat-server session of the process.
type Registry struct {
	dialer core.Dialer
	codec  core.CommandCodec
	addr   string
	grace  time.Duration
	clock  clock.Clock

	mu         sync.RWMutex
	sessions   map[domain.UserID]*Session
	connecting map[domain.UserID]struct{}

	closed core.Bus[domain.UserID]
}

func NewRegistry(d core.Dialer, codec core.CommandCodec, opts RegistryOptions) *Registry {
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Registry{
		dialer:     d,
		codec:      codec,
		addr:       opts.Addr,
		grace:      opts.Grace,
		clock:      clk,
		sessions:   make(map[domain.UserID]*Session),
		connecting: make(map[domain.UserID]struct{}),
	}
}

// Register opens a session for user: connect, send the registration line,
// wait the grace window and commit. Whatever arrived during the window is the
// greeting; anything later lands in the mailbox.
func (r *Registry) Register(ctx context.Context, user domain.UserID) (RegisterResult, error) {
	r.mu.Lock()
	_, live := r.sessions[user]
	_, pending := r.connecting[user]
	if live || pending {
		r.mu.Unlock()
		log.Info().Str("module", "app.registry").Str("user", string(user)).Msg("already connected")
		return RegisterResult{Greeting: AlreadyConnectedGreeting, AlreadyConnected: true}, nil
	}
	r.connecting[user] = struct{}{}
	r.mu.Unlock()

	release := func() {
		r.mu.Lock()
		delete(r.connecting, user)
		r.mu.Unlock()
	}

	line, err := r.codec.Encode(core.Command{Verb: core.VerbRegister, Target: string(user)})
	if err != nil {
		release()
		return RegisterResult{}, err
	}

	conn, err := r.dialer.Dial(ctx, r.addr)
	if err != nil {
		release()
		return RegisterResult{}, fmt.Errorf("register %s: %w", user, err)
	}

	sess := newSession(user, conn, r.clock)
	sess.attach(func(err error) { r.remove(sess, err) })
	conn.Start()

	if err := conn.Send(line); err != nil {
		_ = conn.Close()
		release()
		return RegisterResult{}, fmt.Errorf("register %s: %w", user, err)
	}

	select {
	case <-r.clock.After(r.grace):
	case <-ctx.Done():
		_ = conn.Close()
		release()
		return RegisterResult{}, ctx.Err()
	}

	greeting, ok := sess.commit()
	r.mu.Lock()
	delete(r.connecting, user)
	if !ok || sess.Status() != domain.StatusConnected {
		r.mu.Unlock()
		return RegisterResult{}, fmt.Errorf("register %s: %w", user, ErrConnectionLost)
	}
	r.sessions[user] = sess
	r.mu.Unlock()

	if greeting == "" {
		greeting = DefaultGreeting
	}
	log.Info().Str("module", "app.registry").Str("user", string(user)).Str("greeting", greeting).Msg("registered")
	return RegisterResult{Greeting: greeting}, nil
}

func (r *Registry) remove(sess *Session, err error) {
	r.mu.Lock()
	if cur, ok := r.sessions[sess.user]; ok && cur == sess {
		delete(r.sessions, sess.user)
	}
	r.mu.Unlock()
	log.Info().Err(err).Str("module", "app.registry").Str("user", string(sess.user)).Msg("session closed")
	r.closed.Publish(sess.user)
}

// OnClosed subscribes to session teardown.
func (r *Registry) OnClosed(fn func(domain.UserID)) func() { return r.closed.Subscribe(fn) }

func (r *Registry) Get(user domain.UserID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[user]
	return s, ok
}

// Disconnect closes the user's transport; the session removes itself.
func (r *Registry) Disconnect(user domain.UserID) error {
	s, ok := r.Get(user)
	if !ok {
		return ErrNotRegistered
	}
	return s.conn.Close()
}

// Drain empties and returns the user's mailbox.
func (r *Registry) Drain(user domain.UserID) ([]string, error) {
	s, ok := r.Get(user)
	if !ok {
		return nil, ErrNotRegistered
	}
	return s.Drain(), nil
}

// Enqueue appends a notification to the user's mailbox.
func (r *Registry) Enqueue(user domain.UserID, text string) error {
	s, ok := r.Get(user)
	if !ok {
		return ErrNotRegistered
	}
	s.Enqueue(text)
	return nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) Users() []domain.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.UserID, 0, len(r.sessions))
	for u := range r.sessions {
		out = append(out, u)
	}
	return out
}

// CloseAll tears down every session.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.RUnlock()
	for _, s := range all {
		_ = s.conn.Close()
	}
}
