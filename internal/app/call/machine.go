// Package call tracks the lifecycle of one user's call across asynchronous
// signaling events and drives the media collaborator.
package call

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/callrelay/internal/app"
	"github.com/dkeye/callrelay/internal/core"
	"github.com/dkeye/callrelay/internal/domain"
)

type EventType string

const (
	EventIncoming EventType = "call_incoming"
	EventState    EventType = "call_state"
	EventRejected EventType = "call_rejected"
	EventEnded    EventType = "call_ended"
	EventFailed   EventType = "call_failed"
)

// Event is what the UI layer is told about a call.
type Event struct {
	Type   EventType   `json:"type"`
	Call   domain.Call `json:"call"`
	Reason string      `json:"reason,omitempty"`
}

var ErrInvalidTarget = errors.New("invalid call target")

// Machine is the single-call state machine of one participant.
// A nil call means idle.
type Machine struct {
	self   domain.UserID
	sig    core.CallSignaler
	media  core.MediaFactory
	newID  func() domain.CallID
	events core.Bus[Event]
	logger zerolog.Logger

	mu      sync.Mutex
	call    *domain.Call
	session core.MediaSession
	early   []domain.Push
}

func NewMachine(self domain.UserID, sig core.CallSignaler, media core.MediaFactory, newID func() domain.CallID) *Machine {
	return &Machine{
		self:   self,
		sig:    sig,
		media:  media,
		newID:  newID,
		logger: log.With().Str("module", "call").Str("user", string(self)).Logger(),
	}
}

func (m *Machine) OnEvent(fn func(Event)) func() { return m.events.Subscribe(fn) }

func (m *Machine) State() domain.CallState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.call == nil {
		return domain.CallIdle
	}
	return m.call.State
}

// Current returns a copy of the active call record.
func (m *Machine) Current() (domain.Call, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.call == nil {
		return domain.Call{Self: m.self, State: domain.CallIdle}, false
	}
	return *m.call, true
}

// Start places an outgoing call. Media capture waits for the callee to accept.
func (m *Machine) Start(ctx context.Context, kind domain.CallKind, peer domain.UserID, group domain.GroupName) (domain.Call, error) {
	switch kind {
	case domain.CallPrivate:
		if peer == "" || peer == m.self {
			return domain.Call{}, ErrInvalidTarget
		}
		group = ""
	case domain.CallGroup:
		if group == "" {
			return domain.Call{}, ErrInvalidTarget
		}
		peer = ""
	default:
		return domain.Call{}, ErrInvalidTarget
	}

	m.mu.Lock()
	if m.call != nil {
		m.mu.Unlock()
		return domain.Call{}, app.ErrCallInProgress
	}
	c := &domain.Call{
		ID:        m.newID(),
		Kind:      kind,
		Self:      m.self,
		Peer:      peer,
		Group:     group,
		Initiator: true,
		State:     domain.CallOutgoing,
	}
	m.call = c
	snap := *c
	m.mu.Unlock()

	inv := domain.CallInvite{ID: snap.ID, From: m.self, To: peer, Kind: kind, Group: group}
	if err := m.sig.InitiateCall(ctx, inv); err != nil {
		m.mu.Lock()
		if m.call == c {
			m.call = nil
		}
		m.mu.Unlock()
		return domain.Call{}, fmt.Errorf("initiate call: %w", err)
	}
	m.logger.Info().Str("call_id", string(snap.ID)).Str("peer", string(peer)).Str("group", string(group)).Msg("outgoing call")
	m.events.Publish(Event{Type: EventState, Call: snap})
	return snap, nil
}

// Accept answers the incoming call id and starts local media.
func (m *Machine) Accept(ctx context.Context, id domain.CallID) error {
	m.mu.Lock()
	if m.call == nil || m.call.ID != id || m.call.State != domain.CallIncoming {
		m.mu.Unlock()
		return app.ErrNoSuchCall
	}
	m.call.State = domain.CallActive
	snap := *m.call
	m.mu.Unlock()

	if err := m.sig.AcceptCall(ctx, id, m.self); err != nil {
		m.teardown(id, EventFailed, err.Error(), false)
		return fmt.Errorf("accept call: %w", err)
	}
	m.logger.Info().Str("call_id", string(id)).Msg("accepted")
	m.events.Publish(Event{Type: EventState, Call: snap})
	m.openMedia(ctx, snap)
	return nil
}

// Reject declines the incoming call id.
func (m *Machine) Reject(ctx context.Context, id domain.CallID) error {
	m.mu.Lock()
	if m.call == nil || m.call.ID != id || m.call.State != domain.CallIncoming {
		m.mu.Unlock()
		return app.ErrNoSuchCall
	}
	snap := *m.call
	m.call = nil
	m.early = nil
	m.mu.Unlock()

	err := m.sig.RejectCall(ctx, id, m.self)
	snap.State = domain.CallIdle
	m.logger.Info().Str("call_id", string(id)).Msg("rejected")
	m.events.Publish(Event{Type: EventRejected, Call: snap, Reason: "local"})
	return err
}

// End hangs up. An empty id means the current call. Ending when idle, or a
// call that is not the current one, is a no-op.
func (m *Machine) End(ctx context.Context, id domain.CallID) error {
	m.mu.Lock()
	if m.call == nil || (id != "" && m.call.ID != id) {
		m.mu.Unlock()
		return nil
	}
	id = m.call.ID
	m.mu.Unlock()

	snap, ok := m.teardown(id, EventEnded, "local", false)
	if !ok {
		return nil
	}
	return m.sig.EndCall(ctx, snap.ID, m.self)
}

// Handle applies one inbound signaling event addressed to this participant.
// Stale or mismatched events are dropped.
func (m *Machine) Handle(ctx context.Context, p domain.Push) {
	switch p.Kind {
	case domain.PushCallIncoming:
		m.handleIncoming(ctx, p)
	case domain.PushCallStarted, domain.PushCallAccepted:
		m.handleAccepted(ctx, p)
	case domain.PushCallRejected:
		m.teardown(p.CallID, EventRejected, "remote", false)
	case domain.PushCallEnded:
		m.teardown(p.CallID, EventEnded, "remote", false)
	case domain.PushIceOffer, domain.PushIceAnswer, domain.PushIceCandidate:
		m.handleSignal(p)
	default:
		m.logger.Debug().Str("event", string(p.Kind)).Msg("ignored event")
	}
}

func (m *Machine) handleIncoming(ctx context.Context, p domain.Push) {
	kind := p.CallKind
	if kind == "" {
		kind = domain.CallPrivate
	}
	m.mu.Lock()
	if m.call != nil {
		dup := m.call.ID == p.CallID
		m.mu.Unlock()
		if dup {
			return
		}
		m.logger.Info().Str("call_id", string(p.CallID)).Str("from", string(p.From)).Msg("busy, rejecting incoming call")
		if err := m.sig.RejectCall(ctx, p.CallID, m.self); err != nil {
			m.logger.Error().Err(err).Msg("auto-reject")
		}
		return
	}
	c := &domain.Call{
		ID:    p.CallID,
		Kind:  kind,
		Self:  m.self,
		Peer:  p.From,
		Group: p.Group,
		State: domain.CallIncoming,
	}
	m.call = c
	snap := *c
	m.mu.Unlock()

	m.logger.Info().Str("call_id", string(p.CallID)).Str("from", string(p.From)).Msg("incoming call")
	m.events.Publish(Event{Type: EventIncoming, Call: snap})
}

func (m *Machine) handleAccepted(ctx context.Context, p domain.Push) {
	m.mu.Lock()
	if m.call == nil || m.call.ID != p.CallID || m.call.State != domain.CallOutgoing {
		m.mu.Unlock()
		return
	}
	m.call.State = domain.CallActive
	snap := *m.call
	m.mu.Unlock()

	m.logger.Info().Str("call_id", string(p.CallID)).Msg("call accepted by remote")
	m.events.Publish(Event{Type: EventState, Call: snap})
	m.openMedia(ctx, snap)
}

func (m *Machine) handleSignal(p domain.Push) {
	m.mu.Lock()
	if m.call == nil || m.call.ID != p.CallID || !m.call.Counterpart(p.From) {
		m.mu.Unlock()
		m.logger.Debug().Str("call_id", string(p.CallID)).Str("event", string(p.Kind)).Msg("stale signal dropped")
		return
	}
	sess := m.session
	if sess == nil {
		m.early = append(m.early, p)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.apply(sess, p)
}

func (m *Machine) apply(sess core.MediaSession, p domain.Push) {
	var err error
	switch p.Kind {
	case domain.PushIceOffer:
		err = sess.HandleOffer(p.SDP)
	case domain.PushIceAnswer:
		err = sess.HandleAnswer(p.SDP)
	case domain.PushIceCandidate:
		if p.Candidate != nil {
			if cerr := sess.HandleCandidate(*p.Candidate); cerr != nil {
				m.logger.Warn().Err(cerr).Msg("add candidate")
			}
		}
		return
	}
	if err != nil {
		m.fail(p.CallID, err)
	}
}

func (m *Machine) openMedia(ctx context.Context, c domain.Call) {
	ctx = context.WithoutCancel(ctx)
	sess, err := m.media.NewMedia(m.self, c)
	if err != nil {
		m.fail(c.ID, err)
		return
	}
	sess.OnLocalSignal(func(kind domain.SignalKind, sdp string, cand *domain.Candidate) {
		m.sendLocal(c.ID, kind, sdp, cand)
	})
	sess.OnFailed(func(err error) { m.fail(c.ID, err) })

	m.mu.Lock()
	if m.call == nil || m.call.ID != c.ID {
		m.mu.Unlock()
		sess.Close()
		return
	}
	m.session = sess
	early := m.early
	m.early = nil
	m.mu.Unlock()

	if err := sess.Open(ctx, c.Initiator); err != nil {
		m.fail(c.ID, err)
		return
	}
	for _, p := range early {
		m.apply(sess, p)
	}
}

func (m *Machine) sendLocal(id domain.CallID, kind domain.SignalKind, sdp string, cand *domain.Candidate) {
	m.mu.Lock()
	if m.call == nil || m.call.ID != id {
		m.mu.Unlock()
		return
	}
	s := domain.MediaSignal{
		Kind:      kind,
		CallID:    id,
		From:      m.self,
		To:        m.call.Peer,
		Group:     m.call.Group,
		SDP:       sdp,
		Candidate: cand,
	}
	m.mu.Unlock()

	ctx := context.Background()
	var err error
	switch kind {
	case domain.SignalOffer:
		err = m.sig.SendIceOffer(ctx, s)
	case domain.SignalAnswer:
		err = m.sig.SendIceAnswer(ctx, s)
	case domain.SignalCandidate:
		err = m.sig.SendIceCandidate(ctx, s)
	}
	if err != nil {
		m.logger.Error().Err(err).Str("call_id", string(id)).Str("kind", string(kind)).Msg("send signal")
	}
}

// fail runs the local end path after a terminal media failure.
func (m *Machine) fail(id domain.CallID, cause error) {
	err := fmt.Errorf("%w: %v", app.ErrMediaNegotiation, cause)
	snap, ok := m.teardown(id, EventFailed, err.Error(), true)
	if !ok {
		return
	}
	m.logger.Warn().Err(err).Str("call_id", string(id)).Msg("call failed")
	if serr := m.sig.EndCall(context.Background(), snap.ID, m.self); serr != nil {
		m.logger.Error().Err(serr).Msg("end after failure")
	}
}

// teardown returns to idle if id is the current call, closing media outside the lock.
func (m *Machine) teardown(id domain.CallID, ev EventType, reason string, failed bool) (domain.Call, bool) {
	m.mu.Lock()
	if m.call == nil || m.call.ID != id {
		m.mu.Unlock()
		return domain.Call{}, false
	}
	snap := *m.call
	sess := m.session
	m.call = nil
	m.session = nil
	m.early = nil
	m.mu.Unlock()

	if sess != nil {
		sess.Close()
	}
	snap.State = domain.CallIdle
	m.logger.Info().Str("call_id", string(id)).Str("event", string(ev)).Str("reason", reason).Bool("failed", failed).Msg("call over")
	m.events.Publish(Event{Type: ev, Call: snap, Reason: reason})
	return snap, true
}
