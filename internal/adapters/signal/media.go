package signal

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/callrelay/internal/app"
	"github.com/dkeye/callrelay/internal/core"
	"github.com/dkeye/callrelay/internal/domain"
)

// BrowserMediaFactory hands media negotiation to the user's browser: offers,
// answers and candidates are relayed over the push channel both ways.
type BrowserMediaFactory struct {
	clients *app.ClientRegistry

	mu     sync.Mutex
	active map[domain.UserID]*BrowserMedia
}

func NewBrowserMediaFactory(clients *app.ClientRegistry) *BrowserMediaFactory {
	return &BrowserMediaFactory{clients: clients, active: make(map[domain.UserID]*BrowserMedia)}
}

func (f *BrowserMediaFactory) NewMedia(user domain.UserID, c domain.Call) (core.MediaSession, error) {
	m := &BrowserMedia{user: user, callID: c.ID, factory: f}
	f.mu.Lock()
	f.active[user] = m
	f.mu.Unlock()
	return m, nil
}

// Active returns the media session currently bound to user's browser.
func (f *BrowserMediaFactory) Active(user domain.UserID) (*BrowserMedia, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.active[user]
	return m, ok
}

func (f *BrowserMediaFactory) release(m *BrowserMedia) {
	f.mu.Lock()
	if f.active[m.user] == m {
		delete(f.active, m.user)
	}
	f.mu.Unlock()
}

func (f *BrowserMediaFactory) send(user domain.UserID, v any) error {
	sig, ok := f.clients.Get(user)
	if !ok {
		return errNoBrowser
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return sig.TrySend(b)
}

var errNoBrowser = errors.New("no browser attached")

type mediaFrame struct {
	Type      string            `json:"type"`
	CallID    domain.CallID     `json:"call_id"`
	Initiator bool              `json:"initiator,omitempty"`
	SDP       string            `json:"sdp,omitempty"`
	Candidate *domain.Candidate `json:"candidate,omitempty"`
}

type BrowserMedia struct {
	user    domain.UserID
	callID  domain.CallID
	factory *BrowserMediaFactory

	mu       sync.Mutex
	closed   bool
	onSignal func(domain.SignalKind, string, *domain.Candidate)
	onFailed func(error)
}

func (m *BrowserMedia) CallID() domain.CallID { return m.callID }

func (m *BrowserMedia) OnLocalSignal(fn func(domain.SignalKind, string, *domain.Candidate)) {
	m.mu.Lock()
	m.onSignal = fn
	m.mu.Unlock()
}

func (m *BrowserMedia) OnFailed(fn func(error)) {
	m.mu.Lock()
	m.onFailed = fn
	m.mu.Unlock()
}

func (m *BrowserMedia) Open(_ context.Context, initiator bool) error {
	return m.factory.send(m.user, mediaFrame{Type: "media_open", CallID: m.callID, Initiator: initiator})
}

func (m *BrowserMedia) HandleOffer(sdp string) error {
	return m.factory.send(m.user, mediaFrame{Type: "offer", CallID: m.callID, SDP: sdp})
}

func (m *BrowserMedia) HandleAnswer(sdp string) error {
	return m.factory.send(m.user, mediaFrame{Type: "answer", CallID: m.callID, SDP: sdp})
}

func (m *BrowserMedia) HandleCandidate(c domain.Candidate) error {
	return m.factory.send(m.user, mediaFrame{Type: "candidate", CallID: m.callID, Candidate: &c})
}

func (m *BrowserMedia) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()
	m.factory.release(m)
	_ = m.factory.send(m.user, mediaFrame{Type: "media_close", CallID: m.callID})
}

// Local feeds a browser-produced offer, answer or candidate to the call.
func (m *BrowserMedia) Local(kind domain.SignalKind, sdp string, cand *domain.Candidate) {
	m.mu.Lock()
	fn := m.onSignal
	if m.closed {
		fn = nil
	}
	m.mu.Unlock()
	if fn != nil {
		fn(kind, sdp, cand)
	}
}

// Failed reports a browser-side terminal failure.
func (m *BrowserMedia) Failed(err error) {
	m.mu.Lock()
	fn := m.onFailed
	if m.closed {
		fn = nil
	}
	m.onFailed = nil
	m.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (ctl *SignalWSController) handleLocalSignal(
	user domain.UserID,
	conn *WsSignalConn,
	kind string,
	data []byte,
) {
	type signalPayload struct {
		Type          string  `json:"type"`
		CallID        string  `json:"call_id"`
		SDP           string  `json:"sdp"`
		Candidate     string  `json:"candidate"`
		SDPMid        *string `json:"sdpMid"`
		SDPMLineIndex *uint16 `json:"sdpMLineIndex"`
	}
	var p signalPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("kind", kind).Msg("bad signal payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	if ctl.Media == nil {
		return
	}
	m, ok := ctl.Media.Active(user)
	if !ok || m.CallID() != domain.CallID(p.CallID) {
		log.Warn().Str("module", "signal").Str("user", string(user)).Str("call_id", p.CallID).Msg("signal for no active media")
		return
	}
	switch domain.SignalKind(kind) {
	case domain.SignalCandidate:
		m.Local(domain.SignalCandidate, "", &domain.Candidate{
			Candidate:     p.Candidate,
			SDPMid:        p.SDPMid,
			SDPMLineIndex: p.SDPMLineIndex,
		})
	default:
		m.Local(domain.SignalKind(kind), p.SDP, nil)
	}
}

func (ctl *SignalWSController) handleMediaFailed(user domain.UserID, data []byte) {
	var p struct {
		CallID string `json:"call_id"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad media_failed payload")
		return
	}
	if ctl.Media == nil {
		return
	}
	m, ok := ctl.Media.Active(user)
	if !ok || m.CallID() != domain.CallID(p.CallID) {
		return
	}
	m.Failed(errors.New(p.Reason))
}
