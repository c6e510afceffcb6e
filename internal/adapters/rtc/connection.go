// Package rtc terminates call media on the server with pion.
package rtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/callrelay/internal/core"
	"github.com/dkeye/callrelay/internal/domain"
)

func DefaultWebRTCConfig(iceServers []string) webrtc.Configuration {
	if len(iceServers) == 0 {
		iceServers = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: iceServers}},
	}
}

// Factory creates one PeerConnection per call.
type Factory struct {
	Config webrtc.Configuration
}

func (f Factory) NewMedia(user domain.UserID, c domain.Call) (core.MediaSession, error) {
	pc, err := webrtc.NewPeerConnection(f.Config)
	if err != nil {
		return nil, err
	}
	return &WebRTCConnection{
		pc: pc,
		logger: log.With().
			Str("module", "webrtc").
			Str("user", string(user)).
			Str("call_id", string(c.ID)).
			Logger(),
	}, nil
}

type WebRTCConnection struct {
	pc     *webrtc.PeerConnection
	logger zerolog.Logger
	cancel context.CancelFunc

	mu       sync.Mutex
	closed   bool
	onSignal func(domain.SignalKind, string, *domain.Candidate)
	onFailed func(error)
}

func (c *WebRTCConnection) OnLocalSignal(fn func(domain.SignalKind, string, *domain.Candidate)) {
	c.mu.Lock()
	c.onSignal = fn
	c.mu.Unlock()
}

func (c *WebRTCConnection) OnFailed(fn func(error)) {
	c.mu.Lock()
	c.onFailed = fn
	c.mu.Unlock()
}

func (c *WebRTCConnection) Open(ctx context.Context, initiator bool) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	// Capture devices are outside this process; the transceiver negotiates the audio line.
	if _, err := c.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendrecv,
	}); err != nil {
		return fmt.Errorf("add audio transceiver: %w", err)
	}

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		c.logger.Info().Str("ice_state", s.String()).Msg("ICE state")
		if s == webrtc.ICEConnectionStateFailed || s == webrtc.ICEConnectionStateClosed {
			c.fail(fmt.Errorf("ice connection %s", s))
		}
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.logger.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed {
			c.fail(fmt.Errorf("peer connection %s", s))
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		init := cand.ToJSON()
		c.emit(domain.SignalCandidate, "", &domain.Candidate{
			Candidate:     init.Candidate,
			SDPMid:        init.SDPMid,
			SDPMLineIndex: init.SDPMLineIndex,
		})
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.logger.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Msg("OnTrack received")
		go drain(ctx, track)
	})

	if !initiator {
		return nil
	}
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local offer: %w", err)
	}
	c.emit(domain.SignalOffer, offer.SDP, nil)
	return nil
}

func (c *WebRTCConnection) HandleOffer(sdp string) error {
	if err := c.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		return fmt.Errorf("set remote offer: %w", err)
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local answer: %w", err)
	}
	c.emit(domain.SignalAnswer, answer.SDP, nil)
	return nil
}

func (c *WebRTCConnection) HandleAnswer(sdp string) error {
	if err := c.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}); err != nil {
		return fmt.Errorf("set remote answer: %w", err)
	}
	return nil
}

func (c *WebRTCConnection) HandleCandidate(cand domain.Candidate) error {
	return c.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     cand.Candidate,
		SDPMid:        cand.SDPMid,
		SDPMLineIndex: cand.SDPMLineIndex,
	})
}

func (c *WebRTCConnection) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	if err := c.pc.Close(); err != nil {
		c.logger.Error().Err(err).Msg("close error")
	} else {
		c.logger.Info().Msg("closed")
	}
}

func (c *WebRTCConnection) emit(kind domain.SignalKind, sdp string, cand *domain.Candidate) {
	c.mu.Lock()
	fn := c.onSignal
	closed := c.closed
	c.mu.Unlock()
	if fn != nil && !closed {
		fn(kind, sdp, cand)
	}
}

// fail reports a terminal failure once, and never after an explicit Close.
func (c *WebRTCConnection) fail(err error) {
	c.mu.Lock()
	fn := c.onFailed
	if c.closed {
		fn = nil
	}
	c.onFailed = nil
	c.mu.Unlock()
	if fn != nil {
		// the handler closes this connection, which must not run on a pion callback goroutine
		go fn(err)
	}
}

func drain(ctx context.Context, track *webrtc.TrackRemote) {
	for ctx.Err() == nil {
		if _, _, err := track.ReadRTP(); err != nil {
			return
		}
	}
}
