package rtc

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/callrelay/internal/domain"
)

type signals struct {
	mu    sync.Mutex
	sdp   map[domain.SignalKind]string
	cands int
}

func (s *signals) record(kind domain.SignalKind, sdp string, cand *domain.Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cand != nil {
		s.cands++
		return
	}
	if s.sdp == nil {
		s.sdp = map[domain.SignalKind]string{}
	}
	s.sdp[kind] = sdp
}

func (s *signals) get(kind domain.SignalKind) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sdp[kind]
}

func TestOfferAnswerNegotiation(t *testing.T) {
	f := Factory{Config: webrtc.Configuration{}}
	ctx := context.Background()

	caller, err := f.NewMedia("alice", domain.Call{ID: "c1", Initiator: true})
	require.NoError(t, err)
	defer caller.Close()
	callee, err := f.NewMedia("bob", domain.Call{ID: "c1"})
	require.NoError(t, err)
	defer callee.Close()

	var a, b signals
	caller.OnLocalSignal(a.record)
	callee.OnLocalSignal(b.record)

	require.NoError(t, callee.Open(ctx, false))
	assert.Empty(t, b.get(domain.SignalAnswer))

	require.NoError(t, caller.Open(ctx, true))
	offer := a.get(domain.SignalOffer)
	require.NotEmpty(t, offer)
	assert.True(t, strings.Contains(offer, "m=audio"))

	require.NoError(t, callee.HandleOffer(offer))
	answer := b.get(domain.SignalAnswer)
	require.NotEmpty(t, answer)
	require.NoError(t, caller.HandleAnswer(answer))
}

func TestBadRemoteDescription(t *testing.T) {
	f := Factory{Config: DefaultWebRTCConfig(nil)}
	sess, err := f.NewMedia("alice", domain.Call{ID: "c1"})
	require.NoError(t, err)
	defer sess.Close()

	require.NoError(t, sess.Open(context.Background(), false))
	assert.Error(t, sess.HandleOffer("not sdp"))
}

func TestCloseSuppressesFailure(t *testing.T) {
	f := Factory{Config: webrtc.Configuration{}}
	sess, err := f.NewMedia("alice", domain.Call{ID: "c1"})
	require.NoError(t, err)

	failed := make(chan error, 1)
	sess.OnFailed(func(err error) { failed <- err })
	require.NoError(t, sess.Open(context.Background(), false))

	sess.Close()
	sess.Close()

	conn := sess.(*WebRTCConnection)
	conn.fail(assert.AnError)
	assert.Len(t, failed, 0)
}

func TestDefaultWebRTCConfig(t *testing.T) {
	cfg := DefaultWebRTCConfig([]string{"stun:stun.example:3478"})
	require.Len(t, cfg.ICEServers, 1)
	assert.Equal(t, []string{"stun:stun.example:3478"}, cfg.ICEServers[0].URLs)

	assert.NotEmpty(t, DefaultWebRTCConfig(nil).ICEServers[0].URLs)
}
