package call

import (
	"context"
	"sync"

	"github.com/dkeye/callrelay/internal/core"
	"github.com/dkeye/callrelay/internal/domain"
)

type fakeMedia struct {
	mu         sync.Mutex
	opened     bool
	initiator  bool
	offers     []string
	answers    []string
	candidates []domain.Candidate
	closed     int
	openErr    error

	onSignal func(domain.SignalKind, string, *domain.Candidate)
	onFailed func(error)
}

func (f *fakeMedia) Open(_ context.Context, initiator bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = true
	f.initiator = initiator
	return f.openErr
}

func (f *fakeMedia) HandleOffer(sdp string) error {
	f.mu.Lock()
	f.offers = append(f.offers, sdp)
	f.mu.Unlock()
	return nil
}

func (f *fakeMedia) HandleAnswer(sdp string) error {
	f.mu.Lock()
	f.answers = append(f.answers, sdp)
	f.mu.Unlock()
	return nil
}

func (f *fakeMedia) HandleCandidate(c domain.Candidate) error {
	f.mu.Lock()
	f.candidates = append(f.candidates, c)
	f.mu.Unlock()
	return nil
}

func (f *fakeMedia) OnLocalSignal(fn func(domain.SignalKind, string, *domain.Candidate)) {
	f.onSignal = fn
}

func (f *fakeMedia) OnFailed(fn func(error)) { f.onFailed = fn }

func (f *fakeMedia) Close() {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
}

type fakeFactory struct {
	mu       sync.Mutex
	sessions []*fakeMedia
	openErr  error
}

func (f *fakeFactory) NewMedia(domain.UserID, domain.Call) (core.MediaSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := &fakeMedia{openErr: f.openErr}
	f.sessions = append(f.sessions, m)
	return m, nil
}

func (f *fakeFactory) last() *fakeMedia {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sessions) == 0 {
		return nil
	}
	return f.sessions[len(f.sessions)-1]
}
