package core

import (
	"context"

	"github.com/dkeye/callrelay/internal/domain"
)

// MediaSession is the media-negotiation collaborator of one call.
// Locally produced offers, answers and candidates come back through OnLocalSignal.
type MediaSession interface {
	// Open starts local capture. The initiator produces the offer.
	Open(ctx context.Context, initiator bool) error
	HandleOffer(sdp string) error
	HandleAnswer(sdp string) error
	HandleCandidate(domain.Candidate) error
	OnLocalSignal(func(kind domain.SignalKind, sdp string, cand *domain.Candidate))
	// OnFailed is invoked on a terminal negotiation failure (ICE failed/closed).
	OnFailed(func(error))
	// Close should stop all underlying media resources.
	Close()
}

type MediaFactory interface {
	NewMedia(user domain.UserID, call domain.Call) (MediaSession, error)
}
