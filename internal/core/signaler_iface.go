package core

import (
	"context"

	"github.com/dkeye/callrelay/internal/domain"
)

//go:generate mockgen -destination=mocks/signaler_mock.go -package=mocks . CallSignaler

// CallSignaler is the outbound half of the call-signaling RPC surface.
type CallSignaler interface {
	InitiateCall(ctx context.Context, inv domain.CallInvite) error
	AcceptCall(ctx context.Context, id domain.CallID, by domain.UserID) error
	RejectCall(ctx context.Context, id domain.CallID, by domain.UserID) error
	EndCall(ctx context.Context, id domain.CallID, by domain.UserID) error
	SendIceOffer(ctx context.Context, s domain.MediaSignal) error
	SendIceAnswer(ctx context.Context, s domain.MediaSignal) error
	SendIceCandidate(ctx context.Context, s domain.MediaSignal) error
}
