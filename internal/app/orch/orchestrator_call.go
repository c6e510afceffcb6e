package orch

import (
	"context"

	"github.com/dkeye/callrelay/internal/app"
	"github.com/dkeye/callrelay/internal/app/call"
	"github.com/dkeye/callrelay/internal/domain"
)

func (o *Orchestrator) StartCall(ctx context.Context, user domain.UserID, kind domain.CallKind, peer domain.UserID, group domain.GroupName) (domain.Call, error) {
	if _, ok := o.Sessions.Get(user); !ok {
		return domain.Call{}, app.ErrNotConnected
	}
	return o.Calls.For(user).Start(ctx, kind, peer, group)
}

func (o *Orchestrator) AcceptCall(ctx context.Context, user domain.UserID, id domain.CallID) error {
	mc, err := o.machine(user)
	if err != nil {
		return err
	}
	return mc.Accept(ctx, id)
}

func (o *Orchestrator) RejectCall(ctx context.Context, user domain.UserID, id domain.CallID) error {
	mc, err := o.machine(user)
	if err != nil {
		return err
	}
	return mc.Reject(ctx, id)
}

func (o *Orchestrator) EndCall(ctx context.Context, user domain.UserID, id domain.CallID) error {
	mc, err := o.machine(user)
	if err != nil {
		return err
	}
	return mc.End(ctx, id)
}

// machine returns the call machine of a registered user without creating one.
func (o *Orchestrator) machine(user domain.UserID) (*call.Machine, error) {
	if _, ok := o.Sessions.Get(user); !ok {
		return nil, app.ErrNotConnected
	}
	mc, ok := o.Calls.Lookup(user)
	if !ok {
		return nil, app.ErrNoSuchCall
	}
	return mc, nil
}

func (o *Orchestrator) CurrentCall(user domain.UserID) (domain.Call, bool) {
	mc, ok := o.Calls.Lookup(user)
	if !ok {
		return domain.Call{Self: user, State: domain.CallIdle}, false
	}
	return mc.Current()
}

// OnCallEvent forwards call state changes to the user's browser.
func (o *Orchestrator) OnCallEvent(ue call.UserEvent) {
	o.Push(ue.User, ue.Event)
}
