package app

import (
	"fmt"

	"github.com/dkeye/callrelay/internal/core"
	"github.com/dkeye/callrelay/internal/domain"
)

type BackpressureAction int

const (
	BufferEvent BackpressureAction = iota
	DropEvent
	KickClient
)

// Policy decides what happens to a push frame a client cannot take right now.
type Policy interface {
	OnBackPressure(user domain.UserID, frame core.Frame) BackpressureAction
}

// SimplePolicy keeps the frame for the next poll.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.UserID, core.Frame) BackpressureAction {
	return BufferEvent
}

// FixedPolicy answers every backpressure event the same way.
type FixedPolicy BackpressureAction

func (p FixedPolicy) OnBackPressure(domain.UserID, core.Frame) BackpressureAction {
	return BackpressureAction(p)
}

// PolicyByName maps the client.backpressure setting to a Policy.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", "buffer":
		return SimplePolicy{}, nil
	case "drop":
		return FixedPolicy(DropEvent), nil
	case "kick":
		return FixedPolicy(KickClient), nil
	}
	return nil, fmt.Errorf("unknown backpressure policy %q", name)
}
