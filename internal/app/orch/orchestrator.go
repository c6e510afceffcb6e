package orch

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/callrelay/internal/app"
	"github.com/dkeye/callrelay/internal/app/call"
	"github.com/dkeye/callrelay/internal/core"
	"github.com/dkeye/callrelay/internal/domain"
)

// HistoryStore is the persisted conversation log.
type HistoryStore interface {
	Append(domain.HistoryRecord) error
	Query(domain.HistoryQuery) ([]domain.HistoryRecord, error)
}

// Observer is the subscription side of the signaling middleware.
type Observer interface {
	Subscribe(ctx context.Context, user domain.UserID) error
	Unsubscribe(ctx context.Context, user domain.UserID) error
	SendVoice(ctx context.Context, n domain.Notification) error
	OnPush(func(domain.Push)) func()
}

// ControlStatus reports whether the control channel is up.
type ControlStatus interface {
	Connected() bool
}

type Orchestrator struct {
	Sessions *app.Registry
	Clients  *app.ClientRegistry
	Calls    *call.Manager
	Pending  *app.PendingBuffer
	History  HistoryStore
	Observer Observer
	Control  ControlStatus
	Acks     app.AckMatcher
	Codec    core.CommandCodec
	Policy   app.Policy

	CommandTimeout time.Duration
	Now            func() time.Time
}

// Wire subscribes the orchestrator to pushes, call events and session teardown.
func (o *Orchestrator) Wire() (unwire func()) {
	unsubs := []func(){
		o.Observer.OnPush(o.OnPush),
		o.Calls.OnEvent(o.OnCallEvent),
		o.Sessions.OnClosed(o.OnSessionClosed),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Register opens the user's chat session and subscribes it to signaling events.
func (o *Orchestrator) Register(ctx context.Context, user domain.UserID) (app.RegisterResult, error) {
	res, err := o.Sessions.Register(ctx, user)
	if err != nil {
		return res, err
	}
	if res.AlreadyConnected {
		return res, nil
	}
	if err := o.Observer.Subscribe(ctx, user); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("user", string(user)).Msg("observer subscribe failed, will retry on reconnect")
	}
	o.Calls.For(user)
	return res, nil
}

// Poll drains the user's mailbox.
func (o *Orchestrator) Poll(user domain.UserID) ([]string, error) {
	return o.Sessions.Drain(user)
}

func (o *Orchestrator) OnSessionClosed(user domain.UserID) {
	ctx := context.Background()
	o.Calls.Drop(ctx, user)
	if err := o.Observer.Unsubscribe(ctx, user); err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("user", string(user)).Msg("observer unsubscribe")
	}
	o.Clients.Cancel(user)
	o.Pending.Blur(user)
}

type Health struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	Clients  int    `json:"clients"`
	Control  bool   `json:"control_connected"`
}

func (o *Orchestrator) Health() Health {
	h := Health{Status: "ok", Sessions: o.Sessions.Len(), Clients: o.Clients.Len()}
	if o.Control != nil {
		h.Control = o.Control.Connected()
	}
	if !h.Control {
		h.Status = "degraded"
	}
	return h
}

func (o *Orchestrator) timestamp() string {
	now := time.Now
	if o.Now != nil {
		now = o.Now
	}
	return now().UTC().Format("2006-01-02T15:04:05.000Z")
}
