package orch

import (
	"context"
	"errors"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/callrelay/internal/app"
	"github.com/dkeye/callrelay/internal/core"
	"github.com/dkeye/callrelay/internal/domain"
)

type voiceFrame struct {
	Type  string              `json:"type"`
	Entry domain.Notification `json:"entry"`
}

type flushFrame struct {
	Type         string                 `json:"type"`
	Conversation domain.ConversationKey `json:"conversation"`
	Entries      []domain.Notification  `json:"entries"`
}

// OnPush classifies one observer event: call signaling goes to the call
// machine, voice notes to the pending buffer, chat pushes to the mailbox.
func (o *Orchestrator) OnPush(p domain.Push) {
	switch {
	case p.Kind.IsCall():
		if _, ok := o.Sessions.Get(p.User); !ok {
			log.Debug().Str("module", "orch").Str("user", string(p.User)).Str("event", string(p.Kind)).Msg("call event for unregistered user")
			return
		}
		o.Calls.Dispatch(context.Background(), p)
	case p.Kind == domain.PushVoice:
		o.routeVoice(p)
	case p.Kind == domain.PushMessage:
		o.toMailbox(p.User, notificationOf(p))
	default:
		log.Warn().Str("module", "orch").Str("event", string(p.Kind)).Msg("unknown push")
	}
}

func notificationOf(p domain.Push) domain.Notification {
	n := domain.Notification{
		Kind:      p.Kind,
		Scope:     domain.ScopePrivate,
		From:      p.From,
		To:        p.To,
		Group:     p.Group,
		AudioFile: p.AudioFile,
		Text:      p.Text,
		Timestamp: p.Timestamp,
	}
	if p.Group != "" {
		n.Scope = domain.ScopeGroup
	}
	if n.To == "" && n.Scope == domain.ScopePrivate {
		n.To = p.User
	}
	return n
}

func (o *Orchestrator) routeVoice(p domain.Push) {
	n := notificationOf(p)
	if _, ok := o.Clients.Get(p.User); !ok {
		o.toMailbox(p.User, n)
		return
	}
	if o.Pending.Route(p.User, n) {
		o.Push(p.User, voiceFrame{Type: "voice", Entry: n})
		return
	}
	log.Debug().Str("module", "orch").Str("user", string(p.User)).Str("conversation", string(n.ConversationFor(p.User))).Msg("voice note buffered")
}

// Focus records the conversation the user's browser has open and pushes
// whatever was buffered for it.
func (o *Orchestrator) Focus(user domain.UserID, key domain.ConversationKey) []domain.Notification {
	entries := o.Pending.Focus(user, key)
	if len(entries) > 0 {
		o.Push(user, flushFrame{Type: "pending_flush", Conversation: key, Entries: entries})
	}
	return entries
}

func (o *Orchestrator) AttachClient(user domain.UserID, sig core.SignalConnection, cancel context.CancelFunc) {
	o.Clients.Bind(user, sig, cancel)
}

func (o *Orchestrator) DetachClient(user domain.UserID, sig core.SignalConnection) {
	if o.Clients.Unbind(user, sig) {
		o.Pending.Blur(user)
	}
}

// Push sends v to the user's browser, falling back to the mailbox per policy.
func (o *Orchestrator) Push(user domain.UserID, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode push")
		return
	}
	sig, ok := o.Clients.Get(user)
	if !ok {
		o.enqueue(user, b)
		return
	}
	if err := sig.TrySend(b); err != nil {
		action := app.BufferEvent
		if o.Policy != nil {
			action = o.Policy.OnBackPressure(user, b)
		}
		switch action {
		case app.BufferEvent:
			o.enqueue(user, b)
		case app.KickClient:
			o.Clients.Cancel(user)
		case app.DropEvent:
			log.Warn().Err(err).Str("module", "orch").Str("user", string(user)).Msg("push dropped")
		}
	}
}

func (o *Orchestrator) toMailbox(user domain.UserID, n domain.Notification) {
	b, err := json.Marshal(n)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode notification")
		return
	}
	o.enqueue(user, b)
}

func (o *Orchestrator) enqueue(user domain.UserID, b []byte) {
	if err := o.Sessions.Enqueue(user, string(b)); err != nil {
		if errors.Is(err, app.ErrNotRegistered) {
			log.Debug().Str("module", "orch").Str("user", string(user)).Msg("no session, push dropped")
			return
		}
		log.Error().Err(err).Str("module", "orch").Msg("enqueue")
	}
}
