package orch

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/callrelay/internal/app"
	"github.com/dkeye/callrelay/internal/core"
	"github.com/dkeye/callrelay/internal/domain"
)

// CommandResult carries the raw chat-server reply and the inferred outcome.
type CommandResult struct {
	OK    bool   `json:"ok"`
	Reply string `json:"reply"`
}

// command sends cmd as user and judges the reply. A negative reply returns
// the result together with ErrRemoteRejection.
func (o *Orchestrator) command(ctx context.Context, user domain.UserID, cmd core.Command) (CommandResult, error) {
	line, err := o.Codec.Encode(cmd)
	if err != nil {
		return CommandResult{}, err
	}
	reply, err := o.Sessions.SendCommand(ctx, user, line, o.CommandTimeout)
	if err != nil {
		return CommandResult{}, err
	}
	res := CommandResult{OK: o.Acks.Accepted(cmd.Verb, reply), Reply: reply}
	if !res.OK {
		log.Info().Str("module", "orch").Str("user", string(user)).Str("verb", string(cmd.Verb)).Str("reply", reply).Msg("command rejected")
		return res, fmt.Errorf("%w: %s", app.ErrRemoteRejection, reply)
	}
	return res, nil
}

// oneLine keeps free text from breaking the line protocol.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func (o *Orchestrator) SendPrivate(ctx context.Context, sender, receiver domain.UserID, text string) (CommandResult, error) {
	text = oneLine(text)
	res, err := o.command(ctx, sender, core.Command{Verb: core.VerbMessage, Target: string(receiver), Text: text})
	if err != nil {
		return res, err
	}
	o.record(domain.HistoryRecord{Scope: domain.ScopePrivate, Sender: sender, Recipient: receiver, Message: text})
	return res, nil
}

func (o *Orchestrator) CreateGroup(ctx context.Context, creator domain.UserID, group domain.GroupName) (CommandResult, error) {
	return o.command(ctx, creator, core.Command{Verb: core.VerbCreateGroup, Target: string(group)})
}

func (o *Orchestrator) JoinGroup(ctx context.Context, user domain.UserID, group domain.GroupName) (CommandResult, error) {
	return o.command(ctx, user, core.Command{Verb: core.VerbJoinGroup, Target: string(group)})
}

func (o *Orchestrator) SendGroup(ctx context.Context, sender domain.UserID, group domain.GroupName, text string) (CommandResult, error) {
	text = oneLine(text)
	res, err := o.command(ctx, sender, core.Command{Verb: core.VerbGroupMessage, Target: string(group), Text: text})
	if err != nil {
		return res, err
	}
	o.record(domain.HistoryRecord{Scope: domain.ScopeGroup, Sender: sender, Group: group, Message: text})
	return res, nil
}

// SendVoice logs a stored voice note and announces it through the observer channel.
func (o *Orchestrator) SendVoice(ctx context.Context, n domain.Notification) (domain.Notification, error) {
	if _, ok := o.Sessions.Get(n.From); !ok {
		return n, app.ErrNotConnected
	}
	n.Kind = domain.PushVoice
	n.Timestamp = o.timestamp()
	if err := o.Observer.SendVoice(ctx, n); err != nil {
		return n, err
	}
	o.record(domain.HistoryRecord{
		Scope:     n.Scope,
		Sender:    n.From,
		Recipient: n.To,
		Group:     n.Group,
		AudioFile: n.AudioFile,
		Timestamp: n.Timestamp,
	})
	return n, nil
}

func (o *Orchestrator) QueryHistory(q domain.HistoryQuery) ([]domain.HistoryRecord, error) {
	return o.History.Query(q)
}

func (o *Orchestrator) record(rec domain.HistoryRecord) {
	if rec.Timestamp == "" {
		rec.Timestamp = o.timestamp()
	}
	if err := o.History.Append(rec); err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("history append")
	}
}
