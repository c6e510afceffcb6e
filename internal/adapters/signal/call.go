package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/callrelay/internal/app"
	"github.com/dkeye/callrelay/internal/domain"
)

func (ctl *SignalWSController) handleCallStart(
	ctx context.Context,
	user domain.UserID,
	conn *WsSignalConn,
	data []byte,
) {
	type startPayload struct {
		Type  string `json:"type"`
		Kind  string `json:"kind"`
		Peer  string `json:"peer,omitempty"`
		Group string `json:"group,omitempty"`
	}
	var p startPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad call_start payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(user) {
		ctl.sendError(conn, "rate_limited")
		return
	}
	kind := domain.CallKind(p.Kind)
	if kind == "" {
		kind = domain.CallPrivate
	}

	c, err := ctl.Orch.StartCall(ctx, user, kind, domain.UserID(p.Peer), domain.GroupName(p.Group))
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("user", string(user)).Msg("call_start")
		ctl.sendError(conn, callErrorCode(err))
		return
	}
	ctl.sendJSON(conn, struct {
		Type string      `json:"type"`
		Call domain.Call `json:"call"`
	}{"call_started", c})
}

func (ctl *SignalWSController) handleCallAction(
	ctx context.Context,
	user domain.UserID,
	conn *WsSignalConn,
	action string,
	data []byte,
) {
	var p struct {
		Type   string `json:"type"`
		CallID string `json:"call_id"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("action", action).Msg("bad call payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	id := domain.CallID(p.CallID)

	var err error
	switch action {
	case "call_accept":
		err = ctl.Orch.AcceptCall(ctx, user, id)
	case "call_reject":
		err = ctl.Orch.RejectCall(ctx, user, id)
	case "call_end":
		err = ctl.Orch.EndCall(ctx, user, id)
	}
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("user", string(user)).Str("action", action).Msg("call action")
		ctl.sendError(conn, callErrorCode(err))
	}
}

func callErrorCode(err error) string {
	switch {
	case errors.Is(err, app.ErrCallInProgress):
		return "call_in_progress"
	case errors.Is(err, app.ErrNoSuchCall):
		return "no_such_call"
	case errors.Is(err, app.ErrNotConnected):
		return "not_registered"
	}
	return "call_failed"
}
