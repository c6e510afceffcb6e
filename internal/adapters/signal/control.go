package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/callrelay/internal/domain"
)

func (ctl *SignalWSController) handlePing(
	conn *WsSignalConn,
) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: "pong",
	}
	ctl.sendJSON(conn, resp)
}

func (ctl *SignalWSController) handleWhoAmI(
	user domain.UserID,
	conn *WsSignalConn,
) {
	call, _ := ctl.Orch.CurrentCall(user)
	focus, _ := ctl.Orch.Pending.Current(user)
	resp := struct {
		Type    string                         `json:"type"`
		User    domain.UserID                  `json:"user"`
		Call    domain.Call                    `json:"call"`
		Focus   domain.ConversationKey         `json:"focus,omitempty"`
		Pending map[domain.ConversationKey]int `json:"pending"`
	}{
		Type:    "whoami",
		User:    user,
		Call:    call,
		Focus:   focus,
		Pending: ctl.Orch.Pending.Counts(user),
	}
	ctl.sendJSON(conn, resp)
}

// handleFocus — the browser opened a conversation; buffered entries for it are pushed.
func (ctl *SignalWSController) handleFocus(
	user domain.UserID,
	conn *WsSignalConn,
	data []byte,
) {
	var p struct {
		Type         string `json:"type"`
		Conversation string `json:"conversation"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad focus payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	key, ok := domain.ParseConversationKey(p.Conversation)
	if !ok {
		ctl.sendError(conn, "bad_conversation")
		return
	}
	entries := ctl.Orch.Focus(user, key)
	log.Debug().Str("module", "signal").Str("user", string(user)).Str("conversation", string(key)).Int("flushed", len(entries)).Msg("focus")
}
