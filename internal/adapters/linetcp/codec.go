package linetcp

import (
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/dkeye/callrelay/internal/core"
)

const (
	ProtocolText = "text"
	ProtocolJSON = "json"
)

// NewCodec picks the chat-server wire format by name.
func NewCodec(protocol string) (core.CommandCodec, error) {
	switch protocol {
	case "", ProtocolText:
		return TextCodec{}, nil
	case ProtocolJSON:
		return EnvelopeCodec{}, nil
	}
	return nil, fmt.Errorf("unknown chat protocol %q", protocol)
}

// TextCodec writes slash commands, e.g. "/msg bob hello there".
// Registration is the bare user id.
type TextCodec struct{}

func (TextCodec) Encode(cmd core.Command) (string, error) {
	switch cmd.Verb {
	case core.VerbRegister:
		return cmd.Target, nil
	case core.VerbCreateGroup, core.VerbJoinGroup:
		return fmt.Sprintf("/%s %s", cmd.Verb, cmd.Target), nil
	case core.VerbMessage, core.VerbGroupMessage:
		return fmt.Sprintf("/%s %s %s", cmd.Verb, cmd.Target, cmd.Text), nil
	}
	return "", fmt.Errorf("text codec: unsupported verb %q", cmd.Verb)
}

var envelopeActions = map[core.Verb]string{
	core.VerbRegister:     "REGISTER",
	core.VerbMessage:      "SEND_MESSAGE",
	core.VerbCreateGroup:  "CREATE_GROUP",
	core.VerbJoinGroup:    "JOIN_GROUP",
	core.VerbGroupMessage: "SEND_GROUP_MESSAGE",
}

type envelope struct {
	Action string            `json:"action"`
	Data   map[string]string `json:"data"`
}

// EnvelopeCodec writes {"action": ..., "data": {...}} objects, one per line.
type EnvelopeCodec struct{}

func (EnvelopeCodec) Encode(cmd core.Command) (string, error) {
	action, ok := envelopeActions[cmd.Verb]
	if !ok {
		return "", fmt.Errorf("envelope codec: unsupported verb %q", cmd.Verb)
	}
	data := map[string]string{}
	switch cmd.Verb {
	case core.VerbRegister:
		data["username"] = cmd.Target
	case core.VerbMessage:
		data["receiver"] = cmd.Target
		data["message"] = cmd.Text
	case core.VerbCreateGroup, core.VerbJoinGroup:
		data["groupName"] = cmd.Target
	case core.VerbGroupMessage:
		data["groupName"] = cmd.Target
		data["message"] = cmd.Text
	}
	b, err := json.Marshal(envelope{Action: action, Data: data})
	if err != nil {
		return "", fmt.Errorf("envelope codec: %w", err)
	}
	return string(b), nil
}
