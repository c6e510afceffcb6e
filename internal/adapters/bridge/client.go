// Package bridge talks to the object-RPC signaling middleware over the
// process-wide control channel: one JSON object per line in each direction.
package bridge

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/callrelay/internal/core"
	"github.com/dkeye/callrelay/internal/domain"
)

// Channel is the long-lived line connection the client rides on.
type Channel interface {
	Send(line string) error
	OnData(func([]byte)) func()
	OnConnected(func()) func()
}

type request struct {
	Op        string            `json:"op"`
	User      domain.UserID     `json:"user,omitempty"`
	CallID    domain.CallID     `json:"call_id,omitempty"`
	From      domain.UserID     `json:"from,omitempty"`
	To        domain.UserID     `json:"to,omitempty"`
	Kind      domain.CallKind   `json:"kind,omitempty"`
	Group     domain.GroupName  `json:"group,omitempty"`
	SDP       string            `json:"sdp,omitempty"`
	Candidate *domain.Candidate `json:"candidate,omitempty"`
	Scope     domain.Scope      `json:"scope,omitempty"`
	AudioFile string            `json:"audioFile,omitempty"`
	Timestamp string            `json:"timestamp,omitempty"`
}

// Client implements core.CallSignaler and turns inbound lines into domain.Push events.
type Client struct {
	ch     Channel
	events core.Bus[domain.Push]

	mu         sync.Mutex
	subscribed map[domain.UserID]struct{}
	partial    []byte

	unsubs []func()
}

var _ core.CallSignaler = (*Client)(nil)

func New(ch Channel) *Client {
	c := &Client{ch: ch, subscribed: make(map[domain.UserID]struct{})}
	c.unsubs = append(c.unsubs,
		ch.OnData(c.onData),
		ch.OnConnected(c.resubscribe),
	)
	return c
}

// OnPush subscribes to inbound observer events.
func (c *Client) OnPush(fn func(domain.Push)) func() { return c.events.Subscribe(fn) }

func (c *Client) Close() {
	for _, u := range c.unsubs {
		u()
	}
}

// Subscribe registers user as an observer. The subscription is replayed on every reconnect.
func (c *Client) Subscribe(ctx context.Context, user domain.UserID) error {
	c.mu.Lock()
	c.subscribed[user] = struct{}{}
	c.mu.Unlock()
	return c.send(ctx, request{Op: "subscribe", User: user})
}

func (c *Client) Unsubscribe(ctx context.Context, user domain.UserID) error {
	c.mu.Lock()
	delete(c.subscribed, user)
	c.mu.Unlock()
	return c.send(ctx, request{Op: "unsubscribe", User: user})
}

func (c *Client) InitiateCall(ctx context.Context, inv domain.CallInvite) error {
	return c.send(ctx, request{Op: "initiateCall", CallID: inv.ID, From: inv.From, To: inv.To, Kind: inv.Kind, Group: inv.Group})
}

func (c *Client) AcceptCall(ctx context.Context, id domain.CallID, by domain.UserID) error {
	return c.send(ctx, request{Op: "acceptCall", CallID: id, From: by})
}

func (c *Client) RejectCall(ctx context.Context, id domain.CallID, by domain.UserID) error {
	return c.send(ctx, request{Op: "rejectCall", CallID: id, From: by})
}

func (c *Client) EndCall(ctx context.Context, id domain.CallID, by domain.UserID) error {
	return c.send(ctx, request{Op: "endCall", CallID: id, From: by})
}

func (c *Client) SendIceOffer(ctx context.Context, s domain.MediaSignal) error {
	return c.send(ctx, signalRequest("sendIceOffer", s))
}

func (c *Client) SendIceAnswer(ctx context.Context, s domain.MediaSignal) error {
	return c.send(ctx, signalRequest("sendIceAnswer", s))
}

func (c *Client) SendIceCandidate(ctx context.Context, s domain.MediaSignal) error {
	return c.send(ctx, signalRequest("sendIceCandidate", s))
}

// SendVoice announces a stored voice note to its recipients.
func (c *Client) SendVoice(ctx context.Context, n domain.Notification) error {
	return c.send(ctx, request{
		Op:        "sendVoice",
		From:      n.From,
		To:        n.To,
		Group:     n.Group,
		Scope:     n.Scope,
		AudioFile: n.AudioFile,
		Timestamp: n.Timestamp,
	})
}

func signalRequest(op string, s domain.MediaSignal) request {
	return request{Op: op, CallID: s.CallID, From: s.From, To: s.To, Group: s.Group, SDP: s.SDP, Candidate: s.Candidate}
}

func (c *Client) send(ctx context.Context, req request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("bridge: encode %s: %w", req.Op, err)
	}
	if err := c.ch.Send(string(b)); err != nil {
		return fmt.Errorf("bridge: %s: %w", req.Op, err)
	}
	return nil
}

func (c *Client) resubscribe() {
	c.mu.Lock()
	users := make([]domain.UserID, 0, len(c.subscribed))
	for u := range c.subscribed {
		users = append(users, u)
	}
	// a reconnect starts a fresh stream
	c.partial = nil
	c.mu.Unlock()

	for _, u := range users {
		if err := c.send(context.Background(), request{Op: "subscribe", User: u}); err != nil {
			log.Error().Err(err).Str("module", "bridge").Str("user", string(u)).Msg("resubscribe")
		}
	}
	log.Info().Str("module", "bridge").Int("users", len(users)).Msg("resubscribed")
}

func (c *Client) onData(chunk []byte) {
	c.mu.Lock()
	c.partial = append(c.partial, chunk...)
	var lines [][]byte
	for {
		i := bytes.IndexByte(c.partial, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, bytes.Clone(c.partial[:i]))
		c.partial = c.partial[i+1:]
	}
	c.mu.Unlock()

	for _, line := range lines {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var p domain.Push
		if err := json.Unmarshal(line, &p); err != nil {
			log.Warn().Err(err).Str("module", "bridge").Msg("bad event line")
			continue
		}
		if p.Kind == "" {
			log.Warn().Str("module", "bridge").Msg("event without kind")
			continue
		}
		c.events.Publish(p)
	}
}
