package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/callrelay/internal/core"
)

const commandTimeout = 1500 * time.Millisecond

func sendCommand(t *testing.T, r *Registry, mockAdvance func(done <-chan struct{}), line string) (string, error) {
	t.Helper()
	var (
		reply string
		err   error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		reply, err = r.SendCommand(context.Background(), "alice", line, commandTimeout)
	}()
	mockAdvance(done)
	return reply, err
}

func TestSendCommandResolvesOnLine(t *testing.T) {
	d := &fakeDialer{onSend: func(c *fakeConn, line string) {
		if line == "/creategroup g1" {
			c.emit("OK\n")
		}
	}}
	r, mock := newTestRegistry(d)
	register(t, r, mock, "alice")

	reply, err := sendCommand(t, r, func(done <-chan struct{}) { advanceUntil(t, mock, done) }, "/creategroup g1")
	require.NoError(t, err)
	assert.Equal(t, "OK", reply)
	assert.True(t, NewKeywordMatcher(nil).Accepted(core.VerbCreateGroup, reply))
}

func TestSendCommandReassemblesChunks(t *testing.T) {
	d := &fakeDialer{onSend: func(c *fakeConn, line string) {
		if line == "/msg bob" {
			c.emit("Message ")
			c.emit("sent\nextra")
		}
	}}
	r, mock := newTestRegistry(d)
	register(t, r, mock, "alice")

	reply, err := sendCommand(t, r, func(done <-chan struct{}) { advanceUntil(t, mock, done) }, "/msg bob")
	require.NoError(t, err)
	assert.Equal(t, "Message sent\nextra", reply)
}

func TestSendCommandTimeoutWithPartial(t *testing.T) {
	d := &fakeDialer{onSend: func(c *fakeConn, line string) {
		if line == "/joingroup g1" {
			c.emit("Joined g")
		}
	}}
	r, mock := newTestRegistry(d)
	register(t, r, mock, "alice")

	reply, err := sendCommand(t, r, func(done <-chan struct{}) { advanceUntil(t, mock, done) }, "/joingroup g1")
	require.NoError(t, err)
	assert.Equal(t, "Joined g", reply)

	// The session survives a timeout.
	_, ok := r.Get("alice")
	assert.True(t, ok)
}

func TestSendCommandTimeoutEmpty(t *testing.T) {
	d := &fakeDialer{}
	r, mock := newTestRegistry(d)
	register(t, r, mock, "alice")

	_, err := sendCommand(t, r, func(done <-chan struct{}) { advanceUntil(t, mock, done) }, "/msg bob hi")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestSendCommandNotConnected(t *testing.T) {
	r, _ := newTestRegistry(&fakeDialer{})
	_, err := r.SendCommand(context.Background(), "alice", "/msg bob hi", commandTimeout)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSendCommandConnectionLost(t *testing.T) {
	d := &fakeDialer{onSend: func(c *fakeConn, line string) {
		if line == "/msg bob hi" {
			go func() { _ = c.Close() }()
		}
	}}
	r, mock := newTestRegistry(d)
	register(t, r, mock, "alice")

	done := make(chan struct{})
	var err error
	go func() {
		defer close(done)
		_, err = r.SendCommand(context.Background(), "alice", "/msg bob hi", commandTimeout)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("request did not finish")
	}
	assert.ErrorIs(t, err, ErrConnectionLost)
	require.Eventually(t, func() bool { return r.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestSecondRequestWhileOutstanding(t *testing.T) {
	sent := make(chan struct{}, 1)
	d := &fakeDialer{onSend: func(c *fakeConn, line string) {
		if line == "/msg bob first" {
			sent <- struct{}{}
		}
	}}
	r, mock := newTestRegistry(d)
	register(t, r, mock, "alice")

	done := make(chan struct{})
	var reply string
	go func() {
		defer close(done)
		reply, _ = r.SendCommand(context.Background(), "alice", "/msg bob first", commandTimeout)
	}()
	<-sent

	_, err := r.SendCommand(context.Background(), "alice", "/msg bob second", commandTimeout)
	assert.ErrorIs(t, err, ErrRequestInFlight)

	d.last().emit("sent\n")
	<-done
	assert.Equal(t, "sent", reply)
}

func TestReplyDuringRequestSkipsMailbox(t *testing.T) {
	d := &fakeDialer{onSend: func(c *fakeConn, line string) {
		if line == "/msg bob hi" {
			c.emit("Enviado\n")
		}
	}}
	r, mock := newTestRegistry(d)
	register(t, r, mock, "alice")

	_, err := sendCommand(t, r, func(done <-chan struct{}) { advanceUntil(t, mock, done) }, "/msg bob hi")
	require.NoError(t, err)

	items, err := r.Drain("alice")
	require.NoError(t, err)
	assert.Empty(t, items)
}
