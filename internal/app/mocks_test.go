package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dkeye/callrelay/internal/core"
)

// fakeConn is an in-memory core.LineConn. Tests push server output with emit.
type fakeConn struct {
	data   core.Bus[[]byte]
	closed core.Bus[error]

	mu       sync.Mutex
	sent     []string
	isClosed bool
	onSend   func(c *fakeConn, line string)
}

func (c *fakeConn) Send(line string) error {
	c.mu.Lock()
	if c.isClosed {
		c.mu.Unlock()
		return errors.New("closed")
	}
	c.sent = append(c.sent, line)
	hook := c.onSend
	c.mu.Unlock()
	if hook != nil {
		hook(c, line)
	}
	return nil
}

func (c *fakeConn) OnData(fn func([]byte)) func()  { return c.data.Subscribe(fn) }
func (c *fakeConn) OnClosed(fn func(error)) func() { return c.closed.Subscribe(fn) }
func (c *fakeConn) Start()                         {}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	if c.isClosed {
		c.mu.Unlock()
		return nil
	}
	c.isClosed = true
	c.mu.Unlock()
	c.closed.Publish(nil)
	return nil
}

func (c *fakeConn) emit(s string) { c.data.Publish([]byte(s)) }

func (c *fakeConn) lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

// fakeDialer hands out fakeConns and remembers them.
type fakeDialer struct {
	mu     sync.Mutex
	conns  []*fakeConn
	err    error
	onSend func(c *fakeConn, line string)
}

func (d *fakeDialer) Dial(_ context.Context, _ string) (core.LineConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	c := &fakeConn{onSend: d.onSend}
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dialed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[len(d.conns)-1]
}

type textCodec struct{}

func (textCodec) Encode(cmd core.Command) (string, error) {
	if cmd.Verb == core.VerbRegister {
		return cmd.Target, nil
	}
	return "/" + string(cmd.Verb) + " " + cmd.Target, nil
}

// advanceUntil moves the mock clock forward in small steps until done closes.
func advanceUntil(t *testing.T, mock *clock.Mock, done <-chan struct{}) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-done:
			return
		case <-deadline:
			t.Fatal("operation did not finish")
		default:
			mock.Add(50 * time.Millisecond)
			time.Sleep(time.Millisecond)
		}
	}
}
