// Package linetcp is the newline-framed TCP transport to the chat server
// and to the signaling middleware.
package linetcp

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/dkeye/callrelay/internal/core"
	"github.com/rs/zerolog/log"
)

var ErrClosed = errors.New("connection closed")

const readBufSize = 4096

// Conn is one TCP connection. Received bytes are published as they arrive,
// without reassembling lines.
type Conn struct {
	nc   net.Conn
	addr string

	data   core.Bus[[]byte]
	closed core.Bus[error]

	writeMu   sync.Mutex
	startOnce sync.Once
	closeOnce sync.Once

	mu       sync.Mutex
	isClosed bool
}

// Dialer opens Conns with a bounded connect time.
type Dialer struct {
	Timeout time.Duration
}

func (d Dialer) Dial(ctx context.Context, addr string) (core.LineConn, error) {
	nd := net.Dialer{Timeout: d.Timeout}
	nc, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("module", "linetcp").Str("addr", addr).Msg("dialed")
	return NewConn(nc, addr), nil
}

// NewConn wraps an established net.Conn.
func NewConn(nc net.Conn, addr string) *Conn {
	return &Conn{nc: nc, addr: addr}
}

func (c *Conn) OnData(fn func([]byte)) func()  { return c.data.Subscribe(fn) }
func (c *Conn) OnClosed(fn func(error)) func() { return c.closed.Subscribe(fn) }

func (c *Conn) Start() {
	c.startOnce.Do(func() { go c.readLoop() })
}

func (c *Conn) Send(line string) error {
	c.mu.Lock()
	closed := c.isClosed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.nc.Write([]byte(line + "\n"))
	return err
}

func (c *Conn) Close() error {
	c.mu.Lock()
	c.isClosed = true
	c.mu.Unlock()
	err := c.nc.Close()
	c.finish(nil)
	return err
}

func (c *Conn) readLoop() {
	buf := make([]byte, readBufSize)
	for {
		n, err := c.nc.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			c.data.Publish(chunk)
		}
		if err != nil {
			c.mu.Lock()
			explicit := c.isClosed
			c.mu.Unlock()
			if explicit {
				return
			}
			log.Info().Err(err).Str("module", "linetcp").Str("addr", c.addr).Msg("connection lost")
			_ = c.nc.Close()
			c.finish(err)
			return
		}
	}
}

func (c *Conn) finish(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.isClosed = true
		c.mu.Unlock()
		c.closed.Publish(err)
	})
}
