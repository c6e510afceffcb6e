package linetcp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/jpillora/backoff"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/callrelay/internal/core"
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrGaveUp       = errors.New("reconnect attempts exhausted")
)

// ReconnectPolicy controls the delay between connection attempts.
// Interval == MaxInterval gives a fixed delay; MaxAttempts 0 retries forever.
type ReconnectPolicy struct {
	Interval    time.Duration
	MaxInterval time.Duration
	MaxAttempts int
}

// DefaultReconnectPolicy retries every second, forever.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{Interval: time.Second, MaxInterval: time.Second}
}

func (p ReconnectPolicy) backoff() *backoff.Backoff {
	maxInterval := p.MaxInterval
	if maxInterval < p.Interval {
		maxInterval = p.Interval
	}
	return &backoff.Backoff{Min: p.Interval, Max: maxInterval, Factor: 2}
}

// Redialer keeps one long-lived line connection up, dialing again after
// every loss. Data and connect events survive reconnects.
type Redialer struct {
	dialer core.Dialer
	addr   string
	policy ReconnectPolicy
	clock  clock.Clock

	data      core.Bus[[]byte]
	connected core.Bus[struct{}]

	mu  sync.RWMutex
	cur core.LineConn
}

func NewRedialer(d core.Dialer, addr string, p ReconnectPolicy, clk clock.Clock) *Redialer {
	if clk == nil {
		clk = clock.New()
	}
	return &Redialer{dialer: d, addr: addr, policy: p, clock: clk}
}

func (r *Redialer) OnData(fn func([]byte)) func() { return r.data.Subscribe(fn) }

// OnConnected fires after every successful (re)connect.
func (r *Redialer) OnConnected(fn func()) func() {
	return r.connected.Subscribe(func(struct{}) { fn() })
}

func (r *Redialer) Connected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cur != nil
}

func (r *Redialer) Send(line string) error {
	r.mu.RLock()
	conn := r.cur
	r.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.Send(line)
}

// Run dials and redials until ctx is done or the policy gives up.
func (r *Redialer) Run(ctx context.Context) error {
	logger := log.With().Str("module", "linetcp.redial").Str("addr", r.addr).Logger()
	b := r.policy.backoff()

	for {
		conn, err := r.dialer.Dial(ctx, r.addr)
		if err == nil {
			b.Reset()
			err = r.serve(ctx, conn)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn().Err(err).Msg("connection closed")
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		attempt := int(b.Attempt())
		if r.policy.MaxAttempts > 0 && attempt >= r.policy.MaxAttempts {
			return fmt.Errorf("%s: %w", r.addr, ErrGaveUp)
		}
		d := b.Duration()
		logger.Info().Err(err).Int("attempt", attempt+1).Dur("retry_in", d).Msg("reconnecting")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.clock.After(d):
		}
	}
}

func (r *Redialer) serve(ctx context.Context, conn core.LineConn) error {
	lost := make(chan error, 1)
	unsubData := conn.OnData(r.data.Publish)
	unsubClosed := conn.OnClosed(func(err error) {
		select {
		case lost <- err:
		default:
		}
	})
	defer unsubData()
	defer unsubClosed()

	r.mu.Lock()
	r.cur = conn
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.cur = nil
		r.mu.Unlock()
	}()

	conn.Start()
	log.Info().Str("module", "linetcp.redial").Str("addr", r.addr).Msg("connected")
	r.connected.Publish(struct{}{})

	select {
	case <-ctx.Done():
		_ = conn.Close()
		return ctx.Err()
	case err := <-lost:
		return err
	}
}
