package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/eapache/queue"

	"github.com/dkeye/callrelay/internal/core"
	"github.com/dkeye/callrelay/internal/domain"
)

// Session binds one user to its dedicated chat-server connection.
// Received chunks go to the outstanding request if there is one, otherwise
// to the greeting (while registering) or the mailbox.
type Session struct {
	user  domain.UserID
	conn  core.LineConn
	clock clock.Clock

	mu       sync.Mutex
	status   domain.ConnStatus
	greeting strings.Builder
	mailbox  *queue.Queue
	pending  *pendingRequest
	unsubs   []func()
}

type pendingRequest struct {
	buf  strings.Builder
	done chan requestResult
}

type requestResult struct {
	text string
	err  error
}

func newSession(user domain.UserID, conn core.LineConn, clk clock.Clock) *Session {
	return &Session{
		user:    user,
		conn:    conn,
		clock:   clk,
		status:  domain.StatusConnecting,
		mailbox: queue.New(),
	}
}

// attach subscribes to the connection; onGone runs once the connection closes.
func (s *Session) attach(onGone func(error)) {
	s.unsubs = append(s.unsubs,
		s.conn.OnData(s.onData),
		s.conn.OnClosed(func(err error) {
			s.onClosed()
			onGone(err)
		}),
	)
}

func (s *Session) User() domain.UserID { return s.user }

func (s *Session) Status() domain.ConnStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) onData(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p := s.pending; p != nil {
		p.buf.Write(chunk)
		if strings.Contains(p.buf.String(), "\n") {
			s.pending = nil
			p.done <- requestResult{text: strings.TrimSpace(p.buf.String())}
		}
		return
	}
	if s.status == domain.StatusConnecting {
		s.greeting.Write(chunk)
		return
	}
	s.enqueueLocked(string(chunk))
}

func (s *Session) enqueueLocked(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.mailbox.Add(text)
}

// Enqueue adds a notification to the mailbox directly.
func (s *Session) Enqueue(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enqueueLocked(text)
}

// commit ends the grace window. Returns false if the connection already closed.
func (s *Session) commit() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != domain.StatusConnecting {
		return "", false
	}
	s.status = domain.StatusConnected
	g := strings.TrimSpace(s.greeting.String())
	s.greeting.Reset()
	return g, true
}

func (s *Session) onClosed() {
	s.mu.Lock()
	s.status = domain.StatusDisconnected
	p := s.pending
	s.pending = nil
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	if p != nil {
		p.done <- requestResult{err: ErrConnectionLost}
	}
	for _, u := range unsubs {
		u()
	}
}

// Drain returns the mailbox contents in arrival order and empties it.
func (s *Session) Drain() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, s.mailbox.Length())
	for s.mailbox.Length() > 0 {
		out = append(out, s.mailbox.Remove().(string))
	}
	return out
}

// Request writes line and waits for the first reply containing a line break.
// On timeout it returns whatever arrived, or ErrTimeout if nothing did.
// Only one request may be outstanding; a second one fails with ErrRequestInFlight.
func (s *Session) Request(ctx context.Context, line string, timeout time.Duration) (string, error) {
	s.mu.Lock()
	if s.status != domain.StatusConnected {
		s.mu.Unlock()
		return "", ErrConnectionLost
	}
	if s.pending != nil {
		s.mu.Unlock()
		return "", ErrRequestInFlight
	}
	p := &pendingRequest{done: make(chan requestResult, 1)}
	s.pending = p
	s.mu.Unlock()

	if err := s.conn.Send(line); err != nil {
		s.dropPending(p)
		return "", err
	}

	timer := s.clock.Timer(timeout)
	defer timer.Stop()

	select {
	case r := <-p.done:
		return r.text, r.err
	case <-ctx.Done():
		s.dropPending(p)
		return "", ctx.Err()
	case <-timer.C:
	}

	partial := s.dropPending(p)
	// A reply may have landed between the timer firing and dropPending.
	select {
	case r := <-p.done:
		return r.text, r.err
	default:
	}
	if partial == "" {
		return "", ErrTimeout
	}
	return strings.TrimSpace(partial), nil
}

func (s *Session) dropPending(p *pendingRequest) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == p {
		s.pending = nil
	}
	return p.buf.String()
}
