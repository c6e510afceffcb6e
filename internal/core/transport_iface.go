package core

import "context"

// LineConn is a newline-framed byte stream to a remote endpoint.
// Data callbacks receive raw chunks as read from the wire; a chunk may hold
// part of a line or several lines.
type LineConn interface {
	// Send writes line followed by the delimiter.
	Send(line string) error
	OnData(func([]byte)) (unsubscribe func())
	// OnClosed fires once, with the read error or nil after an explicit Close.
	OnClosed(func(error)) (unsubscribe func())
	// Start begins delivering data; handlers must be attached before.
	Start()
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, addr string) (LineConn, error)
}
