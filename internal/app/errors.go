package app

import "errors"

var (
	ErrNotConnected     = errors.New("not connected")
	ErrNotRegistered    = errors.New("not registered")
	ErrTimeout          = errors.New("timeout waiting for reply")
	ErrConnectionLost   = errors.New("connection lost")
	ErrRequestInFlight  = errors.New("another request is outstanding on this session")
	ErrRemoteRejection  = errors.New("remote rejected command")
	ErrMediaNegotiation = errors.New("media negotiation failed")
	ErrCallInProgress   = errors.New("a call is already in progress")
	ErrNoSuchCall       = errors.New("no matching call")
)

// AlreadyConnectedGreeting is returned instead of an error when a user registers twice.
const AlreadyConnectedGreeting = "already connected"

// DefaultGreeting stands in for a greeting that did not arrive within the grace window.
const DefaultGreeting = "registered"
