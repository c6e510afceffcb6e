// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
)

const MaxUserIDLen = 36

var (
	ErrUserIDTooLong = errors.New("user id too long")
	ErrUserIDEmpty   = errors.New("user id empty")
	ErrUserIDSpaces  = errors.New("user id contains whitespace")
)

// UserID is the registration name a client uses on the chat server.
type UserID string

// ParseUserID validates a raw user id. Ids travel as single tokens on the
// chat line protocol, so whitespace is rejected.
func ParseUserID(raw string) (UserID, error) {
	if len(raw) == 0 {
		return "", ErrUserIDEmpty
	}
	if len(raw) > MaxUserIDLen {
		return "", ErrUserIDTooLong
	}
	if strings.ContainsAny(raw, " \t\r\n") {
		return "", ErrUserIDSpaces
	}
	return UserID(raw), nil
}

type GroupName string

// ConnStatus is the state of a user's chat-server connection.
type ConnStatus string

const (
	StatusDisconnected ConnStatus = "disconnected"
	StatusConnecting   ConnStatus = "connecting"
	StatusConnected    ConnStatus = "connected"
)
