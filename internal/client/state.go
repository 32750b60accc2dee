package client

import (
	"errors"
	"time"
)

var (
	// ErrNotConnected is returned by sends while no connection is up.
	// Nothing is queued.
	ErrNotConnected = errors.New("not connected")
	// ErrReconnectExhausted is reported once the retry budget is spent.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("client closed")
	// ErrEmptyMessage is returned for blank message content.
	ErrEmptyMessage = errors.New("empty message")
)

// State is the connection lifecycle position.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Defaults for the reconnect schedule.
const (
	DefaultBaseDelay     = time.Second
	DefaultMaxDelay      = 30 * time.Second
	DefaultMaxAttempts   = 5
	DefaultTypingTimeout = 3 * time.Second
)

// ReconnectDelay is the wait before retry number attempt (1-based):
// min(base * 2^attempt, max).
func ReconnectDelay(base, max time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// Status is what a listener is told on every lifecycle transition.
type Status struct {
	State       State
	Attempt     int
	MaxAttempts int
	Delay       time.Duration
	Err         error
}

// Terminal reports whether no further reconnects will happen without Start.
func (s Status) Terminal() bool {
	return s.State == StateDisconnected && errors.Is(s.Err, ErrReconnectExhausted)
}
