package registry

import (
	"errors"
	"time"

	"github.com/weiawesome/wes-io-chat/internal/domain"
)

// ErrNotFound is returned by lookups for participants without a session.
var ErrNotFound = errors.New("session not found")

// Transport is the outbound half of one live connection. Implementations
// must be comparable (pointer types) since the registry indexes by them.
type Transport interface {
	ID() string
	// Send queues data without blocking; an error means the recipient
	// cannot keep up or is gone.
	Send(data []byte) error
	Close()
}

// Session is one live transport-bound registration of a participant.
type Session struct {
	Participant domain.Participant
	Transport   Transport
	JoinedAt    time.Time
}

// Presence renders the session as an online_users entry.
func (s Session) Presence() domain.Presence {
	return domain.Presence{
		ID:       s.Participant.ID,
		Username: s.Participant.Username,
		Avatar:   s.Participant.Avatar,
		LastSeen: s.JoinedAt,
	}
}
