package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

// Registry is the authoritative participant id -> session mapping, with a
// transport index so disconnects resolve without scanning.
type Registry struct {
	sessions    map[string]*Session  // participantID -> session
	byTransport map[Transport]string // transport -> participantID
	mu          sync.RWMutex
	now         func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:    make(map[string]*Session),
		byTransport: make(map[Transport]string),
		now:         time.Now,
	}
}

// Upsert registers p on t. It returns the new session and any sessions it
// displaced: the participant's previous session (latest join wins) and,
// when t was bound to a different participant, that binding. Displaced
// transports are unindexed but not closed.
func (r *Registry) Upsert(p domain.Participant, t Transport) (Session, []Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var displaced []Session

	if prev, ok := r.sessions[p.ID]; ok {
		displaced = append(displaced, *prev)
		delete(r.byTransport, prev.Transport)
	}
	if prevID, ok := r.byTransport[t]; ok && prevID != p.ID {
		if prev, ok := r.sessions[prevID]; ok {
			displaced = append(displaced, *prev)
			delete(r.sessions, prevID)
		}
	}

	s := &Session{Participant: p, Transport: t, JoinedAt: r.now().UTC()}
	r.sessions[p.ID] = s
	r.byTransport[t] = p.ID

	l := log.L()
	l.Debug().Str(log.FieldUserID, p.ID).Str(log.FieldConnID, t.ID()).Int("displaced", len(displaced)).Msg("session registered")

	return *s, displaced
}

// RemoveByTransport drops the session bound to t, if any.
func (r *Registry) RemoveByTransport(t Transport) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byTransport[t]
	if !ok {
		return Session{}, false
	}
	delete(r.byTransport, t)

	s, ok := r.sessions[id]
	if !ok || s.Transport != t {
		return Session{}, false
	}
	delete(r.sessions, id)
	return *s, true
}

// RemoveByParticipant drops the participant's session, if any.
func (r *Registry) RemoveByParticipant(id string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	delete(r.sessions, id)
	delete(r.byTransport, s.Transport)
	return *s, true
}

// Lookup returns the participant's current session.
func (r *Registry) Lookup(id string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return *s, nil
}

// Owner returns the session bound to t, if any.
func (r *Registry) Owner(t Transport) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byTransport[t]
	if !ok {
		return Session{}, false
	}
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Snapshot returns a copy of all sessions ordered by join time. Callers may
// iterate it while the registry is mutated concurrently.
func (r *Registry) Snapshot() []Session {
	r.mu.RLock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].Participant.ID < out[j].Participant.ID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

// Presence returns the current PresenceSet as online_users entries.
func (r *Registry) Presence() []domain.Presence {
	snap := r.Snapshot()
	out := make([]domain.Presence, 0, len(snap))
	for _, s := range snap {
		out = append(out, s.Presence())
	}
	return out
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
