package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/internal/registry"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

// Broadcaster fans frames out to every registered session. It never evicts
// anyone itself; failed recipients are handed back to the caller.
type Broadcaster struct {
	registry *registry.Registry
}

func NewBroadcaster(reg *registry.Registry) *Broadcaster {
	return &Broadcaster{registry: reg}
}

// Broadcast marshals payload once and sends it to every session in a
// registry snapshot except the one bound to exclude (nil excludes nobody).
// Sessions whose send failed are returned.
func (b *Broadcaster) Broadcast(ctx context.Context, payload interface{}, exclude registry.Transport) ([]registry.Session, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal broadcast: %w", err)
	}
	return b.BroadcastRaw(ctx, data, exclude), nil
}

// BroadcastRaw is Broadcast for an already-encoded frame.
func (b *Broadcaster) BroadcastRaw(ctx context.Context, data []byte, exclude registry.Transport) []registry.Session {
	l := log.Ctx(ctx)

	var failed []registry.Session
	sent := 0
	for _, s := range b.registry.Snapshot() {
		if exclude != nil && s.Transport == exclude {
			continue
		}
		if err := s.Transport.Send(data); err != nil {
			l.Warn().Err(err).
				Str(log.FieldUserID, s.Participant.ID).
				Str(log.FieldConnID, s.Transport.ID()).
				Msg("broadcast send failed")
			failed = append(failed, s)
			continue
		}
		sent++
	}

	l.Debug().Int(log.FieldRecipients, sent).Int("failed", len(failed)).Msg("broadcast")
	return failed
}

// UserJoined announces p to everyone but its own transport.
func (b *Broadcaster) UserJoined(ctx context.Context, p domain.Participant, t registry.Transport) ([]registry.Session, error) {
	return b.Broadcast(ctx, domain.NewUserJoined(p), t)
}

// UserLeft announces p's departure. t is the departing transport, skipped in
// case it is still reachable.
func (b *Broadcaster) UserLeft(ctx context.Context, p domain.Participant, t registry.Transport) ([]registry.Session, error) {
	return b.Broadcast(ctx, domain.NewUserLeft(p), t)
}

// UserTyping relays a typing indicator to everyone except the sender.
func (b *Broadcaster) UserTyping(ctx context.Context, userID, username string, isTyping bool, t registry.Transport) ([]registry.Session, error) {
	return b.Broadcast(ctx, domain.NewUserTyping(userID, username, isTyping), t)
}

// NewMessage delivers m to every session, the sender included.
func (b *Broadcaster) NewMessage(ctx context.Context, m domain.ChatMessage) ([]registry.Session, error) {
	return b.Broadcast(ctx, domain.NewNewMessage(m), nil)
}

// OnlineUsers builds the current presence frame.
func (b *Broadcaster) OnlineUsers() *domain.OnlineUsersMessage {
	return domain.NewOnlineUsers(b.registry.Presence())
}
