package client

import (
	"time"

	"github.com/weiawesome/wes-io-chat/internal/domain"
)

// MessageStatus tracks a message through local delivery. It is never sent
// to other participants.
type MessageStatus string

const (
	StatusSending   MessageStatus = "sending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusFailed    MessageStatus = "failed"
)

// LocalMessage is a chat message as this client sees it.
type LocalMessage struct {
	domain.ChatMessage
	Status MessageStatus `json:"status"`
}

func (m LocalMessage) pending() bool {
	return m.Status == StatusSending || m.Status == StatusSent
}

// room is the client's reconciled view. Not safe for concurrent use; the
// Client guards it.
type room struct {
	self     domain.Participant
	messages []LocalMessage
	presence []domain.Presence
	unread   int
	focused  bool
	now      func() time.Time
}

func newRoom(self domain.Participant, now func() time.Time) *room {
	return &room{self: self, focused: true, now: now}
}

// seed fills an empty room from the local mirror. Server history replaces it
// on the next message_history.
func (r *room) seed(msgs []domain.ChatMessage) {
	if len(r.messages) > 0 {
		return
	}
	for _, m := range msgs {
		r.messages = append(r.messages, LocalMessage{ChatMessage: m, Status: StatusDelivered})
	}
}

func (r *room) addLocal(m LocalMessage) {
	r.messages = append(r.messages, m)
}

func (r *room) setStatus(id string, status MessageStatus) bool {
	for i := range r.messages {
		if r.messages[i].ID != id {
			continue
		}
		// a broadcast may already have confirmed it
		if r.messages[i].Status == StatusDelivered {
			return false
		}
		r.messages[i].Status = status
		return true
	}
	return false
}

// replaceHistory swaps in the server's history, keeping local messages that
// are still in flight or failed.
func (r *room) replaceHistory(msgs []domain.ChatMessage) {
	out := make([]LocalMessage, 0, len(msgs)+len(r.messages))
	for _, m := range msgs {
		out = append(out, LocalMessage{ChatMessage: m, Status: StatusDelivered})
	}
	for _, m := range r.messages {
		if m.Status != StatusDelivered {
			out = append(out, m)
		}
	}
	r.messages = out
}

// receive reconciles a new_message broadcast. Own messages confirm the
// oldest pending local copy with the same content; returns whether the
// message came from someone else.
func (r *room) receive(m domain.ChatMessage) (foreign bool) {
	for _, existing := range r.messages {
		if existing.ID == m.ID {
			return false
		}
	}

	if m.UserID == r.self.ID {
		for i := range r.messages {
			local := r.messages[i]
			if local.pending() && local.UserID == m.UserID && local.Content == m.Content {
				r.messages[i] = LocalMessage{ChatMessage: m, Status: StatusDelivered}
				return false
			}
		}
		r.messages = append(r.messages, LocalMessage{ChatMessage: m, Status: StatusDelivered})
		return false
	}

	r.messages = append(r.messages, LocalMessage{ChatMessage: m, Status: StatusDelivered})
	if !r.focused {
		r.unread++
	}
	return true
}

func (r *room) setPresence(users []domain.Presence) {
	r.presence = append([]domain.Presence(nil), users...)
}

func (r *room) userJoined(p domain.Participant) {
	r.userLeft(p.ID)
	r.presence = append(r.presence, domain.Presence{
		ID:       p.ID,
		Username: p.Username,
		Avatar:   p.Avatar,
		LastSeen: r.now().UTC(),
	})
}

func (r *room) userLeft(id string) {
	out := r.presence[:0]
	for _, p := range r.presence {
		if p.ID != id {
			out = append(out, p)
		}
	}
	r.presence = out
}

func (r *room) setFocused(focused bool) {
	r.focused = focused
	if focused {
		r.unread = 0
	}
}

// delivered returns the confirmed messages for the local mirror.
func (r *room) delivered() []domain.ChatMessage {
	out := make([]domain.ChatMessage, 0, len(r.messages))
	for _, m := range r.messages {
		if m.Status == StatusDelivered {
			out = append(out, m.ChatMessage)
		}
	}
	return out
}

func (r *room) messagesCopy() []LocalMessage {
	return append([]LocalMessage{}, r.messages...)
}

func (r *room) presenceCopy() []domain.Presence {
	return append([]domain.Presence{}, r.presence...)
}
