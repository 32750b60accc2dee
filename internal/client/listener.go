package client

import "github.com/weiawesome/wes-io-chat/internal/domain"

// Listener receives room updates. Calls arrive from the client's internal
// goroutines, never while the client holds its lock.
type Listener interface {
	OnStatus(Status)
	OnMessages([]LocalMessage)
	OnPresence([]domain.Presence)
	OnTyping([]string)
	// OnNotify fires for other participants' messages while the client is
	// not focused.
	OnNotify(msg domain.ChatMessage, unread int)
}

// NopListener ignores everything. Embed it to implement only some methods.
type NopListener struct{}

func (NopListener) OnStatus(Status)                  {}
func (NopListener) OnMessages([]LocalMessage)        {}
func (NopListener) OnPresence([]domain.Presence)     {}
func (NopListener) OnTyping([]string)                {}
func (NopListener) OnNotify(domain.ChatMessage, int) {}
