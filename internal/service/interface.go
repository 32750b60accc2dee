package service

import (
	"context"

	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/internal/registry"
)

type ChatService interface {
	// HandleFrame decodes one inbound frame and dispatches it. Malformed
	// frames are logged and dropped; the returned error is informational.
	HandleFrame(ctx context.Context, t registry.Transport, data []byte) error
	HandleJoin(ctx context.Context, t registry.Transport, p domain.Participant) error
	HandleMessage(ctx context.Context, t registry.Transport, in domain.ChatMessageIn) error
	HandleTyping(ctx context.Context, t registry.Transport, in domain.TypingMessage) error
	HandleDisconnect(ctx context.Context, t registry.Transport) error
	Messages() []domain.ChatMessage
	ConnectedUsers() []domain.Presence
	Stop() error
}
