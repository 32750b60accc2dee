package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/weiawesome/wes-io-chat/internal/audit"
	"github.com/weiawesome/wes-io-chat/internal/broadcast"
	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/internal/history"
	"github.com/weiawesome/wes-io-chat/internal/notify"
	"github.com/weiawesome/wes-io-chat/internal/registry"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

type chatService struct {
	registry    *registry.Registry
	history     *history.Buffer
	broadcaster *broadcast.Broadcaster
	notifier    notify.Publisher

	// mu serialises room events so every session observes joins, messages
	// and departures in the same order as the history buffer.
	mu sync.Mutex
}

func NewChatService(
	reg *registry.Registry,
	buf *history.Buffer,
	notifier notify.Publisher,
) ChatService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &chatService{
		registry:    reg,
		history:     buf,
		broadcaster: broadcast.NewBroadcaster(reg),
		notifier:    notifier,
	}
}

func (s *chatService) HandleFrame(ctx context.Context, t registry.Transport, data []byte) error {
	err := s.dispatch(ctx, t, data)
	if errors.Is(err, domain.ErrMalformedFrame) || errors.Is(err, domain.ErrUnknownType) {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldConnID, t.ID()).Msg("frame dropped")
		audit.LogWithDetail(ctx, audit.ActionMalformedFrame, s.ownerID(t), err.Error(), "frame dropped")
	}
	return err
}

func (s *chatService) dispatch(ctx context.Context, t registry.Transport, data []byte) error {
	typ, err := domain.PeekType(data)
	if err != nil {
		return err
	}

	switch typ {
	case domain.MsgTypeJoin:
		var msg domain.JoinMessage
		if err := domain.DecodeInto(data, &msg); err != nil {
			return err
		}
		return s.HandleJoin(ctx, t, msg.User)

	case domain.MsgTypeMessage:
		var msg domain.ChatMessageIn
		if err := domain.DecodeInto(data, &msg); err != nil {
			return err
		}
		return s.HandleMessage(ctx, t, msg)

	case domain.MsgTypeTyping:
		var msg domain.TypingMessage
		if err := domain.DecodeInto(data, &msg); err != nil {
			return err
		}
		return s.HandleTyping(ctx, t, msg)

	case domain.MsgTypePing:
		return s.sendDirect(ctx, t, &domain.BaseMessage{Type: domain.MsgTypePong})

	default:
		return fmt.Errorf("%w: %q", domain.ErrUnknownType, typ)
	}
}

func (s *chatService) HandleJoin(ctx context.Context, t registry.Transport, p domain.Participant) error {
	if !p.Valid() {
		return fmt.Errorf("%w: join without user id", domain.ErrMalformedFrame)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, displaced := s.registry.Upsert(p, t)
	announced := false
	for _, d := range displaced {
		if d.Participant.ID == p.ID {
			// Latest join wins; the superseded transport stays open but no
			// longer receives room traffic.
			audit.LogWithDetail(ctx, audit.ActionReplace, p.ID, d.Transport.ID(), "session replaced")
			announced = true
			continue
		}
		// The transport re-joined under another identity.
		s.announceLeftLocked(ctx, d.Participant, t)
	}

	// History and presence go to the joiner before anyone else can append,
	// so the replay is exactly the buffer at the moment of join.
	if err := s.sendDirect(ctx, t, domain.NewMessageHistory(s.history.Snapshot())); err != nil {
		if announced {
			s.evictLocked(ctx, []registry.Session{session})
		} else {
			// The room never saw this participant arrive, so it must not see
			// them leave either.
			s.dropLocked(ctx, session)
		}
		return err
	}

	failed, err := s.broadcaster.UserJoined(ctx, p, t)
	if err != nil {
		return err
	}
	s.evictLocked(ctx, failed)

	if err := s.sendDirect(ctx, t, s.broadcaster.OnlineUsers()); err != nil {
		s.evictLocked(ctx, []registry.Session{session})
		return err
	}

	audit.Log(ctx, audit.ActionJoin, p.ID, "user joined")
	s.publish(ctx, notify.EventUserJoined, p)
	return nil
}

func (s *chatService) HandleMessage(ctx context.Context, t registry.Transport, in domain.ChatMessageIn) error {
	if domain.Blank(in.Content) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msg, err := s.history.Append(domain.ChatMessage{
		UserID:   in.UserID,
		Username: in.Username,
		Content:  in.Content,
		Avatar:   in.Avatar,
	})
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, in.UserID).Msg("message dropped")
		return err
	}

	failed, err := s.broadcaster.NewMessage(ctx, msg)
	if err != nil {
		return err
	}
	s.evictLocked(ctx, failed)

	audit.LogWithDetail(ctx, audit.ActionSendMessage, msg.UserID, msg.ID, "message sent")
	s.publish(ctx, notify.EventNewMessage, msg)
	return nil
}

func (s *chatService) HandleTyping(ctx context.Context, t registry.Transport, in domain.TypingMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	failed, err := s.broadcaster.UserTyping(ctx, in.UserID, in.Username, in.IsTyping, t)
	if err != nil {
		return err
	}
	s.evictLocked(ctx, failed)
	return nil
}

func (s *chatService) HandleDisconnect(ctx context.Context, t registry.Transport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.registry.RemoveByTransport(t)
	if !ok {
		return nil
	}

	audit.Log(ctx, audit.ActionLeave, session.Participant.ID, "user left")
	s.announceLeftLocked(ctx, session.Participant, t)
	return nil
}

func (s *chatService) Messages() []domain.ChatMessage {
	return s.history.Snapshot()
}

func (s *chatService) ConnectedUsers() []domain.Presence {
	return s.registry.Presence()
}

func (s *chatService) Stop() error {
	if err := s.notifier.Close(); err != nil {
		return fmt.Errorf("failed to close notifier: %w", err)
	}
	return nil
}

// announceLeftLocked broadcasts user_left for p, skipping t, and evicts any
// recipient that could not take it.
func (s *chatService) announceLeftLocked(ctx context.Context, p domain.Participant, t registry.Transport) {
	failed, err := s.broadcaster.UserLeft(ctx, p, t)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to broadcast user_left")
		return
	}
	s.publish(ctx, notify.EventUserLeft, p)
	s.evictLocked(ctx, failed)
}

// evictLocked treats each failed session as an implicit disconnect. Every
// user_left it sends can fail in turn, so it works through a queue until the
// room is stable.
func (s *chatService) evictLocked(ctx context.Context, failed []registry.Session) {
	queue := append([]registry.Session(nil), failed...)
	for len(queue) > 0 {
		victim := queue[0]
		queue = queue[1:]

		victim.Transport.Close()
		removed, ok := s.registry.RemoveByTransport(victim.Transport)
		if !ok {
			continue
		}
		audit.LogWithDetail(ctx, audit.ActionEvict, removed.Participant.ID, victim.Transport.ID(), "recipient evicted")

		more, err := s.broadcaster.UserLeft(ctx, removed.Participant, victim.Transport)
		if err != nil {
			continue
		}
		s.publish(ctx, notify.EventUserLeft, removed.Participant)
		queue = append(queue, more...)
	}
}

// dropLocked removes a session that was never announced to the room.
func (s *chatService) dropLocked(ctx context.Context, session registry.Session) {
	session.Transport.Close()
	if _, ok := s.registry.RemoveByTransport(session.Transport); ok {
		audit.LogWithDetail(ctx, audit.ActionEvict, session.Participant.ID, session.Transport.ID(), "joiner dropped before announce")
	}
}

func (s *chatService) sendDirect(ctx context.Context, t registry.Transport, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if err := t.Send(data); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldConnID, t.ID()).Msg("direct send failed")
		return err
	}
	return nil
}

func (s *chatService) publish(ctx context.Context, eventType string, payload interface{}) {
	event, err := notify.NewEvent(eventType, payload)
	if err != nil {
		return
	}
	if err := s.notifier.Publish(ctx, event); err != nil {
		l := log.Ctx(ctx)
		l.Debug().Err(err).Str("event_type", eventType).Msg("notify publish failed")
	}
}

func (s *chatService) ownerID(t registry.Transport) string {
	if session, ok := s.registry.Owner(t); ok {
		return session.Participant.ID
	}
	return ""
}
