package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// WebSocket message types from client.
const (
	MsgTypeJoin    = "join"
	MsgTypeMessage = "message"
	MsgTypeTyping  = "typing"
	MsgTypePing    = "ping"
)

// WebSocket message types to client.
const (
	MsgTypeMessageHistory = "message_history"
	MsgTypeOnlineUsers    = "online_users"
	MsgTypeUserJoined     = "user_joined"
	MsgTypeUserLeft       = "user_left"
	MsgTypeNewMessage     = "new_message"
	MsgTypeUserTyping     = "user_typing"
	MsgTypePong           = "pong"
)

var (
	// ErrMalformedFrame marks a frame that is not valid JSON or lacks a
	// usable payload. The connection survives it.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrUnknownType marks a well-formed frame with an unrecognised type.
	ErrUnknownType = errors.New("unknown frame type")
)

// BaseMessage is the base structure for all WebSocket messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server messages

type JoinMessage struct {
	Type string      `json:"type"`
	User Participant `json:"user"`
}

type ChatMessageIn struct {
	Type     string `json:"type"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Content  string `json:"content"`
	Avatar   string `json:"avatar,omitempty"`
}

// TypingMessage travels in both directions; the server re-types it as
// user_typing before fan-out.
type TypingMessage struct {
	Type     string `json:"type"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

// Server -> Client messages

type MessageHistoryMessage struct {
	Type     string        `json:"type"`
	Messages []ChatMessage `json:"messages"`
}

type OnlineUsersMessage struct {
	Type  string     `json:"type"`
	Users []Presence `json:"users"`
}

type UserEventMessage struct {
	Type string      `json:"type"`
	User Participant `json:"user"`
}

type NewMessageMessage struct {
	Type    string      `json:"type"`
	Message ChatMessage `json:"message"`
}

func NewMessageHistory(msgs []ChatMessage) *MessageHistoryMessage {
	if msgs == nil {
		msgs = []ChatMessage{}
	}
	return &MessageHistoryMessage{Type: MsgTypeMessageHistory, Messages: msgs}
}

func NewOnlineUsers(users []Presence) *OnlineUsersMessage {
	if users == nil {
		users = []Presence{}
	}
	return &OnlineUsersMessage{Type: MsgTypeOnlineUsers, Users: users}
}

func NewUserJoined(p Participant) *UserEventMessage {
	return &UserEventMessage{Type: MsgTypeUserJoined, User: p}
}

func NewUserLeft(p Participant) *UserEventMessage {
	return &UserEventMessage{Type: MsgTypeUserLeft, User: p}
}

func NewNewMessage(m ChatMessage) *NewMessageMessage {
	return &NewMessageMessage{Type: MsgTypeNewMessage, Message: m}
}

func NewUserTyping(userID, username string, isTyping bool) *TypingMessage {
	return &TypingMessage{
		Type:     MsgTypeUserTyping,
		UserID:   userID,
		Username: username,
		IsTyping: isTyping,
	}
}

// PeekType extracts the type discriminator from a raw frame.
func PeekType(data []byte) (string, error) {
	var base BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if base.Type == "" {
		return "", fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	return base.Type, nil
}

// DecodeInto unmarshals a raw frame into v, tagging failures as malformed.
func DecodeInto(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return nil
}
