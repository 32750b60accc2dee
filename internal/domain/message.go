package domain

import (
	"strings"
	"time"
)

// ChatMessage is the server-authoritative message. ID and Timestamp are
// assigned when the message is appended to the history buffer.
type ChatMessage struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Avatar    string    `json:"avatar,omitempty"`
}

// Blank reports whether content is empty or whitespace only.
func Blank(content string) bool {
	return strings.TrimSpace(content) == ""
}
