package domain

import (
	"strings"
	"time"
)

// Participant is the identity claim carried by a join frame. It is trusted
// verbatim.
type Participant struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

// Valid reports whether the claim carries an id to key the session on.
func (p Participant) Valid() bool {
	return strings.TrimSpace(p.ID) != ""
}

// Presence is one entry of the online_users snapshot. LastSeen is set on
// join and not refreshed afterwards.
type Presence struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	Avatar   string    `json:"avatar,omitempty"`
	LastSeen time.Time `json:"lastSeen"`
}
