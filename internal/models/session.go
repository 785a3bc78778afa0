package models

import (
	"encoding/json"
	"time"
)

// Session is the live record of one matched pair, kept in the realtime store
// under chats/<id>. DisconnectedBy holds the id of whichever participant's
// connection most recently dropped while the session was live; empty means
// both sides are (or are believed to be) connected.
type Session struct {
	ID             string   `json:"id"`
	Participants   []string `json:"participants"` // exactly two
	CreatedAt      int64    `json:"createdAt"`
	DisconnectedBy string   `json:"disconnectedBy,omitempty"`
}

// Has reports whether uid is one of the two participants.
func (s *Session) Has(uid string) bool {
	for _, p := range s.Participants {
		if p == uid {
			return true
		}
	}
	return false
}

// Other returns the partner of uid, or "" if uid is not a participant.
func (s *Session) Other(uid string) string {
	for _, p := range s.Participants {
		if p != uid {
			return p
		}
	}
	return ""
}

// DecodeSession parses a raw session record; nil raw yields nil session.
func DecodeSession(raw []byte) (*Session, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Encode marshals the session for the realtime store.
func (s *Session) Encode() []byte {
	b, _ := json.Marshal(s)
	return b
}

// SessionRecord is the durable PostgreSQL audit row for a session. The live
// pairing state stays in the realtime store; this row only exists so history
// and moderation can outlive it.
type SessionRecord struct {
	SessionID string `gorm:"primaryKey"`
	User1ID   string
	User2ID   string
	IsActive  bool
	StartedAt time.Time
	EndedAt   time.Time
}
