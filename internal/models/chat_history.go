package models

import "gorm.io/gorm"

// ChatHistory represents a saved chat message in the PostgreSQL database.
// The embedded gorm.Model provides ID, CreatedAt, UpdatedAt, and DeletedAt
// fields, which serve as the message ID and timestamps.
type ChatHistory struct {
	gorm.Model

	// SessionID is the identifier of the session the message belongs to.
	SessionID string `gorm:"type:uuid;not null;index:idx_session_msg"`
	// SenderID is the anonymous ID of the user who sent the message.
	SenderID string `gorm:"type:text;not null;index:idx_session_msg"`
	// Content is the message text.
	Content string `gorm:"type:text;not null"`
	// Type indicates the kind of message (e.g., "text", "system").
	Type string `gorm:"type:text;not null"`
}
