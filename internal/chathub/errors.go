package chathub

import "errors"

var (
	// ErrNoInterests rejects a search with an empty interest list.
	ErrNoInterests = errors.New("search requires at least one interest")

	// ErrNotChatting rejects chat-scoped actions from a user without a live session.
	ErrNotChatting = errors.New("user is not in a chat")

	// ErrStaleSession marks a status record referencing a session whose
	// participant lookup failed; the affected user is reset to idle.
	ErrStaleSession = errors.New("status references an unknown participant")
)
