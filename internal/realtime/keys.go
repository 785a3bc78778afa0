package realtime

import "fmt"

// Key layout of the shared store. One key per interest queue, per user status
// record, per online flag, per session and per claim guard.

func QueueKey(tag string) string {
	return fmt.Sprintf("searching/%s", tag)
}

func UserStatusKey(uid string) string {
	return fmt.Sprintf("users/%s/status", uid)
}

func UserOnlineKey(uid string) string {
	return fmt.Sprintf("users/%s/online", uid)
}

func SessionKey(sessionID string) string {
	return fmt.Sprintf("chats/%s", sessionID)
}

// ClaimKey guards a user against being claimed from two interest queues at
// once: it is compare-and-swapped from absent to the claiming session id as
// the first step of any claim.
func ClaimKey(uid string) string {
	return fmt.Sprintf("claims/%s", uid)
}

func MessageKey(sessionID, messageID string) string {
	return fmt.Sprintf("chats/%s/messages/%s", sessionID, messageID)
}
