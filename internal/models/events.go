package models

// ClientCommand is what a connected client sends over the websocket.
type ClientCommand struct {
	Type      string   `json:"type"` // "search", "cancel", "skip", "end", "message", "report", "block"
	Interests []string `json:"interests,omitempty"`
	Text      string   `json:"text,omitempty"`
	Reason    string   `json:"reason,omitempty"`
	Severity  string   `json:"severity,omitempty"`
}

// Command event types accepted from clients.
const (
	CmdSearch  = "search"
	CmdCancel  = "cancel"
	CmdSkip    = "skip"
	CmdEnd     = "end"
	CmdMessage = "message"
	CmdReport  = "report"
	CmdBlock   = "block"
)

// ServerEvent is what the hub pushes to a connected client.
type ServerEvent struct {
	Type            string   `json:"type"`
	State           string   `json:"state,omitempty"`     // for "status" events
	SessionID       string   `json:"sessionId,omitempty"` // for match/message events
	PartnerID       string   `json:"partnerId,omitempty"`
	PartnerName     string   `json:"partnerName,omitempty"`
	PartnerAvatar   string   `json:"partnerAvatar,omitempty"`
	SharedInterests []string `json:"sharedInterests,omitempty"`
	SenderID        string   `json:"senderId,omitempty"`
	Text            string   `json:"text,omitempty"`
	At              int64    `json:"at,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// Server event types.
const (
	EvtStatus             = "status"
	EvtMatchFound         = "match_found"
	EvtPartnerDisconnect  = "partner_disconnected"
	EvtPartnerReconnected = "partner_reconnected"
	EvtMessage            = "message"
	EvtError              = "error"
)
