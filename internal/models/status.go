package models

import (
	"encoding/json"
	"errors"
	"time"
)

// StatusState is the tag of the user status variant.
type StatusState string

const (
	StateIdle      StatusState = "idle"
	StateSearching StatusState = "searching"
	StateChatting  StatusState = "chatting"
	StateOffline   StatusState = "offline"
)

// Status is the authoritative per-user status record kept in the realtime
// store. It is a tagged variant: SessionID and PartnerID are only meaningful
// while State is chatting, LastChanged only while offline. Construct values
// through Idle/Searching/Chatting/Offline so illegal combinations never exist.
type Status struct {
	State       StatusState `json:"state"`
	SessionID   string      `json:"sessionId,omitempty"`
	PartnerID   string      `json:"partnerId,omitempty"`
	LastChanged int64       `json:"lastChanged,omitempty"`
}

func Idle() Status {
	return Status{State: StateIdle}
}

func Searching() Status {
	return Status{State: StateSearching}
}

func Chatting(sessionID, partnerID string) Status {
	return Status{State: StateChatting, SessionID: sessionID, PartnerID: partnerID}
}

func Offline(at time.Time) Status {
	return Status{State: StateOffline, LastChanged: at.UnixMilli()}
}

var ErrInvalidStatus = errors.New("invalid status record")

// Validate rejects variants whose payload does not match their tag.
func (s Status) Validate() error {
	switch s.State {
	case StateChatting:
		if s.SessionID == "" || s.PartnerID == "" {
			return ErrInvalidStatus
		}
	case StateIdle, StateSearching, StateOffline:
		if s.SessionID != "" || s.PartnerID != "" {
			return ErrInvalidStatus
		}
	default:
		return ErrInvalidStatus
	}
	return nil
}

// DecodeStatus parses a raw status record. An absent record is treated as
// idle; a malformed one is surfaced as an error so the caller can reset it.
func DecodeStatus(raw []byte) (Status, error) {
	if len(raw) == 0 {
		return Idle(), nil
	}
	var s Status
	if err := json.Unmarshal(raw, &s); err != nil {
		return Status{}, err
	}
	if s.State == "" {
		return Idle(), nil
	}
	return s, nil
}

// Encode marshals the status for the realtime store.
func (s Status) Encode() []byte {
	b, _ := json.Marshal(s)
	return b
}
