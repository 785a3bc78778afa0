package models

import (
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq" // needed for pq.StringArray
	"gorm.io/gorm"
)

// User is the durable profile record stored in PostgreSQL. The live matching
// state (status, queue membership) lives in the realtime store, not here.
type User struct {
	ID        string         `gorm:"primaryKey" json:"id"` // anonymous UUID
	Username  string         `gorm:"type:text" json:"username"`
	Email     string         `gorm:"uniqueIndex" json:"email"`
	Bio       string         `gorm:"type:text" json:"bio"`
	Avatar    string         `gorm:"type:text" json:"avatar"`
	Banner    string         `gorm:"type:text" json:"banner"`
	Interests pq.StringArray `gorm:"type:text[]" json:"interests"`
	Followers int            `json:"followers"`
	Following int            `json:"following"`
}

// BeforeCreate is a GORM hook that generates a new UUID for the user
// if the ID has not been set yet.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}

// Profile is the read-side view of a user handed to the matching core:
// everything it needs to pair two people and render the match.
type Profile struct {
	UID       string   `json:"uid"`
	Username  string   `json:"username"`
	Avatar    string   `json:"avatar"`
	Interests []string `json:"interests"`
}

// Block records that Blocker never wants to be paired with Blocked again.
type Block struct {
	BlockerID string `gorm:"primaryKey"`
	BlockedID string `gorm:"primaryKey"`
}

// NormalizeInterests lowercases and trims every tag, drops empties and
// removes duplicates while preserving the caller's declared order.
func NormalizeInterests(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		tag := strings.ToLower(strings.TrimSpace(t))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

// SharedInterests returns the tags present in both lists, in the order of the
// first list.
func SharedInterests(a, b []string) []string {
	inB := make(map[string]bool, len(b))
	for _, t := range NormalizeInterests(b) {
		inB[t] = true
	}
	var shared []string
	for _, t := range NormalizeInterests(a) {
		if inB[t] {
			shared = append(shared, t)
		}
	}
	return shared
}
