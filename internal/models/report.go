package models

import "time"

// Report is filed by one participant against the other during or right after
// a session. Reviewed out of band by the admin CLI.
type Report struct {
	ReportID   string `gorm:"primaryKey"`
	ReporterID string
	ReportedID string
	SessionID  string
	Reason     string
	Severity   string // "Low", "Medium", "Critical"
	Status     string // "new", "resolved", "dismissed"
	CreatedAt  time.Time
}
