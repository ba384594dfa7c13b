// internal/model/campaign.go
package model

import "time"

type Status string

const (
	StatusIdle       Status = "idle"
	StatusInProgress Status = "in_progress"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
	StatusArchived   Status = "archived"
)

type Campaign struct {
	ID                string     `db:"id" json:"id"`
	Service           string     `db:"service" json:"service"`
	Link              string     `db:"link" json:"link"`
	Destination       string     `db:"destination" json:"destination"`
	Proxy             string     `db:"proxy" json:"proxy"`
	OTPType           string     `db:"otp_type" json:"otp_type"`
	DailyAmount       string     `db:"daily_amount" json:"daily_amount"`
	SourceListLabel   *string    `db:"source_list_label" json:"source_list_label,omitempty"`
	SourceListHistory []string   `db:"source_list_history" json:"source_list_history"`
	Processed         int        `db:"processed" json:"processed"`
	Status            Status     `db:"status" json:"status"`
	RemoteJobID       *string    `db:"remote_job_id" json:"remote_job_id,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	ArchivedAt        *time.Time `db:"archived_at" json:"archived_at,omitempty"`

	// RawList is the uploaded number-list payload. It is handed to the
	// backend once on start and is never persisted.
	RawList []byte `db:"-" json:"-"`
}

// Clone returns a deep copy so callers outside the store cannot mutate
// shared state.
func (c *Campaign) Clone() *Campaign {
	cp := *c
	if c.SourceListHistory != nil {
		cp.SourceListHistory = append([]string(nil), c.SourceListHistory...)
	}
	if c.SourceListLabel != nil {
		label := *c.SourceListLabel
		cp.SourceListLabel = &label
	}
	if c.RemoteJobID != nil {
		jobID := *c.RemoteJobID
		cp.RemoteJobID = &jobID
	}
	if c.ArchivedAt != nil {
		at := *c.ArchivedAt
		cp.ArchivedAt = &at
	}
	if c.RawList != nil {
		cp.RawList = append([]byte(nil), c.RawList...)
	}
	return &cp
}
