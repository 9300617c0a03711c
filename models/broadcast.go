package models

import (
	"time"

	"gorm.io/gorm"
)

// Broadcast statuses. "failed" marks a claimed broadcast whose send aborted
// before completion; an operator can re-send it.
const (
	BroadcastStatusDraft     = "draft"
	BroadcastStatusScheduled = "scheduled"
	BroadcastStatusSending   = "sending"
	BroadcastStatusSent      = "sent"
	BroadcastStatusFailed    = "failed"
)

// Broadcast is an operator-authored one-shot bulk send. Drafts can be sent
// immediately or scheduled; the broadcast worker picks up due scheduled ones.
type Broadcast struct {
	gorm.Model

	Subject string `gorm:"not null" json:"subject"`
	Body    string `gorm:"type:text" json:"body"`

	// Audience filter. Empty means every subscribed recipient. SourceTag
	// narrows by subscriber source; Tags passes any recipient sharing at
	// least one tag.
	SourceTag string `json:"source_tag"`
	Tags      string `json:"tags"` // comma separated

	Status      string     `gorm:"default:'draft';index" json:"status"`
	ScheduledAt *time.Time `gorm:"index" json:"scheduled_at"`
	SentAt      *time.Time `json:"sent_at"`

	SentCount   int `gorm:"default:0" json:"sent_count"`
	FailedCount int `gorm:"default:0" json:"failed_count"`
}

// SentBroadcast is the immutable audit snapshot taken just before a broadcast
// goes out: what was sent, to whom, and when. Open/click events reference it
// by id.
type SentBroadcast struct {
	gorm.Model

	BroadcastID uint   `gorm:"not null;index" json:"broadcast_id"`
	Subject     string `gorm:"not null" json:"subject"`
	Body        string `gorm:"type:text" json:"body"`

	AudienceDescription string `json:"audience_description"`
	Recipients          string `gorm:"type:text" json:"recipients"` // newline separated email snapshot
	RecipientCount      int    `gorm:"default:0" json:"recipient_count"`

	SentAt time.Time `gorm:"not null" json:"sent_at"`
}

// EmailOpen records one open-pixel hit for a broadcast recipient.
type EmailOpen struct {
	gorm.Model
	SentBroadcastID uint   `gorm:"not null;index" json:"sent_broadcast_id"`
	Email           string `gorm:"not null;index" json:"email"`
	IPAddress       string `json:"ip_address"`
	UserAgent       string `json:"user_agent"`
}

// EmailClick records one tracked-link click. LinkIndex is the zero-based
// position of the link in the rendered body, stable per broadcast, so clicks
// attribute to specific links.
type EmailClick struct {
	gorm.Model
	SentBroadcastID uint   `gorm:"not null;index" json:"sent_broadcast_id"`
	Email           string `gorm:"not null;index" json:"email"`
	LinkIndex       int    `gorm:"not null" json:"link_index"`
	URL             string `gorm:"not null" json:"url"`
	IPAddress       string `json:"ip_address"`
	UserAgent       string `json:"user_agent"`
}
