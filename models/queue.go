package models

import (
	"time"

	"gorm.io/gorm"
)

// Queue entry statuses. "sending" is the transient claim state the sweep
// moves an entry through so two overlapping sweeps cannot pick it up twice.
const (
	QueueStatusScheduled = "scheduled"
	QueueStatusSending   = "sending"
	QueueStatusSent      = "sent"
	QueueStatusFailed    = "failed"
)

// QueueEntry is one concrete, scheduled, personalized message awaiting
// delivery. Created by the trigger dispatcher, mutated only by the queue
// worker. Once sent it is never touched again.
type QueueEntry struct {
	gorm.Model

	AutomationID   uint   `gorm:"not null;index" json:"automation_id"`
	AutomationName string `json:"automation_name"` // denormalized for audit
	StepID         string `gorm:"not null" json:"step_id"`
	StepOrder      int    `gorm:"default:0" json:"step_order"`

	Email string `gorm:"not null;index" json:"email"`
	Name  string `json:"name"`

	// Rendered at enqueue time, sent verbatim by the sweep.
	Subject string `gorm:"not null" json:"subject"`
	Body    string `gorm:"type:text" json:"body"`

	Status       string     `gorm:"default:'scheduled';index" json:"status"`
	ScheduledFor time.Time  `gorm:"not null;index" json:"scheduled_for"`
	SentAt       *time.Time `json:"sent_at"`
	LastError    string     `json:"last_error"`
}
