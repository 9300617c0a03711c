package utils

import (
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"emberline/models"
)

// TriggerDispatcher turns a business event into queue entries. It is called
// inline from request handlers and from the abandoned-cart sweep; it never
// sends anything itself.
type TriggerDispatcher struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewTriggerDispatcher(db *gorm.DB, logger *log.Logger) *TriggerDispatcher {
	return &TriggerDispatcher{
		DB:     db,
		Logger: logger,
	}
}

// OnTrigger matches enabled automations for the event kind, applies the
// one-time-per-recipient guard, renders each step and enqueues one entry per
// step with its own delay relative to now (not chained). Returns the number
// of entries enqueued; zero matches is a valid outcome, and callers that must
// guarantee a notification are expected to branch on a zero return.
func (td *TriggerDispatcher) OnTrigger(kind, email, name string, ctx map[string]string) (int, error) {
	if email == "" {
		return 0, fmt.Errorf("recipient email is required")
	}

	var automations []models.Automation
	err := td.DB.
		Where("trigger_kind = ? AND enabled = ?", kind, true).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_order ASC")
		}).
		Find(&automations).Error
	if err != nil {
		return 0, fmt.Errorf("loading automations for %q: %w", kind, err)
	}

	now := time.Now()
	enqueued := 0

	for i := range automations {
		automation := &automations[i]

		if automation.OneTimePerRecipient {
			// The guard looks at entries of any status and runs before any
			// enqueue for this automation, so a repeat trigger can never
			// enqueue a partial step list.
			var existing int64
			err := td.DB.Model(&models.QueueEntry{}).
				Where("automation_id = ? AND email = ?", automation.ID, email).
				Count(&existing).Error
			if err != nil {
				return enqueued, fmt.Errorf("dedupe check for automation %d: %w", automation.ID, err)
			}
			if existing > 0 {
				td.Logger.Printf("skipping automation %d for %s: already enqueued once", automation.ID, email)
				continue
			}
		}

		for _, step := range automation.Definition() {
			entry := models.QueueEntry{
				AutomationID:   automation.ID,
				AutomationName: automation.Name,
				StepID:         step.StepID,
				StepOrder:      step.StepOrder,
				Email:          email,
				Name:           name,
				Subject:        Render(step.Subject, name, ctx),
				Body:           Render(step.Body, name, ctx),
				Status:         models.QueueStatusScheduled,
				ScheduledFor:   now.Add(step.Delay),
			}
			if err := td.DB.Create(&entry).Error; err != nil {
				return enqueued, fmt.Errorf("enqueueing step %s of automation %d: %w", step.StepID, automation.ID, err)
			}
			enqueued++
		}
	}

	return enqueued, nil
}
