package models

import (
	"strconv"
	"time"

	"gorm.io/gorm"
)

// Trigger kinds an automation can react to.
const (
	TriggerSignup          = "signup"
	TriggerPurchase        = "purchase"
	TriggerCoachingInquiry = "coaching_inquiry"
	TriggerContactForm     = "contact_form"
	TriggerCartAbandoned   = "cart_abandoned"
	TriggerManual          = "manual"
)

// Automation maps one trigger kind to one or more delayed, templated messages.
// It carries either a single flat template (Subject/Body/Delay*) or an ordered
// list of Steps; Definition() resolves which shape applies.
type Automation struct {
	gorm.Model

	Name        string `gorm:"not null" json:"name"`
	TriggerKind string `gorm:"not null;index" json:"trigger_kind"`

	// No default tag: GORM would omit an explicit false on insert and the
	// column default would silently enable the automation.
	Enabled bool `json:"enabled"`

	// Dedupe policy: when set, a recipient who already has a queue entry for
	// this automation (any status) is never enqueued again.
	OneTimePerRecipient bool `gorm:"default:false" json:"one_time_per_recipient"`

	// Flat template shape
	Subject    string `json:"subject"`
	Body       string `gorm:"type:text" json:"body"`
	DelayDays  int    `gorm:"default:0" json:"delay_days"`
	DelayHours int    `gorm:"default:0" json:"delay_hours"`

	// Step-list shape
	Steps []AutomationStep `gorm:"foreignKey:AutomationID" json:"steps,omitempty"`
}

// AutomationStep is one delayed message in a step-list automation.
type AutomationStep struct {
	gorm.Model
	AutomationID uint `gorm:"not null;index" json:"automation_id"`

	StepOrder  int    `gorm:"not null" json:"step_order"`
	Subject    string `gorm:"not null" json:"subject"`
	Body       string `gorm:"type:text" json:"body"`
	DelayDays  int    `gorm:"default:0" json:"delay_days"`
	DelayHours int    `gorm:"default:0" json:"delay_hours"`
}

// Delay returns the step's delay relative to the trigger time.
func (s *AutomationStep) Delay() time.Duration {
	return time.Duration(s.DelayDays)*24*time.Hour + time.Duration(s.DelayHours)*time.Hour
}

// PlannedStep is one message the dispatcher will enqueue: a resolved step id,
// order, templates and delay, independent of which shape the automation uses.
type PlannedStep struct {
	StepID    string
	StepOrder int
	Subject   string
	Body      string
	Delay     time.Duration
}

// FlatStepID marks queue entries produced by a flat-template automation.
const FlatStepID = "template"

// Definition resolves the automation's two storage shapes into one plan. A
// non-empty step list always wins over the flat fields, so a row that has both
// is unambiguous. Steps are assumed ordered by step_order (the catalog loads
// them that way).
func (a *Automation) Definition() []PlannedStep {
	if len(a.Steps) > 0 {
		plan := make([]PlannedStep, 0, len(a.Steps))
		for _, step := range a.Steps {
			plan = append(plan, PlannedStep{
				StepID:    formatStepID(step.ID),
				StepOrder: step.StepOrder,
				Subject:   step.Subject,
				Body:      step.Body,
				Delay:     step.Delay(),
			})
		}
		return plan
	}
	return a.flatDefinition()
}

func (a *Automation) flatDefinition() []PlannedStep {
	return []PlannedStep{{
		StepID:    FlatStepID,
		StepOrder: 0,
		Subject:   a.Subject,
		Body:      a.Body,
		Delay:     time.Duration(a.DelayDays)*24*time.Hour + time.Duration(a.DelayHours)*time.Hour,
	}}
}

func formatStepID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
