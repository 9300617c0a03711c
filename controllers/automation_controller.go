package controller

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"emberline/models"
	"emberline/utils"
)

type AutomationController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewAutomationController(db *gorm.DB, logger *log.Logger) *AutomationController {
	return &AutomationController{
		DB:     db,
		Logger: logger,
	}
}

type AutomationStepInput struct {
	StepOrder  int    `json:"step_order" validate:"gte=0"`
	Subject    string `json:"subject" validate:"required"`
	Body       string `json:"body" validate:"required"`
	DelayDays  int    `json:"delay_days" validate:"gte=0"`
	DelayHours int    `json:"delay_hours" validate:"gte=0"`
}

type AutomationInput struct {
	Name                string                `json:"name" validate:"required"`
	TriggerKind         string                `json:"trigger_kind" validate:"required,oneof=signup purchase coaching_inquiry contact_form cart_abandoned manual"`
	Enabled             bool                  `json:"enabled"`
	OneTimePerRecipient bool                  `json:"one_time_per_recipient"`
	Subject             string                `json:"subject"`
	Body                string                `json:"body"`
	DelayDays           int                   `json:"delay_days" validate:"gte=0"`
	DelayHours          int                   `json:"delay_hours" validate:"gte=0"`
	Steps               []AutomationStepInput `json:"steps" validate:"dive"`
}

// validateShape enforces the catalog invariants: an automation is either a
// flat template or a step list, and step orders must be unique and strictly
// increasing.
func validateShape(input *AutomationInput) error {
	if len(input.Steps) == 0 {
		if input.Subject == "" || input.Body == "" {
			return fmt.Errorf("subject and body are required without steps")
		}
		return nil
	}

	last := -1
	for i, step := range input.Steps {
		if step.StepOrder <= last {
			return fmt.Errorf("step %d: step_order must be unique and increasing", i)
		}
		last = step.StepOrder
	}
	return nil
}

func (ac *AutomationController) CreateAutomation(c *fiber.Ctx) error {
	var input AutomationInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	if err := validateShape(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid automation shape", err)
	}

	automation := models.Automation{
		Name:                input.Name,
		TriggerKind:         input.TriggerKind,
		Enabled:             input.Enabled,
		OneTimePerRecipient: input.OneTimePerRecipient,
		Subject:             input.Subject,
		Body:                input.Body,
		DelayDays:           input.DelayDays,
		DelayHours:          input.DelayHours,
	}
	for _, step := range input.Steps {
		automation.Steps = append(automation.Steps, models.AutomationStep{
			StepOrder:  step.StepOrder,
			Subject:    step.Subject,
			Body:       step.Body,
			DelayDays:  step.DelayDays,
			DelayHours: step.DelayHours,
		})
	}

	if err := ac.DB.Create(&automation).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create automation", nil)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(automation))
}

func (ac *AutomationController) GetAutomations(c *fiber.Ctx) error {
	var automations []models.Automation
	err := ac.DB.Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("step_order ASC")
	}).Order("created_at DESC").Find(&automations).Error
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load automations", nil)
	}
	return c.JSON(utils.SuccessResponse(automations))
}

func (ac *AutomationController) GetAutomation(c *fiber.Ctx) error {
	var automation models.Automation
	err := ac.DB.Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("step_order ASC")
	}).First(&automation, utils.ParseUint(c.Params("id"))).Error
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Automation not found", nil)
	}
	return c.JSON(utils.SuccessResponse(automation))
}

// UpdateAutomation replaces the automation's fields and its full step list.
func (ac *AutomationController) UpdateAutomation(c *fiber.Ctx) error {
	var automation models.Automation
	if err := ac.DB.First(&automation, utils.ParseUint(c.Params("id"))).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Automation not found", nil)
	}

	var input AutomationInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	if err := validateShape(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid automation shape", err)
	}

	err := ac.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&automation).Updates(map[string]interface{}{
			"name":                   input.Name,
			"trigger_kind":           input.TriggerKind,
			"enabled":                input.Enabled,
			"one_time_per_recipient": input.OneTimePerRecipient,
			"subject":                input.Subject,
			"body":                   input.Body,
			"delay_days":             input.DelayDays,
			"delay_hours":            input.DelayHours,
		}).Error; err != nil {
			return err
		}

		if err := tx.Where("automation_id = ?", automation.ID).Delete(&models.AutomationStep{}).Error; err != nil {
			return err
		}
		for _, step := range input.Steps {
			row := models.AutomationStep{
				AutomationID: automation.ID,
				StepOrder:    step.StepOrder,
				Subject:      step.Subject,
				Body:         step.Body,
				DelayDays:    step.DelayDays,
				DelayHours:   step.DelayHours,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update automation", nil)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{"message": "Automation updated"}))
}

func (ac *AutomationController) DeleteAutomation(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))
	err := ac.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("automation_id = ?", id).Delete(&models.AutomationStep{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Automation{}, id).Error
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete automation", nil)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"message": "Automation deleted"}))
}
