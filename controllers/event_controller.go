package controller

import (
	"log"
	"strings"

	"github.com/badoux/checkmail"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"emberline/models"
	"emberline/utils"
)

// EventController exposes the business-event call sites: signup, purchase,
// coaching inquiry and contact form. Each endpoint feeds the trigger
// dispatcher and keeps the subscriber list current.
type EventController struct {
	DB         *gorm.DB
	Dispatcher *utils.TriggerDispatcher
	Logger     *log.Logger
}

func NewEventController(db *gorm.DB, dispatcher *utils.TriggerDispatcher, logger *log.Logger) *EventController {
	return &EventController{
		DB:         db,
		Dispatcher: dispatcher,
		Logger:     logger,
	}
}

type EventInput struct {
	Email   string            `json:"email" validate:"required,email"`
	Name    string            `json:"name"`
	Source  string            `json:"source"`
	Tags    string            `json:"tags"`
	Context map[string]string `json:"context"`
}

func (ec *EventController) HandleSignup(c *fiber.Ctx) error {
	return ec.handleEvent(c, models.TriggerSignup, "storefront")
}

func (ec *EventController) HandlePurchase(c *fiber.Ctx) error {
	return ec.handleEvent(c, models.TriggerPurchase, "storefront")
}

func (ec *EventController) HandleCoachingInquiry(c *fiber.Ctx) error {
	return ec.handleEvent(c, models.TriggerCoachingInquiry, "coaching")
}

func (ec *EventController) HandleContactForm(c *fiber.Ctx) error {
	return ec.handleEvent(c, models.TriggerContactForm, "contact")
}

func (ec *EventController) handleEvent(c *fiber.Ctx, kind, defaultSource string) error {
	var input EventInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	if err := checkmail.ValidateFormat(input.Email); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid email address", err)
	}

	source := input.Source
	if source == "" {
		source = defaultSource
	}
	if err := ec.upsertSubscriber(input.Email, input.Name, source, input.Tags); err != nil {
		ec.Logger.Printf("Failed to upsert subscriber %s: %v", input.Email, err)
	}

	enqueued, err := ec.Dispatcher.OnTrigger(kind, input.Email, input.Name, input.Context)
	if err != nil {
		ec.Logger.Printf("Trigger %s for %s failed: %v", kind, input.Email, err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to process event", nil)
	}

	// enqueued may legitimately be zero: no automation is configured for
	// this trigger, and the storefront flow carries on regardless.
	return c.JSON(utils.SuccessResponse(fiber.Map{
		"trigger":  kind,
		"enqueued": enqueued,
	}))
}

func (ec *EventController) upsertSubscriber(email, name, source, tags string) error {
	var sub models.Subscriber
	err := ec.DB.Where("email = ?", email).First(&sub).Error
	if err == gorm.ErrRecordNotFound {
		return ec.DB.Create(&models.Subscriber{
			Email:      email,
			Name:       name,
			Source:     source,
			Tags:       tags,
			Subscribed: true,
		}).Error
	}
	if err != nil {
		return err
	}

	updates := map[string]interface{}{}
	if name != "" && sub.Name == "" {
		updates["name"] = name
	}
	if tags != "" {
		updates["tags"] = mergeTags(sub.Tags, tags)
	}
	if len(updates) == 0 {
		return nil
	}
	return ec.DB.Model(&sub).Updates(updates).Error
}

func mergeTags(existing, incoming string) string {
	have := models.SplitTags(existing)
	merged := append([]string{}, have...)
	for _, tag := range models.SplitTags(incoming) {
		seen := false
		for _, h := range have {
			if h == tag {
				seen = true
				break
			}
		}
		if !seen {
			merged = append(merged, tag)
		}
	}
	return strings.Join(merged, ",")
}
