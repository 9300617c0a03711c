package controller

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"emberline/models"
	"emberline/utils"
)

type BroadcastController struct {
	DB     *gorm.DB
	Sender *utils.BroadcastSender
	Logger *log.Logger
}

func NewBroadcastController(db *gorm.DB, sender *utils.BroadcastSender, logger *log.Logger) *BroadcastController {
	return &BroadcastController{
		DB:     db,
		Sender: sender,
		Logger: logger,
	}
}

type BroadcastInput struct {
	Subject     string     `json:"subject" validate:"required"`
	Body        string     `json:"body" validate:"required"`
	SourceTag   string     `json:"source_tag"`
	Tags        string     `json:"tags"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

// CreateBroadcast saves a draft; with scheduled_at set the broadcast worker
// will pick it up, otherwise it waits for an explicit send.
func (bc *BroadcastController) CreateBroadcast(c *fiber.Ctx) error {
	var input BroadcastInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	broadcast := models.Broadcast{
		Subject:     input.Subject,
		Body:        input.Body,
		SourceTag:   input.SourceTag,
		Tags:        input.Tags,
		Status:      models.BroadcastStatusDraft,
		ScheduledAt: input.ScheduledAt,
	}
	if input.ScheduledAt != nil {
		broadcast.Status = models.BroadcastStatusScheduled
	}

	if err := bc.DB.Create(&broadcast).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create broadcast", nil)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(broadcast))
}

// SendBroadcast fires a draft immediately. The status flip doubles as the
// claim: a broadcast already claimed by the worker (or a second operator
// click) is refused instead of sent twice.
func (bc *BroadcastController) SendBroadcast(c *fiber.Ctx) error {
	var broadcast models.Broadcast
	if err := bc.DB.First(&broadcast, utils.ParseUint(c.Params("id"))).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Broadcast not found", nil)
	}

	claim := bc.DB.Model(&models.Broadcast{}).
		Where("id = ? AND status IN ?", broadcast.ID,
			[]string{models.BroadcastStatusDraft, models.BroadcastStatusScheduled, models.BroadcastStatusFailed}).
		Update("status", models.BroadcastStatusSending)
	if claim.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to claim broadcast", nil)
	}
	if claim.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Broadcast already sent or sending", nil)
	}

	sent, failed, err := bc.Sender.Send(&broadcast)
	if err != nil {
		bc.Logger.Printf("Broadcast %d send failed: %v", broadcast.ID, err)
		// Release the claim so the broadcast is not wedged in "sending".
		if uerr := bc.DB.Model(&models.Broadcast{}).
			Where("id = ?", broadcast.ID).
			Update("status", models.BroadcastStatusFailed).Error; uerr != nil {
			bc.Logger.Printf("Failed to mark broadcast %d failed: %v", broadcast.ID, uerr)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Broadcast send failed", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"sent":   sent,
		"failed": failed,
	}))
}

func (bc *BroadcastController) GetBroadcasts(c *fiber.Ctx) error {
	var broadcasts []models.Broadcast
	if err := bc.DB.Order("created_at DESC").Find(&broadcasts).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load broadcasts", nil)
	}
	return c.JSON(utils.SuccessResponse(broadcasts))
}

// GetBroadcastStats returns the audit snapshot plus open/click tallies for
// one broadcast.
func (bc *BroadcastController) GetBroadcastStats(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))

	var snapshot models.SentBroadcast
	if err := bc.DB.Where("broadcast_id = ?", id).Order("created_at DESC").First(&snapshot).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Broadcast has not been sent", nil)
	}

	var opens, uniqueOpens, clicks int64
	bc.DB.Model(&models.EmailOpen{}).Where("sent_broadcast_id = ?", snapshot.ID).Count(&opens)
	bc.DB.Model(&models.EmailOpen{}).Where("sent_broadcast_id = ?", snapshot.ID).
		Distinct("email").Count(&uniqueOpens)
	bc.DB.Model(&models.EmailClick{}).Where("sent_broadcast_id = ?", snapshot.ID).Count(&clicks)

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"audience":        snapshot.AudienceDescription,
		"recipient_count": snapshot.RecipientCount,
		"sent_at":         snapshot.SentAt,
		"opens":           opens,
		"unique_opens":    uniqueOpens,
		"clicks":          clicks,
	}))
}
