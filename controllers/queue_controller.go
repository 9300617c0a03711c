package controller

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"emberline/models"
	"emberline/utils"
)

// QueueController is the operator's window into the delivery queue: failed
// entries have no automatic retry, so inspection and manual re-triggering
// happen here.
type QueueController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewQueueController(db *gorm.DB, logger *log.Logger) *QueueController {
	return &QueueController{
		DB:     db,
		Logger: logger,
	}
}

func (qc *QueueController) GetQueueEntries(c *fiber.Ctx) error {
	query := qc.DB.Order("scheduled_for DESC").Limit(200)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var entries []models.QueueEntry
	if err := query.Find(&entries).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load queue entries", nil)
	}
	return c.JSON(utils.SuccessResponse(entries))
}

// RetryQueueEntry puts one failed entry back on the schedule. Only failed
// entries qualify; sent entries are immutable.
func (qc *QueueController) RetryQueueEntry(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))

	res := qc.DB.Model(&models.QueueEntry{}).
		Where("id = ? AND status = ?", id, models.QueueStatusFailed).
		Updates(map[string]interface{}{
			"status":        models.QueueStatusScheduled,
			"last_error":    "",
			"scheduled_for": time.Now(),
		})
	if res.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to retry queue entry", nil)
	}
	if res.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Entry is not in failed state", nil)
	}

	qc.Logger.Printf("Queue entry %d rescheduled by operator", id)
	return c.JSON(utils.SuccessResponse(fiber.Map{"message": "Entry rescheduled"}))
}
