package controller

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"emberline/models"
	"emberline/utils"
)

type DashboardController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewDashboardController(db *gorm.DB, logger *log.Logger) *DashboardController {
	return &DashboardController{
		DB:     db,
		Logger: logger,
	}
}

// GetDashboardStats summarizes queue, cart, broadcast and subscriber state
// for the admin view.
func (dc *DashboardController) GetDashboardStats(c *fiber.Ctx) error {
	queue := map[string]int64{}
	for _, status := range []string{
		models.QueueStatusScheduled,
		models.QueueStatusSent,
		models.QueueStatusFailed,
	} {
		var n int64
		dc.DB.Model(&models.QueueEntry{}).Where("status = ?", status).Count(&n)
		queue[status] = n
	}

	carts := map[string]int64{}
	for _, status := range []string{
		models.CartStatusAbandoned,
		models.CartStatusRecovered,
		models.CartStatusExpired,
	} {
		var n int64
		dc.DB.Model(&models.AbandonedCart{}).Where("status = ?", status).Count(&n)
		carts[status] = n
	}

	var subscribers, broadcastsSent int64
	dc.DB.Model(&models.Subscriber{}).Where("subscribed = ?", true).Count(&subscribers)
	dc.DB.Model(&models.Broadcast{}).Where("status = ?", models.BroadcastStatusSent).Count(&broadcastsSent)

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"queue":           queue,
		"carts":           carts,
		"subscribers":     subscribers,
		"broadcasts_sent": broadcastsSent,
	}))
}
