package controller

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"emberline/models"
	"emberline/utils"
)

type TrackingController struct {
	DB             *gorm.DB
	Logger         *log.Logger
	UnsubscribeKey []byte
}

func NewTrackingController(db *gorm.DB, logger *log.Logger, unsubscribeKey []byte) *TrackingController {
	return &TrackingController{
		DB:             db,
		Logger:         logger,
		UnsubscribeKey: unsubscribeKey,
	}
}

// HandleOpen serves the 1x1 beacon and records the open. The pixel is
// returned no matter what; a broken tracking row must never break the email
// render.
func (tc *TrackingController) HandleOpen(c *fiber.Ctx) error {
	sentID := utils.ParseUint(c.Params("sentID"))
	email := c.Query("r")

	if sentID != 0 && email != "" {
		open := models.EmailOpen{
			SentBroadcastID: sentID,
			Email:           email,
			IPAddress:       c.IP(),
			UserAgent:       c.Get("User-Agent"),
		}
		if err := tc.DB.Create(&open).Error; err != nil {
			tc.Logger.Printf("Failed to record open for broadcast %d: %v", sentID, err)
		}
	}

	return c.Type("gif").Send(transparentPixel())
}

// HandleClick records the click against (broadcast, link index, recipient)
// and bounces the visitor to the original URL.
func (tc *TrackingController) HandleClick(c *fiber.Ctx) error {
	sentID := utils.ParseUint(c.Params("sentID"))
	linkIndex, _ := c.ParamsInt("index")
	originalURL := c.Query("url")
	email := c.Query("r")

	if originalURL == "" {
		return c.Status(fiber.StatusBadRequest).SendString("Missing url")
	}

	if sentID != 0 && email != "" {
		click := models.EmailClick{
			SentBroadcastID: sentID,
			Email:           email,
			LinkIndex:       linkIndex,
			URL:             originalURL,
			IPAddress:       c.IP(),
			UserAgent:       c.Get("User-Agent"),
		}
		if err := tc.DB.Create(&click).Error; err != nil {
			tc.Logger.Printf("Failed to record click for broadcast %d: %v", sentID, err)
		}
	}

	return c.Redirect(originalURL, fiber.StatusFound)
}

// HandleUnsubscribe validates the signed token from the email footer,
// records a suppression and flips the subscriber off the list.
func (tc *TrackingController) HandleUnsubscribe(c *fiber.Ctx) error {
	email, sentID, err := utils.ParseUnsubscribeToken(tc.UnsubscribeKey, c.Params("token"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("Invalid unsubscribe link")
	}

	suppression := models.Suppression{
		Email:  email,
		Reason: "unsubscribe",
		Source: "link",
	}
	if err := tc.DB.Create(&suppression).Error; err != nil {
		tc.Logger.Printf("Failed to record suppression for %s: %v", email, err)
	}

	if err := tc.DB.Model(&models.Subscriber{}).
		Where("email = ?", email).
		Update("subscribed", false).Error; err != nil {
		tc.Logger.Printf("Failed to unsubscribe %s: %v", email, err)
		return c.Status(fiber.StatusInternalServerError).SendString("Something went wrong, please try again")
	}

	tc.Logger.Printf("Unsubscribed %s (broadcast %d) at %s", email, sentID, time.Now().Format(time.RFC3339))
	return c.Type("html").SendString("<html><body><p>You have been unsubscribed. Sorry to see you go!</p></body></html>")
}

// transparentPixel is a minimal 1x1 transparent GIF.
func transparentPixel() []byte {
	return []byte{
		0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
		0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
		0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
		0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
	}
}
