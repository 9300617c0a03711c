package controller

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"gorm.io/gorm"

	"emberline/models"
	"emberline/utils"
)

// PaymentController handles the checkout webhook: a completed checkout is
// both the purchase trigger and the external event that marks an abandoned
// cart recovered.
type PaymentController struct {
	DB            *gorm.DB
	Dispatcher    *utils.TriggerDispatcher
	Logger        *log.Logger
	WebhookSecret string
}

func NewPaymentController(db *gorm.DB, dispatcher *utils.TriggerDispatcher, logger *log.Logger, webhookSecret string) *PaymentController {
	return &PaymentController{
		DB:            db,
		Dispatcher:    dispatcher,
		Logger:        logger,
		WebhookSecret: webhookSecret,
	}
}

func (pc *PaymentController) HandleCheckoutWebhook(c *fiber.Ctx) error {
	event, err := webhook.ConstructEvent(c.Body(), c.Get("Stripe-Signature"), pc.WebhookSecret)
	if err != nil {
		pc.Logger.Printf("Webhook signature verification failed: %v", err)
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid webhook signature", nil)
	}

	if event.Type != "checkout.session.completed" {
		return c.JSON(fiber.Map{"received": true})
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		pc.Logger.Printf("Failed to parse checkout session: %v", err)
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid webhook payload", nil)
	}

	email := ""
	name := ""
	if session.CustomerDetails != nil {
		email = session.CustomerDetails.Email
		name = session.CustomerDetails.Name
	}
	if email == "" {
		pc.Logger.Printf("Checkout session %s has no customer email, skipping", session.ID)
		return c.JSON(fiber.Map{"received": true})
	}

	pc.recoverCarts(email)

	enqueued, err := pc.Dispatcher.OnTrigger(models.TriggerPurchase, email, name, map[string]string{
		"order_id": session.ID,
	})
	if err != nil {
		pc.Logger.Printf("Purchase trigger for %s failed: %v", email, err)
	} else {
		pc.Logger.Printf("Purchase trigger for %s enqueued %d entries", email, enqueued)
	}

	return c.JSON(fiber.Map{"received": true})
}

// recoverCarts closes out any abandoned cart for the purchaser.
func (pc *PaymentController) recoverCarts(email string) {
	res := pc.DB.Model(&models.AbandonedCart{}).
		Where("email = ? AND status = ?", email, models.CartStatusAbandoned).
		Updates(map[string]interface{}{
			"status":       models.CartStatusRecovered,
			"recovered_at": time.Now(),
		})
	if res.Error != nil {
		pc.Logger.Printf("Failed to mark carts recovered for %s: %v", email, res.Error)
		return
	}
	if res.RowsAffected > 0 {
		pc.Logger.Printf("Marked %d cart(s) recovered for %s", res.RowsAffected, email)
	}
}
