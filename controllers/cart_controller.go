package controller

import (
	"log"
	"time"

	"github.com/badoux/checkmail"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"emberline/models"
	"emberline/utils"
)

type CartController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewCartController(db *gorm.DB, logger *log.Logger) *CartController {
	return &CartController{
		DB:     db,
		Logger: logger,
	}
}

type CartItemInput struct {
	ProductID  string `json:"product_id" validate:"required"`
	Name       string `json:"name" validate:"required"`
	PriceCents int64  `json:"price_cents" validate:"gte=0"`
	Quantity   int    `json:"quantity" validate:"gte=1"`
	ImageURL   string `json:"image_url"`
	Variant    string `json:"variant"`
}

type CaptureCartInput struct {
	Email        string          `json:"email" validate:"required,email"`
	CustomerName string          `json:"customer_name"`
	SessionID    string          `json:"session_id"`
	Items        []CartItemInput `json:"items" validate:"required,min=1,dive"`
}

// CaptureCart snapshots a cart from the storefront beacon. Capture upserts
// by (email, status=abandoned): while a cart for the email is still
// abandoned, a new snapshot replaces its item set wholesale and recomputes
// the totals instead of creating a second row.
func (cc *CartController) CaptureCart(c *fiber.Ctx) error {
	var input CaptureCartInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	if err := checkmail.ValidateFormat(input.Email); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid email address", err)
	}

	var total int64
	var count int
	for _, item := range input.Items {
		total += item.PriceCents * int64(item.Quantity)
		count += item.Quantity
	}

	var cart models.AbandonedCart
	err := cc.DB.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("email = ? AND status = ?", input.Email, models.CartStatusAbandoned).
			First(&cart).Error

		switch {
		case err == nil:
			// Replace the item set for the existing abandoned row.
			if err := tx.Where("cart_id = ?", cart.ID).Delete(&models.AbandonedCartItem{}).Error; err != nil {
				return err
			}
			if err := tx.Model(&cart).Updates(map[string]interface{}{
				"customer_name":    input.CustomerName,
				"session_id":       input.SessionID,
				"total_cents":      total,
				"item_count":       count,
				"last_activity_at": time.Now(),
			}).Error; err != nil {
				return err
			}
		case err == gorm.ErrRecordNotFound:
			cart = models.AbandonedCart{
				Email:          input.Email,
				CustomerName:   input.CustomerName,
				SessionID:      input.SessionID,
				RecoveryToken:  uuid.New().String(),
				Status:         models.CartStatusAbandoned,
				TotalCents:     total,
				ItemCount:      count,
				LastActivityAt: time.Now(),
			}
			if err := tx.Create(&cart).Error; err != nil {
				return err
			}
		default:
			return err
		}

		for _, item := range input.Items {
			row := models.AbandonedCartItem{
				CartID:     cart.ID,
				ProductID:  item.ProductID,
				Name:       item.Name,
				PriceCents: item.PriceCents,
				Quantity:   item.Quantity,
				ImageURL:   item.ImageURL,
				Variant:    item.Variant,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		cc.Logger.Printf("Failed to capture cart for %s: %v", input.Email, err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to capture cart", nil)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"cart_id": cart.ID,
	}))
}

// RecoverCart resolves a recovery token back into the snapshotted items so
// the storefront can rebuild the checkout. Recovered and expired carts are
// signalled distinctly from unknown tokens.
func (cc *CartController) RecoverCart(c *fiber.Ctx) error {
	token := c.Params("token")

	var cart models.AbandonedCart
	err := cc.DB.Where("recovery_token = ?", token).Preload("Items").First(&cart).Error
	if err == gorm.ErrRecordNotFound {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Cart not found", nil)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load cart", nil)
	}

	if cart.Status != models.CartStatusAbandoned {
		return c.Status(fiber.StatusGone).JSON(fiber.Map{
			"success": false,
			"error":   "Cart is no longer recoverable",
			"status":  cart.Status,
		})
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"cart_id":     cart.ID,
		"email":       cart.Email,
		"total_cents": cart.TotalCents,
		"item_count":  cart.ItemCount,
		"items":       cart.Items,
	}))
}
