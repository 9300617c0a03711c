package worker

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	"gorm.io/gorm"

	"emberline/models"
	"emberline/utils"
)

// CartWorker runs the abandoned-cart sweep: it emails carts that went quiet,
// and separately expires carts that never came back.
type CartWorker struct {
	DB         *gorm.DB
	Dispatcher *utils.TriggerDispatcher
	Mail       utils.Transport
	Logger     *log.Logger
	BaseURL    string

	Interval         time.Duration
	InactivityWindow time.Duration
	ExpiryWindow     time.Duration
}

func NewCartWorker(db *gorm.DB, dispatcher *utils.TriggerDispatcher, mail utils.Transport, logger *log.Logger, baseURL string, interval, inactivity, expiry time.Duration) *CartWorker {
	return &CartWorker{
		DB:               db,
		Dispatcher:       dispatcher,
		Mail:             mail,
		Logger:           logger,
		BaseURL:          baseURL,
		Interval:         interval,
		InactivityWindow: inactivity,
		ExpiryWindow:     expiry,
	}
}

func (cw *CartWorker) Start(ctx context.Context) {
	time.Sleep(5 * time.Second)

	cw.Logger.Println("Cart worker started")

	ticker := time.NewTicker(cw.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cw.Logger.Println("Cart worker shutting down...")
			return
		case <-ticker.C:
			if err := cw.Sweep(); err != nil {
				cw.Logger.Printf("Cart sweep failed: %v", err)
				sentry.CaptureException(err)
			}
		}
	}
}

// Sweep emails eligible carts, then expires stale ones. Expiry is a
// retention step, not a notification step: it runs even when the email pass
// had nothing to do or failed outright.
func (cw *CartWorker) Sweep() error {
	emailErr := cw.emailAbandonedCarts()
	expireErr := cw.expireStaleCarts()

	if emailErr != nil {
		return emailErr
	}
	return expireErr
}

func (cw *CartWorker) emailAbandonedCarts() error {
	cutoff := time.Now().Add(-cw.InactivityWindow)

	var carts []models.AbandonedCart
	err := cw.DB.
		Where("status = ? AND email <> '' AND last_activity_at < ? AND email_sent_at IS NULL",
			models.CartStatusAbandoned, cutoff).
		Preload("Items").
		Find(&carts).Error
	if err != nil {
		return fmt.Errorf("selecting abandoned carts: %w", err)
	}

	for i := range carts {
		if err := cw.processCart(&carts[i]); err != nil {
			cw.Logger.Printf("Error processing cart %d: %v", carts[i].ID, err)
		}
	}
	return nil
}

func (cw *CartWorker) processCart(cart *models.AbandonedCart) error {
	if len(cart.Items) == 0 {
		// A snapshot should never be empty; treat it as a no-op rather than
		// an error so one odd row can't wedge the sweep.
		cw.Logger.Printf("Skipping cart %d: no items", cart.ID)
		return nil
	}

	recoveryURL := fmt.Sprintf("%s/cart/recover/%s", cw.BaseURL, cart.RecoveryToken)
	ctx := map[string]string{
		"cart_recovery_url": recoveryURL,
		"product_name":      cart.Items[0].Name,
		"price":             formatCents(cart.TotalCents),
		"qty":               strconv.Itoa(cart.ItemCount),
	}

	enqueued, err := cw.Dispatcher.OnTrigger(models.TriggerCartAbandoned, cart.Email, cart.CustomerName, ctx)
	if err != nil {
		return fmt.Errorf("dispatching cart trigger: %w", err)
	}

	if enqueued == 0 {
		// No automation configured for cart recovery. The business rule is
		// "the customer gets notified", so fall back to a fixed direct send.
		subject, body := cw.fallbackMessage(cart, recoveryURL)
		if err := cw.Mail.Send(cart.Email, subject, body); err != nil {
			// Leave email_sent_at unset so the next sweep tries again.
			return fmt.Errorf("fallback recovery send: %w", err)
		}
	}

	if err := cw.DB.Model(cart).Updates(map[string]interface{}{
		"email_sent_at": time.Now(),
		"email_count":   gorm.Expr("email_count + ?", 1),
	}).Error; err != nil {
		return fmt.Errorf("marking cart %d emailed: %w", cart.ID, err)
	}
	return nil
}

func (cw *CartWorker) fallbackMessage(cart *models.AbandonedCart, recoveryURL string) (string, string) {
	name := cart.CustomerName
	if name == "" {
		name = "there"
	}
	subject := "You left something in your cart"
	body := fmt.Sprintf(
		`<p>Hi %s,</p>
<p>Your cart with %s is still waiting for you (%d item(s), %s total).</p>
<p><a href="%s">Finish your checkout</a></p>`,
		name, cart.Items[0].Name, cart.ItemCount, formatCents(cart.TotalCents), recoveryURL)
	return subject, body
}

func (cw *CartWorker) expireStaleCarts() error {
	cutoff := time.Now().Add(-cw.ExpiryWindow)
	res := cw.DB.Model(&models.AbandonedCart{}).
		Where("status = ? AND last_activity_at < ?", models.CartStatusAbandoned, cutoff).
		Update("status", models.CartStatusExpired)
	if res.Error != nil {
		return fmt.Errorf("expiring stale carts: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		cw.Logger.Printf("Expired %d stale carts", res.RowsAffected)
	}
	return nil
}

func formatCents(cents int64) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}
