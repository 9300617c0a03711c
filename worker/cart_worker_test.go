package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"emberline/models"
	"emberline/utils"
)

func newTestCartWorker(db *gorm.DB, mail *fakeTransport) *CartWorker {
	dispatcher := utils.NewTriggerDispatcher(db, quietLogger())
	return NewCartWorker(db, dispatcher, mail, quietLogger(),
		"https://emberline.shop", time.Minute, 2*time.Hour, 30*24*time.Hour)
}

func seedCart(t *testing.T, db *gorm.DB, cart models.AbandonedCart) models.AbandonedCart {
	t.Helper()
	require.NoError(t, db.Create(&cart).Error)
	return cart
}

func quietCart(email string, ago time.Duration) models.AbandonedCart {
	return models.AbandonedCart{
		Email:          email,
		CustomerName:   "Ana",
		RecoveryToken:  "tok-" + email,
		Status:         models.CartStatusAbandoned,
		TotalCents:     4800,
		ItemCount:      2,
		LastActivityAt: time.Now().Add(-ago),
		Items: []models.AbandonedCartItem{
			{ProductID: "mug-01", Name: "Speckled Mug", PriceCents: 2400, Quantity: 2},
		},
	}
}

func TestCartSweepFallbackSendWhenNoAutomation(t *testing.T) {
	db := setupWorkerDB(t)
	cart := seedCart(t, db, quietCart("a@example.com", 3*time.Hour))

	mail := &fakeTransport{}
	require.NoError(t, newTestCartWorker(db, mail).Sweep())

	// No cart_abandoned automation exists, so the fixed message goes direct.
	assert.Equal(t, []string{"a@example.com"}, mail.sent)

	var reloaded models.AbandonedCart
	require.NoError(t, db.First(&reloaded, cart.ID).Error)
	require.NotNil(t, reloaded.EmailSentAt)
	assert.Equal(t, 1, reloaded.EmailCount)
}

func TestCartSweepUsesAutomationWhenConfigured(t *testing.T) {
	db := setupWorkerDB(t)
	require.NoError(t, db.Create(&models.Automation{
		Name:        "Cart recovery",
		TriggerKind: models.TriggerCartAbandoned,
		Enabled:     true,
		Subject:     "Still want your {{product_name}}?",
		Body:        `<a href="{{cart_recovery_url}}">resume</a>`,
	}).Error)
	cart := seedCart(t, db, quietCart("a@example.com", 3*time.Hour))

	mail := &fakeTransport{}
	require.NoError(t, newTestCartWorker(db, mail).Sweep())

	// The automation enqueues; nothing is sent directly.
	assert.Empty(t, mail.sent)

	var entry models.QueueEntry
	require.NoError(t, db.First(&entry).Error)
	assert.Equal(t, "Still want your Speckled Mug?", entry.Subject)
	assert.Contains(t, entry.Body, "https://emberline.shop/cart/recover/tok-a@example.com")

	var reloaded models.AbandonedCart
	require.NoError(t, db.First(&reloaded, cart.ID).Error)
	assert.NotNil(t, reloaded.EmailSentAt)
}

func TestCartSweepEmailsOnlyOnce(t *testing.T) {
	db := setupWorkerDB(t)
	seedCart(t, db, quietCart("a@example.com", 3*time.Hour))

	mail := &fakeTransport{}
	worker := newTestCartWorker(db, mail)
	require.NoError(t, worker.Sweep())
	require.NoError(t, worker.Sweep())

	assert.Equal(t, []string{"a@example.com"}, mail.sent)
}

func TestCartSweepSkipsActiveAndAnonymousCarts(t *testing.T) {
	db := setupWorkerDB(t)
	// Still active: inside the inactivity window.
	seedCart(t, db, quietCart("fresh@example.com", 30*time.Minute))
	// No email captured yet.
	seedCart(t, db, quietCart("", 3*time.Hour))

	mail := &fakeTransport{}
	require.NoError(t, newTestCartWorker(db, mail).Sweep())

	assert.Empty(t, mail.sent)
}

func TestCartSweepSkipsEmptyCart(t *testing.T) {
	db := setupWorkerDB(t)
	cart := quietCart("a@example.com", 3*time.Hour)
	cart.Items = nil
	seedCart(t, db, cart)

	mail := &fakeTransport{}
	require.NoError(t, newTestCartWorker(db, mail).Sweep())

	assert.Empty(t, mail.sent)
}

func TestCartSweepRetriesAfterFallbackFailure(t *testing.T) {
	db := setupWorkerDB(t)
	cart := seedCart(t, db, quietCart("flaky@example.com", 3*time.Hour))

	mail := &fakeTransport{fail: map[string]bool{"flaky@example.com": true}}
	worker := newTestCartWorker(db, mail)
	require.NoError(t, worker.Sweep())

	// Failed fallback leaves the cart unmarked for the next pass.
	var reloaded models.AbandonedCart
	require.NoError(t, db.First(&reloaded, cart.ID).Error)
	assert.Nil(t, reloaded.EmailSentAt)
	assert.Equal(t, 0, reloaded.EmailCount)

	mail.fail = nil
	require.NoError(t, worker.Sweep())

	assert.Equal(t, []string{"flaky@example.com"}, mail.sent)
	require.NoError(t, db.First(&reloaded, cart.ID).Error)
	assert.NotNil(t, reloaded.EmailSentAt)
}

func TestCartSweepExpiresStaleCarts(t *testing.T) {
	db := setupWorkerDB(t)
	stale := quietCart("old@example.com", 45*24*time.Hour)
	now := time.Now()
	stale.EmailSentAt = &now // already emailed, still expires
	staleCart := seedCart(t, db, stale)
	freshCart := seedCart(t, db, quietCart("new@example.com", 3*time.Hour))

	mail := &fakeTransport{}
	require.NoError(t, newTestCartWorker(db, mail).Sweep())

	// Separate destinations: a populated primary key would leak into the
	// second lookup's conditions.
	var expired models.AbandonedCart
	require.NoError(t, db.First(&expired, staleCart.ID).Error)
	assert.Equal(t, models.CartStatusExpired, expired.Status)

	var fresh models.AbandonedCart
	require.NoError(t, db.First(&fresh, freshCart.ID).Error)
	assert.Equal(t, models.CartStatusAbandoned, fresh.Status)
}
