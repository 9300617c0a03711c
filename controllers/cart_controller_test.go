package controller

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"emberline/config"
	"emberline/models"
)

func setupControllerDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, config.MigrateDB(db))
	return db
}

func newCartApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	db := setupControllerDB(t)
	cc := NewCartController(db, log.New(io.Discard, "", 0))

	app := fiber.New()
	app.Post("/cart/capture", cc.CaptureCart)
	app.Get("/cart/recover/:token", cc.RecoverCart)
	return app, db
}

func postJSON(t *testing.T, app *fiber.App, path string, payload interface{}) (int, map[string]interface{}) {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &decoded))
	return resp.StatusCode, decoded
}

func captureInput(email string, items ...CartItemInput) CaptureCartInput {
	return CaptureCartInput{
		Email:        email,
		CustomerName: "Ana",
		SessionID:    "sess-1",
		Items:        items,
	}
}

func TestCaptureCartCreatesSnapshot(t *testing.T) {
	app, db := newCartApp(t)

	status, body := postJSON(t, app, "/cart/capture", captureInput("a@example.com",
		CartItemInput{ProductID: "mug-01", Name: "Speckled Mug", PriceCents: 2400, Quantity: 2},
		CartItemInput{ProductID: "vase-03", Name: "Tall Vase", PriceCents: 4800, Quantity: 1},
	))
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])

	var cart models.AbandonedCart
	require.NoError(t, db.Preload("Items").First(&cart).Error)
	assert.Equal(t, models.CartStatusAbandoned, cart.Status)
	assert.EqualValues(t, 2*2400+4800, cart.TotalCents)
	assert.Equal(t, 3, cart.ItemCount)
	assert.NotEmpty(t, cart.RecoveryToken)
	assert.Len(t, cart.Items, 2)
}

func TestCaptureCartUpsertsWhileAbandoned(t *testing.T) {
	app, db := newCartApp(t)

	postJSON(t, app, "/cart/capture", captureInput("a@example.com",
		CartItemInput{ProductID: "mug-01", Name: "Speckled Mug", PriceCents: 2400, Quantity: 2},
	))
	status, _ := postJSON(t, app, "/cart/capture", captureInput("a@example.com",
		CartItemInput{ProductID: "vase-03", Name: "Tall Vase", PriceCents: 4800, Quantity: 1},
	))
	require.Equal(t, fiber.StatusOK, status)

	// One row per (email, abandoned): the second capture replaced the items.
	var count int64
	db.Model(&models.AbandonedCart{}).Count(&count)
	assert.EqualValues(t, 1, count)

	var cart models.AbandonedCart
	require.NoError(t, db.Preload("Items").First(&cart).Error)
	assert.EqualValues(t, 4800, cart.TotalCents)
	assert.Equal(t, 1, cart.ItemCount)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "vase-03", cart.Items[0].ProductID)
}

func TestCaptureCartDoesNotResetEmailMarker(t *testing.T) {
	app, db := newCartApp(t)

	postJSON(t, app, "/cart/capture", captureInput("a@example.com",
		CartItemInput{ProductID: "mug-01", Name: "Speckled Mug", PriceCents: 2400, Quantity: 1},
	))

	// Pretend the sweep already emailed this cart.
	require.NoError(t, db.Model(&models.AbandonedCart{}).
		Where("email = ?", "a@example.com").
		Updates(map[string]interface{}{"email_sent_at": gorm.Expr("CURRENT_TIMESTAMP"), "email_count": 1}).Error)

	postJSON(t, app, "/cart/capture", captureInput("a@example.com",
		CartItemInput{ProductID: "mug-01", Name: "Speckled Mug", PriceCents: 2400, Quantity: 3},
	))

	var cart models.AbandonedCart
	require.NoError(t, db.First(&cart).Error)
	assert.NotNil(t, cart.EmailSentAt)
	assert.Equal(t, 1, cart.EmailCount)
}

func TestCaptureCartValidation(t *testing.T) {
	app, _ := newCartApp(t)

	status, _ := postJSON(t, app, "/cart/capture", captureInput("not-an-email",
		CartItemInput{ProductID: "mug-01", Name: "Mug", PriceCents: 100, Quantity: 1},
	))
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = postJSON(t, app, "/cart/capture", captureInput("a@example.com"))
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestAbandonedCartUniqueWhileAbandoned(t *testing.T) {
	_, db := newCartApp(t)

	require.NoError(t, db.Create(&models.AbandonedCart{
		Email:          "a@example.com",
		RecoveryToken:  "tok-1",
		Status:         models.CartStatusAbandoned,
		LastActivityAt: time.Now(),
	}).Error)

	// A second live abandoned row for the same email is refused by the
	// store itself, so racing captures cannot both create one.
	err := db.Create(&models.AbandonedCart{
		Email:          "a@example.com",
		RecoveryToken:  "tok-2",
		Status:         models.CartStatusAbandoned,
		LastActivityAt: time.Now(),
	}).Error
	assert.Error(t, err)

	// Closed-out rows do not block a fresh abandonment.
	require.NoError(t, db.Model(&models.AbandonedCart{}).
		Where("email = ?", "a@example.com").
		Update("status", models.CartStatusRecovered).Error)
	require.NoError(t, db.Create(&models.AbandonedCart{
		Email:          "a@example.com",
		RecoveryToken:  "tok-3",
		Status:         models.CartStatusAbandoned,
		LastActivityAt: time.Now(),
	}).Error)
}

func TestRecoverCartByToken(t *testing.T) {
	app, db := newCartApp(t)

	postJSON(t, app, "/cart/capture", captureInput("a@example.com",
		CartItemInput{ProductID: "mug-01", Name: "Speckled Mug", PriceCents: 2400, Quantity: 1},
	))

	var cart models.AbandonedCart
	require.NoError(t, db.First(&cart).Error)

	req := httptest.NewRequest("GET", "/cart/recover/"+cart.RecoveryToken, nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	data := decoded["data"].(map[string]interface{})
	assert.Equal(t, "a@example.com", data["email"])
	assert.Len(t, data["items"], 1)
}

func TestRecoverCartGoneStates(t *testing.T) {
	app, db := newCartApp(t)

	postJSON(t, app, "/cart/capture", captureInput("a@example.com",
		CartItemInput{ProductID: "mug-01", Name: "Speckled Mug", PriceCents: 2400, Quantity: 1},
	))
	var cart models.AbandonedCart
	require.NoError(t, db.First(&cart).Error)
	require.NoError(t, db.Model(&cart).Update("status", models.CartStatusRecovered).Error)

	resp, err := app.Test(httptest.NewRequest("GET", "/cart/recover/"+cart.RecoveryToken, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusGone, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/cart/recover/unknown-token", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
