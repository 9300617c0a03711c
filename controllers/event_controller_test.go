package controller

import (
	"io"
	"log"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"emberline/models"
	"emberline/utils"
)

func newEventApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	db := setupControllerDB(t)
	logger := log.New(io.Discard, "", 0)
	dispatcher := utils.NewTriggerDispatcher(db, logger)
	ec := NewEventController(db, dispatcher, logger)

	app := fiber.New()
	app.Post("/events/signup", ec.HandleSignup)
	app.Post("/events/coaching-inquiry", ec.HandleCoachingInquiry)
	return app, db
}

func TestSignupCreatesSubscribedSubscriber(t *testing.T) {
	app, db := newEventApp(t)

	status, body := postJSON(t, app, "/events/signup", fiber.Map{
		"email": "a@example.com",
		"name":  "Ana",
		"tags":  "newsletter",
	})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])

	var sub models.Subscriber
	require.NoError(t, db.Where("email = ?", "a@example.com").First(&sub).Error)
	assert.True(t, sub.Subscribed)
	assert.Equal(t, "storefront", sub.Source)
	assert.Equal(t, "Ana", sub.Name)
	assert.Equal(t, "newsletter", sub.Tags)
}

func TestEventUpsertMergesTagsAndKeepsOptOut(t *testing.T) {
	app, db := newEventApp(t)
	require.NoError(t, db.Create(&models.Subscriber{
		Email:      "a@example.com",
		Source:     "storefront",
		Tags:       "newsletter",
		Subscribed: false,
	}).Error)

	status, _ := postJSON(t, app, "/events/coaching-inquiry", fiber.Map{
		"email": "a@example.com",
		"name":  "Ana",
		"tags":  "coaching,newsletter",
	})
	require.Equal(t, fiber.StatusOK, status)

	var sub models.Subscriber
	require.NoError(t, db.Where("email = ?", "a@example.com").First(&sub).Error)
	assert.Equal(t, "newsletter,coaching", sub.Tags)
	assert.Equal(t, "Ana", sub.Name)
	// An event never re-subscribes someone who opted out.
	assert.False(t, sub.Subscribed)
}

func TestEventReportsEnqueuedCount(t *testing.T) {
	app, db := newEventApp(t)
	require.NoError(t, db.Create(&models.Automation{
		Name:        "Welcome",
		TriggerKind: models.TriggerSignup,
		Enabled:     true,
		Subject:     "hi",
		Body:        "hi {{name}}",
	}).Error)

	status, body := postJSON(t, app, "/events/signup", fiber.Map{"email": "a@example.com"})
	require.Equal(t, fiber.StatusOK, status)
	data := body["data"].(map[string]interface{})
	assert.EqualValues(t, 1, data["enqueued"])

	// No automation for this trigger: zero enqueued is still a success.
	status, body = postJSON(t, app, "/events/coaching-inquiry", fiber.Map{"email": "a@example.com"})
	require.Equal(t, fiber.StatusOK, status)
	data = body["data"].(map[string]interface{})
	assert.EqualValues(t, 0, data["enqueued"])
}
