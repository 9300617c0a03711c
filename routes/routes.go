package routes

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"gorm.io/gorm"

	"emberline/config"
	controller "emberline/controllers"
	"emberline/middleware"
	"emberline/utils"
)

// SetupRoutes wires the notification core's HTTP surface: the public
// storefront endpoints (events, cart, tracking) and the key-protected admin
// API (automations, broadcasts, queue, dashboard).
func SetupRoutes(app *fiber.App, db *gorm.DB, mail utils.Transport) {
	dispatcher := utils.NewTriggerDispatcher(db, log.New(os.Stdout, "TRIGGER: ", log.LstdFlags))
	broadcastSender := utils.NewBroadcastSender(db, mail, config.AppConfig.BaseURL, []byte(config.AppConfig.UnsubscribeKey))

	eventController := controller.NewEventController(db, dispatcher, log.New(os.Stdout, "EVENT: ", log.LstdFlags))
	cartController := controller.NewCartController(db, log.New(os.Stdout, "CART: ", log.LstdFlags))
	trackingController := controller.NewTrackingController(db, log.New(os.Stdout, "TRACK: ", log.LstdFlags), []byte(config.AppConfig.UnsubscribeKey))
	automationController := controller.NewAutomationController(db, log.New(os.Stdout, "AUTOMATION: ", log.LstdFlags))
	broadcastController := controller.NewBroadcastController(db, broadcastSender, log.New(os.Stdout, "BROADCAST: ", log.LstdFlags))
	queueController := controller.NewQueueController(db, log.New(os.Stdout, "QUEUE: ", log.LstdFlags))
	dashboardController := controller.NewDashboardController(db, log.New(os.Stdout, "DASHBOARD: ", log.LstdFlags))
	paymentController := controller.NewPaymentController(db, dispatcher, log.New(os.Stdout, "PAYMENT: ", log.LstdFlags), config.AppConfig.StripeWebhookKey)

	// Public endpoints hit by the storefront and by email clients.
	public := app.Group("", middleware.PublicRateLimiter(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	events := public.Group("/events")
	events.Post("/signup", eventController.HandleSignup)
	events.Post("/purchase", eventController.HandlePurchase)
	events.Post("/coaching-inquiry", eventController.HandleCoachingInquiry)
	events.Post("/contact", eventController.HandleContactForm)

	public.Post("/cart/capture", cartController.CaptureCart)
	public.Get("/cart/recover/:token", cartController.RecoverCart)

	public.Get("/t/o/:sentID", trackingController.HandleOpen)
	public.Get("/t/c/:sentID/:index", trackingController.HandleClick)
	public.Get("/t/u/:token", trackingController.HandleUnsubscribe)

	// Stripe signs its own requests; no rate limit, no admin key.
	app.Post("/webhooks/stripe", paymentController.HandleCheckoutWebhook)

	// Admin API
	api := app.Group("/api/v1", middleware.Protected(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	automation := api.Group("/automations")
	automation.Post("/", automationController.CreateAutomation)
	automation.Get("/", automationController.GetAutomations)
	automation.Get("/:id", automationController.GetAutomation)
	automation.Put("/:id", automationController.UpdateAutomation)
	automation.Delete("/:id", automationController.DeleteAutomation)

	broadcast := api.Group("/broadcasts")
	broadcast.Post("/", broadcastController.CreateBroadcast)
	broadcast.Get("/", broadcastController.GetBroadcasts)
	broadcast.Post("/:id/send", broadcastController.SendBroadcast)
	broadcast.Get("/:id/stats", broadcastController.GetBroadcastStats)

	queue := api.Group("/queue")
	queue.Get("/", queueController.GetQueueEntries)
	queue.Post("/:id/retry", queueController.RetryQueueEntry)

	api.Get("/dashboard/stats", dashboardController.GetDashboardStats)

	log.Println("Routes initialized successfully")
}
