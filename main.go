package main

import (
	"context"
	"log"
	"os"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"

	"emberline/config"
	"emberline/middleware"
	"emberline/routes"
	"emberline/utils"
	"emberline/worker"
)

func main() {
	logger := log.New(os.Stdout, "EMBERLINE: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Error reporting for the background sweeps
	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.Printf("Sentry init failed: %v", err)
		}
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Create Fiber app
	app := fiber.New()
	app.Use(middleware.CORS())

	mailer := utils.NewMailer(
		config.AppConfig.SMTPHost,
		config.AppConfig.SMTPPort,
		config.AppConfig.SMTPUsername,
		config.AppConfig.SMTPPassword,
		config.AppConfig.FromEmail,
		config.AppConfig.FromName,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Queue sweep: delivers due scheduled entries
	queueWorker := worker.NewQueueWorker(config.DB, mailer,
		log.New(os.Stdout, "QUEUE: ", log.LstdFlags), config.AppConfig.QueueSweepInterval)
	go queueWorker.Start(ctx)

	// Abandoned-cart sweep: recovery emails + expiry
	dispatcher := utils.NewTriggerDispatcher(config.DB, log.New(os.Stdout, "TRIGGER: ", log.LstdFlags))
	cartWorker := worker.NewCartWorker(config.DB, dispatcher, mailer,
		log.New(os.Stdout, "CART: ", log.LstdFlags),
		config.AppConfig.BaseURL,
		config.AppConfig.CartSweepInterval,
		config.AppConfig.CartInactivityWindow,
		config.AppConfig.CartExpiryWindow)
	go cartWorker.Start(ctx)

	// Scheduled broadcast drafts
	broadcastSender := utils.NewBroadcastSender(config.DB, mailer,
		config.AppConfig.BaseURL, []byte(config.AppConfig.UnsubscribeKey))
	broadcastWorker := worker.NewBroadcastWorker(config.DB, broadcastSender,
		log.New(os.Stdout, "BROADCAST: ", log.LstdFlags), config.AppConfig.QueueSweepInterval)
	go broadcastWorker.Start(ctx)

	// Setup routes
	routes.SetupRoutes(app, config.DB, mailer)

	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Start server
	logger.Printf("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
