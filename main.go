package main

import (
	"context"
	"log"
	"os"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"

	"leadmap/config"
	"leadmap/middleware"
	"leadmap/routes"
	"leadmap/utils"
	"leadmap/worker"
)

func main() {
	// Initialize logger
	logger := log.New(os.Stdout, "LEADMAP: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize Sentry when a DSN is configured
	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.Printf("Sentry initialization failed: %v", err)
		}
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Create Fiber app
	app := fiber.New()

	// Add CORS middleware
	app.Use(middleware.CORS())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize and start the dispatch worker
	dispatchWorker := worker.NewDispatchWorker(config.DB, utils.NewSMTPMailer(), log.New(os.Stdout, "DISPATCH: ", log.LstdFlags))
	go dispatchWorker.Start(ctx)

	// Reply detection over each sender's IMAP inbox
	replyWorker := worker.NewReplyWorker(config.DB, log.New(os.Stdout, "REPLY: ", log.LstdFlags))
	go replyWorker.Start(ctx)

	// Daily sender quota reset
	campaignSender := utils.NewCampaignSender(config.DB, log.New(os.Stdout, "SENDER: ", log.LstdFlags))
	go campaignSender.ResetDailyCounters()

	// Setup routes
	routes.SetupRoutes(app, config.DB)

	// Health check endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	// Start server
	logger.Printf("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
