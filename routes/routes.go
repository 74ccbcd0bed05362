package routes

import (
	"log"
	"os"

	"leadmap/config"
	controller "leadmap/controllers"
	"leadmap/middleware"
	"leadmap/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"gorm.io/gorm"
)

func SetupAuthRoutes(app *fiber.App, db *gorm.DB) {
	// Initialize logger
	authLogger := log.New(os.Stdout, "AUTH: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Auth routes group with logging middleware
	auth := app.Group("/auth", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Public auth endpoints (no authentication required)
	auth.Post("/register", controller.Register)
	auth.Post("/login", controller.Login)
	auth.Post("/refresh", controller.RefreshToken)

	// Protected auth endpoints (require valid JWT)
	protectedAuth := auth.Group("", middleware.Protected())
	protectedAuth.Post("/logout", controller.Logout)
	protectedAuth.Get("/me", controller.GetCurrentUser)

	// Log initialization
	authLogger.Println("Authentication routes initialized successfully")
}

func SetupAPIRoutes(app *fiber.App, db *gorm.DB) {
	campaignController := controller.NewCampaignController(db, log.New(os.Stdout, "CAMPAIGN: ", log.LstdFlags))

	// API group with versioning and protection
	api := app.Group("/api/v1", middleware.Protected(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Sender routes
	sender := api.Group("/senders")
	sender.Post("/", controller.CreateSender)
	sender.Get("/", controller.GetSenders)
	sender.Delete("/:id", controller.DeleteSender)

	// Campaign routes
	campaign := api.Group("/campaigns")
	campaign.Post("/", campaignController.CreateCampaign)
	campaign.Get("/", campaignController.GetCampaigns)
	campaign.Get("/:id", campaignController.GetCampaign)
	campaign.Put("/:id", campaignController.UpdateCampaign)
	campaign.Delete("/:id", campaignController.DeleteCampaign)
	campaign.Post("/:id/start", campaignController.StartCampaign)
	campaign.Post("/:id/pause", campaignController.PauseCampaign)
	campaign.Post("/:id/resume", campaignController.ResumeCampaign)
	campaign.Post("/:id/cancel", campaignController.CancelCampaign)
	campaign.Get("/:id/stats", campaignController.GetCampaignStats)

	// Recipient routes with enrollment rate limiting
	campaign.Post("/:id/recipients", middleware.EnrollRateLimiter(), campaignController.EnrollRecipient)
	campaign.Get("/:id/recipients", campaignController.GetRecipients)

	// Log initialization
	log.Println("API routes initialized successfully")
}

// SetupCronRoutes wires the scheduled-task endpoints. The platform cron
// may issue GET or POST, so both verbs hit the same handler.
func SetupCronRoutes(app *fiber.App, db *gorm.DB) {
	cronLogger := log.New(os.Stdout, "CRON: ", log.Ldate|log.Ltime|log.Lshortfile)
	cronController := controller.NewCronController(db, cronLogger, utils.NewGoogleCalendarClient())

	cron := app.Group("/cron", middleware.CronProtected(config.AppConfig.CronSecret, config.AppConfig.ServiceKey))

	register := func(path string, handler fiber.Handler) {
		cron.Get(path, handler)
		cron.Post(path, handler)
	}
	register("/refresh-tokens", cronController.RefreshTokens)
	register("/renew-webhooks", cronController.RenewWebhooks)
	register("/retry-sync", cronController.RetrySync)
	register("/cleanup", cronController.Cleanup)

	cronLogger.Println("Cron routes initialized successfully")
}

func SetupRoutes(app *fiber.App, db *gorm.DB) {
	// Setup health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Public inbound webhooks (provider callbacks, no JWT)
	webhookController := controller.NewCampaignController(db, log.New(os.Stdout, "WEBHOOK: ", log.LstdFlags))
	app.Post("/webhooks/reply", webhookController.HandleReplyWebhook)
	app.Post("/webhooks/bounce", webhookController.HandleBounceWebhook)
	app.Post("/unsubscribe", webhookController.Unsubscribe)

	// Setup auth routes
	SetupAuthRoutes(app, db)

	// Setup API routes
	SetupAPIRoutes(app, db)

	// Setup cron routes
	SetupCronRoutes(app, db)

	// Setup 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}
