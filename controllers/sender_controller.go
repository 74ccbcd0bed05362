package controller

import (
	"leadmap/config"
	"leadmap/models"
	"leadmap/utils"

	"github.com/gofiber/fiber/v2"
)

type senderInput struct {
	Name         string `json:"name" validate:"required,max=200"`
	FromEmail    string `json:"from_email" validate:"required,email"`
	FromName     string `json:"from_name" validate:"required,max=200"`
	SMTPHost     string `json:"smtp_host" validate:"required"`
	SMTPPort     int    `json:"smtp_port" validate:"required,min=1,max=65535"`
	SMTPUsername string `json:"smtp_username" validate:"required"`
	SMTPPassword string `json:"smtp_password" validate:"required"`
	Encryption   string `json:"encryption" validate:"required,oneof=SSL TLS STARTTLS"`
	IMAPHost     string `json:"imap_host"`
	IMAPPort     int    `json:"imap_port"`
	IMAPUsername string `json:"imap_username"`
	IMAPPassword string `json:"imap_password"`
	DailyLimit   int    `json:"daily_limit" validate:"min=0"`
}

// CreateSender registers a sending identity; SMTP and IMAP passwords are
// encrypted before they touch the database.
func CreateSender(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input senderInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	encryptedSMTP, err := utils.Encrypt(input.SMTPPassword)
	if err != nil {
		utils.LogError("sender_encrypt_failed", err, map[string]interface{}{"user_id": user.ID})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store credentials",
		})
	}
	encryptedIMAP, err := utils.Encrypt(input.IMAPPassword)
	if err != nil {
		utils.LogError("sender_encrypt_failed", err, map[string]interface{}{"user_id": user.ID})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store credentials",
		})
	}

	sender := models.Sender{
		UserID:       user.ID,
		Name:         input.Name,
		FromEmail:    input.FromEmail,
		FromName:     input.FromName,
		SMTPHost:     input.SMTPHost,
		SMTPPort:     input.SMTPPort,
		SMTPUsername: input.SMTPUsername,
		SMTPPassword: encryptedSMTP,
		Encryption:   input.Encryption,
		IMAPHost:     input.IMAPHost,
		IMAPPort:     input.IMAPPort,
		IMAPUsername: input.IMAPUsername,
		IMAPPassword: encryptedIMAP,
	}
	if input.DailyLimit > 0 {
		sender.DailyLimit = input.DailyLimit
	}

	if err := config.DB.Create(&sender).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create sender",
		})
	}

	sender.Sanitize()
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Sender created successfully",
		"sender":  sender,
	})
}

// GetSenders lists the user's sending identities without secrets
func GetSenders(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var senders []models.Sender
	if err := config.DB.Where("user_id = ?", user.ID).Find(&senders).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch senders",
		})
	}

	for i := range senders {
		senders[i].Sanitize()
	}
	return c.JSON(senders)
}

// DeleteSender removes a sending identity if no active campaign uses it
func DeleteSender(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	senderID := c.Params("id")

	var sender models.Sender
	if err := config.DB.Where("id = ? AND user_id = ?", senderID, user.ID).First(&sender).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sender not found",
		})
	}

	var active int64
	config.DB.Model(&models.Campaign{}).
		Where("sender_id = ? AND status IN ?", sender.ID,
			[]string{models.CampaignStatusScheduled, models.CampaignStatusRunning, models.CampaignStatusPaused}).
		Count(&active)
	if active > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Sender is used by an active campaign",
		})
	}

	if err := config.DB.Delete(&sender).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete sender",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Sender deleted successfully",
	})
}
