package controller

import (
	"strings"
	"time"

	"leadmap/models"
	"leadmap/utils"

	"github.com/gofiber/fiber/v2"
)

type enrollInput struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"max=200"`
}

// EnrollRecipient adds one contact to a campaign. The address is verified
// before enrollment; disposable and undeliverable addresses are rejected
// to protect sender reputation.
func (cc *CampaignController) EnrollRecipient(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	campaignID := c.Params("id")

	var campaign models.Campaign
	if err := cc.DB.Where("id = ? AND user_id = ?", campaignID, user.ID).First(&campaign).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	switch campaign.Status {
	case models.CampaignStatusCompleted, models.CampaignStatusCancelled:
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Campaign is no longer accepting recipients",
		})
	}

	var input enrollInput
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

	email := strings.ToLower(strings.TrimSpace(input.Email))

	verification, err := utils.VerifyEmailAddress(email)
	if err != nil {
		cc.Logger.Printf("verification of %s errored: %v", email, err)
	}
	if verification != nil && verification.Status != "valid" && verification.Status != "unknown" {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":   "Email address failed verification",
			"status":  verification.Status,
			"details": verification.Details,
		})
	}

	// A previously unsubscribed address stays out
	var optOuts int64
	cc.DB.Model(&models.Unsubscribe{}).Where("email = ?", email).Count(&optOuts)
	if optOuts > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Address has unsubscribed",
		})
	}

	var existing int64
	cc.DB.Model(&models.CampaignRecipient{}).
		Where("campaign_id = ? AND email = ?", campaign.ID, email).
		Count(&existing)
	if existing > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Recipient already enrolled",
		})
	}

	recipient := models.CampaignRecipient{
		CampaignID: campaign.ID,
		UserID:     user.ID,
		Email:      email,
		Name:       input.Name,
		Status:     models.RecipientStatusPending,
	}
	if err := cc.DB.Create(&recipient).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to enroll recipient",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":   "Recipient enrolled successfully",
		"recipient": recipient,
	})
}

// GetRecipients lists a campaign's enrollments
func (cc *CampaignController) GetRecipients(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	campaignID := c.Params("id")

	var campaign models.Campaign
	if err := cc.DB.Where("id = ? AND user_id = ?", campaignID, user.ID).First(&campaign).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	var recipients []models.CampaignRecipient
	if err := cc.DB.Where("campaign_id = ?", campaign.ID).Find(&recipients).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch recipients",
		})
	}

	return c.JSON(recipients)
}

// HandleReplyWebhook marks a recipient as replied. The sequencer applies
// the stop-on-reply rule the next time it resolves that recipient; the
// flag alone never cancels already-queued sends.
func (cc *CampaignController) HandleReplyWebhook(c *fiber.Ctx) error {
	var input struct {
		CampaignID uint   `json:"campaign_id" validate:"required"`
		Email      string `json:"email" validate:"required,email"`
	}
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

	email := strings.ToLower(strings.TrimSpace(input.Email))
	result := cc.DB.Model(&models.CampaignRecipient{}).
		Where("campaign_id = ? AND email = ? AND replied = ?", input.CampaignID, email, false).
		Updates(map[string]interface{}{
			"replied":    true,
			"replied_at": time.Now(),
		})
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to record reply",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Reply recorded",
		"updated": result.RowsAffected,
	})
}

// HandleBounceWebhook records a bounce and terminally marks the recipient
func (cc *CampaignController) HandleBounceWebhook(c *fiber.Ctx) error {
	var input struct {
		CampaignID uint   `json:"campaign_id"`
		SenderID   uint   `json:"sender_id" validate:"required"`
		Email      string `json:"email" validate:"required,email"`
		Type       string `json:"type" validate:"required,oneof=hard soft block"`
		Code       string `json:"code"`
		Message    string `json:"message"`
	}
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

	email := strings.ToLower(strings.TrimSpace(input.Email))

	bounce := models.Bounce{
		Email:    email,
		SenderID: input.SenderID,
		Type:     input.Type,
		Code:     input.Code,
		Message:  input.Message,
	}
	if input.CampaignID != 0 {
		bounce.CampaignID = &input.CampaignID
	}
	if err := cc.DB.Create(&bounce).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to record bounce",
		})
	}

	// Hard bounces end the sequence for that recipient
	if input.Type == "hard" || input.Type == "block" {
		query := cc.DB.Model(&models.CampaignRecipient{}).Where("email = ?", email)
		if input.CampaignID != 0 {
			query = query.Where("campaign_id = ?", input.CampaignID)
		}
		if err := query.Update("status", models.RecipientStatusBounced).Error; err != nil {
			cc.Logger.Printf("failed to mark recipient bounced for %s: %v", email, err)
		}
	}

	return c.JSON(fiber.Map{
		"message": "Bounce recorded",
	})
}

// Unsubscribe records an opt-out and terminally marks every enrollment of
// the address owned by the campaign's user
func (cc *CampaignController) Unsubscribe(c *fiber.Ctx) error {
	var input struct {
		Email      string `json:"email" validate:"required,email"`
		CampaignID uint   `json:"campaign_id"`
		Reason     string `json:"reason"`
	}
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

	email := strings.ToLower(strings.TrimSpace(input.Email))

	unsubscribe := models.Unsubscribe{
		Email:     email,
		Reason:    input.Reason,
		IPAddress: c.IP(),
	}
	if input.CampaignID != 0 {
		unsubscribe.CampaignID = &input.CampaignID
	}
	if err := cc.DB.Create(&unsubscribe).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to record unsubscribe",
		})
	}

	if err := cc.DB.Model(&models.CampaignRecipient{}).
		Where("email = ? AND status NOT IN ?", email, []string{
			models.RecipientStatusCompleted, models.RecipientStatusStopped,
			models.RecipientStatusCancelled, models.RecipientStatusBounced,
		}).
		Update("status", models.RecipientStatusUnsubscribed).Error; err != nil {
		cc.Logger.Printf("failed to mark recipients unsubscribed for %s: %v", email, err)
	}

	utils.LogEvent("recipient_unsubscribed", map[string]interface{}{
		"email":       email,
		"campaign_id": input.CampaignID,
	})

	return c.JSON(fiber.Map{
		"message": "Unsubscribed successfully",
	})
}
