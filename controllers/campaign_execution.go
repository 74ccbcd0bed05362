package controller

import (
	"time"

	"leadmap/models"
	"leadmap/utils"

	"github.com/gofiber/fiber/v2"
)

// StartCampaign moves a campaign to running and queues step 1 for every
// pending recipient. The dispatch worker picks the queued emails up once
// their scheduled time arrives; every later step is queued by the
// sequencer after the previous send.
func (cc *CampaignController) StartCampaign(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	campaignID := c.Params("id")

	var campaign models.Campaign
	if err := cc.DB.Where("id = ? AND user_id = ?", campaignID, user.ID).First(&campaign).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	if !campaign.CanTransition(models.CampaignStatusRunning) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Campaign cannot be started from status " + campaign.Status,
		})
	}

	var firstStep models.CampaignStep
	if err := cc.DB.Where("campaign_id = ? AND step_number = ?", campaign.ID, 1).
		First(&firstStep).Error; err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Campaign has no step 1",
		})
	}

	var recipients []models.CampaignRecipient
	if err := cc.DB.Where("campaign_id = ? AND status = ?", campaign.ID, models.RecipientStatusPending).
		Find(&recipients).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch recipients",
		})
	}

	now := time.Now()
	firstSendAt := now.
		Add(time.Duration(firstStep.DelayHours) * time.Hour).
		Add(time.Duration(firstStep.DelayDays) * 24 * time.Hour)

	tx := cc.DB.Begin()
	for i := range recipients {
		email := models.Email{
			UserID:              campaign.UserID,
			SenderID:            campaign.SenderID,
			CampaignID:          campaign.ID,
			CampaignStepID:      firstStep.ID,
			CampaignRecipientID: recipients[i].ID,
			ToEmail:             recipients[i].Email,
			Subject:             firstStep.Subject,
			BodyHTML:            firstStep.BodyHTML,
			Status:              models.EmailStatusQueued,
			ScheduledAt:         firstSendAt,
		}
		if err := tx.Create(&email).Error; err != nil {
			tx.Rollback()
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to queue initial emails",
			})
		}
		if err := tx.Model(&recipients[i]).Updates(map[string]interface{}{
			"status":       models.RecipientStatusQueued,
			"next_send_at": firstSendAt,
		}).Error; err != nil {
			tx.Rollback()
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to update recipients",
			})
		}
	}

	if err := tx.Model(&campaign).Updates(map[string]interface{}{
		"status":     models.CampaignStatusRunning,
		"started_at": now,
	}).Error; err != nil {
		tx.Rollback()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update campaign status",
		})
	}
	tx.Commit()

	utils.LogEvent("campaign_started", map[string]interface{}{
		"campaign_id": campaign.ID,
		"recipients":  len(recipients),
	})

	return c.JSON(fiber.Map{
		"message":          "Campaign started successfully",
		"queued_recipients": len(recipients),
	})
}

// PauseCampaign suspends dispatch; queued emails stay queued but the
// worker skips rows of paused campaigns.
func (cc *CampaignController) PauseCampaign(c *fiber.Ctx) error {
	return cc.transitionCampaign(c, models.CampaignStatusPaused, "Campaign paused successfully")
}

// ResumeCampaign returns a paused campaign to running
func (cc *CampaignController) ResumeCampaign(c *fiber.Ctx) error {
	return cc.transitionCampaign(c, models.CampaignStatusRunning, "Campaign resumed successfully")
}

// CancelCampaign terminally cancels a campaign, cancels its queued emails
// and marks non-terminal recipients cancelled.
func (cc *CampaignController) CancelCampaign(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	campaignID := c.Params("id")

	var campaign models.Campaign
	if err := cc.DB.Where("id = ? AND user_id = ?", campaignID, user.ID).First(&campaign).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	if !campaign.CanTransition(models.CampaignStatusCancelled) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Campaign cannot be cancelled from status " + campaign.Status,
		})
	}

	tx := cc.DB.Begin()
	if err := tx.Model(&models.Email{}).
		Where("campaign_id = ? AND status = ?", campaign.ID, models.EmailStatusQueued).
		Update("status", models.EmailStatusCancelled).Error; err != nil {
		tx.Rollback()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to cancel queued emails",
		})
	}
	if err := tx.Model(&models.CampaignRecipient{}).
		Where("campaign_id = ? AND status IN ?", campaign.ID,
			[]string{models.RecipientStatusPending, models.RecipientStatusQueued, models.RecipientStatusInProgress}).
		Update("status", models.RecipientStatusCancelled).Error; err != nil {
		tx.Rollback()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to cancel recipients",
		})
	}
	if err := tx.Model(&campaign).Updates(map[string]interface{}{
		"status":       models.CampaignStatusCancelled,
		"completed_at": time.Now(),
	}).Error; err != nil {
		tx.Rollback()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to cancel campaign",
		})
	}
	tx.Commit()

	return c.JSON(fiber.Map{
		"message": "Campaign cancelled successfully",
	})
}

func (cc *CampaignController) transitionCampaign(c *fiber.Ctx, target, message string) error {
	user := c.Locals("user").(*models.User)
	campaignID := c.Params("id")

	var campaign models.Campaign
	if err := cc.DB.Where("id = ? AND user_id = ?", campaignID, user.ID).First(&campaign).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	if !campaign.CanTransition(target) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Invalid status transition from " + campaign.Status + " to " + target,
		})
	}

	if err := cc.DB.Model(&campaign).Update("status", target).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update campaign status",
		})
	}

	return c.JSON(fiber.Map{
		"message": message,
	})
}
