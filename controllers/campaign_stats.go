package controller

import (
	"leadmap/models"

	"github.com/gofiber/fiber/v2"
)

type statusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// GetCampaignStats aggregates recipient and email counts per status
func (cc *CampaignController) GetCampaignStats(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	campaignID := c.Params("id")

	var campaign models.Campaign
	if err := cc.DB.Where("id = ? AND user_id = ?", campaignID, user.ID).First(&campaign).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	var recipientCounts []statusCount
	if err := cc.DB.Model(&models.CampaignRecipient{}).
		Select("status, count(*) as count").
		Where("campaign_id = ?", campaign.ID).
		Group("status").
		Scan(&recipientCounts).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to aggregate recipients",
		})
	}

	var emailCounts []statusCount
	if err := cc.DB.Model(&models.Email{}).
		Select("status, count(*) as count").
		Where("campaign_id = ?", campaign.ID).
		Group("status").
		Scan(&emailCounts).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to aggregate emails",
		})
	}

	var replied int64
	if err := cc.DB.Model(&models.CampaignRecipient{}).
		Where("campaign_id = ? AND replied = ?", campaign.ID, true).
		Count(&replied).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to count replies",
		})
	}

	return c.JSON(fiber.Map{
		"campaign_id": campaign.ID,
		"status":      campaign.Status,
		"recipients":  recipientCounts,
		"emails":      emailCounts,
		"replied":     replied,
	})
}
