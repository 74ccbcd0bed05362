package controller

import (
	"log"

	"leadmap/models"
	"leadmap/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type CampaignController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewCampaignController(db *gorm.DB, logger *log.Logger) *CampaignController {
	return &CampaignController{
		DB:     db,
		Logger: logger,
	}
}

type campaignStepInput struct {
	StepNumber  int    `json:"step_number" validate:"required,min=1"`
	DelayHours  int    `json:"delay_hours" validate:"min=0"`
	DelayDays   int    `json:"delay_days" validate:"min=0"`
	Subject     string `json:"subject" validate:"required"`
	BodyHTML    string `json:"body_html" validate:"required"`
	StopOnReply *bool  `json:"stop_on_reply"`
}

type createCampaignInput struct {
	Name        string              `json:"name" validate:"required,min=1,max=200"`
	Description string              `json:"description"`
	SenderID    uint                `json:"sender_id" validate:"required"`
	StopOnReply *bool               `json:"stop_on_reply"`
	Steps       []campaignStepInput `json:"steps" validate:"required,min=1,dive"`
}

// CreateCampaign creates a campaign and its ordered steps in one
// transaction. Step numbers must be contiguous starting at 1; the
// sequencer resolves the next stage by exact number match, so a gap would
// silently end the sequence early.
func (cc *CampaignController) CreateCampaign(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input createCampaignInput
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
	if err := validateStepNumbers(input.Steps); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	// Sender must belong to the same user
	var sender models.Sender
	if err := cc.DB.Where("id = ? AND user_id = ?", input.SenderID, user.ID).First(&sender).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sender not found",
		})
	}

	tx := cc.DB.Begin()

	campaign := models.Campaign{
		UserID:      user.ID,
		SenderID:    sender.ID,
		Name:        input.Name,
		Description: input.Description,
		StopOnReply: input.StopOnReply,
		Status:      models.CampaignStatusDraft,
	}
	if err := tx.Create(&campaign).Error; err != nil {
		tx.Rollback()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create campaign",
		})
	}

	for _, stepInput := range input.Steps {
		step := models.CampaignStep{
			CampaignID:  campaign.ID,
			StepNumber:  stepInput.StepNumber,
			DelayHours:  stepInput.DelayHours,
			DelayDays:   stepInput.DelayDays,
			Subject:     stepInput.Subject,
			BodyHTML:    stepInput.BodyHTML,
			StopOnReply: stepInput.StopOnReply,
		}
		if err := tx.Create(&step).Error; err != nil {
			tx.Rollback()
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to create campaign step",
			})
		}
	}

	tx.Commit()

	cc.DB.Preload("Steps").First(&campaign, campaign.ID)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":  "Campaign created successfully",
		"campaign": campaign,
	})
}

func validateStepNumbers(steps []campaignStepInput) error {
	seen := make(map[int]bool, len(steps))
	for _, s := range steps {
		if seen[s.StepNumber] {
			return fiber.NewError(fiber.StatusBadRequest, "duplicate step number")
		}
		seen[s.StepNumber] = true
	}
	for i := 1; i <= len(steps); i++ {
		if !seen[i] {
			return fiber.NewError(fiber.StatusBadRequest, "step numbers must be contiguous starting at 1")
		}
	}
	return nil
}

// GetCampaigns returns a list of all campaigns for the user
func (cc *CampaignController) GetCampaigns(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var campaigns []models.Campaign
	if err := cc.DB.Where("user_id = ?", user.ID).Find(&campaigns).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch campaigns",
		})
	}

	return c.JSON(campaigns)
}

// GetCampaign returns a single campaign with its steps
func (cc *CampaignController) GetCampaign(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	campaignID := c.Params("id")

	var campaign models.Campaign
	if err := cc.DB.Preload("Steps").
		Where("id = ? AND user_id = ?", campaignID, user.ID).
		First(&campaign).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	return c.JSON(campaign)
}

// UpdateCampaign edits name/description/stop_on_reply on a draft campaign.
// Once steps begin executing the campaign is immutable except for
// operator-driven status changes.
func (cc *CampaignController) UpdateCampaign(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	campaignID := c.Params("id")

	var campaign models.Campaign
	if err := cc.DB.Where("id = ? AND user_id = ?", campaignID, user.ID).First(&campaign).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	if campaign.Status != models.CampaignStatusDraft {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Only draft campaigns can be edited",
		})
	}

	var input struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		StopOnReply *bool   `json:"stop_on_reply"`
	}
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	updates := map[string]interface{}{}
	if input.Name != nil {
		updates["name"] = *input.Name
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.StopOnReply != nil {
		updates["stop_on_reply"] = *input.StopOnReply
	}

	if len(updates) > 0 {
		if err := cc.DB.Model(&campaign).Updates(updates).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to update campaign",
			})
		}
	}

	return c.JSON(fiber.Map{
		"message":  "Campaign updated successfully",
		"campaign": campaign,
	})
}

// DeleteCampaign removes a draft or terminal campaign and its children
func (cc *CampaignController) DeleteCampaign(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	campaignID := c.Params("id")

	var campaign models.Campaign
	if err := cc.DB.Where("id = ? AND user_id = ?", campaignID, user.ID).First(&campaign).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	switch campaign.Status {
	case models.CampaignStatusDraft, models.CampaignStatusCompleted, models.CampaignStatusCancelled:
	default:
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Stop the campaign before deleting it",
		})
	}

	tx := cc.DB.Begin()
	if err := tx.Where("campaign_id = ?", campaign.ID).Delete(&models.Email{}).Error; err != nil {
		tx.Rollback()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to delete campaign emails"})
	}
	if err := tx.Where("campaign_id = ?", campaign.ID).Delete(&models.CampaignRecipient{}).Error; err != nil {
		tx.Rollback()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to delete campaign recipients"})
	}
	if err := tx.Where("campaign_id = ?", campaign.ID).Delete(&models.CampaignStep{}).Error; err != nil {
		tx.Rollback()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to delete campaign steps"})
	}
	if err := tx.Delete(&campaign).Error; err != nil {
		tx.Rollback()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to delete campaign"})
	}
	tx.Commit()

	return c.JSON(fiber.Map{
		"message": "Campaign deleted successfully",
	})
}
