package utils

import (
	"log"
	"time"

	"leadmap/models"

	"gorm.io/gorm"
)

// Outcome describes what the sequencer decided for a recipient.
type Outcome string

const (
	OutcomeNone      Outcome = "none"      // nothing to do (lookup failed or write failed)
	OutcomeStopped   Outcome = "stopped"   // recipient replied and stop-on-reply applied
	OutcomeCompleted Outcome = "completed" // no further step exists
	OutcomeScheduled Outcome = "scheduled" // next step queued
)

// Sequencer advances campaign recipients through their step sequence.
type Sequencer struct {
	DB     *gorm.DB
	Logger *log.Logger
	Now    func() time.Time
}

func NewSequencer(db *gorm.DB, logger *log.Logger) *Sequencer {
	return &Sequencer{
		DB:     db,
		Logger: logger,
		Now:    time.Now,
	}
}

// ScheduleNextStep decides a recipient's next state after a step's message
// has been sent. It runs as a non-critical tail call after the send, so it
// never returns an error: every failure is logged and abandons the rest of
// the work, leaving the recipient to stall visibly on a stale next_send_at.
//
// A recipient that replied is stopped unless stop_on_reply is explicitly
// false at BOTH the campaign and the step level. The next stage is looked
// up by exact step_number match, so a numbering gap ends the sequence as
// completed.
func (s *Sequencer) ScheduleNextStep(campaignID, recipientID, currentStepID uint) Outcome {
	var campaign models.Campaign
	if err := s.DB.First(&campaign, campaignID).Error; err != nil {
		s.Logger.Printf("schedule next step: campaign %d lookup failed: %v", campaignID, err)
		return OutcomeNone
	}

	var currentStep models.CampaignStep
	if err := s.DB.Where("id = ? AND campaign_id = ?", currentStepID, campaignID).
		First(&currentStep).Error; err != nil {
		s.Logger.Printf("schedule next step: step %d lookup failed: %v", currentStepID, err)
		return OutcomeNone
	}

	var recipient models.CampaignRecipient
	if err := s.DB.Where("id = ? AND campaign_id = ?", recipientID, campaignID).
		First(&recipient).Error; err != nil {
		s.Logger.Printf("schedule next step: recipient %d lookup failed: %v", recipientID, err)
		return OutcomeNone
	}

	if recipient.Replied && stopOnReply(campaign.StopOnReply, currentStep.StopOnReply) {
		if err := s.DB.Model(&recipient).
			Update("status", models.RecipientStatusStopped).Error; err != nil {
			s.Logger.Printf("schedule next step: failed to stop recipient %d: %v", recipientID, err)
			return OutcomeNone
		}
		return OutcomeStopped
	}

	var nextStep models.CampaignStep
	err := s.DB.Where("campaign_id = ? AND step_number = ?", campaignID, currentStep.StepNumber+1).
		First(&nextStep).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			s.Logger.Printf("schedule next step: next step lookup failed for campaign %d: %v", campaignID, err)
			return OutcomeNone
		}
		// Sequence exhausted
		if err := s.DB.Model(&recipient).
			Update("status", models.RecipientStatusCompleted).Error; err != nil {
			s.Logger.Printf("schedule next step: failed to complete recipient %d: %v", recipientID, err)
			return OutcomeNone
		}
		return OutcomeCompleted
	}

	// Hours and days are additive, not exclusive
	nextSendAt := s.Now().
		Add(time.Duration(nextStep.DelayHours) * time.Hour).
		Add(time.Duration(nextStep.DelayDays) * 24 * time.Hour)

	email := models.Email{
		UserID:              campaign.UserID,
		SenderID:            campaign.SenderID,
		CampaignID:          campaign.ID,
		CampaignStepID:      nextStep.ID,
		CampaignRecipientID: recipient.ID,
		ToEmail:             recipient.Email,
		Subject:             nextStep.Subject,
		BodyHTML:            nextStep.BodyHTML,
		Status:              models.EmailStatusQueued,
		ScheduledAt:         nextSendAt,
	}
	if err := s.DB.Create(&email).Error; err != nil {
		s.Logger.Printf("schedule next step: failed to queue email for recipient %d: %v", recipientID, err)
		return OutcomeNone
	}

	if err := s.DB.Model(&recipient).Update("next_send_at", nextSendAt).Error; err != nil {
		s.Logger.Printf("schedule next step: failed to update next_send_at for recipient %d: %v", recipientID, err)
		return OutcomeNone
	}

	return OutcomeScheduled
}

// stopOnReply applies the default-true-unless-false rule at both levels:
// the sequence continues past a reply only when the campaign AND the step
// both explicitly disable stop-on-reply.
func stopOnReply(campaignLevel, stepLevel *bool) bool {
	campaignStops := campaignLevel == nil || *campaignLevel
	stepStops := stepLevel == nil || *stepLevel
	return campaignStops || stepStops
}
