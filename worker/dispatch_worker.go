package worker

import (
	"context"
	"log"
	"time"

	"leadmap/models"
	"leadmap/utils"

	"gorm.io/gorm"
)

// dispatchBatchSize caps how many due emails one tick picks up
const dispatchBatchSize = 50

// DispatchWorker drains the queued-email table: due rows are sent through
// the owning sender's SMTP account, and after each successful send the
// sequencer is tail-called to queue the recipient's next step. The
// sequencer call is best-effort; its failure never fails the send.
type DispatchWorker struct {
	DB        *gorm.DB
	Mailer    utils.MailService
	Sequencer *utils.Sequencer
	Pool      *utils.CampaignSender
	Logger    *log.Logger
}

func NewDispatchWorker(db *gorm.DB, mailer utils.MailService, logger *log.Logger) *DispatchWorker {
	return &DispatchWorker{
		DB:        db,
		Mailer:    mailer,
		Sequencer: utils.NewSequencer(db, logger),
		Pool:      utils.NewCampaignSender(db, logger),
		Logger:    logger,
	}
}

func (dw *DispatchWorker) Start(ctx context.Context) {
	// Initial delay to let the server start up
	time.Sleep(10 * time.Second)

	dw.Logger.Println("Dispatch worker started")

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			dw.Logger.Println("Dispatch worker shutting down...")
			return
		case <-ticker.C:
			dw.ProcessDueEmails()
		}
	}
}

// ProcessDueEmails sends every queued email whose scheduled time has
// arrived. Row failures are recorded on the row and the loop continues.
func (dw *DispatchWorker) ProcessDueEmails() {
	var due []models.Email
	if err := dw.DB.Where("status = ? AND scheduled_at <= ?", models.EmailStatusQueued, time.Now()).
		Order("scheduled_at").
		Limit(dispatchBatchSize).
		Find(&due).Error; err != nil {
		dw.Logger.Printf("Error fetching due emails: %v", err)
		return
	}

	for i := range due {
		dw.processEmail(&due[i])
	}
}

func (dw *DispatchWorker) processEmail(email *models.Email) {
	var campaign models.Campaign
	if err := dw.DB.First(&campaign, email.CampaignID).Error; err != nil {
		dw.Logger.Printf("Campaign %d not found for email %d: %v", email.CampaignID, email.ID, err)
		return
	}
	if campaign.Status != models.CampaignStatusRunning {
		// Paused campaigns keep their queue; terminal ones surrender it
		if campaign.Status == models.CampaignStatusCancelled || campaign.Status == models.CampaignStatusCompleted {
			dw.markCancelled(email)
		}
		return
	}

	var recipient models.CampaignRecipient
	if err := dw.DB.First(&recipient, email.CampaignRecipientID).Error; err != nil {
		dw.Logger.Printf("Recipient %d not found for email %d: %v", email.CampaignRecipientID, email.ID, err)
		return
	}
	if recipient.IsTerminal() {
		dw.markCancelled(email)
		return
	}

	var sender models.Sender
	if err := dw.DB.First(&sender, email.SenderID).Error; err != nil {
		dw.Logger.Printf("Sender %d not found for email %d: %v", email.SenderID, email.ID, err)
		return
	}
	if sender.SentToday >= sender.DailyLimit {
		// Rotate to the user's sender with the most remaining capacity;
		// with everyone exhausted the row stays queued until the next tick
		// after the midnight reset
		alt, err := dw.Pool.RotateSender(sender.UserID)
		if err != nil {
			return
		}
		if err := dw.DB.Model(email).Update("sender_id", alt.ID).Error; err != nil {
			dw.Logger.Printf("Failed to reassign email %d to sender %d: %v", email.ID, alt.ID, err)
			return
		}
		dw.Logger.Printf("Sender %d exhausted, email %d rotated to sender %d", sender.ID, email.ID, alt.ID)
		sender = *alt
		email.SenderID = alt.ID
	}

	// Claim the row before dialing so an overlapping tick skips it
	claim := dw.DB.Model(&models.Email{}).
		Where("id = ? AND status = ?", email.ID, models.EmailStatusQueued).
		Update("status", models.EmailStatusSending)
	if claim.Error != nil || claim.RowsAffected == 0 {
		return
	}

	messageID, err := dw.Mailer.Send(&sender, email)
	if err != nil {
		dw.Logger.Printf("Failed to send email %d: %v", email.ID, err)
		if dbErr := dw.DB.Model(email).Updates(map[string]interface{}{
			"status":     models.EmailStatusFailed,
			"last_error": err.Error(),
		}).Error; dbErr != nil {
			dw.Logger.Printf("Failed to record send failure for email %d: %v", email.ID, dbErr)
		}
		return
	}

	now := time.Now()
	if err := dw.DB.Model(email).Updates(map[string]interface{}{
		"status":     models.EmailStatusSent,
		"message_id": messageID,
		"sent_at":    now,
	}).Error; err != nil {
		dw.Logger.Printf("Failed to mark email %d sent: %v", email.ID, err)
	}

	if err := dw.Pool.UpdateSenderUsage(sender.ID); err != nil {
		dw.Logger.Printf("Failed to update sender %d usage: %v", sender.ID, err)
	}

	if err := dw.DB.Model(&models.CampaignStep{}).
		Where("id = ?", email.CampaignStepID).
		Update("sent_count", gorm.Expr("sent_count + ?", 1)).Error; err != nil {
		dw.Logger.Printf("Failed to bump sent count for step %d: %v", email.CampaignStepID, err)
	}

	if !recipient.IsTerminal() && recipient.Status != models.RecipientStatusInProgress {
		if err := dw.DB.Model(&recipient).
			Update("status", models.RecipientStatusInProgress).Error; err != nil {
			dw.Logger.Printf("Failed to mark recipient %d in progress: %v", recipient.ID, err)
		}
	}

	// Fire-and-forget tail call; the outcome is logged, never acted on
	outcome := dw.Sequencer.ScheduleNextStep(email.CampaignID, email.CampaignRecipientID, email.CampaignStepID)
	dw.Logger.Printf("Email %d sent, recipient %d outcome: %s", email.ID, email.CampaignRecipientID, outcome)

	if outcome == utils.OutcomeCompleted {
		dw.maybeCompleteCampaign(&campaign)
	}
}

func (dw *DispatchWorker) markCancelled(email *models.Email) {
	if err := dw.DB.Model(email).Update("status", models.EmailStatusCancelled).Error; err != nil {
		dw.Logger.Printf("Failed to cancel email %d: %v", email.ID, err)
	}
}

// maybeCompleteCampaign marks a running campaign completed once every
// recipient has reached a terminal state
func (dw *DispatchWorker) maybeCompleteCampaign(campaign *models.Campaign) {
	var remaining int64
	if err := dw.DB.Model(&models.CampaignRecipient{}).
		Where("campaign_id = ? AND status IN ?", campaign.ID, []string{
			models.RecipientStatusPending, models.RecipientStatusQueued, models.RecipientStatusInProgress,
		}).
		Count(&remaining).Error; err != nil {
		dw.Logger.Printf("Failed to count remaining recipients for campaign %d: %v", campaign.ID, err)
		return
	}
	if remaining > 0 {
		return
	}
	if !campaign.CanTransition(models.CampaignStatusCompleted) {
		return
	}
	if err := dw.DB.Model(campaign).Updates(map[string]interface{}{
		"status":       models.CampaignStatusCompleted,
		"completed_at": time.Now(),
	}).Error; err != nil {
		dw.Logger.Printf("Failed to complete campaign %d: %v", campaign.ID, err)
	}
}
