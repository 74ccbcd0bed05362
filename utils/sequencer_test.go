package utils

import (
	"log"
	"os"
	"testing"
	"time"

	"leadmap/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))
	return db
}

func newTestSequencer(t *testing.T, db *gorm.DB) *Sequencer {
	t.Helper()
	return NewSequencer(db, log.New(os.Stdout, "TEST: ", log.LstdFlags))
}

// seedCampaign creates a campaign with the given steps and one recipient,
// returning the campaign, its steps ordered by step number, and the recipient.
func seedCampaign(t *testing.T, db *gorm.DB, campaign *models.Campaign, steps ...models.CampaignStep) (*models.Campaign, []models.CampaignStep, *models.CampaignRecipient) {
	t.Helper()
	campaign.UserID = 1
	campaign.SenderID = 1
	if campaign.Name == "" {
		campaign.Name = "outreach"
	}
	campaign.Status = models.CampaignStatusRunning
	require.NoError(t, db.Create(campaign).Error)

	for i := range steps {
		steps[i].CampaignID = campaign.ID
		if steps[i].Subject == "" {
			steps[i].Subject = "hello"
		}
		require.NoError(t, db.Create(&steps[i]).Error)
	}

	recipient := &models.CampaignRecipient{
		CampaignID: campaign.ID,
		UserID:     1,
		Email:      "lead@example.com",
		Status:     models.RecipientStatusInProgress,
	}
	require.NoError(t, db.Create(recipient).Error)
	return campaign, steps, recipient
}

func TestScheduleNextStepQueuesFollowup(t *testing.T) {
	db := newTestDB(t)
	s := newTestSequencer(t, db)
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { return now }

	campaign, steps, recipient := seedCampaign(t, db,
		&models.Campaign{},
		models.CampaignStep{StepNumber: 1},
		models.CampaignStep{StepNumber: 2, DelayHours: 2, DelayDays: 1, Subject: "followup", BodyHTML: "<p>hi</p>"},
	)

	outcome := s.ScheduleNextStep(campaign.ID, recipient.ID, steps[0].ID)
	assert.Equal(t, OutcomeScheduled, outcome)

	var email models.Email
	require.NoError(t, db.Where("campaign_recipient_id = ?", recipient.ID).First(&email).Error)
	assert.Equal(t, steps[1].ID, email.CampaignStepID)
	assert.Equal(t, "followup", email.Subject)
	assert.Equal(t, models.EmailStatusQueued, email.Status)

	// delay_hours and delay_days stack
	wantAt := now.Add(2*time.Hour + 24*time.Hour)
	assert.WithinDuration(t, wantAt, email.ScheduledAt, time.Second)

	var updated models.CampaignRecipient
	require.NoError(t, db.First(&updated, recipient.ID).Error)
	require.NotNil(t, updated.NextSendAt)
	assert.WithinDuration(t, wantAt, *updated.NextSendAt, time.Second)
}

func TestScheduleNextStepCompletesAtSequenceEnd(t *testing.T) {
	db := newTestDB(t)
	s := newTestSequencer(t, db)

	campaign, steps, recipient := seedCampaign(t, db,
		&models.Campaign{},
		models.CampaignStep{StepNumber: 1},
	)

	outcome := s.ScheduleNextStep(campaign.ID, recipient.ID, steps[0].ID)
	assert.Equal(t, OutcomeCompleted, outcome)

	var updated models.CampaignRecipient
	require.NoError(t, db.First(&updated, recipient.ID).Error)
	assert.Equal(t, models.RecipientStatusCompleted, updated.Status)

	var queued int64
	require.NoError(t, db.Model(&models.Email{}).Where("campaign_recipient_id = ?", recipient.ID).Count(&queued).Error)
	assert.Zero(t, queued)
}

func TestScheduleNextStepNumberingGapEndsSequence(t *testing.T) {
	db := newTestDB(t)
	s := newTestSequencer(t, db)

	// Step 3 exists but step 2 does not; the exact-match lookup treats the
	// gap as the end of the sequence
	campaign, steps, recipient := seedCampaign(t, db,
		&models.Campaign{},
		models.CampaignStep{StepNumber: 1},
		models.CampaignStep{StepNumber: 3},
	)

	outcome := s.ScheduleNextStep(campaign.ID, recipient.ID, steps[0].ID)
	assert.Equal(t, OutcomeCompleted, outcome)
}

func TestScheduleNextStepStopsOnReplyByDefault(t *testing.T) {
	db := newTestDB(t)
	s := newTestSequencer(t, db)

	campaign, steps, recipient := seedCampaign(t, db,
		&models.Campaign{},
		models.CampaignStep{StepNumber: 1},
		models.CampaignStep{StepNumber: 2},
	)
	require.NoError(t, db.Model(recipient).Update("replied", true).Error)

	outcome := s.ScheduleNextStep(campaign.ID, recipient.ID, steps[0].ID)
	assert.Equal(t, OutcomeStopped, outcome)

	var updated models.CampaignRecipient
	require.NoError(t, db.First(&updated, recipient.ID).Error)
	assert.Equal(t, models.RecipientStatusStopped, updated.Status)
}

func TestScheduleNextStepContinuesOnlyWhenBothLevelsOptOut(t *testing.T) {
	cases := []struct {
		name     string
		campaign *bool
		step     *bool
		want     Outcome
	}{
		{"both unset", nil, nil, OutcomeStopped},
		{"campaign false only", Pointer(false), nil, OutcomeStopped},
		{"step false only", nil, Pointer(false), OutcomeStopped},
		{"campaign false step true", Pointer(false), Pointer(true), OutcomeStopped},
		{"both false", Pointer(false), Pointer(false), OutcomeScheduled},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db := newTestDB(t)
			s := newTestSequencer(t, db)

			campaign, steps, recipient := seedCampaign(t, db,
				&models.Campaign{StopOnReply: tc.campaign},
				models.CampaignStep{StepNumber: 1, StopOnReply: tc.step},
				models.CampaignStep{StepNumber: 2},
			)
			require.NoError(t, db.Model(recipient).Update("replied", true).Error)

			outcome := s.ScheduleNextStep(campaign.ID, recipient.ID, steps[0].ID)
			assert.Equal(t, tc.want, outcome)
		})
	}
}

func TestScheduleNextStepSilentOnMissingRows(t *testing.T) {
	db := newTestDB(t)
	s := newTestSequencer(t, db)

	campaign, steps, recipient := seedCampaign(t, db,
		&models.Campaign{},
		models.CampaignStep{StepNumber: 1},
		models.CampaignStep{StepNumber: 2},
	)

	assert.Equal(t, OutcomeNone, s.ScheduleNextStep(9999, recipient.ID, steps[0].ID))
	assert.Equal(t, OutcomeNone, s.ScheduleNextStep(campaign.ID, 9999, steps[0].ID))
	assert.Equal(t, OutcomeNone, s.ScheduleNextStep(campaign.ID, recipient.ID, 9999))

	// Nothing was queued and the recipient is untouched
	var queued int64
	require.NoError(t, db.Model(&models.Email{}).Count(&queued).Error)
	assert.Zero(t, queued)

	var updated models.CampaignRecipient
	require.NoError(t, db.First(&updated, recipient.ID).Error)
	assert.Equal(t, models.RecipientStatusInProgress, updated.Status)
	assert.Nil(t, updated.NextSendAt)
}

func TestScheduleNextStepReplyAfterLastStepStops(t *testing.T) {
	db := newTestDB(t)
	s := newTestSequencer(t, db)

	// The reply check runs before the next-step lookup, so a replied
	// recipient on the final step ends as stopped, not completed
	campaign, steps, recipient := seedCampaign(t, db,
		&models.Campaign{},
		models.CampaignStep{StepNumber: 1},
	)
	require.NoError(t, db.Model(recipient).Update("replied", true).Error)

	outcome := s.ScheduleNextStep(campaign.ID, recipient.ID, steps[0].ID)
	assert.Equal(t, OutcomeStopped, outcome)
}
