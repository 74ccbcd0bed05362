package worker

import (
	"log"
	"os"
	"testing"

	"leadmap/models"

	"github.com/emersion/go-imap"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newReplyFixture(t *testing.T) (*gorm.DB, *ReplyWorker, *models.Sender, *models.CampaignRecipient) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))

	sender := &models.Sender{
		UserID: 1, Name: "primary", FromEmail: "sales@example.com", FromName: "Sales",
		SMTPHost: "smtp.example.com", SMTPPort: 587, SMTPUsername: "sales", SMTPPassword: "enc", Encryption: "STARTTLS",
	}
	require.NoError(t, db.Create(sender).Error)

	campaign := &models.Campaign{
		UserID: 1, SenderID: sender.ID, Name: "outreach", Status: models.CampaignStatusRunning,
	}
	require.NoError(t, db.Create(campaign).Error)

	recipient := &models.CampaignRecipient{
		CampaignID: campaign.ID, UserID: 1,
		Email: "lead@example.com", Status: models.RecipientStatusInProgress,
	}
	require.NoError(t, db.Create(recipient).Error)

	rw := NewReplyWorker(db, log.New(os.Stdout, "REPLY-TEST: ", log.LstdFlags))
	return db, rw, sender, recipient
}

func TestProcessMessageMatchesFromAddress(t *testing.T) {
	db, rw, sender, recipient := newReplyFixture(t)

	msg := &imap.Message{Envelope: &imap.Envelope{
		From: []*imap.Address{{MailboxName: "Lead", HostName: "Example.com"}},
	}}
	require.NoError(t, rw.processMessage(msg, sender))

	var updated models.CampaignRecipient
	require.NoError(t, db.First(&updated, recipient.ID).Error)
	assert.True(t, updated.Replied)
	require.NotNil(t, updated.RepliedAt)
}

func TestProcessMessageIgnoresStrangers(t *testing.T) {
	db, rw, sender, recipient := newReplyFixture(t)

	msg := &imap.Message{Envelope: &imap.Envelope{
		From: []*imap.Address{{MailboxName: "nobody", HostName: "elsewhere.com"}},
	}}
	require.NoError(t, rw.processMessage(msg, sender))

	var updated models.CampaignRecipient
	require.NoError(t, db.First(&updated, recipient.ID).Error)
	assert.False(t, updated.Replied)
}

func TestMarkRepliedIsIdempotent(t *testing.T) {
	db, rw, _, recipient := newReplyFixture(t)

	require.NoError(t, rw.markReplied(recipient.CampaignID, recipient.ID))

	var first models.CampaignRecipient
	require.NoError(t, db.First(&first, recipient.ID).Error)
	firstAt := *first.RepliedAt

	require.NoError(t, rw.markReplied(recipient.CampaignID, recipient.ID))

	var second models.CampaignRecipient
	require.NoError(t, db.First(&second, recipient.ID).Error)
	assert.Equal(t, firstAt, *second.RepliedAt)
}
