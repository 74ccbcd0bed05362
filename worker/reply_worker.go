package worker

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"strings"
	"time"

	"leadmap/models"
	"leadmap/utils"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"gorm.io/gorm"
)

// ReplyWorker polls each sender's IMAP inbox for unseen messages and
// marks campaign recipients as replied. Matching is by the References /
// In-Reply-To headers against our stored Message-IDs, falling back to
// the From address of an active enrollment.
type ReplyWorker struct {
	db     *gorm.DB
	logger *log.Logger
}

func NewReplyWorker(db *gorm.DB, logger *log.Logger) *ReplyWorker {
	return &ReplyWorker{
		db:     db,
		logger: logger,
	}
}

func (rw *ReplyWorker) Start(ctx context.Context) {
	rw.logger.Println("Reply worker started")
	ticker := time.NewTicker(5 * time.Minute)

	for {
		select {
		case <-ticker.C:
			rw.checkAllSenders()
		case <-ctx.Done():
			rw.logger.Println("Reply worker shutting down...")
			ticker.Stop()
			return
		}
	}
}

func (rw *ReplyWorker) checkAllSenders() {
	var senders []models.Sender
	if err := rw.db.Where("imap_host IS NOT NULL AND imap_host != ''").Find(&senders).Error; err != nil {
		rw.logger.Printf("Failed to fetch senders: %v", err)
		return
	}

	for i := range senders {
		if err := rw.checkSender(&senders[i]); err != nil {
			rw.logger.Printf("Reply check failed for sender %d: %v", senders[i].ID, err)
		}
	}
}

func (rw *ReplyWorker) checkSender(sender *models.Sender) error {
	password, err := utils.Decrypt(sender.IMAPPassword)
	if err != nil {
		return fmt.Errorf("failed to decrypt IMAP password: %v", err)
	}

	imapAddr := fmt.Sprintf("%s:%d", sender.IMAPHost, sender.IMAPPort)
	imapClient, err := client.DialTLS(imapAddr, &tls.Config{
		InsecureSkipVerify: false,
		ServerName:         sender.IMAPHost,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to IMAP server: %v", err)
	}
	defer imapClient.Logout()

	if err := imapClient.Login(sender.IMAPUsername, password); err != nil {
		return fmt.Errorf("failed to login to IMAP server: %v", err)
	}

	mailbox := "INBOX"
	if sender.IMAPMailbox != "" {
		mailbox = sender.IMAPMailbox
	}
	if _, err := imapClient.Select(mailbox, false); err != nil {
		return fmt.Errorf("failed to select mailbox: %v", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{"\\Seen"}
	ids, err := imapClient.Search(criteria)
	if err != nil {
		return fmt.Errorf("failed to search messages: %v", err)
	}
	if len(ids) == 0 {
		return nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- imapClient.Fetch(seqset, []imap.FetchItem{imap.FetchEnvelope, imap.FetchItem("BODY.PEEK[]")}, messages)
	}()

	for msg := range messages {
		if err := rw.processMessage(msg, sender); err != nil {
			rw.logger.Printf("Failed to process message %d: %v", msg.SeqNum, err)
			continue
		}
	}

	if err := <-done; err != nil {
		return fmt.Errorf("error during fetch: %v", err)
	}
	return nil
}

func (rw *ReplyWorker) processMessage(msg *imap.Message, sender *models.Sender) error {
	if msg.Envelope == nil {
		return nil
	}

	// Header-based match first: a reply carries our Message-ID in
	// In-Reply-To or References
	for _, ref := range rw.referencedMessageIDs(msg) {
		var email models.Email
		err := rw.db.Where("message_id = ? AND sender_id = ?", ref, sender.ID).First(&email).Error
		if err != nil {
			continue
		}
		return rw.markReplied(email.CampaignID, email.CampaignRecipientID)
	}

	// Fall back to the From address of an active enrollment
	for _, addr := range msg.Envelope.From {
		fromEmail := strings.ToLower(fmt.Sprintf("%s@%s", addr.MailboxName, addr.HostName))
		var recipients []models.CampaignRecipient
		if err := rw.db.Joins("JOIN campaigns ON campaigns.id = campaign_recipients.campaign_id").
			Where("LOWER(campaign_recipients.email) = ? AND campaigns.sender_id = ? AND campaign_recipients.replied = ?",
				fromEmail, sender.ID, false).
			Find(&recipients).Error; err != nil {
			return err
		}
		for _, r := range recipients {
			if err := rw.markReplied(r.CampaignID, r.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// referencedMessageIDs pulls In-Reply-To and References header values
// from the raw message body
func (rw *ReplyWorker) referencedMessageIDs(msg *imap.Message) []string {
	section := imap.BodySectionName{Peek: true}
	body := msg.GetBody(&section)
	if body == nil {
		return nil
	}
	mr, err := mail.CreateReader(body)
	if err != nil {
		return nil
	}

	var refs []string
	if v, err := mr.Header.MsgIDList("In-Reply-To"); err == nil {
		refs = append(refs, v...)
	}
	if v, err := mr.Header.MsgIDList("References"); err == nil {
		refs = append(refs, v...)
	}
	for i, r := range refs {
		refs[i] = "<" + strings.Trim(r, "<>") + ">"
	}
	return refs
}

func (rw *ReplyWorker) markReplied(campaignID, recipientID uint) error {
	now := time.Now()
	result := rw.db.Model(&models.CampaignRecipient{}).
		Where("id = ? AND campaign_id = ? AND replied = ?", recipientID, campaignID, false).
		Updates(map[string]interface{}{
			"replied":    true,
			"replied_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		rw.logger.Printf("Recipient %d replied on campaign %d", recipientID, campaignID)
	}
	return nil
}
