package models

import (
	"time"

	"gorm.io/gorm"
)

// Email statuses
const (
	EmailStatusQueued    = "queued"
	EmailStatusSending   = "sending"
	EmailStatusSent      = "sent"
	EmailStatusFailed    = "failed"
	EmailStatusCancelled = "cancelled"
)

// Email is one scheduled or sent message. Rows in queued status are the
// work queue the dispatch worker drains; the sequencer creates one row
// per advanced step.
type Email struct {
	gorm.Model
	UserID              uint `gorm:"not null;index" json:"user_id"`
	SenderID            uint `gorm:"not null;index" json:"sender_id"`
	CampaignID          uint `gorm:"not null;index" json:"campaign_id"`
	CampaignStepID      uint `gorm:"not null;index" json:"campaign_step_id"`
	CampaignRecipientID uint `gorm:"not null;index" json:"campaign_recipient_id"`

	ToEmail  string `gorm:"not null" json:"to_email"`
	Subject  string `gorm:"not null" json:"subject"`
	BodyHTML string `gorm:"type:text" json:"body_html"`

	MessageID string `gorm:"index" json:"message_id"`

	Status      string     `gorm:"default:'queued';index" json:"status"`
	ScheduledAt time.Time  `gorm:"not null;index" json:"scheduled_at"`
	SentAt      *time.Time `json:"sent_at"`
	LastError   *string    `json:"last_error"`

	// Relations
	Campaign  Campaign          `json:"-"`
	Step      CampaignStep      `gorm:"foreignKey:CampaignStepID" json:"-"`
	Recipient CampaignRecipient `gorm:"foreignKey:CampaignRecipientID" json:"-"`
}

// Bounce represents an email bounce record reported by a provider webhook
type Bounce struct {
	gorm.Model
	Email      string `gorm:"not null;index" json:"email"`
	CampaignID *uint  `json:"campaign_id,omitempty"`
	SenderID   uint   `gorm:"not null;index" json:"sender_id"`

	Type    string `gorm:"not null" json:"type"` // hard, soft, block
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Unsubscribe represents an opt-out request
type Unsubscribe struct {
	gorm.Model
	Email      string `gorm:"not null;index" json:"email"`
	CampaignID *uint  `json:"campaign_id,omitempty"`
	UserID     *uint  `json:"user_id,omitempty"`

	Reason    string `json:"reason"`
	IPAddress string `json:"ip_address"`
}
