package models

import (
	"time"

	"gorm.io/gorm"
)

// Campaign statuses
const (
	CampaignStatusDraft     = "draft"
	CampaignStatusScheduled = "scheduled"
	CampaignStatusRunning   = "running"
	CampaignStatusPaused    = "paused"
	CampaignStatusCompleted = "completed"
	CampaignStatusCancelled = "cancelled"
)

// Recipient statuses
const (
	RecipientStatusPending      = "pending"
	RecipientStatusQueued       = "queued"
	RecipientStatusInProgress   = "in_progress"
	RecipientStatusCompleted    = "completed"
	RecipientStatusStopped      = "stopped"
	RecipientStatusCancelled    = "cancelled"
	RecipientStatusBounced      = "bounced"
	RecipientStatusUnsubscribed = "unsubscribed"
)

// Campaign represents a multi-step drip sequence owned by one user
type Campaign struct {
	gorm.Model
	UserID   uint `gorm:"not null;index" json:"user_id"`
	SenderID uint `gorm:"not null;index" json:"sender_id"`

	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`

	// nil means unset, which defaults to true at resolution time
	StopOnReply *bool `json:"stop_on_reply"`

	Status      string     `gorm:"default:'draft'" json:"status"`
	ScheduledAt *time.Time `json:"scheduled_at"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`

	// Relations
	Steps      []CampaignStep      `gorm:"foreignKey:CampaignID" json:"steps,omitempty"`
	Recipients []CampaignRecipient `gorm:"foreignKey:CampaignID" json:"recipients,omitempty"`
}

// campaignTransitions is the allow-list of outgoing status transitions.
// completed and cancelled are terminal.
var campaignTransitions = map[string][]string{
	CampaignStatusDraft:     {CampaignStatusScheduled, CampaignStatusRunning, CampaignStatusCancelled},
	CampaignStatusScheduled: {CampaignStatusRunning, CampaignStatusPaused, CampaignStatusCancelled},
	CampaignStatusRunning:   {CampaignStatusPaused, CampaignStatusCompleted, CampaignStatusCancelled},
	CampaignStatusPaused:    {CampaignStatusRunning, CampaignStatusCancelled},
	CampaignStatusCompleted: {},
	CampaignStatusCancelled: {},
}

// CanTransition reports whether the campaign may move from its current
// status to the target status.
func (c *Campaign) CanTransition(target string) bool {
	allowed, ok := campaignTransitions[c.Status]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == target {
			return true
		}
	}
	return false
}

// CampaignStep represents one ordered stage of a campaign.
// Step numbers are 1-based and expected to be contiguous; the sequencer
// looks up the next stage by exact number match.
type CampaignStep struct {
	gorm.Model
	CampaignID uint `gorm:"not null;index" json:"campaign_id"`

	StepNumber int `gorm:"not null" json:"step_number"`
	DelayHours int `gorm:"default:0" json:"delay_hours"`
	DelayDays  int `gorm:"default:0" json:"delay_days"`

	Subject  string `gorm:"not null" json:"subject"`
	BodyHTML string `gorm:"type:text" json:"body_html"`

	// Step-level override; nil means unset (defaults to true)
	StopOnReply *bool `json:"stop_on_reply"`

	// Tracking
	SentCount int `gorm:"default:0" json:"sent_count"`

	// Relations
	Campaign Campaign `json:"-"`
}

// CampaignRecipient represents one contact's enrollment in one campaign
type CampaignRecipient struct {
	gorm.Model
	CampaignID uint `gorm:"not null;index" json:"campaign_id"`
	UserID     uint `gorm:"not null;index" json:"user_id"`

	Email string `gorm:"not null;index" json:"email"`
	Name  string `json:"name"`

	Replied    bool       `gorm:"default:false" json:"replied"`
	RepliedAt  *time.Time `json:"replied_at"`
	Status     string     `gorm:"default:'pending'" json:"status"`
	NextSendAt *time.Time `json:"next_send_at"`

	// Relations
	Campaign Campaign `json:"-"`
}

// IsTerminal reports whether the recipient has reached a state from which
// no further steps are scheduled.
func (r *CampaignRecipient) IsTerminal() bool {
	switch r.Status {
	case RecipientStatusCompleted, RecipientStatusStopped, RecipientStatusCancelled,
		RecipientStatusBounced, RecipientStatusUnsubscribed:
		return true
	}
	return false
}
