package models

import (
	"time"

	"gorm.io/gorm"
)

// Event sync statuses
const (
	SyncStatusPending = "pending"
	SyncStatusSynced  = "synced"
	SyncStatusFailed  = "failed"
)

// CalendarConnection holds one user's calendar integration credentials.
// Access and refresh tokens are encrypted at the application layer before
// they reach this row; only the cron pollers mutate token and webhook fields.
type CalendarConnection struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	Provider   string `gorm:"not null;default:'google'" json:"provider"`
	CalendarID string `gorm:"not null" json:"calendar_id"`

	AccessToken    string     `gorm:"type:text" json:"-"` // Encrypted
	RefreshToken   string     `gorm:"type:text" json:"-"` // Encrypted
	TokenExpiresAt *time.Time `json:"token_expires_at"`

	WebhookID        string     `json:"webhook_id"`
	WebhookResource  string     `json:"webhook_resource"`
	WebhookExpiresAt *time.Time `json:"webhook_expires_at"`

	SyncEnabled   bool       `gorm:"default:true;index" json:"sync_enabled"`
	RefreshNeeded bool       `gorm:"default:false" json:"refresh_needed"`
	LastSyncAt    *time.Time `json:"last_sync_at"`
	LastError     *string    `json:"last_error"`

	// Relations
	Events []CalendarEvent `gorm:"foreignKey:ConnectionID" json:"events,omitempty"`
}

// CalendarEvent is a locally tracked event pending or mirrored to the remote calendar
type CalendarEvent struct {
	gorm.Model
	ConnectionID uint `gorm:"not null;index" json:"connection_id"`
	UserID       uint `gorm:"not null;index" json:"user_id"`

	RemoteEventID string    `gorm:"index" json:"remote_event_id"`
	Title         string    `gorm:"not null" json:"title"`
	StartsAt      time.Time `gorm:"not null;index" json:"starts_at"`
	EndsAt        time.Time `json:"ends_at"`

	SyncStatus   string     `gorm:"default:'pending';index" json:"sync_status"`
	SyncAttempts int        `gorm:"default:0" json:"sync_attempts"`
	LastSyncedAt *time.Time `json:"last_synced_at"`
	Archived     bool       `gorm:"default:false;index" json:"archived"`
}

// CalendarSyncLog records one sync operation for debugging; rows older than
// the retention window are purged by the cleanup poller.
type CalendarSyncLog struct {
	gorm.Model
	ConnectionID uint   `gorm:"not null;index" json:"connection_id"`
	Operation    string `gorm:"not null" json:"operation"` // refresh, push, webhook, archive
	Success      bool   `json:"success"`
	Detail       string `json:"detail"`
}

// EventReminder is a pending notification for an upcoming event
type EventReminder struct {
	gorm.Model
	EventID uint `gorm:"not null;index" json:"event_id"`
	UserID  uint `gorm:"not null;index" json:"user_id"`

	SendAt time.Time  `gorm:"not null;index" json:"send_at"`
	Sent   bool       `gorm:"default:false;index" json:"sent"`
	SentAt *time.Time `json:"sent_at"`
}
