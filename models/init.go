package models

import "gorm.io/gorm"

// Migrate runs AutoMigrate for every model the service owns
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&RefreshToken{},
		&Sender{},
		&Campaign{},
		&CampaignStep{},
		&CampaignRecipient{},
		&Email{},
		&Bounce{},
		&Unsubscribe{},
		&CalendarConnection{},
		&CalendarEvent{},
		&CalendarSyncLog{},
		&EventReminder{},
	)
}
