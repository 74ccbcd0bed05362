package controller

import (
	"testing"
	"time"

	"leadmap/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedEvent(t *testing.T, db *gorm.DB, startsAt time.Time, archived bool) *models.CalendarEvent {
	t.Helper()
	event := &models.CalendarEvent{
		ConnectionID: 1,
		UserID:       1,
		Title:        "standup",
		StartsAt:     startsAt,
		SyncStatus:   models.SyncStatusSynced,
		Archived:     archived,
	}
	require.NoError(t, db.Create(event).Error)
	return event
}

func TestCleanupArchivesOldEvents(t *testing.T) {
	db, cc, _ := setupCronTest(t)

	old := time.Now().Add(-400 * 24 * time.Hour)
	recent := time.Now().Add(-30 * 24 * time.Hour)

	// Five stale events across three batches of two, one fresh one
	for i := 0; i < 5; i++ {
		seedEvent(t, db, old, false)
	}
	fresh := seedEvent(t, db, recent, false)

	status, body := runCron(t, cc.Cleanup)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(5), body["archivedEvents"])
	assert.Equal(t, false, body["circuitBroken"])
	assert.NotContains(t, body, "skippedEventIds")

	var archivedCount int64
	require.NoError(t, db.Model(&models.CalendarEvent{}).Where("archived = ?", true).Count(&archivedCount).Error)
	assert.Equal(t, int64(5), archivedCount)

	var updatedFresh models.CalendarEvent
	require.NoError(t, db.First(&updatedFresh, fresh.ID).Error)
	assert.False(t, updatedFresh.Archived)
}

func TestCleanupDeletesExpiredRows(t *testing.T) {
	db, cc, _ := setupCronTest(t)

	oldLog := models.CalendarSyncLog{ConnectionID: 1, Operation: "refresh", Success: true}
	require.NoError(t, db.Create(&oldLog).Error)
	require.NoError(t, db.Model(&oldLog).Update("created_at", time.Now().Add(-40*24*time.Hour)).Error)
	freshLog := models.CalendarSyncLog{ConnectionID: 1, Operation: "refresh", Success: true}
	require.NoError(t, db.Create(&freshLog).Error)

	sentAt := time.Now().Add(-10 * 24 * time.Hour)
	oldReminder := models.EventReminder{EventID: 1, UserID: 1, SendAt: sentAt, Sent: true, SentAt: &sentAt}
	require.NoError(t, db.Create(&oldReminder).Error)
	// Unsent reminders are never purged, however old
	unsent := models.EventReminder{EventID: 2, UserID: 1, SendAt: sentAt}
	require.NoError(t, db.Create(&unsent).Error)

	status, body := runCron(t, cc.Cleanup)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(1), body["deletedSyncLogs"])
	assert.Equal(t, float64(1), body["deletedReminders"])

	var logCount, reminderCount int64
	require.NoError(t, db.Model(&models.CalendarSyncLog{}).Count(&logCount).Error)
	require.NoError(t, db.Model(&models.EventReminder{}).Count(&reminderCount).Error)
	assert.Equal(t, int64(1), logCount)
	assert.Equal(t, int64(1), reminderCount)
}

func TestCleanupCircuitBreakerHaltsOnSelectFailure(t *testing.T) {
	db, cc, _ := setupCronTest(t)

	// Make every archive batch fail by removing the table out from under
	// the poller; the select errors on each iteration
	require.NoError(t, db.Migrator().DropTable(&models.CalendarEvent{}))

	sleeps := 0
	cc.Sleep = func(time.Duration) { sleeps++ }

	status, body := runCron(t, cc.Cleanup)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["circuitBroken"])
	assert.Equal(t, float64(0), body["archivedEvents"])

	// Candidates were never identified, so the list is present but empty
	skipped, ok := body["skippedEventIds"].([]interface{})
	require.True(t, ok)
	assert.Empty(t, skipped)

	stats, ok := body["stats"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(3), stats["failed"])

	// Two backoff pauses before the third consecutive failure trips it
	assert.Equal(t, 2, sleeps)
}

func TestCleanupCircuitBreakerReportsUnarchivedIDs(t *testing.T) {
	db, cc, _ := setupCronTest(t)

	old := time.Now().Add(-400 * 24 * time.Hour)
	first := seedEvent(t, db, old, false)
	second := seedEvent(t, db, old, false)

	// The candidate select succeeds but every archive write fails
	require.NoError(t, db.Callback().Update().Before("gorm:update").
		Register("archive_write_failure", func(tx *gorm.DB) {
			if tx.Statement.Table == "calendar_events" {
				tx.AddError(gorm.ErrInvalidTransaction)
			}
		}))

	status, body := runCron(t, cc.Cleanup)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["circuitBroken"])
	assert.Equal(t, float64(0), body["archivedEvents"])

	skipped, ok := body["skippedEventIds"].([]interface{})
	require.True(t, ok)
	assert.ElementsMatch(t, []interface{}{float64(first.ID), float64(second.ID)}, skipped)

	stats, ok := body["stats"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(3), stats["failed"])
	assert.Equal(t, float64(2), stats["skipped"])
}

func TestCleanupEmptyRunSucceeds(t *testing.T) {
	_, cc, _ := setupCronTest(t)

	status, body := runCron(t, cc.Cleanup)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(0), body["archivedEvents"])
	assert.Equal(t, float64(0), body["deletedSyncLogs"])
	assert.Equal(t, float64(0), body["deletedReminders"])
}
