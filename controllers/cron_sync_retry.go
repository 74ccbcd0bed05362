package controller

import (
	"context"
	"time"

	"leadmap/models"
	"leadmap/utils"

	"github.com/gofiber/fiber/v2"
)

// RetrySync re-pushes calendar events whose last sync failed, plus pending
// events that have sat unsynced past a short grace period. Rows are
// processed sequentially; a row failure is tallied and the loop continues.
func (cc *CronController) RetrySync(c *fiber.Ctx) error {
	start := cc.Now()

	grace := start.Add(-10 * time.Minute)

	var events []models.CalendarEvent
	if err := cc.DB.
		Where("archived = ?", false).
		Where("sync_status = ? OR (sync_status = ? AND updated_at < ?)",
			models.SyncStatusFailed, models.SyncStatusPending, grace).
		Limit(cc.batchLimit()).
		Find(&events).Error; err != nil {
		utils.LogError("cron_sync_retry_query_failed", err, nil)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to query events",
		})
	}

	results := make([]CronItemResult, 0, len(events))
	for i := range events {
		results = append(results, cc.syncOne(&events[i]))
	}

	successful, failed, skipped := tally(results)
	duration := cc.Now().Sub(start)

	return c.JSON(fiber.Map{
		"success":   true,
		"timestamp": cc.Now().Format(time.RFC3339),
		"synced":    successful,
		"failed":    failed,
		"skipped":   skipped,
		"results":   capResults(results),
		"stats": CronStats{
			Total:      len(events),
			Processed:  len(events),
			Successful: successful,
			Failed:     failed,
			Skipped:    skipped,
			Duration:   duration.String(),
		},
	})
}

func (cc *CronController) syncOne(event *models.CalendarEvent) CronItemResult {
	var conn models.CalendarConnection
	if err := cc.DB.First(&conn, event.ConnectionID).Error; err != nil {
		return CronItemResult{ID: event.ID, Status: CronItemError, Error: "connection not found"}
	}
	if !conn.SyncEnabled {
		return CronItemResult{ID: event.ID, Status: CronItemSkipped, Detail: "sync disabled"}
	}

	accessToken, err := utils.Decrypt(conn.AccessToken)
	if err != nil || accessToken == "" {
		return CronItemResult{ID: event.ID, Status: CronItemSkipped, Detail: "no access token; refresh pending"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	remoteID, err := cc.Calendar.PushEvent(ctx, accessToken, conn.CalendarID, event)
	if err != nil {
		if dbErr := cc.DB.Model(event).Updates(map[string]interface{}{
			"sync_status":   models.SyncStatusFailed,
			"sync_attempts": event.SyncAttempts + 1,
		}).Error; dbErr != nil {
			cc.Logger.Printf("failed to record sync failure for event %d: %v", event.ID, dbErr)
		}
		cc.logSync(conn.ID, "push", false, err.Error())
		return CronItemResult{ID: event.ID, Status: CronItemFailed, Error: err.Error()}
	}

	now := cc.Now()
	if err := cc.DB.Model(event).Updates(map[string]interface{}{
		"remote_event_id": remoteID,
		"sync_status":     models.SyncStatusSynced,
		"sync_attempts":   event.SyncAttempts + 1,
		"last_synced_at":  now,
	}).Error; err != nil {
		utils.LogError("cron_sync_retry_update_failed", err, map[string]interface{}{
			"event_id": event.ID,
		})
		return CronItemResult{ID: event.ID, Status: CronItemFailed, Error: err.Error()}
	}

	if err := cc.DB.Model(&conn).Update("last_sync_at", now).Error; err != nil {
		cc.Logger.Printf("failed to update last_sync_at for connection %d: %v", conn.ID, err)
	}

	cc.logSync(conn.ID, "push", true, "event "+remoteID)
	return CronItemResult{ID: event.ID, Status: CronItemSuccess}
}
