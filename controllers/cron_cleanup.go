package controller

import (
	"time"

	"leadmap/config"
	"leadmap/models"
	"leadmap/utils"

	"github.com/gofiber/fiber/v2"
)

// cleanupMaxIterations bounds the archive loop regardless of data volume,
// keeping one invocation within the platform's wall-clock budget.
const cleanupMaxIterations = 1000

// Cleanup applies the retention policy: archive events older than the
// archive age, delete sync logs past their retention, delete sent
// reminders past theirs. The archive pass runs in batches with
// exponential backoff between retries and halts after three consecutive
// failed batches, reporting the record IDs it never got to.
func (cc *CronController) Cleanup(c *fiber.Ctx) error {
	start := cc.Now()

	archived, skippedIDs, failedBatches, circuitBroken := cc.archiveOldEvents(start)

	deletedLogs := cc.deleteExpiredRows(&models.CalendarSyncLog{},
		"created_at < ?", start.Add(-config.AppConfig.SyncLogRetention))

	deletedReminders := cc.deleteExpiredRows(&models.EventReminder{},
		"sent = ? AND sent_at < ?", true, start.Add(-config.AppConfig.ReminderRetention))

	duration := cc.Now().Sub(start)
	cc.Logger.Printf("cleanup finished in %s: %d archived, %d logs, %d reminders",
		utils.FormatDuration(duration), archived, deletedLogs, deletedReminders)

	response := fiber.Map{
		"success":          true,
		"timestamp":        cc.Now().Format(time.RFC3339),
		"archivedEvents":   archived,
		"deletedSyncLogs":  deletedLogs,
		"deletedReminders": deletedReminders,
		"circuitBroken":    circuitBroken,
		"stats": CronStats{
			Total:      archived + len(skippedIDs),
			Processed:  archived,
			Successful: archived,
			Failed:     failedBatches,
			Skipped:    len(skippedIDs),
			Duration:   duration.String(),
		},
	}
	if circuitBroken {
		// Surface which records still need manual follow-up
		if len(skippedIDs) > 100 {
			skippedIDs = skippedIDs[:100]
		}
		response["skippedEventIds"] = skippedIDs
	}

	return c.JSON(response)
}

// archiveOldEvents archives in batches. The same batch is retried after a
// backoff when its update fails; three consecutive failures trip the
// breaker and abort the run with the unarchived IDs.
func (cc *CronController) archiveOldEvents(now time.Time) (archived int, skippedIDs []uint, failedBatches int, circuitBroken bool) {
	cutoff := now.Add(-config.AppConfig.EventArchiveAge)
	batchSize := config.AppConfig.CleanupBatchSize
	if batchSize <= 0 {
		batchSize = 1000
	}

	// Non-nil so a tripped run reports an empty list, not null
	skippedIDs = []uint{}
	breaker := utils.NewConsecutiveBreaker(3)

	for i := 0; i < cleanupMaxIterations; i++ {
		var ids []uint
		if err := cc.DB.Model(&models.CalendarEvent{}).
			Where("archived = ? AND starts_at < ?", false, cutoff).
			Order("id").
			Limit(batchSize).
			Pluck("id", &ids).Error; err != nil {
			utils.LogError("cron_cleanup_select_failed", err, nil)
			breaker.RecordFailure()
			failedBatches++
			if breaker.Tripped() {
				circuitBroken = true
				break
			}
			cc.Sleep(cc.Backoff.Delay(breaker.Failures()))
			continue
		}
		if len(ids) == 0 {
			break
		}

		if err := cc.DB.Model(&models.CalendarEvent{}).
			Where("id IN ?", ids).
			Update("archived", true).Error; err != nil {
			breaker.RecordFailure()
			failedBatches++
			cc.Logger.Printf("archive batch of %d failed (consecutive failures %d): %v",
				len(ids), breaker.Failures(), err)
			if breaker.Tripped() {
				skippedIDs = append(skippedIDs, ids...)
				circuitBroken = true
				break
			}
			cc.Sleep(cc.Backoff.Delay(breaker.Failures()))
			continue
		}

		breaker.RecordSuccess()
		archived += len(ids)
	}

	if circuitBroken {
		utils.LogError("cron_cleanup_circuit_broken",
			errCircuitBroken, map[string]interface{}{
				"archived": archived,
				"skipped":  len(skippedIDs),
			})
	}
	return archived, skippedIDs, failedBatches, circuitBroken
}

func (cc *CronController) deleteExpiredRows(model interface{}, query string, args ...interface{}) int {
	result := cc.DB.Where(query, args...).Delete(model)
	if result.Error != nil {
		utils.LogError("cron_cleanup_delete_failed", result.Error, map[string]interface{}{
			"predicate": query,
		})
		return 0
	}
	return int(result.RowsAffected)
}
