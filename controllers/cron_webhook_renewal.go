package controller

import (
	"context"
	"time"

	"leadmap/config"
	"leadmap/models"
	"leadmap/utils"

	"github.com/gofiber/fiber/v2"
)

// RenewWebhooks creates or renews push-notification channels on
// connections whose webhook is missing or expires within the configured
// window. The old channel is stopped best-effort; the remote provider
// deduplicates channels, so a duplicate create after a partial failure is
// harmless.
func (cc *CronController) RenewWebhooks(c *fiber.Ctx) error {
	start := cc.Now()

	callbackURL := config.AppConfig.WebhookCallbackURL
	if callbackURL == "" {
		return cc.configurationError(c, "WEBHOOK_CALLBACK_URL is not configured")
	}

	threshold := start.Add(config.AppConfig.WebhookRenewalWindow)

	var connections []models.CalendarConnection
	if err := cc.DB.
		Where("sync_enabled = ?", true).
		Where("webhook_id = '' OR webhook_expires_at IS NULL OR webhook_expires_at < ?", threshold).
		Limit(cc.batchLimit()).
		Find(&connections).Error; err != nil {
		utils.LogError("cron_webhook_renewal_query_failed", err, nil)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to query connections",
		})
	}

	results := make([]CronItemResult, 0, len(connections))
	for i := range connections {
		results = append(results, cc.renewOne(&connections[i], callbackURL))
	}

	successful, failed, skipped := tally(results)
	duration := cc.Now().Sub(start)

	return c.JSON(fiber.Map{
		"success":   true,
		"timestamp": cc.Now().Format(time.RFC3339),
		"renewed":   successful,
		"failed":    failed,
		"skipped":   skipped,
		"results":   capResults(results),
		"stats": CronStats{
			Total:      len(connections),
			Processed:  len(connections),
			Successful: successful,
			Failed:     failed,
			Skipped:    skipped,
			Duration:   duration.String(),
		},
	})
}

func (cc *CronController) renewOne(conn *models.CalendarConnection, callbackURL string) CronItemResult {
	accessToken, err := utils.Decrypt(conn.AccessToken)
	if err != nil || accessToken == "" {
		return CronItemResult{ID: conn.ID, Status: CronItemSkipped, Detail: "no access token; refresh pending"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop the old channel first so the provider does not keep notifying a
	// channel we are about to abandon. An already-expired channel makes
	// this fail harmlessly.
	if conn.WebhookID != "" && conn.WebhookResource != "" {
		if err := cc.Calendar.StopWatchChannel(ctx, accessToken, conn.WebhookID, conn.WebhookResource); err != nil {
			cc.Logger.Printf("stop of old channel %s failed (continuing): %v", conn.WebhookID, err)
		}
	}

	channel, err := cc.Calendar.CreateWatchChannel(ctx, accessToken, conn.CalendarID, callbackURL)
	if err != nil {
		cc.logSync(conn.ID, "webhook", false, err.Error())
		return CronItemResult{ID: conn.ID, Status: CronItemFailed, Error: err.Error()}
	}

	if err := cc.DB.Model(conn).Updates(map[string]interface{}{
		"webhook_id":         channel.ID,
		"webhook_resource":   channel.ResourceID,
		"webhook_expires_at": channel.ExpiresAt,
	}).Error; err != nil {
		utils.LogError("cron_webhook_renewal_update_failed", err, map[string]interface{}{
			"connection_id": conn.ID,
		})
		return CronItemResult{ID: conn.ID, Status: CronItemFailed, Error: err.Error()}
	}

	cc.logSync(conn.ID, "webhook", true, "channel "+channel.ID)
	return CronItemResult{ID: conn.ID, Status: CronItemSuccess}
}
