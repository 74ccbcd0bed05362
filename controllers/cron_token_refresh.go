package controller

import (
	"context"
	"sync"
	"time"

	"leadmap/config"
	"leadmap/models"
	"leadmap/utils"

	"github.com/gofiber/fiber/v2"
)

// tokenRefreshBatchSize is how many refreshes run concurrently before the
// poller pauses to respect the provider's rate limits.
const tokenRefreshBatchSize = 5

// RefreshTokens refreshes OAuth access tokens on connections whose token
// expires within the configured window. Connections with a still-valid
// token are counted as skipped, not re-issued, so re-running the job is
// harmless. Failed refreshes mark the connection refresh_needed for
// operator attention instead of retrying forever.
func (cc *CronController) RefreshTokens(c *fiber.Ctx) error {
	start := cc.Now()

	if config.AppConfig.Google.ClientID == "" || config.AppConfig.Google.ClientSecret == "" {
		return cc.configurationError(c, "Google OAuth credentials are not configured")
	}

	threshold := start.Add(config.AppConfig.TokenRefreshWindow)

	var connections []models.CalendarConnection
	if err := cc.DB.
		Where("sync_enabled = ?", true).
		Where("token_expires_at IS NULL OR token_expires_at < ?", threshold).
		Limit(cc.batchLimit()).
		Find(&connections).Error; err != nil {
		utils.LogError("cron_token_refresh_query_failed", err, nil)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to query connections",
		})
	}

	results := make([]CronItemResult, len(connections))

	// Refresh in small concurrent batches with a pause between them
	for offset := 0; offset < len(connections); offset += tokenRefreshBatchSize {
		end := offset + tokenRefreshBatchSize
		if end > len(connections) {
			end = len(connections)
		}

		var wg sync.WaitGroup
		for i := offset; i < end; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				results[idx] = cc.refreshOne(&connections[idx])
			}(i)
		}
		wg.Wait()

		if end < len(connections) {
			cc.Sleep(1 * time.Second)
		}
	}

	successful, failed, skipped := tally(results)
	duration := cc.Now().Sub(start)

	return c.JSON(fiber.Map{
		"success":   true,
		"timestamp": cc.Now().Format(time.RFC3339),
		"refreshed": successful,
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

func (cc *CronController) refreshOne(conn *models.CalendarConnection) CronItemResult {
	// A token refreshed by an overlapping run since the select is left alone
	if conn.TokenExpiresAt != nil && conn.TokenExpiresAt.After(cc.Now().Add(config.AppConfig.TokenRefreshWindow)) {
		return CronItemResult{ID: conn.ID, Status: CronItemSkipped, Detail: "token still valid"}
	}

	refreshToken, err := utils.Decrypt(conn.RefreshToken)
	if err != nil || refreshToken == "" {
		cc.markRefreshNeeded(conn, "missing or undecryptable refresh token")
		return CronItemResult{ID: conn.ID, Status: CronItemFailed, Error: "no usable refresh token"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	token, err := cc.Calendar.RefreshAccessToken(ctx, refreshToken)
	if err != nil {
		cc.markRefreshNeeded(conn, err.Error())
		return CronItemResult{ID: conn.ID, Status: CronItemFailed, Error: err.Error()}
	}

	encryptedAccess, err := utils.Encrypt(token.AccessToken)
	if err != nil {
		return CronItemResult{ID: conn.ID, Status: CronItemError, Error: "failed to encrypt access token"}
	}
	encryptedRefresh, err := utils.Encrypt(token.RefreshToken)
	if err != nil {
		return CronItemResult{ID: conn.ID, Status: CronItemError, Error: "failed to encrypt refresh token"}
	}

	updates := map[string]interface{}{
		"access_token":     encryptedAccess,
		"refresh_token":    encryptedRefresh,
		"token_expires_at": token.ExpiresAt,
		"refresh_needed":   false,
		"last_error":       nil,
	}
	if err := cc.DB.Model(conn).Updates(updates).Error; err != nil {
		utils.LogError("cron_token_refresh_update_failed", err, map[string]interface{}{
			"connection_id": conn.ID,
		})
		return CronItemResult{ID: conn.ID, Status: CronItemFailed, Error: err.Error()}
	}

	cc.logSync(conn.ID, "refresh", true, "access token refreshed")
	return CronItemResult{ID: conn.ID, Status: CronItemSuccess}
}

func (cc *CronController) markRefreshNeeded(conn *models.CalendarConnection, reason string) {
	if err := cc.DB.Model(conn).Updates(map[string]interface{}{
		"refresh_needed": true,
		"last_error":     reason,
	}).Error; err != nil {
		cc.Logger.Printf("failed to flag connection %d for refresh: %v", conn.ID, err)
	}
	cc.logSync(conn.ID, "refresh", false, reason)
}

func (cc *CronController) logSync(connectionID uint, operation string, success bool, detail string) {
	entry := models.CalendarSyncLog{
		ConnectionID: connectionID,
		Operation:    operation,
		Success:      success,
		Detail:       detail,
	}
	if err := cc.DB.Create(&entry).Error; err != nil {
		cc.Logger.Printf("failed to write sync log for connection %d: %v", connectionID, err)
	}
}
