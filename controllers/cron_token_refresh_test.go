package controller

import (
	"errors"
	"testing"
	"time"

	"leadmap/config"
	"leadmap/models"
	"leadmap/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedConnection(t *testing.T, db *gorm.DB, refreshToken string, expiresAt *time.Time) *models.CalendarConnection {
	t.Helper()
	encrypted, err := utils.Encrypt(refreshToken)
	require.NoError(t, err)

	conn := &models.CalendarConnection{
		UserID:         1,
		Provider:       "google",
		CalendarID:     "primary",
		RefreshToken:   encrypted,
		TokenExpiresAt: expiresAt,
		SyncEnabled:    true,
	}
	require.NoError(t, db.Create(conn).Error)
	return conn
}

func TestRefreshTokensRefreshesExpiring(t *testing.T) {
	db, cc, cal := setupCronTest(t)

	soon := time.Now().Add(10 * time.Minute)
	conn := seedConnection(t, db, "refresh-me", &soon)

	status, body := runCron(t, cc.RefreshTokens)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(1), body["refreshed"])
	assert.Equal(t, float64(0), body["failed"])
	assert.Equal(t, 1, cal.refreshCalls)

	var updated models.CalendarConnection
	require.NoError(t, db.First(&updated, conn.ID).Error)

	access, err := utils.Decrypt(updated.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "new-access", access)
	assert.False(t, updated.RefreshNeeded)
	require.NotNil(t, updated.TokenExpiresAt)
	assert.True(t, updated.TokenExpiresAt.After(time.Now().Add(time.Hour)))

	var logCount int64
	require.NoError(t, db.Model(&models.CalendarSyncLog{}).
		Where("connection_id = ? AND operation = ? AND success = ?", conn.ID, "refresh", true).
		Count(&logCount).Error)
	assert.Equal(t, int64(1), logCount)
}

func TestRefreshTokensSecondRunIsNoOp(t *testing.T) {
	db, cc, cal := setupCronTest(t)

	soon := time.Now().Add(10 * time.Minute)
	seedConnection(t, db, "refresh-me", &soon)

	status, _ := runCron(t, cc.RefreshTokens)
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, 1, cal.refreshCalls)

	// The stored expiry now sits past the refresh window, so a re-run
	// selects nothing and issues no provider calls
	status, body := runCron(t, cc.RefreshTokens)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, 1, cal.refreshCalls)
	assert.Equal(t, float64(0), body["refreshed"])
	assert.Equal(t, float64(0), body["failed"])
}

func TestRefreshTokensSkipsDisabledConnections(t *testing.T) {
	db, cc, cal := setupCronTest(t)

	soon := time.Now().Add(10 * time.Minute)
	conn := seedConnection(t, db, "refresh-me", &soon)
	require.NoError(t, db.Model(conn).Update("sync_enabled", false).Error)

	status, body := runCron(t, cc.RefreshTokens)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, 0, cal.refreshCalls)
	assert.Equal(t, float64(0), body["refreshed"])
}

func TestRefreshTokensNullExpiryIsSelected(t *testing.T) {
	db, cc, cal := setupCronTest(t)
	seedConnection(t, db, "refresh-me", nil)

	status, body := runCron(t, cc.RefreshTokens)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, 1, cal.refreshCalls)
	assert.Equal(t, float64(1), body["refreshed"])
}

func TestRefreshTokensFailureFlagsConnection(t *testing.T) {
	db, cc, cal := setupCronTest(t)
	cal.refreshErr = errors.New("invalid_grant")

	soon := time.Now().Add(10 * time.Minute)
	conn := seedConnection(t, db, "refresh-me", &soon)

	status, body := runCron(t, cc.RefreshTokens)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(1), body["failed"])

	var updated models.CalendarConnection
	require.NoError(t, db.First(&updated, conn.ID).Error)
	assert.True(t, updated.RefreshNeeded)
	require.NotNil(t, updated.LastError)
	assert.Equal(t, "invalid_grant", *updated.LastError)
}

func TestRefreshTokensEmptyRefreshTokenFails(t *testing.T) {
	db, cc, _ := setupCronTest(t)

	soon := time.Now().Add(10 * time.Minute)
	conn := seedConnection(t, db, "", &soon)

	status, body := runCron(t, cc.RefreshTokens)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(1), body["failed"])

	var updated models.CalendarConnection
	require.NoError(t, db.First(&updated, conn.ID).Error)
	assert.True(t, updated.RefreshNeeded)
}

func TestRefreshTokensMissingCredentialsIs500(t *testing.T) {
	_, cc, _ := setupCronTest(t)
	config.AppConfig.Google.ClientID = ""

	status, body := runCron(t, cc.RefreshTokens)
	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Equal(t, false, body["success"])
}

func TestRefreshOneSkipsStillValidToken(t *testing.T) {
	db, cc, cal := setupCronTest(t)

	// Refreshed by an overlapping run after the select
	far := time.Now().Add(3 * time.Hour)
	conn := seedConnection(t, db, "refresh-me", &far)

	result := cc.refreshOne(conn)
	assert.Equal(t, CronItemSkipped, result.Status)
	assert.Equal(t, 0, cal.refreshCalls)
}
