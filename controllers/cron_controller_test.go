package controller

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"leadmap/config"
	"leadmap/models"
	"leadmap/utils"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// fakeCalendar is a scripted CalendarAPI for poller tests.
type fakeCalendar struct {
	mu sync.Mutex

	refreshCalls int
	refreshErr   error
	token        utils.Token

	pushCalls int
	pushErr   error

	watchErr   error
	stopCalls  int
	watchCalls int
}

func (f *fakeCalendar) RefreshAccessToken(ctx context.Context, refreshToken string) (*utils.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	t := f.token
	return &t, nil
}

func (f *fakeCalendar) PushEvent(ctx context.Context, accessToken, calendarID string, event *models.CalendarEvent) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushCalls++
	if f.pushErr != nil {
		return "", f.pushErr
	}
	return "remote-1", nil
}

func (f *fakeCalendar) CreateWatchChannel(ctx context.Context, accessToken, calendarID, callbackURL string) (*utils.WatchChannel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watchCalls++
	if f.watchErr != nil {
		return nil, f.watchErr
	}
	return &utils.WatchChannel{ID: "chan-1", ResourceID: "res-1", ExpiresAt: time.Now().Add(7 * 24 * time.Hour)}, nil
}

func (f *fakeCalendar) StopWatchChannel(ctx context.Context, accessToken, channelID, resourceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	return nil
}

func setupCronTest(t *testing.T) (*gorm.DB, *CronController, *fakeCalendar) {
	t.Helper()

	config.AppConfig = config.Config{
		EncryptionKey: "0123456789abcdef0123456789abcdef",
		Google: config.OAuthConfig{
			ClientID:     "client-id",
			ClientSecret: "client-secret",
		},
		CronBatchLimit:       50,
		CleanupBatchSize:     2,
		TokenRefreshWindow:   time.Hour,
		WebhookRenewalWindow: 24 * time.Hour,
		EventArchiveAge:      365 * 24 * time.Hour,
		SyncLogRetention:     30 * 24 * time.Hour,
		ReminderRetention:    7 * 24 * time.Hour,
		WebhookCallbackURL:   "https://example.com/webhooks/calendar",
	}

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))

	cal := &fakeCalendar{token: utils.Token{
		AccessToken:  "new-access",
		RefreshToken: "new-refresh",
		ExpiresAt:    time.Now().Add(2 * time.Hour),
	}}

	cc := NewCronController(db, log.New(os.Stdout, "CRON-TEST: ", log.LstdFlags), cal)
	cc.Sleep = func(time.Duration) {} // no real pauses in tests
	return db, cc, cal
}

// runCron performs one handler invocation through a fiber app and decodes
// the JSON response body.
func runCron(t *testing.T, handler fiber.Handler) (int, map[string]interface{}) {
	t.Helper()
	app := fiber.New()
	app.Get("/cron/job", handler)

	resp, err := app.Test(httptest.NewRequest("GET", "/cron/job", nil), -1)
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &decoded))
	return resp.StatusCode, decoded
}

func TestCapResultsKeepsNonErrors(t *testing.T) {
	var results []CronItemResult
	for i := 0; i < 30; i++ {
		results = append(results, CronItemResult{ID: uint(i), Status: CronItemFailed, Error: "boom"})
	}
	results = append(results, CronItemResult{ID: 100, Status: CronItemSuccess})
	results = append(results, CronItemResult{ID: 101, Status: CronItemSkipped})

	capped := capResults(results)

	errors := 0
	others := 0
	for _, r := range capped {
		if r.Status == CronItemFailed || r.Status == CronItemError {
			errors++
		} else {
			others++
		}
	}
	assert.Equal(t, maxDetailedErrors, errors)
	assert.Equal(t, 2, others)
}

func TestTally(t *testing.T) {
	successful, failed, skipped := tally([]CronItemResult{
		{Status: CronItemSuccess},
		{Status: CronItemSuccess},
		{Status: CronItemSkipped},
		{Status: CronItemFailed},
		{Status: CronItemError},
	})
	assert.Equal(t, 2, successful)
	assert.Equal(t, 2, failed)
	assert.Equal(t, 1, skipped)
}
