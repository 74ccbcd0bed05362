package controller

import (
	"errors"
	"log"
	"time"

	"leadmap/config"
	"leadmap/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Per-item result statuses for cron summaries
const (
	CronItemSuccess = "success"
	CronItemFailed  = "failed"
	CronItemSkipped = "skipped"
	CronItemError   = "error"
)

// maxDetailedErrors caps how many per-item errors a cron response carries,
// to bound the response size.
const maxDetailedErrors = 10

var errCircuitBroken = errors.New("cleanup circuit breaker tripped")

// CronController hosts the scheduled batch jobs: token refresh, webhook
// renewal, event-sync retry and retention cleanup. Each handler is
// stateless and idempotent; overlapping triggers are tolerated.
type CronController struct {
	DB       *gorm.DB
	Logger   *log.Logger
	Calendar utils.CalendarAPI
	Backoff  utils.BackoffPolicy

	// Injectable for tests
	Now   func() time.Time
	Sleep func(time.Duration)
}

func NewCronController(db *gorm.DB, logger *log.Logger, calendar utils.CalendarAPI) *CronController {
	return &CronController{
		DB:       db,
		Logger:   logger,
		Calendar: calendar,
		Backoff:  utils.DefaultBackoff(),
		Now:      time.Now,
		Sleep:    time.Sleep,
	}
}

// CronItemResult is one row's outcome in a batch run
type CronItemResult struct {
	ID     uint   `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// CronStats summarizes a whole invocation
type CronStats struct {
	Total      int    `json:"total"`
	Processed  int    `json:"processed"`
	Successful int    `json:"successful"`
	Failed     int    `json:"failed"`
	Skipped    int    `json:"skipped"`
	Duration   string `json:"duration"`
}

// capResults truncates detailed error entries beyond the cap, keeping
// non-error entries intact so counters still reconcile.
func capResults(results []CronItemResult) []CronItemResult {
	capped := make([]CronItemResult, 0, len(results))
	errorsKept := 0
	for _, r := range results {
		if r.Status == CronItemFailed || r.Status == CronItemError {
			if errorsKept >= maxDetailedErrors {
				continue
			}
			errorsKept++
		}
		capped = append(capped, r)
	}
	return capped
}

func tally(results []CronItemResult) (successful, failed, skipped int) {
	for _, r := range results {
		switch r.Status {
		case CronItemSuccess:
			successful++
		case CronItemSkipped:
			skipped++
		default:
			failed++
		}
	}
	return
}

// configurationError reports a fatal misconfiguration; these invocations
// are never retried automatically.
func (cc *CronController) configurationError(c *fiber.Ctx, detail string) error {
	cc.Logger.Printf("cron configuration error: %s", detail)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"error":   "Server configuration error",
		"detail":  detail,
	})
}

func (cc *CronController) batchLimit() int {
	if config.AppConfig.CronBatchLimit > 0 {
		return config.AppConfig.CronBatchLimit
	}
	return 50
}
