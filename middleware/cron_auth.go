package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CronCaller is the verified identity of a cron trigger, attached to the
// request context so handlers receive the authorization decision as an
// explicit value instead of re-reading ambient configuration.
type CronCaller struct {
	Credential string // "cron-secret", "service-key" or "bearer"
}

// CronProtected authorizes scheduled-job triggers. Any of three pre-shared
// credentials is accepted: the X-Cron-Secret header, the X-Service-Key
// header, or Authorization: Bearer with the service key. Absence of all
// three rejects the invocation before any side effects.
func CronProtected(cronSecret, serviceKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if caller := matchCronCredential(c, cronSecret, serviceKey); caller != nil {
			c.Locals("cronCaller", caller)
			return c.Next()
		}

		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"error":   "Unauthorized",
		})
	}
}

func matchCronCredential(c *fiber.Ctx, cronSecret, serviceKey string) *CronCaller {
	if secretMatches(c.Get("X-Cron-Secret"), cronSecret) {
		return &CronCaller{Credential: "cron-secret"}
	}
	if secretMatches(c.Get("X-Service-Key"), serviceKey) {
		return &CronCaller{Credential: "service-key"}
	}

	authHeader := c.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		if secretMatches(strings.TrimPrefix(authHeader, "Bearer "), serviceKey) {
			return &CronCaller{Credential: "bearer"}
		}
	}
	return nil
}

func secretMatches(presented, configured string) bool {
	if presented == "" || configured == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) == 1
}
