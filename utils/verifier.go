package utils

import (
	"fmt"
	"net"
	"strings"

	"github.com/badoux/checkmail"
	"github.com/likexian/whois"
)

type VerificationResult struct {
	Email        string `json:"email"`
	Status       string `json:"status"` // valid, invalid, disposable, unknown
	Details      string `json:"details"`
	IsBounceRisk bool   `json:"is_bounce_risk"`
	WHOIS        string `json:"whois,omitempty"`
}

var disposableDomains = map[string]bool{
	"mailinator.com":     true,
	"guerrillamail.com":  true,
	"10minutemail.com":   true,
	"tempmail.com":       true,
	"temp-mail.org":      true,
	"throwawaymail.com":  true,
	"yopmail.com":        true,
	"sharklasers.com":    true,
	"getairmail.com":     true,
	"maildrop.cc":        true,
	"dispostable.com":    true,
	"trashmail.com":      true,
}

// Common email typos
var commonTypos = map[string]string{
	"gmai.com":   "gmail.com",
	"gmal.com":   "gmail.com",
	"gmail.co":   "gmail.com",
	"yaho.com":   "yahoo.com",
	"hotmai.com": "hotmail.com",
	"outlok.com": "outlook.com",
}

// VerifyEmailAddress checks a recipient address before enrollment:
// syntax, typo suggestions, disposable domains and MX reachability.
func VerifyEmailAddress(email string) (*VerificationResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	result := &VerificationResult{
		Email:        email,
		Status:       "unknown",
		IsBounceRisk: true,
	}

	if err := checkmail.ValidateFormat(email); err != nil {
		result.Status = "invalid"
		result.Details = "Invalid email format: " + err.Error()
		return result, nil
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		result.Status = "invalid"
		result.Details = "Invalid email format"
		return result, nil
	}

	localPart, domain := parts[0], parts[1]

	if suggestedDomain, ok := commonTypos[domain]; ok {
		result.Status = "invalid"
		result.Details = fmt.Sprintf("Possible typo, did you mean %s@%s?", localPart, suggestedDomain)
		return result, nil
	}

	if disposableDomains[domain] {
		result.Status = "disposable"
		result.Details = "Disposable email domain"
		return result, nil
	}

	if err := checkmail.ValidateHost(email); err != nil {
		// No deliverability signal; fall back to a raw MX lookup
		if mxRecords, mxErr := net.LookupMX(domain); mxErr != nil || len(mxRecords) == 0 {
			result.Status = "invalid"
			result.Details = "Domain has no MX records"
			return result, nil
		}
	}

	if whoisInfo, err := whois.Whois(domain); err == nil {
		result.WHOIS = whoisInfo
	}

	result.Status = "valid"
	result.IsBounceRisk = false
	return result, nil
}

// ExtractDomain returns the domain part of an email address
func ExtractDomain(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return ""
	}
	return parts[1]
}
