package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"leadmap/config"
	"leadmap/models"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Token carries the result of a refresh-token exchange. The provider
// formats are opaque; only these three fields matter to the pollers.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// WatchChannel identifies a push-notification channel on the remote calendar.
type WatchChannel struct {
	ID         string
	ResourceID string
	ExpiresAt  time.Time
}

// CalendarAPI is the outward surface the cron pollers depend on. All calls
// are fallible, rate-limited and bounded by the context deadline.
type CalendarAPI interface {
	RefreshAccessToken(ctx context.Context, refreshToken string) (*Token, error)
	PushEvent(ctx context.Context, accessToken, calendarID string, event *models.CalendarEvent) (string, error)
	CreateWatchChannel(ctx context.Context, accessToken, calendarID, callbackURL string) (*WatchChannel, error)
	StopWatchChannel(ctx context.Context, accessToken, channelID, resourceID string) error
}

// GoogleCalendarClient implements CalendarAPI against the Google Calendar v3 API.
type GoogleCalendarClient struct {
	oauth  *oauth2.Config
	client *http.Client
}

func NewGoogleCalendarClient() *GoogleCalendarClient {
	return &GoogleCalendarClient{
		oauth: &oauth2.Config{
			ClientID:     config.AppConfig.Google.ClientID,
			ClientSecret: config.AppConfig.Google.ClientSecret,
			RedirectURL:  config.AppConfig.Google.RedirectURI,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"https://www.googleapis.com/auth/calendar"},
		},
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (g *GoogleCalendarClient) RefreshAccessToken(ctx context.Context, refreshToken string) (*Token, error) {
	src := g.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}

	refreshed := &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
	if refreshed.RefreshToken == "" {
		// Google omits the refresh token when it is unchanged
		refreshed.RefreshToken = refreshToken
	}
	return refreshed, nil
}

func (g *GoogleCalendarClient) PushEvent(ctx context.Context, accessToken, calendarID string, event *models.CalendarEvent) (string, error) {
	body := map[string]interface{}{
		"summary": event.Title,
		"start":   map[string]string{"dateTime": event.StartsAt.Format(time.RFC3339)},
		"end":     map[string]string{"dateTime": event.EndsAt.Format(time.RFC3339)},
	}

	url := fmt.Sprintf("https://www.googleapis.com/calendar/v3/calendars/%s/events", calendarID)
	method := http.MethodPost
	if event.RemoteEventID != "" {
		url = fmt.Sprintf("%s/%s", url, event.RemoteEventID)
		method = http.MethodPut
	}

	var response struct {
		ID string `json:"id"`
	}
	if err := g.doJSON(ctx, method, url, accessToken, body, &response); err != nil {
		return "", err
	}
	return response.ID, nil
}

func (g *GoogleCalendarClient) CreateWatchChannel(ctx context.Context, accessToken, calendarID, callbackURL string) (*WatchChannel, error) {
	channelID := uuid.New().String()
	body := map[string]interface{}{
		"id":      channelID,
		"type":    "web_hook",
		"address": callbackURL,
	}

	url := fmt.Sprintf("https://www.googleapis.com/calendar/v3/calendars/%s/events/watch", calendarID)

	var response struct {
		ResourceID string `json:"resourceId"`
		Expiration string `json:"expiration"` // ms since epoch, as a string
	}
	if err := g.doJSON(ctx, http.MethodPost, url, accessToken, body, &response); err != nil {
		return nil, err
	}

	channel := &WatchChannel{
		ID:         channelID,
		ResourceID: response.ResourceID,
		ExpiresAt:  time.Now().Add(7 * 24 * time.Hour),
	}
	var expMs int64
	if _, err := fmt.Sscanf(response.Expiration, "%d", &expMs); err == nil && expMs > 0 {
		channel.ExpiresAt = time.UnixMilli(expMs)
	}
	return channel, nil
}

func (g *GoogleCalendarClient) StopWatchChannel(ctx context.Context, accessToken, channelID, resourceID string) error {
	body := map[string]interface{}{
		"id":         channelID,
		"resourceId": resourceID,
	}
	return g.doJSON(ctx, http.MethodPost, "https://www.googleapis.com/calendar/v3/channels/stop", accessToken, body, nil)
}

func (g *GoogleCalendarClient) doJSON(ctx context.Context, method, url, accessToken string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("calendar API returned %d for %s %s", resp.StatusCode, method, url)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
