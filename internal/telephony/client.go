// Package telephony wraps the Twilio REST API: outbound call placement, the
// account credential probe, and recording media streaming.
package telephony

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/twilio/twilio-go"
	v2010 "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/grainlly/fraudline/internal/config"
)

// ErrNotConfigured is returned when provider credentials are missing
var ErrNotConfigured = errors.New("twilio credentials not configured")

const recordingMediaURL = "https://api.twilio.com/2010-04-01/Accounts/%s/Recordings/%s.mp3"

// Account describes the provider account, used by the credential probe
type Account struct {
	FriendlyName string `json:"accountName"`
	Status       string `json:"status"`
}

// Client is a thin wrapper over the Twilio REST client
type Client struct {
	config config.TwilioConfig
	logger *slog.Logger
	rest   *twilio.RestClient
	// media fetches recording audio; the REST SDK has no media download API
	media *http.Client
}

// NewClient creates a new telephony client
func NewClient(cfg config.TwilioConfig, logger *slog.Logger) *Client {
	return &Client{
		config: cfg,
		logger: logger,
		rest: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		}),
		media: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) configured() bool {
	return c.config.AccountSID != "" && c.config.AuthToken != ""
}

// CreateCall places an outbound call whose progress is driven by the voice
// webhook and whose terminal status arrives on the status callback. Returns
// the provider-assigned call SID.
func (c *Client) CreateCall(ctx context.Context, to, voiceURL, statusCallbackURL string) (string, error) {
	if !c.configured() {
		return "", ErrNotConfigured
	}

	params := &v2010.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(c.config.PhoneNumber)
	params.SetUrl(voiceURL)
	params.SetMethod("POST")
	params.SetStatusCallback(statusCallbackURL)
	params.SetStatusCallbackEvent([]string{"completed"})
	params.SetStatusCallbackMethod("POST")

	c.logger.Debug("Placing outbound call",
		"to", to,
		"from", c.config.PhoneNumber,
		"url", voiceURL)

	call, err := c.rest.Api.CreateCall(params)
	if err != nil {
		c.logger.Error("Failed to create call", "to", to, "error", err)
		return "", fmt.Errorf("failed to create call: %w", err)
	}
	if call.Sid == nil {
		return "", fmt.Errorf("provider returned call without SID")
	}

	c.logger.Info("Outbound call created", "call_sid", *call.Sid, "to", to)
	return *call.Sid, nil
}

// FetchAccount fetches the provider account, proving the configured
// credentials work
func (c *Client) FetchAccount(ctx context.Context) (*Account, error) {
	if !c.configured() {
		return nil, ErrNotConfigured
	}

	account, err := c.rest.Api.FetchAccount(c.config.AccountSID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account: %w", err)
	}

	result := &Account{}
	if account.FriendlyName != nil {
		result.FriendlyName = *account.FriendlyName
	}
	if account.Status != nil {
		result.Status = *account.Status
	}
	return result, nil
}

// StreamRecording opens the provider-held mp3 for a recording SID. The caller
// owns the returned body and must close it; bytes are piped through without
// buffering the file.
func (c *Client) StreamRecording(ctx context.Context, recordingSID string) (io.ReadCloser, error) {
	if !c.configured() {
		return nil, ErrNotConfigured
	}

	url := fmt.Sprintf(recordingMediaURL, c.config.AccountSID, recordingSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording request: %w", err)
	}
	req.SetBasicAuth(c.config.AccountSID, c.config.AuthToken)

	resp, err := c.media.Do(req)
	if err != nil {
		c.logger.Error("Failed to fetch recording", "recording_sid", recordingSID, "error", err)
		return nil, fmt.Errorf("failed to fetch recording: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("provider returned status %d for recording %s", resp.StatusCode, recordingSID)
	}

	return resp.Body, nil
}
