package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const twilioAPIBase = "https://api.twilio.com/2010-04-01"

// TwilioConfig configures the chat transport.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	// From is the sender number in E.164 form, without the channel prefix.
	From    string
	Timeout time.Duration
	// BaseURL overrides the API root; tests point it at a local server.
	BaseURL    string
	HTTPClient *http.Client
}

// TwilioSender posts WhatsApp messages through the Twilio REST API.
type TwilioSender struct {
	cfg    TwilioConfig
	client *http.Client
}

// NewTwilioSender builds a sender from cfg.
func NewTwilioSender(cfg TwilioConfig) *TwilioSender {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = twilioAPIBase
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &TwilioSender{cfg: cfg, client: client}
}

type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Send implements Sender.
func (s *TwilioSender) Send(ctx context.Context, handle, text string) error {
	form := url.Values{}
	form.Set("From", "whatsapp:"+s.cfg.From)
	form.Set("To", "whatsapp:"+handle)
	form.Set("Body", text)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", s.cfg.BaseURL, url.PathEscape(s.cfg.AccountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return &DeliveryError{Transport: "twilio", Handle: handle, Err: err}
	}
	req.SetBasicAuth(s.cfg.AccountSID, s.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return &DeliveryError{Transport: "twilio", Handle: handle, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	var apiErr twilioError
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
		return &DeliveryError{Transport: "twilio", Handle: handle, Err: fmt.Errorf("status %d: code %d: %s", resp.StatusCode, apiErr.Code, apiErr.Message)}
	}
	return &DeliveryError{Transport: "twilio", Handle: handle, Err: fmt.Errorf("status %d", resp.StatusCode)}
}
