// Package whatsapp sends outbound replies through a gowa-compatible
// WhatsApp HTTP gateway.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"clinic_intake_backend/platform/apperr"
	"clinic_intake_backend/platform/config"
	"clinic_intake_backend/platform/logger"
	"clinic_intake_backend/platform/phone"
)

type Client struct {
	baseURL  string
	apiKey   string
	deviceID string
	http     *http.Client
	log      *logger.Logger
}

type gowaRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
	Session string `json:"session,omitempty"`
}

func NewClient(cfg config.WhatsAppConfig, log *logger.Logger) (*Client, error) {
	if cfg.GetWhatsAppURL() == "" {
		return nil, fmt.Errorf("WHATSAPP_URL is required")
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.GetWhatsAppURL(), "/"),
		apiKey:   cfg.GetWhatsAppKey(),
		deviceID: cfg.GetWhatsAppDeviceID(),
		http:     &http.Client{Timeout: 10 * time.Second},
		log:      log,
	}, nil
}

// SendMessage delivers one text to the thread's phone number on the given
// gateway session. Gateway failures come back transient so the job retries.
func (c *Client) SendMessage(ctx context.Context, sessionName, threadID, text string) error {
	if c == nil {
		// A delivery must never be reported while the gateway is not
		// configured. Transient keeps the reply queued instead of lost.
		return apperr.Transient("whatsapp gateway not configured", nil)
	}

	// Thread IDs are WhatsApp JIDs ("5511...@c.us"); the gateway wants
	// bare digits.
	number, _, _ := strings.Cut(threadID, "@")
	normalized := strings.TrimPrefix(phone.NormalizeE164(number), "+")

	payload := gowaRequest{
		Phone:   normalized,
		Message: text,
		Session: sessionName,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal whatsapp payload: %w", err)
	}

	url := fmt.Sprintf("%s/send/message", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", formatAuthHeader(c.apiKey))
	}
	if c.deviceID != "" {
		req.Header.Set("X-Device-Id", c.deviceID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Transient("whatsapp request failed", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return apperr.Transient(
			fmt.Sprintf("whatsapp gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data))),
			nil,
		)
	}

	c.log.Info("whatsapp sent via gowa", "phone", normalized, "session", sessionName)
	return nil
}

func formatAuthHeader(apiKey string) string {
	if strings.HasPrefix(strings.ToLower(apiKey), "basic ") {
		return apiKey
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(apiKey))
	return "Basic " + encoded
}
