// Package language is the client for the language service used by the
// decision engine for classification, urgency confirmation, and reply
// generation. The service is opaque: prompt in, text out. All taxonomy
// validation happens here at the boundary so the engine only ever sees
// closed enum values.
package language

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"clinic_intake_backend/internal/intake/domain"
	"clinic_intake_backend/internal/intake/engine"
	"clinic_intake_backend/platform/apperr"
	"clinic_intake_backend/platform/config"
	"clinic_intake_backend/platform/logger"

	"google.golang.org/genai"
)

const defaultCallTimeout = 10 * time.Second

type Client struct {
	client      *genai.Client
	model       string
	callTimeout time.Duration
	log         *logger.Logger
}

func NewClient(ctx context.Context, cfg config.LanguageConfig, log *logger.Logger) (*Client, error) {
	callTimeout := cfg.GetLanguageCallTimeout()
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.GetGeminiAPIKey(),
		HTTPClient: &http.Client{Timeout: callTimeout},
	})
	if err != nil {
		return nil, err
	}

	model := cfg.GetGeminiModel()
	if model == "" {
		model = "gemini-2.0-flash"
	}

	return &Client{
		client:      gc,
		model:       model,
		callTimeout: callTimeout,
		log:         log,
	}, nil
}

type classifyResponse struct {
	Intent     string `json:"intent"`
	Phase      string `json:"phase"`
	Confidence int    `json:"confidence"`
}

// Classify asks the model for intent, phase and confidence. Out-of-taxonomy
// answers are coerced, never propagated.
func (c *Client) Classify(ctx context.Context, message string, shortContext []string, phaseHint domain.FunnelPhase) (engine.Classification, error) {
	raw, _, err := c.generateJSON(ctx, classifyPrompt(message, shortContext, phaseHint))
	if err != nil {
		return engine.Classification{}, apperr.Transient("classification call failed", err)
	}

	var parsed classifyResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return engine.Classification{}, apperr.Transient("classification response not parseable", err)
	}

	confidence := parsed.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}

	return engine.Classification{
		Intent:     domain.ParseIntent(strings.ToUpper(strings.TrimSpace(parsed.Intent))),
		Phase:      domain.ParsePhase(strings.ToUpper(strings.TrimSpace(parsed.Phase))),
		Confidence: confidence,
	}, nil
}

type urgencyResponse struct {
	Level string `json:"level"`
}

// ConfirmUrgency is the model half of the two-stage urgency check. Unknown
// levels degrade to NONE; the keyword stage compensates.
func (c *Client) ConfirmUrgency(ctx context.Context, message string) (domain.UrgencyLevel, error) {
	raw, _, err := c.generateJSON(ctx, urgencyPrompt(message))
	if err != nil {
		return domain.UrgencyNone, apperr.Transient("urgency call failed", err)
	}

	var parsed urgencyResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return domain.UrgencyNone, apperr.Transient("urgency response not parseable", err)
	}

	return domain.ParseUrgency(strings.ToUpper(strings.TrimSpace(parsed.Level))), nil
}

// Generate produces the reply text for autonomous outcomes.
func (c *Client) Generate(ctx context.Context, req engine.GenerateRequest) (engine.GeneratedReply, error) {
	start := time.Now()
	text, tokens, err := c.generateText(ctx, generatePrompt(req))
	if err != nil {
		return engine.GeneratedReply{}, apperr.Transient("generation call failed", err)
	}

	return engine.GeneratedReply{
		Text:       strings.TrimSpace(text),
		TokensUsed: tokens,
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}

func (c *Client) generateJSON(ctx context.Context, prompt string) (string, int, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.1),
	}
	text, tokens, err := c.generate(ctx, prompt, cfg)
	if err != nil {
		return "", 0, err
	}
	return stripCodeFences(text), tokens, nil
}

func (c *Client) generateText(ctx context.Context, prompt string) (string, int, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.6),
	}
	return c.generate(ctx, prompt, cfg)
}

// generate performs one model call with a single short-backoff retry on
// failure. Anything failing past that surfaces as a transient error for the
// engine's fallback paths.
func (c *Client) generate(ctx context.Context, prompt string, cfg *genai.GenerateContentConfig) (string, int, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(500 * time.Millisecond):
			case <-ctx.Done():
				return "", 0, ctx.Err()
			}
		}

		resp, err := c.generateOnce(ctx, prompt, cfg)
		if err != nil {
			lastErr = err
			continue
		}

		tokens := 0
		if resp.UsageMetadata != nil {
			tokens = int(resp.UsageMetadata.TotalTokenCount)
		}
		return resp.Text(), tokens, nil
	}
	return "", 0, lastErr
}

// generateOnce bounds a single attempt by the configured call timeout so a
// hung model call cannot consume the whole pipeline budget.
func (c *Client) generateOnce(ctx context.Context, prompt string, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	return c.client.Models.GenerateContent(callCtx, c.model, genai.Text(prompt), cfg)
}

// stripCodeFences removes a markdown fence the model sometimes wraps around
// JSON output despite the response MIME type.
func stripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}
