// Package embeddings turns patient message text into dense vectors for
// similarity search against the clinic playbook index.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"clinic_intake_backend/platform/apperr"
)

const defaultTimeout = 30 * time.Second

// Client is an HTTP client for the embedding service.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	httpClient *http.Client
}

// Config configures the embedding client. Model is forwarded to the
// service when set, so one deployment can serve several models.
// Dimensions, when positive, is the vector length the playbook
// collection was built with; responses of any other length are
// rejected before they reach the index.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// NewClient creates a new embedding service client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type embeddingRequest struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
}

// Embed generates an embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	const op = "embeddings.Embed"

	bodyBytes, err := json.Marshal(embeddingRequest{Text: text, Model: c.model})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "marshal embedding request", err).WithOp(op)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "build embedding request", err).WithOp(op)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Transient("embedding service unreachable", err).WithOp(op)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, apperr.Transient(
			fmt.Sprintf("embedding service returned %d: %s", resp.StatusCode, string(body)), nil,
		).WithOp(op)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Transient("read embedding response", err).WithOp(op)
	}

	vector, err := decodeVector(body)
	if err != nil {
		return nil, apperr.Transient("decode embedding response", err).WithOp(op)
	}
	if c.dimensions > 0 && len(vector) != c.dimensions {
		return nil, apperr.Transient(
			fmt.Sprintf("embedding has %d dimensions, collection expects %d", len(vector), c.dimensions), nil,
		).WithOp(op)
	}

	return vector, nil
}

// decodeVector accepts both {"vector": [...]} and raw array bodies,
// matching the two response shapes the service has shipped with.
func decodeVector(body []byte) ([]float32, error) {
	var wrapped struct {
		Vector []float32 `json:"vector"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && len(wrapped.Vector) > 0 {
		return wrapped.Vector, nil
	}

	var vector []float32
	if err := json.Unmarshal(body, &vector); err == nil && len(vector) > 0 {
		return vector, nil
	}

	return nil, fmt.Errorf("no vector in response body")
}
