package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"clinic_intake_backend/internal/intake/domain"
	"clinic_intake_backend/internal/intake/engine"
	"clinic_intake_backend/internal/queue"
	"clinic_intake_backend/platform/logger"
	"clinic_intake_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

type fakeEnqueuer struct {
	enqueued []engine.InboundMessage
	lanes    []string
	fail     bool
}

func (f *fakeEnqueuer) EnqueueInbound(_ context.Context, msg engine.InboundMessage, lane string) error {
	if f.fail {
		return context.DeadlineExceeded
	}
	f.enqueued = append(f.enqueued, msg)
	f.lanes = append(f.lanes, lane)
	return nil
}

type gatewayCfg struct {
	apiKey string
}

func (c gatewayCfg) GetHTTPAddr() string      { return ":0" }
func (c gatewayCfg) GetWebhookAPIKey() string { return c.apiKey }
func (c gatewayCfg) GetRateLimitRPS() float64 { return 100 }
func (c gatewayCfg) GetRateLimitBurst() int   { return 100 }

func newTestRouter(t *testing.T, enq *fakeEnqueuer, apiKey string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	scanner := domain.NewKeywordScanner([]string{"sangrando", "emergência"})
	h := NewHandler(enq, scanner, validator.New(), logger.New("test"))
	return NewRouter(gatewayCfg{apiKey: apiKey}, h, logger.New("test"))
}

func postMessage(router *gin.Engine, apiKey string, body any) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/v1/webhook/messages", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-Webhook-API-Key", apiKey)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestInboundMessageAccepted(t *testing.T) {
	enq := &fakeEnqueuer{}
	router := newTestRouter(t, enq, "secret")

	w := postMessage(router, "secret", map[string]string{
		"threadId":         "5511999990000",
		"senderAddress":    "+55 11 99999-0000",
		"body":             "quanto custa a limpeza?",
		"sessionName":      "clinic-main",
		"channelMessageId": "wamid.1",
	})

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", w.Code, w.Body.String())
	}

	var resp WebhookMessageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Lane != queue.LaneMessages {
		t.Fatalf("lane = %q, want %q", resp.Lane, queue.LaneMessages)
	}

	if len(enq.enqueued) != 1 {
		t.Fatalf("enqueued %d messages, want 1", len(enq.enqueued))
	}
	if got := enq.enqueued[0].SenderAddress; got != "+5511999990000" {
		t.Fatalf("sender normalized to %q, want +5511999990000", got)
	}
}

func TestInboundMessageUrgentPrescanPicksEscalationLane(t *testing.T) {
	enq := &fakeEnqueuer{}
	router := newTestRouter(t, enq, "secret")

	w := postMessage(router, "secret", map[string]string{
		"threadId":      "5511999990000",
		"senderAddress": "+5511999990000",
		"body":          "meu filho está SANGRANDO muito",
	})

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", w.Code, w.Body.String())
	}
	if len(enq.lanes) != 1 || enq.lanes[0] != queue.LaneEscalation {
		t.Fatalf("lanes = %v, want [%s]", enq.lanes, queue.LaneEscalation)
	}
}

func TestInboundMessageValidation(t *testing.T) {
	enq := &fakeEnqueuer{}
	router := newTestRouter(t, enq, "secret")

	cases := []struct {
		name string
		body map[string]string
	}{
		{"missing threadId", map[string]string{"senderAddress": "+5511999990000", "body": "oi"}},
		{"missing sender", map[string]string{"threadId": "t1", "body": "oi"}},
		{"empty body", map[string]string{"threadId": "t1", "senderAddress": "+5511999990000", "body": ""}},
		{"markup-only body", map[string]string{"threadId": "t1", "senderAddress": "+5511999990000", "body": "<div></div>"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := postMessage(router, "secret", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
		})
	}

	if len(enq.enqueued) != 0 {
		t.Fatalf("enqueued %d messages, want 0", len(enq.enqueued))
	}
}

func TestInboundMessageRequiresAPIKey(t *testing.T) {
	enq := &fakeEnqueuer{}
	router := newTestRouter(t, enq, "secret")

	w := postMessage(router, "wrong-key", map[string]string{
		"threadId":      "t1",
		"senderAddress": "+5511999990000",
		"body":          "oi",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestInboundMessageEnqueueFailure(t *testing.T) {
	enq := &fakeEnqueuer{fail: true}
	router := newTestRouter(t, enq, "secret")

	w := postMessage(router, "secret", map[string]string{
		"threadId":      "t1",
		"senderAddress": "+5511999990000",
		"body":          "oi",
	})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}
