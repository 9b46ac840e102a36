package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"clinic_intake_backend/platform/apperr"
	"clinic_intake_backend/platform/logger"
)

type waCfg struct {
	url      string
	key      string
	deviceID string
}

func (c waCfg) GetWhatsAppURL() string      { return c.url }
func (c waCfg) GetWhatsAppKey() string      { return c.key }
func (c waCfg) GetWhatsAppDeviceID() string { return c.deviceID }

func TestNewClientRequiresGatewayURL(t *testing.T) {
	if _, err := NewClient(waCfg{}, logger.New("test")); err == nil {
		t.Fatal("NewClient() with empty gateway URL must fail")
	}
}

func TestSendMessageUnconfiguredClientIsNotADelivery(t *testing.T) {
	var client *Client
	err := client.SendMessage(context.Background(), "clinic-main", "5511999990000@c.us", "oi")
	if !apperr.Is(err, apperr.KindTransient) {
		t.Fatalf("SendMessage() on nil client error = %v, want transient", err)
	}
}

func TestSendMessagePostsNormalizedPhone(t *testing.T) {
	var got gowaRequest
	var auth, device string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/send/message" {
			t.Errorf("path = %q, want /send/message", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		device = r.Header.Get("X-Device-Id")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(waCfg{url: srv.URL, key: "user:pass", deviceID: "device-1"}, logger.New("test"))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	if err := client.SendMessage(context.Background(), "clinic-main", "5511999990000@c.us", "oi"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if got.Phone != "5511999990000" {
		t.Errorf("phone = %q, want digits without suffix or plus", got.Phone)
	}
	if got.Session != "clinic-main" {
		t.Errorf("session = %q", got.Session)
	}
	if auth == "" || device != "device-1" {
		t.Errorf("auth = %q, device = %q", auth, device)
	}
}

func TestSendMessageGatewayFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "session offline", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(waCfg{url: srv.URL}, logger.New("test"))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if err := client.SendMessage(context.Background(), "clinic-main", "5511999990000@c.us", "oi"); !apperr.Is(err, apperr.KindTransient) {
		t.Fatalf("SendMessage() error = %v, want transient", err)
	}
}
