package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

func TestBuildEventVerifies(t *testing.T) {
	now := time.Now().UTC()
	payload, err := buildEvent(eventCompleted, "appt-1", "", now)
	if err != nil {
		t.Fatalf("buildEvent: %v", err)
	}
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    "whsec_test",
		Timestamp: now,
		Scheme:    "v1",
	})
	evt, err := webhook.ConstructEvent(payload, signed.Header, "whsec_test")
	if err != nil {
		t.Fatalf("ConstructEvent: %v", err)
	}
	if evt.Type != stripe.EventType(eventCompleted) {
		t.Fatalf("type = %q", evt.Type)
	}
	if !strings.Contains(string(evt.Data.Raw), `"appointment_id":"appt-1"`) || !strings.Contains(string(evt.Data.Raw), `"payment_status":"paid"`) {
		t.Fatalf("unexpected session: %s", evt.Data.Raw)
	}
}

func TestBuildEventRejectsUnknownType(t *testing.T) {
	if _, err := buildEvent("invoice.paid", "appt-1", "", time.Now()); err == nil {
		t.Fatal("expected error")
	}
	if _, err := buildEvent(eventExpired, "", "", time.Now()); err == nil {
		t.Fatal("expected error for empty appointment id")
	}
}

func TestSendPostsSignedPayload(t *testing.T) {
	var sig, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sig = r.Header.Get("Stripe-Signature")
		path = r.URL.Path
		_, _ = w.Write([]byte(`{"status":"applied"}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	opts := &options{baseURL: srv.URL + "/", secret: "whsec_test", timeout: time.Second}
	if err := send(context.Background(), &out, opts, eventExpired, "appt-1"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if path != webhookPath || !strings.HasPrefix(sig, "t=") {
		t.Fatalf("path=%q sig=%q", path, sig)
	}
	if !strings.Contains(out.String(), "status=200") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestSendRequiresSecret(t *testing.T) {
	var out bytes.Buffer
	if err := send(context.Background(), &out, &options{timeout: time.Second}, eventCompleted, "appt-1"); err == nil {
		t.Fatal("expected error without secret")
	}
}
