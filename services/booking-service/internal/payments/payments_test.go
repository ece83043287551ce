package payments

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/inkhouse/inkbook/services/booking-service/internal/catalog"
	"github.com/inkhouse/inkbook/services/booking-service/internal/model"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const testSecret = "whsec_test"

type fakeDeposits struct {
	paid    []string
	expired []string
	err     error
}

func (f *fakeDeposits) DepositPaid(_ context.Context, id string) error {
	f.paid = append(f.paid, id)
	return f.err
}

func (f *fakeDeposits) DepositExpired(_ context.Context, id string) error {
	f.expired = append(f.expired, id)
	return f.err
}

type memEventLog map[string]string

func (m memEventLog) Seen(_ context.Context, provider, id string) (bool, error) {
	_, ok := m[provider+"/"+id]
	return ok, nil
}

func (m memEventLog) Record(_ context.Context, provider, id, _ string, appointmentID string) (bool, error) {
	if _, ok := m[provider+"/"+id]; ok {
		return false, nil
	}
	m[provider+"/"+id] = appointmentID
	return true, nil
}

func eventBody(id, eventType, appointmentID, paymentStatus string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"object": "event",
		"type": %q,
		"api_version": %q,
		"created": %d,
		"data": {"object": {
			"id": "cs_test_1",
			"object": "checkout.session",
			"payment_status": %q,
			"metadata": {"appointment_id": %q}
		}}
	}`, id, eventType, stripe.APIVersion, time.Now().Unix(), paymentStatus, appointmentID))
}

func signedRequest(t *testing.T, body []byte, secret string) *http.Request {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   body,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/stripe/webhook", bytes.NewReader(body))
	req.Header.Set("Stripe-Signature", signed.Header)
	return req
}

func newTestWebhook(deposits Deposits, log EventLog) *Webhook {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewWebhook(Config{WebhookSecret: testSecret}, deposits, log, logger)
}

func TestWebhookCompletedConfirmsOnce(t *testing.T) {
	deposits := &fakeDeposits{}
	log := memEventLog{}
	h := newTestWebhook(deposits, log)
	body := eventBody("evt_1", "checkout.session.completed", "appt-1", "paid")

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, signedRequest(t, body, testSecret))
		if rec.Code != http.StatusOK {
			t.Fatalf("attempt %d: expected 200, got %d: %s", i, rec.Code, rec.Body.String())
		}
	}
	if len(deposits.paid) != 1 || deposits.paid[0] != "appt-1" {
		t.Fatalf("expected one confirmation, got %v", deposits.paid)
	}
	if log["stripe/evt_1"] != "appt-1" {
		t.Fatalf("event not recorded: %v", log)
	}
}

func TestWebhookExpiredCancels(t *testing.T) {
	deposits := &fakeDeposits{}
	h := newTestWebhook(deposits, memEventLog{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, eventBody("evt_2", "checkout.session.expired", "appt-2", "unpaid"), testSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(deposits.expired) != 1 || len(deposits.paid) != 0 {
		t.Fatalf("expected one expiry, got paid=%v expired=%v", deposits.paid, deposits.expired)
	}
}

func TestWebhookUnpaidCompletionWaits(t *testing.T) {
	deposits := &fakeDeposits{}
	h := newTestWebhook(deposits, memEventLog{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, eventBody("evt_3", "checkout.session.completed", "appt-3", "unpaid"), testSecret))
	if rec.Code != http.StatusOK || len(deposits.paid) != 0 {
		t.Fatalf("unpaid completion must not confirm: code=%d paid=%v", rec.Code, deposits.paid)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	deposits := &fakeDeposits{}
	h := newTestWebhook(deposits, memEventLog{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, eventBody("evt_4", "checkout.session.completed", "appt-4", "paid"), "whsec_other"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("{}")))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing header: expected 400, got %d", rec.Code)
	}
	if len(deposits.paid) != 0 {
		t.Fatalf("nothing should be applied")
	}
}

func TestWebhookFailureIsRetryable(t *testing.T) {
	deposits := &fakeDeposits{err: errors.New("db down")}
	log := memEventLog{}
	h := newTestWebhook(deposits, log)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, eventBody("evt_5", "checkout.session.completed", "appt-5", "paid"), testSecret))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if len(log) != 0 {
		t.Fatalf("failed events must not be recorded")
	}
}

func TestWebhookNotConfigured(t *testing.T) {
	h := NewWebhook(Config{}, &fakeDeposits{}, memEventLog{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestCheckoutParams(t *testing.T) {
	c := NewStripeCheckout(Config{SecretKey: "sk_test", SuccessURL: "https://s", CancelURL: "https://c", SessionLifetime: time.Minute})
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	svc, _ := catalog.Default().Lookup("small")

	p := c.params(model.Appointment{ID: "appt-9", ClientEmail: "a@b.c"}, svc, "usd")
	if p.Metadata[MetadataAppointmentID] != "appt-9" || *p.ClientReferenceID != "appt-9" {
		t.Fatalf("appointment id not attached: %+v", p.Metadata)
	}
	if *p.IdempotencyKey != "deposit-appt-9" {
		t.Fatalf("unexpected idempotency key %q", *p.IdempotencyKey)
	}
	if got := *p.LineItems[0].PriceData.UnitAmount; got != 5000 {
		t.Fatalf("expected deposit 5000, got %d", got)
	}
	if got := *p.ExpiresAt; got != now.Add(30*time.Minute).Unix() {
		t.Fatalf("session lifetime must be at least 30m, got %d", got)
	}
	if *p.CustomerEmail != "a@b.c" {
		t.Fatalf("customer email not set")
	}
}

func TestConfigValidate(t *testing.T) {
	if err := (Config{}).Validate(); err != nil {
		t.Fatalf("disabled config must be valid: %v", err)
	}
	if err := (Config{SecretKey: "sk"}).Validate(); err == nil {
		t.Fatalf("expected missing urls to fail")
	}
	if err := (Config{SecretKey: "sk", SuccessURL: "s", CancelURL: "c"}).Validate(); err == nil {
		t.Fatalf("expected missing webhook secret to fail")
	}
}
