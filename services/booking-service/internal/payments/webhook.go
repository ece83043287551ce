package payments

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const maxWebhookBody = 1 << 20

// Deposits applies the outcome of a deposit checkout to its appointment.
// Both calls must tolerate repeats.
type Deposits interface {
	DepositPaid(ctx context.Context, appointmentID string) error
	DepositExpired(ctx context.Context, appointmentID string) error
}

// EventLog remembers processed provider events.
type EventLog interface {
	Seen(ctx context.Context, provider, eventID string) (bool, error)
	Record(ctx context.Context, provider, eventID, eventType, appointmentID string) (bool, error)
}

// Webhook verifies and applies Stripe checkout events. The signature is the
// only authentication; the gateway exposes the path publicly.
type Webhook struct {
	secret    string
	tolerance time.Duration
	deposits  Deposits
	events    EventLog
	logger    *slog.Logger
}

func NewWebhook(cfg Config, deposits Deposits, events EventLog, logger *slog.Logger) *Webhook {
	tolerance := cfg.WebhookTolerance
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &Webhook{
		secret:    strings.TrimSpace(cfg.WebhookSecret),
		tolerance: tolerance,
		deposits:  deposits,
		events:    events,
		logger:    logger,
	}
}

func (h *Webhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.secret == "" {
		http.Error(w, "stripe webhook not configured", http.StatusServiceUnavailable)
		return
	}
	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		http.Error(w, "missing Stripe-Signature header", http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	evt, err := webhook.ConstructEventWithTolerance(body, sigHeader, h.secret, h.tolerance)
	if err != nil {
		h.logger.Warn("stripe webhook rejected", "err", err)
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	evtType := string(evt.Type)
	seen, err := h.events.Seen(ctx, Provider, evt.ID)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	if seen {
		h.logger.Info("payment event duplicate ignored", "provider_event_id", evt.ID, "event_type", evtType)
		writeStatus(w, "duplicate")
		return
	}

	appointmentID, err := h.apply(ctx, evt)
	if err != nil {
		h.logger.Error("payment event failed", "provider_event_id", evt.ID, "event_type", evtType, "appointment_id", appointmentID, "err", err)
		http.Error(w, "failed to apply payment event", http.StatusInternalServerError)
		return
	}
	if _, err := h.events.Record(ctx, Provider, evt.ID, evtType, appointmentID); err != nil {
		h.logger.Warn("record payment event failed", "provider_event_id", evt.ID, "err", err)
	}
	h.logger.Info("payment event applied",
		"provider_event_id", evt.ID,
		"event_type", evtType,
		"appointment_id", appointmentID,
		"occurred_at", time.Unix(evt.Created, 0).UTC().Format(time.RFC3339),
	)
	writeStatus(w, "ok")
}

func (h *Webhook) apply(ctx context.Context, evt stripe.Event) (string, error) {
	switch evt.Type {
	case "checkout.session.completed", "checkout.session.expired":
	default:
		return "", nil
	}
	var session stripe.CheckoutSession
	if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
		h.logger.Error("stripe: invalid checkout session payload", "err", err)
		return "", nil
	}
	appointmentID := strings.TrimSpace(session.Metadata[MetadataAppointmentID])
	if appointmentID == "" {
		appointmentID = strings.TrimSpace(session.ClientReferenceID)
	}
	if appointmentID == "" {
		h.logger.Warn("stripe: checkout session without appointment", "session_id", session.ID)
		return "", nil
	}
	if evt.Type == "checkout.session.expired" {
		return appointmentID, h.deposits.DepositExpired(ctx, appointmentID)
	}
	if session.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
		return appointmentID, nil
	}
	return appointmentID, h.deposits.DepositPaid(ctx, appointmentID)
}

func writeStatus(w http.ResponseWriter, status string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}
