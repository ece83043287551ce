package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/inkhouse/inkbook/services/booking-service/internal/booking"
	"github.com/inkhouse/inkbook/services/booking-service/internal/catalog"
	"github.com/inkhouse/inkbook/services/booking-service/internal/model"
	"github.com/stripe/stripe-go/v79"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
)

const (
	Provider = "stripe"
	// MetadataAppointmentID links a checkout session back to its appointment.
	MetadataAppointmentID = "appointment_id"
	minSessionLifetime    = 30 * time.Minute
)

type Config struct {
	SecretKey        string
	WebhookSecret    string
	WebhookTolerance time.Duration
	SuccessURL       string
	CancelURL        string
	// SessionLifetime bounds how long the hosted page accepts payment.
	SessionLifetime time.Duration
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.SecretKey) != ""
}

func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if c.SuccessURL == "" || c.CancelURL == "" {
		return errors.New("stripe: success and cancel urls are required")
	}
	if c.WebhookSecret == "" {
		return errors.New("stripe: webhook secret is required when checkout is enabled")
	}
	return nil
}

// StripeCheckout creates deposit checkout sessions.
type StripeCheckout struct {
	client checkoutsession.Client
	cfg    Config
	now    func() time.Time
}

func NewStripeCheckout(cfg Config) *StripeCheckout {
	if cfg.SessionLifetime < minSessionLifetime {
		cfg.SessionLifetime = minSessionLifetime
	}
	return &StripeCheckout{
		client: checkoutsession.Client{B: stripe.GetBackend(stripe.APIBackend), Key: cfg.SecretKey},
		cfg:    cfg,
		now:    time.Now,
	}
}

func (s *StripeCheckout) CreateDepositSession(ctx context.Context, appt model.Appointment, svc catalog.Service, currency string) (booking.CheckoutSession, error) {
	params := s.params(appt, svc, currency)
	params.Context = ctx
	sess, err := s.client.New(params)
	if err != nil {
		return booking.CheckoutSession{}, fmt.Errorf("stripe checkout: %w", err)
	}
	return booking.CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (s *StripeCheckout) params(appt model.Appointment, svc catalog.Service, currency string) *stripe.CheckoutSessionParams {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(s.cfg.SuccessURL),
		CancelURL:         stripe.String(s.cfg.CancelURL),
		ClientReferenceID: stripe.String(appt.ID),
		ExpiresAt:         stripe.Int64(s.now().Add(s.cfg.SessionLifetime).Unix()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(svc.DepositCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(svc.Label + " deposit"),
					},
				},
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{MetadataAppointmentID: appt.ID},
		},
	}
	if appt.ClientEmail != "" {
		params.CustomerEmail = stripe.String(appt.ClientEmail)
	}
	params.AddMetadata(MetadataAppointmentID, appt.ID)
	params.IdempotencyKey = stripe.String("deposit-" + appt.ID)
	return params
}
