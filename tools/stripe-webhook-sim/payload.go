package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v79"
)

const (
	eventCompleted = "checkout.session.completed"
	eventExpired   = "checkout.session.expired"
)

// buildEvent renders a minimal Stripe event envelope around a checkout
// session. api_version must match the library or webhook.ConstructEvent
// rejects the payload.
func buildEvent(eventType, appointmentID, paymentStatus string, t time.Time) ([]byte, error) {
	if appointmentID == "" {
		return nil, fmt.Errorf("appointment id is required")
	}
	session := map[string]any{
		"id":                  fmt.Sprintf("cs_test_%d", t.UnixNano()),
		"object":              "checkout.session",
		"client_reference_id": appointmentID,
		"metadata": map[string]any{
			"appointment_id": appointmentID,
		},
	}
	switch eventType {
	case eventCompleted:
		if paymentStatus == "" {
			paymentStatus = "paid"
		}
		session["status"] = "complete"
		session["payment_status"] = paymentStatus
	case eventExpired:
		session["status"] = "expired"
		session["payment_status"] = "unpaid"
	default:
		return nil, fmt.Errorf("unsupported event type: %s", eventType)
	}
	return json.Marshal(map[string]any{
		"id":          fmt.Sprintf("evt_test_%d", t.UnixNano()),
		"object":      "event",
		"created":     t.Unix(),
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"data": map[string]any{
			"object": session,
		},
	})
}
