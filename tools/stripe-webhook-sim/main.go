// Command stripe-webhook-sim signs Stripe checkout events for an appointment
// and posts them to the booking webhook, for local testing without the
// Stripe CLI.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/stripe/stripe-go/v79/webhook"
)

const webhookPath = "/api/v1/payments/stripe/webhook"

type options struct {
	baseURL       string
	secret        string
	paymentStatus string
	timeout       time.Duration
}

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "stripe-webhook-sim",
		Short:        "Send signed Stripe checkout events to the booking webhook",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.baseURL, "base-url", envOr("BASE_URL", "http://localhost:8080"), "gateway base url")
	root.PersistentFlags().StringVar(&opts.secret, "secret", os.Getenv("STRIPE_WEBHOOK_SECRET"), "webhook signing secret (whsec_...)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "request timeout")

	completed := &cobra.Command{
		Use:   "completed <appointment-id>",
		Short: "Simulate checkout.session.completed (deposit paid)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(cmd.Context(), cmd.OutOrStdout(), opts, eventCompleted, args[0])
		},
	}
	completed.Flags().StringVar(&opts.paymentStatus, "payment-status", "paid", "payment_status on the session")

	expired := &cobra.Command{
		Use:   "expired <appointment-id>",
		Short: "Simulate checkout.session.expired (deposit window closed)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(cmd.Context(), cmd.OutOrStdout(), opts, eventExpired, args[0])
		},
	}

	root.AddCommand(completed, expired)
	return root
}

func send(ctx context.Context, out io.Writer, opts *options, eventType, appointmentID string) error {
	if strings.TrimSpace(opts.secret) == "" {
		return fmt.Errorf("--secret or STRIPE_WEBHOOK_SECRET is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	now := time.Now().UTC()
	payload, err := buildEvent(eventType, appointmentID, opts.paymentStatus, now)
	if err != nil {
		return err
	}
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    opts.secret,
		Timestamp: now,
		Scheme:    "v1",
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(opts.baseURL, "/")+webhookPath, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))

	fmt.Fprintf(out, "status=%d %s\n", resp.StatusCode, strings.TrimSpace(string(body)))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
