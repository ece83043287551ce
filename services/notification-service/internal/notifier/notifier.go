// Package notifier delivers client and studio messages for booking events.
package notifier

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/inkhouse/inkbook/libs/kafkax"
	"github.com/inkhouse/inkbook/services/notification-service/internal/email"
	"github.com/inkhouse/inkbook/services/notification-service/internal/render"
	"github.com/inkhouse/inkbook/services/notification-service/internal/sms"
	"github.com/inkhouse/inkbook/services/notification-service/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
)

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

type Store interface {
	Insert(ctx context.Context, n storage.Notification) error
}

type Deps struct {
	Email      email.Sender
	SMS        sms.Sender
	Renderer   *render.Renderer
	Store      Store
	AdminEmail string
	Logger     *slog.Logger
	// Deliveries is optional.
	Deliveries *prometheus.CounterVec
}

type Notifier struct {
	email      email.Sender
	sms        sms.Sender
	renderer   *render.Renderer
	store      Store
	adminEmail string
	logger     *slog.Logger
	deliveries *prometheus.CounterVec
}

func New(d Deps) *Notifier {
	return &Notifier{
		email:      d.Email,
		sms:        d.SMS,
		renderer:   d.Renderer,
		store:      d.Store,
		adminEmail: d.AdminEmail,
		logger:     d.Logger,
		deliveries: d.Deliveries,
	}
}

// NewDeliveryCounter registers inkbook_notification_deliveries_total.
func NewDeliveryCounter(reg prometheus.Registerer) (*prometheus.CounterVec, error) {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inkbook_notification",
		Name:      "deliveries_total",
		Help:      "Notification delivery attempts by channel, kind and status.",
	}, []string{"channel", "kind", "status"})
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	return c, nil
}

type delivery struct {
	channel   string
	kind      string
	recipient string
	name      string
}

// Handle is a kafkax.Handler. Malformed or unknown events are dropped; only a
// failure to persist the attempt is returned, so the consumer retries it.
func (n *Notifier) Handle(ctx context.Context, msg kafka.Message) error {
	meta := kafkax.ExtractEventMeta(msg)
	kind, ok := render.KindFromTopic(meta.EventType)
	if !ok {
		n.logger.Warn("ignoring unknown event", "event_type", meta.EventType, "topic", msg.Topic)
		return nil
	}
	var appt render.Appointment
	if err := json.Unmarshal(msg.Value, &appt); err != nil {
		n.logger.Error("invalid appointment payload", "err", err, "event_id", meta.EventID)
		return nil
	}
	if appt.AppointmentID == "" {
		n.logger.Error("appointment event without id", "event_id", meta.EventID)
		return nil
	}

	for _, d := range n.plan(kind, appt) {
		if err := n.deliver(ctx, meta, appt, d); err != nil {
			return err
		}
	}
	return nil
}

func (n *Notifier) plan(kind string, a render.Appointment) []delivery {
	var out []delivery
	if a.ClientEmail != "" {
		out = append(out, delivery{channel: ChannelEmail, kind: kind, recipient: a.ClientEmail, name: a.ClientName})
	}
	if a.ClientPhone != "" {
		out = append(out, delivery{channel: ChannelSMS, kind: kind, recipient: a.ClientPhone})
	}
	if kind == render.KindRequested && n.adminEmail != "" {
		out = append(out, delivery{channel: ChannelEmail, kind: render.KindStudioRequested, recipient: n.adminEmail})
	}
	return out
}

func (n *Notifier) deliver(ctx context.Context, meta kafkax.EventMeta, appt render.Appointment, d delivery) error {
	rec := storage.Notification{
		AppointmentID: appt.AppointmentID,
		EventID:       meta.EventID,
		EventType:     meta.EventType,
		Channel:       d.channel,
		Recipient:     d.recipient,
		Status:        storage.StatusSent,
	}

	msg, err := n.renderer.Render(d.kind, appt)
	if err == nil {
		rec.Subject = msg.Subject
		err = n.send(ctx, d, msg, &rec)
	}
	if err != nil {
		rec.Status = storage.StatusFailed
		rec.Error = err.Error()
		n.logger.Error("notification failed",
			"err", err,
			"appointment_id", appt.AppointmentID,
			"channel", d.channel,
			"kind", d.kind,
		)
	}
	if n.deliveries != nil {
		n.deliveries.WithLabelValues(d.channel, d.kind, rec.Status).Inc()
	}

	if err := n.store.Insert(ctx, rec); err != nil {
		n.logger.Error("failed to persist notification", "err", err, "appointment_id", appt.AppointmentID)
		return err
	}
	n.logger.Info("notification processed",
		"appointment_id", appt.AppointmentID,
		"channel", d.channel,
		"kind", d.kind,
		"status", rec.Status,
	)
	return nil
}

func (n *Notifier) send(ctx context.Context, d delivery, msg render.Message, rec *storage.Notification) error {
	switch d.channel {
	case ChannelEmail:
		rec.Provider = n.email.ProviderID()
		return n.email.Send(ctx, email.Message{
			To:      d.recipient,
			ToName:  d.name,
			Subject: msg.Subject,
			Text:    msg.Text,
			HTML:    msg.HTML,
		})
	default:
		rec.Provider = n.sms.ProviderID()
		return n.sms.Send(ctx, d.recipient, msg.SMS)
	}
}
