package kafkax

import (
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	HeaderEventID     = "event_id"
	HeaderEventType   = "event_type"
	HeaderAggregateID = "aggregate_id"
	HeaderOccurredAt  = "occurred_at"
)

// EventMeta is the metadata every service puts on its Kafka messages.
type EventMeta struct {
	EventID     string
	EventType   string
	AggregateID string
	OccurredAt  time.Time
}

// Headers renders meta as Kafka headers. Empty fields are skipped.
func (m EventMeta) Headers() []kafka.Header {
	var headers []kafka.Header
	add := func(key, value string) {
		if value != "" {
			headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
		}
	}
	add(HeaderEventID, m.EventID)
	add(HeaderEventType, m.EventType)
	add(HeaderAggregateID, m.AggregateID)
	if !m.OccurredAt.IsZero() {
		add(HeaderOccurredAt, m.OccurredAt.UTC().Format(time.RFC3339Nano))
	}
	return headers
}

// ExtractEventMeta reads the headers written by Headers, falling back to the
// message key and topic for producers that do not set them.
func ExtractEventMeta(msg kafka.Message) EventMeta {
	meta := EventMeta{
		EventID:     HeaderValue(msg.Headers, HeaderEventID),
		EventType:   HeaderValue(msg.Headers, HeaderEventType),
		AggregateID: HeaderValue(msg.Headers, HeaderAggregateID),
	}
	if meta.EventID == "" {
		meta.EventID = string(msg.Key)
	}
	if meta.EventType == "" {
		meta.EventType = msg.Topic
	}
	if ts := HeaderValue(msg.Headers, HeaderOccurredAt); ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			meta.OccurredAt = t
		}
	}
	return meta
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
