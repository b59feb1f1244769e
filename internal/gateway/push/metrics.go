package push

import (
	"context"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// hubMetrics records through the global meter provider, which is a no-op
// unless the binary installs one.
type hubMetrics struct {
	active     metric.Int64UpDownCounter
	deliveries metric.Int64Counter
	drops      metric.Int64Counter
}

func newHubMetrics() *hubMetrics {
	meter := otel.Meter("sdui/push")
	m := &hubMetrics{}
	var err error
	if m.active, err = meter.Int64UpDownCounter("push.sessions.active",
		metric.WithDescription("Registered push sessions"),
		metric.WithUnit("{session}"),
	); err != nil {
		log.Printf("push: metric sessions: %v", err)
	}
	if m.deliveries, err = meter.Int64Counter("push.events.delivered",
		metric.WithDescription("Events handed to session senders"),
		metric.WithUnit("{event}"),
	); err != nil {
		log.Printf("push: metric delivered: %v", err)
	}
	if m.drops, err = meter.Int64Counter("push.events.dropped",
		metric.WithDescription("Events dropped for slow or closed sessions"),
		metric.WithUnit("{event}"),
	); err != nil {
		log.Printf("push: metric dropped: %v", err)
	}
	return m
}

func (m *hubMetrics) sessionOpened() {
	if m != nil && m.active != nil {
		m.active.Add(context.Background(), 1)
	}
}

func (m *hubMetrics) sessionClosed() {
	if m != nil && m.active != nil {
		m.active.Add(context.Background(), -1)
	}
}

func (m *hubMetrics) delivered(t EventType, n int) {
	if m == nil || m.deliveries == nil || n == 0 {
		return
	}
	m.deliveries.Add(context.Background(), int64(n), metric.WithAttributes(attribute.String("type", string(t))))
}

func (m *hubMetrics) dropped(t EventType) {
	if m == nil || m.drops == nil {
		return
	}
	m.drops.Add(context.Background(), 1, metric.WithAttributes(attribute.String("type", string(t))))
}
