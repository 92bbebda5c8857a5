// Package notify carries the user-notification event emitted whenever the
// real-time limiter runs out of eligible devices to curtail. The transport
// is deliberately abstract; this module picks the bus as the transport,
// publishing onto a dedicated key on the existing mpc topic rather than
// inventing a second broker connection.
package notify

import (
	"context"
	"log/slog"
	"time"
)

// Kind categorizes a notification event.
type Kind string

const (
	// KindCurtailmentExhausted fires when the real-time limiter has no
	// eligible device left to curtail.
	KindCurtailmentExhausted Kind = "curtailment_exhausted"
)

// Event is one user-visible notification.
type Event struct {
	Kind      Kind      `json:"kind"`
	DeviceIDs []string  `json:"device_ids,omitempty"`
	Message   string    `json:"message"`
	Time      time.Time `json:"time"`
}

// Publisher delivers a notification event to its transport.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// busPublisher adapts anything exposing PublishNotification (internal/bus's
// Bus) to Publisher.
type busPublisher struct {
	publish func(ctx context.Context, event any) error
	logger  *slog.Logger
}

// NewBusPublisher wraps a bus publish function (internal/bus's
// (*Bus).PublishNotification) as a notify.Publisher.
func NewBusPublisher(publish func(ctx context.Context, event any) error, logger *slog.Logger) Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &busPublisher{publish: publish, logger: logger}
}

func (p *busPublisher) Publish(ctx context.Context, event Event) error {
	if err := p.publish(ctx, event); err != nil {
		p.logger.Warn("notify: publish failed", "kind", event.Kind, "error", err)
		return err
	}
	return nil
}

// LoggingPublisher is a fallback Publisher that only logs - useful when no
// bus connection is configured (e.g. in tests) but an Event still needs a
// destination.
type LoggingPublisher struct {
	Logger *slog.Logger
}

func (p LoggingPublisher) Publish(_ context.Context, event Event) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("notification", "kind", event.Kind, "devices", event.DeviceIDs, "message", event.Message)
	return nil
}
