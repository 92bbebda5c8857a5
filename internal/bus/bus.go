// Package bus is the message-bus subscriber/publisher for the single `mpc`
// topic, grounded on kafkabus.Bus's Reader/Writer construction
// (segmentio/kafka-go), generalized from that package's generic per-topic
// accessors to this module's single fixed topic and typed request/ack
// payloads.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/cepro/hems-controller/internal/errkind"
)

// Topic is the single message-bus topic planning requests and acks round-trip on.
const Topic = "mpc"

// Bus wraps a kafka-go reader/writer pair bound to Topic.
type Bus struct {
	brokers []string
	groupID string
	logger  *slog.Logger
}

// New returns a Bus connecting to the given broker addresses.
func New(brokers []string, groupID string, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{brokers: brokers, groupID: groupID, logger: logger.With("component", "bus")}
}

// reader builds a fresh kafka.Reader for Topic, matching kafkabus.Bus's
// MinBytes/MaxBytes/MaxWait tuning.
func (b *Bus) reader() *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  b.brokers,
		GroupID:  b.groupID,
		Topic:    Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
}

// writer builds a fresh kafka.Writer for Topic, with synchronous
// RequireOne acknowledgement so a publish failure is observable.
func (b *Bus) writer() *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(b.brokers...),
		Topic:        Topic,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
}

// Request is the decoded payload of a planning request message:
// `{"params": {...}}`, with empty/missing params meaning a stop-RTL request.
type Request struct {
	Params *RequestParams `json:"params"`
}

// RequestParams carries the planner/RTL configuration of one request.
type RequestParams struct {
	Start           time.Time          `json:"start"`
	Stop            time.Time          `json:"stop"`
	IntervalSeconds int                `json:"interval"`
	PriceProfile    map[string]float64 `json:"price_profile"`
	PowerLimit      map[string]float64 `json:"power_limit"`
	SpaceHeating    bool               `json:"space_heating"`
	ElectricStorage bool               `json:"electric_storage"`
	ElectricVehicle bool               `json:"electric_vehicle"`
	WaterHeater     bool               `json:"water_heater"`
}

// IsStopRequest reports whether this is a "stop RTL" request: empty or
// missing params.
func (r Request) IsStopRequest() bool {
	if r.Params == nil {
		return true
	}
	p := r.Params
	return p.Start.IsZero() && p.Stop.IsZero() && p.IntervalSeconds == 0 &&
		len(p.PriceProfile) == 0 && len(p.PowerLimit) == 0 &&
		!p.SpaceHeating && !p.ElectricStorage && !p.ElectricVehicle && !p.WaterHeater
}

// Handler processes one decoded Request and returns the boolean ack to
// publish.
type Handler func(ctx context.Context, req Request) bool

// Run reads messages from Topic until ctx is cancelled, decoding each as a
// Request, invoking handle, and publishing the boolean ack back onto the
// same topic.
func (b *Bus) Run(ctx context.Context, handle Handler) error {
	reader := b.reader()
	writer := b.writer()
	defer reader.Close()
	defer writer.Close()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Warn("bus read failed", "error", err)
			return &errkind.BusTransient{Err: err}
		}

		if isOwnTraffic(msg.Key) {
			// Our own outbound acks and notifications round-trip back
			// through this same topic/consumer group; skip them rather
			// than decoding them as a planning request.
			continue
		}

		var req Request
		if err := json.Unmarshal(msg.Value, &req); err != nil {
			b.logger.Error("bus message decode failed", "error", err)
			continue
		}

		ack := handle(ctx, req)

		if err := b.publishAck(ctx, writer, ack); err != nil {
			b.logger.Error("bus ack publish failed", "error", err)
		}
	}
}

func (b *Bus) publishAck(ctx context.Context, writer *kafka.Writer, ack bool) error {
	payload, err := json.Marshal(ack)
	if err != nil {
		return fmt.Errorf("bus: encode ack: %w", err)
	}
	return writer.WriteMessages(ctx, kafka.Message{Key: []byte(ackKey), Value: payload})
}

// ackKey and notificationKey mark this bus's own outbound traffic on the
// shared Topic, so Run can skip re-consuming it as an inbound request.
const (
	ackKey          = "ack"
	notificationKey = "notifications"
)

// isOwnTraffic reports whether a message key marks it as this bus's own
// previously-published ack or notification, rather than an inbound request.
func isOwnTraffic(key []byte) bool {
	k := string(key)
	return k == ackKey || k == notificationKey
}

// PublishNotification publishes a JSON-encodable notification event onto
// Topic under notificationKey. Used by internal/notify.
func (b *Bus) PublishNotification(ctx context.Context, event any) error {
	writer := b.writer()
	defer writer.Close()

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("bus: encode notification: %w", err)
	}
	return writer.WriteMessages(ctx, kafka.Message{Key: []byte(notificationKey), Value: payload})
}
