package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/convergence/pkg/events"
)

var ErrUnknownNotification = errors.New("unknown notification type")

// WatermillForwarder republishes hub notifications on a watermill topic.
type WatermillForwarder struct {
	publisher message.Publisher
	topic     string
	logger    *slog.Logger
}

func NewWatermillForwarder(publisher message.Publisher, logger *slog.Logger) *WatermillForwarder {
	return &WatermillForwarder{
		publisher: publisher,
		topic:     events.Topic,
		logger:    logger.With("module", "watermill-forwarder"),
	}
}

func (f *WatermillForwarder) GenerateID() string {
	return watermill.NewULID()
}

func (f *WatermillForwarder) Publish(_ context.Context, notification events.Notification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal %s notification: %w", notification.GetType(), err)
	}

	msg := message.NewMessage("msg-"+f.GenerateID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, notification.GetKey())
	msg.Metadata.Set(events.EventTypeMetadataKey, string(notification.GetType()))

	return f.publisher.Publish(f.topic, msg)
}

// Attach subscribes the forwarder to the hub. Publish errors are logged, never propagated
// back into the emitting component.
func (f *WatermillForwarder) Attach(hub *Hub) func() {
	return hub.Subscribe(func(ctx context.Context, notification events.Notification) {
		err := f.Publish(ctx, notification)
		if err != nil {
			f.logger.ErrorContext(ctx, "Failed to forward notification",
				"event_type", notification.GetType(),
				"error", err)
		}
	})
}

func (f *WatermillForwarder) Close() error {
	return f.publisher.Close()
}

// Consume reads forwarded notifications back from a subscriber and hands them to handler
// until ctx is cancelled or the subscriber closes.
func Consume(ctx context.Context, subscriber message.Subscriber, handler Handler) error {
	messages, err := subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			notification, err := Decode(msg)
			if err != nil {
				msg.Nack()

				continue
			}

			handler(ctx, notification)
			msg.Ack()
		}
	}()

	return nil
}

// Decode turns a forwarded watermill message back into a typed notification.
func Decode(msg *message.Message) (events.Notification, error) {
	eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

	notification, ok := events.New(eventType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNotification, eventType)
	}

	err := json.Unmarshal(msg.Payload, notification)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s notification: %w", eventType, err)
	}

	return notification, nil
}
