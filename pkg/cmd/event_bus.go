package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/convergence/pkg/channels/gochannel"
	"github.com/dukex/convergence/pkg/channels/kafka"
)

// NewChannel returns the publisher/subscriber pair for the given provider.
// "none" (or empty) returns nils and means notifications stay in process.
func NewChannel(provider string, logger *slog.Logger) (message.Publisher, message.Subscriber, error) {
	switch provider {
	case "", "none":
		return nil, nil, nil
	case "gochannel":
		return gochannel.CreateChannel(watermill.NewSlogLogger(logger))
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), "convergence")
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return pub, sub, nil
	default:
		return nil, nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
