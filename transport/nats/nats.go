// Package nats provides a NATS Core transport adapter for sockflow.
package nats

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"

	"github.com/drblury/sockflow/transport"
	"github.com/drblury/sockflow/transport/bridge"
)

// TransportName is the name used to register this adapter.
const TransportName = "nats"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg nats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return nats.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg nats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return nats.NewSubscriber(cfg, logger)
}

func init() {
	Register()
}

// Register registers the NATS Core adapter with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSCapabilities)
}

// Build creates a NATS Core adapter. Reconnect settings are baked into the
// connection options, so the client library keeps the connection alive
// without any help from the dispatch layer.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Adapter, error) {
	url := cfg.GetNATSURL()
	marshaler := &nats.NATSMarshaler{}
	options := ConnectOptions(cfg)

	publisher, err := PublisherFactory(
		nats.PublisherConfig{
			URL:         url,
			NatsOptions: options,
			Marshaler:   marshaler,
			JetStream:   nats.JetStreamConfig{Disabled: true},
		},
		logger,
	)
	if err != nil {
		return nil, err
	}

	subscriber, err := SubscriberFactory(
		nats.SubscriberConfig{
			URL:         url,
			NatsOptions: options,
			Unmarshaler: marshaler,
			JetStream:   nats.JetStreamConfig{Disabled: true},
		},
		logger,
	)
	if err != nil {
		return nil, err
	}

	return bridge.New(TransportName, publisher, subscriber, bridge.TopicsFromConfig(cfg), logger)
}

// ConnectOptions derives nats.go connection options from the reconnect
// settings. MaxReconnectAttempts <= 0 means retry forever. The JetStream
// adapter shares these options.
func ConnectOptions(cfg transport.Config) []nc.Option {
	options := []nc.Option{nc.Name("sockflow")}
	if !cfg.GetAutoReconnect() {
		return options
	}

	attempts := cfg.GetMaxReconnectAttempts()
	if attempts <= 0 {
		attempts = -1
	}
	options = append(options,
		nc.RetryOnFailedConnect(true),
		nc.MaxReconnects(attempts),
	)
	if delay := cfg.GetReconnectDelay(); delay > 0 {
		options = append(options, nc.ReconnectWait(delay))
	}
	return options
}

// Capabilities returns the capabilities of this adapter.
func Capabilities() transport.Capabilities {
	return transport.NATSCapabilities
}
