// Package jetstream provides a NATS JetStream transport adapter for sockflow.
package jetstream

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/sockflow/transport"
	"github.com/drblury/sockflow/transport/bridge"
	natscore "github.com/drblury/sockflow/transport/nats"
)

// TransportName is the name used to register this adapter.
const TransportName = "nats-jetstream"

// TransportAlias is the short name the configuration layer uses.
const TransportAlias = "jetstream"

// DurablePrefix prefixes the durable consumer names provisioned per topic.
const DurablePrefix = "sockflow"

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

// Register adds this adapter to the default registry, under the canonical
// name and the short alias.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSJetStreamCapabilities)
	transport.RegisterWithCapabilities(TransportAlias, Build, transport.NATSJetStreamCapabilities)
}

// Build creates a NATS JetStream adapter. Streams are auto-provisioned and
// consumers are durable, so frames survive a process restart and delivery
// resumes where the consumer left off.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Adapter, error) {
	url := cfg.GetNATSURL()
	marshaler := &nats.NATSMarshaler{}
	options := natscore.ConnectOptions(cfg)
	js := nats.JetStreamConfig{
		AutoProvision: true,
		DurablePrefix: DurablePrefix,
	}

	publisher, err := PublisherFactory(
		nats.PublisherConfig{
			URL:         url,
			NatsOptions: options,
			Marshaler:   marshaler,
			JetStream:   js,
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
			JetStream:   js,
		},
		logger,
	)
	if err != nil {
		return nil, err
	}

	return bridge.New(TransportName, publisher, subscriber, bridge.TopicsFromConfig(cfg), logger)
}

// Capabilities returns the capabilities of this adapter.
func Capabilities() transport.Capabilities {
	return transport.NATSJetStreamCapabilities
}
