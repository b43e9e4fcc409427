// Package channel provides an in-memory Go channel adapter for sockflow.
// This adapter is useful for testing and local development.
package channel

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/sockflow/transport"
	"github.com/drblury/sockflow/transport/bridge"
)

// TransportName is the name used to register this adapter.
const TransportName = "channel"

// Factory allows overriding the channel creation for testing.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	pubSub := gochannel.NewGoChannel(cfg, logger)
	return pubSub, pubSub
}

func init() {
	Register()
}

// Register adds this adapter to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.ChannelCapabilities)
}

// Build creates a new Go channel adapter.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Adapter, error) {
	pub, sub := Factory(gochannel.Config{}, logger)
	return bridge.New(TransportName, pub, sub, bridge.TopicsFromConfig(cfg), logger)
}

// Capabilities returns the capabilities of this adapter.
func Capabilities() transport.Capabilities {
	return transport.ChannelCapabilities
}
