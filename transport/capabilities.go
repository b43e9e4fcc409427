package transport

// Capabilities describes the delivery features supported by a transport
// adapter. Use this to introspect what operations are available at runtime.
type Capabilities struct {
	// SupportsUnicast indicates the adapter can address individual clients.
	// When false, client targeting metadata is carried but a downstream edge
	// must do the actual routing.
	SupportsUnicast bool

	// SupportsBroadcast indicates the adapter can fan a message out to every
	// connected party.
	SupportsBroadcast bool

	// SupportsChannels indicates the adapter understands channel scoping for
	// broadcasts (rooms, topics, subscription groups).
	SupportsChannels bool

	// SupportsNormalization indicates the adapter can turn raw inbound frames
	// into canonical envelopes (it implements PayloadNormalizer).
	SupportsNormalization bool

	// SupportsReconnect indicates the adapter honours reconnect options
	// (it implements Reconfigurer or reconnects internally).
	SupportsReconnect bool

	// Persistent indicates messages survive a process restart
	// (broker-backed or file-backed adapters).
	Persistent bool

	// MaxMessageSize is the maximum message size in bytes (0 = unlimited/unknown).
	MaxMessageSize int64

	// Name is the human-readable name of the adapter.
	Name string

	// Version is the adapter/driver version.
	Version string
}

// RequiresEdgeRouting returns true if client-targeted sends need a
// downstream edge to route, because the adapter itself cannot address
// individual clients.
func (c Capabilities) RequiresEdgeRouting() bool {
	return !c.SupportsUnicast
}

// SupportsScopedBroadcast returns true if broadcasts can be narrowed to
// named channels.
func (c Capabilities) SupportsScopedBroadcast() bool {
	return c.SupportsBroadcast && c.SupportsChannels
}

// RequiresReconnectEmulation returns true if the adapter needs
// application-level reconnect handling because it doesn't honour reconnect
// options itself.
func (c Capabilities) RequiresReconnectEmulation() bool {
	return !c.SupportsReconnect
}

// Predefined capability sets for the built-in adapters.
var (
	// ChannelCapabilities for the in-memory Go channel adapter.
	ChannelCapabilities = Capabilities{
		Name:                  "channel",
		SupportsUnicast:       true,
		SupportsBroadcast:     true,
		SupportsChannels:      true,
		SupportsNormalization: true,
		SupportsReconnect:     false,
		Persistent:            false,
	}

	// WebsocketCapabilities for the WebSocket hub adapter.
	WebsocketCapabilities = Capabilities{
		Name:                  "websocket",
		SupportsUnicast:       true,
		SupportsBroadcast:     true,
		SupportsChannels:      true,
		SupportsNormalization: true,
		SupportsReconnect:     false,
		Persistent:            false,
	}

	// SSECapabilities for the server-sent events adapter.
	SSECapabilities = Capabilities{
		Name:                  "sse",
		SupportsUnicast:       true,
		SupportsBroadcast:     true,
		SupportsChannels:      true,
		SupportsNormalization: true,
		SupportsReconnect:     false,
		Persistent:            false,
	}

	// HTTPCapabilities for the HTTP webhook adapter.
	HTTPCapabilities = Capabilities{
		Name:                  "http",
		SupportsUnicast:       false,
		SupportsBroadcast:     true,
		SupportsChannels:      false,
		SupportsNormalization: true,
		SupportsReconnect:     false,
		Persistent:            false,
	}

	// KafkaCapabilities for the Apache Kafka adapter.
	KafkaCapabilities = Capabilities{
		Name:                  "kafka",
		SupportsUnicast:       true,
		SupportsBroadcast:     true,
		SupportsChannels:      true,
		SupportsNormalization: true,
		SupportsReconnect:     true,
		Persistent:            true,
		MaxMessageSize:        1048576, // Default 1MB
	}

	// NATSCapabilities for the NATS Core adapter.
	NATSCapabilities = Capabilities{
		Name:                  "nats",
		SupportsUnicast:       true,
		SupportsBroadcast:     true,
		SupportsChannels:      true,
		SupportsNormalization: true,
		SupportsReconnect:     true,
		Persistent:            false,
		MaxMessageSize:        1048576, // Default 1MB
	}

	// NATSJetStreamCapabilities for the NATS JetStream adapter.
	NATSJetStreamCapabilities = Capabilities{
		Name:                  "nats-jetstream",
		SupportsUnicast:       true,
		SupportsBroadcast:     true,
		SupportsChannels:      true,
		SupportsNormalization: true,
		SupportsReconnect:     true,
		Persistent:            true,
		MaxMessageSize:        1048576, // Default 1MB
	}

	// RabbitMQCapabilities for the RabbitMQ/AMQP adapter.
	RabbitMQCapabilities = Capabilities{
		Name:                  "rabbitmq",
		SupportsUnicast:       true,
		SupportsBroadcast:     true,
		SupportsChannels:      true,
		SupportsNormalization: true,
		SupportsReconnect:     true,
		Persistent:            true,
	}

	// AWSCapabilities for the AWS SNS/SQS adapter.
	AWSCapabilities = Capabilities{
		Name:                  "aws",
		SupportsUnicast:       true,
		SupportsBroadcast:     true,
		SupportsChannels:      true,
		SupportsNormalization: true,
		SupportsReconnect:     true,
		Persistent:            true,
		MaxMessageSize:        262144, // 256KB
	}

	// PostgresCapabilities for the PostgreSQL durable queue adapter.
	PostgresCapabilities = Capabilities{
		Name:                  "postgres",
		SupportsUnicast:       true,
		SupportsBroadcast:     true,
		SupportsChannels:      true,
		SupportsNormalization: true,
		SupportsReconnect:     true,
		Persistent:            true,
	}

	// SQLiteCapabilities for the SQLite durable queue adapter.
	SQLiteCapabilities = Capabilities{
		Name:                  "sqlite",
		SupportsUnicast:       true,
		SupportsBroadcast:     true,
		SupportsChannels:      true,
		SupportsNormalization: true,
		SupportsReconnect:     false,
		Persistent:            true,
	}

	// IOCapabilities for the file-based record/replay adapter.
	IOCapabilities = Capabilities{
		Name:                  "io",
		SupportsUnicast:       false,
		SupportsBroadcast:     true,
		SupportsChannels:      false,
		SupportsNormalization: true,
		SupportsReconnect:     false,
		Persistent:            true,
	}
)

// GetCapabilities returns the capabilities for an adapter by name.
// Uses the registry to look up capabilities registered by each adapter package.
// Unknown adapters get a Capabilities value carrying only the name.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}
