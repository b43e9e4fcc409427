// Package transport defines the adapter contract between the dispatch core
// and the wire. Each transport implementation (websocket, kafka, sse, etc.)
// lives in its own sub-package and registers itself with the registry.
package transport

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
)

// MessageFunc receives one inbound message: the event type it targets and
// the raw payload exactly as the transport produced it.
type MessageFunc func(event string, payload []byte)

// Adapter is the required transport surface. Optional behaviour is expressed
// through the narrow interfaces below; the service feature-detects them at
// bind time. Installing a nil MessageFunc detaches the inbound callback.
type Adapter interface {
	// Name identifies the adapter in logs, metrics and the registry.
	Name() string

	// OnMessage installs the inbound callback. Every inbound message goes to
	// the most recently installed callback.
	OnMessage(fn MessageFunc)

	// Send delivers a payload to the given remote clients.
	Send(event string, payload []byte, clientIDs ...string) error

	// Broadcast fans a payload out to every reachable party, optionally
	// scoped to named channels.
	Broadcast(event string, payload []byte, channels ...string) error
}

// PayloadNormalizer converts a raw inbound frame into the canonical envelope
// before dispatch. Adapters whose wire format carries addressing implement
// this so the dispatcher can populate message metadata.
type PayloadNormalizer interface {
	NormalizePayload(raw []byte) (Envelope, error)
}

// Disconnector is implemented by adapters holding connections or servers
// that should be torn down when the service stops.
type Disconnector interface {
	Disconnect() error
}

// Runner is implemented by adapters that own a serve loop (a listening
// server or a consumer loop). Run must block until ctx is cancelled or the
// loop fails.
type Runner interface {
	Run(ctx context.Context) error
}

// ReconnectOptions carries the reconnect tuning the dispatch core forwards
// to the adapter verbatim. The core itself never interprets these values.
type ReconnectOptions struct {
	AutoReconnect        bool
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
}

// Reconfigurer is implemented by adapters that accept reconnect options
// after construction.
type Reconfigurer interface {
	Reconfigure(opts ReconnectOptions) error
}

// CapabilitiesProvider is implemented by adapters that can report their
// capabilities directly instead of relying on the registry defaults.
type CapabilitiesProvider interface {
	Capabilities() Capabilities
}

// Builder is the function signature for creating an adapter from config.
// Each transport package provides a Builder that can be registered.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Adapter, error)

// Config provides the configuration values needed by adapters. The interface
// lets transport packages access only the keys they need without depending
// on the full config package.
type Config interface {
	// GetTransport returns the selected adapter name.
	GetTransport() string

	// Core behaviour toggles.
	GetDebug() bool
	GetStrictMode() bool

	// Reconnect forwarding.
	GetAutoReconnect() bool
	GetMaxReconnectAttempts() int
	GetReconnectDelay() time.Duration

	// Bridge topics used by broker-backed adapters.
	GetInboundTopic() string
	GetOutboundTopic() string
	GetBroadcastTopic() string

	// WebSocket
	GetWSListenAddress() string
	GetWSPath() string
	GetWSAllowedOrigins() []string
	GetWSReadBufferSize() int
	GetWSWriteBufferSize() int
	GetWSMaxMessageSize() int64

	// Server-sent events
	GetSSEListenAddress() string

	// HTTP
	GetHTTPServerAddress() string
	GetHTTPPublisherURL() string

	// Kafka
	GetKafkaBrokers() []string
	GetKafkaConsumerGroup() string

	// NATS / JetStream
	GetNATSURL() string

	// RabbitMQ
	GetRabbitMQURL() string

	// AWS
	GetAWSRegion() string
	GetAWSAccountID() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetAWSEndpoint() string

	// Postgres
	GetPostgresURL() string

	// SQLite
	GetSQLiteFile() string

	// IO
	GetIOFile() string
}

// Metadata keys mirrored onto broker messages by bridge-backed adapters.
// These keys are reserved and should not be used for custom metadata.
const (
	MetaKeyEvent           = "sockflow_event"
	MetaKeyMessageID       = "sockflow_message_id"
	MetaKeyClientID        = "sockflow_client_id"
	MetaKeyEmitterClientID = "sockflow_emitter_client_id"
	MetaKeyChannel         = "sockflow_channel"
	MetaKeyApplicationID   = "sockflow_application_id"
	MetaKeyDelay           = "sockflow_delay"
)
