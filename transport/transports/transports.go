// Package transports imports all built-in adapters for auto-registration.
// Import this package to have every adapter registered with the default
// registry.
package transports

import (
	// Import all adapters for side-effect registration
	_ "github.com/drblury/sockflow/transport/aws"
	_ "github.com/drblury/sockflow/transport/channel"
	_ "github.com/drblury/sockflow/transport/http"
	_ "github.com/drblury/sockflow/transport/io"
	_ "github.com/drblury/sockflow/transport/jetstream"
	_ "github.com/drblury/sockflow/transport/kafka"
	_ "github.com/drblury/sockflow/transport/nats"
	_ "github.com/drblury/sockflow/transport/postgres"
	_ "github.com/drblury/sockflow/transport/rabbitmq"
	_ "github.com/drblury/sockflow/transport/sqlite"
	_ "github.com/drblury/sockflow/transport/sse"
	_ "github.com/drblury/sockflow/transport/websocket"
)
