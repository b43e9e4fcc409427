// Package sockflow is an event-dispatch core for real-time messaging. It
// receives typed events from a pluggable transport adapter, drives each one
// through a layered pipeline (global middleware, route lookup, authorization
// guards, route-local middleware, handler), and republishes derived events to
// local subscribers, independent of which wire transport (WebSocket, SSE,
// broker bridge, mock) delivered the original message.
//
// Service hosts the pipeline and exposes the registration surface:
// RegisterRoutes binds event types to handlers with optional guards and
// route-local middleware, RegisterJSONRoute and RegisterProtoRoute add typed
// payload decoding on top, Hook attaches lifecycle callbacks, and Use installs
// plugins that bundle all of the above. A minimal setup therefore involves
// filling Config, creating a Service, registering routes, and calling Start;
// the programs under examples/ show complete setups for the common cases.
//
// # Transports
//
// Sockflow ships 12 transport adapters out of the box:
//   - websocket: Gorilla-based hub server with unicast and channel broadcast
//   - sse: Server-sent events streaming with HTTP POST ingestion
//   - channel: In-memory Go channels for testing
//   - kafka: High-throughput streaming with consumer groups
//   - rabbitmq: AMQP-based durable queues
//   - aws: AWS SNS/SQS with LocalStack support
//   - nats: High-performance messaging
//   - jetstream: NATS JetStream persistence
//   - http: Request/response bridging
//   - io: File-based recording and replay
//   - sqlite: Embedded durable queue with delayed messages and DLQ
//   - postgres: PostgreSQL durable queue with SKIP LOCKED and DLQ
//
// Adapters register themselves with the transport registry; import
// sockflow/transport/transports to pull in the full set, or import individual
// adapter packages to keep the binary lean.
//
// # Middleware
//
// The default pipeline injects correlation IDs, logs message flow, records
// Prometheus dispatch metrics, and opens an OpenTelemetry span per message.
// Custom middleware can be added via ServiceDependencies.Middlewares or per
// route; a middleware that never calls next() short-circuits the pipeline,
// and ctx.Stop() drops the message while letting started middleware unwind.
//
// # Local event bus
//
// Handlers decouple from application code through the local event bus:
// ctx.Emit publishes in-process events that never touch the transport, and
// Service.On/Off manage listeners. A custom Emitter can replace the bus
// wholesale.
//
// When you need more control, ServiceDependencies exposes well-scoped hooks:
// bring your own Serializer, Emitter, ErrorHandler, middleware registrations,
// or even an entire TransportFactory to plug in custom adapters.
package sockflow
