/*
Package runtime provides the core event dispatch machinery for sockflow.

# Architecture Overview

The runtime package implements an event-dispatch pipeline for real-time
messaging. Inbound messages arrive through a transport adapter, pass through
global middleware, route guards and route middleware, and end in a typed or
untyped handler. Every message runs on its own goroutine and reaches exactly
one terminal outcome: done, rejected or errored.

# Package Structure

## Core Service (service.go)

The Service struct is the central orchestrator that wires together:
  - Route table with per-event stats
  - Global middleware pipeline
  - Lifecycle hooks and the local event bus
  - Transport adapter binding and the serve loop
  - HTTP servers for metrics and the introspection API

## Dispatch Pipeline (dispatch.go, chain.go, guards.go)

One message flows Created -> global middleware -> route lookup -> guards ->
route middleware -> handler. Middleware receives a continuation it must call
at most once; guards return allow/deny verdicts; panics anywhere in the
pipeline are contained.

## Route Registration (registration*.go)

Registration files provide raw and typed route binding:
  - registration.go: raw routes over the opaque payload
  - registration_json.go: typed JSON routes
  - registration_proto.go: typed Protocol Buffer routes

## Middleware (middleware.go)

The stock global pipeline:
  - CorrelationID: stamps a ULID for cross-log correlation
  - LogMessages: debug logging of inbound payloads
  - Metrics: Prometheus collector wiring and the scrape endpoint
  - Tracer: OpenTelemetry spans per message

## Stats & Monitoring (models.go, dispatch_metrics.go, resources.go)

Per-event statistics and process metrics:
  - Latency percentiles (p50, p95, p99)
  - Throughput over a sliding window
  - Error categorization by pipeline stage
  - Resource usage sampling

## WebUI (webui.go)

HTTP API for introspecting the route table and its statistics.

# Sub-packages

  - config/: Service configuration with validation
  - errors/: Sentinel errors and error types
  - eventbus/: Synchronous local pub/sub
  - handlers/: Typed payload decoders
  - ids/: ULID generation for message IDs
  - jsoncodec/: JSON marshaling utilities
  - logging/: Logger interface and adapters
  - metadata/: Message metadata utilities
  - transport/: Adapter factory over the transport registry

# Usage Example

	cfg := &sockflow.Config{
		Transport:       "websocket",
		WSListenAddress: ":8080",
		MetricsEnabled:  true,
		MetricsPort:     9090,
	}

	svc := sockflow.NewService(cfg, logger, sockflow.ServiceDependencies{
		Serializer: sockflow.JSONSerializer{},
	})

	svc.RegisterRoute(sockflow.Route{
		Event: "chat.message",
		Handler: func(mc *sockflow.MessageContext) error {
			return mc.Broadcast("chat.message", mc.Payload)
		},
	})

	svc.Start(ctx)
*/
package runtime
