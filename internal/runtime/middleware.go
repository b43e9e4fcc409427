package runtime

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	errspkg "github.com/drblury/sockflow/internal/runtime/errors"
	idspkg "github.com/drblury/sockflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/sockflow/internal/runtime/logging"
)

// ScratchKeyCorrelationID is where the correlation middleware stores the id
// that ties a message's log lines and spans together.
const ScratchKeyCorrelationID = "correlation_id"

// MiddlewareBuilder constructs middleware against a live service, so it can
// read config and reach collaborators. Returning a nil Middleware with a
// nil error skips registration; builders use this to no-op when their
// feature is disabled.
type MiddlewareBuilder func(s *Service) (Middleware, error)

// MiddlewareRegistration names a middleware and provides it either directly
// or through a builder.
type MiddlewareRegistration struct {
	Name       string
	Middleware Middleware
	Builder    MiddlewareBuilder
}

// DefaultMiddlewares returns the stock global pipeline: correlation ids,
// debug message logging, Prometheus wiring and OpenTelemetry spans. The
// config-gated entries drop out of disabled services at build time.
func DefaultMiddlewares() []MiddlewareRegistration {
	return []MiddlewareRegistration{
		CorrelationIDMiddleware(),
		LogMessagesMiddleware(nil),
		MetricsMiddleware(),
		TracerMiddleware(),
	}
}

// CorrelationIDMiddleware stamps a ULID into the scratch space unless an
// earlier stage already set one.
func CorrelationIDMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "correlation_id",
		Middleware: func(mc *MessageContext, next Next) error {
			if _, ok := mc.Get(ScratchKeyCorrelationID); !ok {
				mc.Set(ScratchKeyCorrelationID, idspkg.CreateULID())
			}
			return next()
		},
	}
}

// LogMessagesMiddleware logs every inbound message at debug level. Only
// active when the service runs with Debug enabled. A nil logger falls back
// to the service logger.
func LogMessagesMiddleware(logger loggingpkg.ServiceLogger) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "log_messages",
		Builder: func(s *Service) (Middleware, error) {
			if !s.Conf.Debug {
				return nil, nil
			}
			log := logger
			if log == nil {
				log = s.Logger
			}
			return func(mc *MessageContext, next Next) error {
				var preview string
				switch payload := mc.Payload.(type) {
				case []byte:
					preview = string(payload)
				default:
					preview = fmt.Sprintf("%v", payload)
				}
				log.Debug("message received", loggingpkg.LogFields{
					"message_id": mc.MessageID,
					"event":      mc.Event,
					"payload":    preview,
				})
				return next()
			}, nil
		},
	}
}

// MetricsMiddleware wires the Prometheus collectors and the scrape endpoint
// when metrics are enabled. Recording happens centrally in the dispatch
// loop; the builder only registers collectors and exposes /metrics, so it
// returns no pipeline stage.
func MetricsMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "metrics",
		Builder: func(s *Service) (Middleware, error) {
			if !s.Conf.MetricsEnabled {
				return nil, nil
			}
			if err := s.metrics.Register(); err != nil {
				return nil, err
			}
			if port := s.Conf.GetMetricsPort(); port > 0 {
				s.RegisterHTTPHandler(port, "/metrics", promhttp.Handler())
			}
			return nil, nil
		},
	}
}

// TracerMiddleware opens an OpenTelemetry span per message and threads it
// through the message context so handlers can continue the trace.
func TracerMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "tracer",
		Middleware: func(mc *MessageContext, next Next) error {
			tracer := otel.Tracer("sockflow")
			ctx, span := tracer.Start(mc.Context(), "dispatch "+mc.Event)
			defer span.End()

			mc.SetContext(ctx)
			span.SetAttributes(
				attribute.String("message.id", mc.MessageID),
				attribute.String("message.event", mc.Event),
			)

			err := next()
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return err
		},
	}
}

// RegisterMiddleware appends one global middleware. Builders run against
// the service immediately; a builder that returns nil middleware without an
// error is skipped.
func (s *Service) RegisterMiddleware(registration MiddlewareRegistration) error {
	var mw Middleware
	switch {
	case registration.Middleware != nil:
		mw = registration.Middleware
	case registration.Builder != nil:
		built, err := registration.Builder(s)
		if err != nil {
			return err
		}
		mw = built
	default:
		return errspkg.ErrMiddlewareRequired
	}

	if mw == nil {
		return nil
	}

	s.middlewareMu.Lock()
	defer s.middlewareMu.Unlock()
	s.middlewares = append(s.middlewares, mw)
	return nil
}

// globalMiddlewares snapshots the global pipeline for one dispatch.
func (s *Service) globalMiddlewares() []Middleware {
	s.middlewareMu.RLock()
	defer s.middlewareMu.RUnlock()
	return append([]Middleware(nil), s.middlewares...)
}
