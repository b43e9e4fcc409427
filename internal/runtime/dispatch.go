package runtime

import (
	"errors"
	"fmt"
	"time"

	errspkg "github.com/drblury/sockflow/internal/runtime/errors"
	idspkg "github.com/drblury/sockflow/internal/runtime/ids"
	"github.com/drblury/sockflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/sockflow/internal/runtime/logging"
	transportpkg "github.com/drblury/sockflow/transport"
)

// Outcome is the terminal state of one dispatched message.
type Outcome int8

const (
	// OutcomeDone: the handler completed without error.
	OutcomeDone Outcome = iota
	// OutcomeRejected: the message was silently dropped by a stop, a missing
	// route or a guard denial. Rejections are not errors.
	OutcomeRejected
	// OutcomeErrored: a pipeline stage failed and the error path ran.
	OutcomeErrored
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDone:
		return "done"
	case OutcomeRejected:
		return "rejected"
	case OutcomeErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// ErrorHandler is the last stop of a failed dispatch. It receives the
// original error; the default implementation replies to the remote sender
// with an "error" event carrying the error message.
type ErrorHandler func(mc *MessageContext, err error)

// Ingest dispatches an inbound message on its own goroutine. It is the
// MessageFunc installed on bound adapters.
func (s *Service) Ingest(event string, payload []byte) {
	go s.Dispatch(event, payload)
}

// Dispatch runs one message through the full pipeline synchronously and
// returns its terminal outcome. The afterMessage hooks and the metric
// recording run exactly once per call, on every path out.
func (s *Service) Dispatch(event string, payload []byte) Outcome {
	start := time.Now()
	s.metrics.MessageStarted()

	mc, buildErr := s.newMessageContext(event, payload)

	var outcome Outcome
	var terminalErr error
	defer func() {
		s.hooks.runAfterMessage(mc)
		s.observe(event, outcome, time.Since(start), terminalErr)
		s.metrics.MessageFinished()
	}()

	s.hooks.runBeforeMessage(mc)

	if buildErr != nil {
		outcome = s.fail(mc, buildErr)
		terminalErr = buildErr
		return outcome
	}

	proceed, err := runChain(mc, s.globalMiddlewares())
	if err != nil {
		outcome = s.fail(mc, err)
		terminalErr = fmt.Errorf("global middleware: %w", err)
		return outcome
	}
	if !proceed {
		mc.Logger.Debug("message stopped by global middleware", nil)
		outcome = OutcomeRejected
		return outcome
	}

	route, ok := s.routes.lookup(event)
	if !ok {
		mc.Logger.Debug("no route for event", nil)
		outcome = OutcomeRejected
		return outcome
	}

	verdict := evalGuards(mc, route.Guards)
	if !verdict.Allowed {
		if verdict.Reason != "" {
			mc.Set(ScratchKeyGuardDenialReason, verdict.Reason)
		}
		mc.Logger.Debug("message rejected by guard", loggingpkg.LogFields{
			"reason": verdict.Reason,
		})
		outcome = OutcomeRejected
		return outcome
	}

	proceed, err = runChain(mc, route.Middleware)
	if err != nil {
		outcome = s.fail(mc, err)
		terminalErr = fmt.Errorf("route middleware: %w", err)
		return outcome
	}
	if !proceed {
		mc.Logger.Debug("message stopped by route middleware", nil)
		outcome = OutcomeRejected
		return outcome
	}

	if err := invokeHandler(mc, route.Handler); err != nil {
		outcome = s.fail(mc, err)
		terminalErr = fmt.Errorf("handler: %w", err)
		return outcome
	}

	outcome = OutcomeDone
	return outcome
}

// invokeHandler runs the route handler, converting a panic into an error.
func invokeHandler(mc *MessageContext, handler HandlerFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(mc)
}

// newMessageContext assembles the per-message context. The context comes
// back even on failure so hooks and the error handler have something to
// observe. When the adapter normalizes payloads, the envelope populates
// client and channel metadata and the payload the serializer sees.
func (s *Service) newMessageContext(event string, payload []byte) (*MessageContext, error) {
	mc := &MessageContext{
		Event:      event,
		Payload:    payload,
		MessageID:  idspkg.CreateULID(),
		AppContext: s.AppContext(),
		svc:        s,
		Logger:     s.Logger.With(loggingpkg.LogFields{"event": event}),
	}

	adapter := s.Adapter()
	if adapter == nil {
		return mc, &errspkg.NotConfiguredError{Op: "dispatch"}
	}

	raw := payload
	if normalizer, ok := adapter.(transportpkg.PayloadNormalizer); ok {
		env, err := normalizer.NormalizePayload(payload)
		if err != nil {
			return mc, fmt.Errorf("normalize payload: %w", err)
		}
		mc.RemoteClient = env.ClientID
		mc.LocalClient = env.EmitterClientID
		mc.Channel = env.Channel
		mc.ApplicationID = env.ApplicationID
		if env.ID != "" {
			mc.MessageID = env.ID
		}
		raw = []byte(env.Payload)
	}

	if s.serializer != nil {
		decoded, err := s.serializer.Decode(raw)
		if err != nil {
			mc.Payload = raw
			return mc, fmt.Errorf("decode payload: %w", err)
		}
		mc.Payload = decoded
	} else {
		mc.Payload = raw
	}
	return mc, nil
}

// fail runs the error path: onError hooks first with the original error,
// then the configured or default error handler. A panicking error handler
// is contained.
func (s *Service) fail(mc *MessageContext, err error) Outcome {
	s.hooks.runOnError(mc, err)

	handler := s.errorHandler
	if handler == nil {
		handler = s.defaultErrorHandler
	}
	func() {
		defer func() {
			if r := recover(); r != nil {
				s.Logger.Error("error handler panicked", fmt.Errorf("%v", r), nil)
			}
		}()
		handler(mc, err)
	}()
	return OutcomeErrored
}

// observe records the terminal outcome into the Prometheus collectors and,
// for registered events, the per-route stats.
func (s *Service) observe(event string, outcome Outcome, elapsed time.Duration, err error) {
	category := ErrorCategoryNone
	if err != nil {
		category = s.getErrorClassifier()(err)
	}
	s.metrics.RecordOutcome(event, outcome, elapsed, category)
	if stats, ok := s.routes.statsFor(event); ok {
		stats.record(outcome, elapsed, err, category)
	}
}

// defaultErrorHandler replies to the message's remote sender with an
// "error" event carrying the error message. Without a serializer the reply
// is pre-encoded JSON so it can cross a raw adapter.
func (s *Service) defaultErrorHandler(mc *MessageContext, err error) {
	type errorPayload struct {
		Message string `json:"message"`
	}
	payload := errorPayload{Message: err.Error()}

	var sendErr error
	if s.serializer != nil {
		sendErr = mc.Send("error", payload)
	} else {
		raw, merr := jsoncodec.Marshal(payload)
		if merr != nil {
			s.Logger.Error("encode error reply", merr, nil)
			return
		}
		sendErr = mc.Send("error", raw)
	}

	if sendErr != nil {
		var notConfigured *errspkg.NotConfiguredError
		if errors.As(sendErr, &notConfigured) {
			mc.Logger.Debug("error reply skipped, no transport bound", nil)
			return
		}
		mc.Logger.Error("send error reply", sendErr, nil)
	}
}
