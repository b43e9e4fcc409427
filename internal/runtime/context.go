package runtime

import (
	"context"

	errspkg "github.com/drblury/sockflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/sockflow/internal/runtime/logging"
)

// MessageContext carries one inbound message through the dispatch pipeline.
// It is created once per message, owned exclusively by that message's
// dispatch goroutine, and not safe for concurrent use. Middleware, guards,
// hooks and the handler all see the same instance; the scratch space is how
// they pass values to each other.
type MessageContext struct {
	// Event is the event type this message targets.
	Event string

	// Payload is the message payload: raw bytes unless a serializer decoded
	// it into an application value. The core never inspects it.
	Payload any

	// MessageID identifies this message. Adapters that normalize payloads
	// may supply it from the wire; otherwise a fresh ULID is stamped.
	MessageID string

	// Transport metadata, populated from the adapter's payload
	// normalization when available. All fields may be empty.
	RemoteClient  string
	LocalClient   string
	Channel       string
	ApplicationID string

	// AppContext is the process-wide application state captured when this
	// context was created. Replacing it on the Service only affects
	// messages dispatched afterwards.
	AppContext any

	// Logger is scoped to this message's event type.
	Logger loggingpkg.ServiceLogger

	svc     *Service
	ctx     context.Context
	scratch map[string]any
	stopped bool
}

// Set stores a scratch value under key for later pipeline stages.
func (mc *MessageContext) Set(key string, value any) {
	if mc.scratch == nil {
		mc.scratch = make(map[string]any)
	}
	mc.scratch[key] = value
}

// Get reads a scratch value. The second return reports whether the key was
// ever set.
func (mc *MessageContext) Get(key string) (any, bool) {
	value, ok := mc.scratch[key]
	return value, ok
}

// GetString reads a scratch value as a string. Missing keys and non-string
// values report false.
func (mc *MessageContext) GetString(key string) (string, bool) {
	value, ok := mc.scratch[key]
	if !ok {
		return "", false
	}
	s, ok := value.(string)
	return s, ok
}

// Stop marks the message as stopped: no later middleware and no handler run
// for it. Middleware already on the stack unwinds normally and may still
// execute its post-continuation code.
func (mc *MessageContext) Stop() {
	mc.stopped = true
}

// IsStopped reports whether Stop has been called on this message.
func (mc *MessageContext) IsStopped() bool {
	return mc.stopped
}

// Send replies to this message's remote sender. Without a remote client id
// the payload goes out unaddressed and the adapter decides the audience.
// Fails with NotConfiguredError when no transport adapter is bound.
func (mc *MessageContext) Send(event string, payload any) error {
	if mc.svc == nil {
		return &errspkg.NotConfiguredError{Op: "send"}
	}
	if mc.RemoteClient == "" {
		return mc.svc.Send(event, payload)
	}
	return mc.svc.Send(event, payload, mc.RemoteClient)
}

// Broadcast fans a payload out through the bound adapter, optionally scoped
// to named channels. Fails with NotConfiguredError when no transport adapter
// is bound.
func (mc *MessageContext) Broadcast(event string, payload any, channels ...string) error {
	if mc.svc == nil {
		return &errspkg.NotConfiguredError{Op: "broadcast"}
	}
	return mc.svc.Broadcast(event, payload, channels...)
}

// Emit publishes a local event to in-process listeners. Local events never
// touch the transport.
func (mc *MessageContext) Emit(event string, data any) {
	if mc.svc == nil {
		return
	}
	mc.svc.Emit(event, data)
}

// Context returns the context attached to this message. It defaults to
// context.Background; middleware such as the tracer may replace it via
// SetContext.
func (mc *MessageContext) Context() context.Context {
	if mc.ctx == nil {
		return context.Background()
	}
	return mc.ctx
}

// SetContext attaches ctx to this message for later pipeline stages.
func (mc *MessageContext) SetContext(ctx context.Context) {
	mc.ctx = ctx
}
