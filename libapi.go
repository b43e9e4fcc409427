package sockflow

import (
	"time"

	"google.golang.org/protobuf/proto"

	runtimepkg "github.com/drblury/sockflow/internal/runtime"
	configpkg "github.com/drblury/sockflow/internal/runtime/config"
	errspkg "github.com/drblury/sockflow/internal/runtime/errors"
	"github.com/drblury/sockflow/internal/runtime/eventbus"
	idspkg "github.com/drblury/sockflow/internal/runtime/ids"
	jsoncodec "github.com/drblury/sockflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/sockflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/sockflow/internal/runtime/metadata"
	factorypkg "github.com/drblury/sockflow/internal/runtime/transport"
	transportpkg "github.com/drblury/sockflow/transport"
)

type (
	Config              = configpkg.Config
	Duration            = configpkg.Duration
	Service             = runtimepkg.Service
	ServiceDependencies = runtimepkg.ServiceDependencies
	TransportFactory    = factorypkg.Factory

	// Pipeline types
	MessageContext = runtimepkg.MessageContext
	Route          = runtimepkg.Route
	HandlerFunc    = runtimepkg.HandlerFunc
	Middleware     = runtimepkg.Middleware
	Next           = runtimepkg.Next
	Guard          = runtimepkg.Guard
	Verdict        = runtimepkg.Verdict
	Outcome        = runtimepkg.Outcome
	ErrorHandler   = runtimepkg.ErrorHandler

	// Typed route registrations
	JSONRoute[T any]            = runtimepkg.JSONRoute[T]
	ProtoRoute[T proto.Message] = runtimepkg.ProtoRoute[T]

	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration

	// Serialization
	Serializer     = runtimepkg.Serializer
	JSONSerializer = runtimepkg.JSONSerializer

	// Local event bus
	Emitter  = runtimepkg.Emitter
	Listener = eventbus.Listener

	// Lifecycle hooks
	LifecycleHook = runtimepkg.LifecycleHook
	MessageHook   = runtimepkg.MessageHook
	ErrorHook     = runtimepkg.ErrorHook

	// Plugins
	Plugin      = runtimepkg.Plugin
	PluginFunc  = runtimepkg.PluginFunc
	NamedPlugin = runtimepkg.NamedPlugin
	PluginAPI   = runtimepkg.PluginAPI

	Metadata = metadatapkg.Metadata

	LogFields                 = loggingpkg.LogFields
	ServiceLogger             = loggingpkg.ServiceLogger
	EntryLogger               = loggingpkg.EntryLogger
	EntryLoggerAdapter[T any] = loggingpkg.EntryLoggerAdapter[T]

	// Stats and metrics
	RouteInfo               = runtimepkg.RouteInfo
	RouteStats              = runtimepkg.RouteStats
	DispatchMetrics         = runtimepkg.DispatchMetrics
	DispatchMetricsSnapshot = runtimepkg.DispatchMetricsSnapshot
	ResourceUsage           = runtimepkg.ResourceUsage

	// Error classification
	ErrorClassifier = runtimepkg.ErrorClassifier
	ErrorCategory   = runtimepkg.ErrorCategory

	// Typed errors
	NotConfiguredError      = errspkg.NotConfiguredError
	DoubleContinuationError = errspkg.DoubleContinuationError
	UnknownHookError        = errspkg.UnknownHookError
	ConfigValidationError   = errspkg.ConfigValidationError

	// Transport contract (modular adapter packages)
	Transport             = transportpkg.Adapter
	TransportBuilder      = transportpkg.Builder
	TransportConfig       = transportpkg.Config
	TransportRegistry     = transportpkg.Registry
	TransportCapabilities = transportpkg.Capabilities
	TransportEnvelope     = transportpkg.Envelope
	MessageFunc           = transportpkg.MessageFunc
	PayloadNormalizer     = transportpkg.PayloadNormalizer
	ReconnectOptions      = transportpkg.ReconnectOptions
)

var (
	NewService     = runtimepkg.NewService
	TryNewService  = runtimepkg.TryNewService
	ConfigFromEnv  = configpkg.FromEnv
	ConfigFromFile = configpkg.LoadFile
	ValidateConfig = configpkg.ValidateConfig

	// Guard verdicts
	Allow     = runtimepkg.Allow
	Deny      = runtimepkg.Deny
	BoolGuard = runtimepkg.BoolGuard

	DefaultMiddlewares      = runtimepkg.DefaultMiddlewares
	CorrelationIDMiddleware = runtimepkg.CorrelationIDMiddleware
	LogMessagesMiddleware   = runtimepkg.LogMessagesMiddleware
	MetricsMiddleware       = runtimepkg.MetricsMiddleware
	TracerMiddleware        = runtimepkg.TracerMiddleware

	NewDispatchMetrics = runtimepkg.NewDispatchMetrics

	// Modular transport registry
	// Import individual transports via: _ "github.com/drblury/sockflow/transport/websocket"
	// or the full set via: _ "github.com/drblury/sockflow/transport/transports"
	DefaultTransportRegistry          = transportpkg.DefaultRegistry
	RegisterTransport                 = transportpkg.Register
	RegisterTransportWithCapabilities = transportpkg.RegisterWithCapabilities
	BuildTransport                    = transportpkg.Build
	GetTransportCapabilities          = transportpkg.GetCapabilities
	NewTransportEnvelope              = transportpkg.NewEnvelope
	DecodeTransportEnvelope           = transportpkg.DecodeEnvelope

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	EncodeProto = runtimepkg.EncodeProto

	ErrServiceRequired    = errspkg.ErrServiceRequired
	ErrConfigRequired     = errspkg.ErrConfigRequired
	ErrLoggerRequired     = errspkg.ErrLoggerRequired
	ErrAdapterRequired    = errspkg.ErrAdapterRequired
	ErrHandlerRequired    = errspkg.ErrHandlerRequired
	ErrEventTypeRequired  = errspkg.ErrEventTypeRequired
	ErrGuardRequired      = errspkg.ErrGuardRequired
	ErrMiddlewareRequired = errspkg.ErrMiddlewareRequired
	ErrPluginRequired     = errspkg.ErrPluginRequired
	ErrPluginInstalled    = errspkg.ErrPluginInstalled
	ErrAlreadyStarted     = errspkg.ErrAlreadyStarted

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger

	NewMetadata = metadatapkg.New

	// NewMessageID generates a unique, time-sortable message ID.
	NewMessageID = idspkg.CreateULID
)

// Lifecycle hook names accepted by Service.Hook and PluginAPI.Hook.
const (
	HookBeforeStart   = runtimepkg.HookBeforeStart
	HookAfterStart    = runtimepkg.HookAfterStart
	HookBeforeMessage = runtimepkg.HookBeforeMessage
	HookAfterMessage  = runtimepkg.HookAfterMessage
	HookOnError       = runtimepkg.HookOnError
)

// Dispatch outcomes, terminal per message.
const (
	OutcomeDone     = runtimepkg.OutcomeDone
	OutcomeRejected = runtimepkg.OutcomeRejected
	OutcomeErrored  = runtimepkg.OutcomeErrored
)

// Scratch-space keys written by built-in pipeline stages.
const (
	ScratchKeyCorrelationID     = runtimepkg.ScratchKeyCorrelationID
	ScratchKeyGuardDenialReason = runtimepkg.ScratchKeyGuardDenialReason
)

// Reserved metadata keys mirrored onto broker messages by bridge-backed
// adapters.
const (
	MetaKeyEvent           = transportpkg.MetaKeyEvent
	MetaKeyMessageID       = transportpkg.MetaKeyMessageID
	MetaKeyClientID        = transportpkg.MetaKeyClientID
	MetaKeyEmitterClientID = transportpkg.MetaKeyEmitterClientID
	MetaKeyChannel         = transportpkg.MetaKeyChannel
	MetaKeyApplicationID   = transportpkg.MetaKeyApplicationID

	// MetaKeyDelay is used by the SQLite and PostgreSQL transports for
	// delayed message processing. Set to a duration string like "30s", "5m".
	MetaKeyDelay = transportpkg.MetaKeyDelay
)

// Error category constants for ErrorClassifier.
const (
	ErrorCategoryNone          = runtimepkg.ErrorCategoryNone
	ErrorCategorySerialization = runtimepkg.ErrorCategorySerialization
	ErrorCategoryTransport     = runtimepkg.ErrorCategoryTransport
	ErrorCategoryMiddleware    = runtimepkg.ErrorCategoryMiddleware
	ErrorCategoryHandler       = runtimepkg.ErrorCategoryHandler
	ErrorCategoryUnknown       = runtimepkg.ErrorCategoryUnknown
)

func RegisterJSONRoute[T any](svc *Service, route JSONRoute[T]) error {
	return runtimepkg.RegisterJSONRoute(svc, route)
}

func RegisterProtoRoute[T proto.Message](svc *Service, route ProtoRoute[T]) error {
	return runtimepkg.RegisterProtoRoute(svc, route)
}

func NewProtoMessage[T proto.Message]() (T, error) {
	return runtimepkg.NewProtoMessage[T]()
}

func MustProtoMessage[T proto.Message]() T {
	return runtimepkg.MustProtoMessage[T]()
}

func NewEntryServiceLogger[T EntryLoggerAdapter[T]](entry T) ServiceLogger {
	return loggingpkg.NewEntryServiceLogger(entry)
}

// WithDelay returns a Metadata with the sockflow_delay key set for delayed
// message processing. This is a convenience wrapper for the SQLite and
// PostgreSQL transports' delayed message feature.
// Example: sockflow.NewMetadata().WithAll(sockflow.WithDelay(30 * time.Second))
func WithDelay(delay time.Duration) Metadata {
	return Metadata{MetaKeyDelay: delay.String()}
}
