package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	configpkg "github.com/drblury/sockflow/internal/runtime/config"
	errspkg "github.com/drblury/sockflow/internal/runtime/errors"
	"github.com/drblury/sockflow/internal/runtime/eventbus"
	loggingpkg "github.com/drblury/sockflow/internal/runtime/logging"
	transportfactory "github.com/drblury/sockflow/internal/runtime/transport"
	transportpkg "github.com/drblury/sockflow/transport"
)

// Listener is a local event bus callback.
type Listener = eventbus.Listener

// Emitter is the local pub/sub surface. The built-in bus delivers
// synchronously in registration order with per-listener panic isolation; a
// custom Emitter replaces it wholesale.
type Emitter interface {
	On(event string, fn Listener)
	Off(event string, fn Listener)
	Emit(event string, data any)
}

// Service is the event dispatch core. It owns the route table, the global
// middleware pipeline, hooks, the local event bus and the bound transport
// adapter, and runs one dispatch goroutine per inbound message.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	adapterMu sync.RWMutex
	adapter   transportpkg.Adapter

	serializer   Serializer
	errorHandler ErrorHandler
	emitter      Emitter

	routes *routeTable

	middlewareMu sync.RWMutex
	middlewares  []Middleware

	hooks *hookSet

	pluginMu  sync.Mutex
	plugins   map[string]struct{}
	pluginSeq int

	appMu      sync.RWMutex
	appContext any

	metrics         *DispatchMetrics
	errorClassifier ErrorClassifier
	resourceTracker *resourceTracker

	httpServersMu sync.Mutex
	httpServers   map[int]*http.ServeMux

	started atomic.Bool
}

// ServiceDependencies carries the optional collaborators a service can be
// constructed with. Zero values select the built-in defaults.
type ServiceDependencies struct {
	// Adapter binds a pre-built transport. When nil and the config names a
	// transport, the factory builds one.
	Adapter transportpkg.Adapter

	// Serializer decodes inbound and encodes outbound payloads. Nil leaves
	// payloads as raw bytes.
	Serializer Serializer

	// Emitter replaces the built-in local event bus.
	Emitter Emitter

	// ErrorHandler replaces the default error reply. It receives the
	// original dispatch error.
	ErrorHandler ErrorHandler

	// AppContext seeds the process-wide application state.
	AppContext any

	// Middlewares are appended after the default pipeline.
	Middlewares []MiddlewareRegistration

	// DisableDefaultMiddlewares skips the stock pipeline entirely.
	DisableDefaultMiddlewares bool

	// ErrorClassifier replaces the stage-prefix classifier used for stats
	// and metrics labels.
	ErrorClassifier ErrorClassifier

	// Metrics replaces the default collector set, for custom registries.
	Metrics *DispatchMetrics

	// TransportFactory overrides how configured transport names become
	// adapters.
	TransportFactory transportfactory.Factory
}

// NewService builds a dispatch service and panics when construction fails.
// Use TryNewService to handle construction errors.
func NewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, deps ServiceDependencies) *Service {
	s, err := TryNewService(conf, log, deps)
	if err != nil {
		panic(err)
	}
	return s
}

// TryNewService builds a dispatch service: validates config, assembles the
// middleware pipeline, and binds either the supplied adapter or one built
// from the configured transport name.
func TryNewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, deps ServiceDependencies) (*Service, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if err := conf.Validate(); err != nil {
		return nil, errspkg.NewConfigValidationError(err)
	}

	log.Info("creating dispatch service", loggingpkg.LogFields{
		"transport": conf.Transport,
		"config":    conf.String(),
	})

	emitter := deps.Emitter
	if emitter == nil {
		emitter = eventbus.New(log)
	}
	classifier := deps.ErrorClassifier
	if classifier == nil {
		classifier = defaultErrorClassifier
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NewDispatchMetrics(nil)
	}

	tracker := newResourceTracker()
	s := &Service{
		Conf:            conf,
		Logger:          log,
		serializer:      deps.Serializer,
		errorHandler:    deps.ErrorHandler,
		emitter:         emitter,
		routes:          newRouteTable(tracker),
		hooks:           newHookSet(log),
		plugins:         make(map[string]struct{}),
		appContext:      deps.AppContext,
		metrics:         metrics,
		errorClassifier: classifier,
		resourceTracker: tracker,
	}

	if err := s.registerConfiguredMiddlewares(deps); err != nil {
		return nil, err
	}

	adapter := deps.Adapter
	if adapter == nil && conf.Transport != "" {
		factory := deps.TransportFactory
		if factory == nil {
			factory = transportfactory.DefaultFactory()
		}
		built, err := factory.Build(context.Background(), conf, loggingpkg.NewWatermillAdapter(log))
		if err != nil {
			return nil, fmt.Errorf("build transport %q: %w", conf.Transport, err)
		}
		adapter = built
	}
	if adapter != nil {
		if err := s.BindTransport(adapter); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// registerConfiguredMiddlewares installs the default pipeline followed by
// caller-supplied registrations.
func (s *Service) registerConfiguredMiddlewares(deps ServiceDependencies) error {
	registrations := make([]MiddlewareRegistration, 0, len(deps.Middlewares)+4)
	if !deps.DisableDefaultMiddlewares {
		registrations = append(registrations, DefaultMiddlewares()...)
	}
	registrations = append(registrations, deps.Middlewares...)

	for _, registration := range registrations {
		if err := s.RegisterMiddleware(registration); err != nil {
			name := registration.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("register middleware %s: %w", name, err)
		}
	}
	return nil
}

// BindTransport attaches an adapter as the message source and sink,
// detaching any previously bound adapter. Contract gaps (no name, ignored
// reconnect options) fail in strict mode and log otherwise.
func (s *Service) BindTransport(adapter transportpkg.Adapter) error {
	if adapter == nil {
		return errspkg.ErrAdapterRequired
	}

	if adapter.Name() == "" {
		if s.Conf.StrictMode {
			return errspkg.NewConfigValidationError(errors.New("adapter has no name"))
		}
		s.Logger.Debug("binding unnamed adapter", nil)
	}

	if reconfigurer, ok := adapter.(transportpkg.Reconfigurer); ok {
		opts := transportpkg.ReconnectOptions{
			AutoReconnect:        s.Conf.GetAutoReconnect(),
			MaxReconnectAttempts: s.Conf.GetMaxReconnectAttempts(),
			ReconnectDelay:       s.Conf.GetReconnectDelay(),
		}
		if err := reconfigurer.Reconfigure(opts); err != nil {
			return fmt.Errorf("reconfigure adapter: %w", err)
		}
	} else if s.Conf.AutoReconnect {
		if s.Conf.StrictMode {
			return errspkg.NewConfigValidationError(errors.New("adapter ignores reconnect options"))
		}
		s.Logger.Info("adapter ignores reconnect options", loggingpkg.LogFields{
			"adapter": adapter.Name(),
		})
	}

	s.adapterMu.Lock()
	previous := s.adapter
	s.adapter = adapter
	s.adapterMu.Unlock()

	if previous != nil && previous != adapter {
		previous.OnMessage(nil)
	}
	adapter.OnMessage(s.Ingest)
	return nil
}

// Adapter returns the currently bound transport adapter, nil when unbound.
func (s *Service) Adapter() transportpkg.Adapter {
	s.adapterMu.RLock()
	defer s.adapterMu.RUnlock()
	return s.adapter
}

// adapterRun is swappable for tests that exercise Start without a real
// serve loop.
var adapterRun = func(ctx context.Context, r transportpkg.Runner) error {
	return r.Run(ctx)
}

// Start runs the service until ctx is cancelled or the adapter's serve loop
// fails. Adapters without a serve loop leave Start blocking on ctx alone.
func (s *Service) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errspkg.ErrAlreadyStarted
	}

	s.hooks.runBeforeStart(s)
	s.StartWebUIServer()
	s.startHTTPServers()

	adapter := s.Adapter()
	name := ""
	if adapter != nil {
		name = adapter.Name()
	}
	s.Logger.Info("service started", loggingpkg.LogFields{"transport": name})
	s.hooks.runAfterStart(s)

	var err error
	if runner, ok := adapter.(transportpkg.Runner); ok {
		err = adapterRun(ctx, runner)
	} else {
		<-ctx.Done()
	}

	if disconnector, ok := adapter.(transportpkg.Disconnector); ok {
		if derr := disconnector.Disconnect(); derr != nil {
			s.Logger.Error("transport disconnect failed", derr, nil)
		}
	}
	return err
}

// Hook attaches a callback to a lifecycle point. See the Hook* constants
// for the valid names and their callback shapes.
func (s *Service) Hook(name string, callback any) error {
	return s.hooks.register(name, callback)
}

// On subscribes a listener to a local bus event.
func (s *Service) On(event string, fn Listener) {
	s.emitter.On(event, fn)
}

// Off removes a previously subscribed listener.
func (s *Service) Off(event string, fn Listener) {
	s.emitter.Off(event, fn)
}

// Emit publishes a local event. Local events never touch the transport.
func (s *Service) Emit(event string, data any) {
	s.emitter.Emit(event, data)
}

// SetAppContext replaces the application state captured into contexts of
// subsequently dispatched messages. In-flight messages keep the state they
// were created with.
func (s *Service) SetAppContext(appContext any) {
	s.appMu.Lock()
	defer s.appMu.Unlock()
	s.appContext = appContext
}

// AppContext returns the current application state.
func (s *Service) AppContext() any {
	s.appMu.RLock()
	defer s.appMu.RUnlock()
	return s.appContext
}

// Send delivers a payload to the given remote clients through the bound
// adapter. Fails with NotConfiguredError when no adapter is bound.
func (s *Service) Send(event string, payload any, clientIDs ...string) error {
	adapter := s.Adapter()
	if adapter == nil {
		return &errspkg.NotConfiguredError{Op: "send"}
	}
	raw, err := s.encodePayload(payload)
	if err != nil {
		return err
	}
	return adapter.Send(event, raw, clientIDs...)
}

// Broadcast fans a payload out through the bound adapter, optionally scoped
// to named channels. Fails with NotConfiguredError when no adapter is bound.
func (s *Service) Broadcast(event string, payload any, channels ...string) error {
	adapter := s.Adapter()
	if adapter == nil {
		return &errspkg.NotConfiguredError{Op: "broadcast"}
	}
	raw, err := s.encodePayload(payload)
	if err != nil {
		return err
	}
	return adapter.Broadcast(event, raw, channels...)
}

// encodePayload turns an outbound payload into wire bytes: through the
// serializer when one is configured, otherwise only raw byte-like payloads
// pass.
func (s *Service) encodePayload(payload any) ([]byte, error) {
	if s.serializer != nil {
		return s.serializer.Encode(payload)
	}
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case []byte:
		return p, nil
	case json.RawMessage:
		return []byte(p), nil
	case string:
		return []byte(p), nil
	default:
		return nil, fmt.Errorf("%w, got %T", errspkg.ErrRawPayloadType, payload)
	}
}

func (s *Service) getErrorClassifier() ErrorClassifier {
	if s.errorClassifier == nil {
		return defaultErrorClassifier
	}
	return s.errorClassifier
}

// Metrics returns the dispatch metric collectors.
func (s *Service) Metrics() *DispatchMetrics {
	return s.metrics
}

// RegisterHTTPHandler mounts a handler on the shared HTTP server for the
// given port. Servers start when the service does; handlers registered for
// the same port share one mux.
func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[int]*http.ServeMux)
	}
	mux, ok := s.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[port] = mux
	}
	mux.Handle(pattern, handler)
}

// startHTTPServers launches one listener per registered port.
func (s *Service) startHTTPServers() {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	for port, mux := range s.httpServers {
		addr := ":" + strconv.Itoa(port)
		go func(addr string, mux *http.ServeMux) {
			if err := http.ListenAndServe(addr, mux); err != nil {
				s.Logger.Error("http server stopped", err, loggingpkg.LogFields{
					"addr": addr,
				})
			}
		}(addr, mux)
	}
}
