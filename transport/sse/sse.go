// Package sse provides a server-sent events adapter for sockflow. Clients
// stream outbound frames from GET /events and push inbound envelope frames
// via POST /publish.
//
// The stream endpoint reads the client identity from the client_id query
// parameter (a fresh ULID is assigned when absent) and an optional
// comma-separated channels parameter for broadcast scoping. Channel
// membership is fixed for the lifetime of the connection; EventSource
// reconnects pick up new memberships.
package sse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/go-chi/chi/v5"

	"github.com/drblury/sockflow/transport"
)

// TransportName is the name used to register this adapter.
const TransportName = "sse"

const (
	defaultStreamPath  = "/events"
	defaultPublishPath = "/publish"

	heartbeatInterval = 30 * time.Second
	maxPublishBody    = 1 << 20
	sendQueueSize     = 64
)

func init() {
	Register()
}

// Register adds this adapter to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.SSECapabilities)
}

// Options configure an adapter constructed outside the registry.
type Options struct {
	ListenAddress string
	StreamPath    string
	PublishPath   string
}

// Build creates a new server-sent events adapter.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Adapter, error) {
	addr := cfg.GetSSEListenAddress()
	if addr == "" {
		return nil, errors.New("sse: listen address is required")
	}
	return New(Options{ListenAddress: addr}, logger), nil
}

// Capabilities returns the capabilities of this adapter.
func Capabilities() transport.Capabilities {
	return transport.SSECapabilities
}

type subscriber struct {
	id       string
	channels map[string]bool
	send     chan []byte
	gone     chan struct{}
	once     sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.gone) })
}

// Adapter streams envelopes over SSE. It implements transport.Adapter plus
// the optional Runner, PayloadNormalizer and Disconnector interfaces. Mount
// it on an existing mux via ServeHTTP, or let Run own a listening server.
type Adapter struct {
	addr   string
	router chi.Router
	logger watermill.LoggerAdapter

	mu   sync.RWMutex
	fn   transport.MessageFunc
	subs map[string]*subscriber
}

// New builds an adapter from options. A nil logger falls back to the nop
// logger.
func New(opts Options, logger watermill.LoggerAdapter) *Adapter {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	streamPath := opts.StreamPath
	if streamPath == "" {
		streamPath = defaultStreamPath
	}
	publishPath := opts.PublishPath
	if publishPath == "" {
		publishPath = defaultPublishPath
	}

	a := &Adapter{
		addr:   opts.ListenAddress,
		logger: logger,
		subs:   make(map[string]*subscriber),
	}

	router := chi.NewRouter()
	router.Get(streamPath, a.handleStream)
	router.Post(publishPath, a.handlePublish)
	a.router = router

	return a
}

// Name implements transport.Adapter.
func (a *Adapter) Name() string { return TransportName }

// OnMessage implements transport.Adapter. A nil fn detaches the callback.
func (a *Adapter) OnMessage(fn transport.MessageFunc) {
	a.mu.Lock()
	a.fn = fn
	a.mu.Unlock()
}

func (a *Adapter) callback() transport.MessageFunc {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.fn
}

// ServeHTTP exposes the stream and publish routes for mounting on an
// existing mux.
func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

func (a *Adapter) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = watermill.NewULID()
	}

	channels := make(map[string]bool)
	if raw := r.URL.Query().Get("channels"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				channels[name] = true
			}
		}
	}

	sub := &subscriber{
		id:       clientID,
		channels: channels,
		send:     make(chan []byte, sendQueueSize),
		gone:     make(chan struct{}),
	}
	a.addSubscriber(sub)
	defer a.removeSubscriber(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.gone:
			return
		case <-ticker.C:
			// Comment line keeps intermediaries from timing the stream out.
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case frame := <-sub.send:
			env, err := transport.DecodeEnvelope(frame)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", env.ID, env.Event, frame); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (a *Adapter) handlePublish(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPublishBody))
	if err != nil {
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}

	env, err := transport.DecodeEnvelope(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	fn := a.callback()
	if fn == nil {
		http.Error(w, "no message consumer attached", http.StatusServiceUnavailable)
		return
	}

	fn(env.Event, body)
	w.WriteHeader(http.StatusAccepted)
}

func (a *Adapter) addSubscriber(sub *subscriber) {
	a.mu.Lock()
	previous := a.subs[sub.id]
	a.subs[sub.id] = sub
	a.mu.Unlock()

	// An EventSource reconnect supersedes the old stream.
	if previous != nil {
		previous.close()
	}

	a.logger.Debug("sse client connected", watermill.LogFields{"client_id": sub.id})
}

func (a *Adapter) removeSubscriber(sub *subscriber) {
	a.mu.Lock()
	if a.subs[sub.id] == sub {
		delete(a.subs, sub.id)
	}
	a.mu.Unlock()

	sub.close()
	a.logger.Debug("sse client disconnected", watermill.LogFields{"client_id": sub.id})
}

// Send implements transport.Adapter. Targets without an open stream are
// skipped with a debug log.
func (a *Adapter) Send(event string, payload []byte, clientIDs ...string) error {
	if len(clientIDs) == 0 {
		a.logger.Debug("send without target clients dropped", watermill.LogFields{"event": event})
		return nil
	}
	for _, clientID := range clientIDs {
		a.mu.RLock()
		sub, ok := a.subs[clientID]
		a.mu.RUnlock()
		if !ok {
			a.logger.Debug("send target not connected", watermill.LogFields{
				"event":     event,
				"client_id": clientID,
			})
			continue
		}

		env, err := transport.NewEnvelope(event, payload)
		if err != nil {
			return err
		}
		env.ClientID = clientID
		frame, err := env.Encode()
		if err != nil {
			return err
		}
		a.enqueue(sub, frame)
	}
	return nil
}

// Broadcast implements transport.Adapter. Without channels every open
// stream receives the frame; with channels only streams that subscribed to
// one of them do, each at most once.
func (a *Adapter) Broadcast(event string, payload []byte, channels ...string) error {
	env, err := transport.NewEnvelope(event, payload)
	if err != nil {
		return err
	}

	if len(channels) == 0 {
		frame, err := env.Encode()
		if err != nil {
			return err
		}
		for _, sub := range a.snapshot() {
			a.enqueue(sub, frame)
		}
		return nil
	}

	delivered := make(map[string]bool)
	for _, channel := range channels {
		env.Channel = channel
		frame, err := env.Encode()
		if err != nil {
			return err
		}
		for _, sub := range a.snapshot() {
			if !sub.channels[channel] || delivered[sub.id] {
				continue
			}
			delivered[sub.id] = true
			a.enqueue(sub, frame)
		}
	}
	return nil
}

func (a *Adapter) snapshot() []*subscriber {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*subscriber, 0, len(a.subs))
	for _, sub := range a.subs {
		out = append(out, sub)
	}
	return out
}

// enqueue never blocks: a stream whose queue is full loses the frame.
func (a *Adapter) enqueue(sub *subscriber, frame []byte) {
	select {
	case sub.send <- frame:
	case <-sub.gone:
	default:
		a.logger.Info("dropping frame for slow sse client", watermill.LogFields{"client_id": sub.id})
	}
}

// NormalizePayload implements transport.PayloadNormalizer.
func (a *Adapter) NormalizePayload(raw []byte) (transport.Envelope, error) {
	return transport.DecodeEnvelope(raw)
}

// Run implements transport.Runner: it owns an HTTP server with the adapter
// routes mounted and blocks until ctx is cancelled.
func (a *Adapter) Run(ctx context.Context) error {
	if a.addr == "" {
		return errors.New("sse: listen address is required")
	}

	server := &http.Server{Addr: a.addr, Handler: a.router}

	errc := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	a.logger.Info("sse server listening", watermill.LogFields{"addr": a.addr})

	select {
	case <-ctx.Done():
		a.closeAllSubscribers()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errc:
		return err
	}
}

// Disconnect implements transport.Disconnector. It ends every open stream;
// the listening server, when owned by Run, stops with its context.
func (a *Adapter) Disconnect() error {
	a.closeAllSubscribers()
	return nil
}

func (a *Adapter) closeAllSubscribers() {
	for _, sub := range a.snapshot() {
		a.removeSubscriber(sub)
	}
}

// ClientCount returns the number of open streams.
func (a *Adapter) ClientCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.subs)
}
