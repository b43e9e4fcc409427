// Package websocket provides a WebSocket hub adapter for sockflow. The hub
// serves client connections directly: unicast sends go to the client's
// connection, broadcasts fan out over all connections or named channels.
//
// Clients speak envelope frames. Two control events are handled by the hub
// itself and never dispatched: "sockflow.join" subscribes the sending
// connection to the envelope's channel, "sockflow.leave" unsubscribes it.
package websocket

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/gorilla/websocket"

	"github.com/drblury/sockflow/transport"
)

// TransportName is the name used to register this adapter.
const TransportName = "websocket"

// Control events consumed by the hub.
const (
	EventJoin  = "sockflow.join"
	EventLeave = "sockflow.leave"
)

const (
	defaultReadBufferSize  = 4096
	defaultWriteBufferSize = 4096
	defaultMaxMessageSize  = 1 << 20

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	sendQueueSize = 64
)

func init() {
	Register()
}

// Register adds this adapter to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.WebsocketCapabilities)
}

// Options configure a hub constructed outside the registry.
type Options struct {
	ListenAddress   string
	Path            string
	AllowedOrigins  []string
	ReadBufferSize  int
	WriteBufferSize int
	MaxMessageSize  int64
}

// Build creates a new WebSocket hub adapter.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Adapter, error) {
	addr := cfg.GetWSListenAddress()
	if addr == "" {
		return nil, errors.New("websocket: listen address is required")
	}
	return New(Options{
		ListenAddress:   addr,
		Path:            cfg.GetWSPath(),
		AllowedOrigins:  cfg.GetWSAllowedOrigins(),
		ReadBufferSize:  cfg.GetWSReadBufferSize(),
		WriteBufferSize: cfg.GetWSWriteBufferSize(),
		MaxMessageSize:  cfg.GetWSMaxMessageSize(),
	}, logger), nil
}

// Capabilities returns the capabilities of this adapter.
func Capabilities() transport.Capabilities {
	return transport.WebsocketCapabilities
}

// Adapter is a WebSocket hub. It implements transport.Adapter plus the
// optional Runner, PayloadNormalizer and Disconnector interfaces. Mount it
// on an existing mux via ServeHTTP, or let Run own a listening server.
type Adapter struct {
	addr           string
	path           string
	upgrader       websocket.Upgrader
	maxMessageSize int64
	logger         watermill.LoggerAdapter

	mu       sync.RWMutex
	fn       transport.MessageFunc
	clients  map[string]*client
	channels map[string]map[string]*client
}

// New builds a hub from options. A nil logger falls back to the nop logger.
func New(opts Options, logger watermill.LoggerAdapter) *Adapter {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	path := opts.Path
	if path == "" {
		path = "/ws"
	}
	readBuf := opts.ReadBufferSize
	if readBuf <= 0 {
		readBuf = defaultReadBufferSize
	}
	writeBuf := opts.WriteBufferSize
	if writeBuf <= 0 {
		writeBuf = defaultWriteBufferSize
	}
	maxMsg := opts.MaxMessageSize
	if maxMsg <= 0 {
		maxMsg = defaultMaxMessageSize
	}

	return &Adapter{
		addr: opts.ListenAddress,
		path: path,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readBuf,
			WriteBufferSize: writeBuf,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
		maxMessageSize: maxMsg,
		logger:         logger,
		clients:        make(map[string]*client),
		channels:       make(map[string]map[string]*client),
	}
}

// originChecker builds the upgrader's origin check. An empty allow list
// keeps gorilla's same-origin default; "*" allows everything.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, candidate := range allowed {
			if candidate == "*" || strings.EqualFold(candidate, origin) {
				return true
			}
		}
		return false
	}
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

// ServeHTTP upgrades the request and registers the connection with the hub.
// The client identity comes from the client_id query parameter; connections
// without one get a fresh ULID.
func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Error("websocket upgrade failed", err, watermill.LogFields{
			"remote": r.RemoteAddr,
		})
		return
	}

	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = watermill.NewULID()
	}

	c := &client{
		id:   clientID,
		conn: conn,
		send: make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
		hub:  a,
	}
	a.addClient(c)

	go c.writePump()
	go c.readPump()
}

func (a *Adapter) addClient(c *client) {
	a.mu.Lock()
	previous := a.clients[c.id]
	a.clients[c.id] = c
	a.mu.Unlock()

	// A reconnecting client replaces its old connection.
	if previous != nil {
		a.removeClient(previous)
	}

	a.logger.Debug("client connected", watermill.LogFields{"client_id": c.id})
}

func (a *Adapter) removeClient(c *client) {
	a.mu.Lock()
	if a.clients[c.id] == c {
		delete(a.clients, c.id)
	}
	for name, members := range a.channels {
		if members[c.id] == c {
			delete(members, c.id)
			if len(members) == 0 {
				delete(a.channels, name)
			}
		}
	}
	a.mu.Unlock()

	c.close()
	a.logger.Debug("client disconnected", watermill.LogFields{"client_id": c.id})
}

func (a *Adapter) join(c *client, channel string) {
	if channel == "" {
		a.logger.Debug("join without channel ignored", watermill.LogFields{"client_id": c.id})
		return
	}
	a.mu.Lock()
	members, ok := a.channels[channel]
	if !ok {
		members = make(map[string]*client)
		a.channels[channel] = members
	}
	members[c.id] = c
	a.mu.Unlock()

	a.logger.Debug("client joined channel", watermill.LogFields{
		"client_id": c.id,
		"channel":   channel,
	})
}

func (a *Adapter) leave(c *client, channel string) {
	if channel == "" {
		return
	}
	a.mu.Lock()
	if members, ok := a.channels[channel]; ok {
		delete(members, c.id)
		if len(members) == 0 {
			delete(a.channels, channel)
		}
	}
	a.mu.Unlock()

	a.logger.Debug("client left channel", watermill.LogFields{
		"client_id": c.id,
		"channel":   channel,
	})
}

// inbound handles one frame read from a connection. Control events mutate
// hub state; everything else is re-stamped with the connection's identity
// and handed to the callback.
func (a *Adapter) inbound(c *client, raw []byte) {
	env, err := transport.DecodeEnvelope(raw)
	if err != nil {
		a.logger.Debug("dropping undecodable frame", watermill.LogFields{
			"client_id": c.id,
			"err":       err.Error(),
		})
		return
	}

	switch env.Event {
	case EventJoin:
		a.join(c, env.Channel)
		return
	case EventLeave:
		a.leave(c, env.Channel)
		return
	}

	fn := a.callback()
	if fn == nil {
		return
	}

	// The connection identity wins over whatever the frame claims.
	env.ClientID = c.id
	frame, err := env.Encode()
	if err != nil {
		a.logger.Error("re-encoding inbound frame failed", err, watermill.LogFields{
			"client_id": c.id,
		})
		return
	}
	fn(env.Event, frame)
}

// Send implements transport.Adapter. Targets that are not connected are
// skipped with a debug log; delivering to a gone client is not an error.
func (a *Adapter) Send(event string, payload []byte, clientIDs ...string) error {
	if len(clientIDs) == 0 {
		a.logger.Debug("send without target clients dropped", watermill.LogFields{"event": event})
		return nil
	}
	for _, clientID := range clientIDs {
		a.mu.RLock()
		c, ok := a.clients[clientID]
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
		a.enqueue(c, frame)
	}
	return nil
}

// Broadcast implements transport.Adapter. Without channels every connected
// client receives the frame; with channels only their members do, each
// client at most once.
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
		for _, c := range a.snapshotClients() {
			a.enqueue(c, frame)
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
		for _, c := range a.snapshotChannel(channel) {
			if delivered[c.id] {
				continue
			}
			delivered[c.id] = true
			a.enqueue(c, frame)
		}
	}
	return nil
}

func (a *Adapter) snapshotClients() []*client {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*client, 0, len(a.clients))
	for _, c := range a.clients {
		out = append(out, c)
	}
	return out
}

func (a *Adapter) snapshotChannel(channel string) []*client {
	a.mu.RLock()
	defer a.mu.RUnlock()
	members := a.channels[channel]
	out := make([]*client, 0, len(members))
	for _, c := range members {
		out = append(out, c)
	}
	return out
}

// enqueue never blocks: a client whose send queue is full loses the frame.
func (a *Adapter) enqueue(c *client, frame []byte) {
	select {
	case c.send <- frame:
	case <-c.done:
	default:
		a.logger.Info("dropping frame for slow client", watermill.LogFields{"client_id": c.id})
	}
}

// NormalizePayload implements transport.PayloadNormalizer.
func (a *Adapter) NormalizePayload(raw []byte) (transport.Envelope, error) {
	return transport.DecodeEnvelope(raw)
}

// Run implements transport.Runner: it owns an HTTP server with the hub
// mounted on the configured path and blocks until ctx is cancelled.
func (a *Adapter) Run(ctx context.Context) error {
	if a.addr == "" {
		return errors.New("websocket: listen address is required")
	}

	mux := http.NewServeMux()
	mux.Handle(a.path, a)
	server := &http.Server{Addr: a.addr, Handler: mux}

	errc := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	a.logger.Info("websocket hub listening", watermill.LogFields{
		"addr": a.addr,
		"path": a.path,
	})

	select {
	case <-ctx.Done():
		a.closeAllClients()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errc:
		return err
	}
}

// Disconnect implements transport.Disconnector. It drops every connection;
// the listening server, when owned by Run, stops with its context.
func (a *Adapter) Disconnect() error {
	a.closeAllClients()
	return nil
}

func (a *Adapter) closeAllClients() {
	for _, c := range a.snapshotClients() {
		a.removeClient(c)
	}
}

// ClientCount returns the number of connected clients.
func (a *Adapter) ClientCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.clients)
}

// ChannelMembers returns the client ids subscribed to a channel.
func (a *Adapter) ChannelMembers(channel string) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	members := a.channels[channel]
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	return out
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	hub  *Adapter
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *client) readPump() {
	defer c.hub.removeClient(c)

	c.conn.SetReadLimit(c.hub.maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.hub.logger.Debug("websocket read failed", watermill.LogFields{
					"client_id": c.id,
					"err":       err.Error(),
				})
			}
			return
		}
		c.hub.inbound(c, raw)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait),
			)
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
