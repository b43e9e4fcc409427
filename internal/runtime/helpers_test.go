package runtime

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	configpkg "github.com/drblury/sockflow/internal/runtime/config"
	loggingpkg "github.com/drblury/sockflow/internal/runtime/logging"
	transportpkg "github.com/drblury/sockflow/transport"
	"github.com/prometheus/client_golang/prometheus"
)

func newQuietLogger() loggingpkg.ServiceLogger {
	return loggingpkg.NewSlogServiceLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// newTestService builds a service with a fresh metric registry so tests
// never collide on the default Prometheus registerer.
func newTestService(t *testing.T, deps ServiceDependencies) *Service {
	t.Helper()
	if deps.Metrics == nil {
		deps.Metrics = NewDispatchMetrics(prometheus.NewRegistry())
	}
	svc, err := TryNewService(&configpkg.Config{}, newQuietLogger(), deps)
	if err != nil {
		t.Fatalf("TryNewService: %v", err)
	}
	return svc
}

type sentMessage struct {
	event   string
	payload []byte
	targets []string
}

// testAdapter records outbound traffic and captures the inbound callback.
type testAdapter struct {
	mu         sync.Mutex
	name       string
	sends      []sentMessage
	broadcasts []sentMessage
	onMessage  transportpkg.MessageFunc
	sendErr    error
}

func newTestAdapter() *testAdapter {
	return &testAdapter{name: "test"}
}

func (a *testAdapter) Name() string { return a.name }

func (a *testAdapter) OnMessage(fn transportpkg.MessageFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onMessage = fn
}

func (a *testAdapter) Send(event string, payload []byte, clientIDs ...string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sendErr != nil {
		return a.sendErr
	}
	a.sends = append(a.sends, sentMessage{
		event:   event,
		payload: append([]byte(nil), payload...),
		targets: append([]string(nil), clientIDs...),
	})
	return nil
}

func (a *testAdapter) Broadcast(event string, payload []byte, channels ...string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sendErr != nil {
		return a.sendErr
	}
	a.broadcasts = append(a.broadcasts, sentMessage{
		event:   event,
		payload: append([]byte(nil), payload...),
		targets: append([]string(nil), channels...),
	})
	return nil
}

func (a *testAdapter) sentMessages() []sentMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]sentMessage(nil), a.sends...)
}

func (a *testAdapter) broadcastMessages() []sentMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]sentMessage(nil), a.broadcasts...)
}

func (a *testAdapter) callback() transportpkg.MessageFunc {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.onMessage
}

// normalizingAdapter exposes envelope metadata through a test-provided
// normalize function.
type normalizingAdapter struct {
	testAdapter
	normalize func(raw []byte) (transportpkg.Envelope, error)
}

func (a *normalizingAdapter) NormalizePayload(raw []byte) (transportpkg.Envelope, error) {
	return a.normalize(raw)
}

// runnerAdapter owns a serve loop and a teardown path.
type runnerAdapter struct {
	testAdapter
	runErr       error
	ran          bool
	disconnected bool
}

func (a *runnerAdapter) Run(ctx context.Context) error {
	a.mu.Lock()
	a.ran = true
	err := a.runErr
	a.mu.Unlock()
	if err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func (a *runnerAdapter) Disconnect() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.disconnected = true
	return nil
}

// reconfigurableAdapter records the reconnect options pushed at bind time.
type reconfigurableAdapter struct {
	testAdapter
	opts   transportpkg.ReconnectOptions
	recErr error
}

func (a *reconfigurableAdapter) Reconfigure(opts transportpkg.ReconnectOptions) error {
	if a.recErr != nil {
		return a.recErr
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.opts = opts
	return nil
}
