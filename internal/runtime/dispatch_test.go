package runtime

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	errspkg "github.com/drblury/sockflow/internal/runtime/errors"
	transportpkg "github.com/drblury/sockflow/transport"
)

// dispatchRecorder counts hook invocations across one or more dispatches.
type dispatchRecorder struct {
	mu     sync.Mutex
	before int
	after  int
	errs   []error
}

func (r *dispatchRecorder) install(t *testing.T, svc *Service) {
	t.Helper()
	if err := svc.Hook(HookBeforeMessage, func(mc *MessageContext) {
		r.mu.Lock()
		r.before++
		r.mu.Unlock()
	}); err != nil {
		t.Fatalf("hook beforeMessage: %v", err)
	}
	if err := svc.Hook(HookAfterMessage, func(mc *MessageContext) {
		r.mu.Lock()
		r.after++
		r.mu.Unlock()
	}); err != nil {
		t.Fatalf("hook afterMessage: %v", err)
	}
	if err := svc.Hook(HookOnError, func(mc *MessageContext, err error) {
		r.mu.Lock()
		r.errs = append(r.errs, err)
		r.mu.Unlock()
	}); err != nil {
		t.Fatalf("hook onError: %v", err)
	}
}

func (r *dispatchRecorder) counts() (before, after int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.before, r.after
}

func (r *dispatchRecorder) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func TestDispatchDone(t *testing.T) {
	adapter := newTestAdapter()
	svc := newTestService(t, ServiceDependencies{
		Adapter:                   adapter,
		Serializer:                JSONSerializer{},
		DisableDefaultMiddlewares: true,
	})
	rec := &dispatchRecorder{}
	rec.install(t, svc)

	var seen any
	if err := svc.RegisterRoute(Route{
		Event: "chat.message",
		Handler: func(mc *MessageContext) error {
			seen = mc.Payload
			return nil
		},
	}); err != nil {
		t.Fatalf("RegisterRoute: %v", err)
	}

	outcome := svc.Dispatch("chat.message", []byte(`{"text":"hi"}`))
	if outcome != OutcomeDone {
		t.Fatalf("expected done, got %s", outcome)
	}

	payload, ok := seen.(map[string]any)
	if !ok || payload["text"] != "hi" {
		t.Fatalf("expected decoded payload, got %#v", seen)
	}

	before, after := rec.counts()
	if before != 1 || after != 1 {
		t.Fatalf("expected one beforeMessage and one afterMessage, got %d/%d", before, after)
	}
	if len(rec.errors()) != 0 {
		t.Fatalf("done path must not fire onError, got %v", rec.errors())
	}

	stats, ok := svc.routes.statsFor("chat.message")
	if !ok || stats.Done != 1 {
		t.Fatalf("expected Done counted, got %+v", stats)
	}
}

func TestDispatchWithoutTransportErrors(t *testing.T) {
	svc := newTestService(t, ServiceDependencies{DisableDefaultMiddlewares: true})
	rec := &dispatchRecorder{}
	rec.install(t, svc)

	outcome := svc.Dispatch("chat.message", []byte("x"))
	if outcome != OutcomeErrored {
		t.Fatalf("expected errored without transport, got %s", outcome)
	}

	errs := rec.errors()
	if len(errs) != 1 {
		t.Fatalf("expected one onError, got %d", len(errs))
	}
	var notConfigured *errspkg.NotConfiguredError
	if !errors.As(errs[0], &notConfigured) {
		t.Fatalf("expected NotConfiguredError, got %v", errs[0])
	}

	before, after := rec.counts()
	if before != 1 || after != 1 {
		t.Fatalf("hooks must run on build failure too, got %d/%d", before, after)
	}
}

func TestDispatchNoRouteRejectsSilently(t *testing.T) {
	adapter := newTestAdapter()
	svc := newTestService(t, ServiceDependencies{
		Adapter:                   adapter,
		DisableDefaultMiddlewares: true,
	})
	rec := &dispatchRecorder{}
	rec.install(t, svc)

	outcome := svc.Dispatch("unknown.event", []byte("x"))
	if outcome != OutcomeRejected {
		t.Fatalf("expected rejected, got %s", outcome)
	}
	if len(rec.errors()) != 0 {
		t.Fatal("missing routes are not errors")
	}
	if len(adapter.sentMessages()) != 0 {
		t.Fatal("rejections must not produce replies")
	}
	if _, after := rec.counts(); after != 1 {
		t.Fatal("afterMessage must run on rejection")
	}

	// Unrouted events have no stats entry but still count in the metrics.
	if _, ok := svc.routes.statsFor("unknown.event"); ok {
		t.Fatal("unrouted events must not grow the stats table")
	}
	counts, ok := svc.metrics.GetEventMetrics("unknown.event")
	if !ok || counts.Rejected != 1 {
		t.Fatalf("expected metrics rejection count, got %+v ok=%v", counts, ok)
	}
}

func TestDispatchGlobalMiddlewareStopRejects(t *testing.T) {
	adapter := newTestAdapter()
	svc := newTestService(t, ServiceDependencies{
		Adapter:                   adapter,
		DisableDefaultMiddlewares: true,
	})
	rec := &dispatchRecorder{}
	rec.install(t, svc)

	if err := svc.RegisterMiddleware(MiddlewareRegistration{
		Name: "stopper",
		Middleware: func(mc *MessageContext, next Next) error {
			mc.Stop()
			return next()
		},
	}); err != nil {
		t.Fatalf("RegisterMiddleware: %v", err)
	}

	handled := false
	if err := svc.RegisterRoute(Route{
		Event:   "chat.message",
		Handler: func(mc *MessageContext) error { handled = true; return nil },
	}); err != nil {
		t.Fatalf("RegisterRoute: %v", err)
	}

	outcome := svc.Dispatch("chat.message", []byte("x"))
	if outcome != OutcomeRejected {
		t.Fatalf("expected rejected, got %s", outcome)
	}
	if handled {
		t.Fatal("handler must not run after Stop")
	}
	if len(rec.errors()) != 0 {
		t.Fatal("stop is not an error")
	}
	if _, after := rec.counts(); after != 1 {
		t.Fatal("afterMessage must run on stop")
	}
}

func TestDispatchRouteMiddlewareStopRejects(t *testing.T) {
	adapter := newTestAdapter()
	svc := newTestService(t, ServiceDependencies{
		Adapter:                   adapter,
		DisableDefaultMiddlewares: true,
	})

	handled := false
	if err := svc.RegisterRoute(Route{
		Event: "chat.message",
		Middleware: []Middleware{
			func(mc *MessageContext, next Next) error {
				mc.Stop()
				return next()
			},
		},
		Handler: func(mc *MessageContext) error { handled = true; return nil },
	}); err != nil {
		t.Fatalf("RegisterRoute: %v", err)
	}

	if outcome := svc.Dispatch("chat.message", []byte("x")); outcome != OutcomeRejected {
		t.Fatalf("expected rejected, got %s", outcome)
	}
	if handled {
		t.Fatal("handler must not run after route middleware Stop")
	}

	stats, _ := svc.routes.statsFor("chat.message")
	if stats.Rejected != 1 {
		t.Fatalf("expected Rejected counted, got %+v", stats)
	}
}

func TestDispatchGuardDenialRejects(t *testing.T) {
	adapter := newTestAdapter()
	svc := newTestService(t, ServiceDependencies{
		Adapter:                   adapter,
		DisableDefaultMiddlewares: true,
	})
	rec := &dispatchRecorder{}
	rec.install(t, svc)

	var denialReason any
	if err := svc.Hook(HookAfterMessage, func(mc *MessageContext) {
		denialReason, _ = mc.Get(ScratchKeyGuardDenialReason)
	}); err != nil {
		t.Fatalf("hook: %v", err)
	}

	handled := false
	routeMiddlewareRan := false
	if err := svc.RegisterRoute(Route{
		Event: "admin.command",
		Guards: []Guard{
			func(mc *MessageContext) Verdict { return Deny("not an admin") },
		},
		Middleware: []Middleware{
			func(mc *MessageContext, next Next) error {
				routeMiddlewareRan = true
				return next()
			},
		},
		Handler: func(mc *MessageContext) error { handled = true; return nil },
	}); err != nil {
		t.Fatalf("RegisterRoute: %v", err)
	}

	outcome := svc.Dispatch("admin.command", []byte("x"))
	if outcome != OutcomeRejected {
		t.Fatalf("expected rejected, got %s", outcome)
	}
	if handled || routeMiddlewareRan {
		t.Fatal("guard denial must stop before route middleware and handler")
	}
	if denialReason != "not an admin" {
		t.Fatalf("expected denial reason in scratch, got %v", denialReason)
	}
	if len(rec.errors()) != 0 {
		t.Fatal("guard denials are not errors")
	}
}

func TestDispatchGuardPanicRejects(t *testing.T) {
	adapter := newTestAdapter()
	svc := newTestService(t, ServiceDependencies{
		Adapter:                   adapter,
		DisableDefaultMiddlewares: true,
	})
	rec := &dispatchRecorder{}
	rec.install(t, svc)

	if err := svc.RegisterRoute(Route{
		Event:   "chat.message",
		Guards:  []Guard{func(mc *MessageContext) Verdict { panic("guard bug") }},
		Handler: noopHandler,
	}); err != nil {
		t.Fatalf("RegisterRoute: %v", err)
	}

	if outcome := svc.Dispatch("chat.message", []byte("x")); outcome != OutcomeRejected {
		t.Fatalf("guard panic must reject, got %s", outcome)
	}
	if len(rec.errors()) != 0 {
		t.Fatal("guard panics reject rather than error")
	}
}

func TestDispatchHandlerErrorRunsErrorPath(t *testing.T) {
	boom := errors.New("boom")
	adapter := &normalizingAdapter{}
	adapter.name = "normalizing"
	adapter.normalize = func(raw []byte) (transportpkg.Envelope, error) {
		return transportpkg.Envelope{ClientID: "client-9", Payload: raw}, nil
	}

	svc := newTestService(t, ServiceDependencies{
		Adapter:                   adapter,
		Serializer:                JSONSerializer{},
		DisableDefaultMiddlewares: true,
	})
	rec := &dispatchRecorder{}
	rec.install(t, svc)

	if err := svc.RegisterRoute(Route{
		Event:   "chat.message",
		Handler: func(mc *MessageContext) error { return boom },
	}); err != nil {
		t.Fatalf("RegisterRoute: %v", err)
	}

	outcome := svc.Dispatch("chat.message", []byte(`{}`))
	if outcome != OutcomeErrored {
		t.Fatalf("expected errored, got %s", outcome)
	}

	// Hooks see the original error, unwrapped.
	errs := rec.errors()
	if len(errs) != 1 || errs[0] != boom {
		t.Fatalf("expected original error in onError, got %v", errs)
	}

	// The default handler replies to the remote sender.
	sends := adapter.sentMessages()
	if len(sends) != 1 {
		t.Fatalf("expected one error reply, got %d", len(sends))
	}
	if sends[0].event != "error" {
		t.Fatalf("expected error event, got %q", sends[0].event)
	}
	if string(sends[0].payload) != `{"message":"boom"}` {
		t.Fatalf("expected error payload, got %s", sends[0].payload)
	}
	if len(sends[0].targets) != 1 || sends[0].targets[0] != "client-9" {
		t.Fatalf("expected reply targeted at sender, got %v", sends[0].targets)
	}

	stats, _ := svc.routes.statsFor("chat.message")
	if stats.Errored != 1 || stats.Errors.Handler != 1 {
		t.Fatalf("expected handler error counted, got %+v", stats)
	}
}

func TestDispatchErrorReplyWithoutSerializer(t *testing.T) {
	adapter := newTestAdapter()
	svc := newTestService(t, ServiceDependencies{
		Adapter:                   adapter,
		DisableDefaultMiddlewares: true,
	})

	if err := svc.RegisterRoute(Route{
		Event:   "chat.message",
		Handler: func(mc *MessageContext) error { return errors.New("boom") },
	}); err != nil {
		t.Fatalf("RegisterRoute: %v", err)
	}

	if outcome := svc.Dispatch("chat.message", []byte("x")); outcome != OutcomeErrored {
		t.Fatalf("expected errored, got %s", outcome)
	}

	sends := adapter.sentMessages()
	if len(sends) != 1 || string(sends[0].payload) != `{"message":"boom"}` {
		t.Fatalf("expected pre-encoded error reply, got %v", sends)
	}
}

func TestDispatchHandlerPanicErrors(t *testing.T) {
	adapter := newTestAdapter()
	svc := newTestService(t, ServiceDependencies{
		Adapter:                   adapter,
		DisableDefaultMiddlewares: true,
	})
	rec := &dispatchRecorder{}
	rec.install(t, svc)

	if err := svc.RegisterRoute(Route{
		Event:   "chat.message",
		Handler: func(mc *MessageContext) error { panic("handler bug") },
	}); err != nil {
		t.Fatalf("RegisterRoute: %v", err)
	}

	if outcome := svc.Dispatch("chat.message", []byte("x")); outcome != OutcomeErrored {
		t.Fatalf("expected errored, got %s", outcome)
	}

	errs := rec.errors()
	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "handler bug") {
		t.Fatalf("expected panic converted to error, got %v", errs)
	}
}

func TestDispatchMiddlewareErrorRunsErrorPath(t *testing.T) {
	boom := errors.New("middleware boom")
	adapter := newTestAdapter()
	svc := newTestService(t, ServiceDependencies{
		Adapter:                   adapter,
		DisableDefaultMiddlewares: true,
	})
	rec := &dispatchRecorder{}
	rec.install(t, svc)

	if err := svc.RegisterMiddleware(MiddlewareRegistration{
		Name:       "failing",
		Middleware: func(mc *MessageContext, next Next) error { return boom },
	}); err != nil {
		t.Fatalf("RegisterMiddleware: %v", err)
	}
	if err := svc.RegisterRoute(Route{Event: "chat.message", Handler: noopHandler}); err != nil {
		t.Fatalf("RegisterRoute: %v", err)
	}

	if outcome := svc.Dispatch("chat.message", []byte("x")); outcome != OutcomeErrored {
		t.Fatalf("expected errored, got %s", outcome)
	}

	errs := rec.errors()
	if len(errs) != 1 || errs[0] != boom {
		t.Fatalf("expected original middleware error in onError, got %v", errs)
	}

	stats, _ := svc.routes.statsFor("chat.message")
	if stats.Errors.Middleware != 1 {
		t.Fatalf("expected middleware error category, got %+v", stats.Errors)
	}
}

func TestDispatchDoubleContinuationErrors(t *testing.T) {
	adapter := newTestAdapter()
	svc := newTestService(t, ServiceDependencies{
		Adapter:                   adapter,
		DisableDefaultMiddlewares: true,
	})
	rec := &dispatchRecorder{}
	rec.install(t, svc)

	if err := svc.RegisterMiddleware(MiddlewareRegistration{
		Name: "double",
		Middleware: func(mc *MessageContext, next Next) error {
			_ = next()
			_ = next()
			return nil
		},
	}); err != nil {
		t.Fatalf("RegisterMiddleware: %v", err)
	}
	if err := svc.RegisterRoute(Route{Event: "chat.message", Handler: noopHandler}); err != nil {
		t.Fatalf("RegisterRoute: %v", err)
	}

	if outcome := svc.Dispatch("chat.message", []byte("x")); outcome != OutcomeErrored {
		t.Fatalf("expected errored on double continuation, got %s", outcome)
	}

	errs := rec.errors()
	var double *errspkg.DoubleContinuationError
	if len(errs) != 1 || !errors.As(errs[0], &double) {
		t.Fatalf("expected DoubleContinuationError, got %v", errs)
	}
}

func TestDispatchDecodeFailureErrors(t *testing.T) {
	adapter := newTestAdapter()
	svc := newTestService(t, ServiceDependencies{
		Adapter:                   adapter,
		Serializer:                JSONSerializer{},
		DisableDefaultMiddlewares: true,
	})
	rec := &dispatchRecorder{}
	rec.install(t, svc)

	handled := false
	if err := svc.RegisterRoute(Route{
		Event:   "chat.message",
		Handler: func(mc *MessageContext) error { handled = true; return nil },
	}); err != nil {
		t.Fatalf("RegisterRoute: %v", err)
	}

	if outcome := svc.Dispatch("chat.message", []byte("{broken")); outcome != OutcomeErrored {
		t.Fatalf("expected errored on decode failure, got %s", outcome)
	}
	if handled {
		t.Fatal("handler must not run on decode failure")
	}
	if len(rec.errors()) != 1 {
		t.Fatalf("expected one onError, got %d", len(rec.errors()))
	}

	stats, _ := svc.routes.statsFor("chat.message")
	if stats.Errors.Serialization != 1 {
		t.Fatalf("expected serialization category, got %+v", stats.Errors)
	}
}

func TestDispatchNormalizeFailureErrors(t *testing.T) {
	adapter := &normalizingAdapter{}
	adapter.name = "normalizing"
	adapter.normalize = func(raw []byte) (transportpkg.Envelope, error) {
		return transportpkg.Envelope{}, errors.New("bad frame")
	}
	svc := newTestService(t, ServiceDependencies{
		Adapter:                   adapter,
		DisableDefaultMiddlewares: true,
	})
	rec := &dispatchRecorder{}
	rec.install(t, svc)

	if outcome := svc.Dispatch("chat.message", []byte("x")); outcome != OutcomeErrored {
		t.Fatalf("expected errored on normalize failure, got %s", outcome)
	}
	if len(rec.errors()) != 1 {
		t.Fatalf("expected onError, got %v", rec.errors())
	}
}

func TestDispatchEnvelopeMetadata(t *testing.T) {
	adapter := &normalizingAdapter{}
	adapter.name = "normalizing"
	adapter.normalize = func(raw []byte) (transportpkg.Envelope, error) {
		return transportpkg.Envelope{
			ID:              "msg-42",
			ClientID:        "remote-1",
			EmitterClientID: "local-2",
			Channel:         "lobby",
			ApplicationID:   "app-3",
			Payload:         []byte(`{"text":"hi"}`),
		}, nil
	}
	svc := newTestService(t, ServiceDependencies{
		Adapter:                   adapter,
		Serializer:                JSONSerializer{},
		DisableDefaultMiddlewares: true,
	})

	var got *MessageContext
	if err := svc.RegisterRoute(Route{
		Event: "chat.message",
		Handler: func(mc *MessageContext) error {
			got = mc
			return nil
		},
	}); err != nil {
		t.Fatalf("RegisterRoute: %v", err)
	}

	if outcome := svc.Dispatch("chat.message", []byte("ignored-wire-form")); outcome != OutcomeDone {
		t.Fatalf("expected done, got %s", outcome)
	}

	if got.MessageID != "msg-42" {
		t.Fatalf("expected envelope id to win, got %q", got.MessageID)
	}
	if got.RemoteClient != "remote-1" || got.LocalClient != "local-2" {
		t.Fatalf("expected client metadata, got %q/%q", got.RemoteClient, got.LocalClient)
	}
	if got.Channel != "lobby" || got.ApplicationID != "app-3" {
		t.Fatalf("expected channel metadata, got %q/%q", got.Channel, got.ApplicationID)
	}
	payload, ok := got.Payload.(map[string]any)
	if !ok || payload["text"] != "hi" {
		t.Fatalf("expected envelope payload decoded, got %#v", got.Payload)
	}
}

func TestDispatchCustomErrorHandler(t *testing.T) {
	boom := errors.New("boom")
	adapter := newTestAdapter()

	var handledErr error
	svc := newTestService(t, ServiceDependencies{
		Adapter:                   adapter,
		DisableDefaultMiddlewares: true,
		ErrorHandler: func(mc *MessageContext, err error) {
			handledErr = err
		},
	})

	if err := svc.RegisterRoute(Route{
		Event:   "chat.message",
		Handler: func(mc *MessageContext) error { return boom },
	}); err != nil {
		t.Fatalf("RegisterRoute: %v", err)
	}

	if outcome := svc.Dispatch("chat.message", []byte("x")); outcome != OutcomeErrored {
		t.Fatalf("expected errored, got %s", outcome)
	}
	if handledErr != boom {
		t.Fatalf("custom handler must receive the original error, got %v", handledErr)
	}
	if len(adapter.sentMessages()) != 0 {
		t.Fatal("custom handler replaces the default reply")
	}
}

func TestDispatchErrorHandlerPanicContained(t *testing.T) {
	adapter := newTestAdapter()
	svc := newTestService(t, ServiceDependencies{
		Adapter:                   adapter,
		DisableDefaultMiddlewares: true,
		ErrorHandler: func(mc *MessageContext, err error) {
			panic("error handler bug")
		},
	})
	rec := &dispatchRecorder{}
	rec.install(t, svc)

	if err := svc.RegisterRoute(Route{
		Event:   "chat.message",
		Handler: func(mc *MessageContext) error { return errors.New("boom") },
	}); err != nil {
		t.Fatalf("RegisterRoute: %v", err)
	}

	if outcome := svc.Dispatch("chat.message", []byte("x")); outcome != OutcomeErrored {
		t.Fatalf("expected errored despite handler panic, got %s", outcome)
	}
	if _, after := rec.counts(); after != 1 {
		t.Fatal("afterMessage must still run when the error handler panics")
	}
}

func TestDispatchAppContextSnapshot(t *testing.T) {
	adapter := newTestAdapter()
	svc := newTestService(t, ServiceDependencies{
		Adapter:                   adapter,
		AppContext:                "v1",
		DisableDefaultMiddlewares: true,
	})

	var seen []any
	if err := svc.RegisterRoute(Route{
		Event: "chat.message",
		Handler: func(mc *MessageContext) error {
			seen = append(seen, mc.AppContext)
			return nil
		},
	}); err != nil {
		t.Fatalf("RegisterRoute: %v", err)
	}

	svc.Dispatch("chat.message", []byte("x"))
	svc.SetAppContext("v2")
	svc.Dispatch("chat.message", []byte("x"))

	if len(seen) != 2 || seen[0] != "v1" || seen[1] != "v2" {
		t.Fatalf("expected app context captured per message, got %v", seen)
	}
}

func TestIngestDispatchesAsynchronously(t *testing.T) {
	adapter := newTestAdapter()
	svc := newTestService(t, ServiceDependencies{
		Adapter:                   adapter,
		DisableDefaultMiddlewares: true,
	})

	done := make(chan string, 1)
	if err := svc.RegisterRoute(Route{
		Event: "chat.message",
		Handler: func(mc *MessageContext) error {
			done <- string(mc.Payload.([]byte))
			return nil
		},
	}); err != nil {
		t.Fatalf("RegisterRoute: %v", err)
	}

	callback := adapter.callback()
	if callback == nil {
		t.Fatal("binding must install the inbound callback")
	}
	callback("chat.message", []byte("hello"))

	select {
	case got := <-done:
		if got != "hello" {
			t.Fatalf("expected hello, got %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatch")
	}
}

func TestDispatchConcurrentMessages(t *testing.T) {
	adapter := newTestAdapter()
	svc := newTestService(t, ServiceDependencies{
		Adapter:                   adapter,
		DisableDefaultMiddlewares: true,
	})

	var mu sync.Mutex
	count := 0
	if err := svc.RegisterRoute(Route{
		Event: "chat.message",
		Handler: func(mc *MessageContext) error {
			mu.Lock()
			count++
			mu.Unlock()
			return nil
		},
	}); err != nil {
		t.Fatalf("RegisterRoute: %v", err)
	}

	const n = 50
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			svc.Dispatch("chat.message", fmt.Appendf(nil, "msg-%d", i))
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if count != n {
		t.Fatalf("expected %d handled messages, got %d", n, count)
	}

	stats, _ := svc.routes.statsFor("chat.message")
	if stats.Done != n {
		t.Fatalf("expected %d done in stats, got %d", n, stats.Done)
	}
}

func TestDispatchMessageIDUnique(t *testing.T) {
	adapter := newTestAdapter()
	svc := newTestService(t, ServiceDependencies{
		Adapter:                   adapter,
		DisableDefaultMiddlewares: true,
	})

	ids := make(map[string]bool)
	if err := svc.RegisterRoute(Route{
		Event: "chat.message",
		Handler: func(mc *MessageContext) error {
			if mc.MessageID == "" {
				t.Error("expected a message id")
			}
			ids[mc.MessageID] = true
			return nil
		},
	}); err != nil {
		t.Fatalf("RegisterRoute: %v", err)
	}

	for range 5 {
		svc.Dispatch("chat.message", []byte("x"))
	}
	if len(ids) != 5 {
		t.Fatalf("expected 5 unique message ids, got %d", len(ids))
	}
}

func TestOutcomeString(t *testing.T) {
	if OutcomeDone.String() != "done" || OutcomeRejected.String() != "rejected" || OutcomeErrored.String() != "errored" {
		t.Fatal("unexpected outcome strings")
	}
	if Outcome(99).String() != "unknown" {
		t.Fatal("unexpected fallback outcome string")
	}
}
