package runtime

import (
	"errors"
	"testing"

	errspkg "github.com/drblury/sockflow/internal/runtime/errors"
)

func noopHandler(mc *MessageContext) error { return nil }

func TestRouteTableSetValidation(t *testing.T) {
	rt := newRouteTable(nil)

	if _, err := rt.set(Route{Handler: noopHandler}); !errors.Is(err, errspkg.ErrEventTypeRequired) {
		t.Fatalf("expected ErrEventTypeRequired, got %v", err)
	}
	if _, err := rt.set(Route{Event: "x"}); !errors.Is(err, errspkg.ErrHandlerRequired) {
		t.Fatalf("expected ErrHandlerRequired, got %v", err)
	}
}

func TestRouteTableLastRegistrationWins(t *testing.T) {
	rt := newRouteTable(nil)

	first := func(mc *MessageContext) error { return errors.New("first") }
	second := func(mc *MessageContext) error { return errors.New("second") }

	replaced, err := rt.set(Route{Event: "x", Handler: first})
	if err != nil || replaced {
		t.Fatalf("first set: replaced=%v err=%v", replaced, err)
	}
	replaced, err = rt.set(Route{Event: "x", Handler: second})
	if err != nil || !replaced {
		t.Fatalf("second set must report replacement: replaced=%v err=%v", replaced, err)
	}

	route, ok := rt.lookup("x")
	if !ok {
		t.Fatal("expected route")
	}
	if got := route.Handler(&MessageContext{}); got == nil || got.Error() != "second" {
		t.Fatalf("expected second handler, got %v", got)
	}
}

func TestRouteTableStatsSurviveReplacementAndClear(t *testing.T) {
	rt := newRouteTable(nil)

	if _, err := rt.set(Route{Event: "x", Handler: noopHandler}); err != nil {
		t.Fatalf("set: %v", err)
	}
	stats, ok := rt.statsFor("x")
	if !ok {
		t.Fatal("expected stats entry after registration")
	}
	stats.record(OutcomeDone, 0, nil, ErrorCategoryNone)

	if _, err := rt.set(Route{Event: "x", Handler: noopHandler}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	after, _ := rt.statsFor("x")
	if after != stats {
		t.Fatal("replacement must keep the stats entry")
	}
	if after.Done != 1 {
		t.Fatalf("expected counter continuity, got %d", after.Done)
	}

	rt.clear()
	if _, ok := rt.lookup("x"); ok {
		t.Fatal("clear must drop routes")
	}
	kept, ok := rt.statsFor("x")
	if !ok || kept != stats {
		t.Fatal("clear must keep stats")
	}

	if _, err := rt.set(Route{Event: "x", Handler: noopHandler}); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	again, _ := rt.statsFor("x")
	if again.Done != 1 {
		t.Fatalf("re-registration must continue counters, got %d", again.Done)
	}
}

func TestRouteTableStoresDefensiveCopies(t *testing.T) {
	rt := newRouteTable(nil)

	guards := []Guard{func(mc *MessageContext) Verdict { return Allow() }}
	if _, err := rt.set(Route{Event: "x", Handler: noopHandler, Guards: guards}); err != nil {
		t.Fatalf("set: %v", err)
	}

	// Mutating the caller's slice must not reach the stored route.
	guards[0] = func(mc *MessageContext) Verdict { return Deny("mutated") }

	route, _ := rt.lookup("x")
	if v := route.Guards[0](&MessageContext{}); !v.Allowed {
		t.Fatal("stored guards must be isolated from caller mutation")
	}
}

func TestRouteTableSnapshotSorted(t *testing.T) {
	rt := newRouteTable(nil)
	for _, event := range []string{"zz", "aa", "mm"} {
		if _, err := rt.set(Route{Event: event, Handler: noopHandler}); err != nil {
			t.Fatalf("set %s: %v", event, err)
		}
	}

	infos := rt.snapshot()
	if len(infos) != 3 {
		t.Fatalf("expected 3 routes, got %d", len(infos))
	}
	want := []string{"aa", "mm", "zz"}
	for i, info := range infos {
		if info.Event != want[i] {
			t.Fatalf("expected sorted events %v, got %v at %d", want, info.Event, i)
		}
		if info.Stats == nil {
			t.Fatalf("expected stats attached to %s", info.Event)
		}
	}
}

func TestRouteTableSnapshotCounts(t *testing.T) {
	rt := newRouteTable(nil)
	route := Route{
		Event:   "x",
		Handler: noopHandler,
		Guards: []Guard{
			func(mc *MessageContext) Verdict { return Allow() },
			func(mc *MessageContext) Verdict { return Allow() },
		},
		Middleware: []Middleware{
			func(mc *MessageContext, next Next) error { return next() },
		},
	}
	if _, err := rt.set(route); err != nil {
		t.Fatalf("set: %v", err)
	}

	infos := rt.snapshot()
	if infos[0].Guards != 2 || infos[0].Middlewares != 1 {
		t.Fatalf("expected guard/middleware counts 2/1, got %d/%d", infos[0].Guards, infos[0].Middlewares)
	}
}
