package runtime

import (
	"sort"
	"sync"

	errspkg "github.com/drblury/sockflow/internal/runtime/errors"
)

// HandlerFunc is the terminal stage of a route: business logic for one
// event type. A returned error or panic sends the message down the error
// path.
type HandlerFunc func(mc *MessageContext) error

// Route binds an event type to a handler, optionally protected by guards
// and wrapped in route-local middleware. Guards and middleware run in slice
// order.
type Route struct {
	Event      string
	Handler    HandlerFunc
	Guards     []Guard
	Middleware []Middleware
}

// routeTable is the concurrency-safe event -> route mapping. Stats entries
// are kept separately so a route replacement or table clear does not reset
// an event's accumulated counters.
type routeTable struct {
	mu      sync.RWMutex
	routes  map[string]*Route
	stats   map[string]*RouteStats
	sampler *resourceTracker
}

func newRouteTable(sampler *resourceTracker) *routeTable {
	return &routeTable{
		routes:  make(map[string]*Route),
		stats:   make(map[string]*RouteStats),
		sampler: sampler,
	}
}

// set validates and stores a route, replacing any previous registration for
// the same event. replaced reports whether an earlier route was displaced.
func (rt *routeTable) set(route Route) (replaced bool, err error) {
	if route.Event == "" {
		return false, errspkg.ErrEventTypeRequired
	}
	if route.Handler == nil {
		return false, errspkg.ErrHandlerRequired
	}

	stored := &Route{
		Event:      route.Event,
		Handler:    route.Handler,
		Guards:     append([]Guard(nil), route.Guards...),
		Middleware: append([]Middleware(nil), route.Middleware...),
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	_, replaced = rt.routes[route.Event]
	rt.routes[route.Event] = stored
	if _, ok := rt.stats[route.Event]; !ok {
		rt.stats[route.Event] = newRouteStats(route.Event, rt.sampler)
	}
	return replaced, nil
}

// lookup returns the route registered for event, if any.
func (rt *routeTable) lookup(event string) (*Route, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	route, ok := rt.routes[event]
	return route, ok
}

// clear drops every route. Stats survive so counters stay continuous if the
// same events are registered again.
func (rt *routeTable) clear() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.routes = make(map[string]*Route)
}

// statsFor returns the stats entry for event. Only events that have been
// registered at least once have one.
func (rt *routeTable) statsFor(event string) (*RouteStats, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	stats, ok := rt.stats[event]
	return stats, ok
}

// snapshot lists the registered routes sorted by event type.
func (rt *routeTable) snapshot() []RouteInfo {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	infos := make([]RouteInfo, 0, len(rt.routes))
	for event, route := range rt.routes {
		infos = append(infos, RouteInfo{
			Event:       event,
			Guards:      len(route.Guards),
			Middlewares: len(route.Middleware),
			Stats:       rt.stats[event],
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Event < infos[j].Event
	})
	return infos
}
