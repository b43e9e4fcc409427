package runtime

import (
	"fmt"

	loggingpkg "github.com/drblury/sockflow/internal/runtime/logging"
)

// RegisterRoute binds an event type to a handler. Registering the same
// event again replaces the previous route; its stats carry over.
func (s *Service) RegisterRoute(route Route) error {
	replaced, err := s.routes.set(route)
	if err != nil {
		return fmt.Errorf("register route %q: %w", route.Event, err)
	}
	if replaced {
		s.Logger.Debug("route replaced", loggingpkg.LogFields{"event": route.Event})
	}
	return nil
}

// RegisterRoutes registers routes in order and stops at the first failure.
func (s *Service) RegisterRoutes(routes ...Route) error {
	for _, route := range routes {
		if err := s.RegisterRoute(route); err != nil {
			return err
		}
	}
	return nil
}

// ClearRoutes drops every registered route. Accumulated stats survive.
func (s *Service) ClearRoutes() {
	s.routes.clear()
}

// Routes lists the registered routes sorted by event type.
func (s *Service) Routes() []RouteInfo {
	return s.routes.snapshot()
}
