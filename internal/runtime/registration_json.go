package runtime

import (
	"fmt"

	errspkg "github.com/drblury/sockflow/internal/runtime/errors"
	handlerpkg "github.com/drblury/sockflow/internal/runtime/handlers"
)

// JSONRoute binds an event type to a handler that receives the payload
// already unmarshalled into T. T must be a pointer type.
type JSONRoute[T any] struct {
	Event      string
	Guards     []Guard
	Middleware []Middleware
	Handler    func(mc *MessageContext, payload T) error
}

// RegisterJSONRoute registers a typed JSON route. Decoder construction
// failures (non-pointer T) surface here at registration rather than per
// message.
func RegisterJSONRoute[T any](s *Service, route JSONRoute[T]) error {
	if s == nil {
		return errspkg.ErrServiceRequired
	}
	if route.Handler == nil {
		return fmt.Errorf("register route %q: %w", route.Event, errspkg.ErrHandlerRequired)
	}

	decoder, err := handlerpkg.NewJSONDecoder[T]()
	if err != nil {
		return fmt.Errorf("register route %q: %w", route.Event, err)
	}

	return s.RegisterRoute(Route{
		Event:      route.Event,
		Guards:     route.Guards,
		Middleware: route.Middleware,
		Handler: func(mc *MessageContext) error {
			typed, err := decoder(mc.Payload)
			if err != nil {
				return err
			}
			return route.Handler(mc, typed)
		},
	})
}
