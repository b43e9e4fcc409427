package runtime

import (
	"fmt"

	"google.golang.org/protobuf/proto"

	errspkg "github.com/drblury/sockflow/internal/runtime/errors"
	handlerpkg "github.com/drblury/sockflow/internal/runtime/handlers"
)

// ProtoRoute binds an event type to a handler that receives the payload
// already unmarshalled into the protobuf message T.
type ProtoRoute[T proto.Message] struct {
	Event      string
	Guards     []Guard
	Middleware []Middleware
	Handler    func(mc *MessageContext, payload T) error
}

// RegisterProtoRoute registers a typed protobuf route. Payloads are
// protojson; unknown fields are discarded.
func RegisterProtoRoute[T proto.Message](s *Service, route ProtoRoute[T]) error {
	if s == nil {
		return errspkg.ErrServiceRequired
	}
	if route.Handler == nil {
		return fmt.Errorf("register route %q: %w", route.Event, errspkg.ErrHandlerRequired)
	}

	decoder, err := handlerpkg.NewProtoDecoder[T]()
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
