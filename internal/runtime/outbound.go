package runtime

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	errspkg "github.com/drblury/sockflow/internal/runtime/errors"
)

// protoJSONMarshalOptions emits zero-valued fields so consumers see a
// stable shape regardless of payload content.
var protoJSONMarshalOptions = protojson.MarshalOptions{EmitUnpopulated: true}

// EncodeProto marshals a protobuf message into the protojson wire form used
// by SendProto and BroadcastProto.
func EncodeProto(msg proto.Message) ([]byte, error) {
	if msg == nil {
		return nil, errspkg.ErrPayloadRequired
	}
	raw, err := protoJSONMarshalOptions.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal proto payload: %w", err)
	}
	return raw, nil
}

// SendProto delivers a protobuf payload to the given remote clients. The
// payload goes to the adapter as protojson bytes, bypassing any configured
// serializer.
func (s *Service) SendProto(event string, msg proto.Message, clientIDs ...string) error {
	raw, err := EncodeProto(msg)
	if err != nil {
		return err
	}
	adapter := s.Adapter()
	if adapter == nil {
		return &errspkg.NotConfiguredError{Op: "send"}
	}
	return adapter.Send(event, raw, clientIDs...)
}

// BroadcastProto fans a protobuf payload out, optionally scoped to named
// channels. Bypasses any configured serializer, like SendProto.
func (s *Service) BroadcastProto(event string, msg proto.Message, channels ...string) error {
	raw, err := EncodeProto(msg)
	if err != nil {
		return err
	}
	adapter := s.Adapter()
	if adapter == nil {
		return &errspkg.NotConfiguredError{Op: "broadcast"}
	}
	return adapter.Broadcast(event, raw, channels...)
}
