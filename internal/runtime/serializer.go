package runtime

import (
	"fmt"

	"github.com/drblury/sockflow/internal/runtime/jsoncodec"
)

// Serializer converts between wire bytes and application payload values.
// Configuring one on the service makes the dispatcher decode every inbound
// payload before middleware sees it, and Send/Broadcast encode outbound
// payloads before the adapter sees them. Encode and Decode must round-trip:
// Decode(Encode(v)) yields a value deep-equal to v for objects, arrays,
// primitives and null.
type Serializer interface {
	Encode(data any) ([]byte, error)
	Decode(raw []byte) (any, error)
}

// JSONSerializer is the stock Serializer. Decoded payloads use the generic
// JSON shapes: map[string]any, []any, string, float64, bool, nil.
type JSONSerializer struct{}

func (JSONSerializer) Encode(data any) ([]byte, error) {
	raw, err := jsoncodec.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return raw, nil
}

func (JSONSerializer) Decode(raw []byte) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var data any
	if err := jsoncodec.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return data, nil
}
