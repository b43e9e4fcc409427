package transport

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/bytedance/sonic"
)

// Envelope is the canonical wire frame. Adapters that speak JSON on the wire
// (websocket, sse, io, the broker bridge) encode and decode this shape;
// adapters with richer native metadata map their fields onto it instead.
//
// Payload stays raw: the dispatch core decides how to decode it, the
// transport never inspects it.
type Envelope struct {
	ID              string          `json:"id"`
	Event           string          `json:"event"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	ClientID        string          `json:"client_id,omitempty"`
	EmitterClientID string          `json:"emitter_client_id,omitempty"`
	Channel         string          `json:"channel,omitempty"`
	ApplicationID   string          `json:"application_id,omitempty"`
	Time            time.Time       `json:"time"`
}

// NewEnvelope builds an envelope for an outbound message, stamping a fresh
// ULID and the current time.
func NewEnvelope(event string, payload []byte) (Envelope, error) {
	if event == "" {
		return Envelope{}, fmt.Errorf("transport: envelope event is required")
	}
	return Envelope{
		ID:      watermill.NewULID(),
		Event:   event,
		Payload: payload,
		Time:    time.Now().UTC(),
	}, nil
}

// Encode serializes the envelope to its JSON wire form.
func (e Envelope) Encode() ([]byte, error) {
	data, err := sonic.ConfigStd.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

// DecodeEnvelope parses a JSON wire frame. Frames without an event type are
// rejected so malformed input never reaches the dispatcher as an empty
// event.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := sonic.ConfigStd.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing event type")
	}
	return env, nil
}
