// Package handlers converts opaque message payloads into the typed values
// route handlers want to work with.
package handlers

import (
	"encoding/json"
	"fmt"

	errspkg "github.com/drblury/sockflow/internal/runtime/errors"
	"github.com/drblury/sockflow/internal/runtime/jsoncodec"
)

// PayloadBytes renders a message payload as raw bytes. Byte-like payloads
// pass through untouched; anything else (for example a value a serializer
// already decoded) is re-encoded as JSON so typed decoders can consume it.
func PayloadBytes(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case nil:
		return nil, errspkg.ErrPayloadRequired
	case []byte:
		return p, nil
	case json.RawMessage:
		return []byte(p), nil
	case string:
		return []byte(p), nil
	default:
		raw, err := jsoncodec.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		return raw, nil
	}
}
