package handlers

import (
	"fmt"
	"reflect"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	errspkg "github.com/drblury/sockflow/internal/runtime/errors"
)

// protoJSONUnmarshalOptions tolerates unknown fields so payload producers can
// evolve ahead of consumers.
var protoJSONUnmarshalOptions = protojson.UnmarshalOptions{DiscardUnknown: true}

// ProtoDecoder converts a message payload into a typed protobuf value.
type ProtoDecoder[T proto.Message] func(payload any) (T, error)

// NewProtoDecoder builds a decoder that unmarshals protojson payloads into a
// fresh T per message. T must be a pointer message type.
func NewProtoDecoder[T proto.Message]() (ProtoDecoder[T], error) {
	var zero T
	prototype, err := EnsureProtoPrototype(zero)
	if err != nil {
		return nil, err
	}

	return func(payload any) (T, error) {
		var zero T

		raw, err := PayloadBytes(payload)
		if err != nil {
			return zero, err
		}

		typed, err := clonePrototype(prototype)
		if err != nil {
			return zero, err
		}
		if err := protoJSONUnmarshalOptions.Unmarshal(raw, typed); err != nil {
			return zero, fmt.Errorf("unmarshal %T payload: %w", prototype, err)
		}
		return typed, nil
	}, nil
}

func clonePrototype[T proto.Message](prototype T) (T, error) {
	if isNilProto(prototype) {
		var zero T
		return zero, errspkg.ErrPayloadTypeRequired
	}

	cloned := proto.Clone(prototype)
	proto.Reset(cloned)

	typed, ok := cloned.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("unexpected prototype type %T", cloned)
	}

	return typed, nil
}

// EnsureProtoPrototype returns a usable prototype instance for T, allocating
// one when the candidate is a typed nil pointer.
func EnsureProtoPrototype[T proto.Message](candidate T) (T, error) {
	if !isNilProto(candidate) {
		return candidate, nil
	}

	var zero T
	typ := reflect.TypeOf(candidate)
	if typ == nil {
		return zero, errspkg.ErrPayloadTypeRequired
	}
	if typ.Kind() != reflect.Ptr {
		return zero, errspkg.ErrPayloadTypePointerNeeded
	}

	inst := reflect.New(typ.Elem()).Interface()
	typed, ok := inst.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected prototype type %s", typ)
	}
	return typed, nil
}

func isNilProto[T proto.Message](prototype T) bool {
	msg := proto.Message(prototype)
	if msg == nil {
		return true
	}

	val := reflect.ValueOf(msg)
	switch val.Kind() {
	case reflect.Interface, reflect.Ptr, reflect.Slice, reflect.Map, reflect.Func:
		return val.IsNil()
	default:
		return false
	}
}
