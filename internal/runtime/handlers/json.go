package handlers

import (
	"fmt"
	"reflect"

	errspkg "github.com/drblury/sockflow/internal/runtime/errors"
	"github.com/drblury/sockflow/internal/runtime/jsoncodec"
)

// JSONDecoder converts a message payload into a typed value.
type JSONDecoder[T any] func(payload any) (T, error)

// NewJSONDecoder builds a decoder that unmarshals message payloads into a
// fresh T per message so handlers never share state. T must be a pointer
// type; the pointee is allocated by the decoder.
func NewJSONDecoder[T any]() (JSONDecoder[T], error) {
	prototypeFactory, err := jsonPrototypeFactory[T]()
	if err != nil {
		return nil, err
	}

	return func(payload any) (T, error) {
		var zero T

		raw, err := PayloadBytes(payload)
		if err != nil {
			return zero, err
		}

		typed := prototypeFactory()
		if err := jsoncodec.Unmarshal(raw, typed); err != nil {
			return zero, fmt.Errorf("unmarshal json payload: %w", err)
		}
		return typed, nil
	}, nil
}

func jsonPrototypeFactory[T any]() (func() T, error) {
	var zero T
	typ := reflect.TypeOf(zero)
	if typ == nil {
		return nil, errspkg.ErrPayloadTypeRequired
	}
	if typ.Kind() != reflect.Ptr {
		return nil, errspkg.ErrPayloadTypePointerNeeded
	}
	elem := typ.Elem()
	return func() T {
		clone := reflect.New(elem).Interface()
		return clone.(T)
	}, nil
}
