package core

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
)

// Codec turns payloads into message bodies and back.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}

// JSONCodec encodes payloads as JSON. Byte slices, strings and wire messages
// are passed through unchanged.
type JSONCodec struct{}

func (JSONCodec) Encode(v any) ([]byte, error) {
	switch p := v.(type) {
	case []byte:
		return p, nil
	case string:
		return []byte(p), nil
	case Message:
		return p.Value(), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}
	return b, nil
}

func (JSONCodec) Decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("json: %w", err)
	}
	return nil
}

// Decode builds a transform that unmarshals the body of a wire message into T.
// A body that does not decode nacks the message.
func Decode[T any](name string, codec Codec) *Unit {
	if codec == nil {
		codec = JSONCodec{}
	}
	return Transform(name, func(_ context.Context, msg Message) (T, error) {
		var v T
		if err := codec.Decode(msg.Value(), &v); err != nil {
			return v, fmt.Errorf("chanflow: decode: %w", err)
		}
		return v, nil
	})
}
