package spdb

// codec.go implements the value encodings used by ObjectDB.

import (
	"bytes"
	"encoding/gob"

	"google.golang.org/protobuf/proto"
)

// Codec converts between a Go value and its stored byte form.
type Codec[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(data []byte) (T, error)
}

// GobCodec encodes values with encoding/gob. It is the ObjectDB default.
// Encoded keys do not sort in the natural order of T.
type GobCodec[T any] struct{}

// Encode implements Codec.
func (GobCodec[T]) Encode(v T) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode implements Codec.
func (GobCodec[T]) Decode(data []byte) (T, error) {
	var v T
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v)
	return v, err
}

// ProtoCodec encodes protobuf messages. T is a generated message pointer
// type such as *wrapperspb.StringValue.
type ProtoCodec[T proto.Message] struct{}

// Encode implements Codec. Encoding is deterministic so encoded keys are
// stable.
func (ProtoCodec[T]) Encode(v T) ([]byte, error) {
	return proto.MarshalOptions{Deterministic: true}.Marshal(v)
}

// Decode implements Codec.
func (ProtoCodec[T]) Decode(data []byte) (T, error) {
	var zero T
	m, _ := zero.ProtoReflect().New().Interface().(T)
	if err := proto.Unmarshal(data, m); err != nil {
		return zero, err
	}
	return m, nil
}

// BytesCodec stores byte slices as-is.
type BytesCodec struct{}

// Encode implements Codec.
func (BytesCodec) Encode(v []byte) ([]byte, error) { return v, nil }

// Decode implements Codec.
func (BytesCodec) Decode(data []byte) ([]byte, error) { return data, nil }

// StringCodec stores strings as their bytes, which keeps the default key
// ordering lexicographic.
type StringCodec struct{}

// Encode implements Codec.
func (StringCodec) Encode(v string) ([]byte, error) { return []byte(v), nil }

// Decode implements Codec.
func (StringCodec) Decode(data []byte) (string, error) { return string(data), nil }
