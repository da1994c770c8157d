package codec

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

// Protobuf serializes proto.Message values. Encode rejects non-message
// values; Decode requires dest to be a proto.Message (a pointer to a
// generated message type).
type Protobuf struct{}

func (Protobuf) Encode(v any) ([]byte, error) {
	m, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("protobuf codec: %T does not implement proto.Message", v)
	}
	return proto.Marshal(m)
}

func (Protobuf) Decode(b []byte, dest any) error {
	m, ok := dest.(proto.Message)
	if !ok {
		return fmt.Errorf("protobuf codec: %T does not implement proto.Message", dest)
	}
	return proto.Unmarshal(b, m)
}
