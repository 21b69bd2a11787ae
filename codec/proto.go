package codec

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

type protoCodec struct{}

// Proto returns a codec that carries job mappings as google.protobuf.Struct.
// Only map[string]any values (and proto messages) are supported.
func Proto() Codec { return protoCodec{} }

func (protoCodec) Name() string        { return "protobuf" }
func (protoCodec) ContentType() string { return "application/x-protobuf" }

func (protoCodec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case proto.Message:
		return proto.Marshal(m)
	case map[string]any:
		s, err := structpb.NewStruct(m)
		if err != nil {
			return nil, fmt.Errorf("protobuf: %w", err)
		}
		return proto.Marshal(s)
	default:
		return nil, fmt.Errorf("protobuf: cannot marshal %T", v)
	}
}

func (protoCodec) Unmarshal(data []byte, v any) error {
	switch out := v.(type) {
	case proto.Message:
		return proto.Unmarshal(data, out)
	case *map[string]any:
		var s structpb.Struct
		if err := proto.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("protobuf: %w", err)
		}
		*out = s.AsMap()
		return nil
	default:
		return fmt.Errorf("protobuf: cannot unmarshal into %T", v)
	}
}
