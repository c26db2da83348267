package op

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrUnknownKind reports a decode of an operation kind this build does not
// know. This is a programming/version error, not a runtime condition.
var ErrUnknownKind = errors.New("unknown operation kind")

// Envelope is the durable/wire form of an operation: the kind tag plus the
// raw payload. 序列化时保留类型信息，反序列化时按 kind 分发。
type Envelope struct {
	Kind Kind               `msgpack:"kind"`
	Data msgpack.RawMessage `msgpack:"data"`
}

// Pack serializes an operation into its envelope bytes.
func Pack(o Operation) ([]byte, error) {
	data, err := msgpack.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", o.Kind(), err)
	}
	return msgpack.Marshal(Envelope{Kind: o.Kind(), Data: data})
}

// Unpack deserializes envelope bytes back into a concrete operation.
// Every persistent operation round-trips through Pack/Unpack with no field
// loss.
func Unpack(data []byte) (Operation, error) {
	var env Envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unpack envelope: %w", err)
	}
	return decode(env.Kind, env.Data)
}

func decode(kind Kind, data []byte) (Operation, error) {
	switch kind {
	case KindCreateShape:
		var o CreateShape
		if err := msgpack.Unmarshal(data, &o); err != nil {
			return nil, err
		}
		return o, nil
	case KindMoveShape:
		var o MoveShape
		if err := msgpack.Unmarshal(data, &o); err != nil {
			return nil, err
		}
		return o, nil
	case KindResizeShape:
		var o ResizeShape
		if err := msgpack.Unmarshal(data, &o); err != nil {
			return nil, err
		}
		return o, nil
	case KindSetShapeText:
		var o SetShapeText
		if err := msgpack.Unmarshal(data, &o); err != nil {
			return nil, err
		}
		return o, nil
	case KindDeleteShape:
		var o DeleteShape
		if err := msgpack.Unmarshal(data, &o); err != nil {
			return nil, err
		}
		return o, nil
	case KindCreateConnector:
		var o CreateConnector
		if err := msgpack.Unmarshal(data, &o); err != nil {
			return nil, err
		}
		return o, nil
	case KindRerouteConnector:
		var o RerouteConnector
		if err := msgpack.Unmarshal(data, &o); err != nil {
			return nil, err
		}
		return o, nil
	case KindDeleteConnector:
		var o DeleteConnector
		if err := msgpack.Unmarshal(data, &o); err != nil {
			return nil, err
		}
		return o, nil
	case KindConnectPreview:
		var o ConnectPreview
		if err := msgpack.Unmarshal(data, &o); err != nil {
			return nil, err
		}
		return o, nil
	case KindNodeDrag:
		var o NodeDrag
		if err := msgpack.Unmarshal(data, &o); err != nil {
			return nil, err
		}
		return o, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}
