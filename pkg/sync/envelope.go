package sync

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/lucasbiancogs/framing-session-sub000/pkg/op"
)

// Envelope is the broadcast wire message: the packed operation plus
// originating node and an HLC stamp. The stamp orders log lines and clock
// catch-up only; applying stays receipt-order.
type Envelope struct {
	NodeID    string `msgpack:"node_id"`
	Timestamp int64  `msgpack:"timestamp"`
	Op        []byte `msgpack:"op"`
}

func packEnvelope(nodeID string, ts int64, o op.Operation) ([]byte, error) {
	opBytes, err := op.Pack(o)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(Envelope{NodeID: nodeID, Timestamp: ts, Op: opBytes})
}

func unpackEnvelope(payload []byte) (Envelope, op.Operation, error) {
	var env Envelope
	if err := msgpack.Unmarshal(payload, &env); err != nil {
		return Envelope{}, nil, fmt.Errorf("unpack envelope: %w", err)
	}
	o, err := op.Unpack(env.Op)
	if err != nil {
		return env, nil, err
	}
	return env, o, nil
}
