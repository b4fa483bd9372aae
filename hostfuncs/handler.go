package hostfuncs

import (
	"context"
	"encoding/json"
	"fmt"
)

// ByteHandler is a host function in wire form: JSON request bytes in,
// JSON response bytes out. This is the only shape the WASM runtime
// needs to know about.
type ByteHandler func(context.Context, []byte) ([]byte, error)

// HostFunc is a typed host function, wrapped into a ByteHandler by
// NewJSONHandler.
type HostFunc[Req any, Resp any] func(context.Context, Req) Resp

// NewJSONHandler adapts a typed HostFunc to the wire shape, handling
// request unmarshalling and response marshalling.
func NewJSONHandler[Req any, Resp any](fn HostFunc[Req, Resp]) ByteHandler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		var req Req
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("unmarshal request: %w", err)
		}

		resp := fn(ctx, req)

		out, err := json.Marshal(resp)
		if err != nil {
			return nil, fmt.Errorf("marshal response: %w", err)
		}
		return out, nil
	}
}
