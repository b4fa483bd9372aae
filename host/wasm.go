package host

import (
	"bytes"
	"context"

	"github.com/tetratelabs/wazero/api"
)

// hostModuleName is the import namespace guests link against.
const hostModuleName = "hostguard"

// registerHostFunctions exports every registry handler to the guest
// under the "hostguard" module. All functions share one signature: a
// packed u64 request (ptr<<32 | len) in, a packed u64 JSON response
// out. Denials are JSON error payloads, never traps, so a rejected
// call returns control to the guest.
func (e *Executor) registerHostFunctions(ctx context.Context) error {
	builder := e.runtime.NewHostModuleBuilder(hostModuleName)

	for _, name := range e.registry.Names() {
		localName := name
		builder.NewFunctionBuilder().
			WithFunc(func(ctx context.Context, m api.Module, packed uint64) uint64 {
				ptr := uint32(packed >> 32)
				length := uint32(packed)
				payload, ok := m.Memory().Read(ptr, length)
				if !ok {
					return 0
				}

				resp, err := e.registry.Invoke(ctx, localName, payload)
				if err != nil {
					e.logger.Error("host function failed",
						"plugin", e.pluginID,
						"function", localName,
						"error", err)
				}
				if len(resp) == 0 {
					return 0
				}

				allocate := m.ExportedFunction("allocate")
				if allocate == nil {
					return 0
				}
				results, err := allocate.Call(ctx, uint64(len(resp)))
				if err != nil || len(results) == 0 {
					return 0
				}
				respPtr := uint32(results[0])
				if !m.Memory().Write(respPtr, resp) {
					return 0
				}
				return (uint64(respPtr) << 32) | uint64(len(resp))
			}).
			Export(name)
	}

	_, err := builder.Instantiate(ctx)
	return err
}

// moduleMemoryMin scans the WASM binary for the memory section and
// returns the declared minimum page count of the first memory. A
// module that fails to parse is left for the runtime to reject, so the
// second return is false on any malformed input.
func moduleMemoryMin(wasm []byte) (uint64, bool) {
	const memorySectionID = 5

	if len(wasm) < 8 || !bytes.Equal(wasm[:4], []byte("\x00asm")) {
		return 0, false
	}
	pos := 8
	for pos < len(wasm) {
		id := wasm[pos]
		pos++
		size, n := uleb128(wasm[pos:])
		if n == 0 || pos+n+int(size) > len(wasm) {
			return 0, false
		}
		pos += n
		if id != memorySectionID {
			pos += int(size)
			continue
		}

		body := wasm[pos : pos+int(size)]
		count, n := uleb128(body)
		if n == 0 || count == 0 {
			return 0, false
		}
		body = body[n:]
		if len(body) < 1 {
			return 0, false
		}
		// Memory type is a limits flag byte, then the uleb-encoded
		// minimum page count.
		body = body[1:]
		minVal, n := uleb128(body)
		if n == 0 {
			return 0, false
		}
		return minVal, true
	}
	return 0, false
}

func uleb128(b []byte) (uint64, int) {
	var result uint64
	var shift uint
	for i, c := range b {
		result |= uint64(c&0x7f) << shift
		if c&0x80 == 0 {
			return result, i + 1
		}
		shift += 7
		if shift > 63 {
			return 0, 0
		}
	}
	return 0, 0
}
