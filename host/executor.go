package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/hostguard-dev/hostguard/domain/entities"
	hgerrors "github.com/hostguard-dev/hostguard/domain/errors"
	"github.com/hostguard-dev/hostguard/domain/ports"
	"github.com/hostguard-dev/hostguard/hostfuncs"
	"github.com/hostguard-dev/hostguard/sandbox"
)

// Executor owns one wazero runtime and one guest instance for a single
// plugin. Instances are never shared between plugins; isolation is the
// runtime boundary.
type Executor struct {
	runtime  wazero.Runtime
	module   api.Module
	registry *hostfuncs.HandlerRegistry
	limiter  *ResourceLimiter
	pluginID string
	sink     ports.AuditSink
	logger   *slog.Logger

	// mu serializes guest invocations. The guest's linear memory and
	// allocator are single-threaded; concurrent entry would corrupt
	// both.
	mu sync.Mutex
}

// NewExecutor builds a runtime for the plugin described by the sandbox.
// The sandbox's resource limits become hard runtime configuration:
// the memory ceiling is enforced by wazero itself and the instruction
// budget by a function listener installed on the compilation context.
func NewExecutor(ctx context.Context, sb *sandbox.Sandbox, opts ...Option) (*Executor, error) {
	e := &Executor{
		pluginID: sb.PluginID(),
		limiter:  NewResourceLimiter(sb.Limits()),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.registry == nil {
		guards := hostfuncs.NewGuardSet(sb)
		reg, err := hostfuncs.NewMediatedRegistry(sb, guards, e.sink)
		if err != nil {
			return nil, fmt.Errorf("failed to create mediated registry: %w", err)
		}
		e.registry = reg
	}

	cfg := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(e.limiter.MemoryPages()).
		WithCloseOnContextDone(true)

	rtCtx := experimental.WithFunctionListenerFactory(ctx, e.limiter)
	rt := wazero.NewRuntimeWithConfig(rtCtx, cfg)
	wasi_snapshot_preview1.MustInstantiate(rtCtx, rt)
	e.runtime = rt

	if err := e.registerHostFunctions(rtCtx); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("failed to register host functions: %w", err)
	}

	return e, nil
}

// Load instantiates the plugin's WASM module. Must be called once
// before Invoke. A module whose declared memory minimum already
// exceeds the sandbox ceiling is rejected as memory exhaustion before
// the runtime sees it.
func (e *Executor) Load(ctx context.Context, wasmBytes []byte) error {
	if declared, ok := moduleMemoryMin(wasmBytes); ok && declared > uint64(e.limiter.MemoryPages()) {
		return &hgerrors.ResourceExhaustedError{
			Kind:   hgerrors.ResourceMemory,
			Detail: fmt.Sprintf("module requires %d memory pages, ceiling is %d", declared, e.limiter.MemoryPages()),
		}
	}

	mod, err := e.runtime.Instantiate(ctx, wasmBytes)
	if err != nil {
		if typed := classifyMemoryTrap(err); typed != nil {
			return typed
		}
		return fmt.Errorf("failed to instantiate module: %w", err)
	}
	e.module = mod
	return nil
}

// Close tears down the guest instance and the runtime.
func (e *Executor) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// Registry exposes the host function registry backing this executor.
func (e *Executor) Registry() *hostfuncs.HandlerRegistry {
	return e.registry
}

// Invoke calls an exported guest function with a JSON payload and
// returns the guest's JSON response. Each invocation gets a fresh
// instruction budget and its own wall-clock deadline; exceeding either
// returns a ResourceExhaustedError and leaves the instance closed.
func (e *Executor) Invoke(ctx context.Context, function string, payload []byte) (out []byte, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.module == nil {
		return nil, fmt.Errorf("no module loaded")
	}

	e.limiter.Reset()
	ctx, cancel := context.WithTimeout(ctx, e.limiter.Timeout())
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			if rerr, ok := r.(error); ok && errors.Is(rerr, errBudgetExhausted) {
				err = classifyTrap(ctx, rerr)
			} else {
				panic(r)
			}
		}
		if err != nil {
			e.recordExhaustion(err, function)
		}
	}()

	out, callErr := e.call(ctx, function, payload)
	if callErr != nil {
		return nil, e.mapTrap(ctx, callErr)
	}
	return out, nil
}

// call performs the packed-pointer calling convention: the payload is
// copied into guest memory via the guest's "allocate" export, the
// function receives (ptr, len) and returns a u64 with the response
// pointer in the high half and its length in the low half.
func (e *Executor) call(ctx context.Context, function string, payload []byte) ([]byte, error) {
	f := e.module.ExportedFunction(function)
	if f == nil {
		return nil, fmt.Errorf("export %q not found", function)
	}

	var results []uint64
	var err error
	if len(payload) == 0 {
		results, err = f.Call(ctx)
	} else {
		ptr, allocErr := e.writeGuest(ctx, payload)
		if allocErr != nil {
			return nil, allocErr
		}
		results, err = f.Call(ctx, uint64(ptr), uint64(len(payload)))
	}
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return e.readPacked(results[0])
}

func (e *Executor) writeGuest(ctx context.Context, data []byte) (uint32, error) {
	allocate := e.module.ExportedFunction("allocate")
	if allocate == nil {
		return 0, fmt.Errorf("guest does not export 'allocate'")
	}
	res, err := allocate.Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("failed to allocate in guest: %w", err)
	}
	if len(res) == 0 {
		return 0, fmt.Errorf("allocate returned no results")
	}
	ptr := uint32(res[0])
	if !e.module.Memory().Write(ptr, data) {
		return 0, fmt.Errorf("failed to write payload to guest memory")
	}
	return ptr, nil
}

func (e *Executor) readPacked(packed uint64) ([]byte, error) {
	ptr := uint32(packed >> 32)
	length := uint32(packed)
	if length == 0 {
		return nil, nil
	}
	data, ok := e.module.Memory().Read(ptr, length)
	if !ok {
		return nil, fmt.Errorf("failed to read response from guest memory")
	}
	// Copy out: guest memory may move on the next allocation.
	cp := make([]byte, length)
	copy(cp, data)
	return cp, nil
}

// mapTrap converts wazero trap errors to the typed resource errors.
// The budget panic usually surfaces as a wrapped runtime error rather
// than reaching our recover, so the error text is checked as well.
func (e *Executor) mapTrap(ctx context.Context, err error) error {
	if typed := classifyTrap(ctx, err); typed != nil {
		return typed
	}
	if strings.Contains(err.Error(), errBudgetExhausted.Error()) {
		return &hgerrors.ResourceExhaustedError{Kind: hgerrors.ResourceFuel, Detail: "instruction budget spent"}
	}
	return fmt.Errorf("guest invocation failed: %w", err)
}

func (e *Executor) recordExhaustion(err error, function string) {
	var exhausted *hgerrors.ResourceExhaustedError
	if !errors.As(err, &exhausted) {
		return
	}
	e.logger.Warn("plugin terminated",
		"plugin", e.pluginID,
		"function", function,
		"kind", string(exhausted.Kind))
	if e.sink != nil {
		entry := entities.NewAuditEntry(e.pluginID, function)
		entry.Status = entities.AuditExhausted
		entry.Reason = string(exhausted.Kind)
		e.sink.Record(entry)
	}
}
