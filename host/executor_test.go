package host

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostguard-dev/hostguard/domain/entities"
	hgerrors "github.com/hostguard-dev/hostguard/domain/errors"
	"github.com/hostguard-dev/hostguard/internal/testutil"
	"github.com/hostguard-dev/hostguard/sandbox"
)

func testExecutor(t *testing.T) *Executor {
	t.Helper()

	sb, err := sandbox.New(testutil.Manifest())
	require.NoError(t, err)

	e, err := NewExecutor(context.Background(), sb)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close(context.Background()) })
	return e
}

func TestExecutor_InvokeWithoutLoad(t *testing.T) {
	e := testExecutor(t)

	_, err := e.Invoke(context.Background(), "handle", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no module loaded")
}

func TestExecutor_LoadAndMissingExport(t *testing.T) {
	e := testExecutor(t)

	require.NoError(t, e.Load(context.Background(), testutil.MinimalWASM()))

	_, err := e.Invoke(context.Background(), "handle", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `export "handle" not found`)
}

func TestExecutor_LoadRejectsGarbage(t *testing.T) {
	e := testExecutor(t)
	assert.Error(t, e.Load(context.Background(), []byte("not wasm")))
}

func TestExecutor_LoadRejectsMemoryOverCeiling(t *testing.T) {
	e := testExecutor(t)

	// Memory section declaring min=257 pages; the default sandbox
	// ceiling is 16 MiB, 256 pages.
	wasm := append(testutil.MinimalWASM(), 0x05, 0x04, 0x01, 0x00, 0x81, 0x02)

	err := e.Load(context.Background(), wasm)
	var exhausted *hgerrors.ResourceExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, hgerrors.ResourceMemory, exhausted.Kind)
}

func TestModuleMemoryMin(t *testing.T) {
	// Module with a memory section declaring min=3: magic, version,
	// section id 5, size 3, count 1, flags 0, min 3.
	wasm := append(testutil.MinimalWASM(), 0x05, 0x03, 0x01, 0x00, 0x03)

	minVal, ok := moduleMemoryMin(wasm)
	require.True(t, ok)
	assert.Equal(t, uint64(3), minVal)

	_, ok = moduleMemoryMin(testutil.MinimalWASM())
	assert.False(t, ok, "no memory section")

	_, ok = moduleMemoryMin([]byte("junk"))
	assert.False(t, ok, "not a wasm binary")
}

func TestExecutor_DefaultRegistryMediated(t *testing.T) {
	e := testExecutor(t)

	names := e.Registry().Names()
	assert.Contains(t, names, "network_request")
	assert.Contains(t, names, "read_file")
	assert.Contains(t, names, "write_file")
	assert.Contains(t, names, "get_env")
	assert.Contains(t, names, "log_message")
}

func TestExecutor_MapTrap(t *testing.T) {
	e := testExecutor(t)

	typed := e.mapTrap(context.Background(), errors.New("wasm error: instruction budget exhausted"))
	var exhausted *hgerrors.ResourceExhaustedError
	require.ErrorAs(t, typed, &exhausted)
	assert.Equal(t, hgerrors.ResourceFuel, exhausted.Kind)

	plain := e.mapTrap(context.Background(), errors.New("unreachable"))
	assert.NotErrorAs(t, plain, &exhausted)
	assert.Contains(t, plain.Error(), "guest invocation failed")
}

func TestExecutor_RecordsExhaustion(t *testing.T) {
	sb, err := sandbox.New(testutil.Manifest())
	require.NoError(t, err)

	sink := &testutil.MemorySink{}
	e, err := NewExecutor(context.Background(), sb, WithAuditSink(sink))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close(context.Background()) })

	e.recordExhaustion(&hgerrors.ResourceExhaustedError{Kind: hgerrors.ResourceTimeout}, "handle")

	entry := sink.Last(t)
	assert.Equal(t, entities.AuditExhausted, entry.Status)
	assert.Equal(t, "timeout", entry.Reason)
	assert.Equal(t, "handle", entry.Function)
	assert.Equal(t, "test-plugin", entry.PluginID)
}
