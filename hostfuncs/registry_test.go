package hostfuncs

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoHandler(ctx context.Context, payload []byte) ([]byte, error) {
	return payload, nil
}

func TestNewRegistry_RejectsDuplicateNames(t *testing.T) {
	_, err := NewRegistry(
		WithHandler("f", echoHandler),
		WithHandler("f", echoHandler),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestNewRegistry_RejectsEmptyName(t *testing.T) {
	_, err := NewRegistry(WithHandler("", echoHandler))
	assert.Error(t, err)
}

func TestRegistry_InvokeDispatchesByName(t *testing.T) {
	reg, err := NewRegistry(WithHandler("echo", echoHandler))
	require.NoError(t, err)

	out, err := reg.Invoke(context.Background(), "echo", []byte(`{"x":1}`))
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"x":1}`), out)
}

func TestRegistry_UnknownNameReturnsStructuredError(t *testing.T) {
	reg, err := NewRegistry(WithHandler("echo", echoHandler))
	require.NoError(t, err)

	out, err := reg.Invoke(context.Background(), "nope", nil)
	require.NoError(t, err, "unknown names must not surface as Go errors")

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(out, &resp))
	assert.Equal(t, "NOT_FOUND", resp.Error)
	assert.Contains(t, resp.Message, "nope")
}

func TestRegistry_NamesSorted(t *testing.T) {
	reg, err := NewRegistry(
		WithHandler("zeta", echoHandler),
		WithHandler("alpha", echoHandler),
		WithHandler("mid", echoHandler),
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, reg.Names())
	assert.True(t, reg.Has("alpha"))
	assert.False(t, reg.Has("omega"))
}

func TestRegistry_MiddlewareWrapsFIFO(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next ByteHandler) ByteHandler {
			return func(ctx context.Context, payload []byte) ([]byte, error) {
				order = append(order, name)
				return next(ctx, payload)
			}
		}
	}

	reg, err := NewRegistry(
		WithMiddleware(tag("outer"), tag("inner")),
		WithHandler("f", echoHandler),
	)
	require.NoError(t, err)

	_, err = reg.Invoke(context.Background(), "f", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, order)
}
