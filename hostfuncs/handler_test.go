package hostfuncs

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONHandler_RoundTrip(t *testing.T) {
	type req struct {
		Name string `json:"name"`
	}
	type resp struct {
		Greeting string `json:"greeting"`
	}

	h := NewJSONHandler(func(ctx context.Context, r req) resp {
		return resp{Greeting: "hello " + r.Name}
	})

	out, err := h(context.Background(), []byte(`{"name":"world"}`))
	require.NoError(t, err)

	var got resp
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, "hello world", got.Greeting)
}

func TestNewJSONHandler_MalformedRequest(t *testing.T) {
	h := NewJSONHandler(func(ctx context.Context, r struct{}) struct{} {
		return struct{}{}
	})

	_, err := h(context.Background(), []byte(`{not json`))
	assert.Error(t, err)
}

func TestHostContext_Values(t *testing.T) {
	hc := NewHostContext(context.Background(), "read_file")

	assert.Equal(t, "read_file", hc.FunctionName())

	_, ok := hc.GetValue("missing")
	assert.False(t, ok)

	hc.SetValue("k", 42)
	v, ok := hc.GetValue("k")
	assert.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestHostContextFrom_ReusesExisting(t *testing.T) {
	hc := NewHostContext(context.Background(), "original")
	again := HostContextFrom(hc, "other")

	assert.Equal(t, "original", again.FunctionName(), "an existing host context is passed through")
}
