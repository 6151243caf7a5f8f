package cache

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_GetSet(t *testing.T) {
	c, err := NewMemoryCache(10, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	_, ok := c.Get("k")
	assert.False(t, ok)

	c.Set("k", json.RawMessage(`{"a":1}`))
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.JSONEq(t, `{"a":1}`, string(v))
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCache_Expires(t *testing.T) {
	c, err := NewMemoryCache(10, 20*time.Millisecond)
	require.NoError(t, err)
	defer c.Close()

	c.Set("k", json.RawMessage(`1`))
	time.Sleep(40 * time.Millisecond)

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, err := NewMemoryCache(2, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	c.Set("a", json.RawMessage(`1`))
	c.Set("b", json.RawMessage(`2`))
	_, _ = c.Get("a")
	c.Set("c", json.RawMessage(`3`))

	_, ok := c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestMemoryCache_InvalidSize(t *testing.T) {
	_, err := NewMemoryCache(0, time.Minute)
	assert.Error(t, err)
}

func TestMemoryCache_CloseIsIdempotent(t *testing.T) {
	c, err := NewMemoryCache(1, time.Minute)
	require.NoError(t, err)
	c.Close()
	c.Close()
}

func TestNoopCache(t *testing.T) {
	c := NewNoopCache()
	c.Set("k", json.RawMessage(`1`))
	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestKey(t *testing.T) {
	tests := []struct {
		name  string
		a, b  string
		equal bool
	}{
		{"key order", `{"a":1,"b":2}`, `{"b":2,"a":1}`, true},
		{"whitespace", `[1, 2]`, `[1,2]`, true},
		{"absent and null", ``, `null`, true},
		{"different values", `{"a":1}`, `{"a":2}`, false},
		{"number and string", `[1]`, `["1"]`, false},
		{"large numbers kept exact", `[12345678901234567890]`, `[12345678901234567891]`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ka := Key("m", json.RawMessage(tt.a))
			kb := Key("m", json.RawMessage(tt.b))
			assert.Equal(t, tt.equal, ka == kb)
		})
	}

	assert.NotEqual(t, Key("a", nil), Key("b", nil))
}
