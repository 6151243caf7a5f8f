package server

import (
	"math"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batchrpc/internal/jsonrpc"
)

func newBuiltinDispatcher() *Dispatcher {
	d := NewDispatcher(nil, zerolog.Nop())
	RegisterBuiltins(d)
	DefaultTools("batchrpc", "test").Register(d)
	return d
}

func TestBuiltins(t *testing.T) {
	d := newBuiltinDispatcher()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"ping", `{"jsonrpc":"2.0","method":"ping","id":1}`, `"pong"`},
		{"echo params", `{"jsonrpc":"2.0","method":"echo","params":{"x":[1,2]},"id":1}`, `{"x":[1,2]}`},
		{"echo without params", `{"jsonrpc":"2.0","method":"echo","id":1}`, `null`},
		{"batch context outside batch", `{"jsonrpc":"2.0","method":"batch/context","id":1}`, `null`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resps := call(t, d, tt.body)
			require.Len(t, resps, 1)
			require.False(t, resps[0].HasError())
			assert.JSONEq(t, tt.want, string(resps[0].Result))
		})
	}
}

func TestSleep(t *testing.T) {
	d := newBuiltinDispatcher()

	resps := call(t, d, `{"jsonrpc":"2.0","method":"sleep","params":{"ms":20},"id":1}`)
	require.Len(t, resps, 1)
	var result map[string]int64
	require.NoError(t, resps[0].GetResultAs(&result))
	assert.GreaterOrEqual(t, result["sleptMs"], int64(20))

	for _, body := range []string{
		`{"jsonrpc":"2.0","method":"sleep","params":{"ms":-1},"id":1}`,
		`{"jsonrpc":"2.0","method":"sleep","params":{"ms":600000},"id":1}`,
		`{"jsonrpc":"2.0","method":"sleep","params":{"ms":9223372036855},"id":1}`,
		`{"jsonrpc":"2.0","method":"sleep","params":{"ms":"x"},"id":1}`,
	} {
		resps := call(t, d, body)
		require.Len(t, resps, 1)
		require.True(t, resps[0].HasError(), body)
		assert.Equal(t, jsonrpc.CodeInvalidParams, resps[0].Error.Code)
		assert.Equal(t, "Invalid params", resps[0].Error.Message)
		assert.NotEmpty(t, resps[0].Error.Data)
	}
}

func TestSleepDuration(t *testing.T) {
	tests := []struct {
		ms      int64
		want    time.Duration
		wantErr bool
	}{
		{0, 0, false},
		{250, 250 * time.Millisecond, false},
		{60000, time.Minute, false},
		{60001, 0, true},
		{-1, 0, true},
		{9223372036855, 0, true},
		{math.MaxInt64, 0, true},
	}
	for _, tt := range tests {
		d, err := sleepDuration(tt.ms)
		if tt.wantErr {
			assert.Error(t, err, "ms=%d", tt.ms)
			continue
		}
		require.NoError(t, err, "ms=%d", tt.ms)
		assert.Equal(t, tt.want, d)
	}
}

func TestMCP_Initialize(t *testing.T) {
	d := newBuiltinDispatcher()

	resps := call(t, d, `{"jsonrpc":"2.0","method":"initialize","params":{},"id":1}`)
	require.Len(t, resps, 1)

	var result mcp.InitializeResult
	require.NoError(t, resps[0].GetResultAs(&result))
	assert.Equal(t, mcp.LATEST_PROTOCOL_VERSION, result.ProtocolVersion)
	assert.Equal(t, "batchrpc", result.ServerInfo.Name)
	assert.Equal(t, "test", result.ServerInfo.Version)
}

func TestMCP_ToolsList(t *testing.T) {
	d := newBuiltinDispatcher()

	resps := call(t, d, `{"jsonrpc":"2.0","method":"tools/list","id":1}`)
	require.Len(t, resps, 1)

	var result struct {
		Tools []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"tools"`
	}
	require.NoError(t, resps[0].GetResultAs(&result))
	require.Len(t, result.Tools, 2)
	assert.Equal(t, "echo", result.Tools[0].Name)
	assert.Equal(t, "sleep", result.Tools[1].Name)
	assert.NotEmpty(t, result.Tools[0].Description)
}

type toolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	IsError bool `json:"isError"`
}

func TestMCP_ToolsCall(t *testing.T) {
	d := newBuiltinDispatcher()

	tests := []struct {
		name    string
		body    string
		text    string
		isError bool
	}{
		{"echo", `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"echo","arguments":{"message":"hi"}},"id":1}`, "hi", false},
		{"sleep", `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"sleep","arguments":{"ms":5}},"id":1}`, "slept 5ms", false},
		{"bad arguments", `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"echo","arguments":{"message":3}},"id":1}`, "message must be a string", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resps := call(t, d, tt.body)
			require.Len(t, resps, 1)
			require.False(t, resps[0].HasError())

			var result toolResult
			require.NoError(t, resps[0].GetResultAs(&result))
			require.Len(t, result.Content, 1)
			assert.Equal(t, "text", result.Content[0].Type)
			assert.Equal(t, tt.text, result.Content[0].Text)
			assert.Equal(t, tt.isError, result.IsError)
		})
	}
}

func TestMCP_UnknownTool(t *testing.T) {
	d := newBuiltinDispatcher()

	resps := call(t, d, `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"missing"},"id":1}`)
	require.Len(t, resps, 1)
	require.True(t, resps[0].HasError())
	assert.Equal(t, jsonrpc.CodeInvalidParams, resps[0].Error.Code)
	assert.Contains(t, resps[0].Error.Message, "missing")
}
