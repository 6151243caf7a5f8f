package server

import (
	"context"
	"encoding/json"
	"time"

	"batchrpc/internal/batch"
	"batchrpc/internal/jsonrpc"
)

// maxSleep bounds the sleep method
const maxSleep = time.Minute

type sleepParams struct {
	Ms int64 `json:"ms"`
}

// RegisterBuiltins adds the built-in methods to d
func RegisterBuiltins(d *Dispatcher) {
	d.Register("ping", ping)
	d.Register("echo", echo, Cacheable())
	d.Register("sleep", sleep)
	d.Register("batch/context", batchContext)
}

func ping(context.Context, json.RawMessage) (interface{}, error) {
	return "pong", nil
}

func echo(_ context.Context, params json.RawMessage) (interface{}, error) {
	if len(params) == 0 {
		return nil, nil
	}
	return params, nil
}

// sleep waits for params.ms milliseconds and returns the time slept
func sleep(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p sleepParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	d, err := sleepDuration(p.Ms)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return map[string]int64{"sleptMs": time.Since(start).Milliseconds()}, nil
}

func sleepDuration(ms int64) (time.Duration, error) {
	if ms < 0 || ms > maxSleep.Milliseconds() {
		return 0, jsonrpc.ErrInvalidParams.WithData("ms must be between 0 and 60000")
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// batchContext returns the propagated batch context, or null outside a batch
func batchContext(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	bc, ok := batch.Current(ctx)
	if !ok {
		return nil, nil
	}
	return bc, nil
}

func unmarshalParams(params json.RawMessage, v interface{}) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return jsonrpc.ErrInvalidParams.WithData(err.Error())
	}
	return nil
}
