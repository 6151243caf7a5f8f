package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Key builds the cache key for a method call.
// Params that differ only in object key order or whitespace share a key.
func Key(method string, params json.RawMessage) string {
	hash := sha256.Sum256(normalizeParams(params))
	return method + ":" + hex.EncodeToString(hash[:8])
}

// normalizeParams re-encodes params so equivalent JSON hashes identically
func normalizeParams(params json.RawMessage) []byte {
	if len(bytes.TrimSpace(params)) == 0 {
		return []byte("null")
	}

	dec := json.NewDecoder(bytes.NewReader(params))
	dec.UseNumber()

	var data interface{}
	if err := dec.Decode(&data); err != nil {
		return params
	}

	// encoding/json writes map keys sorted
	result, err := json.Marshal(data)
	if err != nil {
		return params
	}
	return result
}
