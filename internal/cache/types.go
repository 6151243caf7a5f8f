package cache

import "encoding/json"

// Cache stores method results keyed by method name and normalized params.
// Implementations must be safe for concurrent use: entries of a parallel
// batch read and write it at the same time.
type Cache interface {
	// Get returns the cached result for key
	Get(key string) (json.RawMessage, bool)

	// Set stores a result under key
	Set(key string, value json.RawMessage)

	// Len returns the number of live entries
	Len() int

	// Close releases any resources held by the cache
	Close()
}
