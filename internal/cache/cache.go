// Package cache holds conversation state between turns.
package cache

import (
	"time"
)

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// SessionKey generates a cache key from a session id
func SessionKey(sessionID string) string {
	return "triage:v1:session:" + sessionID
}
