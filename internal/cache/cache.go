package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache stores raw feed responses so repeated runs inside a short window do
// not hammer the upstream APIs.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key derives a cache key from a source name and request URL
func Key(source, url string) string {
	hash := sha256.Sum256([]byte(source + "\x00" + url))
	return "paperboy:v1:" + hex.EncodeToString(hash[:])
}
