package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// hashKey builds a cache key as prefix:sha256(parts). Parts go through
// JSON so mixed types (strings, bools, floats) hash stably; the full
// 64-hex-char digest is kept rather than shortened, since artifact keys
// must never collide across diagrams.
func hashKey(prefix string, parts ...interface{}) string {
	data, _ := json.Marshal(parts)
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%s:%s", prefix, hex.EncodeToString(hash[:]))
}

// Hash returns the sha256 of data as a 64-char hex string. Diagram node
// lists are hashed with this to key their rendered artifacts.
func Hash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
