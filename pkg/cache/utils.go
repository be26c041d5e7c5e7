package cache

import (
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// GenerateKey creates a cache key with prefix and ID.
func GenerateKey(prefix string, id string) string {
	return fmt.Sprintf("%s:%s", prefix, id)
}

// GenerateKeyWithParams creates a cache key with multiple parameters.
func GenerateKeyWithParams(prefix string, params ...interface{}) string {
	key := prefix
	for _, param := range params {
		key = fmt.Sprintf("%s:%v", key, param)
	}
	return key
}

// HashKey shortens long keys to a stable hex digest.
func HashKey(key string) string {
	return strconv.FormatUint(xxhash.Sum64String(key), 16)
}
