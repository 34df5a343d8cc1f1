// ABOUTME: Cache store interface and key builders for the bot's cached data.
// ABOUTME: Values are JSON blobs; a miss is reported as absent, never as an error.

package cache

import (
	"context"
	"fmt"
)

// Store is the key/value cache collaborator. Implementations must report a
// missing key as (nil, false, nil) so callers can fall through to the source
// of truth without inspecting driver-specific sentinel errors.
type Store interface {
	// Get returns the value for key. ok is false when the key is absent or
	// expired.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// SetEx stores value under key with a TTL in seconds. A ttl of zero or
	// less stores the value without expiry.
	SetEx(ctx context.Context, key string, ttlSeconds int, value []byte) error

	// Del removes keys. Returns the number of keys actually deleted.
	Del(ctx context.Context, keys ...string) (int64, error)

	// Close releases the underlying connection.
	Close() error
}

// Key builders live here so key formats don't drift across packages.

// TrendingKey is the cache slot for a trending-mints list, parameterized per
// (timeFrame, criteria) so a refresh under one timeframe cannot mask another
// timeframe's data.
func TrendingKey(timeFrame, criteria string) string {
	return fmt.Sprintf("trending-mints:%s:%s", timeFrame, criteria)
}

// MintDetailKey is the cache slot for a single mint's NFT detail record.
func MintDetailKey(address string) string {
	return "mint-detail:" + address
}
