// ABOUTME: Redis implementation of the subscriber Store.
// ABOUTME: Uses redis sets for sent-mint history so unions are atomic server-side.

package subscriber

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Redis key prefixes, matching one key per recipient per concern.
const (
	prefKeyPrefix      = "pref:"
	sentKeyPrefix      = "sent:"
	firstSendKeyPrefix = "first-send:"
)

// RedisStore implements Store on a Redis server.
type RedisStore struct {
	rdb          *redis.Client
	historyLimit int
	logger       *slog.Logger
}

// NewRedisStore wraps an existing client. historyLimit <= 0 selects
// DefaultHistoryLimit.
func NewRedisStore(rdb *redis.Client, historyLimit int) *RedisStore {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &RedisStore{
		rdb:          rdb,
		historyLimit: historyLimit,
		logger:       slog.Default().With("component", "subscriber-store"),
	}
}

// Preference returns the stored preference token, PreferenceUnset when none.
func (s *RedisStore) Preference(ctx context.Context, recipient string) (Preference, error) {
	val, err := s.rdb.Get(ctx, prefKeyPrefix+recipient).Result()
	if errors.Is(err, redis.Nil) {
		return PreferenceUnset, nil
	}
	if err != nil {
		return PreferenceUnset, fmt.Errorf("reading preference for %s: %w", recipient, err)
	}
	return Preference(val), nil
}

// SetPreference stores the preference without expiry.
func (s *RedisStore) SetPreference(ctx context.Context, recipient string, pref Preference) error {
	if err := s.rdb.Set(ctx, prefKeyPrefix+recipient, string(pref), 0).Err(); err != nil {
		return fmt.Errorf("storing preference for %s: %w", recipient, err)
	}
	return nil
}

// DeletePreference removes the preference, reporting whether one existed.
func (s *RedisStore) DeletePreference(ctx context.Context, recipient string) (bool, error) {
	n, err := s.rdb.Del(ctx, prefKeyPrefix+recipient).Result()
	if err != nil {
		return false, fmt.Errorf("deleting preference for %s: %w", recipient, err)
	}
	return n > 0, nil
}

// SentMints returns the delivered-address set for a recipient.
func (s *RedisStore) SentMints(ctx context.Context, recipient string) (map[string]struct{}, error) {
	members, err := s.rdb.SMembers(ctx, sentKeyPrefix+recipient).Result()
	if err != nil {
		return nil, fmt.Errorf("reading sent mints for %s: %w", recipient, err)
	}
	sent := make(map[string]struct{}, len(members))
	for _, m := range members {
		sent[m] = struct{}{}
	}
	return sent, nil
}

// AddSentMints unions addresses into the recipient's sent set via SADD, then
// trims the set back to the history limit. SADD is atomic, so concurrent
// ticks cannot lose each other's additions; the trim evicts arbitrary
// members, which is acceptable because the set exists only to suppress
// re-sends of recent mints.
func (s *RedisStore) AddSentMints(ctx context.Context, recipient string, addresses []string) error {
	if len(addresses) == 0 {
		return nil
	}

	key := sentKeyPrefix + recipient
	members := make([]interface{}, len(addresses))
	for i, a := range addresses {
		members[i] = a
	}
	if err := s.rdb.SAdd(ctx, key, members...).Err(); err != nil {
		return fmt.Errorf("recording sent mints for %s: %w", recipient, err)
	}

	size, err := s.rdb.SCard(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("sizing sent set for %s: %w", recipient, err)
	}
	if surplus := size - int64(s.historyLimit); surplus > 0 {
		if err := s.rdb.SPopN(ctx, key, surplus).Err(); err != nil {
			return fmt.Errorf("trimming sent set for %s: %w", recipient, err)
		}
		s.logger.Debug("trimmed sent-mint history", "recipient", recipient, "evicted", surplus)
	}
	return nil
}

// FirstSendDone reports whether the first-send flag is set.
func (s *RedisStore) FirstSendDone(ctx context.Context, recipient string) (bool, error) {
	n, err := s.rdb.Exists(ctx, firstSendKeyPrefix+recipient).Result()
	if err != nil {
		return false, fmt.Errorf("reading first-send flag for %s: %w", recipient, err)
	}
	return n > 0, nil
}

// MarkFirstSend sets the first-send flag.
func (s *RedisStore) MarkFirstSend(ctx context.Context, recipient string) error {
	if err := s.rdb.Set(ctx, firstSendKeyPrefix+recipient, "true", 0).Err(); err != nil {
		return fmt.Errorf("setting first-send flag for %s: %w", recipient, err)
	}
	return nil
}

// Close is a no-op; the shared client is owned by the caller.
func (s *RedisStore) Close() error {
	return nil
}
