// ABOUTME: Cache-aside layer over the Airstack trending-mints and NFT-detail queries.
// ABOUTME: Shields the upstream API behind a 1-day list cache and a 30-day detail cache.

package trending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fabriguespe/trendingmints-bot/internal/airstack"
	"github.com/fabriguespe/trendingmints-bot/internal/cache"
)

// ErrUpstreamQuery indicates the Airstack call itself failed. Callers decide
// whether to retry or skip; it must never take the process down.
var ErrUpstreamQuery = errors.New("upstream trending query failed")

// Cache TTLs. The trending list churns hourly but a day-old list is still
// useful; NFT detail barely changes, so it gets a month.
const (
	listTTLSeconds   = 60 * 60 * 24
	detailTTLSeconds = 60 * 60 * 24 * 30
)

// Provider is the upstream data-provider collaborator, satisfied by
// *airstack.Client.
type Provider interface {
	TrendingMints(ctx context.Context, timeFrame airstack.TimeFrame, criteria airstack.Criteria) ([]airstack.TrendingMint, error)
	NFTDetail(ctx context.Context, address string) (*airstack.TokenNft, error)
}

// Service is the cache-aside query layer. Cache reads fail open: a storage
// error is logged and treated as a miss, a storage write error is logged and
// skipped, and only upstream failures surface to the caller.
type Service struct {
	provider Provider
	cache    cache.Store
	logger   *slog.Logger
}

// New creates the trending service.
func New(provider Provider, cacheStore cache.Store) *Service {
	return &Service{
		provider: provider,
		cache:    cacheStore,
		logger:   slog.Default().With("component", "trending"),
	}
}

// TrendingMints returns the trending list for (timeFrame, criteria), served
// from cache when fresh. On a miss it queries Airstack, opportunistically
// populates the per-mint detail cache from the first nested NFT of each row,
// and stores the list for a day. A valid empty result is returned as-is and
// not cached.
func (s *Service) TrendingMints(ctx context.Context, timeFrame airstack.TimeFrame, criteria airstack.Criteria) ([]airstack.TrendingMint, error) {
	key := cache.TrendingKey(string(timeFrame), string(criteria))

	if cached, ok := s.readCached(ctx, key); ok {
		var mints []airstack.TrendingMint
		if err := json.Unmarshal(cached, &mints); err != nil {
			s.logger.Warn("corrupt trending cache entry, refetching", "key", key, "error", err)
		} else {
			s.logger.Debug("serving trending mints from cache", "key", key, "count", len(mints))
			return mints, nil
		}
	}

	mints, err := s.provider.TrendingMints(ctx, timeFrame, criteria)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamQuery, err)
	}

	if len(mints) == 0 {
		s.logger.Info("no trending mints found", "time_frame", timeFrame, "criteria", criteria)
		return []airstack.TrendingMint{}, nil
	}

	s.populateDetailCache(ctx, mints)

	if payload, err := json.Marshal(mints); err != nil {
		s.logger.Error("marshaling trending mints for cache", "error", err)
	} else if err := s.cache.SetEx(ctx, key, listTTLSeconds, payload); err != nil {
		s.logger.Warn("trending cache write skipped", "key", key, "error", err)
	}

	return mints, nil
}

// MintDetail returns the NFT detail for a mint address, cache-aside with the
// 30-day TTL. Returns nil with no error when the upstream has no record.
func (s *Service) MintDetail(ctx context.Context, address string) (*airstack.TokenNft, error) {
	key := cache.MintDetailKey(address)

	if cached, ok := s.readCached(ctx, key); ok {
		var nft airstack.TokenNft
		if err := json.Unmarshal(cached, &nft); err != nil {
			s.logger.Warn("corrupt detail cache entry, refetching", "key", key, "error", err)
		} else {
			return &nft, nil
		}
	}

	nft, err := s.provider.NFTDetail(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamQuery, err)
	}
	if nft == nil {
		s.logger.Info("no NFT detail found", "address", address)
		return nil, nil
	}

	s.writeDetail(ctx, address, nft)
	return nft, nil
}

// readCached fetches a cache entry, downgrading storage failures to a miss.
func (s *Service) readCached(ctx context.Context, key string) ([]byte, bool) {
	b, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("cache read failed, treating as miss", "key", key, "error", err)
		return nil, false
	}
	return b, ok
}

// populateDetailCache stores the first nested NFT record of each mint under
// its detail key. Slots that are already populated are left alone, so a
// detail entry is written at most once per 30 days.
func (s *Service) populateDetailCache(ctx context.Context, mints []airstack.TrendingMint) {
	for _, mint := range mints {
		if mint.Address == "" {
			continue
		}
		if mint.Token == nil || len(mint.Token.TokenNfts) == 0 {
			s.logger.Debug("no nested NFT for mint", "address", mint.Address)
			continue
		}

		if _, ok := s.readCached(ctx, cache.MintDetailKey(mint.Address)); ok {
			continue
		}
		s.writeDetail(ctx, mint.Address, &mint.Token.TokenNfts[0])
	}
}

// writeDetail stores one NFT detail record with the 30-day TTL.
func (s *Service) writeDetail(ctx context.Context, address string, nft *airstack.TokenNft) {
	payload, err := json.Marshal(nft)
	if err != nil {
		s.logger.Error("marshaling NFT detail for cache", "address", address, "error", err)
		return
	}
	if err := s.cache.SetEx(ctx, cache.MintDetailKey(address), detailTTLSeconds, payload); err != nil {
		s.logger.Warn("detail cache write skipped", "address", address, "error", err)
	}
}
