// ABOUTME: Dedup distribution engine deciding which mints a recipient has not seen.
// ABOUTME: Stable filtering against the sent-mint set plus a reservoir sampler.

package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/fabriguespe/trendingmints-bot/internal/airstack"
	"github.com/fabriguespe/trendingmints-bot/internal/subscriber"
)

// Engine filters candidate mints against a recipient's delivery history and
// records what was actually sent. It never mutates the mints themselves.
type Engine struct {
	store  subscriber.Store
	logger *slog.Logger
}

// New creates a delivery engine over the given subscriber store.
func New(store subscriber.Store) *Engine {
	return &Engine{
		store:  store,
		logger: slog.Default().With("component", "delivery"),
	}
}

// SelectUndelivered returns the mints whose address is not in the recipient's
// sent history, preserving input order. Mints without an address are dropped
// first; they are malformed upstream rows and can't be deduplicated or linked.
// A recipient with no history is eligible for everything.
func (e *Engine) SelectUndelivered(ctx context.Context, mints []airstack.TrendingMint, recipient string) ([]airstack.TrendingMint, error) {
	sent, err := e.store.SentMints(ctx, recipient)
	if err != nil {
		return nil, fmt.Errorf("loading sent history: %w", err)
	}
	return Filter(mints, sent), nil
}

// RecordDelivered unions the addresses of the given mints into the
// recipient's sent history. Safe to call twice with the same mints.
func (e *Engine) RecordDelivered(ctx context.Context, mints []airstack.TrendingMint, recipient string) error {
	addrs := Addresses(mints)
	if len(addrs) == 0 {
		return nil
	}
	if err := e.store.AddSentMints(ctx, recipient, addrs); err != nil {
		return fmt.Errorf("recording delivery: %w", err)
	}
	e.logger.Debug("recorded delivery", "recipient", recipient, "count", len(addrs))
	return nil
}

// Filter is the pure selection rule behind SelectUndelivered.
func Filter(mints []airstack.TrendingMint, sent map[string]struct{}) []airstack.TrendingMint {
	eligible := make([]airstack.TrendingMint, 0, len(mints))
	for _, mint := range mints {
		if mint.Address == "" {
			continue
		}
		if _, seen := sent[mint.Address]; seen {
			continue
		}
		eligible = append(eligible, mint)
	}
	return eligible
}

// Addresses extracts the non-empty addresses of mints, in order.
func Addresses(mints []airstack.TrendingMint) []string {
	addrs := make([]string, 0, len(mints))
	for _, mint := range mints {
		if mint.Address != "" {
			addrs = append(addrs, mint.Address)
		}
	}
	return addrs
}

// Sample picks up to k mints uniformly at random using reservoir sampling.
// A nil rng selects a fresh source; tests inject a seeded one.
func Sample(mints []airstack.TrendingMint, k int, rng *rand.Rand) []airstack.TrendingMint {
	if k <= 0 {
		return nil
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	sample := make([]airstack.TrendingMint, 0, k)
	for i, mint := range mints {
		if i < k {
			sample = append(sample, mint)
			continue
		}
		if j := rng.IntN(i + 1); j < k {
			sample[j] = mint
		}
	}
	return sample
}
