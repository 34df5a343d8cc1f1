// ABOUTME: Preference-driven scheduler fanning trending mints out to subscribers.
// ABOUTME: Each tick fetches once, then delivers per recipient with failure isolation.

package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/fabriguespe/trendingmints-bot/internal/airstack"
	"github.com/fabriguespe/trendingmints-bot/internal/analytics"
	"github.com/fabriguespe/trendingmints-bot/internal/delivery"
	"github.com/fabriguespe/trendingmints-bot/internal/subscriber"
	"github.com/fabriguespe/trendingmints-bot/internal/transport"
)

// msgAnnouncement opens every scheduled delivery batch.
const msgAnnouncement = "🚀 New mints are trending! Check them out now."

// MapTimeFrameToPreference resolves which preference a tick's timeframe
// serves. A timeframe outside the table matches nobody; the two-hour frame
// maps to a retired preference no recipient can select anymore, which amounts
// to the same thing.
func MapTimeFrameToPreference(timeFrame airstack.TimeFrame) subscriber.Preference {
	switch timeFrame {
	case airstack.TimeFrameOneHour:
		return subscriber.PreferenceRightAway
	case airstack.TimeFrameTwoHours:
		return subscriber.PreferenceEveryFewHours
	case airstack.TimeFrameOneDay:
		return subscriber.PreferenceOnceADay
	default:
		return subscriber.PreferenceUnset
	}
}

// TrendingSource supplies the candidate mints for a tick, satisfied by
// *trending.Service.
type TrendingSource interface {
	TrendingMints(ctx context.Context, timeFrame airstack.TimeFrame, criteria airstack.Criteria) ([]airstack.TrendingMint, error)
}

// Options tune delivery quantities and the deep-link base.
type Options struct {
	Criteria airstack.Criteria

	// BatchSize is how many mints a recipient gets per tick.
	BatchSize int

	// FirstBatchSize applies to a recipient's first-ever scheduled send.
	FirstBatchSize int

	FrameBaseURL string
}

// Scheduler runs one delivery pass per periodic trigger.
type Scheduler struct {
	trending  TrendingSource
	store     subscriber.Store
	engine    *delivery.Engine
	transport transport.Transport
	tracker   analytics.Tracker
	opts      Options
	logger    *slog.Logger
}

// New creates a scheduler. Zero batch sizes default to 2, matching the
// product's "top 2" framing.
func New(trendingSvc TrendingSource, store subscriber.Store, engine *delivery.Engine, tp transport.Transport, tracker analytics.Tracker, opts Options) *Scheduler {
	if opts.Criteria == "" {
		opts.Criteria = airstack.CriteriaUniqueWallets
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 2
	}
	if opts.FirstBatchSize <= 0 {
		opts.FirstBatchSize = 2
	}
	if tracker == nil {
		tracker = analytics.Noop{}
	}
	return &Scheduler{
		trending:  trendingSvc,
		store:     store,
		engine:    engine,
		transport: tp,
		tracker:   tracker,
		opts:      opts,
		logger:    slog.Default().With("component", "scheduler"),
	}
}

// Tick runs one delivery pass for a timeframe. An upstream failure skips the
// whole tick (the next trigger retries); a single recipient's failure is
// logged and never aborts the others.
func (s *Scheduler) Tick(ctx context.Context, timeFrame airstack.TimeFrame) error {
	runID := uuid.NewString()[:8]
	logger := s.logger.With("run_id", runID, "time_frame", timeFrame)

	mints, err := s.trending.TrendingMints(ctx, timeFrame, s.opts.Criteria)
	if err != nil {
		return fmt.Errorf("tick %s: %w", runID, err)
	}
	if len(mints) == 0 {
		logger.Info("no trending mints, skipping tick")
		return nil
	}

	required := MapTimeFrameToPreference(timeFrame)
	if required == subscriber.PreferenceUnset {
		logger.Info("timeframe matches no preference, skipping tick")
		return nil
	}

	conversations, err := s.transport.ListOpenConversations(ctx)
	if err != nil {
		return fmt.Errorf("tick %s: listing conversations: %w", runID, err)
	}

	var matched, delivered, failed atomic.Int64
	var wg sync.WaitGroup
	for _, conv := range conversations {
		wg.Add(1)
		go func(conv transport.Conversation) {
			defer wg.Done()

			sent, err := s.deliverTo(ctx, conv, mints, required)
			if err != nil {
				failed.Add(1)
				logger.Error("delivery failed", "recipient", conv.Recipient, "error", err)
				return
			}
			if sent >= 0 {
				matched.Add(1)
			}
			if sent > 0 {
				delivered.Add(1)
			}
		}(conv)
	}
	wg.Wait()

	logger.Info("tick complete",
		"mints", len(mints),
		"conversations", len(conversations),
		"matched", matched.Load(),
		"delivered", delivered.Load(),
		"failed", failed.Load(),
	)
	s.tracker.Track(ctx, analytics.EventTickCompleted, "", map[string]any{
		"run_id":     runID,
		"time_frame": string(timeFrame),
		"delivered":  delivered.Load(),
		"failed":     failed.Load(),
	})
	return nil
}

// deliverTo runs the per-recipient half of a tick. Returns the number of
// mints sent, or -1 when the recipient's preference didn't match.
func (s *Scheduler) deliverTo(ctx context.Context, conv transport.Conversation, mints []airstack.TrendingMint, required subscriber.Preference) (int, error) {
	recipient := conv.Recipient

	pref, err := s.store.Preference(ctx, recipient)
	if err != nil {
		return 0, fmt.Errorf("reading preference: %w", err)
	}
	if pref == subscriber.PreferenceUnset || pref != required {
		return -1, nil
	}

	eligible, err := s.engine.SelectUndelivered(ctx, mints, recipient)
	if err != nil {
		return 0, err
	}
	if len(eligible) == 0 {
		s.logger.Debug("nothing new for recipient", "recipient", recipient)
		return 0, nil
	}

	amount := s.batchSizeFor(ctx, recipient)
	if amount > len(eligible) {
		amount = len(eligible)
	}
	batch := eligible[:amount]

	if err := s.transport.Send(ctx, conv, msgAnnouncement); err != nil {
		return 0, fmt.Errorf("sending announcement: %w", err)
	}

	// Record exactly what made it out, even if a mid-batch send fails
	sent := make([]airstack.TrendingMint, 0, len(batch))
	var sendErr error
	for _, mint := range batch {
		if err := s.transport.Send(ctx, conv, delivery.DeepLink(s.opts.FrameBaseURL, mint)); err != nil {
			sendErr = fmt.Errorf("sending mint %s: %w", mint.Address, err)
			break
		}
		sent = append(sent, mint)
	}

	if len(sent) > 0 {
		if err := s.engine.RecordDelivered(ctx, sent, recipient); err != nil {
			s.logger.Error("failed to record delivery", "recipient", recipient, "error", err)
		}
	}
	if sendErr != nil {
		return len(sent), sendErr
	}
	return len(sent), nil
}

// batchSizeFor resolves the delivery quantity and flips the first-send flag.
// Store failures fall back to the regular batch size.
func (s *Scheduler) batchSizeFor(ctx context.Context, recipient string) int {
	done, err := s.store.FirstSendDone(ctx, recipient)
	if err != nil {
		s.logger.Warn("failed to read first-send flag", "recipient", recipient, "error", err)
		return s.opts.BatchSize
	}
	if done {
		return s.opts.BatchSize
	}

	if err := s.store.MarkFirstSend(ctx, recipient); err != nil {
		s.logger.Warn("failed to mark first send", "recipient", recipient, "error", err)
	}
	return s.opts.FirstBatchSize
}
