// ABOUTME: Tests for the scheduler's tick and per-recipient delivery logic.
// ABOUTME: Uses a fake transport and a miniredis-backed subscriber store.

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabriguespe/trendingmints-bot/internal/airstack"
	"github.com/fabriguespe/trendingmints-bot/internal/delivery"
	"github.com/fabriguespe/trendingmints-bot/internal/subscriber"
	"github.com/fabriguespe/trendingmints-bot/internal/transport"
)

type staticTrending struct {
	mints []airstack.TrendingMint
	err   error
	calls int
}

func (s *staticTrending) TrendingMints(ctx context.Context, timeFrame airstack.TimeFrame, criteria airstack.Criteria) ([]airstack.TrendingMint, error) {
	s.calls++
	return s.mints, s.err
}

// fakeTransport records sends per conversation ref and can fail selectively.
type fakeTransport struct {
	mu            sync.Mutex
	conversations []transport.Conversation
	listErr       error
	sent          map[string][]string
	failSendsTo   map[string]bool
}

func newFakeTransport(convs ...transport.Conversation) *fakeTransport {
	return &fakeTransport{
		conversations: convs,
		sent:          make(map[string][]string),
		failSendsTo:   make(map[string]bool),
	}
}

func (f *fakeTransport) ListOpenConversations(ctx context.Context) ([]transport.Conversation, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.conversations, nil
}

func (f *fakeTransport) Send(ctx context.Context, conv transport.Conversation, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSendsTo[conv.Recipient] {
		return errors.New("send rejected")
	}
	f.sent[conv.Recipient] = append(f.sent[conv.Recipient], text)
	return nil
}

func (f *fakeTransport) OnMessage(handler transport.Handler) {}

func (f *fakeTransport) Run(ctx context.Context) error { return nil }

func (f *fakeTransport) sentTo(recipient string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent[recipient]...)
}

func conv(recipient string) transport.Conversation {
	return transport.Conversation{Recipient: recipient, Ref: "!room-" + recipient}
}

func trendingOf(n int) []airstack.TrendingMint {
	mints := make([]airstack.TrendingMint, n)
	for i := range mints {
		mints[i] = airstack.TrendingMint{Address: fmt.Sprintf("0x%03d", i), CriteriaCount: 50 - i}
	}
	return mints
}

func newTestStore(t *testing.T) subscriber.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return subscriber.NewRedisStore(rdb, 0)
}

func countLinks(msgs []string) int {
	var n int
	for _, m := range msgs {
		if strings.Contains(m, "?chain=base&a=") {
			n++
		}
	}
	return n
}

func TestMapTimeFrameToPreference(t *testing.T) {
	assert.Equal(t, subscriber.PreferenceRightAway, MapTimeFrameToPreference(airstack.TimeFrameOneHour))
	assert.Equal(t, subscriber.PreferenceEveryFewHours, MapTimeFrameToPreference(airstack.TimeFrameTwoHours))
	assert.Equal(t, subscriber.PreferenceOnceADay, MapTimeFrameToPreference(airstack.TimeFrameOneDay))
	assert.Equal(t, subscriber.PreferenceUnset, MapTimeFrameToPreference(airstack.TimeFrame("weekly")))
}

func TestTickDeliversToMatchingSubscriber(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.SetPreference(ctx, "@alice:example.org", subscriber.PreferenceOnceADay))
	require.NoError(t, store.MarkFirstSend(ctx, "@alice:example.org"))

	tp := newFakeTransport(conv("@alice:example.org"))
	s := New(&staticTrending{mints: trendingOf(10)}, store, delivery.New(store), tp, nil, Options{})

	require.NoError(t, s.Tick(ctx, airstack.TimeFrameOneDay))

	msgs := tp.sentTo("@alice:example.org")
	require.Len(t, msgs, 3)
	assert.Equal(t, msgAnnouncement, msgs[0])
	assert.Equal(t, 2, countLinks(msgs))

	sent, err := store.SentMints(ctx, "@alice:example.org")
	require.NoError(t, err)
	assert.Len(t, sent, 2)
}

func TestTickSkipsNonMatchingPreference(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.SetPreference(ctx, "@alice:example.org", subscriber.PreferenceOnceADay))

	tp := newFakeTransport(conv("@alice:example.org"), conv("@bob:example.org"))
	s := New(&staticTrending{mints: trendingOf(5)}, store, delivery.New(store), tp, nil, Options{})

	// one_hour tick requires the right-away preference; nobody has it
	require.NoError(t, s.Tick(ctx, airstack.TimeFrameOneHour))

	assert.Empty(t, tp.sentTo("@alice:example.org"))
	assert.Empty(t, tp.sentTo("@bob:example.org"))
}

func TestTickExcludesAlreadyDelivered(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	alice := "@alice:example.org"
	require.NoError(t, store.SetPreference(ctx, alice, subscriber.PreferenceOnceADay))
	require.NoError(t, store.MarkFirstSend(ctx, alice))

	mints := trendingOf(10)
	// Mark 8 of the 10 as already delivered
	already := make([]string, 8)
	for i := range already {
		already[i] = mints[i].Address
	}
	require.NoError(t, store.AddSentMints(ctx, alice, already))

	tp := newFakeTransport(conv(alice))
	s := New(&staticTrending{mints: mints}, store, delivery.New(store), tp, nil, Options{BatchSize: 5})

	require.NoError(t, s.Tick(ctx, airstack.TimeFrameOneDay))

	msgs := tp.sentTo(alice)
	assert.Equal(t, 2, countLinks(msgs), "only the 2 undelivered mints go out")

	sent, err := store.SentMints(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, sent, 10)
}

func TestTickNothingNewSendsNothing(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	alice := "@alice:example.org"
	require.NoError(t, store.SetPreference(ctx, alice, subscriber.PreferenceOnceADay))

	mints := trendingOf(3)
	require.NoError(t, store.AddSentMints(ctx, alice, []string{"0x000", "0x001", "0x002"}))

	tp := newFakeTransport(conv(alice))
	s := New(&staticTrending{mints: mints}, store, delivery.New(store), tp, nil, Options{})

	require.NoError(t, s.Tick(ctx, airstack.TimeFrameOneDay))

	assert.Empty(t, tp.sentTo(alice), "no announcement when nothing is new")
}

func TestTickFirstSendUsesFirstBatchSize(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	alice := "@alice:example.org"
	require.NoError(t, store.SetPreference(ctx, alice, subscriber.PreferenceOnceADay))

	tp := newFakeTransport(conv(alice))
	s := New(&staticTrending{mints: trendingOf(10)}, store, delivery.New(store), tp, nil, Options{
		BatchSize:      2,
		FirstBatchSize: 5,
	})

	require.NoError(t, s.Tick(ctx, airstack.TimeFrameOneDay))
	assert.Equal(t, 5, countLinks(tp.sentTo(alice)))

	// Second tick drops back to the regular batch size
	require.NoError(t, s.Tick(ctx, airstack.TimeFrameOneDay))
	assert.Equal(t, 7, countLinks(tp.sentTo(alice)))
}

func TestTickUpstreamErrorSkipsWholeTick(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.SetPreference(ctx, "@alice:example.org", subscriber.PreferenceOnceADay))

	tp := newFakeTransport(conv("@alice:example.org"))
	upstream := errors.New("airstack down")
	s := New(&staticTrending{err: upstream}, store, delivery.New(store), tp, nil, Options{})

	err := s.Tick(ctx, airstack.TimeFrameOneDay)
	require.Error(t, err)
	assert.ErrorIs(t, err, upstream)
	assert.Empty(t, tp.sentTo("@alice:example.org"))
}

func TestTickEmptyTrendingIsNoop(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.SetPreference(ctx, "@alice:example.org", subscriber.PreferenceOnceADay))

	tp := newFakeTransport(conv("@alice:example.org"))
	s := New(&staticTrending{}, store, delivery.New(store), tp, nil, Options{})

	require.NoError(t, s.Tick(ctx, airstack.TimeFrameOneDay))
	assert.Empty(t, tp.sentTo("@alice:example.org"))
}

func TestTickUnmappedTimeFrameIsNoop(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.SetPreference(ctx, "@alice:example.org", subscriber.PreferenceOnceADay))

	tp := newFakeTransport(conv("@alice:example.org"))
	s := New(&staticTrending{mints: trendingOf(3)}, store, delivery.New(store), tp, nil, Options{})

	require.NoError(t, s.Tick(ctx, airstack.TimeFrame("weekly")))
	assert.Empty(t, tp.sentTo("@alice:example.org"))
}

func TestTickIsolatesRecipientFailures(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	alice, bob := "@alice:example.org", "@bob:example.org"
	require.NoError(t, store.SetPreference(ctx, alice, subscriber.PreferenceOnceADay))
	require.NoError(t, store.SetPreference(ctx, bob, subscriber.PreferenceOnceADay))
	require.NoError(t, store.MarkFirstSend(ctx, alice))
	require.NoError(t, store.MarkFirstSend(ctx, bob))

	tp := newFakeTransport(conv(alice), conv(bob))
	tp.failSendsTo[alice] = true
	s := New(&staticTrending{mints: trendingOf(5)}, store, delivery.New(store), tp, nil, Options{})

	require.NoError(t, s.Tick(ctx, airstack.TimeFrameOneDay), "one recipient failing must not fail the tick")

	assert.Empty(t, tp.sentTo(alice))
	msgs := tp.sentTo(bob)
	require.Len(t, msgs, 3)
	assert.Equal(t, msgAnnouncement, msgs[0])
}

func TestTickRecordsOnlyWhatWentOut(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	alice := "@alice:example.org"
	require.NoError(t, store.SetPreference(ctx, alice, subscriber.PreferenceOnceADay))
	require.NoError(t, store.MarkFirstSend(ctx, alice))

	tp := newFakeTransport(conv(alice))
	tp.failSendsTo[alice] = true
	s := New(&staticTrending{mints: trendingOf(5)}, store, delivery.New(store), tp, nil, Options{})

	require.NoError(t, s.Tick(ctx, airstack.TimeFrameOneDay))

	sent, err := store.SentMints(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, sent, "a failed announcement means nothing was delivered")
}

func TestTickListConversationsError(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tp := newFakeTransport()
	tp.listErr = errors.New("sync not ready")
	s := New(&staticTrending{mints: trendingOf(3)}, store, delivery.New(store), tp, nil, Options{})

	err := s.Tick(ctx, airstack.TimeFrameOneDay)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listing conversations")
}
