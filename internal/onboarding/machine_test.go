// ABOUTME: Tests for the onboarding state machine.
// ABOUTME: Drives the full greet, preference-capture, taster, and stop-word paths.

package onboarding

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
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

type recordingSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (s *recordingSender) Send(ctx context.Context, conv transport.Conversation, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, text)
	return nil
}

func (s *recordingSender) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

type staticTrending struct {
	mints []airstack.TrendingMint
	err   error
}

func (s *staticTrending) TrendingMints(ctx context.Context, timeFrame airstack.TimeFrame, criteria airstack.Criteria) ([]airstack.TrendingMint, error) {
	return s.mints, s.err
}

type fixture struct {
	machine *Machine
	sender  *recordingSender
	store   subscriber.Store
}

func newFixture(t *testing.T, trendingSrc TrendingSource, opts Options) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := subscriber.NewRedisStore(rdb, 0)
	t.Cleanup(func() { rdb.Close() })

	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(1, 1))
	}
	sender := &recordingSender{}
	machine := New(store, sender, trendingSrc, delivery.New(store), nil, opts)
	return &fixture{machine: machine, sender: sender, store: store}
}

func inbound(recipient, content string) transport.InboundMessage {
	return transport.InboundMessage{
		Sender:  recipient,
		Content: content,
		Conversation: transport.Conversation{
			Recipient: recipient,
			Ref:       "!room:" + recipient,
		},
	}
}

func trendingOf(n int) []airstack.TrendingMint {
	mints := make([]airstack.TrendingMint, n)
	for i := range mints {
		mints[i] = airstack.TrendingMint{Address: fmt.Sprintf("0x%03d", i), CriteriaCount: 10 + i}
	}
	return mints
}

func TestFirstMessageGreetsAndPrompts(t *testing.T) {
	f := newFixture(t, &staticTrending{}, Options{})

	f.machine.HandleMessage(context.Background(), inbound("@alice:example.org", "hi"))

	msgs := f.sender.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, msgWelcome, msgs[0])
	assert.Equal(t, msgPreferencePrompt, msgs[1])
}

func TestGreetingForSubscribedRecipient(t *testing.T) {
	f := newFixture(t, &staticTrending{}, Options{})
	ctx := context.Background()
	require.NoError(t, f.store.SetPreference(ctx, "@alice:example.org", subscriber.PreferenceOnceADay))

	f.machine.HandleMessage(ctx, inbound("@alice:example.org", "hello again"))

	msgs := f.sender.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, msgAlreadySubscribed, msgs[0])
	assert.Equal(t, msgPreferencePrompt, msgs[1])
}

func TestOnceADaySubscription(t *testing.T) {
	f := newFixture(t, &staticTrending{mints: trendingOf(5)}, Options{})
	ctx := context.Background()
	alice := "@alice:example.org"

	f.machine.HandleMessage(ctx, inbound(alice, "hi"))
	f.machine.HandleMessage(ctx, inbound(alice, "2"))

	pref, err := f.store.Preference(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, subscriber.PreferenceOnceADay, pref)

	msgs := f.sender.messages()
	// greet(2) + confirmed + teaser + hint + taster announcement + 2 links
	require.Len(t, msgs, 8)
	assert.Equal(t, msgConfirmed, msgs[2])
	assert.Equal(t, msgOnceADayTeaser, msgs[3])
	assert.Equal(t, msgUnsubscribeHint, msgs[4])
	assert.Equal(t, msgOneShotAnnouncement, msgs[5])
	assert.Contains(t, msgs[6], "?chain=base&a=0x")
	assert.Contains(t, msgs[7], "?chain=base&a=0x")

	// The taster picks are recorded as delivered
	sent, err := f.store.SentMints(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, sent, 2)
}

func TestRightAwayNotPersisted(t *testing.T) {
	f := newFixture(t, &staticTrending{mints: trendingOf(5)}, Options{})
	ctx := context.Background()
	alice := "@alice:example.org"

	f.machine.HandleMessage(ctx, inbound(alice, "hi"))
	f.machine.HandleMessage(ctx, inbound(alice, "1"))

	pref, err := f.store.Preference(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, subscriber.PreferenceUnset, pref, "right-away is a one-shot, not a subscription")

	msgs := f.sender.messages()
	require.Len(t, msgs, 7)
	assert.Equal(t, msgConfirmed, msgs[2])
	assert.Equal(t, msgRightAwayTeaser, msgs[3])
	assert.Equal(t, msgOneShotAnnouncement, msgs[4])
}

func TestInvalidOptionStaysOnStep(t *testing.T) {
	f := newFixture(t, &staticTrending{}, Options{})
	ctx := context.Background()
	alice := "@alice:example.org"

	f.machine.HandleMessage(ctx, inbound(alice, "hi"))
	f.machine.HandleMessage(ctx, inbound(alice, "7"))

	msgs := f.sender.messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, msgInvalidOption, msgs[2])

	// Still awaiting a preference: a valid token now completes the flow
	f.machine.HandleMessage(ctx, inbound(alice, "2"))
	pref, err := f.store.Preference(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, subscriber.PreferenceOnceADay, pref)
}

func TestPreferenceTokenIsTrimmed(t *testing.T) {
	f := newFixture(t, &staticTrending{}, Options{})
	ctx := context.Background()
	alice := "@alice:example.org"

	f.machine.HandleMessage(ctx, inbound(alice, "hi"))
	f.machine.HandleMessage(ctx, inbound(alice, "  2  "))

	pref, err := f.store.Preference(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, subscriber.PreferenceOnceADay, pref)
}

func TestStopWordUnsubscribes(t *testing.T) {
	f := newFixture(t, &staticTrending{}, Options{})
	ctx := context.Background()
	alice := "@alice:example.org"
	require.NoError(t, f.store.SetPreference(ctx, alice, subscriber.PreferenceOnceADay))

	f.machine.HandleMessage(ctx, inbound(alice, "STOP"))

	pref, err := f.store.Preference(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, subscriber.PreferenceUnset, pref)

	msgs := f.sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, msgUnsubscribed, msgs[0])
}

func TestStopWordMatchesAsSubstring(t *testing.T) {
	f := newFixture(t, &staticTrending{}, Options{})
	ctx := context.Background()
	alice := "@alice:example.org"
	require.NoError(t, f.store.SetPreference(ctx, alice, subscriber.PreferenceOnceADay))

	f.machine.HandleMessage(ctx, inbound(alice, "please STOP sending me these"))

	msgs := f.sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, msgUnsubscribed, msgs[0])
}

func TestStopWordBeatsPreferenceCapture(t *testing.T) {
	f := newFixture(t, &staticTrending{}, Options{})
	ctx := context.Background()
	alice := "@alice:example.org"

	f.machine.HandleMessage(ctx, inbound(alice, "hi"))
	f.machine.HandleMessage(ctx, inbound(alice, "cancel"))

	msgs := f.sender.messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, msgNotSubscribed, msgs[2])

	// Flow reset to the start
	f.machine.HandleMessage(ctx, inbound(alice, "hi"))
	msgs = f.sender.messages()
	assert.Equal(t, msgWelcome, msgs[3])
}

func TestStopWordWithoutSubscription(t *testing.T) {
	f := newFixture(t, &staticTrending{}, Options{})

	f.machine.HandleMessage(context.Background(), inbound("@alice:example.org", "unsubscribe"))

	msgs := f.sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, msgNotSubscribed, msgs[0])
}

func TestTasterSkippedOnUpstreamError(t *testing.T) {
	f := newFixture(t, &staticTrending{err: errors.New("airstack down")}, Options{})
	ctx := context.Background()
	alice := "@alice:example.org"

	f.machine.HandleMessage(ctx, inbound(alice, "hi"))
	f.machine.HandleMessage(ctx, inbound(alice, "2"))

	// Subscription still recorded, no taster messages
	pref, err := f.store.Preference(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, subscriber.PreferenceOnceADay, pref)

	msgs := f.sender.messages()
	require.Len(t, msgs, 5)
	for _, m := range msgs {
		assert.NotEqual(t, msgOneShotAnnouncement, m)
	}
}

func TestTasterSampleRespectsSize(t *testing.T) {
	f := newFixture(t, &staticTrending{mints: trendingOf(20)}, Options{SampleSize: 3})
	ctx := context.Background()
	alice := "@alice:example.org"

	f.machine.HandleMessage(ctx, inbound(alice, "hi"))
	f.machine.HandleMessage(ctx, inbound(alice, "1"))

	var links int
	for _, m := range f.sender.messages() {
		if strings.Contains(m, "?chain=base&a=") {
			links++
		}
	}
	assert.Equal(t, 3, links)
}

func TestTasterDeterministicWithSeededRand(t *testing.T) {
	run := func() []string {
		f := newFixture(t, &staticTrending{mints: trendingOf(10)}, Options{
			Rand: rand.New(rand.NewPCG(42, 42)),
		})
		ctx := context.Background()
		f.machine.HandleMessage(ctx, inbound("@alice:example.org", "hi"))
		f.machine.HandleMessage(ctx, inbound("@alice:example.org", "1"))
		return f.sender.messages()
	}

	assert.Equal(t, run(), run())
}

func TestCustomStopWords(t *testing.T) {
	f := newFixture(t, &staticTrending{}, Options{StopWords: []string{"basta"}})
	ctx := context.Background()
	alice := "@alice:example.org"

	f.machine.HandleMessage(ctx, inbound(alice, "stop"))
	msgs := f.sender.messages()
	require.Len(t, msgs, 2, "default stop word is inert when custom words are set")
	assert.Equal(t, msgWelcome, msgs[0])

	f.machine.HandleMessage(ctx, inbound(alice, "basta"))
	msgs = f.sender.messages()
	assert.Equal(t, msgNotSubscribed, msgs[len(msgs)-1])
}
