// ABOUTME: Onboarding state machine walking a recipient to a delivery preference.
// ABOUTME: Welcome and prompt, token capture, stop words, and the one-shot taster send.

package onboarding

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/fabriguespe/trendingmints-bot/internal/airstack"
	"github.com/fabriguespe/trendingmints-bot/internal/analytics"
	"github.com/fabriguespe/trendingmints-bot/internal/delivery"
	"github.com/fabriguespe/trendingmints-bot/internal/subscriber"
	"github.com/fabriguespe/trendingmints-bot/internal/transport"
)

// DefaultStopWords unsubscribe a recipient wherever they are in the flow.
var DefaultStopWords = []string{"stop", "unsubscribe", "cancel"}

// DefaultSampleSize is how many mints the one-shot taster send picks.
const DefaultSampleSize = 2

// Sender is the outbound half of the transport the machine needs.
type Sender interface {
	Send(ctx context.Context, conv transport.Conversation, text string) error
}

// TrendingSource supplies the candidate mints for the taster send, satisfied
// by *trending.Service.
type TrendingSource interface {
	TrendingMints(ctx context.Context, timeFrame airstack.TimeFrame, criteria airstack.Criteria) ([]airstack.TrendingMint, error)
}

// Options tune the machine; zero values select the defaults above.
type Options struct {
	StopWords    []string
	SampleSize   int
	FrameBaseURL string

	// Rand seeds the taster-send sampler. Nil picks a fresh source; tests
	// inject a seeded one for determinism.
	Rand *rand.Rand
}

// Machine handles inbound messages and drives recipients through onboarding.
// All sends are conversational replies; a failed send is logged and the flow
// carries on, so the recipient can always just write again.
type Machine struct {
	store    subscriber.Store
	sender   Sender
	trending TrendingSource
	engine   *delivery.Engine
	tracker  analytics.Tracker
	steps    *stepStore
	opts     Options
	logger   *slog.Logger

	randMu sync.Mutex
}

// New creates the onboarding machine.
func New(store subscriber.Store, sender Sender, trendingSvc TrendingSource, engine *delivery.Engine, tracker analytics.Tracker, opts Options) *Machine {
	if len(opts.StopWords) == 0 {
		opts.StopWords = DefaultStopWords
	}
	if opts.SampleSize <= 0 {
		opts.SampleSize = DefaultSampleSize
	}
	if tracker == nil {
		tracker = analytics.Noop{}
	}
	return &Machine{
		store:    store,
		sender:   sender,
		trending: trendingSvc,
		engine:   engine,
		tracker:  tracker,
		steps:    newStepStore(),
		opts:     opts,
		logger:   slog.Default().With("component", "onboarding"),
	}
}

// HandleMessage processes one inbound message. Safe for concurrent use;
// messages from the same recipient are serialized.
func (m *Machine) HandleMessage(ctx context.Context, msg transport.InboundMessage) {
	recipient := msg.Conversation.Recipient
	state := m.steps.acquire(recipient)
	defer m.steps.release(state)

	m.tracker.Track(ctx, analytics.EventMessageReceived, recipient, nil)

	// Stop words win over whatever step the recipient is on
	if m.isStopWord(msg.Content) {
		m.unsubscribe(ctx, msg, state)
		return
	}

	switch state.step {
	case StepNew:
		m.greet(ctx, msg)
		state.step = StepAwaitingPreference
	case StepAwaitingPreference:
		m.capturePreference(ctx, msg, state)
	}
}

// isStopWord reports whether content contains any stop word, case-insensitive.
func (m *Machine) isStopWord(content string) bool {
	lowered := strings.ToLower(content)
	for _, word := range m.opts.StopWords {
		if strings.Contains(lowered, word) {
			return true
		}
	}
	return false
}

// unsubscribe deletes the stored preference and resets the flow.
func (m *Machine) unsubscribe(ctx context.Context, msg transport.InboundMessage, state *recipientState) {
	recipient := msg.Conversation.Recipient

	existed, err := m.store.DeletePreference(ctx, recipient)
	if err != nil {
		m.logger.Error("failed to delete preference", "recipient", recipient, "error", err)
		return
	}

	if existed {
		m.reply(ctx, msg, msgUnsubscribed)
		m.tracker.Track(ctx, analytics.EventUnsubscribed, recipient, nil)
	} else {
		m.reply(ctx, msg, msgNotSubscribed)
	}
	state.step = StepNew
}

// greet sends the welcome (or already-subscribed notice) plus the preference
// prompt.
func (m *Machine) greet(ctx context.Context, msg transport.InboundMessage) {
	recipient := msg.Conversation.Recipient

	pref, err := m.store.Preference(ctx, recipient)
	if err != nil {
		// Fail open: an unreachable store shouldn't hide the welcome
		m.logger.Warn("failed to read preference", "recipient", recipient, "error", err)
		pref = subscriber.PreferenceUnset
	}

	if pref != subscriber.PreferenceUnset {
		m.reply(ctx, msg, msgAlreadySubscribed)
	} else {
		m.reply(ctx, msg, msgWelcome)
	}
	m.reply(ctx, msg, msgPreferencePrompt)
}

// capturePreference handles the reply to the preference prompt.
func (m *Machine) capturePreference(ctx context.Context, msg transport.InboundMessage, state *recipientState) {
	recipient := msg.Conversation.Recipient
	token := subscriber.Preference(strings.TrimSpace(msg.Content))

	switch token {
	case subscriber.PreferenceRightAway:
		// Deliberately not persisted: right-away recipients get the taster
		// send now and opt into scheduled sends separately
		m.reply(ctx, msg, msgConfirmed)
		m.reply(ctx, msg, msgRightAwayTeaser)
		state.step = StepNew

	case subscriber.PreferenceOnceADay:
		if err := m.store.SetPreference(ctx, recipient, token); err != nil {
			m.logger.Error("failed to store preference", "recipient", recipient, "error", err)
			m.reply(ctx, msg, msgInvalidOption)
			return
		}
		m.reply(ctx, msg, msgConfirmed)
		m.reply(ctx, msg, msgOnceADayTeaser)
		m.reply(ctx, msg, msgUnsubscribeHint)
		m.tracker.Track(ctx, analytics.EventSubscribed, recipient, map[string]any{"preference": string(token)})
		state.step = StepNew

	default:
		m.reply(ctx, msg, msgInvalidOption)
		return
	}

	m.sendTaster(ctx, msg)
}

// sendTaster runs the immediate one-shot distribution: a random sample of the
// current trending mints, scoped to this one recipient.
func (m *Machine) sendTaster(ctx context.Context, msg transport.InboundMessage) {
	recipient := msg.Conversation.Recipient

	mints, err := m.trending.TrendingMints(ctx, airstack.TimeFrameOneHour, airstack.CriteriaUniqueWallets)
	if err != nil {
		m.logger.Error("taster fetch failed", "recipient", recipient, "error", err)
		return
	}
	if len(mints) == 0 {
		m.logger.Info("no trending mints for taster send", "recipient", recipient)
		return
	}

	m.randMu.Lock()
	picks := delivery.Sample(delivery.Filter(mints, nil), m.opts.SampleSize, m.opts.Rand)
	m.randMu.Unlock()
	if len(picks) == 0 {
		return
	}

	if err := m.engine.RecordDelivered(ctx, picks, recipient); err != nil {
		m.logger.Warn("failed to record taster delivery", "recipient", recipient, "error", err)
	}

	m.reply(ctx, msg, msgOneShotAnnouncement)
	for _, mint := range picks {
		m.reply(ctx, msg, delivery.DeepLink(m.opts.FrameBaseURL, mint))
	}
}

// reply sends one message back into the conversation, logging failures.
func (m *Machine) reply(ctx context.Context, msg transport.InboundMessage, text string) {
	if err := m.sender.Send(ctx, msg.Conversation, text); err != nil {
		m.logger.Error("failed to send reply",
			"recipient", msg.Conversation.Recipient,
			"error", err,
		)
	}
}
