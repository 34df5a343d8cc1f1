// ABOUTME: Store interface and types for recipient subscription state.
// ABOUTME: Tracks delivery preference, sent-mint history, and the first-send flag.

package subscriber

import "context"

// Preference is a recipient's delivery cadence, stored as the token they
// replied with so the wire protocol and storage agree.
type Preference string

// Preference tokens recognized from recipients.
const (
	// PreferenceUnset means the recipient never completed onboarding.
	PreferenceUnset Preference = ""

	// PreferenceRightAway requests a message as soon as a mint trends.
	PreferenceRightAway Preference = "1"

	// PreferenceOnceADay requests a daily digest.
	PreferenceOnceADay Preference = "2"

	// PreferenceEveryFewHours is retired. The two-hour schedule still maps to
	// it, so that schedule matches nobody; kept so stored legacy values stay
	// readable.
	PreferenceEveryFewHours Preference = "3"
)

// Store persists per-recipient subscription state. The onboarding step is
// deliberately not here: it is process-local and lives in the onboarding
// package.
//
// AddSentMints must be an atomic set union at the storage layer so
// overlapping ticks cannot clobber each other's history.
type Store interface {
	// Preference returns the stored preference, PreferenceUnset when none.
	Preference(ctx context.Context, recipient string) (Preference, error)

	// SetPreference durably stores the preference.
	SetPreference(ctx context.Context, recipient string, pref Preference) error

	// DeletePreference removes the preference. Returns whether one existed.
	DeletePreference(ctx context.Context, recipient string) (bool, error)

	// SentMints returns the set of mint addresses already delivered.
	SentMints(ctx context.Context, recipient string) (map[string]struct{}, error)

	// AddSentMints unions addresses into the sent set. Implementations cap
	// the set at their configured history limit by evicting old entries.
	AddSentMints(ctx context.Context, recipient string, addresses []string) error

	// FirstSendDone reports whether the recipient ever received a scheduled send.
	FirstSendDone(ctx context.Context, recipient string) (bool, error)

	// MarkFirstSend records that the first scheduled send happened.
	MarkFirstSend(ctx context.Context, recipient string) error

	// Close releases any resources held by the store.
	Close() error
}

// DefaultHistoryLimit caps the sent-mint set per recipient. Long-lived
// recipients would otherwise accumulate history forever.
const DefaultHistoryLimit = 512
