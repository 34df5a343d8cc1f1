// ABOUTME: Matrix implementation of the Transport interface using mautrix.
// ABOUTME: Syncs inbound messages, auto-joins invites, and enumerates DM conversations.

package transport

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/fabriguespe/trendingmints-bot/internal/dedupe"
)

// How long a sync replay can still produce duplicate events worth suppressing.
const (
	dedupeTTL     = 10 * time.Minute
	dedupeMaxSize = 4096
)

// sendTimeout bounds individual Matrix API calls so a hung send only stalls
// one recipient.
const sendTimeout = 30 * time.Second

// MatrixConfig holds the connection settings for the Matrix transport.
type MatrixConfig struct {
	Homeserver  string
	UserID      string
	AccessToken string
	RecoveryKey string
	DataDir     string
}

// Matrix is the Transport implementation over a Matrix homeserver. Each DM
// room is one conversation; the peer's user ID is the recipient identity.
type Matrix struct {
	client  *mautrix.Client
	config  MatrixConfig
	handler Handler
	seen    *dedupe.Cache
	crypto  *CryptoManager
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewMatrix creates the Matrix transport. Encryption is enabled when the
// config carries a data directory for the crypto store.
func NewMatrix(cfg MatrixConfig) (*Matrix, error) {
	client, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}

	return &Matrix{
		client: client,
		config: cfg,
		seen:   dedupe.New(dedupeTTL, dedupeMaxSize),
		logger: slog.Default().With("component", "matrix"),
	}, nil
}

// OnMessage registers the inbound message handler.
func (m *Matrix) OnMessage(handler Handler) {
	m.handler = handler
}

// Run connects to the homeserver and blocks until ctx is cancelled or the
// sync loop fails.
func (m *Matrix) Run(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)
	defer m.cancel()
	defer m.seen.Close()

	if m.config.DataDir != "" {
		crypto, err := SetupCrypto(m.ctx, m.client, m.config.UserID, m.config.RecoveryKey, m.config.DataDir, m.logger)
		if err != nil {
			return fmt.Errorf("setting up encryption: %w", err)
		}
		m.crypto = crypto
		defer m.crypto.Close()
	}

	syncer, ok := m.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", m.client.Syncer)
	}
	syncer.OnEventType(event.EventMessage, m.handleMessageEvent)
	syncer.OnEventType(event.StateMember, m.handleMemberEvent)

	m.logger.Info("connecting to matrix homeserver",
		"homeserver", m.config.Homeserver,
		"user_id", m.config.UserID,
	)

	syncErr := make(chan error, 1)
	go func() {
		syncErr <- m.client.SyncWithContext(m.ctx)
	}()

	select {
	case <-ctx.Done():
		m.logger.Info("shutting down matrix transport")
		m.cancel()
		return nil
	case err := <-syncErr:
		return fmt.Errorf("matrix sync failed: %w", err)
	}
}

// handleMessageEvent filters and dispatches one inbound message event.
func (m *Matrix) handleMessageEvent(ctx context.Context, evt *event.Event) {
	if evt.Sender == id.UserID(m.config.UserID) {
		return
	}

	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok || content.MsgType != event.MsgText {
		return
	}

	// Sync replays redeliver old events; drop ones already handled
	key := "event:" + evt.ID.String()
	if m.seen.Check(key) {
		m.logger.Debug("duplicate event ignored", "event_id", evt.ID)
		return
	}

	msg := InboundMessage{
		Sender:  evt.Sender.String(),
		Content: content.Body,
		Conversation: Conversation{
			Recipient: evt.Sender.String(),
			Ref:       evt.RoomID.String(),
		},
	}

	m.logger.Info("received message",
		"room", msg.Conversation.Ref,
		"sender", msg.Sender,
	)

	if m.handler == nil {
		return
	}

	// Handle off the sync goroutine; mark only after the handler finishes so
	// a crash mid-handling gets retried on redelivery
	go func() {
		m.handler(m.ctx, msg)
		m.seen.Mark(key)
	}()
}

// handleMemberEvent accepts room invites addressed to the bot.
func (m *Matrix) handleMemberEvent(ctx context.Context, evt *event.Event) {
	if evt.GetStateKey() != m.config.UserID {
		return
	}
	if membership := evt.Content.AsMember().Membership; membership != event.MembershipInvite {
		return
	}

	m.logger.Info("accepting room invite", "room", evt.RoomID, "inviter", evt.Sender)
	if _, err := m.client.JoinRoomByID(ctx, evt.RoomID); err != nil {
		m.logger.Error("failed to join room", "room", evt.RoomID, "error", err)
	}
}

// ListOpenConversations enumerates joined rooms and resolves the DM peer of
// each. Rooms without exactly one other member are skipped; the bot only
// holds one-on-one conversations.
func (m *Matrix) ListOpenConversations(ctx context.Context) ([]Conversation, error) {
	rooms, err := m.client.JoinedRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing joined rooms: %w", err)
	}

	conversations := make([]Conversation, 0, len(rooms.JoinedRooms))
	for _, roomID := range rooms.JoinedRooms {
		members, err := m.client.JoinedMembers(ctx, roomID)
		if err != nil {
			m.logger.Warn("failed to list room members", "room", roomID, "error", err)
			continue
		}

		peer := ""
		others := 0
		for userID := range members.Joined {
			if userID.String() == m.config.UserID {
				continue
			}
			peer = userID.String()
			others++
		}
		if others != 1 {
			continue
		}

		conversations = append(conversations, Conversation{
			Recipient: peer,
			Ref:       roomID.String(),
		})
	}
	return conversations, nil
}

// Send delivers a text message, rendering markdown into a formatted body.
func (m *Matrix) Send(ctx context.Context, conv Conversation, text string) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	content := formatMessage(text)
	if _, err := m.client.SendMessageEvent(ctx, id.RoomID(conv.Ref), event.EventMessage, content); err != nil {
		return fmt.Errorf("sending to %s: %w", conv.Ref, err)
	}
	return nil
}
