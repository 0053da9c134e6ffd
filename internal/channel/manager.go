// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package channel maintains the realtime connection of the signed-in session.

The [Manager] owns at most one connection at a time. It reconnects with
exponential backoff, restores per-thread message order, suppresses duplicates
after replays, and reports degraded conditions to watchers as events rather
than errors:

  - EventStateChanged for every state machine transition.
  - EventChannelUnavailable once the retry budget is exhausted.
  - EventPossibleMessageGap when missed messages could not be replayed.

Callbacks run on the connection's reader goroutine, one at a time and outside
the manager's lock, so a callback may call Unsubscribe or Disconnect.
*/
package channel

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/taibuivan/evently/internal/platform/apperr"
	"github.com/taibuivan/evently/internal/platform/constants"
	"github.com/taibuivan/evently/internal/platform/sec"
	"github.com/taibuivan/evently/internal/session"
)

// Config bounds the reconnect policy.
type Config struct {
	// MaxAttempts is the number of consecutive failed dials before giving up.
	MaxAttempts int

	// BaseDelay is the wait after the first failed dial; MaxDelay caps later waits.
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// Multiplier grows the delay after each failure.
	Multiplier float64

	// Jitter randomizes each delay by ±Jitter of its value.
	Jitter float64
}

// DefaultConfig returns the production reconnect policy.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 8,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2,
		Jitter:      0.2,
	}
}

// subscription is a topic handler or an event watcher.
type subscription struct {
	handle  Handle
	topic   string
	handler Handler
	watch   EventHandler
	active  atomic.Bool
}

// Manager is the realtime channel of one session at a time.
type Manager struct {
	dialer  Dialer
	cursors CursorStore
	config  Config
	logger  *slog.Logger

	mu         sync.Mutex
	state      State
	generation uint64 // bumped by Connect and Disconnect; stale goroutines compare it
	userID     string
	token      string
	conn       Conn
	cancel     context.CancelFunc
	seq        *sequencer
	topics     map[string][]*subscription
	watchers   []*subscription
	handles    map[Handle]*subscription
}

// NewManager creates a closed manager. cursors may be nil.
func NewManager(dialer Dialer, cursors CursorStore, config Config, logger *slog.Logger) *Manager {
	defaults := DefaultConfig()
	if config.MaxAttempts < 1 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = defaults.BaseDelay
	}
	if config.MaxDelay < config.BaseDelay {
		config.MaxDelay = config.BaseDelay
	}
	if config.Multiplier < 1 {
		config.Multiplier = defaults.Multiplier
	}
	if config.Jitter < 0 || config.Jitter >= 1 {
		config.Jitter = defaults.Jitter
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		dialer:  dialer,
		cursors: cursors,
		config:  config,
		logger:  logger.With(slog.String("component", "channel")),
		state:   StateClosed,
		seq:     newSequencer(),
		topics:  make(map[string][]*subscription),
		handles: make(map[Handle]*subscription),
	}
}

// # Lifecycle

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect opens the connection for principal in the background.
//
// It is a no-op returning the current state unless the manager is Closed.
// The connection outlives ctx; only Disconnect ends it.
func (m *Manager) Connect(ctx context.Context, principal *sec.Principal) State {
	if !principal.Authenticated() {
		return m.State()
	}

	m.mu.Lock()
	if m.state != StateClosed {
		state := m.state
		m.mu.Unlock()
		return state
	}

	m.generation++
	generation := m.generation
	m.userID = principal.ID
	m.token = principal.AccessToken

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel
	events := m.transitionLocked(StateConnecting)
	m.mu.Unlock()

	m.notify(events...)
	go m.run(runCtx, generation)

	return StateConnecting
}

// Renew replaces the credential used by the next dial.
func (m *Manager) Renew(principal *sec.Principal) {
	if !principal.Authenticated() {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.userID == "" || m.userID == principal.ID {
		m.token = principal.AccessToken
	}
}

// Disconnect closes the connection, clears the dedup state and releases every
// subscription and watcher. It is idempotent and emits no event.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.generation++
	conn, cancel := m.conn, m.cancel
	previous := m.state

	m.conn, m.cancel = nil, nil
	m.state = StateClosed
	m.userID, m.token = "", ""
	m.seq = newSequencer()

	for _, sub := range m.handles {
		sub.active.Store(false)
	}
	m.handles = make(map[Handle]*subscription)
	m.topics = make(map[string][]*subscription)
	m.watchers = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}

	if previous != StateClosed {
		m.logger.Info("channel_disconnected", slog.String("from", previous.String()))
	}
}

// SessionSource publishes session lifecycle events.
type SessionSource interface {
	Subscribe(listener session.Listener) (cancel func())
}

// Follow binds the manager to the session lifecycle: connect on login, renew
// the credential on refresh, disconnect on logout or expiry.
//
// onLogin hooks run before Connect; they are the place to re-attach
// subscriptions released by the previous Disconnect.
func (m *Manager) Follow(ctx context.Context, source SessionSource, onLogin ...func(*sec.Principal)) (cancel func()) {
	return source.Subscribe(func(event session.Event) {
		switch event.Kind {
		case session.EventLoggedIn:
			for _, hook := range onLogin {
				hook(event.Principal)
			}
			m.Connect(ctx, event.Principal)
		case session.EventRefreshed:
			m.Renew(event.Principal)
		case session.EventLoggedOut, session.EventExpired:
			m.Disconnect()
		}
	})
}

// # Subscriptions

// Subscribe registers handler for messages of topic.
func (m *Manager) Subscribe(topic string, handler Handler) Handle {
	sub := &subscription{handle: Handle(uuid.NewString()), topic: topic, handler: handler}
	sub.active.Store(true)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.topics[topic] = append(m.topics[topic], sub)
	m.handles[sub.handle] = sub
	return sub.handle
}

// Watch registers handler for channel events.
func (m *Manager) Watch(handler EventHandler) Handle {
	sub := &subscription{handle: Handle(uuid.NewString()), watch: handler}
	sub.active.Store(true)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchers = append(m.watchers, sub)
	m.handles[sub.handle] = sub
	return sub.handle
}

// Unsubscribe removes a subscription or watcher. It reports whether handle was
// registered and is safe to call from inside a callback.
func (m *Manager) Unsubscribe(handle Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.handles[handle]
	if !ok {
		return false
	}
	delete(m.handles, handle)
	sub.active.Store(false)

	if sub.watch != nil {
		m.watchers = without(m.watchers, sub)
		return true
	}

	remaining := without(m.topics[sub.topic], sub)
	if len(remaining) == 0 {
		delete(m.topics, sub.topic)
	} else {
		m.topics[sub.topic] = remaining
	}
	return true
}

// Cursor returns the last delivered sequence number of threadID.
func (m *Manager) Cursor(threadID string) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seq.last(threadID)
}

// # Connection Loop

// run dials, reads and redials until the generation changes or the retry
// budget is exhausted.
func (m *Manager) run(ctx context.Context, generation uint64) {
	m.seedCursors(ctx, generation)

	policy := m.newBackOff()
	failures := 0

	for {
		token, ok := m.credential(generation)
		if !ok {
			return
		}

		// ── 1. Dial ───────────────────────────────────────────────────────
		conn, err := m.dialer.Dial(ctx, token)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			failures++
			m.logger.Warn("channel_dial_failed",
				slog.Int("attempt", failures),
				slog.Int("max_attempts", m.config.MaxAttempts),
				slog.Any("error", err),
			)
			if failures >= m.config.MaxAttempts {
				m.giveUp(generation, err)
				return
			}

			timer := time.NewTimer(policy.NextBackOff())
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			continue
		}

		// ── 2. Open ───────────────────────────────────────────────────────
		if !m.opened(generation, conn) {
			_ = conn.Close()
			return
		}
		failures = 0
		policy.Reset()

		// ── 3. Read Until Lost ────────────────────────────────────────────
		err = m.readLoop(generation, conn)
		_ = conn.Close()

		if !m.lost(generation, err) {
			return
		}
	}
}

func (m *Manager) newBackOff() *backoff.ExponentialBackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = m.config.BaseDelay
	policy.MaxInterval = m.config.MaxDelay
	policy.Multiplier = m.config.Multiplier
	policy.RandomizationFactor = m.config.Jitter
	policy.Reset()
	return policy
}

// seedCursors loads persisted cursors so the first open replays from them.
func (m *Manager) seedCursors(ctx context.Context, generation uint64) {
	if m.cursors == nil {
		return
	}

	m.mu.Lock()
	userID := m.userID
	m.mu.Unlock()

	loadCtx, cancel := context.WithTimeout(ctx, constants.CursorSaveTimeout)
	defer cancel()

	stored, err := m.cursors.Load(loadCtx, userID)
	if err != nil {
		m.logger.Warn("channel_cursor_load_failed", slog.Any("error", err))
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != generation {
		return
	}
	for threadID, seq := range stored {
		m.seq.seed(threadID, seq)
	}
}

func (m *Manager) credential(generation uint64) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.generation == generation
}

// opened publishes conn and asks for everything missed since each cursor.
func (m *Manager) opened(generation uint64, conn Conn) bool {
	m.mu.Lock()
	if m.generation != generation {
		m.mu.Unlock()
		return false
	}
	events := m.transitionLocked(StateOpen)
	m.conn = conn
	m.seq.reopen()
	positions := m.seq.cursors()
	m.mu.Unlock()

	m.logger.Info("channel_open", slog.Int("threads", len(positions)))
	m.notify(events...)

	for _, position := range positions {
		if err := conn.Write(Frame{Type: FrameReplay, ThreadID: position.threadID, Seq: position.seq + 1}); err != nil {
			// The read loop notices the broken connection and the next open asks again.
			m.logger.Warn("channel_replay_request_failed", slog.String("thread_id", position.threadID), slog.Any("error", err))
			break
		}
	}
	return true
}

// lost moves Open → Reconnecting. It reports false when the loss was caused
// by Disconnect.
func (m *Manager) lost(generation uint64, cause error) bool {
	m.mu.Lock()
	if m.generation != generation {
		m.mu.Unlock()
		return false
	}
	m.conn = nil
	events := m.transitionLocked(StateReconnecting)
	m.mu.Unlock()

	m.logger.Warn("channel_connection_lost", slog.Any("error", cause))
	m.notify(events...)
	return true
}

// giveUp closes the channel for good and reports ChannelUnavailable once.
func (m *Manager) giveUp(generation uint64, cause error) {
	m.mu.Lock()
	if m.generation != generation {
		m.mu.Unlock()
		return
	}
	events := m.transitionLocked(StateClosed)
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	m.logger.Error("channel_unavailable",
		slog.Int("attempts", m.config.MaxAttempts),
		slog.Any("error", cause),
	)

	events = append(events, Event{
		Kind:  EventChannelUnavailable,
		State: StateClosed,
		Err:   apperr.ChannelUnavailable(cause),
	})
	m.notify(events...)
}

func (m *Manager) readLoop(generation uint64, conn Conn) error {
	for {
		frame, err := conn.Read()
		if err != nil {
			return err
		}
		if !m.current(generation) {
			return nil
		}

		switch frame.Type {
		case FrameMessage:
			if frame.Message != nil {
				m.receive(generation, conn, *frame.Message)
			}
		case FrameReplayUnavailable:
			m.skip(generation, conn, frame.ThreadID, frame.Seq)
		case FrameError:
			m.logger.Warn("channel_server_error", slog.String("error", frame.Error))
		}
	}
}

func (m *Manager) current(generation uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation == generation
}

// # Delivery

// receive orders msg and delivers whatever became deliverable.
func (m *Manager) receive(generation uint64, conn Conn, msg Message) {
	m.mu.Lock()
	if m.generation != generation {
		m.mu.Unlock()
		return
	}
	ready, replayFrom := m.seq.accept(msg)
	userID := m.userID
	m.mu.Unlock()

	m.deliver(conn, userID, ready)

	if replayFrom == 0 {
		return
	}
	m.logger.Debug("channel_gap_detected",
		slog.String("thread_id", msg.ThreadID),
		slog.Uint64("replay_from", replayFrom),
		slog.Uint64("received", msg.Seq),
	)
	if err := conn.Write(Frame{Type: FrameReplay, ThreadID: msg.ThreadID, Seq: replayFrom}); err != nil {
		m.logger.Warn("channel_replay_request_failed", slog.String("thread_id", msg.ThreadID), slog.Any("error", err))
		m.skip(generation, conn, msg.ThreadID, 0)
	}
}

// skip gives up on the missing range of threadID and reports it.
func (m *Manager) skip(generation uint64, conn Conn, threadID string, resume uint64) {
	m.mu.Lock()
	if m.generation != generation {
		m.mu.Unlock()
		return
	}
	ready, gaps := m.seq.skipTo(threadID, resume)
	state := m.state
	userID := m.userID
	m.mu.Unlock()

	events := make([]Event, 0, len(gaps))
	for _, missing := range gaps {
		m.logger.Warn("channel_possible_message_gap",
			slog.String("thread_id", missing.threadID),
			slog.Uint64("from_seq", missing.from),
			slog.Uint64("to_seq", missing.to),
		)
		events = append(events, Event{
			Kind:     EventPossibleMessageGap,
			State:    state,
			ThreadID: missing.threadID,
			FromSeq:  missing.from,
			ToSeq:    missing.to,
		})
	}
	m.notify(events...)
	m.deliver(conn, userID, ready)
}

// deliver dispatches msgs in order, acknowledging and persisting each.
func (m *Manager) deliver(conn Conn, userID string, msgs []Message) {
	for _, msg := range msgs {
		m.dispatch(msg)

		if err := conn.Write(Frame{Type: FrameAck, ThreadID: msg.ThreadID, Seq: msg.Seq}); err != nil {
			m.logger.Debug("channel_ack_failed", slog.Any("error", err))
		}
		m.saveCursor(userID, msg)
	}
}

func (m *Manager) saveCursor(userID string, msg Message) {
	if m.cursors == nil || userID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.CursorSaveTimeout)
	defer cancel()

	if err := m.cursors.Save(ctx, userID, msg.ThreadID, msg.Seq); err != nil {
		m.logger.Warn("channel_cursor_save_failed",
			slog.String("thread_id", msg.ThreadID),
			slog.Any("error", err),
		)
	}
}

// dispatch calls the topic's handlers outside the lock.
func (m *Manager) dispatch(msg Message) {
	m.mu.Lock()
	subscribers := append([]*subscription(nil), m.topics[msg.Topic]...)
	m.mu.Unlock()

	for _, sub := range subscribers {
		if sub.active.Load() {
			sub.handler(msg)
		}
	}
}

// notify calls the watchers outside the lock.
func (m *Manager) notify(events ...Event) {
	if len(events) == 0 {
		return
	}

	m.mu.Lock()
	watchers := append([]*subscription(nil), m.watchers...)
	m.mu.Unlock()

	for _, event := range events {
		for _, watcher := range watchers {
			if watcher.active.Load() {
				watcher.watch(event)
			}
		}
	}
}

// transitionLocked moves the state machine and returns the event to publish.
// Illegal moves are logged and ignored. m.mu must be held.
func (m *Manager) transitionLocked(to State) []Event {
	from := m.state
	if !CanTransition(from, to) {
		m.logger.Error("channel_illegal_transition",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
		return nil
	}

	m.state = to
	m.logger.Debug("channel_state_changed",
		slog.String("from", from.String()),
		slog.String("to", to.String()),
	)
	return []Event{{Kind: EventStateChanged, State: to}}
}

func without(subs []*subscription, target *subscription) []*subscription {
	remaining := make([]*subscription, 0, len(subs))
	for _, sub := range subs {
		if sub != target {
			remaining = append(remaining, sub)
		}
	}
	return remaining
}
