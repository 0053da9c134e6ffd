// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sandbox

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/taibuivan/evently/internal/channel"
	"github.com/taibuivan/evently/internal/platform/constants"
	"github.com/taibuivan/evently/internal/platform/sec"
	"github.com/taibuivan/evently/internal/platform/validate"
	"github.com/taibuivan/evently/pkg/slice"
)

// sendBufferSize is the number of frames queued per client before it is dropped.
const sendBufferSize = 256

// # Thread Log

// entry is a retained message and the users allowed to see it.
type entry struct {
	message  channel.Message
	audience map[string]struct{} // empty means everyone
}

func (e entry) visibleTo(userID string) bool {
	if len(e.audience) == 0 {
		return true
	}
	_, ok := e.audience[userID]
	return ok
}

// threadLog numbers the messages of one thread and keeps the newest of them.
type threadLog struct {
	seq     uint64
	entries []entry
}

// from returns the retained entries with seq >= start, and the oldest retained seq.
func (l *threadLog) from(start uint64) ([]entry, uint64) {
	if len(l.entries) == 0 {
		return nil, 0
	}
	oldest := l.entries[0].message.Seq
	if start < oldest {
		start = oldest
	}
	index := int(start - oldest)
	if index >= len(l.entries) {
		return nil, oldest
	}
	return l.entries[index:], oldest
}

// # Hub

// Authenticator resolves the token of an auth frame.
type Authenticator interface {
	Authenticate(accessToken string) (*sec.AuthClaims, error)
}

/*
Hub is the sandbox realtime channel server.

It numbers messages per thread, fans them out to the connected users in their
audience, and answers replay requests from a bounded per-thread log. Requests
reaching behind the retained window get a replay_unavailable frame naming the
oldest retained seq before the retained messages are sent.
*/
type Hub struct {
	auth      Authenticator
	retention int
	logger    *slog.Logger
	upgrader  websocket.Upgrader
	now       func() time.Time

	mu      sync.Mutex
	threads map[string]*threadLog
	clients map[*hubClient]struct{}
}

// NewHub creates a hub retaining up to retention messages per thread.
func NewHub(auth Authenticator, retention int, logger *slog.Logger) *Hub {
	if retention < 1 {
		retention = 1
	}
	return &Hub{
		auth:      auth,
		retention: retention,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The sandbox accepts any origin; it is a development tool.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		now:     time.Now,
		threads: make(map[string]*threadLog),
		clients: make(map[*hubClient]struct{}),
	}
}

// PublishInput describes a message to fan out.
type PublishInput struct {
	Topic    string          `json:"topic"`
	ThreadID string          `json:"thread_id"`
	SenderID string          `json:"-"`
	Body     json.RawMessage `json:"body"`

	// Recipients restrict delivery to these user ids plus the sender.
	// Empty broadcasts to every connected user.
	Recipients []string `json:"recipients"`
}

// Publish assigns the next seq of the thread, retains and fans out the message.
func (hub *Hub) Publish(input PublishInput) (channel.Message, error) {
	v := &validate.Validator{}
	v.OneOf("topic", input.Topic, channel.TopicMessages, channel.TopicNotifications).
		Required("thread_id", input.ThreadID).
		MaxLen("thread_id", input.ThreadID, constants.MaxThreadIDLength)
	if err := v.Err(); err != nil {
		return channel.Message{}, err
	}

	var audience map[string]struct{}
	if len(input.Recipients) > 0 {
		audience = make(map[string]struct{}, len(input.Recipients)+1)
		for _, id := range input.Recipients {
			audience[id] = struct{}{}
		}
		if input.SenderID != "" {
			audience[input.SenderID] = struct{}{}
		}
	}

	hub.mu.Lock()
	log, ok := hub.threads[input.ThreadID]
	if !ok {
		log = &threadLog{}
		hub.threads[input.ThreadID] = log
	}
	log.seq++
	stored := entry{
		message: channel.Message{
			Topic:    input.Topic,
			ThreadID: input.ThreadID,
			Seq:      log.seq,
			SenderID: input.SenderID,
			Body:     input.Body,
			SentAt:   hub.now().UTC(),
		},
		audience: audience,
	}
	log.entries = append(log.entries, stored)
	if overflow := len(log.entries) - hub.retention; overflow > 0 {
		log.entries = append([]entry(nil), log.entries[overflow:]...)
	}

	var targets []*hubClient
	for client := range hub.clients {
		if stored.visibleTo(client.userID) {
			targets = append(targets, client)
		}
	}
	hub.mu.Unlock()

	message := stored.message
	for _, client := range targets {
		client.enqueue(channel.Frame{Type: channel.FrameMessage, Message: &message})
	}

	hub.logger.Debug("sandbox_message_published",
		slog.String("thread_id", message.ThreadID),
		slog.Uint64("seq", message.Seq),
		slog.Int("recipients", len(targets)),
	)
	return message, nil
}

// replay answers a replay request of client.
func (hub *Hub) replay(client *hubClient, threadID string, start uint64) {
	if start == 0 {
		start = 1
	}

	hub.mu.Lock()
	log, ok := hub.threads[threadID]
	if !ok {
		hub.mu.Unlock()
		return
	}
	entries, oldest := log.from(start)
	var frames []channel.Frame
	if start < oldest {
		frames = append(frames, channel.Frame{Type: channel.FrameReplayUnavailable, ThreadID: threadID, Seq: oldest})
	}
	visible := slice.Filter(entries, func(retained entry) bool { return retained.visibleTo(client.userID) })
	for _, retained := range visible {
		message := retained.message
		frames = append(frames, channel.Frame{Type: channel.FrameMessage, Message: &message})
	}
	hub.mu.Unlock()

	for _, frame := range frames {
		if !client.enqueue(frame) {
			return
		}
	}
}

// Connected returns the number of authenticated clients.
func (hub *Hub) Connected() int {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	return len(hub.clients)
}

// Acked returns the highest seq userID acknowledged on threadID across its connections.
func (hub *Hub) Acked(userID, threadID string) uint64 {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	var highest uint64
	for client := range hub.clients {
		if client.userID != userID {
			continue
		}
		if seq := client.acked[threadID]; seq > highest {
			highest = seq
		}
	}
	return highest
}

// # Connection Handling

/*
ServeHTTP upgrades the connection and runs the channel handshake.

The first frame must be an auth frame carrying a valid access token. The hub
answers ready, or error before closing.
*/
func (hub *Hub) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	conn, err := hub.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		hub.logger.Warn("sandbox_ws_upgrade_failed", slog.Any("error", err))
		return
	}

	claims, err := hub.handshake(conn)
	if err != nil {
		hub.logger.Info("sandbox_ws_auth_rejected", slog.Any("error", err))
		_ = conn.SetWriteDeadline(time.Now().Add(constants.ChannelWriteTimeout))
		_ = conn.WriteJSON(channel.Frame{Type: channel.FrameError, Error: "unauthorized"})
		_ = conn.Close()
		return
	}

	client := &hubClient{
		hub:    hub,
		conn:   conn,
		userID: claims.UserID,
		send:   make(chan channel.Frame, sendBufferSize),
		done:   make(chan struct{}),
		acked:  make(map[string]uint64),
	}

	// Ready goes first, before any published message can be queued
	client.enqueue(channel.Frame{Type: channel.FrameReady})

	hub.mu.Lock()
	hub.clients[client] = struct{}{}
	hub.mu.Unlock()

	hub.logger.Info("sandbox_ws_client_connected", slog.String("user_id", claims.UserID))

	go client.writePump()
	go client.readPump()
}

func (hub *Hub) handshake(conn *websocket.Conn) (*sec.AuthClaims, error) {
	_ = conn.SetReadDeadline(time.Now().Add(constants.ChannelHandshakeTimeout))

	var frame channel.Frame
	if err := conn.ReadJSON(&frame); err != nil {
		return nil, fmt.Errorf("sandbox_ws_auth_read_failed: %w", err)
	}
	if frame.Type != channel.FrameAuth || frame.Token == "" {
		return nil, fmt.Errorf("sandbox_ws_auth_expected: got %q", frame.Type)
	}
	return hub.auth.Authenticate(frame.Token)
}

func (hub *Hub) remove(client *hubClient) {
	hub.mu.Lock()
	delete(hub.clients, client)
	hub.mu.Unlock()
}

// hubClient is one authenticated channel connection.
type hubClient struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan channel.Frame

	done      chan struct{}
	closeOnce sync.Once

	// acked is guarded by hub.mu.
	acked map[string]uint64
}

// enqueue queues frame without blocking. A client whose buffer is full is
// dropped and enqueue reports false.
func (c *hubClient) enqueue(frame channel.Frame) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		c.hub.logger.Warn("sandbox_ws_slow_client_dropped", slog.String("user_id", c.userID))
		c.close()
		return false
	}
}

func (c *hubClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.hub.remove(c)
	})
}

func (c *hubClient) readPump() {
	defer func() {
		c.close()
		c.hub.logger.Info("sandbox_ws_client_disconnected", slog.String("user_id", c.userID))
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(constants.ChannelPongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(constants.ChannelPongTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(constants.ChannelPongTimeout))

		var frame channel.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}

		switch frame.Type {
		case channel.FrameAck:
			c.hub.mu.Lock()
			if frame.Seq > c.acked[frame.ThreadID] {
				c.acked[frame.ThreadID] = frame.Seq
			}
			c.hub.mu.Unlock()
		case channel.FrameReplay:
			c.hub.replay(c, frame.ThreadID, frame.Seq)
		}
	}
}

func (c *hubClient) writePump() {
	ticker := time.NewTicker(constants.ChannelPingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(constants.ChannelWriteTimeout))
			if err := c.conn.WriteJSON(frame); err != nil {
				c.close()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(constants.ChannelWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}

		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			return
		}
	}
}
