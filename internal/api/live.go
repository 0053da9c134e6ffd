// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/taibuivan/evently/internal/channel"
	"github.com/taibuivan/evently/internal/platform/constants"
	"github.com/taibuivan/evently/internal/platform/ctxutil"
	"github.com/taibuivan/evently/internal/session"
)

// liveReadLimit caps frames sent by the browser (topic actions only).
const liveReadLimit = 4096

// Feed is the part of the channel manager the live feed consumes.
type Feed interface {
	Subscribe(topic string, handler channel.Handler) channel.Handle
	Watch(handler channel.EventHandler) channel.Handle
	Unsubscribe(handle channel.Handle) bool
	State() channel.State
}

// LiveHandler streams channel messages and channel status to the browser.
//
// # Lifecycle
//
// Each browser connection subscribes to the "messages" and "notifications"
// topics and watches channel events. Everything is released as soon as the
// browser goes away, the session ends, or the browser falls too far behind.
type LiveHandler struct {
	feed     Feed
	sessions channel.SessionSource
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewLiveHandler creates the /live handler. allowOrigin decides cross-origin
// upgrades; same-origin requests are always accepted.
func NewLiveHandler(feed Feed, sessions channel.SessionSource, allowOrigin func(origin string) bool, logger *slog.Logger) *LiveHandler {
	return &LiveHandler{
		feed:     feed,
		sessions: sessions,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(request *http.Request) bool {
				origin := request.Header.Get("Origin")
				if origin == "" || origin == "http://"+request.Host || origin == "https://"+request.Host {
					return true
				}
				return allowOrigin != nil && allowOrigin(origin)
			},
		},
	}
}

// liveFrame is what the browser receives.
type liveFrame struct {
	Type    string           `json:"type"` // state | message | event | session_ended
	State   *channel.State   `json:"state,omitempty"`
	Message *channel.Message `json:"message,omitempty"`
	Event   *channel.Event   `json:"event,omitempty"`
}

// liveAction is what the browser may send.
type liveAction struct {
	Action string `json:"action"` // subscribe | unsubscribe
	Topic  string `json:"topic"`
}

var liveTopics = map[string]bool{
	channel.TopicMessages:      true,
	channel.TopicNotifications: true,
}

// ServeHTTP upgrades the request and starts the pumps. The caller must have
// ensured the request is authenticated.
func (handler *LiveHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	logger := ctxutil.GetLogger(request.Context())

	conn, err := handler.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		// Upgrade already answered the client
		logger.Warn("live_upgrade_failed", slog.Any("error", err))
		return
	}

	client := &liveClient{
		feed:   handler.feed,
		conn:   conn,
		send:   make(chan []byte, constants.LiveSendBuffer),
		done:   make(chan struct{}),
		topics: make(map[string]channel.Handle),
		logger: handler.logger.With(slog.String("request_id", ctxutil.GetRequestID(request.Context()))),
	}

	state := handler.feed.State()
	client.enqueue(liveFrame{Type: "state", State: &state})

	for topic := range liveTopics {
		client.subscribe(topic)
	}
	client.mu.Lock()
	client.watch = handler.feed.Watch(client.onEvent)
	client.mu.Unlock()

	if handler.sessions != nil {
		stop := handler.sessions.Subscribe(client.onSession)
		client.mu.Lock()
		client.stopSession = stop
		client.mu.Unlock()
	}

	client.logger.Debug("live_client_connected")

	go client.writePump()
	go client.readPump()
}

// # Client

type liveClient struct {
	feed   Feed
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	logger *slog.Logger

	closeOnce sync.Once

	mu          sync.Mutex
	topics      map[string]channel.Handle
	watch       channel.Handle
	stopSession func()
}

func (c *liveClient) subscribe(topic string) {
	if !liveTopics[topic] {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.topics[topic]; ok {
		return
	}
	c.topics[topic] = c.feed.Subscribe(topic, c.onMessage)
}

func (c *liveClient) unsubscribe(topic string) {
	c.mu.Lock()
	handle, ok := c.topics[topic]
	delete(c.topics, topic)
	c.mu.Unlock()

	if ok {
		c.feed.Unsubscribe(handle)
	}
}

func (c *liveClient) onMessage(msg channel.Message) {
	c.enqueue(liveFrame{Type: "message", Message: &msg})
}

func (c *liveClient) onEvent(event channel.Event) {
	c.enqueue(liveFrame{Type: "event", Event: &event})
}

// onSession runs inside the session store; closing is handed off so the
// store's listener never waits on the socket.
func (c *liveClient) onSession(event session.Event) {
	if event.Kind != session.EventLoggedOut && event.Kind != session.EventExpired {
		return
	}
	c.enqueue(liveFrame{Type: "session_ended"})
	go c.close("session_ended")
}

// enqueue never blocks: a browser that cannot keep up is disconnected.
func (c *liveClient) enqueue(frame liveFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		c.logger.Error("live_frame_encode_failed", slog.Any("error", err))
		return
	}

	select {
	case <-c.done:
	case c.send <- data:
	default:
		go c.close("slow_consumer")
	}
}

// close releases every subscription and stops the pumps. It is idempotent.
func (c *liveClient) close(reason string) {
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		handles := make([]channel.Handle, 0, len(c.topics)+1)
		for _, handle := range c.topics {
			handles = append(handles, handle)
		}
		if c.watch != "" {
			handles = append(handles, c.watch)
		}
		stopSession := c.stopSession
		c.topics = make(map[string]channel.Handle)
		c.watch, c.stopSession = "", nil
		c.mu.Unlock()

		for _, handle := range handles {
			c.feed.Unsubscribe(handle)
		}
		if stopSession != nil {
			stopSession()
		}

		c.logger.Debug("live_client_closed", slog.String("reason", reason))
	})
}

// readPump handles topic actions and notices the browser leaving.
func (c *liveClient) readPump() {
	defer c.close("browser_left")

	c.conn.SetReadLimit(liveReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(constants.ChannelPongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(constants.ChannelPongTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("live_unexpected_close", slog.Any("error", err))
			}
			return
		}

		var action liveAction
		if err := json.Unmarshal(data, &action); err != nil {
			continue
		}

		switch action.Action {
		case "subscribe":
			c.subscribe(action.Topic)
		case "unsubscribe":
			c.unsubscribe(action.Topic)
		}
	}
}

// writePump is the only writer of the connection.
func (c *liveClient) writePump() {
	ticker := time.NewTicker(constants.ChannelPingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(constants.ChannelWriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close("write_failed")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(constants.ChannelWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close("write_failed")
				return
			}

		case <-c.done:
			c.flush()
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			return
		}
	}
}

// flush writes whatever is still queued, e.g. the session_ended notice.
func (c *liveClient) flush() {
	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(constants.ChannelWriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}
