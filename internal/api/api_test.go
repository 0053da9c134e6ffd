// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/evently/internal/api"
	"github.com/taibuivan/evently/internal/channel"
	"github.com/taibuivan/evently/internal/session"
)

var quiet = slog.New(slog.DiscardHandler)

// # Health

/*
TestReadiness verifies the ready and degraded answers.
*/
func TestReadiness(t *testing.T) {
	tests := []struct {
		name   string
		deps   api.HealthDependencies
		status int
		state  string
	}{
		{
			name: "ready",
			deps: api.HealthDependencies{
				CheckSessionAPI: func(context.Context) error { return nil },
				ChannelState:    func() channel.State { return channel.StateOpen },
			},
			status: http.StatusOK,
			state:  "ready",
		},
		{
			name: "degraded",
			deps: api.HealthDependencies{
				CheckSessionAPI: func(context.Context) error { return nil },
				CheckCache:      func(context.Context) error { return errors.New("redis down") },
			},
			status: http.StatusServiceUnavailable,
			state:  "degraded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, readiness := api.NewHealthHandlers(tt.deps, quiet)

			recorder := httptest.NewRecorder()
			readiness(recorder, httptest.NewRequest(http.MethodGet, "/ready", nil))
			assert.Equal(t, tt.status, recorder.Code)

			var body struct {
				Data map[string]any `json:"data"`
			}
			require.NoError(t, json.NewDecoder(recorder.Body).Decode(&body))
			assert.Equal(t, tt.state, body.Data["status"])
		})
	}
}

// # Live Feed

// fakeFeed hands subscriptions to the test.
type fakeFeed struct {
	mu       sync.Mutex
	next     int
	handlers map[channel.Handle]channel.Handler
	topics   map[channel.Handle]string
	watchers map[channel.Handle]channel.EventHandler
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{
		handlers: make(map[channel.Handle]channel.Handler),
		topics:   make(map[channel.Handle]string),
		watchers: make(map[channel.Handle]channel.EventHandler),
	}
}

func (f *fakeFeed) handle() channel.Handle {
	f.next++
	return channel.Handle(fmt.Sprintf("h-%d", f.next))
}

func (f *fakeFeed) Subscribe(topic string, handler channel.Handler) channel.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	handle := f.handle()
	f.handlers[handle] = handler
	f.topics[handle] = topic
	return handle
}

func (f *fakeFeed) Watch(handler channel.EventHandler) channel.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	handle := f.handle()
	f.watchers[handle] = handler
	return handle
}

func (f *fakeFeed) Unsubscribe(handle channel.Handle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, isHandler := f.handlers[handle]
	_, isWatcher := f.watchers[handle]
	delete(f.handlers, handle)
	delete(f.topics, handle)
	delete(f.watchers, handle)
	return isHandler || isWatcher
}

func (f *fakeFeed) State() channel.State { return channel.StateOpen }

func (f *fakeFeed) active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers) + len(f.watchers)
}

func (f *fakeFeed) publish(msg channel.Message) {
	f.mu.Lock()
	var targets []channel.Handler
	for handle, handler := range f.handlers {
		if f.topics[handle] == msg.Topic {
			targets = append(targets, handler)
		}
	}
	f.mu.Unlock()

	for _, handler := range targets {
		handler(msg)
	}
}

// fakeSessions keeps the live feed's session listener.
type fakeSessions struct {
	mu        sync.Mutex
	listeners []session.Listener
}

func (f *fakeSessions) Subscribe(listener session.Listener) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, listener)
	return func() {}
}

func (f *fakeSessions) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

func (f *fakeSessions) emit(event session.Event) {
	f.mu.Lock()
	listeners := append([]session.Listener(nil), f.listeners...)
	f.mu.Unlock()
	for _, listener := range listeners {
		listener(event)
	}
}

type frame struct {
	Type    string           `json:"type"`
	State   string           `json:"state"`
	Message *channel.Message `json:"message"`
}

func dialLive(t *testing.T, feed *fakeFeed, sessions *fakeSessions) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(api.NewLiveHandler(feed, sessions, nil, quiet))
	t.Cleanup(server.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	var got frame
	require.NoError(t, conn.ReadJSON(&got))
	return got
}

/*
TestLive_StreamsAndReleases verifies streaming and that a departing browser releases its subscriptions.
*/
func TestLive_StreamsAndReleases(t *testing.T) {
	feed := newFakeFeed()
	conn := dialLive(t, feed, &fakeSessions{})

	first := readFrame(t, conn)
	assert.Equal(t, "state", first.Type)
	assert.Equal(t, "open", first.State)
	require.Eventually(t, func() bool { return feed.active() == 3 }, time.Second, 5*time.Millisecond)

	feed.publish(channel.Message{Topic: channel.TopicMessages, ThreadID: "t-1", Seq: 9})
	got := readFrame(t, conn)
	assert.Equal(t, "message", got.Type)
	require.NotNil(t, got.Message)
	assert.Equal(t, uint64(9), got.Message.Seq)

	// Topic actions
	require.NoError(t, conn.WriteJSON(map[string]string{"action": "unsubscribe", "topic": channel.TopicNotifications}))
	require.Eventually(t, func() bool { return feed.active() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return feed.active() == 0 }, time.Second, 5*time.Millisecond)
}

/*
TestLive_SessionEnded verifies that logout notifies the browser and closes the feed.
*/
func TestLive_SessionEnded(t *testing.T) {
	feed := newFakeFeed()
	sessions := &fakeSessions{}
	conn := dialLive(t, feed, sessions)

	readFrame(t, conn)
	require.Eventually(t, func() bool { return feed.active() == 3 && sessions.count() == 1 }, time.Second, 5*time.Millisecond)

	sessions.emit(session.Event{Kind: session.EventLoggedOut})

	assert.Equal(t, "session_ended", readFrame(t, conn).Type)
	require.Eventually(t, func() bool { return feed.active() == 0 }, time.Second, 5*time.Millisecond)

	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
