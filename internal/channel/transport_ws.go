// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/taibuivan/evently/internal/platform/constants"
)

// ErrAuthRejected is returned by a dial whose credential the server refused.
var ErrAuthRejected = errors.New("channel: credential rejected")

// WSDialer connects to the channel server over WebSocket.
type WSDialer struct {
	url    string
	dialer *websocket.Dialer
}

// NewWSDialer creates a dialer for a ws:// or wss:// URL.
func NewWSDialer(url string) *WSDialer {
	return &WSDialer{
		url: url,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: constants.ChannelHandshakeTimeout,
		},
	}
}

// Dial implements [Dialer]. The auth frame is the first frame on the wire and
// the server must answer "ready" before the connection is handed out.
func (d *WSDialer) Dial(ctx context.Context, token string) (Conn, error) {
	conn, response, err := d.dialer.DialContext(ctx, d.url, nil)
	if err != nil {
		if response != nil && response.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: handshake status %d", ErrAuthRejected, response.StatusCode)
		}
		return nil, fmt.Errorf("channel_dial_failed: %w", err)
	}

	// The first frame must be auth; the server answers ready or error.
	_ = conn.SetWriteDeadline(time.Now().Add(constants.ChannelWriteTimeout))
	if err := conn.WriteJSON(Frame{Type: FrameAuth, Token: token}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel_auth_write_failed: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(constants.ChannelHandshakeTimeout))
	var reply Frame
	if err := conn.ReadJSON(&reply); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel_auth_read_failed: %w", err)
	}

	switch reply.Type {
	case FrameReady:
		return newWSConn(conn), nil
	case FrameError:
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrAuthRejected, reply.Error)
	default:
		_ = conn.Close()
		return nil, fmt.Errorf("channel_auth_unexpected_frame: %q", reply.Type)
	}
}

// wsConn adapts a gorilla connection to [Conn] and keeps it alive with pings.
type wsConn struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex // serialises all conn writes (frames, pings, close)
	stop      chan struct{}
	closeOnce sync.Once
}

func newWSConn(conn *websocket.Conn) *wsConn {
	c := &wsConn{conn: conn, stop: make(chan struct{})}

	_ = conn.SetReadDeadline(time.Now().Add(constants.ChannelPongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(constants.ChannelPongTimeout))
	})

	go c.pingLoop()
	return c
}

// Read returns the next well-formed frame. Malformed frames are skipped.
func (c *wsConn) Read() (Frame, error) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return Frame{}, err
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(constants.ChannelPongTimeout))

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		return frame, nil
	}
}

func (c *wsConn) Write(frame Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(constants.ChannelWriteTimeout))
	return c.conn.WriteJSON(frame)
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.stop)

		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()

		err = c.conn.Close()
	})
	return err
}

// pingLoop sends periodic pings until the connection is closed.
func (c *wsConn) pingLoop() {
	ticker := time.NewTicker(constants.ChannelPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(constants.ChannelWriteTimeout))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
