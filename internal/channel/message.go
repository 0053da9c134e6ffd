// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package channel

import (
	"encoding/json"
	"time"
)

// # Topics

const (
	// TopicMessages carries direct messages between attendees and organizers.
	TopicMessages = "messages"

	// TopicNotifications carries ticket and event change notices.
	TopicNotifications = "notifications"
)

// Message is one inbound channel item.
//
// Seq starts at 1 and increases by one per thread; (ThreadID, Seq) identifies
// a message.
type Message struct {
	Topic    string          `json:"topic"`
	ThreadID string          `json:"thread_id"`
	Seq      uint64          `json:"seq"`
	SenderID string          `json:"sender_id,omitempty"`
	Body     json.RawMessage `json:"body,omitempty"`
	SentAt   time.Time       `json:"sent_at"`
}

// # Wire Frames

// FrameType discriminates [Frame] payloads.
type FrameType string

const (
	// Client → server
	FrameAuth   FrameType = "auth"
	FrameAck    FrameType = "ack"
	FrameReplay FrameType = "replay"

	// Server → client
	FrameReady             FrameType = "ready"
	FrameMessage           FrameType = "message"
	FrameReplayUnavailable FrameType = "replay_unavailable"
	FrameError             FrameType = "error"
)

// Frame is the JSON envelope exchanged with the channel server.
//
//   - auth: Token.
//   - ack: ThreadID, Seq of the delivered message.
//   - replay: ThreadID, Seq to replay from (inclusive).
//   - message: Message.
//   - replay_unavailable: ThreadID, Seq of the first message the server can
//     still supply (0 when unknown).
//   - error: Error.
type Frame struct {
	Type     FrameType `json:"type"`
	Token    string    `json:"token,omitempty"`
	Message  *Message  `json:"message,omitempty"`
	ThreadID string    `json:"thread_id,omitempty"`
	Seq      uint64    `json:"seq,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// # Events

// EventKind enumerates channel notifications delivered to watchers.
type EventKind int

const (
	// EventStateChanged reports a connection state transition.
	EventStateChanged EventKind = iota + 1

	// EventChannelUnavailable reports that the retry budget is exhausted.
	// Realtime features are offline until the next session.
	EventChannelUnavailable

	// EventPossibleMessageGap reports messages that could not be replayed.
	EventPossibleMessageGap
)

// String returns the snake_case name used in logs and on the live feed.
func (k EventKind) String() string {
	switch k {
	case EventStateChanged:
		return "state_changed"
	case EventChannelUnavailable:
		return "channel_unavailable"
	case EventPossibleMessageGap:
		return "possible_message_gap"
	default:
		return "unknown"
	}
}

// MarshalText renders the kind by name in JSON.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Event is a channel notification.
//
// For gaps, FromSeq..ToSeq is the inclusive missing range of ThreadID; ToSeq
// is 0 when the end of the range is unknown.
type Event struct {
	Kind     EventKind `json:"kind"`
	State    State     `json:"state"`
	Err      error     `json:"-"`
	ThreadID string    `json:"thread_id,omitempty"`
	FromSeq  uint64    `json:"from_seq,omitempty"`
	ToSeq    uint64    `json:"to_seq,omitempty"`
}

// Handler receives messages of one topic.
type Handler func(Message)

// EventHandler receives channel events.
type EventHandler func(Event)

// Handle identifies a subscription or watcher.
type Handle string
