// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package inbox keeps the recent conversation history shown by the Messages view.

The [Inbox] subscribes to the "messages" topic of the realtime channel and keeps
the last N messages of every thread in delivery order. Degraded channel
conditions are surfaced as flags instead of errors:

  - A possible message gap marks the thread so the view can say that some
    messages may be missing.
  - An unavailable channel marks the whole inbox offline until the channel
    opens again.

The inbox belongs to one principal at a time. [Inbox.Attach] is called on every
login and starts from a clean slate.
*/
package inbox

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/taibuivan/evently/internal/channel"
	"github.com/taibuivan/evently/internal/platform/sec"
)

// DefaultLimit is the number of messages kept per thread when none is configured.
const DefaultLimit = 200

// Source is the part of the channel manager the inbox consumes.
type Source interface {
	Subscribe(topic string, handler channel.Handler) channel.Handle
	Watch(handler channel.EventHandler) channel.Handle
	Unsubscribe(handle channel.Handle) bool
}

type thread struct {
	messages     []channel.Message
	maybeMissing bool
	updatedAt    time.Time
}

// Inbox is the message history of the signed-in principal.
type Inbox struct {
	limit int

	mu      sync.RWMutex
	ownerID string
	threads map[string]*thread
	offline bool
	state   channel.State
	source  Source
	handles []channel.Handle
}

// New creates an empty inbox keeping limit messages per thread.
func New(limit int) *Inbox {
	if limit < 1 {
		limit = DefaultLimit
	}
	return &Inbox{limit: limit, threads: make(map[string]*thread)}
}

// Attach clears the inbox, binds it to owner and subscribes to source.
// Subscriptions of a previous Attach are released first.
func (i *Inbox) Attach(source Source, owner *sec.Principal) {
	i.Detach()

	i.mu.Lock()
	i.ownerID = ""
	if owner.Authenticated() {
		i.ownerID = owner.ID
	}
	i.threads = make(map[string]*thread)
	i.offline = false
	i.state = channel.StateClosed
	i.source = source
	i.mu.Unlock()

	handles := []channel.Handle{
		source.Subscribe(channel.TopicMessages, i.receive),
		source.Watch(i.observe),
	}

	i.mu.Lock()
	i.handles = handles
	i.mu.Unlock()
}

// Detach releases the inbox's subscriptions. History is kept until the next Attach.
func (i *Inbox) Detach() {
	i.mu.Lock()
	source, handles := i.source, i.handles
	i.source, i.handles = nil, nil
	i.mu.Unlock()

	for _, handle := range handles {
		source.Unsubscribe(handle)
	}
}

func (i *Inbox) receive(msg channel.Message) {
	i.mu.Lock()
	defer i.mu.Unlock()

	current, ok := i.threads[msg.ThreadID]
	if !ok {
		current = &thread{}
		i.threads[msg.ThreadID] = current
	}

	current.messages = append(current.messages, msg)
	if overflow := len(current.messages) - i.limit; overflow > 0 {
		current.messages = append([]channel.Message(nil), current.messages[overflow:]...)
	}

	current.updatedAt = msg.SentAt
	if current.updatedAt.IsZero() {
		current.updatedAt = time.Now()
	}
}

func (i *Inbox) observe(event channel.Event) {
	i.mu.Lock()
	defer i.mu.Unlock()

	switch event.Kind {
	case channel.EventStateChanged:
		i.state = event.State
		if event.State == channel.StateOpen {
			i.offline = false
		}
	case channel.EventChannelUnavailable:
		i.state = channel.StateClosed
		i.offline = true
	case channel.EventPossibleMessageGap:
		current, ok := i.threads[event.ThreadID]
		if !ok {
			current = &thread{updatedAt: time.Now()}
			i.threads[event.ThreadID] = current
		}
		current.maybeMissing = true
	}
}

// # Snapshots

// Thread is the read model of one conversation.
type Thread struct {
	ID           string            `json:"id"`
	Messages     []channel.Message `json:"messages"`
	LastSeq      uint64            `json:"last_seq"`
	MaybeMissing bool              `json:"maybe_missing"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Snapshot is the read model of the whole inbox.
type Snapshot struct {
	Offline bool          `json:"offline"`
	Channel channel.State `json:"channel"`
	Threads []Thread      `json:"threads"`
}

// Snapshot returns a copy of the inbox, most recently active thread first.
func (i *Inbox) Snapshot() Snapshot {
	i.mu.RLock()
	defer i.mu.RUnlock()

	snapshot := Snapshot{
		Offline: i.offline,
		Channel: i.state,
		Threads: make([]Thread, 0, len(i.threads)),
	}
	for id, current := range i.threads {
		snapshot.Threads = append(snapshot.Threads, current.view(id))
	}

	sort.Slice(snapshot.Threads, func(a, b int) bool {
		left, right := snapshot.Threads[a], snapshot.Threads[b]
		if !left.UpdatedAt.Equal(right.UpdatedAt) {
			return left.UpdatedAt.After(right.UpdatedAt)
		}
		return left.ID < right.ID
	})
	return snapshot
}

// Thread returns a copy of one conversation.
func (i *Inbox) Thread(id string) (Thread, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	current, ok := i.threads[id]
	if !ok {
		return Thread{}, false
	}
	return current.view(id), true
}

func (t *thread) view(id string) Thread {
	result := Thread{
		ID:           id,
		Messages:     append([]channel.Message(nil), t.messages...),
		MaybeMissing: t.maybeMissing,
		UpdatedAt:    t.updatedAt,
	}
	if len(t.messages) > 0 {
		result.LastSeq = t.messages[len(t.messages)-1].Seq
	}
	return result
}

// Provide is a view provider for the Messages page. Principals other than the
// owner get an empty inbox.
func (i *Inbox) Provide(_ context.Context, principal *sec.Principal, _ map[string]string) (any, error) {
	i.mu.RLock()
	owner := i.ownerID
	i.mu.RUnlock()

	if owner == "" || !principal.Authenticated() || principal.ID != owner {
		return Snapshot{Threads: []Thread{}}, nil
	}
	return i.Snapshot(), nil
}
