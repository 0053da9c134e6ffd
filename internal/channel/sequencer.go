// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package channel

import "sort"

// gap is an inclusive range of sequence numbers that will never be delivered.
// to is 0 when the end is unknown.
type gap struct {
	threadID string
	from     uint64
	to       uint64
}

// threadCursor tracks delivery progress of one thread.
type threadCursor struct {
	last      uint64
	pending   map[uint64]Message
	requested bool // a replay for the current hole is outstanding
}

// drain appends buffered successors of last to ready.
func (c *threadCursor) drain(ready []Message) []Message {
	for {
		next, ok := c.pending[c.last+1]
		if !ok {
			break
		}
		delete(c.pending, next.Seq)
		ready = append(ready, next)
		c.last = next.Seq
	}
	if len(c.pending) == 0 {
		c.requested = false
	}
	return ready
}

// sequencer restores per-thread order and suppresses duplicates.
//
// It is not safe for concurrent use; the [Manager] guards it with its mutex.
type sequencer struct {
	threads map[string]*threadCursor
}

func newSequencer() *sequencer {
	return &sequencer{threads: make(map[string]*threadCursor)}
}

// seed sets the starting cursor of a thread unless it is already tracked.
func (s *sequencer) seed(threadID string, last uint64) {
	if _, ok := s.threads[threadID]; ok {
		return
	}
	s.threads[threadID] = &threadCursor{last: last, pending: make(map[uint64]Message)}
}

// accept files msg and returns the messages now deliverable, in order.
// replayFrom is non-zero when a new hole opened and a replay should be requested.
func (s *sequencer) accept(msg Message) (ready []Message, replayFrom uint64) {
	cursor, ok := s.threads[msg.ThreadID]
	if !ok {
		// Threads start at 1; anything later means the start was missed
		cursor = &threadCursor{pending: make(map[uint64]Message)}
		s.threads[msg.ThreadID] = cursor
		if msg.Seq <= 1 {
			cursor.last = msg.Seq
			return []Message{msg}, 0
		}
	}

	switch {
	case msg.Seq <= cursor.last:
		return nil, 0

	case msg.Seq == cursor.last+1:
		cursor.last = msg.Seq
		return cursor.drain([]Message{msg}), 0

	default:
		if _, seen := cursor.pending[msg.Seq]; seen {
			return nil, 0
		}
		cursor.pending[msg.Seq] = msg
		if cursor.requested {
			return nil, 0
		}
		cursor.requested = true
		return nil, cursor.last + 1
	}
}

// skipTo gives up on the hole of threadID.
//
// With resume > 0 the cursor jumps to resume-1 and buffered successors are
// drained. With resume == 0 everything buffered is flushed in order.
func (s *sequencer) skipTo(threadID string, resume uint64) (ready []Message, gaps []gap) {
	cursor, ok := s.threads[threadID]
	if !ok {
		return nil, nil
	}

	if resume > 0 {
		if resume > cursor.last+1 {
			gaps = append(gaps, gap{threadID: threadID, from: cursor.last + 1, to: resume - 1})
			cursor.last = resume - 1
		}
		for seq := range cursor.pending {
			if seq <= cursor.last {
				delete(cursor.pending, seq)
			}
		}
		return cursor.drain(nil), gaps
	}

	if len(cursor.pending) == 0 {
		cursor.requested = false
		return nil, []gap{{threadID: threadID, from: cursor.last + 1}}
	}

	buffered := make([]uint64, 0, len(cursor.pending))
	for seq := range cursor.pending {
		buffered = append(buffered, seq)
	}
	sort.Slice(buffered, func(i, j int) bool { return buffered[i] < buffered[j] })

	for _, seq := range buffered {
		if seq > cursor.last+1 {
			gaps = append(gaps, gap{threadID: threadID, from: cursor.last + 1, to: seq - 1})
		}
		ready = append(ready, cursor.pending[seq])
		cursor.last = seq
	}
	cursor.pending = make(map[uint64]Message)
	cursor.requested = false
	return ready, gaps
}

// reopen is called when a connection opens and replays every thread from its
// cursor, which covers all buffered holes.
func (s *sequencer) reopen() {
	for _, cursor := range s.threads {
		cursor.requested = len(cursor.pending) > 0
	}
}

// position is the last delivered sequence number of a thread.
type position struct {
	threadID string
	seq      uint64
}

// cursors returns the position of every thread, sorted by thread.
func (s *sequencer) cursors() []position {
	threads := make([]string, 0, len(s.threads))
	for threadID := range s.threads {
		threads = append(threads, threadID)
	}
	sort.Strings(threads)

	result := make([]position, 0, len(threads))
	for _, threadID := range threads {
		result = append(result, position{threadID: threadID, seq: s.threads[threadID].last})
	}
	return result
}

// last returns the cursor of threadID.
func (s *sequencer) last(threadID string) (uint64, bool) {
	cursor, ok := s.threads[threadID]
	if !ok {
		return 0, false
	}
	return cursor.last, true
}
