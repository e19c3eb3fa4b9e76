// Package transcript reconstructs a causally-ordered conversation transcript
// from the out-of-order event stream a realtime session delivers.
package transcript

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Role identifies the speaker of a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the conversation transcript.
//
// The ID embeds the millisecond creation time of the first event that
// produced the message ("<role>-<epoch-ms>"). That suffix doubles as the
// sort key for causal ordering, so it is never rewritten once assigned.
type Message struct {
	ID      string
	Role    Role
	Content string

	// Final is set once the governing turn has closed; content is never
	// mutated afterward.
	Final bool
}

// Timestamp parses the epoch-millisecond suffix embedded in the message ID.
func (m Message) Timestamp() (int64, bool) {
	return IDTimestamp(m.ID)
}

// IDTimestamp extracts the epoch-millisecond suffix of a "<role>-<ms>" id.
func IDTimestamp(id string) (int64, bool) {
	idx := strings.LastIndex(id, "-")
	if idx < 0 || idx == len(id)-1 {
		return 0, false
	}
	ms, err := strconv.ParseInt(id[idx+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return ms, true
}

// pendingItem tracks a user conversation item whose transcription has not
// arrived yet. The recorded capture time becomes the message's sort key.
type pendingItem struct {
	itemID    string
	createdAt time.Time
}

// State is the reconciler state for one connection's lifetime.
//
// The zero value is ready to use. State is treated as a value: Apply returns
// a new State and never mutates its receiver's slices in place, so callers
// can hold snapshots without copying.
type State struct {
	Messages []Message

	// CurrentAssistantID identifies the assistant message currently being
	// streamed, or "" when no turn is open.
	CurrentAssistantID string

	pending map[string]pendingItem
}

// PendingCount reports how many announced user items still await transcription.
func (s State) PendingCount() int { return len(s.pending) }

// Reset clears per-turn reconciler state while preserving the transcript,
// matching disconnect semantics (messages survive, turn bookkeeping does not).
func (s State) Reset() State {
	s.CurrentAssistantID = ""
	s.pending = nil
	return s
}

func (s State) withPending(it pendingItem) State {
	next := make(map[string]pendingItem, len(s.pending)+1)
	for k, v := range s.pending {
		next[k] = v
	}
	next[it.itemID] = it
	s.pending = next
	return s
}

func (s State) withoutPending(itemID string) State {
	if _, ok := s.pending[itemID]; !ok {
		return s
	}
	next := make(map[string]pendingItem, len(s.pending)-1)
	for k, v := range s.pending {
		if k != itemID {
			next[k] = v
		}
	}
	s.pending = next
	return s
}

// newMessageID builds a "<role>-<epoch-ms>" id that is unique within the
// transcript. Two events landing on the same millisecond would otherwise
// collide, so the millisecond is bumped until the id is free; the bump keeps
// the wire-visible format and the sort-key semantics intact.
func (s State) newMessageID(role Role, at time.Time) string {
	ms := at.UnixMilli()
	for {
		id := fmt.Sprintf("%s-%d", role, ms)
		if !s.hasMessageID(id) {
			return id
		}
		ms++
	}
}

func (s State) hasMessageID(id string) bool {
	for _, m := range s.Messages {
		if m.ID == id {
			return true
		}
	}
	return false
}

func (s State) indexByID(id string) int {
	for i, m := range s.Messages {
		if m.ID == id {
			return i
		}
	}
	return -1
}
