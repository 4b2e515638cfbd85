// Package events defines the structured lifecycle event stream consumers
// drain for real-time progress, audit, and alerting.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of lifecycle event.
type Type string

const (
	SessionStart     Type = "SessionStart"
	SessionEnd       Type = "SessionEnd"
	ProfileStart     Type = "ProfileStart"
	ProfileComplete  Type = "ProfileComplete"
	ChunkStart       Type = "ChunkStart"
	ChunkComplete    Type = "ChunkComplete"
	ChunkError       Type = "ChunkError"
	ConfigChange     Type = "ConfigChange"
	EmailSent        Type = "EmailSent"
	SnapshotCreated  Type = "SnapshotCreated"
	SnapshotRemoved  Type = "SnapshotRemoved"
)

// Event is one structured lifecycle event. Data carries event-specific
// fields (chunk id, source/destination, exit code, severity, bytes,
// duration) as a flat map rather than a typed union, so the queue and its
// consumers stay decoupled from any one event's payload shape.
type Event struct {
	Type      Type           `json:"Type"`
	SessionID string         `json:"SessionId"`
	Timestamp time.Time      `json:"Timestamp"`
	User      string         `json:"User"`
	Host      string         `json:"Host"`
	Data      map[string]any `json:"Data,omitempty"`
}

// New builds an Event stamped with the current UTC time at millisecond
// precision, per the external interface's ISO-8601 contract.
func New(typ Type, sessionID, user, host string, data map[string]any) Event {
	return Event{
		Type:      typ,
		SessionID: sessionID,
		Timestamp: time.Now().UTC().Round(time.Millisecond),
		User:      user,
		Host:      host,
		Data:      data,
	}
}

// NewSessionID returns a fresh random session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// Queue is a bounded, concurrency-safe stream of events for UI/log
// consumers to drain. Backed by a buffered channel sized generously so a
// slow consumer doesn't stall event producers during normal operation;
// Publish never blocks indefinitely, it drops the oldest event and logs
// nothing (the event stream is best-effort, not a guarantee).
type Queue struct {
	ch chan Event
}

// NewQueue builds a Queue with the given buffer capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Queue{ch: make(chan Event, capacity)}
}

// Publish enqueues e. If the queue is full, the oldest buffered event is
// dropped to make room, so a stalled consumer never blocks the
// orchestrator's hot path.
func (q *Queue) Publish(e Event) {
	select {
	case q.ch <- e:
		return
	default:
	}

	select {
	case <-q.ch:
	default:
	}
	select {
	case q.ch <- e:
	default:
	}
}

// Drain returns a channel consumers can range over. Closing the producer
// side (Close) is the consumer's signal to stop.
func (q *Queue) Drain() <-chan Event {
	return q.ch
}

// Close stops accepting further events and closes the drain channel.
func (q *Queue) Close() {
	close(q.ch)
}
