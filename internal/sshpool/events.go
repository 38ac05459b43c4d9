package sshpool

import (
	"log"
	"sync"
	"time"

	"github.com/hostdeck/hostdeck/internal/logutil"
)

// EventType identifies the type of connection event.
type EventType string

const (
	EventConnected     EventType = "connected"
	EventConnectFailed EventType = "connect_failed"
	EventFault         EventType = "fault"
	EventEvicted       EventType = "evicted"
	EventClosed        EventType = "closed"
)

// ConnectionEvent records a lifecycle event for a pooled connection.
type ConnectionEvent struct {
	Identity  HostIdentity `json:"identity"`
	Type      EventType    `json:"type"`
	Details   string       `json:"details"`
	Timestamp time.Time    `json:"timestamp"`
}

// maxEventsPerIdentity limits the number of stored events per identity.
const maxEventsPerIdentity = 100

// eventLog stores a ring buffer of recent connection events per identity.
type eventLog struct {
	mu     sync.Mutex
	events map[HostIdentity][]ConnectionEvent
}

func newEventLog() *eventLog {
	return &eventLog{events: make(map[HostIdentity][]ConnectionEvent)}
}

func (el *eventLog) record(identity HostIdentity, eventType EventType, details string) {
	event := ConnectionEvent{
		Identity:  identity,
		Type:      eventType,
		Details:   details,
		Timestamp: time.Now(),
	}

	el.mu.Lock()
	events := append(el.events[identity], event)
	if len(events) > maxEventsPerIdentity {
		events = events[len(events)-maxEventsPerIdentity:]
	}
	el.events[identity] = events
	el.mu.Unlock()

	log.Printf("[pool] event %s/%s: %s", logutil.SanitizeForLog(identity.String()), eventType, details)
}

func (el *eventLog) forIdentity(identity HostIdentity) []ConnectionEvent {
	el.mu.Lock()
	defer el.mu.Unlock()
	events := el.events[identity]
	result := make([]ConnectionEvent, len(events))
	copy(result, events)
	return result
}

// Events returns the recent connection events for the given identity.
func (p *Pool) Events(identity HostIdentity) []ConnectionEvent {
	return p.events.forIdentity(identity)
}
