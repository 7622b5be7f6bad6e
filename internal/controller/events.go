package controller

import (
	"sync"
)

// EventType names a notification the façade publishes. Payloads carry
// identifiers only; subscribers look the data up themselves.
type EventType string

const (
	EventProfileChanged  EventType = "profile-changed"
	EventBouquetChanged  EventType = "bouquet-changed"
	EventFavChanged      EventType = "fav-changed"
	EventServicesUpdate  EventType = "services-update"
	EventDataOpen        EventType = "data-open"
	EventDataSave        EventType = "data-save"
	EventEpgCacheUpdated EventType = "epg-cache-updated"
	EventTaskProgress    EventType = "task-progress"
	EventTaskDone        EventType = "task-done"
	EventTaskCanceled    EventType = "task-canceled"
)

// Event is one bus message. ID is the affected identifier (profile
// name, bouquet id, fav id, task id); Count carries batch sizes for
// services-update and progress ticks.
type Event struct {
	Type  EventType
	ID    string
	Count int
}

// Bus is a fan-out event dispatcher. Subscribers get buffered
// channels; a subscriber that stops draining loses events rather than
// blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	next int
	subs map[int]chan Event
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel of events and a cancel function. The
// channel closes on cancel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
		b.mu.Unlock()
	}
}

// Publish delivers an event to every subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
