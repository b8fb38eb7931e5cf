// Package events fans engine events out to subscribers.
package events

import (
	"sync"
	"time"
)

// Kind names an event type.
type Kind string

const (
	SessionStatusChanged Kind = "session_status_changed"
	DockStateChanged     Kind = "dock_state_changed"
	SyncApplied          Kind = "sync_applied"
	SyncApplyFailed      Kind = "sync_apply_failed"
	ScreenshotCaptured   Kind = "screenshot_captured"
	ScreenshotFailed     Kind = "screenshot_failed"
	Fault                Kind = "fault"
)

// Layout mirrors layout.Spec so this package stays a leaf.
type Layout struct {
	TX    int     `json:"tx"`
	TY    int     `json:"ty"`
	BX    int     `json:"bx"`
	BY    int     `json:"by"`
	Scale float64 `json:"scale"`
}

// Screenshot describes a captured image.
type Screenshot struct {
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Bytes     int    `json:"bytes"`
	Path      string `json:"path,omitempty"`
	Clipboard string `json:"clipboard,omitempty"`
}

// Event is one observable engine occurrence.
type Event struct {
	Kind       Kind        `json:"kind"`
	Time       time.Time   `json:"time"`
	Role       string      `json:"role,omitempty"`
	Status     string      `json:"status,omitempty"`
	State      string      `json:"state,omitempty"`
	Fault      string      `json:"fault,omitempty"`
	Message    string      `json:"message,omitempty"`
	Layout     *Layout     `json:"layout,omitempty"`
	Screenshot *Screenshot `json:"screenshot,omitempty"`
}

// Bus delivers events to every subscriber without blocking the publisher.
// A subscriber whose buffer is full misses the event.
type Bus struct {
	mu      sync.Mutex
	nextID  int
	subs    map[int]chan Event
	dropped map[int]int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: map[int]chan Event{}, dropped: map[int]int{}}
}

// Subscribe registers a subscriber with the given buffer size. The returned
// function unsubscribes and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			delete(b.dropped, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish sends ev to all subscribers.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped[id]++
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
