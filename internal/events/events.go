// Package events fans orchestrator notifications out to collaborators (the
// websocket stream, the CLI, tests).
package events

import (
	"sync"
	"time"

	"github.com/edvin/devhost/internal/metrics"
	"github.com/edvin/devhost/internal/platform"
)

type Kind string

const (
	KindServicesStatus Kind = "services-status-changed"
	KindSiteStatus     Kind = "site-status-changed"
	KindLog            Kind = "log"
	KindError          Kind = "error"
	KindOutput         Kind = "output"
	KindExit           Kind = "exit"
)

// Event is one notification. Which optional fields are set depends on Kind.
type Event struct {
	ID      string    `json:"id"`
	Kind    Kind      `json:"kind"`
	Time    time.Time `json:"time"`
	Running *bool     `json:"running,omitempty"`
	Site    string    `json:"site,omitempty"`
	Source  string    `json:"source,omitempty"`
	Message string    `json:"message,omitempty"`
	Code    *int      `json:"code,omitempty"`
}

// Notifier is the push channel the supervisors and the orchestrator write to.
type Notifier interface {
	ServicesStatusChanged(running bool)
	SiteStatusChanged(name string, running bool)
	Log(source, line string)
	Error(source, message string)
	Output(source, line string)
	Exit(source string, code int)
}

// Bus is a Notifier that broadcasts every event to its subscribers. Publish
// never blocks: a subscriber whose buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel of events and a cancel func that closes it.
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
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish stamps e with an id and time when missing and delivers it.
func (b *Bus) Publish(e Event) {
	if e.ID == "" {
		e.ID = platform.NewID()
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			metrics.EventsDropped.Inc()
		}
	}
}

func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus) ServicesStatusChanged(running bool) {
	b.Publish(Event{Kind: KindServicesStatus, Running: &running})
}

func (b *Bus) SiteStatusChanged(name string, running bool) {
	b.Publish(Event{Kind: KindSiteStatus, Site: name, Running: &running})
}

func (b *Bus) Log(source, line string) {
	b.Publish(Event{Kind: KindLog, Source: source, Message: line})
}

func (b *Bus) Error(source, message string) {
	b.Publish(Event{Kind: KindError, Source: source, Message: message})
}

func (b *Bus) Output(source, line string) {
	b.Publish(Event{Kind: KindOutput, Source: source, Message: line})
}

func (b *Bus) Exit(source string, code int) {
	b.Publish(Event{Kind: KindExit, Source: source, Code: &code})
}

// Discard is a Notifier that drops everything.
var Discard Notifier = discard{}

type discard struct{}

func (discard) ServicesStatusChanged(bool)      {}
func (discard) SiteStatusChanged(string, bool)  {}
func (discard) Log(string, string)              {}
func (discard) Error(string, string)            {}
func (discard) Output(string, string)           {}
func (discard) Exit(string, int)                {}
