// Package event is the fire-and-forget side channel the dispatch layer
// publishes handler lifecycle events on. Subscribers observe; they can
// never block or alter the response path.
package event

import "sync"

// Event carries the command payload and peer identity of one handled
// request.
type Event struct {
	// Name is the command's event name: auth, refresh, query, createUser,
	// removeUser.
	Name string
	// Payload is the raw request payload as received.
	Payload []byte
	// ConnID and RemoteAddr identify the connection the request arrived on.
	ConnID     string
	RemoteAddr string
}

// Bus fans events out to subscribers. Publishing never blocks: a
// subscriber whose buffer is full misses the event.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]chan Event
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string][]chan Event)}
}

// Subscribe returns a buffered channel receiving events with the given
// name. An empty name subscribes to every event.
func (b *Bus) Subscribe(name string) <-chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subs[name] = append(b.subs[name], ch)
	b.mu.Unlock()
	return ch
}

// Publish delivers e to subscribers of e.Name and to wildcard subscribers,
// dropping the event for any subscriber that is not keeping up.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[e.Name] {
		select {
		case ch <- e:
		default:
		}
	}
	if e.Name != "" {
		for _, ch := range b.subs[""] {
			select {
			case ch <- e:
			default:
			}
		}
	}
}
