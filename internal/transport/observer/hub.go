package observer

import (
	"encoding/json"
	"sync"

	"colony.ai/internal/protocol"
)

// Hub fans tick summaries out to observer sessions. It is an engine tick sink:
// WriteTick runs on the engine goroutine and never blocks. A session that falls
// behind loses its oldest queued frames.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]chan []byte
	latest *protocol.TickSummary
	buf    int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 8
	}
	return &Hub{subs: map[string]chan []byte{}, buf: buffer}
}

func (h *Hub) WriteTick(s protocol.TickSummary) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = &s
	for _, ch := range h.subs {
		pushDropOldest(ch, b)
	}
	return nil
}

func pushDropOldest(ch chan []byte, b []byte) {
	for {
		select {
		case ch <- b:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Latest returns a copy of the last summary written, if any.
func (h *Hub) Latest() (protocol.TickSummary, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest == nil {
		return protocol.TickSummary{}, false
	}
	return *h.latest, true
}

func (h *Hub) join(id string) <-chan []byte {
	ch := make(chan []byte, h.buf)
	h.mu.Lock()
	h.subs[id] = ch
	h.mu.Unlock()
	return ch
}

func (h *Hub) leave(id string) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

// Sessions is the number of connected observers.
func (h *Hub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
