package notify

import (
	"sync"

	"go.uber.org/zap"
)

const subscriberBuffer = 16

// Hub is an in-process Notifier with topic subscriptions. The SSE handler
// and an embedded worker share one Hub so job events reach connected
// clients without an external broker.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[int]chan any
	nextID int
	closed bool
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[int]chan any)}
}

// Subscribe registers a listener on topic. The returned cancel func must be
// called when the listener goes away; the channel is closed by cancel or by
// Close, never by Publish.
func (h *Hub) Subscribe(topic string) (<-chan any, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan any, subscriberBuffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := h.nextID
	h.nextID++
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[int]chan any)
	}
	h.subs[topic][id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if subs, ok := h.subs[topic]; ok {
			if c, ok := subs[id]; ok {
				delete(subs, id)
				close(c)
				if len(subs) == 0 {
					delete(h.subs, topic)
				}
			}
		}
	}
	return ch, cancel
}

// Publish fans the payload out to all topic subscribers. Full subscriber
// buffers are skipped rather than blocking the publisher.
func (h *Hub) Publish(topic string, payload any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for _, ch := range h.subs[topic] {
		select {
		case ch <- payload:
		default:
			zap.L().Debug("notify: dropping event for slow subscriber",
				zap.String("topic", topic))
		}
	}
}

// Close shuts down the hub and closes all subscriber channels.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for topic, subs := range h.subs {
		for id, ch := range subs {
			delete(subs, id)
			close(ch)
		}
		delete(h.subs, topic)
	}
	return nil
}
