package app

import (
	"slices"
	"sync"

	"github.com/evanschultz/waymark/internal/domain"
	"github.com/google/uuid"
)

// QueryShape describes which tables a subscriber reads. No tables means all of them.
type QueryShape struct {
	Tables []domain.ChangeTable
}

// matches reports whether any event touches a table in the shape.
func (q QueryShape) matches(event domain.ChangeEvent) bool {
	return len(q.Tables) == 0 || slices.Contains(q.Tables, event.Table)
}

// Notification carries the committed changes relevant to one subscription.
type Notification struct {
	Events []domain.ChangeEvent
}

// Subscription receives a Notification after each relevant commit.
// A slow reader sees pending notifications merged into one.
type Subscription struct {
	ID string
	C  <-chan Notification

	ch    chan Notification
	shape QueryShape
	hub   *Hub
	once  sync.Once
}

// Close unregisters the subscription and closes C.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.hub.remove(s.ID)
	})
}

// Hub fans committed change events out to subscriptions.
type Hub struct {
	mu   sync.Mutex
	subs map[string]*Subscription
}

// NewHub constructs an empty hub.
func NewHub() *Hub {
	return &Hub{subs: map[string]*Subscription{}}
}

// Subscribe registers a new subscription for shape.
func (h *Hub) Subscribe(shape QueryShape) *Subscription {
	ch := make(chan Notification, 1)
	sub := &Subscription{
		ID:    uuid.NewString(),
		C:     ch,
		ch:    ch,
		shape: QueryShape{Tables: slices.Clone(shape.Tables)},
		hub:   h,
	}
	h.mu.Lock()
	h.subs[sub.ID] = sub
	h.mu.Unlock()
	return sub
}

// Publish delivers events to every subscription whose shape they match. It never blocks.
func (h *Hub) Publish(events []domain.ChangeEvent) {
	if len(events) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		relevant := make([]domain.ChangeEvent, 0, len(events))
		for _, event := range events {
			if sub.shape.matches(event) {
				relevant = append(relevant, event)
			}
		}
		if len(relevant) == 0 {
			continue
		}
		deliver(sub.ch, Notification{Events: relevant})
	}
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// remove drops a subscription and closes its channel.
func (h *Hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	close(sub.ch)
}

// deliver sends n, merging it with an undelivered notification when the buffer is full.
func deliver(ch chan Notification, n Notification) {
	select {
	case ch <- n:
		return
	default:
	}
	select {
	case pending := <-ch:
		n.Events = append(pending.Events, n.Events...)
	default:
	}
	select {
	case ch <- n:
	default:
	}
}
