// Package livequery fans written documents out to filtered subscriptions.
// It backs both the in-process remote and the relay's websocket listeners.
package livequery

import (
	"sync"

	"github.com/matheus3301/chatsync/internal/fields"
	"github.com/matheus3301/chatsync/internal/query"
)

// Hub serializes writes against subscription snapshots, so a subscriber sees
// every matching write exactly once after its initial batch.
type Hub struct {
	mu   sync.Mutex
	next int
	subs map[int]*Sub
}

func New() *Hub {
	return &Hub{subs: make(map[int]*Sub)}
}

// Sub is one live query. Batches are delivered in order on its own
// goroutine.
type Sub struct {
	hub        *Hub
	id         int
	collection string
	filter     query.Filter
	fn         func([]fields.Map)

	mu     sync.Mutex
	queue  [][]fields.Map
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

// Subscribe registers fn. snapshot runs under the hub lock and its result is
// the first batch, delivered even when empty.
func (h *Hub) Subscribe(collection string, f query.Filter, fn func([]fields.Map), snapshot func() ([]fields.Map, error)) (*Sub, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	docs, err := snapshot()
	if err != nil {
		return nil, err
	}
	h.next++
	s := &Sub{
		hub:        h,
		id:         h.next,
		collection: collection,
		filter:     f,
		fn:         fn,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	h.subs[s.id] = s
	s.push(docs)
	go s.run()
	return s, nil
}

// Commit runs write under the hub lock and publishes the document it returns.
func (h *Hub) Commit(collection string, write func() (fields.Map, error)) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	doc, err := write()
	if err != nil {
		return err
	}
	for _, s := range h.subs {
		if s.collection != collection {
			continue
		}
		if ok, err := s.filter.Match(doc); err != nil || !ok {
			continue
		}
		s.push([]fields.Map{doc.Clone()})
	}
	return nil
}

// Len returns the number of open subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (s *Sub) push(batch []fields.Map) {
	s.mu.Lock()
	s.queue = append(s.queue, batch)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Sub) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		for {
			s.mu.Lock()
			if s.closed || len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			batch := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			s.fn(batch)
		}
	}
}

// Close stops delivery. Batches not yet started are discarded.
func (s *Sub) Close() error {
	s.hub.mu.Lock()
	delete(s.hub.subs, s.id)
	s.hub.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}
