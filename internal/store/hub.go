package store

import (
	"maps"
	"slices"
	"sync"

	"go.uber.org/zap"
)

// Token identifies an observation registered with Observe.
type Token uint64

// Change lists the rows of one table written by a committed transaction.
type Change struct {
	Table string
	IDs   []string
}

// Has reports whether id is among the changed rows.
func (c Change) Has(id string) bool {
	return slices.Contains(c.IDs, id)
}

// batch is the change set of one commit. seq grows with every commit.
type batch struct {
	seq     uint64
	changes []Change
}

type handler struct {
	fn func(Change)
	// since is the last commit published before registration; the handler
	// sees only later commits.
	since uint64
}

// hub delivers committed changes to observers on a single goroutine, in
// commit order. Publishing never blocks, so an observer may write.
type hub struct {
	logger *zap.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []batch
	seq      uint64
	busy     bool
	closed   bool
	next     Token
	handlers map[string]map[Token]handler
	done     chan struct{}
}

func newHub(logger *zap.Logger) *hub {
	h := &hub{
		logger:   logger,
		handlers: make(map[string]map[Token]handler),
		done:     make(chan struct{}),
	}
	h.cond = sync.NewCond(&h.mu)
	go h.run()
	return h
}

func (h *hub) observe(table string, fn func(Change)) Token {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	if h.handlers[table] == nil {
		h.handlers[table] = make(map[Token]handler)
	}
	h.handlers[table][h.next] = handler{fn: fn, since: h.seq}
	return h.next
}

func (h *hub) unobserve(t Token) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, hs := range h.handlers {
		delete(hs, t)
	}
}

func (h *hub) publish(changes []Change) {
	if len(changes) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.seq++
	h.queue = append(h.queue, batch{seq: h.seq, changes: changes})
	h.cond.Broadcast()
}

// settle blocks until the queue is empty and no callback is running.
func (h *hub) settle() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for (len(h.queue) > 0 || h.busy) && !h.closed {
		h.cond.Wait()
	}
}

func (h *hub) close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.cond.Broadcast()
	h.mu.Unlock()
	<-h.done
}

func (h *hub) run() {
	defer close(h.done)
	for {
		h.mu.Lock()
		for len(h.queue) == 0 && !h.closed {
			h.busy = false
			h.cond.Broadcast()
			h.cond.Wait()
		}
		if h.closed {
			h.mu.Unlock()
			return
		}
		b := h.queue[0]
		h.queue = h.queue[1:]
		h.busy = true
		h.mu.Unlock()

		for _, c := range b.changes {
			h.deliver(b.seq, c)
		}
	}
}

func (h *hub) deliver(seq uint64, c Change) {
	h.mu.Lock()
	tokens := slices.Sorted(maps.Keys(h.handlers[c.Table]))
	h.mu.Unlock()

	for _, t := range tokens {
		h.mu.Lock()
		hd, ok := h.handlers[c.Table][t]
		h.mu.Unlock()
		if !ok || hd.since >= seq {
			continue
		}
		h.call(hd.fn, c)
	}
}

func (h *hub) call(fn func(Change), c Change) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("observer panicked", zap.String("table", c.Table), zap.Any("panic", r))
		}
	}()
	fn(c)
}
