package store

import (
	"context"
	"slices"
	"sync"

	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/query"
	"go.uber.org/zap"
)

// IndexChange describes how a result list changed. Deleted holds indexes in
// the previous list; Inserted and Modified hold indexes in the new one.
type IndexChange struct {
	Deleted  []int
	Inserted []int
	Modified []int
}

// Empty reports whether nothing changed.
func (c IndexChange) Empty() bool {
	return len(c.Deleted) == 0 && len(c.Inserted) == 0 && len(c.Modified) == 0
}

// Results is a live, ordered query result. It re-evaluates after every
// commit touching its table and reports index diffs.
type Results[T any] struct {
	st       *Store
	schema   *model.Schema[T]
	filter   query.Filter
	opts     []Opt
	onChange func(IndexChange)

	mu    sync.RWMutex
	items []*T
	token Token
}

// Watch evaluates f and keeps the result current. onChange runs on the
// dispatcher goroutine and may be nil.
func Watch[T any](ctx context.Context, st *Store, s *model.Schema[T], f query.Filter, onChange func(IndexChange), opts ...Opt) (*Results[T], error) {
	r := &Results[T]{st: st, schema: s, filter: f, opts: opts, onChange: onChange}

	r.mu.Lock()
	defer r.mu.Unlock()
	token, err := st.ObserveWhenIdle(ctx, s.Table, r.refresh)
	if err != nil {
		return nil, err
	}
	items, err := Select(ctx, st, s, f, opts...)
	if err != nil {
		st.Unobserve(token)
		return nil, err
	}
	r.items = items
	r.token = token
	return r, nil
}

// Count returns the number of rows.
func (r *Results[T]) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// At returns row i.
func (r *Results[T]) At(i int) *T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.items[i]
}

// All returns a snapshot of the rows.
func (r *Results[T]) All() []*T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.items)
}

// Close stops observing.
func (r *Results[T]) Close() {
	r.st.Unobserve(r.token)
}

func (r *Results[T]) refresh(Change) {
	items, err := Select(context.Background(), r.st, r.schema, r.filter, r.opts...)
	if err != nil {
		r.st.logger.Error("refresh results", zap.String("table", r.schema.Table), zap.Error(err))
		return
	}

	r.mu.Lock()
	diff := r.diff(r.items, items)
	r.items = items
	r.mu.Unlock()

	if r.onChange != nil && !diff.Empty() {
		r.onChange(diff)
	}
}

func (r *Results[T]) diff(old, cur []*T) IndexChange {
	var c IndexChange
	before := make(map[string]*T, len(old))
	for _, it := range old {
		before[r.schema.ID(it)] = it
	}
	after := make(map[string]bool, len(cur))
	for i, it := range cur {
		id := r.schema.ID(it)
		after[id] = true
		prev, ok := before[id]
		switch {
		case !ok:
			c.Inserted = append(c.Inserted, i)
		case !slices.Equal(r.schema.Values(prev), r.schema.Values(it)):
			c.Modified = append(c.Modified, i)
		}
	}
	for i, it := range old {
		if !after[r.schema.ID(it)] {
			c.Deleted = append(c.Deleted, i)
		}
	}
	return c
}
