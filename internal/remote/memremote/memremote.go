// Package memremote is an in-process remote.Store and remote.Blobs. The
// daemon uses it when no relay is configured, and tests share one instance
// between several simulated devices.
package memremote

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/matheus3301/chatsync/internal/fields"
	"github.com/matheus3301/chatsync/internal/query"
	"github.com/matheus3301/chatsync/internal/remote"
	"github.com/matheus3301/chatsync/internal/remote/livequery"
	"github.com/matheus3301/chatsync/internal/syncerr"
)

// FailFunc lets tests inject errors per operation ("create", "update",
// "query", "subscribe", "put", "get", "health") and collection or bucket.
type FailFunc func(op, target string) error

// Remote holds documents and blobs in memory.
type Remote struct {
	hub *livequery.Hub

	mu    sync.RWMutex
	docs  map[string]map[string]fields.Map
	blobs map[string][]byte
	calls map[string]int
	fail  FailFunc
}

var (
	_ remote.Store = (*Remote)(nil)
	_ remote.Blobs = (*Remote)(nil)
)

func New() *Remote {
	return &Remote{
		hub:   livequery.New(),
		docs:  make(map[string]map[string]fields.Map),
		blobs: make(map[string][]byte),
		calls: make(map[string]int),
	}
}

// SetFail installs an error hook; nil removes it.
func (r *Remote) SetFail(fn FailFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = fn
}

// Calls returns how often op was invoked.
func (r *Remote) Calls(op string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.calls[op]
}

func (r *Remote) enter(op, target string) error {
	r.mu.Lock()
	r.calls[op]++
	fail := r.fail
	r.mu.Unlock()
	if fail != nil {
		return fail(op, target)
	}
	return nil
}

func (r *Remote) Create(ctx context.Context, collection, id string, doc fields.Map) error {
	if err := r.enter("create", collection); err != nil {
		return err
	}
	return r.hub.Commit(collection, func() (fields.Map, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		d := doc.Clone()
		d["objectId"] = fields.String(id)
		if r.docs[collection] == nil {
			r.docs[collection] = make(map[string]fields.Map)
		}
		r.docs[collection][id] = d
		return d.Clone(), nil
	})
}

func (r *Remote) Update(ctx context.Context, collection, id string, doc fields.Map) error {
	if err := r.enter("update", collection); err != nil {
		return err
	}
	return r.hub.Commit(collection, func() (fields.Map, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		cur, ok := r.docs[collection][id]
		if !ok {
			return nil, fmt.Errorf("update %s/%s: %w", collection, id, syncerr.ErrNotFound)
		}
		for k, v := range doc {
			cur[k] = v
		}
		cur["objectId"] = fields.String(id)
		return cur.Clone(), nil
	})
}

func (r *Remote) Query(ctx context.Context, collection string, f query.Filter) ([]fields.Map, error) {
	if err := r.enter("query", collection); err != nil {
		return nil, err
	}
	return r.match(collection, f)
}

func (r *Remote) match(collection string, f query.Filter) ([]fields.Map, error) {
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []fields.Map
	for _, d := range r.docs[collection] {
		ok, err := f.Match(d)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", collection, err)
		}
		if ok {
			out = append(out, d.Clone())
		}
	}
	slices.SortFunc(out, func(a, b fields.Map) int {
		n, _ := fields.Compare(a["updatedAt"], b["updatedAt"])
		return n
	})
	return out, nil
}

func (r *Remote) Subscribe(ctx context.Context, collection string, f query.Filter, onBatch func([]fields.Map)) (remote.Subscription, error) {
	if err := r.enter("subscribe", collection); err != nil {
		return nil, err
	}
	return r.hub.Subscribe(collection, f, onBatch, func() ([]fields.Map, error) {
		return r.match(collection, f)
	})
}

func (r *Remote) Put(ctx context.Context, bucket, key string, data []byte) error {
	if err := r.enter("put", bucket); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blobs[bucket+"/"+key] = slices.Clone(data)
	return nil
}

func (r *Remote) Get(ctx context.Context, bucket, key, destPath string) error {
	if err := r.enter("get", bucket); err != nil {
		return err
	}
	r.mu.RLock()
	data, ok := r.blobs[bucket+"/"+key]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("get %s/%s: %w", bucket, key, syncerr.ErrNotFound)
	}
	if err := os.WriteFile(destPath, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", destPath, err)
	}
	return nil
}

// Health fails only through the "health" failure hook.
func (r *Remote) Health(ctx context.Context) error {
	return r.enter("health", "")
}

// Doc returns a stored document, for assertions.
func (r *Remote) Doc(collection, id string) (fields.Map, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.docs[collection][id]
	if !ok {
		return nil, false
	}
	return d.Clone(), true
}

// Blob returns a stored blob, for assertions.
func (r *Remote) Blob(bucket, key string) ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.blobs[bucket+"/"+key]
	return b, ok
}
