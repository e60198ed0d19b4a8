package sync

import (
	"context"
	"fmt"
	"sort"
	gosync "sync"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/remote"
	"github.com/matheus3301/chatsync/internal/store"
	"go.uber.org/zap"
)

type runner interface {
	Collection() string
	Run(ctx context.Context)
	Tick(ctx context.Context) bool
	Pending(ctx context.Context) (int, error)
}

// Uploaders runs one Uploader per synced collection, each on its own
// goroutine.
type Uploaders struct {
	store   *store.Store
	runners []runner

	mu     gosync.Mutex
	cancel context.CancelFunc
	wg     gosync.WaitGroup
}

func NewUploaders(st *store.Store, rs remote.Store, gate Gate, interval time.Duration, b *bus.Bus, logger *zap.Logger) *Uploaders {
	return &Uploaders{
		store: st,
		runners: []runner{
			NewUploader(st, rs, model.Persons, gate, interval, b, logger),
			NewUploader(st, rs, model.Friends, gate, interval, b, logger),
			NewUploader(st, rs, model.Blockeds, gate, interval, b, logger),
			NewUploader(st, rs, model.Members, gate, interval, b, logger),
			NewUploader(st, rs, model.Groups, gate, interval, b, logger),
			NewUploader(st, rs, model.Singles, gate, interval, b, logger),
			NewUploader(st, rs, model.Details, gate, interval, b, logger),
			NewUploader(st, rs, model.Messages, gate, interval, b, logger),
		},
	}
}

// Start launches the loops. Calling Start twice is a no-op.
func (u *Uploaders) Start(ctx context.Context) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.cancel != nil {
		return
	}
	ctx, u.cancel = context.WithCancel(ctx)
	for _, r := range u.runners {
		u.wg.Add(1)
		go func() {
			defer u.wg.Done()
			r.Run(ctx)
		}()
	}
}

// Stop cancels the loops and waits for in-flight uploads to return.
func (u *Uploaders) Stop() {
	u.mu.Lock()
	cancel := u.cancel
	u.cancel = nil
	u.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	u.wg.Wait()
}

// Flush runs ticks on every collection until nothing is acknowledged. It
// returns the number of uploaded records.
func (u *Uploaders) Flush(ctx context.Context) int {
	n := 0
	for progress := true; progress && ctx.Err() == nil; {
		progress = false
		for _, r := range u.runners {
			if r.Tick(ctx) {
				n++
				progress = true
			}
		}
	}
	return n
}

// CollectionStatus is the upload and download state of one collection.
type CollectionStatus struct {
	Collection string
	Pending    int
	Uploaded   string
	Downloaded string
}

// Status reports pending counts and checkpoints, sorted by collection.
func (u *Uploaders) Status(ctx context.Context) ([]CollectionStatus, error) {
	states, err := u.store.States(ctx, "")
	if err != nil {
		return nil, err
	}
	out := make([]CollectionStatus, 0, len(u.runners))
	for _, r := range u.runners {
		n, err := r.Pending(ctx)
		if err != nil {
			return nil, fmt.Errorf("pending %s: %w", r.Collection(), err)
		}
		out = append(out, CollectionStatus{
			Collection: r.Collection(),
			Pending:    n,
			Uploaded:   states["upload."+r.Collection()],
			Downloaded: states["download."+r.Collection()],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Collection < out[j].Collection })
	return out, nil
}
