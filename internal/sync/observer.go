package sync

import (
	"context"
	"fmt"
	"strconv"
	gosync "sync"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/fields"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/query"
	"github.com/matheus3301/chatsync/internal/remote"
	"github.com/matheus3301/chatsync/internal/retry"
	"github.com/matheus3301/chatsync/internal/store"
	"github.com/matheus3301/chatsync/internal/syncerr"
	"go.uber.org/zap"
)

// subscribeRetry bounds the attempts to open a live query.
var subscribeRetry = retry.Config{
	MaxAttempts: 5,
	InitialWait: 200 * time.Millisecond,
	MaxWait:     5 * time.Second,
	Multiplier:  2,
	Retryable:   syncerr.IsTransient,
}

// Observer keeps one live query on the remote and applies every batch it
// delivers to the local store.
type Observer[T any] struct {
	store    *store.Store
	remote   remote.Store
	schema   *model.Schema[T]
	filter   query.Filter
	onChange func(inserted, modified bool)
	bus      *bus.Bus
	logger   *zap.Logger

	mu     gosync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	sub    remote.Subscription
}

// NewObserver prepares an observer; onChange may be nil.
func NewObserver[T any](st *store.Store, rs remote.Store, s *model.Schema[T], f query.Filter, onChange func(inserted, modified bool), b *bus.Bus, logger *zap.Logger) *Observer[T] {
	return &Observer[T]{
		store:    st,
		remote:   rs,
		schema:   s,
		filter:   f,
		onChange: onChange,
		bus:      b,
		logger:   logger.Named("observe").With(zap.String("collection", s.Collection), zap.String("filter", f.Key())),
	}
}

// Start waits until the local store has no open write, then subscribes. It
// never subscribes during a write: a long write only delays it until ctx is
// done. Transient subscribe failures are retried a bounded number of times.
func (o *Observer[T]) Start(ctx context.Context) error {
	for {
		err := o.store.WaitIdle(ctx)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		o.logger.Warn("store still writing, waiting to subscribe", zap.Error(err))
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.mu.Lock()
	o.ctx, o.cancel = runCtx, cancel
	o.mu.Unlock()

	sub, err := retry.DoWithConfig(ctx, subscribeRetry, func() (remote.Subscription, error) {
		return o.remote.Subscribe(ctx, o.schema.Collection, o.filter, o.apply)
	})
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe %s: %w", o.schema.Collection, err)
	}

	o.mu.Lock()
	o.sub = sub
	o.mu.Unlock()
	return nil
}

// Stop closes the live query. Batches not yet applied are dropped.
func (o *Observer[T]) Stop() {
	o.mu.Lock()
	sub, cancel := o.sub, o.cancel
	o.sub, o.cancel = nil, nil
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if sub != nil {
		if err := sub.Close(); err != nil {
			o.logger.Warn("close subscription", zap.Error(err))
		}
	}
}

func (o *Observer[T]) context() context.Context {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ctx == nil {
		return context.Background()
	}
	return o.ctx
}

// apply decodes and stores one batch in a single transaction.
func (o *Observer[T]) apply(docs []fields.Map) {
	ctx := o.context()
	if ctx.Err() != nil {
		return
	}
	records := make([]*T, 0, len(docs))
	var newest int64
	for _, d := range docs {
		r, err := o.schema.Decode(d)
		if err != nil {
			o.logger.Error("skipping document", zap.String("id", d.ID()), zap.Error(err))
			continue
		}
		newest = max(newest, o.schema.Meta(r).UpdatedAt)
		records = append(records, r)
	}
	if len(records) == 0 {
		if o.onChange != nil {
			o.onChange(false, false)
		}
		return
	}

	res, err := store.Apply(ctx, o.store, o.schema, records)
	if err != nil {
		if ctx.Err() == nil {
			o.logger.Error("apply batch", zap.Int("documents", len(records)), zap.Error(err))
		}
		return
	}
	inserted, modified := len(res.Inserted) > 0, len(res.Modified) > 0
	if inserted || modified {
		o.logger.Debug("applied batch",
			zap.Int("inserted", len(res.Inserted)),
			zap.Int("modified", len(res.Modified)),
			zap.Int("skipped", res.Skipped))
		o.bus.Emit(bus.KindDownloaded, bus.Downloaded{
			Collection: o.schema.Collection,
			Inserted:   len(res.Inserted),
			Modified:   len(res.Modified),
		})
		o.checkpoint(ctx, newest)
	}
	if o.onChange != nil {
		o.onChange(inserted, modified)
	}
}

func (o *Observer[T]) checkpoint(ctx context.Context, updatedAt int64) {
	key := "download." + o.schema.Collection
	prev, err := o.store.State(ctx, key)
	if err != nil {
		return
	}
	if n, err := strconv.ParseInt(prev, 10, 64); err == nil && n >= updatedAt {
		return
	}
	if err := o.store.SetState(ctx, key, strconv.FormatInt(updatedAt, 10)); err != nil {
		o.logger.Warn("save download checkpoint", zap.Error(err))
	}
}
