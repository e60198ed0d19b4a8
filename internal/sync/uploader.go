// Package sync moves dirty local records to the remote store and applies
// live-query batches from the remote back into the local store.
package sync

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/remote"
	"github.com/matheus3301/chatsync/internal/store"
	"github.com/matheus3301/chatsync/internal/syncerr"
	"go.uber.org/zap"
)

// DefaultUploadInterval is the uploader poll period.
const DefaultUploadInterval = 250 * time.Millisecond

// Gate reports whether uploads may run: a user is logged in and the device
// is online.
type Gate func() bool

// Uploader pushes the dirty records of one collection, oldest first, one at
// a time.
type Uploader[T any] struct {
	store    *store.Store
	remote   remote.Store
	schema   *model.Schema[T]
	gate     Gate
	interval time.Duration
	bus      *bus.Bus
	logger   *zap.Logger

	busy atomic.Bool
}

func NewUploader[T any](st *store.Store, rs remote.Store, s *model.Schema[T], gate Gate, interval time.Duration, b *bus.Bus, logger *zap.Logger) *Uploader[T] {
	if interval <= 0 {
		interval = DefaultUploadInterval
	}
	return &Uploader[T]{
		store:    st,
		remote:   rs,
		schema:   s,
		gate:     gate,
		interval: interval,
		bus:      b,
		logger:   logger.Named("upload").With(zap.String("collection", s.Collection)),
	}
}

func (u *Uploader[T]) Collection() string { return u.schema.Collection }

// Run ticks until ctx is done.
func (u *Uploader[T]) Run(ctx context.Context) {
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			u.Tick(ctx)
		}
	}
}

// Tick uploads the oldest dirty record if the gate is open and no upload is
// in flight. It reports whether a record was acknowledged.
func (u *Uploader[T]) Tick(ctx context.Context) bool {
	if u.gate != nil && !u.gate() {
		return false
	}
	if !u.busy.CompareAndSwap(false, true) {
		return false
	}
	defer u.busy.Store(false)

	r, err := store.NextDirty(ctx, u.store, u.schema)
	if err != nil {
		u.logger.Error("select dirty record", zap.Error(err))
		return false
	}
	if r == nil {
		return false
	}
	return u.upload(ctx, r)
}

func (u *Uploader[T]) upload(ctx context.Context, r *T) bool {
	meta := *u.schema.Meta(r)
	doc := u.schema.Encode(r)
	log := u.logger.With(zap.String("id", meta.ID), zap.Int64("updated_at", meta.UpdatedAt))

	var err error
	if meta.NeverSynced {
		err = u.remote.Create(ctx, u.schema.Collection, meta.ID, doc)
	} else {
		err = u.remote.Update(ctx, u.schema.Collection, meta.ID, doc)
	}
	if err != nil {
		u.failed(ctx, log, meta, err)
		return false
	}

	clean, err := store.MarkSynced(ctx, u.store, u.schema, meta.ID, meta.UpdatedAt)
	if err != nil {
		log.Error("acknowledge upload", zap.Error(err))
		return false
	}
	if err := u.store.SetState(ctx, "upload."+u.schema.Collection, strconv.FormatInt(meta.UpdatedAt, 10)); err != nil {
		log.Warn("save upload checkpoint", zap.Error(err))
	}
	log.Debug("uploaded", zap.Bool("created", meta.NeverSynced), zap.Bool("clean", clean))
	u.bus.Emit(bus.KindUploaded, bus.Uploaded{Collection: u.schema.Collection, ID: meta.ID})
	return true
}

func (u *Uploader[T]) failed(ctx context.Context, log *zap.Logger, meta model.Meta, err error) {
	switch {
	case ctx.Err() != nil:
		return
	case errors.Is(err, syncerr.ErrNotFound) && !meta.NeverSynced:
		log.Warn("remote lost the document, recreating", zap.Error(err))
		if err := store.MarkNeverSynced(ctx, u.store, u.schema, meta.ID); err != nil {
			log.Error("mark never synced", zap.Error(err))
		}
	case syncerr.IsTransient(err):
		log.Debug("upload deferred", zap.Error(err))
	default:
		log.Error("upload failed", zap.Error(err))
	}
	u.bus.Emit(bus.KindUploadFailed, bus.Uploaded{Collection: u.schema.Collection, ID: meta.ID, Err: err.Error()})
}

// Pending counts the records awaiting upload.
func (u *Uploader[T]) Pending(ctx context.Context) (int, error) {
	return store.CountDirty(ctx, u.store, u.schema)
}
