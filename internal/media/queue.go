package media

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/cryptor"
	"github.com/matheus3301/chatsync/internal/fields"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/query"
	"github.com/matheus3301/chatsync/internal/remote"
	"github.com/matheus3301/chatsync/internal/store"
	"github.com/matheus3301/chatsync/internal/syncerr"
	"go.uber.org/zap"
)

// Queue uploads the media of the user's queued messages, oldest first, one
// at a time.
type Queue struct {
	store    *store.Store
	pipeline *Pipeline
	blobs    remote.Blobs
	cryptor  cryptor.Cryptor
	me       string
	gate     func() bool
	interval time.Duration
	bus      *bus.Bus
	logger   *zap.Logger

	busy atomic.Bool
}

func NewQueue(st *store.Store, p *Pipeline, me string, gate func() bool, interval time.Duration, b *bus.Bus, logger *zap.Logger) *Queue {
	if interval <= 0 {
		interval = time.Second
	}
	return &Queue{
		store:    st,
		pipeline: p,
		blobs:    p.blobs,
		cryptor:  p.cryptor,
		me:       me,
		gate:     gate,
		interval: interval,
		bus:      b,
		logger:   logger.Named("media-upload"),
	}
}

// Run ticks until ctx is done.
func (q *Queue) Run(ctx context.Context) {
	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.Tick(ctx)
		}
	}
}

// Tick uploads the oldest queued media. It reports whether one was
// uploaded.
func (q *Queue) Tick(ctx context.Context) bool {
	if q.gate != nil && !q.gate() {
		return false
	}
	if !q.busy.CompareAndSwap(false, true) {
		return false
	}
	defer q.busy.Store(false)

	msg, err := store.First(ctx, q.store, model.Messages,
		query.Where("userId", query.Eq, fields.String(q.me)).
			And("isMediaQueued", query.Eq, fields.Bool(true)).
			And("isMediaFailed", query.Eq, fields.Bool(false)),
		store.OrderBy(query.Asc("updatedAt")))
	if err != nil {
		q.logger.Error("select queued media", zap.Error(err))
		return false
	}
	if msg == nil {
		return false
	}

	log := q.logger.With(zap.String("message_id", msg.ID), zap.String("chat_id", msg.ChatID))
	kind, ok := KindOf(msg.Type)
	if !ok {
		log.Error("queued message has no media", zap.String("type", string(msg.Type)))
		q.fail(ctx, log, msg, fmt.Errorf("message type %s: %w", msg.Type, syncerr.ErrDataIntegrity))
		return false
	}

	if err := q.upload(ctx, msg, kind); err != nil {
		if ctx.Err() != nil {
			return false
		}
		if syncerr.IsTransient(err) {
			log.Debug("media upload deferred", zap.Error(err))
			return false
		}
		q.fail(ctx, log, msg, err)
		return false
	}
	if _, err := store.Set(ctx, q.store, model.Messages, msg.ID, "isMediaQueued", false); err != nil {
		log.Error("clear media queued", zap.Error(err))
		return false
	}
	q.bus.Emit(bus.KindMediaUploaded, bus.Media{Name: msg.ID, Kind: string(kind), Path: q.pipeline.Path(msg.ID, kind)})
	return true
}

func (q *Queue) upload(ctx context.Context, msg *model.Message, kind Kind) error {
	data, err := os.ReadFile(q.pipeline.Path(msg.ID, kind))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("media file of %s: %w", msg.ID, syncerr.ErrDataIntegrity)
	}
	if err != nil {
		return err
	}
	sealed, err := q.cryptor.Encrypt(data, msg.ChatID)
	if err != nil {
		return err
	}
	return q.blobs.Put(ctx, kind.bucket(), kind.Key(msg.ID), sealed)
}

func (q *Queue) fail(ctx context.Context, log *zap.Logger, msg *model.Message, cause error) {
	log.Error("media upload failed", zap.Error(cause))
	if _, err := store.Set(ctx, q.store, model.Messages, msg.ID, "isMediaFailed", true); err != nil {
		log.Error("mark media failed", zap.Error(err))
	}
	q.bus.Emit(bus.KindMediaFailed, bus.Media{Name: msg.ID, Reason: cause.Error()})
}

// Import copies a file into the local media store under name, so the queue
// can upload it.
func (p *Pipeline) Import(src, name string, kind Kind) (string, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", src, err)
	}
	return p.Store(data, name, kind)
}

// Store writes data as the local copy of name.
func (p *Pipeline) Store(data []byte, name string, kind Kind) (string, error) {
	dest := p.Path(name, kind)
	if err := os.MkdirAll(filepath.Dir(dest), 0o700); err != nil {
		return "", err
	}
	if err := os.WriteFile(dest, data, 0o600); err != nil {
		return "", fmt.Errorf("write %s: %w", dest, err)
	}
	return dest, nil
}

// PutAvatar uploads the local avatar of name. Avatars are stored in the
// clear.
func (p *Pipeline) PutAvatar(ctx context.Context, name string) error {
	data, err := os.ReadFile(p.Path(name, Avatar))
	if err != nil {
		return fmt.Errorf("read avatar: %w", err)
	}
	return p.blobs.Put(ctx, Avatar.bucket(), Avatar.Key(name), data)
}
