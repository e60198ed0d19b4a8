package sync

import (
	"context"
	"fmt"
	"slices"
	gosync "sync"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/fields"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/query"
	"github.com/matheus3301/chatsync/internal/remote"
	"github.com/matheus3301/chatsync/internal/store"
	"github.com/matheus3301/chatsync/internal/syncerr"
	"go.uber.org/zap"
)

type observer interface {
	Start(ctx context.Context) error
	Stop()
}

// Registry owns the observers of one logged-in user: the per-user
// collections plus a set of per-chat observers that follows the user's
// active memberships.
type Registry struct {
	store  *store.Store
	remote remote.Store
	bus    *bus.Bus
	logger *zap.Logger

	mu      gosync.Mutex
	ctx     context.Context
	me      string
	running bool
	global  []observer
	chats   map[string][]observer
}

func NewRegistry(st *store.Store, rs remote.Store, b *bus.Bus, logger *zap.Logger) *Registry {
	return &Registry{
		store:  st,
		remote: rs,
		bus:    b,
		logger: logger.Named("registry"),
	}
}

// Start fetches the user's Person once and opens the observers. An observer
// that cannot subscribe is logged and left out.
func (r *Registry) Start(ctx context.Context, me string) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("registry already running for %s", r.me)
	}
	r.ctx, r.me, r.running = context.WithoutCancel(ctx), me, true
	r.chats = make(map[string][]observer)
	r.mu.Unlock()

	if err := r.fetchMe(ctx, me); err != nil {
		r.logger.Error("fetch current user", zap.String("user_id", me), zap.Error(err))
	}

	others, err := store.Max(ctx, r.store, model.Persons, "updatedAt", query.Where("objectId", query.Ne, fields.String(me)))
	if err != nil {
		return err
	}
	meV := fields.String(me)
	global := []observer{
		NewObserver(r.store, r.remote, model.Persons, query.Where("updatedAt", query.Gt, fields.Int64(others)), nil, r.bus, r.logger),
		NewObserver(r.store, r.remote, model.Friends, query.Where("userId", query.Eq, meV), nil, r.bus, r.logger),
		NewObserver(r.store, r.remote, model.Blockeds, query.Where("blockedId", query.Eq, meV), nil, r.bus, r.logger),
		NewObserver(r.store, r.remote, model.Blockeds, query.Where("blockerId", query.Eq, meV), nil, r.bus, r.logger),
		NewObserver(r.store, r.remote, model.Singles, query.Where("userId1", query.Eq, meV), nil, r.bus, r.logger),
		NewObserver(r.store, r.remote, model.Singles, query.Where("userId2", query.Eq, meV), nil, r.bus, r.logger),
		NewObserver(r.store, r.remote, model.Members, query.Where("userId", query.Eq, meV), r.membersChanged, r.bus, r.logger),
	}
	started := make([]observer, 0, len(global))
	for _, o := range global {
		if err := o.Start(ctx); err != nil {
			if ctx.Err() != nil {
				stopAll(started)
				return ctx.Err()
			}
			r.logger.Error("start observer", zap.Error(err))
			continue
		}
		started = append(started, o)
	}

	r.mu.Lock()
	r.global = started
	r.mu.Unlock()

	r.syncChats()
	return nil
}

// Stop closes every observer. The registry can be started again.
func (r *Registry) Stop() {
	r.mu.Lock()
	global, chats := r.global, r.chats
	r.global, r.chats, r.running = nil, nil, false
	r.mu.Unlock()

	stopAll(global)
	for _, obs := range chats {
		stopAll(obs)
	}
}

// Chats returns the chat ids that currently have observers, sorted.
func (r *Registry) Chats() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.chats))
	for id := range r.chats {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (r *Registry) fetchMe(ctx context.Context, me string) error {
	docs, err := r.remote.Query(ctx, model.Persons.Collection, query.Where("objectId", query.Eq, fields.String(me)))
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return fmt.Errorf("person %s not on remote: %w", me, syncerr.ErrDataIntegrity)
	}
	p, err := model.Persons.Decode(docs[0])
	if err != nil {
		return err
	}
	_, err = store.Apply(ctx, r.store, model.Persons, []*model.Person{p})
	return err
}

func (r *Registry) membersChanged(inserted, modified bool) {
	if inserted || modified {
		r.syncChats()
	}
}

// syncChats opens observers for chats the user became an active member of
// and closes those of chats they left.
func (r *Registry) syncChats() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	ctx, me := r.ctx, r.me
	r.mu.Unlock()

	members, err := store.Select(ctx, r.store, model.Members,
		query.Where("userId", query.Eq, fields.String(me)).And("isActive", query.Eq, fields.Bool(true)))
	if err != nil {
		r.logger.Error("list memberships", zap.Error(err))
		return
	}
	active := make(map[string]bool, len(members))
	for _, m := range members {
		active[m.ChatID] = true
	}

	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	var added []string
	var removed [][]observer
	for id := range active {
		if _, ok := r.chats[id]; !ok {
			added = append(added, id)
			r.chats[id] = nil
		}
	}
	for id, obs := range r.chats {
		if !active[id] {
			removed = append(removed, obs)
			delete(r.chats, id)
		}
	}
	r.mu.Unlock()

	for _, obs := range removed {
		stopAll(obs)
	}
	for _, id := range added {
		obs := r.startChat(ctx, id)
		r.mu.Lock()
		if cur, ok := r.chats[id]; ok && cur == nil && r.running {
			r.chats[id] = obs
			obs = nil
		}
		r.mu.Unlock()
		stopAll(obs)
	}
}

func (r *Registry) startChat(ctx context.Context, chatID string) []observer {
	chat := fields.String(chatID)
	byChat := query.Where("chatId", query.Eq, chat)
	since, err := store.Max(ctx, r.store, model.Messages, "updatedAt", byChat)
	if err != nil {
		r.logger.Error("newest local message", zap.String("chat_id", chatID), zap.Error(err))
	}
	log := r.logger.With(zap.String("chat_id", chatID))
	candidates := []observer{
		NewObserver(r.store, r.remote, model.Members, byChat, nil, r.bus, log),
		NewObserver(r.store, r.remote, model.Groups, byChat, nil, r.bus, log),
		NewObserver(r.store, r.remote, model.Details, byChat, nil, r.bus, log),
		NewObserver(r.store, r.remote, model.Messages, byChat.And("updatedAt", query.Gt, fields.Int64(since)), nil, r.bus, log),
	}
	out := make([]observer, 0, len(candidates))
	for _, o := range candidates {
		if err := o.Start(ctx); err != nil {
			log.Error("start chat observer", zap.Error(err))
			continue
		}
		out = append(out, o)
	}
	return out
}

func stopAll(obs []observer) {
	for _, o := range obs {
		o.Stop()
	}
}
