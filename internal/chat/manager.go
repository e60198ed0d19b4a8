// Package chat maintains the derived Chat rows: one per conversation, with
// display data, last message, unread count and typing state, recomputed
// incrementally as groups, singles, details and messages change.
package chat

import (
	"context"
	"fmt"
	gosync "sync"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/fields"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/query"
	"github.com/matheus3301/chatsync/internal/store"
	"github.com/matheus3301/chatsync/internal/syncerr"
	"go.uber.org/zap"
)

// rule derives the Chat patch for one changed record. A nil patch means
// nothing to write.
type rule func(ctx context.Context, q store.Querier, id string) (chatID string, p store.Patch, err error)

// Manager observes the local store on behalf of one viewer.
type Manager struct {
	store  *store.Store
	bus    *bus.Bus
	logger *zap.Logger

	mu     gosync.Mutex
	ctx    context.Context
	me     string
	tokens []store.Token
}

func New(st *store.Store, b *bus.Bus, logger *zap.Logger) *Manager {
	return &Manager{store: st, bus: b, logger: logger.Named("chat")}
}

// Start registers the observers for viewer me. Chats are rebuilt from local
// records when the table is empty.
func (m *Manager) Start(ctx context.Context, me string) error {
	m.mu.Lock()
	if m.tokens != nil {
		m.mu.Unlock()
		return fmt.Errorf("chat manager already running for %s", m.me)
	}
	m.ctx, m.me = context.WithoutCancel(ctx), me
	m.mu.Unlock()

	n, err := store.Count(ctx, m.store, model.Chats, nil)
	if err != nil {
		return err
	}
	if n == 0 {
		if err := m.Rebuild(ctx); err != nil {
			return fmt.Errorf("rebuild chats: %w", err)
		}
	}

	observers := []struct {
		table string
		fn    func(store.Change)
	}{
		{model.Groups.Table, m.handle("group", m.group)},
		{model.Singles.Table, m.handle("single", m.single)},
		{model.Details.Table, m.handle("detail", m.detail)},
		{model.Messages.Table, m.handle("message", m.message)},
		{model.Chats.Table, m.emit(bus.KindChatChanged)},
		{model.Messages.Table, m.emit(bus.KindMessageChanged)},
	}
	tokens := make([]store.Token, 0, len(observers))
	for _, o := range observers {
		tok, err := m.store.ObserveWhenIdle(ctx, o.table, o.fn)
		if err != nil {
			for _, t := range tokens {
				m.store.Unobserve(t)
			}
			return err
		}
		tokens = append(tokens, tok)
	}

	m.mu.Lock()
	m.tokens = tokens
	m.mu.Unlock()
	return nil
}

// Stop unregisters every observer.
func (m *Manager) Stop() {
	m.mu.Lock()
	tokens := m.tokens
	m.tokens = nil
	m.mu.Unlock()
	for _, t := range tokens {
		m.store.Unobserve(t)
	}
}

func (m *Manager) viewer() (context.Context, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctx, m.me
}

// Rebuild replays every local group, single, detail and message through the
// rules, messages oldest first.
func (m *Manager) Rebuild(ctx context.Context) error {
	groups, err := store.Select(ctx, m.store, model.Groups, nil)
	if err != nil {
		return err
	}
	for _, g := range groups {
		m.apply("group", m.group, g.ID)
	}
	singles, err := store.Select(ctx, m.store, model.Singles, nil)
	if err != nil {
		return err
	}
	for _, s := range singles {
		m.apply("single", m.single, s.ID)
	}
	details, err := store.Select(ctx, m.store, model.Details, nil)
	if err != nil {
		return err
	}
	for _, d := range details {
		m.apply("detail", m.detail, d.ID)
	}
	messages, err := store.Select(ctx, m.store, model.Messages, nil, store.OrderBy(query.Asc("createdAt")))
	if err != nil {
		return err
	}
	for _, msg := range messages {
		m.apply("message", m.message, msg.ID)
	}
	return nil
}

func (m *Manager) handle(kind string, r rule) func(store.Change) {
	return func(c store.Change) {
		for _, id := range c.IDs {
			m.apply(kind, r, id)
		}
	}
}

func (m *Manager) emit(kind string) func(store.Change) {
	return func(c store.Change) {
		m.bus.Emit(kind, bus.Changed{IDs: c.IDs})
	}
}

// apply runs r and merges its patch in one transaction. A failed merge is
// retried as a full write of the known fields.
func (m *Manager) apply(kind string, r rule, id string) {
	ctx, _ := m.viewer()
	if ctx == nil {
		ctx = context.Background()
	}
	var chatID string
	var patch store.Patch
	var ruleErr error
	err := m.store.Write(ctx, func(tx *store.Tx) error {
		chatID, patch, ruleErr = r(ctx, tx, id)
		if ruleErr != nil || patch == nil {
			return ruleErr
		}
		return store.Merge(ctx, tx, model.Chats, chatID, patch)
	})
	switch {
	case err == nil:
		return
	case ruleErr != nil:
		m.logger.Error("derive chat", zap.String("kind", kind), zap.String("id", id), zap.Error(ruleErr))
		return
	case patch == nil:
		m.logger.Error("chat write", zap.String("kind", kind), zap.String("id", id), zap.Error(err))
		return
	}
	m.logger.Warn("merge chat failed, rewriting", zap.String("chat_id", chatID), zap.Error(err))
	if err := m.rewrite(ctx, chatID, patch); err != nil {
		m.logger.Error("rewrite chat", zap.String("chat_id", chatID), zap.Error(err))
	}
}

func (m *Manager) rewrite(ctx context.Context, chatID string, p store.Patch) error {
	return m.store.Write(ctx, func(tx *store.Tx) error {
		c, err := store.Get(ctx, tx, model.Chats, chatID)
		if err != nil {
			return err
		}
		if c == nil {
			c = &model.Chat{ID: chatID}
		}
		for name, v := range p {
			f, ok := model.Chats.Field(name)
			if !ok {
				return fmt.Errorf("chat has no field %q: %w", name, syncerr.ErrUnsupported)
			}
			val, err := fields.FromAny(v)
			if err != nil {
				return err
			}
			f.Set(c, val)
		}
		return store.Put(ctx, tx, model.Chats, c)
	})
}

func missing(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, syncerr.ErrDataIntegrity)
}

func (m *Manager) group(ctx context.Context, q store.Querier, id string) (string, store.Patch, error) {
	g, err := store.Get(ctx, q, model.Groups, id)
	if err != nil {
		return "", nil, err
	}
	if g == nil {
		return "", nil, missing("group", id)
	}
	return g.ChatID, store.Patch{
		"isGroup":        true,
		"isPrivate":      false,
		"details":        g.Name,
		"initials":       model.Initials(g.Name),
		"isGroupDeleted": g.IsDeleted,
	}, nil
}

func (m *Manager) single(ctx context.Context, q store.Querier, id string) (string, store.Patch, error) {
	s, err := store.Get(ctx, q, model.Singles, id)
	if err != nil {
		return "", nil, err
	}
	if s == nil {
		return "", nil, missing("single", id)
	}
	_, me := m.viewer()
	p := store.Patch{"isGroup": false, "isPrivate": true}
	if s.UserID1 != me {
		p["details"], p["initials"], p["userId"], p["pictureAt"] = s.Fullname1, s.Initials1, s.UserID1, s.PictureAt1
	} else {
		p["details"], p["initials"], p["userId"], p["pictureAt"] = s.Fullname2, s.Initials2, s.UserID2, s.PictureAt2
	}
	return s.ChatID, p, nil
}

func (m *Manager) detail(ctx context.Context, q store.Querier, id string) (string, store.Patch, error) {
	d, err := store.Get(ctx, q, model.Details, id)
	if err != nil {
		return "", nil, err
	}
	if d == nil {
		return "", nil, missing("detail", id)
	}
	_, me := m.viewer()
	if d.UserID == me {
		unread, err := unreadCount(ctx, q, d.ChatID, me, d.LastRead)
		if err != nil {
			return "", nil, err
		}
		return d.ChatID, store.Patch{
			"lastRead":    d.LastRead,
			"mutedUntil":  d.MutedUntil,
			"unreadCount": unread,
			"isDeleted":   d.IsDeleted,
			"isArchived":  d.IsArchived,
		}, nil
	}
	typing, err := store.Count(ctx, q, model.Details, query.Where("chatId", query.Eq, fields.String(d.ChatID)).
		And("userId", query.Ne, fields.String(me)).
		And("typing", query.Eq, fields.Bool(true)))
	if err != nil {
		return "", nil, err
	}
	return d.ChatID, store.Patch{"typing": typing > 0}, nil
}

func (m *Manager) message(ctx context.Context, q store.Querier, id string) (string, store.Patch, error) {
	msg, err := store.Get(ctx, q, model.Messages, id)
	if err != nil {
		return "", nil, err
	}
	if msg == nil {
		return "", nil, missing("message", id)
	}
	_, me := m.viewer()
	chat, err := store.Get(ctx, q, model.Chats, msg.ChatID)
	if err != nil {
		return "", nil, err
	}

	if !msg.IsDeleted {
		p, err := activeMessage(ctx, q, chat, msg, me)
		return msg.ChatID, p, err
	}
	if chat == nil {
		return msg.ChatID, nil, nil
	}
	if msg.ID != chat.LastMessageID {
		p, err := unreadPatch(ctx, q, chat, msg, me)
		return msg.ChatID, p, err
	}

	newest, err := store.First(ctx, q, model.Messages,
		query.Where("chatId", query.Eq, fields.String(msg.ChatID)).And("isDeleted", query.Eq, fields.Bool(false)),
		store.OrderBy(query.Desc("createdAt")))
	if err != nil {
		return "", nil, err
	}
	if newest == nil {
		return msg.ChatID, store.Patch{
			"lastMessageId":   "",
			"lastMessageText": "",
			"lastMessageAt":   int64(0),
			"unreadCount":     0,
		}, nil
	}
	p := lastMessage(newest)
	unread, err := unreadPatch(ctx, q, chat, msg, me)
	if err == nil && unread == nil {
		unread, err = unreadPatch(ctx, q, chat, newest, me)
	}
	if err != nil {
		return "", nil, err
	}
	for k, v := range unread {
		p[k] = v
	}
	return msg.ChatID, p, nil
}

func activeMessage(ctx context.Context, q store.Querier, chat *model.Chat, msg *model.Message, me string) (store.Patch, error) {
	if chat == nil {
		p := lastMessage(msg)
		unread, err := unreadCount(ctx, q, msg.ChatID, me, 0)
		if err != nil {
			return nil, err
		}
		p["unreadCount"] = unread
		return p, nil
	}
	unread, err := unreadPatch(ctx, q, chat, msg, me)
	if err != nil {
		return nil, err
	}
	if msg.CreatedAt <= chat.LastMessageAt {
		return unread, nil
	}
	p := lastMessage(msg)
	for k, v := range unread {
		p[k] = v
	}
	return p, nil
}

func lastMessage(msg *model.Message) store.Patch {
	return store.Patch{
		"lastMessageId":   msg.ID,
		"lastMessageText": msg.Text,
		"lastMessageAt":   msg.CreatedAt,
	}
}

// unreadPatch recounts unread messages when msg can have changed the count:
// it is from someone else and newer than the viewer's last read.
func unreadPatch(ctx context.Context, q store.Querier, chat *model.Chat, msg *model.Message, me string) (store.Patch, error) {
	if msg.UserID == me || msg.CreatedAt <= chat.LastRead {
		return nil, nil
	}
	n, err := unreadCount(ctx, q, chat.ID, me, chat.LastRead)
	if err != nil {
		return nil, err
	}
	return store.Patch{"unreadCount": n}, nil
}

func unreadCount(ctx context.Context, q store.Querier, chatID, me string, lastRead int64) (int, error) {
	return store.Count(ctx, q, model.Messages, query.Where("chatId", query.Eq, fields.String(chatID)).
		And("userId", query.Ne, fields.String(me)).
		And("createdAt", query.Gt, fields.Int64(lastRead)).
		And("isDeleted", query.Eq, fields.Bool(false)))
}

// Unread returns the total unread count over chats that are not deleted.
func Unread(ctx context.Context, q store.Querier) (int, error) {
	chats, err := store.Select(ctx, q, model.Chats, query.Where("isDeleted", query.Eq, fields.Bool(false)))
	if err != nil {
		return 0, err
	}
	total := 0
	for _, c := range chats {
		total += c.UnreadCount
	}
	return total, nil
}
