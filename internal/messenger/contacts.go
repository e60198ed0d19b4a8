package messenger

import (
	"context"

	"github.com/matheus3301/chatsync/internal/fields"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/query"
	"github.com/matheus3301/chatsync/internal/store"
)

// AddFriend creates the Friend link, or revives a removed one.
func (m *Messenger) AddFriend(ctx context.Context, userID string) error {
	id := model.LinkID(m.me, userID)
	return m.store.Write(ctx, func(tx *store.Tx) error {
		cur, err := store.Get(ctx, tx, model.Friends, id)
		if err != nil {
			return err
		}
		if cur != nil {
			_, err := store.UpdateTx(ctx, tx, model.Friends, id, func(f *model.Friend) { f.IsDeleted = false })
			return err
		}
		return store.Put(ctx, tx, model.Friends, &model.Friend{Meta: model.NewMeta(id), UserID: m.me, FriendID: userID})
	})
}

// RemoveFriend soft-deletes the Friend link. A missing link is not an error.
func (m *Messenger) RemoveFriend(ctx context.Context, userID string) error {
	return softDelete(ctx, m.store, model.Friends, model.LinkID(m.me, userID), func(f *model.Friend) { f.IsDeleted = true })
}

// Block records that the user blocks userID, reviving an earlier block.
func (m *Messenger) Block(ctx context.Context, userID string) error {
	id := model.LinkID(m.me, userID)
	return m.store.Write(ctx, func(tx *store.Tx) error {
		cur, err := store.Get(ctx, tx, model.Blockeds, id)
		if err != nil {
			return err
		}
		if cur != nil {
			_, err := store.UpdateTx(ctx, tx, model.Blockeds, id, func(b *model.Blocked) { b.IsDeleted = false })
			return err
		}
		return store.Put(ctx, tx, model.Blockeds, &model.Blocked{Meta: model.NewMeta(id), BlockerID: m.me, BlockedID: userID})
	})
}

func (m *Messenger) Unblock(ctx context.Context, userID string) error {
	return softDelete(ctx, m.store, model.Blockeds, model.LinkID(m.me, userID), func(b *model.Blocked) { b.IsDeleted = true })
}

// Friends returns the ids of the user's current friends.
func (m *Messenger) Friends(ctx context.Context) ([]string, error) {
	rows, err := store.Select(ctx, m.store, model.Friends,
		query.Where("userId", query.Eq, fields.String(m.me)).And("isDeleted", query.Eq, fields.Bool(false)))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, f := range rows {
		ids = append(ids, f.FriendID)
	}
	return ids, nil
}

// IsBlocked reports whether the user blocks userID.
func (m *Messenger) IsBlocked(ctx context.Context, userID string) (bool, error) {
	return m.blockExists(ctx, m.me, userID)
}

// IsBlocker reports whether userID blocks the user.
func (m *Messenger) IsBlocker(ctx context.Context, userID string) (bool, error) {
	return m.blockExists(ctx, userID, m.me)
}

func (m *Messenger) blockExists(ctx context.Context, blocker, blocked string) (bool, error) {
	n, err := store.Count(ctx, m.store, model.Blockeds,
		query.Where("blockerId", query.Eq, fields.String(blocker)).
			And("blockedId", query.Eq, fields.String(blocked)).
			And("isDeleted", query.Eq, fields.Bool(false)))
	return n > 0, err
}

func softDelete[T any](ctx context.Context, st *store.Store, s *model.Schema[T], id string, fn func(*T)) error {
	return st.Write(ctx, func(tx *store.Tx) error {
		cur, err := store.Get(ctx, tx, s, id)
		if err != nil || cur == nil {
			return err
		}
		_, err = store.UpdateTx(ctx, tx, s, id, fn)
		return err
	})
}
