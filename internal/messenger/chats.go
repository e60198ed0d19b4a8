package messenger

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/matheus3301/chatsync/internal/fields"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/query"
	"github.com/matheus3301/chatsync/internal/store"
	"github.com/matheus3301/chatsync/internal/syncerr"
)

// CreateSingle returns the private chat with userID, creating the Single,
// Details and Members on first use. Both Persons must be stored locally.
func (m *Messenger) CreateSingle(ctx context.Context, userID string) (string, error) {
	if userID == "" || userID == m.me {
		return "", fmt.Errorf("single chat with %q: %w", userID, syncerr.ErrUnsupported)
	}
	chatID := model.PairID(m.me, userID)
	err := m.store.Write(ctx, func(tx *store.Tx) error {
		cur, err := store.Get(ctx, tx, model.Singles, chatID)
		if err != nil || cur != nil {
			return err
		}
		me, err := store.Get(ctx, tx, model.Persons, m.me)
		if err != nil {
			return err
		}
		other, err := store.Get(ctx, tx, model.Persons, userID)
		if err != nil {
			return err
		}
		if me == nil || other == nil {
			return fmt.Errorf("single chat with %s: recipient is not stored locally: %w", userID, syncerr.ErrDataIntegrity)
		}
		s := &model.Single{
			Meta:       model.NewMeta(chatID),
			ChatID:     chatID,
			UserID1:    me.ID,
			Fullname1:  me.Fullname,
			Initials1:  me.PersonInitials(),
			PictureAt1: me.PictureAt,
			UserID2:    other.ID,
			Fullname2:  other.Fullname,
			Initials2:  other.PersonInitials(),
			PictureAt2: other.PictureAt,
		}
		if err := store.Put(ctx, tx, model.Singles, s); err != nil {
			return err
		}
		return addParticipants(ctx, tx, chatID, []string{m.me, userID})
	})
	if err != nil {
		return "", err
	}
	return chatID, nil
}

// CreateGroup creates a group owned by the user. The user is always a
// member.
func (m *Messenger) CreateGroup(ctx context.Context, name string, userIDs []string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("group name is empty: %w", syncerr.ErrUnsupported)
	}
	ids := members(m.me, userIDs)
	chatID := uuid.NewString()
	err := m.store.Write(ctx, func(tx *store.Tx) error {
		g := &model.Group{Meta: model.NewMeta(chatID), ChatID: chatID, Name: name, OwnerID: m.me}
		if err := store.Put(ctx, tx, model.Groups, g); err != nil {
			return err
		}
		return addParticipants(ctx, tx, chatID, ids)
	})
	if err != nil {
		return "", err
	}
	return chatID, nil
}

func (m *Messenger) RenameGroup(ctx context.Context, chatID, name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, fmt.Errorf("group name is empty: %w", syncerr.ErrUnsupported)
	}
	return store.Update(ctx, m.store, model.Groups, chatID, func(g *model.Group) { g.Name = name })
}

// DeleteGroup marks the group deleted. Only the owner may delete it; other
// members leave instead.
func (m *Messenger) DeleteGroup(ctx context.Context, chatID string) error {
	return m.store.Write(ctx, func(tx *store.Tx) error {
		g, err := store.Get(ctx, tx, model.Groups, chatID)
		if err != nil {
			return err
		}
		if g == nil {
			return fmt.Errorf("group %s: %w", chatID, syncerr.ErrDataIntegrity)
		}
		if g.OwnerID != m.me {
			return fmt.Errorf("group %s is owned by %s: %w", chatID, g.OwnerID, syncerr.ErrUnauthorized)
		}
		_, err = store.UpdateTx(ctx, tx, model.Groups, chatID, func(g *model.Group) { g.IsDeleted = true })
		return err
	})
}

// AddMembers activates userIDs in the chat, creating Members and Details
// that do not exist yet.
func (m *Messenger) AddMembers(ctx context.Context, chatID string, userIDs []string) error {
	return m.store.Write(ctx, func(tx *store.Tx) error {
		g, err := store.Get(ctx, tx, model.Groups, chatID)
		if err != nil {
			return err
		}
		if g == nil {
			return fmt.Errorf("group %s: %w", chatID, syncerr.ErrDataIntegrity)
		}
		return addParticipants(ctx, tx, chatID, userIDs)
	})
}

// RemoveMember deactivates userID in the chat.
func (m *Messenger) RemoveMember(ctx context.Context, chatID, userID string) error {
	return softDelete(ctx, m.store, model.Members, model.LinkID(chatID, userID), func(r *model.Member) { r.IsActive = false })
}

// LeaveGroup removes the user from the chat.
func (m *Messenger) LeaveGroup(ctx context.Context, chatID string) error {
	return m.RemoveMember(ctx, chatID, m.me)
}

// Members returns the active member ids of a chat.
func (m *Messenger) Members(ctx context.Context, chatID string) ([]string, error) {
	rows, err := store.Select(ctx, m.store, model.Members,
		query.Where("chatId", query.Eq, fields.String(chatID)).And("isActive", query.Eq, fields.Bool(true)))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.UserID)
	}
	return ids, nil
}

// addParticipants reactivates existing Members and creates the missing
// Members and Details.
func addParticipants(ctx context.Context, tx *store.Tx, chatID string, userIDs []string) error {
	for _, u := range userIDs {
		id := model.LinkID(chatID, u)
		mem, err := store.Get(ctx, tx, model.Members, id)
		if err != nil {
			return err
		}
		if mem == nil {
			err = store.Put(ctx, tx, model.Members, &model.Member{Meta: model.NewMeta(id), ChatID: chatID, UserID: u, IsActive: true})
		} else {
			_, err = store.UpdateTx(ctx, tx, model.Members, id, func(r *model.Member) { r.IsActive = true })
		}
		if err != nil {
			return err
		}

		det, err := store.Get(ctx, tx, model.Details, id)
		if err != nil {
			return err
		}
		if det == nil {
			if err := store.Put(ctx, tx, model.Details, &model.Detail{Meta: model.NewMeta(id), ChatID: chatID, UserID: u}); err != nil {
				return err
			}
		}
	}
	return nil
}

func members(me string, ids []string) []string {
	out := []string{me}
	for _, id := range ids {
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

// MarkRead sets the user's lastRead in the chat to now.
func (m *Messenger) MarkRead(ctx context.Context, chatID string) (bool, error) {
	now := model.Now()
	return m.updateDetail(ctx, chatID, func(d *model.Detail) {
		if now > d.LastRead {
			d.LastRead = now
		}
	})
}

func (m *Messenger) SetTyping(ctx context.Context, chatID string, typing bool) (bool, error) {
	return m.updateDetail(ctx, chatID, func(d *model.Detail) { d.Typing = typing })
}

// Mute silences the chat until the given Unix millisecond time; 0 unmutes.
func (m *Messenger) Mute(ctx context.Context, chatID string, until int64) (bool, error) {
	return m.updateDetail(ctx, chatID, func(d *model.Detail) { d.MutedUntil = until })
}

func (m *Messenger) Archive(ctx context.Context, chatID string, archived bool) (bool, error) {
	return m.updateDetail(ctx, chatID, func(d *model.Detail) { d.IsArchived = archived })
}

// DeleteChat hides the chat for the user until the next message.
func (m *Messenger) DeleteChat(ctx context.Context, chatID string) (bool, error) {
	return m.updateDetail(ctx, chatID, func(d *model.Detail) { d.IsDeleted = true })
}

func (m *Messenger) updateDetail(ctx context.Context, chatID string, fn func(*model.Detail)) (bool, error) {
	return store.Update(ctx, m.store, model.Details, model.LinkID(chatID, m.me), fn)
}

// ChatFilter selects which chats Chats returns.
type ChatFilter struct {
	Archived bool
	Search   string
}

// Chats lists the derived chat rows, most recent first. Deleted chats are
// never listed.
func (m *Messenger) Chats(ctx context.Context, f ChatFilter) ([]*model.Chat, error) {
	rows, err := store.Select(ctx, m.store, model.Chats,
		query.Where("isDeleted", query.Eq, fields.Bool(false)).And("isArchived", query.Eq, fields.Bool(f.Archived)),
		store.OrderBy(query.Desc("lastMessageAt")))
	if err != nil {
		return nil, err
	}
	if f.Search == "" {
		return rows, nil
	}
	needle := strings.ToLower(f.Search)
	return slices.DeleteFunc(rows, func(c *model.Chat) bool {
		return !strings.Contains(strings.ToLower(c.Details), needle)
	}), nil
}

// Chat returns one derived chat row, or nil.
func (m *Messenger) Chat(ctx context.Context, chatID string) (*model.Chat, error) {
	return store.Get(ctx, m.store, model.Chats, chatID)
}
