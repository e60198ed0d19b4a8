package messenger

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/matheus3301/chatsync/internal/fields"
	"github.com/matheus3301/chatsync/internal/media"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/query"
	"github.com/matheus3301/chatsync/internal/store"
	"github.com/matheus3301/chatsync/internal/syncerr"
)

// Placeholder texts shown as the last message of media and location sends.
const (
	TextPhoto    = "Photo message"
	TextVideo    = "Video message"
	TextAudio    = "Audio message"
	TextLocation = "Location message"
)

// SendText sends text, typed as emoji when it consists of emoji only.
func (m *Messenger) SendText(ctx context.Context, chatID, text string) (*model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("message text is empty: %w", syncerr.ErrUnsupported)
	}
	msg, err := m.newMessage(ctx, chatID)
	if err != nil {
		return nil, err
	}
	msg.Type = model.MessageText
	if IsEmoji(text) {
		msg.Type = model.MessageEmoji
	}
	msg.Text = text
	return msg, m.create(ctx, msg)
}

// MediaInfo carries the measurements of a media send.
type MediaInfo struct {
	Width    int
	Height   int
	Duration int
}

// SendMedia copies the file at src into the local media store and sends it.
// The media queue uploads the file afterwards.
func (m *Messenger) SendMedia(ctx context.Context, chatID string, kind media.Kind, src string, info MediaInfo) (*model.Message, error) {
	msg, err := m.newMessage(ctx, chatID)
	if err != nil {
		return nil, err
	}
	switch kind {
	case media.Photo:
		msg.Type, msg.Text = model.MessagePhoto, TextPhoto
		msg.PhotoWidth, msg.PhotoHeight = info.Width, info.Height
	case media.Video:
		msg.Type, msg.Text = model.MessageVideo, TextVideo
		msg.VideoDuration = info.Duration
	case media.Audio:
		msg.Type, msg.Text = model.MessageAudio, TextAudio
		msg.AudioDuration = info.Duration
	default:
		return nil, fmt.Errorf("send %s: %w", kind, syncerr.ErrUnsupported)
	}
	msg.IsMediaQueued = true
	if _, err := m.media.Import(src, msg.ID, kind); err != nil {
		return nil, err
	}
	return msg, m.create(ctx, msg)
}

func (m *Messenger) SendLocation(ctx context.Context, chatID string, lat, lon float64) (*model.Message, error) {
	msg, err := m.newMessage(ctx, chatID)
	if err != nil {
		return nil, err
	}
	msg.Type, msg.Text = model.MessageLocation, TextLocation
	msg.Latitude, msg.Longitude = lat, lon
	return msg, m.create(ctx, msg)
}

// Forward sends a copy of message id to chatID. Media is copied from the
// local file, so it must have been downloaded.
func (m *Messenger) Forward(ctx context.Context, chatID, id string) (*model.Message, error) {
	src, err := store.Get(ctx, m.store, model.Messages, id)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, fmt.Errorf("forward %s: %w", id, syncerr.ErrDataIntegrity)
	}
	msg, err := m.newMessage(ctx, chatID)
	if err != nil {
		return nil, err
	}
	msg.Type, msg.Text = src.Type, src.Text
	msg.PhotoWidth, msg.PhotoHeight = src.PhotoWidth, src.PhotoHeight
	msg.VideoDuration, msg.AudioDuration = src.VideoDuration, src.AudioDuration
	msg.Latitude, msg.Longitude = src.Latitude, src.Longitude

	if kind, ok := media.KindOf(src.Type); ok {
		data, err := os.ReadFile(m.media.Path(src.ID, kind))
		if err != nil {
			return nil, fmt.Errorf("forward %s: missing media file: %w", id, syncerr.ErrDataIntegrity)
		}
		if _, err := m.media.Store(data, msg.ID, kind); err != nil {
			return nil, err
		}
		msg.IsMediaQueued = true
	}
	return msg, m.create(ctx, msg)
}

// DeleteMessage soft-deletes one of the user's messages.
func (m *Messenger) DeleteMessage(ctx context.Context, id string) (bool, error) {
	msg, err := store.Get(ctx, m.store, model.Messages, id)
	if err != nil {
		return false, err
	}
	if msg == nil {
		return false, fmt.Errorf("message %s: %w", id, syncerr.ErrDataIntegrity)
	}
	if msg.UserID != m.me {
		return false, fmt.Errorf("message %s was sent by %s: %w", id, msg.UserID, syncerr.ErrUnauthorized)
	}
	return store.Set(ctx, m.store, model.Messages, id, "isDeleted", true)
}

// RetryMedia puts a failed upload back on the queue and clears a manual
// download sentinel, so the next attempt goes to the network.
func (m *Messenger) RetryMedia(ctx context.Context, id string) error {
	msg, err := store.Get(ctx, m.store, model.Messages, id)
	if err != nil {
		return err
	}
	if msg == nil {
		return fmt.Errorf("message %s: %w", id, syncerr.ErrDataIntegrity)
	}
	kind, ok := media.KindOf(msg.Type)
	if !ok {
		return fmt.Errorf("message %s has no media: %w", id, syncerr.ErrUnsupported)
	}
	if msg.UserID == m.me && msg.IsMediaFailed {
		_, err := store.Update(ctx, m.store, model.Messages, id, func(r *model.Message) {
			r.IsMediaFailed = false
			r.IsMediaQueued = true
		})
		return err
	}
	return m.media.ClearManual(id, kind)
}

// Messages returns the newest limit messages of a chat in display order.
// Deleted messages are left out.
func (m *Messenger) Messages(ctx context.Context, chatID string, limit int) ([]*model.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := store.Select(ctx, m.store, model.Messages,
		query.Where("chatId", query.Eq, fields.String(chatID)).And("isDeleted", query.Eq, fields.Bool(false)),
		store.OrderBy(query.Desc("createdAt")), store.Limit(limit))
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

func (m *Messenger) newMessage(ctx context.Context, chatID string) (*model.Message, error) {
	if chatID == "" {
		return nil, fmt.Errorf("chat id is empty: %w", syncerr.ErrUnsupported)
	}
	me, err := m.Me(ctx)
	if err != nil {
		return nil, err
	}
	if me == nil {
		return nil, fmt.Errorf("person %s: %w", m.me, syncerr.ErrDataIntegrity)
	}
	return &model.Message{
		Meta:          model.NewMeta(""),
		ChatID:        chatID,
		UserID:        me.ID,
		UserFullname:  me.Fullname,
		UserInitials:  me.PersonInitials(),
		UserPictureAt: me.PictureAt,
	}, nil
}

// create stores msg and brings the chat back for every participant.
func (m *Messenger) create(ctx context.Context, msg *model.Message) error {
	return m.store.Write(ctx, func(tx *store.Tx) error {
		if err := store.Put(ctx, tx, model.Messages, msg); err != nil {
			return err
		}
		details, err := store.Select(ctx, tx, model.Details, query.Where("chatId", query.Eq, fields.String(msg.ChatID)))
		if err != nil {
			return err
		}
		for _, d := range details {
			if _, err := store.UpdateTx(ctx, tx, model.Details, d.ID, func(d *model.Detail) {
				d.IsDeleted = false
				d.IsArchived = false
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// IsEmoji reports whether s holds only emoji, with their joiners and
// modifiers.
func IsEmoji(s string) bool {
	seen := false
	for _, r := range s {
		switch {
		case r == 0x200D, r == 0xFE0F, r == 0x20E3, r >= 0x1F3FB && r <= 0x1F3FF:
		case unicode.IsSpace(r):
		case unicode.Is(unicode.So, r), r >= 0x1F1E6 && r <= 0x1F1FF:
			seen = true
		default:
			return false
		}
	}
	return seen
}
