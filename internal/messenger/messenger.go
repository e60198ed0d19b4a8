// Package messenger is the mutation API the daemon exposes to clients. Every
// write goes through the store's guarded setters, so a change that sets a
// field to its current value does not dirty the record.
package messenger

import (
	"context"
	"fmt"
	"strings"

	"github.com/matheus3301/chatsync/internal/media"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/store"
	"github.com/matheus3301/chatsync/internal/syncerr"
	"go.uber.org/zap"
)

// Messenger acts on behalf of one signed-in user.
type Messenger struct {
	store  *store.Store
	media  *media.Pipeline
	me     string
	logger *zap.Logger
}

func New(st *store.Store, p *media.Pipeline, me string, logger *zap.Logger) *Messenger {
	return &Messenger{store: st, media: p, me: me, logger: logger.Named("messenger")}
}

// UserID returns the signed-in user.
func (m *Messenger) UserID() string { return m.me }

// Me returns the signed-in user's Person, or nil before it is known.
func (m *Messenger) Me(ctx context.Context) (*model.Person, error) {
	return store.Get(ctx, m.store, model.Persons, m.me)
}

// Login methods recorded on Person.
const (
	LoginEmail = "Email"
	LoginPhone = "Phone"
)

// CreatePerson stores the signed-in user's Person unless it already exists
// locally. Exactly one of email and phone is expected.
func (m *Messenger) CreatePerson(ctx context.Context, email, phone string) (*model.Person, error) {
	var out *model.Person
	err := m.store.Write(ctx, func(tx *store.Tx) error {
		cur, err := store.Get(ctx, tx, model.Persons, m.me)
		if err != nil {
			return err
		}
		if cur != nil {
			out = cur
			return nil
		}
		p := model.NewPerson(m.me)
		p.Email, p.Phone = email, phone
		p.LoginMethod = LoginEmail
		if email == "" {
			p.LoginMethod = LoginPhone
		}
		out = p
		return store.Put(ctx, tx, model.Persons, p)
	})
	return out, err
}

// Profile holds the editable parts of Person. Fullname is derived.
type Profile struct {
	Firstname string
	Lastname  string
	Country   string
	Location  string
	Status    string
}

// UpdateProfile writes the profile fields. An empty Status keeps the
// current one.
func (m *Messenger) UpdateProfile(ctx context.Context, p Profile) (bool, error) {
	return m.updateMe(ctx, func(r *model.Person) {
		r.Firstname = strings.TrimSpace(p.Firstname)
		r.Lastname = strings.TrimSpace(p.Lastname)
		r.Fullname = strings.TrimSpace(r.Firstname + " " + r.Lastname)
		r.Country = p.Country
		r.Location = p.Location
		if p.Status != "" {
			r.Status = p.Status
		}
	})
}

// SetNetwork sets the automatic download policy of one media type.
func (m *Messenger) SetNetwork(ctx context.Context, t model.MessageType, p model.NetworkPolicy) (bool, error) {
	if p < model.NetworkManual || p > model.NetworkAll {
		return false, fmt.Errorf("network policy %d: %w", p, syncerr.ErrUnsupported)
	}
	var name string
	switch t {
	case model.MessagePhoto:
		name = "networkPhoto"
	case model.MessageVideo:
		name = "networkVideo"
	case model.MessageAudio:
		name = "networkAudio"
	default:
		return false, fmt.Errorf("network policy for %s: %w", t, syncerr.ErrUnsupported)
	}
	return store.Set(ctx, m.store, model.Persons, m.me, name, int64(p))
}

// SetKeepMedia sets how long downloaded media is kept.
func (m *Messenger) SetKeepMedia(ctx context.Context, k model.KeepMedia) (bool, error) {
	if k < model.KeepWeek || k > model.KeepForever {
		return false, fmt.Errorf("keep media %d: %w", k, syncerr.ErrUnsupported)
	}
	return store.Set(ctx, m.store, model.Persons, m.me, "keepMedia", int64(k))
}

// SetPicture stores src as the user's avatar, uploads it and bumps
// pictureAt so other devices refetch it.
func (m *Messenger) SetPicture(ctx context.Context, src string) error {
	if _, err := m.media.Import(src, m.me, media.Avatar); err != nil {
		return err
	}
	if err := m.media.PutAvatar(ctx, m.me); err != nil {
		return fmt.Errorf("upload avatar: %w", err)
	}
	_, err := m.updateMe(ctx, func(r *model.Person) { r.PictureAt = model.Now() })
	return err
}

// Heartbeat records activity, as done when a client comes to the
// foreground or terminates.
func (m *Messenger) Heartbeat(ctx context.Context, terminate bool) (bool, error) {
	now := model.Now()
	return m.updateMe(ctx, func(r *model.Person) {
		if terminate {
			r.LastTerminate = now
		} else {
			r.LastActive = now
		}
	})
}

func (m *Messenger) updateMe(ctx context.Context, fn func(*model.Person)) (bool, error) {
	return store.Update(ctx, m.store, model.Persons, m.me, fn)
}
