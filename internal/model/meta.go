// Package model holds the synced entity types, their field tables and the
// deterministic id helpers.
package model

import (
	"crypto/md5"
	"encoding/hex"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Meta is the dirty-tracking state embedded in every syncable entity.
type Meta struct {
	ID           string
	NeverSynced  bool
	SyncRequired bool
	CreatedAt    int64
	UpdatedAt    int64
}

// NewMeta returns metadata for a record created locally. An empty id gets a
// fresh UUID.
func NewMeta(id string) Meta {
	if id == "" {
		id = uuid.NewString()
	}
	now := Now()
	return Meta{
		ID:           id,
		NeverSynced:  true,
		SyncRequired: true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Touch marks the record dirty and advances UpdatedAt strictly.
func (m *Meta) Touch(now int64) {
	if now <= m.UpdatedAt {
		now = m.UpdatedAt + 1
	}
	m.UpdatedAt = now
	m.SyncRequired = true
}

// Clean clears both dirty flags, as for records applied from the remote.
func (m *Meta) Clean() {
	m.NeverSynced = false
	m.SyncRequired = false
}

// Now is the current time in Unix milliseconds.
func Now() int64 {
	return time.Now().UnixMilli()
}

// PairID is the id of the private conversation between two users: md5 of
// the two ids sorted case-insensitively and concatenated.
func PairID(a, b string) string {
	ids := []string{a, b}
	slices.SortFunc(ids, func(x, y string) int {
		return strings.Compare(strings.ToLower(x), strings.ToLower(y))
	})
	return hash(strings.Join(ids, ""))
}

// LinkID is the id of a row that links two ids, e.g. a Detail or a Member
// (chatId, userId) or a Friend (userId, friendId).
func LinkID(a, b string) string {
	return hash(a + "-" + b)
}

func hash(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
