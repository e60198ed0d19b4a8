package api

import (
	"github.com/matheus3301/chatsync/internal/model"
	csync "github.com/matheus3301/chatsync/internal/sync"
)

// Empty is the request or response of methods without fields.
type Empty struct{}

// Event is one bus event delivered on a watch stream.
type Event struct {
	ID         string `json:"id"`
	Session    string `json:"session"`
	Kind       string `json:"kind"`
	OccurredAt int64  `json:"occurredAt"`
	Payload    any    `json:"payload,omitempty"`
}

// WatchRequest narrows a watch stream to kinds below the service prefix,
// e.g. "message_changed" on the chat service.
type WatchRequest struct {
	Kind string `json:"kind,omitempty"`
}

type StatusResponse struct {
	Session  string `json:"session"`
	State    string `json:"state"`
	UserID   string `json:"userId,omitempty"`
	Online   bool   `json:"online"`
	Wifi     bool   `json:"wifi"`
	Remote   string `json:"remote,omitempty"`
	Chats    int    `json:"chats"`
	Unread   int    `json:"unread"`
	UptimeMs int64  `json:"uptimeMs"`
}

type LoginRequest struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
	Token  string `json:"token,omitempty"`
}

type SetWifiRequest struct {
	Wifi bool `json:"wifi"`
}

// Chat is the client view of a derived chat row.
type Chat struct {
	ID              string `json:"id"`
	IsGroup         bool   `json:"isGroup"`
	IsPrivate       bool   `json:"isPrivate"`
	Title           string `json:"title"`
	Initials        string `json:"initials"`
	UserID          string `json:"userId,omitempty"`
	PictureAt       int64  `json:"pictureAt,omitempty"`
	LastMessageID   string `json:"lastMessageId,omitempty"`
	LastMessageText string `json:"lastMessageText,omitempty"`
	LastMessageAt   int64  `json:"lastMessageAt,omitempty"`
	Typing          bool   `json:"typing"`
	LastRead        int64  `json:"lastRead,omitempty"`
	MutedUntil      int64  `json:"mutedUntil,omitempty"`
	Unread          int    `json:"unread"`
	Archived        bool   `json:"archived"`
	GroupDeleted    bool   `json:"groupDeleted"`
}

func chatView(c *model.Chat) Chat {
	return Chat{
		ID:              c.ID,
		IsGroup:         c.IsGroup,
		IsPrivate:       c.IsPrivate,
		Title:           c.Details,
		Initials:        c.Initials,
		UserID:          c.UserID,
		PictureAt:       c.PictureAt,
		LastMessageID:   c.LastMessageID,
		LastMessageText: c.LastMessageText,
		LastMessageAt:   c.LastMessageAt,
		Typing:          c.Typing,
		LastRead:        c.LastRead,
		MutedUntil:      c.MutedUntil,
		Unread:          c.UnreadCount,
		Archived:        c.IsArchived,
		GroupDeleted:    c.IsGroupDeleted,
	}
}

type ListChatsRequest struct {
	Archived bool   `json:"archived,omitempty"`
	Search   string `json:"search,omitempty"`
}

type ListChatsResponse struct {
	Chats  []Chat `json:"chats"`
	Unread int    `json:"unread"`
}

type ChatRef struct {
	ChatID string `json:"chatId"`
}

type ChatResponse struct {
	Chat Chat `json:"chat"`
}

type UserRef struct {
	UserID string `json:"userId"`
}

type UserList struct {
	UserIDs []string `json:"userIds"`
}

type CreateGroupRequest struct {
	Name    string   `json:"name"`
	UserIDs []string `json:"userIds,omitempty"`
}

type RenameGroupRequest struct {
	ChatID string `json:"chatId"`
	Name   string `json:"name"`
}

type MembersRequest struct {
	ChatID  string   `json:"chatId"`
	UserIDs []string `json:"userIds"`
}

type TypingRequest struct {
	ChatID string `json:"chatId"`
	Typing bool   `json:"typing"`
}

// MuteRequest mutes until Until, in Unix milliseconds; zero unmutes.
type MuteRequest struct {
	ChatID string `json:"chatId"`
	Until  int64  `json:"until"`
}

type ArchiveRequest struct {
	ChatID   string `json:"chatId"`
	Archived bool   `json:"archived"`
}

// Changed reports whether a guarded setter wrote anything.
type Changed struct {
	Changed bool `json:"changed"`
}

// Message is the client view of a message.
type Message struct {
	ID        string  `json:"id"`
	ChatID    string  `json:"chatId"`
	UserID    string  `json:"userId"`
	Sender    string  `json:"sender"`
	Initials  string  `json:"initials"`
	Type      string  `json:"type"`
	Text      string  `json:"text"`
	Width     int     `json:"width,omitempty"`
	Height    int     `json:"height,omitempty"`
	Duration  int     `json:"duration,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	Status    string  `json:"status"`
	CreatedAt int64   `json:"createdAt"`
	Deleted   bool    `json:"deleted"`
}

func messageView(m *model.Message) Message {
	v := Message{
		ID:        m.ID,
		ChatID:    m.ChatID,
		UserID:    m.UserID,
		Sender:    m.UserFullname,
		Initials:  m.UserInitials,
		Type:      string(m.Type),
		Text:      m.Text,
		Width:     m.PhotoWidth,
		Height:    m.PhotoHeight,
		Latitude:  m.Latitude,
		Longitude: m.Longitude,
		Status:    m.Status(),
		CreatedAt: m.CreatedAt,
		Deleted:   m.IsDeleted,
	}
	switch m.Type {
	case model.MessageVideo:
		v.Duration = m.VideoDuration
	case model.MessageAudio:
		v.Duration = m.AudioDuration
	}
	return v
}

type ListMessagesRequest struct {
	ChatID string `json:"chatId"`
	Limit  int    `json:"limit,omitempty"`
}

type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
}

type SendTextRequest struct {
	ChatID string `json:"chatId"`
	Text   string `json:"text"`
}

// SendMediaRequest sends the file at Path, which the daemon must be able to
// read.
type SendMediaRequest struct {
	ChatID   string `json:"chatId"`
	Kind     string `json:"kind"`
	Path     string `json:"path"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	Duration int    `json:"duration,omitempty"`
}

type SendLocationRequest struct {
	ChatID    string  `json:"chatId"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type ForwardRequest struct {
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
}

type MessageRef struct {
	MessageID string `json:"messageId"`
}

type MessageResponse struct {
	Message Message `json:"message"`
}

type Collection struct {
	Collection string `json:"collection"`
	Pending    int    `json:"pending"`
	Uploaded   string `json:"uploaded,omitempty"`
	Downloaded string `json:"downloaded,omitempty"`
}

func collectionView(c csync.CollectionStatus) Collection {
	return Collection{
		Collection: c.Collection,
		Pending:    c.Pending,
		Uploaded:   c.Uploaded,
		Downloaded: c.Downloaded,
	}
}

type SyncStatusResponse struct {
	Collections []Collection `json:"collections"`
	Chats       []string     `json:"chats"`
	Dropped     uint64       `json:"dropped"`
}

type FlushResponse struct {
	Uploaded int `json:"uploaded"`
}

// MediaRequest names a media item: the message id (or user id for avatars)
// and its kind.
type MediaRequest struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	ChatID string `json:"chatId,omitempty"`
}

type MediaResponse struct {
	State  string `json:"state"`
	Path   string `json:"path,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Person is the client view of a user profile.
type Person struct {
	ID           string `json:"id"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Firstname    string `json:"firstname,omitempty"`
	Lastname     string `json:"lastname,omitempty"`
	Fullname     string `json:"fullname,omitempty"`
	Country      string `json:"country,omitempty"`
	Location     string `json:"location,omitempty"`
	Status       string `json:"status,omitempty"`
	PictureAt    int64  `json:"pictureAt,omitempty"`
	KeepMedia    string `json:"keepMedia"`
	NetworkPhoto string `json:"networkPhoto"`
	NetworkVideo string `json:"networkVideo"`
	NetworkAudio string `json:"networkAudio"`
	LastActive   int64  `json:"lastActive,omitempty"`
}

func personView(p *model.Person) Person {
	return Person{
		ID:           p.ID,
		Email:        p.Email,
		Phone:        p.Phone,
		Firstname:    p.Firstname,
		Lastname:     p.Lastname,
		Fullname:     p.Fullname,
		Country:      p.Country,
		Location:     p.Location,
		Status:       p.Status,
		PictureAt:    p.PictureAt,
		KeepMedia:    p.KeepMedia.String(),
		NetworkPhoto: p.NetworkPhoto.String(),
		NetworkVideo: p.NetworkVideo.String(),
		NetworkAudio: p.NetworkAudio.String(),
		LastActive:   p.LastActive,
	}
}

type PersonResponse struct {
	Person Person `json:"person"`
}

type ProfileRequest struct {
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	Country   string `json:"country,omitempty"`
	Location  string `json:"location,omitempty"`
	Status    string `json:"status,omitempty"`
}

type PathRequest struct {
	Path string `json:"path"`
}

// NetworkRequest sets the policy ("manual", "wifi-only", "all") of one
// media type ("photo", "video", "audio").
type NetworkRequest struct {
	Type   string `json:"type"`
	Policy string `json:"policy"`
}

type KeepMediaRequest struct {
	Keep string `json:"keep"`
}

type BlockState struct {
	Blocked bool `json:"blocked"`
	Blocker bool `json:"blocker"`
}
