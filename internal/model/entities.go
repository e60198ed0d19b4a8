package model

// NetworkPolicy controls automatic media download per media type.
type NetworkPolicy int32

const (
	NetworkManual NetworkPolicy = 1
	NetworkWiFi   NetworkPolicy = 2
	NetworkAll    NetworkPolicy = 3
)

func (p NetworkPolicy) String() string {
	switch p {
	case NetworkManual:
		return "manual"
	case NetworkWiFi:
		return "wifi-only"
	case NetworkAll:
		return "all"
	}
	return "unknown"
}

// ParseNetworkPolicy accepts the names printed by String.
func ParseNetworkPolicy(s string) (NetworkPolicy, bool) {
	for _, p := range []NetworkPolicy{NetworkManual, NetworkWiFi, NetworkAll} {
		if p.String() == s {
			return p, true
		}
	}
	return 0, false
}

// KeepMedia is the retention period for downloaded media.
type KeepMedia int32

const (
	KeepWeek    KeepMedia = 1
	KeepMonth   KeepMedia = 2
	KeepForever KeepMedia = 3
)

func (k KeepMedia) String() string {
	switch k {
	case KeepWeek:
		return "week"
	case KeepMonth:
		return "month"
	case KeepForever:
		return "forever"
	}
	return "unknown"
}

// ParseKeepMedia accepts the names printed by String.
func ParseKeepMedia(s string) (KeepMedia, bool) {
	for _, k := range []KeepMedia{KeepWeek, KeepMonth, KeepForever} {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// MessageType is the payload kind of a Message.
type MessageType string

const (
	MessageText     MessageType = "text"
	MessageEmoji    MessageType = "emoji"
	MessagePhoto    MessageType = "photo"
	MessageVideo    MessageType = "video"
	MessageAudio    MessageType = "audio"
	MessageLocation MessageType = "location"
)

// HasMedia reports whether messages of this type carry a blob.
func (t MessageType) HasMedia() bool {
	return t == MessagePhoto || t == MessageVideo || t == MessageAudio
}

type Person struct {
	Meta
	Email         string
	Phone         string
	Firstname     string
	Lastname      string
	Fullname      string
	Country       string
	Location      string
	PictureAt     int64
	Status        string
	KeepMedia     KeepMedia
	NetworkPhoto  NetworkPolicy
	NetworkVideo  NetworkPolicy
	NetworkAudio  NetworkPolicy
	Wallpaper     string
	LoginMethod   string
	PushID        string
	LastActive    int64
	LastTerminate int64
}

// NewPerson returns a locally created Person with the original defaults.
func NewPerson(id string) *Person {
	return &Person{
		Meta:         NewMeta(id),
		Status:       "Available",
		KeepMedia:    KeepForever,
		NetworkPhoto: NetworkAll,
		NetworkVideo: NetworkAll,
		NetworkAudio: NetworkAll,
	}
}

// PersonInitials returns the initials of first and last name.
func (p *Person) PersonInitials() string {
	return Initials(p.Firstname) + Initials(p.Lastname)
}

// Policy returns the network policy for a media message type.
func (p *Person) Policy(t MessageType) NetworkPolicy {
	switch t {
	case MessagePhoto:
		return p.NetworkPhoto
	case MessageVideo:
		return p.NetworkVideo
	case MessageAudio:
		return p.NetworkAudio
	}
	return NetworkAll
}

type Friend struct {
	Meta
	UserID    string
	FriendID  string
	IsDeleted bool
}

type Blocked struct {
	Meta
	BlockerID string
	BlockedID string
	IsDeleted bool
}

type Member struct {
	Meta
	ChatID   string
	UserID   string
	IsActive bool
}

type Group struct {
	Meta
	ChatID    string
	Name      string
	OwnerID   string
	IsDeleted bool
}

// Single is the one-to-one conversation between two users. Both sides'
// display data is denormalized onto the row.
type Single struct {
	Meta
	ChatID     string
	UserID1    string
	Fullname1  string
	Initials1  string
	PictureAt1 int64
	UserID2    string
	Fullname2  string
	Initials2  string
	PictureAt2 int64
}

// Detail is per-user, per-conversation viewer state.
type Detail struct {
	Meta
	ChatID     string
	UserID     string
	Typing     bool
	LastRead   int64
	MutedUntil int64
	IsDeleted  bool
	IsArchived bool
}

type Message struct {
	Meta
	ChatID        string
	UserID        string
	UserFullname  string
	UserInitials  string
	UserPictureAt int64
	Type          MessageType
	Text          string
	PhotoWidth    int
	PhotoHeight   int
	VideoDuration int
	AudioDuration int
	Latitude      float64
	Longitude     float64
	IsMediaQueued bool
	IsMediaFailed bool
	IsDeleted     bool
}

// Message delivery states shown to users.
const (
	StatusQueued = "queued"
	StatusFailed = "failed"
	StatusSent   = "sent"
)

// Status derives the per-message delivery state.
func (m *Message) Status() string {
	switch {
	case m.IsMediaFailed:
		return StatusFailed
	case m.SyncRequired || m.IsMediaQueued:
		return StatusQueued
	default:
		return StatusSent
	}
}

// Chat is the derived, read-optimized row of one conversation. It is never
// uploaded.
type Chat struct {
	ID              string
	IsGroup         bool
	IsPrivate       bool
	Details         string
	Initials        string
	UserID          string
	PictureAt       int64
	LastMessageID   string
	LastMessageText string
	LastMessageAt   int64
	Typing          bool
	LastRead        int64
	MutedUntil      int64
	UnreadCount     int
	IsDeleted       bool
	IsArchived      bool
	IsGroupDeleted  bool
}
