package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds. Subscribers filter by prefix, e.g. "sync." or "chat.".
const (
	KindStatusChanged  = "session.status_changed"
	KindUploaded       = "sync.uploaded"
	KindUploadFailed   = "sync.upload_failed"
	KindDownloaded     = "sync.downloaded"
	KindMediaReady     = "media.ready"
	KindMediaManual    = "media.manual"
	KindMediaUploaded  = "media.uploaded"
	KindMediaFailed    = "media.failed"
	KindChatChanged    = "chat.changed"
	KindMessageChanged = "chat.message_changed"
)

// Uploaded is the payload of sync.uploaded and sync.upload_failed.
type Uploaded struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
	Err        string `json:"error,omitempty"`
}

// Downloaded is the payload of sync.downloaded.
type Downloaded struct {
	Collection string `json:"collection"`
	Inserted   int    `json:"inserted"`
	Modified   int    `json:"modified"`
}

// Media is the payload of media.* events.
type Media struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Path   string `json:"path,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Changed is the payload of chat.* events: the ids written by one commit.
type Changed struct {
	IDs []string `json:"ids"`
}
