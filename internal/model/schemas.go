package model

// Field tables. Remote names follow the wire documents, columns follow the
// local migrations.

var Persons = NewSynced("Person", "persons", func(r *Person) *Meta { return &r.Meta },
	String("email", "email", func(r *Person) *string { return &r.Email }),
	String("phone", "phone", func(r *Person) *string { return &r.Phone }),
	String("firstname", "firstname", func(r *Person) *string { return &r.Firstname }),
	String("lastname", "lastname", func(r *Person) *string { return &r.Lastname }),
	String("fullname", "fullname", func(r *Person) *string { return &r.Fullname }),
	String("country", "country", func(r *Person) *string { return &r.Country }),
	String("location", "location", func(r *Person) *string { return &r.Location }),
	Integer("pictureAt", "picture_at", func(r *Person) *int64 { return &r.PictureAt }),
	String("status", "status", func(r *Person) *string { return &r.Status }),
	Integer("keepMedia", "keep_media", func(r *Person) *KeepMedia { return &r.KeepMedia }),
	Integer("networkPhoto", "network_photo", func(r *Person) *NetworkPolicy { return &r.NetworkPhoto }),
	Integer("networkVideo", "network_video", func(r *Person) *NetworkPolicy { return &r.NetworkVideo }),
	Integer("networkAudio", "network_audio", func(r *Person) *NetworkPolicy { return &r.NetworkAudio }),
	String("wallpaper", "wallpaper", func(r *Person) *string { return &r.Wallpaper }),
	String("loginMethod", "login_method", func(r *Person) *string { return &r.LoginMethod }),
	String("pushId", "push_id", func(r *Person) *string { return &r.PushID }),
	Integer("lastActive", "last_active", func(r *Person) *int64 { return &r.LastActive }),
	Integer("lastTerminate", "last_terminate", func(r *Person) *int64 { return &r.LastTerminate }),
)

var Friends = NewSynced("Friend", "friends", func(r *Friend) *Meta { return &r.Meta },
	String("userId", "user_id", func(r *Friend) *string { return &r.UserID }),
	String("friendId", "friend_id", func(r *Friend) *string { return &r.FriendID }),
	Bool("isDeleted", "is_deleted", func(r *Friend) *bool { return &r.IsDeleted }),
)

var Blockeds = NewSynced("Blocked", "blockeds", func(r *Blocked) *Meta { return &r.Meta },
	String("blockerId", "blocker_id", func(r *Blocked) *string { return &r.BlockerID }),
	String("blockedId", "blocked_id", func(r *Blocked) *string { return &r.BlockedID }),
	Bool("isDeleted", "is_deleted", func(r *Blocked) *bool { return &r.IsDeleted }),
)

var Members = NewSynced("Member", "members", func(r *Member) *Meta { return &r.Meta },
	String("chatId", "chat_id", func(r *Member) *string { return &r.ChatID }),
	String("userId", "user_id", func(r *Member) *string { return &r.UserID }),
	Bool("isActive", "is_active", func(r *Member) *bool { return &r.IsActive }),
)

var Groups = NewSynced("Group", "groups", func(r *Group) *Meta { return &r.Meta },
	String("chatId", "chat_id", func(r *Group) *string { return &r.ChatID }),
	String("name", "name", func(r *Group) *string { return &r.Name }),
	String("ownerId", "owner_id", func(r *Group) *string { return &r.OwnerID }),
	Bool("isDeleted", "is_deleted", func(r *Group) *bool { return &r.IsDeleted }),
)

var Singles = NewSynced("Single", "singles", func(r *Single) *Meta { return &r.Meta },
	String("chatId", "chat_id", func(r *Single) *string { return &r.ChatID }),
	String("userId1", "user_id1", func(r *Single) *string { return &r.UserID1 }),
	String("fullname1", "fullname1", func(r *Single) *string { return &r.Fullname1 }),
	String("initials1", "initials1", func(r *Single) *string { return &r.Initials1 }),
	Integer("pictureAt1", "picture_at1", func(r *Single) *int64 { return &r.PictureAt1 }),
	String("userId2", "user_id2", func(r *Single) *string { return &r.UserID2 }),
	String("fullname2", "fullname2", func(r *Single) *string { return &r.Fullname2 }),
	String("initials2", "initials2", func(r *Single) *string { return &r.Initials2 }),
	Integer("pictureAt2", "picture_at2", func(r *Single) *int64 { return &r.PictureAt2 }),
)

var Details = NewSynced("Detail", "details", func(r *Detail) *Meta { return &r.Meta },
	String("chatId", "chat_id", func(r *Detail) *string { return &r.ChatID }),
	String("userId", "user_id", func(r *Detail) *string { return &r.UserID }),
	Bool("typing", "typing", func(r *Detail) *bool { return &r.Typing }),
	Integer("lastRead", "last_read", func(r *Detail) *int64 { return &r.LastRead }),
	Integer("mutedUntil", "muted_until", func(r *Detail) *int64 { return &r.MutedUntil }),
	Bool("isDeleted", "is_deleted", func(r *Detail) *bool { return &r.IsDeleted }),
	Bool("isArchived", "is_archived", func(r *Detail) *bool { return &r.IsArchived }),
)

var Messages = NewSynced("Message", "messages", func(r *Message) *Meta { return &r.Meta },
	String("chatId", "chat_id", func(r *Message) *string { return &r.ChatID }),
	String("userId", "user_id", func(r *Message) *string { return &r.UserID }),
	String("userFullname", "user_fullname", func(r *Message) *string { return &r.UserFullname }),
	String("userInitials", "user_initials", func(r *Message) *string { return &r.UserInitials }),
	Integer("userPictureAt", "user_picture_at", func(r *Message) *int64 { return &r.UserPictureAt }),
	String("type", "type", func(r *Message) *MessageType { return &r.Type }),
	String("text", "text", func(r *Message) *string { return &r.Text }),
	Integer("photoWidth", "photo_width", func(r *Message) *int { return &r.PhotoWidth }),
	Integer("photoHeight", "photo_height", func(r *Message) *int { return &r.PhotoHeight }),
	Integer("videoDuration", "video_duration", func(r *Message) *int { return &r.VideoDuration }),
	Integer("audioDuration", "audio_duration", func(r *Message) *int { return &r.AudioDuration }),
	Float("latitude", "latitude", func(r *Message) *float64 { return &r.Latitude }),
	Float("longitude", "longitude", func(r *Message) *float64 { return &r.Longitude }),
	Bool("isMediaQueued", "is_media_queued", func(r *Message) *bool { return &r.IsMediaQueued }),
	Bool("isMediaFailed", "is_media_failed", func(r *Message) *bool { return &r.IsMediaFailed }),
	Bool("isDeleted", "is_deleted", func(r *Message) *bool { return &r.IsDeleted }),
)

var Chats = NewDerived("Chat", "chats", func(r *Chat) *string { return &r.ID },
	Bool("isGroup", "is_group", func(r *Chat) *bool { return &r.IsGroup }),
	Bool("isPrivate", "is_private", func(r *Chat) *bool { return &r.IsPrivate }),
	String("details", "details", func(r *Chat) *string { return &r.Details }),
	String("initials", "initials", func(r *Chat) *string { return &r.Initials }),
	String("userId", "user_id", func(r *Chat) *string { return &r.UserID }),
	Integer("pictureAt", "picture_at", func(r *Chat) *int64 { return &r.PictureAt }),
	String("lastMessageId", "last_message_id", func(r *Chat) *string { return &r.LastMessageID }),
	String("lastMessageText", "last_message_text", func(r *Chat) *string { return &r.LastMessageText }),
	Integer("lastMessageAt", "last_message_at", func(r *Chat) *int64 { return &r.LastMessageAt }),
	Bool("typing", "typing", func(r *Chat) *bool { return &r.Typing }),
	Integer("lastRead", "last_read", func(r *Chat) *int64 { return &r.LastRead }),
	Integer("mutedUntil", "muted_until", func(r *Chat) *int64 { return &r.MutedUntil }),
	Integer("unreadCount", "unread_count", func(r *Chat) *int { return &r.UnreadCount }),
	Bool("isDeleted", "is_deleted", func(r *Chat) *bool { return &r.IsDeleted }),
	Bool("isArchived", "is_archived", func(r *Chat) *bool { return &r.IsArchived }),
	Bool("isGroupDeleted", "is_group_deleted", func(r *Chat) *bool { return &r.IsGroupDeleted }),
)
