package api

import (
	"context"

	"github.com/matheus3301/chatsync/internal/app"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/messenger"
	"github.com/matheus3301/chatsync/internal/store"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// ChatService lists conversations and changes their membership and
// per-user state.
type ChatService struct {
	sessionName string
	runtime     *app.Runtime
	store       *store.Store
	bus         *bus.Bus
}

func NewChatService(sessionName string, rt *app.Runtime, st *store.Store, b *bus.Bus) *ChatService {
	return &ChatService{sessionName: sessionName, runtime: rt, store: st, bus: b}
}

func (s *ChatService) Register(r grpc.ServiceRegistrar) {
	svc := newService("ChatService")
	unary(svc, "List", s.List)
	unary(svc, "Get", s.Get)
	unary(svc, "CreateSingle", s.CreateSingle)
	unary(svc, "CreateGroup", s.CreateGroup)
	unary(svc, "RenameGroup", s.RenameGroup)
	unary(svc, "DeleteGroup", s.DeleteGroup)
	unary(svc, "AddMembers", s.AddMembers)
	unary(svc, "RemoveMember", s.RemoveMember)
	unary(svc, "Leave", s.Leave)
	unary(svc, "Members", s.Members)
	unary(svc, "MarkRead", s.MarkRead)
	unary(svc, "SetTyping", s.SetTyping)
	unary(svc, "Mute", s.Mute)
	unary(svc, "Archive", s.Archive)
	unary(svc, "Delete", s.Delete)
	svc.watch("Watch", s.sessionName, s.bus, "chat.")
	svc.register(r, s)
}

func (s *ChatService) List(ctx context.Context, req *ListChatsRequest) (*ListChatsResponse, error) {
	m, err := messengerOf(s.runtime)
	if err != nil {
		return nil, err
	}
	chats, err := m.Chats(ctx, messenger.ChatFilter{Archived: req.Archived, Search: req.Search})
	if err != nil {
		return nil, err
	}
	resp := &ListChatsResponse{Chats: make([]Chat, 0, len(chats))}
	for _, c := range chats {
		resp.Chats = append(resp.Chats, chatView(c))
	}
	if resp.Unread, err = chat.Unread(ctx, s.store); err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *ChatService) Get(ctx context.Context, req *ChatRef) (*ChatResponse, error) {
	m, err := messengerOf(s.runtime)
	if err != nil {
		return nil, err
	}
	c, err := m.Chat(ctx, req.ChatID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, grpcstatus.Errorf(codes.NotFound, "chat %q not found", req.ChatID)
	}
	return &ChatResponse{Chat: chatView(c)}, nil
}

func (s *ChatService) CreateSingle(ctx context.Context, req *UserRef) (*ChatRef, error) {
	m, err := messengerOf(s.runtime)
	if err != nil {
		return nil, err
	}
	id, err := m.CreateSingle(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	return &ChatRef{ChatID: id}, nil
}

func (s *ChatService) CreateGroup(ctx context.Context, req *CreateGroupRequest) (*ChatRef, error) {
	m, err := messengerOf(s.runtime)
	if err != nil {
		return nil, err
	}
	id, err := m.CreateGroup(ctx, req.Name, req.UserIDs)
	if err != nil {
		return nil, err
	}
	return &ChatRef{ChatID: id}, nil
}

func (s *ChatService) RenameGroup(ctx context.Context, req *RenameGroupRequest) (*Changed, error) {
	return set(s.runtime, func(m *messenger.Messenger) (bool, error) { return m.RenameGroup(ctx, req.ChatID, req.Name) })
}

func (s *ChatService) DeleteGroup(ctx context.Context, req *ChatRef) (*Empty, error) {
	return do(s.runtime, func(m *messenger.Messenger) error { return m.DeleteGroup(ctx, req.ChatID) })
}

func (s *ChatService) AddMembers(ctx context.Context, req *MembersRequest) (*Empty, error) {
	return do(s.runtime, func(m *messenger.Messenger) error { return m.AddMembers(ctx, req.ChatID, req.UserIDs) })
}

// RemoveMember removes the first user id of the request.
func (s *ChatService) RemoveMember(ctx context.Context, req *MembersRequest) (*Empty, error) {
	if len(req.UserIDs) != 1 {
		return nil, grpcstatus.Error(codes.InvalidArgument, "exactly one user id is required")
	}
	return do(s.runtime, func(m *messenger.Messenger) error { return m.RemoveMember(ctx, req.ChatID, req.UserIDs[0]) })
}

func (s *ChatService) Leave(ctx context.Context, req *ChatRef) (*Empty, error) {
	return do(s.runtime, func(m *messenger.Messenger) error { return m.LeaveGroup(ctx, req.ChatID) })
}

func (s *ChatService) Members(ctx context.Context, req *ChatRef) (*UserList, error) {
	m, err := messengerOf(s.runtime)
	if err != nil {
		return nil, err
	}
	ids, err := m.Members(ctx, req.ChatID)
	if err != nil {
		return nil, err
	}
	return &UserList{UserIDs: ids}, nil
}

func (s *ChatService) MarkRead(ctx context.Context, req *ChatRef) (*Changed, error) {
	return set(s.runtime, func(m *messenger.Messenger) (bool, error) { return m.MarkRead(ctx, req.ChatID) })
}

func (s *ChatService) SetTyping(ctx context.Context, req *TypingRequest) (*Changed, error) {
	return set(s.runtime, func(m *messenger.Messenger) (bool, error) { return m.SetTyping(ctx, req.ChatID, req.Typing) })
}

func (s *ChatService) Mute(ctx context.Context, req *MuteRequest) (*Changed, error) {
	return set(s.runtime, func(m *messenger.Messenger) (bool, error) { return m.Mute(ctx, req.ChatID, req.Until) })
}

func (s *ChatService) Archive(ctx context.Context, req *ArchiveRequest) (*Changed, error) {
	return set(s.runtime, func(m *messenger.Messenger) (bool, error) { return m.Archive(ctx, req.ChatID, req.Archived) })
}

func (s *ChatService) Delete(ctx context.Context, req *ChatRef) (*Changed, error) {
	return set(s.runtime, func(m *messenger.Messenger) (bool, error) { return m.DeleteChat(ctx, req.ChatID) })
}

func messengerOf(rt *app.Runtime) (*messenger.Messenger, error) {
	sess, err := rt.Active()
	if err != nil {
		return nil, err
	}
	return sess.Messenger, nil
}

func do(rt *app.Runtime, fn func(*messenger.Messenger) error) (*Empty, error) {
	m, err := messengerOf(rt)
	if err != nil {
		return nil, err
	}
	if err := fn(m); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

func set(rt *app.Runtime, fn func(*messenger.Messenger) (bool, error)) (*Changed, error) {
	m, err := messengerOf(rt)
	if err != nil {
		return nil, err
	}
	changed, err := fn(m)
	if err != nil {
		return nil, err
	}
	return &Changed{Changed: changed}, nil
}
