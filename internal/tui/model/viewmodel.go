package model

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/status"
)

const messagePage = 100

// Backend is the subset of the daemon client the view model uses.
type Backend interface {
	Status(ctx context.Context) (*api.StatusResponse, error)
	Login(ctx context.Context, req api.LoginRequest) (*api.StatusResponse, error)
	Logout(ctx context.Context) error
	SetWifi(ctx context.Context, on bool) (*api.StatusResponse, error)
	ListChats(ctx context.Context, req api.ListChatsRequest) (*api.ListChatsResponse, error)
	CreateSingle(ctx context.Context, userID string) (string, error)
	CreateGroup(ctx context.Context, name string, userIDs []string) (string, error)
	Members(ctx context.Context, chatID string) ([]string, error)
	Mute(ctx context.Context, chatID string, until int64) error
	Messages(ctx context.Context, chatID string, limit int) ([]api.Message, error)
	SendText(ctx context.Context, chatID, text string) (*api.Message, error)
	MarkRead(ctx context.Context, chatID string) error
	SetTyping(ctx context.Context, chatID string, typing bool) error
	Watch(ctx context.Context, service string, req api.WatchRequest, fn func(api.Event) error) error
}

var _ Backend = (*api.Client)(nil)

// ViewModel caches daemon state and signals UI refreshes.
type ViewModel struct {
	mu sync.RWMutex

	client       Backend
	Status       *api.StatusResponse
	Chats        []api.Chat
	Search       string
	Messages     []api.Message
	Members      []string
	ActiveChatID string
	Flash        Flash

	refreshCh chan struct{}
}

// NewViewModel creates a new view model connected to the daemon client.
func NewViewModel(c Backend) *ViewModel {
	return &ViewModel{
		client:    c,
		refreshCh: make(chan struct{}, 1),
	}
}

// RefreshCh returns the channel that signals UI refresh.
func (vm *ViewModel) RefreshCh() <-chan struct{} {
	return vm.refreshCh
}

func (vm *ViewModel) signalRefresh() {
	select {
	case vm.refreshCh <- struct{}{}:
	default:
	}
}

// LoadStatus fetches the session status.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	resp, err := vm.client.Status(ctx)
	if err != nil {
		return err
	}
	vm.setStatus(resp)
	return nil
}

func (vm *ViewModel) setStatus(resp *api.StatusResponse) {
	vm.mu.Lock()
	vm.Status = resp
	vm.mu.Unlock()
	vm.signalRefresh()
}

// LoggedOut reports whether the daemon waits for credentials.
func (vm *ViewModel) LoggedOut() bool {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.Status != nil && vm.Status.State == string(status.LoggedOut)
}

// LoadChats fetches the chat list, filtered by the current search.
func (vm *ViewModel) LoadChats(ctx context.Context) error {
	vm.mu.RLock()
	search := vm.Search
	vm.mu.RUnlock()

	resp, err := vm.client.ListChats(ctx, api.ListChatsRequest{Search: search})
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.Chats = resp.Chats
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// SetSearch changes the chat filter and reloads the list.
func (vm *ViewModel) SetSearch(ctx context.Context, search string) error {
	vm.mu.Lock()
	vm.Search = strings.TrimSpace(search)
	vm.mu.Unlock()
	return vm.LoadChats(ctx)
}

// OpenChat makes chatID active, loads its messages and marks it read.
func (vm *ViewModel) OpenChat(ctx context.Context, chatID string) error {
	vm.mu.Lock()
	vm.ActiveChatID = chatID
	vm.Messages = nil
	vm.Members = nil
	vm.mu.Unlock()

	if err := vm.LoadMessages(ctx); err != nil {
		return err
	}
	return vm.client.MarkRead(ctx, chatID)
}

// CloseChat clears the active chat.
func (vm *ViewModel) CloseChat() {
	vm.mu.Lock()
	vm.ActiveChatID = ""
	vm.Messages = nil
	vm.Members = nil
	vm.mu.Unlock()
}

// LoadMessages fetches messages for the active chat.
func (vm *ViewModel) LoadMessages(ctx context.Context) error {
	chatID := vm.ActiveChat()
	if chatID == "" {
		return nil
	}
	msgs, err := vm.client.Messages(ctx, chatID, messagePage)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	if vm.ActiveChatID == chatID {
		vm.Messages = msgs
	}
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// LoadMembers fetches the member list of the active chat.
func (vm *ViewModel) LoadMembers(ctx context.Context) error {
	chatID := vm.ActiveChat()
	if chatID == "" {
		return nil
	}
	ids, err := vm.client.Members(ctx, chatID)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.Members = ids
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// SendText sends a text message to the active chat.
func (vm *ViewModel) SendText(ctx context.Context, text string) error {
	chatID := vm.ActiveChat()
	if chatID == "" {
		return errors.New("no chat open")
	}
	if _, err := vm.client.SendText(ctx, chatID, text); err != nil {
		return err
	}
	_ = vm.client.SetTyping(ctx, chatID, false)
	vm.Flash.Set("Message sent", 3*time.Second)
	return vm.LoadMessages(ctx)
}

// SetTyping reports the typing state of the active chat.
func (vm *ViewModel) SetTyping(ctx context.Context, typing bool) error {
	chatID := vm.ActiveChat()
	if chatID == "" {
		return nil
	}
	return vm.client.SetTyping(ctx, chatID, typing)
}

// ToggleMute mutes the active chat for d, or unmutes it when it is muted.
func (vm *ViewModel) ToggleMute(ctx context.Context, d time.Duration) error {
	chat, ok := vm.ActiveChatInfo()
	if !ok {
		return errors.New("no chat open")
	}
	var until int64
	if chat.MutedUntil <= time.Now().UnixMilli() {
		until = time.Now().Add(d).UnixMilli()
	}
	if err := vm.client.Mute(ctx, chat.ID, until); err != nil {
		return err
	}
	return vm.LoadChats(ctx)
}

// Login stores credentials on the daemon.
func (vm *ViewModel) Login(ctx context.Context, userID, email, token string) error {
	resp, err := vm.client.Login(ctx, api.LoginRequest{
		UserID: strings.TrimSpace(userID),
		Email:  strings.TrimSpace(email),
		Token:  strings.TrimSpace(token),
	})
	if err != nil {
		return err
	}
	vm.setStatus(resp)
	return vm.LoadChats(ctx)
}

// Logout wipes the session on the daemon.
func (vm *ViewModel) Logout(ctx context.Context) error {
	if err := vm.client.Logout(ctx); err != nil {
		return err
	}
	vm.mu.Lock()
	vm.Chats = nil
	vm.mu.Unlock()
	vm.CloseChat()
	return vm.LoadStatus(ctx)
}

// SetWifi tells the daemon whether the network is Wi-Fi.
func (vm *ViewModel) SetWifi(ctx context.Context, on bool) error {
	resp, err := vm.client.SetWifi(ctx, on)
	if err != nil {
		return err
	}
	vm.setStatus(resp)
	return nil
}

// CreateSingle opens the one-to-one chat with userID.
func (vm *ViewModel) CreateSingle(ctx context.Context, userID string) (string, error) {
	id, err := vm.client.CreateSingle(ctx, userID)
	if err != nil {
		return "", err
	}
	return id, vm.LoadChats(ctx)
}

// CreateGroup creates a group chat with the given members.
func (vm *ViewModel) CreateGroup(ctx context.Context, name string, userIDs []string) (string, error) {
	id, err := vm.client.CreateGroup(ctx, name, userIDs)
	if err != nil {
		return "", err
	}
	return id, vm.LoadChats(ctx)
}

// Watch follows chat and session events and reloads what they touch. It
// returns when ctx is done or the daemon stream ends.
func (vm *ViewModel) Watch(ctx context.Context) error {
	errc := make(chan error, 2)
	go func() {
		errc <- vm.client.Watch(ctx, "ChatService", api.WatchRequest{}, func(evt api.Event) error {
			vm.handleChatEvent(ctx, evt)
			return nil
		})
	}()
	go func() {
		errc <- vm.client.Watch(ctx, "SessionService", api.WatchRequest{}, func(api.Event) error {
			_ = vm.LoadStatus(ctx)
			return nil
		})
	}()
	err := <-errc
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (vm *ViewModel) handleChatEvent(ctx context.Context, evt api.Event) {
	_ = vm.LoadChats(ctx)
	if evt.Kind == bus.KindMessageChanged {
		_ = vm.LoadMessages(ctx)
	}
}

// ActiveChat returns the ID of the open chat.
func (vm *ViewModel) ActiveChat() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.ActiveChatID
}

// ActiveChatInfo returns the cached row of the open chat.
func (vm *ViewModel) ActiveChatInfo() (api.Chat, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for _, c := range vm.Chats {
		if c.ID == vm.ActiveChatID {
			return c, true
		}
	}
	return api.Chat{}, false
}

// GetChats returns a snapshot of the current chat list.
func (vm *ViewModel) GetChats() []api.Chat {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.Chats
}

// GetMessages returns a snapshot of the current messages.
func (vm *ViewModel) GetMessages() []api.Message {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.Messages
}

// GetMembers returns the members of the open chat.
func (vm *ViewModel) GetMembers() []string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.Members
}

// GetStatus returns a snapshot of the session status.
func (vm *ViewModel) GetStatus() *api.StatusResponse {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.Status
}

// GetSearch returns the current chat filter.
func (vm *ViewModel) GetSearch() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.Search
}
