package api

import (
	"context"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/app"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/remote/memremote"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/store"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type env struct {
	client *Client
	st     *store.Store
}

func setup(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "chatsync.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	logger := zap.NewNop()
	st := store.New(db, logger)
	b := bus.New()
	machine := status.NewMachine(b)
	rt, err := app.New(app.Options{
		SessionName:     "test",
		SettingsPath:    filepath.Join(dir, "settings.toml"),
		CredentialsPath: filepath.Join(dir, "credentials.toml"),
		MediaDir:        filepath.Join(dir, "media"),
		Remote:          memremote.New(),
	}, st, b, machine, logger)
	if err != nil {
		t.Fatal(err)
	}
	if err := rt.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	srv := grpc.NewServer()
	NewSessionService("test", rt, machine, st, b, logger).Register(srv)
	NewChatService("test", rt, st, b).Register(srv)
	NewMessageService("test", rt, b).Register(srv)
	NewSyncService("test", rt, b).Register(srv)
	NewMediaService("test", rt, b).Register(srv)
	NewPeopleService(rt).Register(srv)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
		srv.Stop()
		rt.Stop()
		_ = st.Close()
	})
	return &env{client: NewClient(conn), st: st}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func wantCode(t *testing.T, err error, code codes.Code) {
	t.Helper()
	if got := grpcstatus.Code(err); got != code {
		t.Errorf("code = %s (%v), want %s", got, err, code)
	}
}

func (e *env) login(t *testing.T, userID string) {
	t.Helper()
	ctx := context.Background()
	resp, err := e.client.Login(ctx, LoginRequest{UserID: userID, Email: userID + "@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.UserID != userID {
		t.Fatalf("logged in as %q", resp.UserID)
	}
	waitFor(t, "person created", func() bool {
		var out PersonResponse
		return e.client.Call(ctx, "PeopleService", "Me", Empty{}, &out) == nil
	})
}

func TestLoggedOutRequestsFail(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	resp, err := e.client.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if resp.State != string(status.LoggedOut) || resp.UserID != "" {
		t.Errorf("status = %+v", resp)
	}
	_, err = e.client.ListChats(ctx, ListChatsRequest{})
	wantCode(t, err, codes.FailedPrecondition)
	wantCode(t, e.client.Logout(ctx), codes.FailedPrecondition)
}

func TestSendAndList(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.login(t, "u1")

	other := model.NewPerson("u2")
	other.Firstname, other.Fullname = "Bea", "Bea"
	if err := store.Create(ctx, e.st, model.Persons, other); err != nil {
		t.Fatal(err)
	}

	chatID, err := e.client.CreateSingle(ctx, "u2")
	if err != nil {
		t.Fatal(err)
	}
	if chatID != model.PairID("u1", "u2") {
		t.Errorf("chat id = %q", chatID)
	}
	msg, err := e.client.SendText(ctx, chatID, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if msg.Type != string(model.MessageText) || msg.UserID != "u1" {
		t.Errorf("message = %+v", msg)
	}

	msgs, err := e.client.Messages(ctx, chatID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Text != "hello" {
		t.Errorf("messages = %+v", msgs)
	}

	waitFor(t, "chat listed", func() bool {
		resp, err := e.client.ListChats(ctx, ListChatsRequest{})
		return err == nil && len(resp.Chats) == 1 && resp.Chats[0].LastMessageText == "hello"
	})

	var st SyncStatusResponse
	if err := e.client.Call(ctx, "SyncService", "Status", Empty{}, &st); err != nil {
		t.Fatal(err)
	}
	if len(st.Collections) == 0 {
		t.Error("no collections reported")
	}
}

func TestErrorCodes(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.login(t, "u1")

	_, err := e.client.CreateSingle(ctx, "u1")
	wantCode(t, err, codes.InvalidArgument)

	_, err = e.client.CreateSingle(ctx, "nobody")
	wantCode(t, err, codes.FailedPrecondition)

	err = e.client.Call(ctx, "PeopleService", "SetKeepMedia", KeepMediaRequest{Keep: "year"}, nil)
	wantCode(t, err, codes.InvalidArgument)

	err = e.client.Call(ctx, "ChatService", "Get", ChatRef{ChatID: "missing"}, nil)
	wantCode(t, err, codes.NotFound)
}

func TestWatchDeliversChatEvents(t *testing.T) {
	e := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.login(t, "u1")

	chatID, err := e.client.CreateGroup(ctx, "Team", nil)
	if err != nil {
		t.Fatal(err)
	}

	got := make(chan Event, 16)
	go func() {
		_ = e.client.Watch(ctx, "ChatService", WatchRequest{}, func(evt Event) error {
			got <- evt
			return nil
		})
	}()

	deadline := time.After(3 * time.Second)
	for {
		if _, err := e.client.SendText(ctx, chatID, "ping"); err != nil {
			t.Fatal(err)
		}
		select {
		case evt := <-got:
			if !strings.HasPrefix(evt.Kind, "chat.") || evt.Session != "test" || evt.ID == "" {
				t.Errorf("event = %+v", evt)
			}
			return
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatal("no chat event received")
		}
	}
}

func TestStructRoundTripKeepsMillis(t *testing.T) {
	in := Message{ID: "m1", CreatedAt: 1760000000123, Latitude: 1.5}
	s, err := toStruct(in)
	if err != nil {
		t.Fatal(err)
	}
	var out Message
	if err := fromStruct(s, &out); err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}
