package messenger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/matheus3301/chatsync/internal/connectivity"
	"github.com/matheus3301/chatsync/internal/cryptor"
	"github.com/matheus3301/chatsync/internal/media"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/remote"
	"github.com/matheus3301/chatsync/internal/remote/memremote"
	"github.com/matheus3301/chatsync/internal/store"
	"github.com/matheus3301/chatsync/internal/syncerr"
	"go.uber.org/zap"
)

type fixture struct {
	st *store.Store
	rs *memremote.Remote
	p  *media.Pipeline
	m  *Messenger
}

func setup(t *testing.T, me string) *fixture {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	st := store.New(db, zap.NewNop())
	t.Cleanup(func() { _ = st.Close() })

	rs := memremote.New()
	profile := func(ctx context.Context) (*model.Person, error) { return store.Get(ctx, st, model.Persons, me) }
	p := media.NewPipeline(t.TempDir(), rs, cryptor.Plain{}, connectivity.Static{Online: true}, profile, nil, zap.NewNop())
	m := New(st, p, me, zap.NewNop())
	if _, err := m.CreatePerson(context.Background(), me+"@example.com", ""); err != nil {
		t.Fatal(err)
	}
	return &fixture{st: st, rs: rs, p: p, m: m}
}

func (f *fixture) person(t *testing.T, id, first, last string) {
	t.Helper()
	p := model.NewPerson(id)
	p.Firstname, p.Lastname, p.Fullname = first, last, first+" "+last
	if err := store.Create(context.Background(), f.st, model.Persons, p); err != nil {
		t.Fatal(err)
	}
}

func mustGet[T any](t *testing.T, st *store.Store, s *model.Schema[T], id string) *T {
	t.Helper()
	r, err := store.Get(context.Background(), st, s, id)
	if err != nil {
		t.Fatal(err)
	}
	if r == nil {
		t.Fatalf("%s %s not stored", s.Collection, id)
	}
	return r
}

func TestCreatePersonKeepsExisting(t *testing.T) {
	f := setup(t, "me")
	ctx := context.Background()

	p, err := f.m.CreatePerson(ctx, "", "+100")
	if err != nil {
		t.Fatal(err)
	}
	if p.Email != "me@example.com" || p.LoginMethod != LoginEmail {
		t.Errorf("person was replaced: %+v", p)
	}
	if p.KeepMedia != model.KeepForever || p.NetworkPhoto != model.NetworkAll {
		t.Errorf("defaults = keep %d photo %d", p.KeepMedia, p.NetworkPhoto)
	}
}

func TestProfileSettersAreGuarded(t *testing.T) {
	f := setup(t, "me")
	ctx := context.Background()

	changed, err := f.m.UpdateProfile(ctx, Profile{Firstname: " Ada ", Lastname: "Lovelace"})
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Fatal("first update reported no change")
	}
	p := mustGet(t, f.st, model.Persons, "me")
	if p.Fullname != "Ada Lovelace" || p.Status != "Available" {
		t.Errorf("fullname=%q status=%q", p.Fullname, p.Status)
	}

	if _, err := store.MarkSynced(ctx, f.st, model.Persons, "me", p.UpdatedAt); err != nil {
		t.Fatal(err)
	}
	changed, err = f.m.UpdateProfile(ctx, Profile{Firstname: "Ada", Lastname: "Lovelace"})
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Error("same values reported a change")
	}
	if p := mustGet(t, f.st, model.Persons, "me"); p.SyncRequired {
		t.Error("same values dirtied the record")
	}

	if _, err := f.m.SetNetwork(ctx, model.MessageVideo, model.NetworkWiFi); err != nil {
		t.Fatal(err)
	}
	if _, err := f.m.SetKeepMedia(ctx, model.KeepWeek); err != nil {
		t.Fatal(err)
	}
	p = mustGet(t, f.st, model.Persons, "me")
	if p.NetworkVideo != model.NetworkWiFi || p.KeepMedia != model.KeepWeek || !p.SyncRequired {
		t.Errorf("video=%d keep=%d dirty=%v", p.NetworkVideo, p.KeepMedia, p.SyncRequired)
	}

	if _, err := f.m.SetNetwork(ctx, model.MessageText, model.NetworkAll); !errors.Is(err, syncerr.ErrUnsupported) {
		t.Errorf("text policy err = %v, want ErrUnsupported", err)
	}
	if _, err := f.m.SetKeepMedia(ctx, 9); !errors.Is(err, syncerr.ErrUnsupported) {
		t.Errorf("keep 9 err = %v, want ErrUnsupported", err)
	}
}

func TestCreateSingle(t *testing.T) {
	f := setup(t, "me")
	ctx := context.Background()

	if _, err := f.m.CreateSingle(ctx, "u2"); !errors.Is(err, syncerr.ErrDataIntegrity) {
		t.Fatalf("missing recipient: err = %v, want ErrDataIntegrity", err)
	}

	f.person(t, "u2", "Grace", "Hopper")
	chatID, err := f.m.CreateSingle(ctx, "u2")
	if err != nil {
		t.Fatal(err)
	}
	if chatID != model.PairID("u2", "me") {
		t.Errorf("chat id = %s, want the pair id", chatID)
	}
	s := mustGet(t, f.st, model.Singles, chatID)
	if s.UserID2 != "u2" || s.Fullname2 != "Grace Hopper" || s.Initials2 != "GH" {
		t.Errorf("single = %+v", s)
	}
	for _, u := range []string{"me", "u2"} {
		mustGet(t, f.st, model.Details, model.LinkID(chatID, u))
		if !mustGet(t, f.st, model.Members, model.LinkID(chatID, u)).IsActive {
			t.Errorf("member %s inactive", u)
		}
	}

	again, err := f.m.CreateSingle(ctx, "u2")
	if err != nil {
		t.Fatal(err)
	}
	if again != chatID {
		t.Errorf("second create = %s, want %s", again, chatID)
	}
	if _, err := f.m.CreateSingle(ctx, "me"); !errors.Is(err, syncerr.ErrUnsupported) {
		t.Errorf("single with self: err = %v", err)
	}
}

func TestGroupLifecycle(t *testing.T) {
	f := setup(t, "me")
	ctx := context.Background()

	chatID, err := f.m.CreateGroup(ctx, "Team", []string{"u2", "u3", "u2"})
	if err != nil {
		t.Fatal(err)
	}
	ids, err := f.m.Members(ctx, chatID)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 3 {
		t.Fatalf("members = %v, want me, u2, u3", ids)
	}

	if err := f.m.RemoveMember(ctx, chatID, "u3"); err != nil {
		t.Fatal(err)
	}
	if ids, _ := f.m.Members(ctx, chatID); len(ids) != 2 {
		t.Errorf("after remove: %v", ids)
	}
	if err := f.m.AddMembers(ctx, chatID, []string{"u3", "u4"}); err != nil {
		t.Fatal(err)
	}
	if ids, _ := f.m.Members(ctx, chatID); len(ids) != 4 {
		t.Errorf("after add: %v", ids)
	}

	if _, err := f.m.RenameGroup(ctx, chatID, "  "); !errors.Is(err, syncerr.ErrUnsupported) {
		t.Errorf("blank rename: err = %v", err)
	}
	if _, err := f.m.RenameGroup(ctx, chatID, "Crew"); err != nil {
		t.Fatal(err)
	}
	if g := mustGet(t, f.st, model.Groups, chatID); g.Name != "Crew" || g.OwnerID != "me" {
		t.Errorf("group = %+v", g)
	}

	other := New(f.st, f.p, "u2", zap.NewNop())
	if err := other.DeleteGroup(ctx, chatID); !errors.Is(err, syncerr.ErrUnauthorized) {
		t.Errorf("non-owner delete: err = %v, want ErrUnauthorized", err)
	}
	if err := f.m.DeleteGroup(ctx, chatID); err != nil {
		t.Fatal(err)
	}
	if !mustGet(t, f.st, model.Groups, chatID).IsDeleted {
		t.Error("group not deleted")
	}
	if err := f.m.AddMembers(ctx, "nope", []string{"u5"}); !errors.Is(err, syncerr.ErrDataIntegrity) {
		t.Errorf("add to missing group: err = %v", err)
	}
}

func TestSendRevivesChatForEveryone(t *testing.T) {
	f := setup(t, "me")
	ctx := context.Background()
	f.person(t, "u2", "Grace", "Hopper")
	chatID, err := f.m.CreateSingle(ctx, "u2")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.m.DeleteChat(ctx, chatID); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Update(ctx, f.st, model.Details, model.LinkID(chatID, "u2"), func(d *model.Detail) { d.IsArchived = true }); err != nil {
		t.Fatal(err)
	}

	msg, err := f.m.SendText(ctx, chatID, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if msg.Type != model.MessageText || msg.UserID != "me" || !msg.NeverSynced {
		t.Errorf("message = %+v", msg)
	}
	for _, u := range []string{"me", "u2"} {
		d := mustGet(t, f.st, model.Details, model.LinkID(chatID, u))
		if d.IsDeleted || d.IsArchived {
			t.Errorf("detail of %s: deleted=%v archived=%v", u, d.IsDeleted, d.IsArchived)
		}
	}

	if msg, err := f.m.SendText(ctx, chatID, "🎉👍🏽"); err != nil || msg.Type != model.MessageEmoji {
		t.Errorf("emoji send: %v %v", msg, err)
	}
	if _, err := f.m.SendText(ctx, chatID, "   "); !errors.Is(err, syncerr.ErrUnsupported) {
		t.Errorf("blank send: err = %v", err)
	}
	loc, err := f.m.SendLocation(ctx, chatID, 52.5, 13.4)
	if err != nil {
		t.Fatal(err)
	}
	if loc.Text != TextLocation || loc.Latitude != 52.5 {
		t.Errorf("location = %+v", loc)
	}

	msgs, err := f.m.Messages(ctx, chatID, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Errorf("got %d messages, want the limit of 2", len(msgs))
	}
}

func TestSendMediaAndForward(t *testing.T) {
	f := setup(t, "me")
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "pic.jpg")
	if err := os.WriteFile(src, []byte("jpeg"), 0o600); err != nil {
		t.Fatal(err)
	}
	msg, err := f.m.SendMedia(ctx, "c1", media.Photo, src, MediaInfo{Width: 640, Height: 480})
	if err != nil {
		t.Fatal(err)
	}
	if !msg.IsMediaQueued || msg.Text != TextPhoto || msg.PhotoWidth != 640 {
		t.Errorf("photo message = %+v", msg)
	}
	if _, err := os.Stat(f.p.Path(msg.ID, media.Photo)); err != nil {
		t.Errorf("local copy missing: %v", err)
	}

	fwd, err := f.m.Forward(ctx, "c2", msg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fwd.ChatID != "c2" || fwd.Type != model.MessagePhoto || !fwd.IsMediaQueued {
		t.Errorf("forward = %+v", fwd)
	}
	data, err := os.ReadFile(f.p.Path(fwd.ID, media.Photo))
	if err != nil || string(data) != "jpeg" {
		t.Errorf("forwarded media = %q, %v", data, err)
	}

	if err := os.Remove(f.p.Path(msg.ID, media.Photo)); err != nil {
		t.Fatal(err)
	}
	if _, err := f.m.Forward(ctx, "c3", msg.ID); !errors.Is(err, syncerr.ErrDataIntegrity) {
		t.Errorf("forward without media: err = %v, want ErrDataIntegrity", err)
	}
	if _, err := f.m.SendMedia(ctx, "c1", media.Avatar, src, MediaInfo{}); !errors.Is(err, syncerr.ErrUnsupported) {
		t.Errorf("avatar send: err = %v", err)
	}
}

func TestDeleteAndRetry(t *testing.T) {
	f := setup(t, "me")
	ctx := context.Background()

	mine, err := f.m.SendText(ctx, "c1", "hi")
	if err != nil {
		t.Fatal(err)
	}
	theirs := &model.Message{Meta: model.NewMeta("t1"), ChatID: "c1", UserID: "u2", Type: model.MessagePhoto}
	if err := store.Create(ctx, f.st, model.Messages, theirs); err != nil {
		t.Fatal(err)
	}

	if _, err := f.m.DeleteMessage(ctx, theirs.ID); !errors.Is(err, syncerr.ErrUnauthorized) {
		t.Errorf("delete other's message: err = %v", err)
	}
	if _, err := f.m.DeleteMessage(ctx, mine.ID); err != nil {
		t.Fatal(err)
	}
	if msgs, _ := f.m.Messages(ctx, "c1", 10); len(msgs) != 1 {
		t.Errorf("deleted message still listed: %v", msgs)
	}

	failed := &model.Message{Meta: model.NewMeta("f1"), ChatID: "c1", UserID: "me", Type: model.MessageAudio, IsMediaFailed: true}
	if err := store.Create(ctx, f.st, model.Messages, failed); err != nil {
		t.Fatal(err)
	}
	if err := f.m.RetryMedia(ctx, failed.ID); err != nil {
		t.Fatal(err)
	}
	if r := mustGet(t, f.st, model.Messages, failed.ID); r.IsMediaFailed || !r.IsMediaQueued {
		t.Errorf("after retry: failed=%v queued=%v", r.IsMediaFailed, r.IsMediaQueued)
	}

	res, err := f.p.Ensure(ctx, theirs.ID, media.Photo, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Reason != media.ReasonFailed {
		t.Fatalf("missing blob: %+v", res)
	}
	if err := f.rs.Put(ctx, remote.BucketMedia, media.Photo.Key(theirs.ID), []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := f.m.RetryMedia(ctx, theirs.ID); err != nil {
		t.Fatal(err)
	}
	if res, _ := f.p.Ensure(ctx, theirs.ID, media.Photo, "c1"); res.State != media.Ready {
		t.Errorf("after retry: %+v, want ready", res)
	}
	if err := f.m.RetryMedia(ctx, mine.ID); !errors.Is(err, syncerr.ErrUnsupported) {
		t.Errorf("retry text message: err = %v", err)
	}
}

func TestChatStateSetters(t *testing.T) {
	f := setup(t, "me")
	ctx := context.Background()
	f.person(t, "u2", "Grace", "Hopper")
	chatID, err := f.m.CreateSingle(ctx, "u2")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.m.MarkRead(ctx, chatID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.m.SetTyping(ctx, chatID, true); err != nil {
		t.Fatal(err)
	}
	if _, err := f.m.Mute(ctx, chatID, 5000); err != nil {
		t.Fatal(err)
	}
	if _, err := f.m.Archive(ctx, chatID, true); err != nil {
		t.Fatal(err)
	}
	d := mustGet(t, f.st, model.Details, model.LinkID(chatID, "me"))
	if d.LastRead == 0 || !d.Typing || d.MutedUntil != 5000 || !d.IsArchived {
		t.Errorf("detail = %+v", d)
	}
	if other := mustGet(t, f.st, model.Details, model.LinkID(chatID, "u2")); other.Typing || other.IsArchived {
		t.Errorf("other participant's detail changed: %+v", other)
	}

	changed, err := f.m.SetTyping(ctx, chatID, true)
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Error("repeated typing reported a change")
	}
	if _, err := f.m.Mute(ctx, "unknown", 1); !errors.Is(err, syncerr.ErrDataIntegrity) {
		t.Errorf("mute unknown chat: err = %v", err)
	}
}

func TestFriendsAndBlocks(t *testing.T) {
	f := setup(t, "me")
	ctx := context.Background()

	if err := f.m.AddFriend(ctx, "u2"); err != nil {
		t.Fatal(err)
	}
	if err := f.m.AddFriend(ctx, "u3"); err != nil {
		t.Fatal(err)
	}
	if err := f.m.RemoveFriend(ctx, "u3"); err != nil {
		t.Fatal(err)
	}
	ids, err := f.m.Friends(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "u2" {
		t.Errorf("friends = %v, want [u2]", ids)
	}
	if err := f.m.AddFriend(ctx, "u3"); err != nil {
		t.Fatal(err)
	}
	if ids, _ := f.m.Friends(ctx); len(ids) != 2 {
		t.Errorf("re-added friend missing: %v", ids)
	}
	if err := f.m.RemoveFriend(ctx, "nobody"); err != nil {
		t.Errorf("remove unknown friend: %v", err)
	}

	if err := f.m.Block(ctx, "u9"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := f.m.IsBlocked(ctx, "u9"); !ok {
		t.Error("u9 not blocked")
	}
	if ok, _ := f.m.IsBlocker(ctx, "u9"); ok {
		t.Error("block went the wrong way")
	}
	if err := f.m.Unblock(ctx, "u9"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := f.m.IsBlocked(ctx, "u9"); ok {
		t.Error("u9 still blocked")
	}
}

func TestIsEmoji(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"😀", true},
		{"👍🏽", true},
		{"👨‍👩‍👧", true},
		{"🇧🇷", true},
		{"❤️", true},
		{"😀 😀", true},
		{"hi 😀", false},
		{"123", false},
		{"", false},
		{" ", false},
	}
	for _, tt := range tests {
		if got := IsEmoji(tt.in); got != tt.want {
			t.Errorf("IsEmoji(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
