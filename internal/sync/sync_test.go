package sync

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/fields"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/query"
	"github.com/matheus3301/chatsync/internal/remote/memremote"
	"github.com/matheus3301/chatsync/internal/store"
	"github.com/matheus3301/chatsync/internal/syncerr"
	"go.uber.org/zap"
)

func testStore(t *testing.T) *store.Store {
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
	return st
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

func open() bool { return true }

func get[T any](t *testing.T, st *store.Store, s *model.Schema[T], id string) *T {
	t.Helper()
	r, err := store.Get(context.Background(), st, s, id)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestUploadIsIdempotent(t *testing.T) {
	st := testStore(t)
	rs := memremote.New()
	ctx := context.Background()
	b := bus.New()
	events, unsub := b.Subscribe("sync.", 10)
	defer unsub()

	p := model.NewPerson("u1")
	p.Fullname = "Ada"
	if err := store.Create(ctx, st, model.Persons, p); err != nil {
		t.Fatal(err)
	}

	u := NewUploader(st, rs, model.Persons, open, 0, b, zap.NewNop())
	if !u.Tick(ctx) {
		t.Fatal("first tick uploaded nothing")
	}
	if u.Tick(ctx) {
		t.Error("second tick uploaded again")
	}
	if rs.Calls("create") != 1 || rs.Calls("update") != 0 {
		t.Errorf("create=%d update=%d, want 1 and 0", rs.Calls("create"), rs.Calls("update"))
	}
	got := get(t, st, model.Persons, "u1")
	if got.NeverSynced || got.SyncRequired {
		t.Errorf("flags after upload: neverSynced=%v syncRequired=%v", got.NeverSynced, got.SyncRequired)
	}
	doc, ok := rs.Doc("Person", "u1")
	if !ok || !doc.Equal(model.Persons.Encode(got)) {
		t.Errorf("remote doc = %v", doc)
	}

	select {
	case evt := <-events:
		if evt.Kind != bus.KindUploaded {
			t.Errorf("event = %s", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("no sync.uploaded event")
	}

	if _, err := store.Set(ctx, st, model.Persons, "u1", "fullname", "Ada L"); err != nil {
		t.Fatal(err)
	}
	if !u.Tick(ctx) {
		t.Fatal("edit not uploaded")
	}
	if rs.Calls("update") != 1 {
		t.Errorf("update calls = %d, want 1", rs.Calls("update"))
	}
	if v, _ := st.State(ctx, "upload.Person"); v == "" {
		t.Error("upload checkpoint not saved")
	}
}

func TestUploadOrderAndGate(t *testing.T) {
	st := testStore(t)
	rs := memremote.New()
	ctx := context.Background()

	for i, id := range []string{"b", "a", "c"} {
		f := &model.Friend{Meta: model.NewMeta(id), UserID: "me", FriendID: id}
		f.UpdatedAt = int64(100 - i*10)
		if err := store.Create(ctx, st, model.Friends, f); err != nil {
			t.Fatal(err)
		}
	}

	online := false
	u := NewUploader(st, rs, model.Friends, func() bool { return online }, 0, nil, zap.NewNop())
	if u.Tick(ctx) {
		t.Fatal("uploaded while offline")
	}

	var order []string
	online = true
	for u.Tick(ctx) {
		docs, _ := rs.Query(ctx, "Friend", nil)
		for _, d := range docs {
			if !slices.Contains(order, d.ID()) {
				order = append(order, d.ID())
			}
		}
	}
	if !slices.Equal(order, []string{"c", "a", "b"}) {
		t.Errorf("upload order = %v, want oldest first", order)
	}
}

func TestUploadFailureKeepsFlags(t *testing.T) {
	st := testStore(t)
	rs := memremote.New()
	ctx := context.Background()

	m := &model.Member{Meta: model.NewMeta(model.LinkID("c1", "u1")), ChatID: "c1", UserID: "u1", IsActive: true}
	if err := store.Create(ctx, st, model.Members, m); err != nil {
		t.Fatal(err)
	}
	u := NewUploader(st, rs, model.Members, open, 0, nil, zap.NewNop())

	rs.SetFail(func(op, target string) error { return syncerr.Transient(errors.New("offline")) })
	if u.Tick(ctx) {
		t.Fatal("tick reported success on failure")
	}
	if got := get(t, st, model.Members, m.ID); !got.NeverSynced || !got.SyncRequired {
		t.Error("failure cleared flags")
	}

	rs.SetFail(nil)
	if !u.Tick(ctx) {
		t.Fatal("retry did not upload")
	}
	if got := get(t, st, model.Members, m.ID); got.NeverSynced || got.SyncRequired {
		t.Error("flags not cleared after retry")
	}
}

func TestUploadKeepsDirtyWhenEditedInFlight(t *testing.T) {
	st := testStore(t)
	rs := memremote.New()
	ctx := context.Background()

	d := &model.Detail{Meta: model.NewMeta(model.LinkID("c1", "u1")), ChatID: "c1", UserID: "u1"}
	if err := store.Create(ctx, st, model.Details, d); err != nil {
		t.Fatal(err)
	}
	rs.SetFail(func(op, target string) error {
		if op == "create" {
			if _, err := store.Set(ctx, st, model.Details, d.ID, "typing", true); err != nil {
				t.Error(err)
			}
		}
		return nil
	})
	u := NewUploader(st, rs, model.Details, open, 0, nil, zap.NewNop())
	if !u.Tick(ctx) {
		t.Fatal("upload failed")
	}
	got := get(t, st, model.Details, d.ID)
	if got.NeverSynced {
		t.Error("neverSynced not cleared")
	}
	if !got.SyncRequired {
		t.Error("syncRequired cleared although the record changed during upload")
	}

	rs.SetFail(nil)
	if !u.Tick(ctx) {
		t.Fatal("second upload failed")
	}
	doc, _ := rs.Doc("Detail", d.ID)
	if !doc["typing"].AsBool() {
		t.Errorf("remote doc = %v", doc)
	}
	if got := get(t, st, model.Details, d.ID); got.SyncRequired {
		t.Error("still dirty after second upload")
	}
}

func TestUpdateNotFoundRecreates(t *testing.T) {
	st := testStore(t)
	rs := memremote.New()
	ctx := context.Background()

	g := &model.Group{Meta: model.NewMeta("g1"), ChatID: "g1", Name: "team", OwnerID: "u1"}
	g.NeverSynced = false
	if err := store.Create(ctx, st, model.Groups, g); err != nil {
		t.Fatal(err)
	}
	u := NewUploader(st, rs, model.Groups, open, 0, nil, zap.NewNop())
	if u.Tick(ctx) {
		t.Fatal("update of missing doc reported success")
	}
	if got := get(t, st, model.Groups, "g1"); !got.NeverSynced || !got.SyncRequired {
		t.Fatal("record not re-marked neverSynced")
	}
	if !u.Tick(ctx) {
		t.Fatal("recreate failed")
	}
	if _, ok := rs.Doc("Group", "g1"); !ok {
		t.Error("group not recreated on remote")
	}
}

func TestRoundTripBetweenDevices(t *testing.T) {
	rs := memremote.New()
	ctx := context.Background()
	a, b := testStore(t), testStore(t)
	byChat := query.Where("chatId", query.Eq, fields.String("c1"))

	obsA := NewObserver(a, rs, model.Messages, byChat, nil, nil, zap.NewNop())
	obsB := NewObserver(b, rs, model.Messages, byChat, nil, nil, zap.NewNop())
	for _, o := range []*Observer[model.Message]{obsA, obsB} {
		if err := o.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer o.Stop()
	}

	m := &model.Message{Meta: model.NewMeta(""), ChatID: "c1", UserID: "u1", Type: model.MessageLocation, Latitude: 1.5, Longitude: -2.25, Text: "here"}
	if err := store.Create(ctx, a, model.Messages, m); err != nil {
		t.Fatal(err)
	}
	a.Settle()
	changes := 0
	tok := a.Observe("messages", func(store.Change) { changes++ })
	if !NewUploader(a, rs, model.Messages, open, 0, nil, zap.NewNop()).Tick(ctx) {
		t.Fatal("upload failed")
	}

	waitFor(t, "message on device b", func() bool {
		r, _ := store.Get(ctx, b, model.Messages, m.ID)
		return r != nil
	})
	sent := get(t, a, model.Messages, m.ID)
	recv := get(t, b, model.Messages, m.ID)
	if !model.Messages.Encode(recv).Equal(model.Messages.Encode(sent)) {
		t.Errorf("round trip mismatch:\n got %v\nwant %v", model.Messages.Encode(recv), model.Messages.Encode(sent))
	}
	if recv.NeverSynced || recv.SyncRequired {
		t.Error("downloaded record is dirty")
	}

	// The echo may race the ack on device a, but it must not dirty the
	// record or loop.
	time.Sleep(100 * time.Millisecond)
	a.Settle()
	a.Unobserve(tok)
	if changes < 1 || changes > 2 {
		t.Errorf("device a saw %d message changes, want the ack and at most one echo", changes)
	}
	if get(t, a, model.Messages, m.ID).SyncRequired {
		t.Error("echo dirtied the sender's record")
	}
}

func TestObserverSkipsUnsupportedDocuments(t *testing.T) {
	rs := memremote.New()
	st := testStore(t)
	ctx := context.Background()

	if err := rs.Create(ctx, "Friend", "bad", fields.Map{"userId": fields.Int64(7), "updatedAt": fields.Int64(1)}); err != nil {
		t.Fatal(err)
	}
	if err := rs.Create(ctx, "Friend", "good", fields.Map{"userId": fields.String("me"), "friendId": fields.String("x"), "updatedAt": fields.Int64(2)}); err != nil {
		t.Fatal(err)
	}

	calls := make(chan [2]bool, 4)
	o := NewObserver(st, rs, model.Friends, nil, func(ins, mod bool) { calls <- [2]bool{ins, mod} }, nil, zap.NewNop())
	if err := o.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer o.Stop()

	select {
	case c := <-calls:
		if !c[0] || c[1] {
			t.Errorf("callback = %v, want inserted only", c)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no callback")
	}
	if get(t, st, model.Friends, "good") == nil {
		t.Error("good document not applied")
	}
	if get(t, st, model.Friends, "bad") != nil {
		t.Error("unsupported document applied")
	}
}

func TestObserverStartFailsOnUnauthorized(t *testing.T) {
	rs := memremote.New()
	rs.SetFail(func(op, target string) error {
		if op == "subscribe" {
			return syncerr.ErrUnauthorized
		}
		return nil
	})
	o := NewObserver(testStore(t), rs, model.Friends, nil, nil, nil, zap.NewNop())
	if err := o.Start(context.Background()); !errors.Is(err, syncerr.ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
	if rs.Calls("subscribe") != 1 {
		t.Errorf("subscribe calls = %d, want 1", rs.Calls("subscribe"))
	}
}

// holdWrite keeps a write transaction open until the returned func runs.
func holdWrite(t *testing.T, st *store.Store) (release func()) {
	t.Helper()
	unblock := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = st.Write(context.Background(), func(*store.Tx) error {
			<-unblock
			return nil
		})
	}()
	waitFor(t, "write to open", st.Writing)
	return func() {
		close(unblock)
		<-done
	}
}

func TestObserverNeverSubscribesDuringWrite(t *testing.T) {
	st := testStore(t)
	rs := memremote.New()
	o := NewObserver(st, rs, model.Friends, nil, nil, nil, zap.NewNop())

	release := holdWrite(t, st)
	started := make(chan error, 1)
	go func() { started <- o.Start(context.Background()) }()

	time.Sleep(3 * store.IdleInterval)
	if n := rs.Calls("subscribe"); n != 0 {
		t.Fatalf("subscribed %d times while a write was open", n)
	}
	release()

	select {
	case err := <-started:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Start did not return after the write ended")
	}
	defer o.Stop()
	if n := rs.Calls("subscribe"); n != 1 {
		t.Errorf("subscribe calls = %d, want 1", n)
	}
}

func TestObserverStartGivesUpWithContext(t *testing.T) {
	st := testStore(t)
	rs := memremote.New()
	o := NewObserver(st, rs, model.Friends, nil, nil, nil, zap.NewNop())

	release := holdWrite(t, st)
	defer release()
	ctx, cancel := context.WithTimeout(context.Background(), 2*store.IdleInterval)
	defer cancel()
	if err := o.Start(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	if n := rs.Calls("subscribe"); n != 0 {
		t.Errorf("subscribe calls = %d, want 0", n)
	}
}

func TestRegistryFollowsMemberships(t *testing.T) {
	rs := memremote.New()
	st := testStore(t)
	ctx := context.Background()

	me := &model.Person{Meta: model.NewMeta("me"), Fullname: "Me"}
	me.UpdatedAt = 5
	if err := rs.Create(ctx, "Person", "me", model.Persons.Encode(me)); err != nil {
		t.Fatal(err)
	}
	member := func(chat string, active bool, at int64) fields.Map {
		m := &model.Member{Meta: model.NewMeta(model.LinkID(chat, "me")), ChatID: chat, UserID: "me", IsActive: active}
		m.UpdatedAt = at
		return model.Members.Encode(m)
	}
	if err := rs.Create(ctx, "Member", model.LinkID("c1", "me"), member("c1", true, 10)); err != nil {
		t.Fatal(err)
	}

	r := NewRegistry(st, rs, nil, zap.NewNop())
	if err := r.Start(ctx, "me"); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	if got := get(t, st, model.Persons, "me"); got == nil || got.Fullname != "Me" {
		t.Fatalf("my person not fetched: %+v", got)
	}
	waitFor(t, "chat c1 observers", func() bool { return slices.Equal(r.Chats(), []string{"c1"}) })

	msg := &model.Message{Meta: model.NewMeta("m1"), ChatID: "c1", UserID: "other", Type: model.MessageText, Text: "hi"}
	if err := rs.Create(ctx, "Message", "m1", model.Messages.Encode(msg)); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "message in c1", func() bool {
		r, _ := store.Get(ctx, st, model.Messages, "m1")
		return r != nil
	})

	if err := rs.Create(ctx, "Member", model.LinkID("c2", "me"), member("c2", true, 11)); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "chat c2 observers", func() bool { return slices.Equal(r.Chats(), []string{"c1", "c2"}) })

	if err := rs.Update(ctx, "Member", model.LinkID("c1", "me"), fields.Map{"isActive": fields.Bool(false), "updatedAt": fields.Int64(12)}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "chat c1 closed", func() bool { return slices.Equal(r.Chats(), []string{"c2"}) })

	r.Stop()
	if len(r.Chats()) != 0 {
		t.Error("observers left after Stop")
	}
}

func TestRegistryWithoutRemotePerson(t *testing.T) {
	r := NewRegistry(testStore(t), memremote.New(), nil, zap.NewNop())
	if err := r.Start(context.Background(), "ghost"); err != nil {
		t.Fatalf("missing person aborted start: %v", err)
	}
	r.Stop()
}

func TestUploadersStatus(t *testing.T) {
	st := testStore(t)
	rs := memremote.New()
	ctx := context.Background()
	if err := store.Create(ctx, st, model.Persons, model.NewPerson("u1")); err != nil {
		t.Fatal(err)
	}
	if err := store.Create(ctx, st, model.Friends, &model.Friend{Meta: model.NewMeta(""), UserID: "u1", FriendID: "u2"}); err != nil {
		t.Fatal(err)
	}

	u := NewUploaders(st, rs, open, time.Hour, nil, zap.NewNop())
	status, err := u.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	pending := 0
	for _, s := range status {
		pending += s.Pending
	}
	if len(status) != 8 || pending != 2 {
		t.Errorf("status = %+v", status)
	}

	if n := u.Flush(ctx); n != 2 {
		t.Errorf("flushed %d, want 2", n)
	}
	u.Start(ctx)
	u.Stop()
}
