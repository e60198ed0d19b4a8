package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/connectivity"
	"github.com/matheus3301/chatsync/internal/cryptor"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/remote"
	"github.com/matheus3301/chatsync/internal/remote/memremote"
	"github.com/matheus3301/chatsync/internal/store"
	"github.com/matheus3301/chatsync/internal/syncerr"
	"go.uber.org/zap"
)

func testCryptor(t *testing.T) *cryptor.XChaCha {
	t.Helper()
	c, err := cryptor.New([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func profileWith(photo model.NetworkPolicy) Profile {
	me := model.NewPerson("me")
	me.NetworkPhoto = photo
	return func(context.Context) (*model.Person, error) { return me, nil }
}

func seal(t *testing.T, rs *memremote.Remote, c cryptor.Cryptor, name string, kind Kind, chatID string, data []byte) {
	t.Helper()
	sealed, err := c.Encrypt(data, chatID)
	if err != nil {
		t.Fatal(err)
	}
	if err := rs.Put(context.Background(), kind.bucket(), kind.Key(name), sealed); err != nil {
		t.Fatal(err)
	}
}

func TestEnsureFetchesAndDecrypts(t *testing.T) {
	rs := memremote.New()
	c := testCryptor(t)
	seal(t, rs, c, "m1", Photo, "c1", []byte("jpeg bytes"))
	p := NewPipeline(t.TempDir(), rs, c, connectivity.Static{Online: true}, profileWith(model.NetworkAll), nil, zap.NewNop())
	ctx := context.Background()

	res, err := p.Ensure(ctx, "m1", Photo, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if res.State != Ready {
		t.Fatalf("state = %s, want ready", res.State)
	}
	data, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "jpeg bytes" {
		t.Errorf("local file = %q", data)
	}

	if _, err := p.Ensure(ctx, "m1", Photo, "c1"); err != nil {
		t.Fatal(err)
	}
	if rs.Calls("get") != 1 {
		t.Errorf("get calls = %d, want 1 (second Ensure is local)", rs.Calls("get"))
	}
	if _, err := os.Stat(res.Path + ".loading"); !errors.Is(err, os.ErrNotExist) {
		t.Error("lease left behind")
	}
}

func TestEnsureWifiOnlyOffWifiIsManual(t *testing.T) {
	rs := memremote.New()
	c := testCryptor(t)
	seal(t, rs, c, "m1", Photo, "c1", []byte("x"))
	p := NewPipeline(t.TempDir(), rs, c, connectivity.Static{Online: true}, profileWith(model.NetworkWiFi), nil, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := p.Ensure(ctx, "m1", Photo, "c1")
		if err != nil {
			t.Fatal(err)
		}
		if res.State != Manual || res.Reason != ReasonPolicy {
			t.Fatalf("attempt %d: %+v, want manual/policy", i, res)
		}
	}
	if rs.Calls("get") != 0 {
		t.Errorf("get calls = %d, want 0", rs.Calls("get"))
	}
}

func TestEnsurePolicyReevaluated(t *testing.T) {
	rs := memremote.New()
	c := testCryptor(t)
	seal(t, rs, c, "m1", Photo, "c1", []byte("x"))
	dir := t.TempDir()
	ctx := context.Background()

	off := NewPipeline(dir, rs, c, connectivity.Static{Online: true}, profileWith(model.NetworkWiFi), nil, zap.NewNop())
	if res, _ := off.Ensure(ctx, "m1", Photo, "c1"); res.State != Manual {
		t.Fatalf("off wifi: %+v", res)
	}

	on := NewPipeline(dir, rs, c, connectivity.Static{Online: true, Wifi: true}, profileWith(model.NetworkWiFi), nil, zap.NewNop())
	res, err := on.Ensure(ctx, "m1", Photo, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if res.State != Ready {
		t.Errorf("on wifi: %+v, want ready", res)
	}
}

func TestEnsureFailureStaysManualUntilCleared(t *testing.T) {
	rs := memremote.New()
	c := testCryptor(t)
	p := NewPipeline(t.TempDir(), rs, c, connectivity.Static{Online: true}, profileWith(model.NetworkAll), nil, zap.NewNop())
	ctx := context.Background()

	res, err := p.Ensure(ctx, "m1", Photo, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if res.State != Manual || res.Reason != ReasonFailed {
		t.Fatalf("missing blob: %+v, want manual/failed", res)
	}
	if res, _ := p.Ensure(ctx, "m1", Photo, "c1"); res.State != Manual {
		t.Errorf("retry without clear: %+v", res)
	}
	if rs.Calls("get") != 1 {
		t.Errorf("get calls = %d, want 1", rs.Calls("get"))
	}

	seal(t, rs, c, "m1", Photo, "c1", []byte("x"))
	if err := p.ClearManual("m1", Photo); err != nil {
		t.Fatal(err)
	}
	if res, _ := p.Ensure(ctx, "m1", Photo, "c1"); res.State != Ready {
		t.Errorf("after clear: %+v, want ready", res)
	}
}

func TestEnsureWrongChatKeyFails(t *testing.T) {
	rs := memremote.New()
	c := testCryptor(t)
	seal(t, rs, c, "m1", Photo, "c1", []byte("x"))
	p := NewPipeline(t.TempDir(), rs, c, connectivity.Static{Online: true}, profileWith(model.NetworkAll), nil, zap.NewNop())

	res, err := p.Ensure(context.Background(), "m1", Photo, "c2")
	if err != nil {
		t.Fatal(err)
	}
	if res.State != Manual || res.Reason != ReasonFailed {
		t.Errorf("%+v, want manual/failed", res)
	}
	if _, err := os.Stat(res.Path); !errors.Is(err, os.ErrNotExist) {
		t.Error("undecryptable file was kept")
	}
}

func TestEnsureLiveLeaseIsPending(t *testing.T) {
	rs := memremote.New()
	p := NewPipeline(t.TempDir(), rs, cryptor.Plain{}, connectivity.Static{Online: true}, profileWith(model.NetworkAll), nil, zap.NewNop())
	path := p.Path("m1", Photo)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path+".loading", nil, 0o600); err != nil {
		t.Fatal(err)
	}

	res, err := p.Ensure(context.Background(), "m1", Photo, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if res.State != Pending {
		t.Errorf("state = %s, want pending", res.State)
	}

	stale := time.Now().Add(-2 * LeaseTTL)
	if err := os.Chtimes(path+".loading", stale, stale); err != nil {
		t.Fatal(err)
	}
	if err := rs.Put(context.Background(), remote.BucketMedia, "m1.jpg", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if res, _ := p.Ensure(context.Background(), "m1", Photo, "c1"); res.State != Ready {
		t.Errorf("stale lease: %+v, want ready", res)
	}
}

// gatedBlobs counts Get calls and holds each one until release is closed.
type gatedBlobs struct {
	remote.Blobs
	gets    atomic.Int32
	release chan struct{}
}

func (g *gatedBlobs) Get(ctx context.Context, bucket, key, destPath string) error {
	g.gets.Add(1)
	<-g.release
	return g.Blobs.Get(ctx, bucket, key, destPath)
}

func TestConcurrentEnsureFetchesOnce(t *testing.T) {
	rs := memremote.New()
	if err := rs.Put(context.Background(), remote.BucketMedia, "m1.jpg", []byte("x")); err != nil {
		t.Fatal(err)
	}
	blobs := &gatedBlobs{Blobs: rs, release: make(chan struct{})}
	p := NewPipeline(t.TempDir(), blobs, cryptor.Plain{}, connectivity.Static{Online: true}, profileWith(model.NetworkAll), nil, zap.NewNop())

	const callers = 16
	var wg sync.WaitGroup
	results := make(chan State, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := p.Ensure(context.Background(), "m1", Photo, "c1")
			if err != nil {
				t.Error(err)
				return
			}
			results <- res.State
		}()
	}

	deadline := time.Now().Add(2 * time.Second)
	for blobs.gets.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	close(blobs.release)
	wg.Wait()
	close(results)

	ready := 0
	for st := range results {
		if st == Ready {
			ready++
		}
	}
	if n := blobs.gets.Load(); n != 1 {
		t.Errorf("fetches = %d, want 1", n)
	}
	if ready == 0 {
		t.Error("no caller got the file")
	}
}

func TestAvatarIgnoresPolicy(t *testing.T) {
	rs := memremote.New()
	if err := rs.Put(context.Background(), remote.BucketUser, "u2.jpg", []byte("face")); err != nil {
		t.Fatal(err)
	}
	p := NewPipeline(t.TempDir(), rs, testCryptor(t), connectivity.Static{}, profileWith(model.NetworkManual), nil, zap.NewNop())

	res, err := p.Ensure(context.Background(), "u2", Avatar, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.State != Ready {
		t.Fatalf("%+v, want ready", res)
	}
	if filepath.Base(filepath.Dir(res.Path)) != remote.BucketUser {
		t.Errorf("avatar path %s not under %s", res.Path, remote.BucketUser)
	}
}

func TestEnsureRejectsBadNames(t *testing.T) {
	p := NewPipeline(t.TempDir(), memremote.New(), cryptor.Plain{}, connectivity.Static{}, profileWith(model.NetworkAll), nil, zap.NewNop())
	for _, name := range []string{"", "../x", `a\b`} {
		if _, err := p.Ensure(context.Background(), name, Photo, "c1"); !errors.Is(err, syncerr.ErrUnsupported) {
			t.Errorf("Ensure(%q) err = %v, want ErrUnsupported", name, err)
		}
	}
}

func TestQueueUploadsOldestFirst(t *testing.T) {
	st := testStore(t)
	rs := memremote.New()
	c := testCryptor(t)
	p := NewPipeline(t.TempDir(), rs, c, connectivity.Static{Online: true}, profileWith(model.NetworkAll), nil, zap.NewNop())
	ctx := context.Background()

	for i, id := range []string{"m2", "m1"} {
		m := &model.Message{Meta: model.NewMeta(id), ChatID: "c1", UserID: "me", Type: model.MessagePhoto, IsMediaQueued: true}
		m.UpdatedAt = int64(10 + i)
		if err := store.Create(ctx, st, model.Messages, m); err != nil {
			t.Fatal(err)
		}
		if _, err := p.Store([]byte("photo "+id), id, Photo); err != nil {
			t.Fatal(err)
		}
	}
	other := &model.Message{Meta: model.NewMeta("x1"), ChatID: "c1", UserID: "someone", Type: model.MessagePhoto, IsMediaQueued: true}
	other.UpdatedAt = 1
	if err := store.Create(ctx, st, model.Messages, other); err != nil {
		t.Fatal(err)
	}

	q := NewQueue(st, p, "me", nil, 0, nil, zap.NewNop())
	if !q.Tick(ctx) {
		t.Fatal("first tick uploaded nothing")
	}
	if _, ok := rs.Blob(remote.BucketMedia, "m2.jpg"); !ok {
		t.Error("oldest message m2 was not uploaded first")
	}
	if _, ok := rs.Blob(remote.BucketMedia, "m1.jpg"); ok {
		t.Error("m1 uploaded in the same tick")
	}
	if !q.Tick(ctx) {
		t.Fatal("second tick uploaded nothing")
	}
	if q.Tick(ctx) {
		t.Error("other user's message was uploaded")
	}

	sealed, _ := rs.Blob(remote.BucketMedia, "m1.jpg")
	dest := filepath.Join(t.TempDir(), "m1")
	if err := os.WriteFile(dest, sealed, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := c.Decrypt(dest, "c1"); err != nil {
		t.Fatalf("uploaded blob is not sealed for c1: %v", err)
	}

	m, err := store.Get(ctx, st, model.Messages, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if m.IsMediaQueued || !m.SyncRequired {
		t.Errorf("queued=%v dirty=%v, want cleared and dirty", m.IsMediaQueued, m.SyncRequired)
	}
}

func TestQueueFailures(t *testing.T) {
	st := testStore(t)
	rs := memremote.New()
	p := NewPipeline(t.TempDir(), rs, cryptor.Plain{}, connectivity.Static{Online: true}, profileWith(model.NetworkAll), nil, zap.NewNop())
	ctx := context.Background()

	m := &model.Message{Meta: model.NewMeta("m1"), ChatID: "c1", UserID: "me", Type: model.MessageVideo, IsMediaQueued: true}
	if err := store.Create(ctx, st, model.Messages, m); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Store([]byte("mp4"), "m1", Video); err != nil {
		t.Fatal(err)
	}
	q := NewQueue(st, p, "me", nil, 0, nil, zap.NewNop())

	rs.SetFail(func(op, _ string) error {
		if op == "put" {
			return syncerr.Transient(errors.New("offline"))
		}
		return nil
	})
	if q.Tick(ctx) {
		t.Fatal("upload succeeded while offline")
	}
	got, _ := store.Get(ctx, st, model.Messages, "m1")
	if !got.IsMediaQueued || got.IsMediaFailed {
		t.Fatalf("after transient: queued=%v failed=%v, want true/false", got.IsMediaQueued, got.IsMediaFailed)
	}

	rs.SetFail(func(op, _ string) error {
		if op == "put" {
			return syncerr.ErrUnauthorized
		}
		return nil
	})
	q.Tick(ctx)
	got, _ = store.Get(ctx, st, model.Messages, "m1")
	if !got.IsMediaFailed {
		t.Fatal("permanent error did not mark the message failed")
	}
	if got.Status() != model.StatusFailed {
		t.Errorf("status = %s, want failed", got.Status())
	}

	rs.SetFail(nil)
	if q.Tick(ctx) {
		t.Error("failed message was retried without a user retry")
	}
}

func TestQueueGate(t *testing.T) {
	st := testStore(t)
	rs := memremote.New()
	p := NewPipeline(t.TempDir(), rs, cryptor.Plain{}, connectivity.Static{}, profileWith(model.NetworkAll), nil, zap.NewNop())
	q := NewQueue(st, p, "me", func() bool { return false }, 0, nil, zap.NewNop())
	if q.Tick(context.Background()) {
		t.Error("closed gate uploaded")
	}
}

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
