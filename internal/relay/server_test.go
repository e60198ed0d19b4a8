package relay

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/fields"
	"github.com/matheus3301/chatsync/internal/query"
	"github.com/matheus3301/chatsync/internal/remote/wire"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

func testServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	dir := t.TempDir()
	docs, err := OpenDocStore("sqlite3", filepath.Join(dir, "relay.db"))
	if err != nil {
		t.Fatalf("open docstore: %v", err)
	}
	t.Cleanup(func() { _ = docs.Close() })
	if _, err := docs.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	blobs, err := NewBlobStore(filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatal(err)
	}
	cfg := Config{JWTSecret: testSecret, RateRPS: 1000, RateBurst: 1000, MaxBlob: 1 << 10}
	ts := httptest.NewServer(NewServer(cfg, docs, blobs, zap.NewNop()).Handler())
	t.Cleanup(ts.Close)

	token, err := GenerateToken("u1", testSecret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return ts, token
}

func call(t *testing.T, ts *httptest.Server, token, method, path string, body any) (int, []byte) {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		r = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, ts.URL+path, r)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out
}

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken("u1", testSecret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := ValidateToken(token, testSecret)
	if err != nil {
		t.Fatal(err)
	}
	if claims.UserID != "u1" {
		t.Errorf("user id = %q", claims.UserID)
	}
	if _, err := ValidateToken(token, "other"); err != ErrInvalidToken {
		t.Errorf("wrong secret: err = %v", err)
	}
	expired, _ := GenerateToken("u1", testSecret, -time.Minute)
	if _, err := ValidateToken(expired, testSecret); err != ErrInvalidToken {
		t.Errorf("expired: err = %v", err)
	}
}

func TestHealthNeedsNoAuth(t *testing.T) {
	ts, _ := testServer(t)
	if code, _ := call(t, ts, "", http.MethodGet, wire.HealthPath, nil); code != http.StatusOK {
		t.Errorf("health = %d", code)
	}
	if code, _ := call(t, ts, "", http.MethodGet, wire.DocPath("Message", "m1"), nil); code != http.StatusUnauthorized {
		t.Errorf("unauthenticated get = %d, want 401", code)
	}
	if code, _ := call(t, ts, "garbage", http.MethodGet, wire.DocPath("Message", "m1"), nil); code != http.StatusUnauthorized {
		t.Errorf("bad token get = %d, want 401", code)
	}
}

func TestDocuments(t *testing.T) {
	ts, token := testServer(t)

	code, _ := call(t, ts, token, http.MethodPatch, wire.DocPath("Message", "m1"), wire.Doc{Fields: fields.Map{"text": fields.String("x")}})
	if code != http.StatusNotFound {
		t.Errorf("patch of missing doc = %d, want 404", code)
	}

	for i, id := range []string{"m1", "m2", "m3"} {
		doc := fields.Map{
			"chatId":    fields.String("c1"),
			"text":      fields.String("hello"),
			"updatedAt": fields.Int64(int64(10 * (i + 1))),
		}
		if code, body := call(t, ts, token, http.MethodPut, wire.DocPath("Message", id), wire.Doc{Fields: doc}); code != http.StatusNoContent {
			t.Fatalf("put %s = %d %s", id, code, body)
		}
	}
	patch := fields.Map{"text": fields.String("edited"), "updatedAt": fields.Int64(40)}
	if code, body := call(t, ts, token, http.MethodPatch, wire.DocPath("Message", "m1"), wire.Doc{Fields: patch}); code != http.StatusNoContent {
		t.Fatalf("patch = %d %s", code, body)
	}

	code, body := call(t, ts, token, http.MethodGet, wire.DocPath("Message", "m1"), nil)
	if code != http.StatusOK {
		t.Fatalf("get = %d", code)
	}
	var got wire.Doc
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatal(err)
	}
	if got.Fields["text"].AsString() != "edited" || got.Fields["chatId"].AsString() != "c1" || got.Fields.ID() != "m1" {
		t.Errorf("merged doc = %v", got.Fields)
	}

	f := query.Where("chatId", query.Eq, fields.String("c1")).And("updatedAt", query.Gt, fields.Int64(20))
	code, body = call(t, ts, token, http.MethodPost, wire.QueryPath("Message"), wire.QueryRequest{Filter: f})
	if code != http.StatusOK {
		t.Fatalf("query = %d %s", code, body)
	}
	var res wire.Documents
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatal(err)
	}
	if len(res.Documents) != 2 || res.Documents[0].ID() != "m3" || res.Documents[1].ID() != "m1" {
		t.Errorf("query returned %v", res.Documents)
	}

	code, _ = call(t, ts, token, http.MethodPost, wire.QueryPath("Message"), wire.QueryRequest{Filter: query.Filter{{Field: "x", Op: "~"}}})
	if code != http.StatusBadRequest {
		t.Errorf("bad filter = %d, want 400", code)
	}
}

func TestBlobs(t *testing.T) {
	ts, token := testServer(t)

	if code, _ := call(t, ts, token, http.MethodGet, wire.BlobPath("media", "a.jpg"), nil); code != http.StatusNotFound {
		t.Errorf("missing blob = %d, want 404", code)
	}
	if code, _ := call(t, ts, token, http.MethodPut, wire.BlobPath("media", "a.jpg"), []byte("jpeg")); code != http.StatusNoContent {
		t.Fatalf("put blob = %d", code)
	}
	code, body := call(t, ts, token, http.MethodGet, wire.BlobPath("media", "a.jpg"), nil)
	if code != http.StatusOK || string(body) != "jpeg" {
		t.Errorf("get blob = %d %q", code, body)
	}
	if code, _ := call(t, ts, token, http.MethodPut, wire.BlobPath("media", "big.bin"), bytes.Repeat([]byte("x"), 2<<10)); code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized blob = %d, want 413", code)
	}
	if code, _ := call(t, ts, token, http.MethodPut, wire.BlobPath("media", ".."), []byte("x")); code != http.StatusBadRequest && code != http.StatusNotFound {
		t.Errorf("dot-dot key = %d", code)
	}
}

func TestRateLimit(t *testing.T) {
	l := newLimiter(1, 2)
	h := l.middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	var codes []int
	for range 3 {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v", codes)
	}

	l.sweep(0)
	l.mu.Lock()
	n := len(l.visitors)
	l.mu.Unlock()
	if n != 0 {
		t.Errorf("%d visitors after sweep", n)
	}
}
