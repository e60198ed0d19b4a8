// Package relayclient implements remote.Store and remote.Blobs against a
// chatsync relay: JSON over HTTP for writes and queries, a websocket per
// live query.
package relayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/matheus3301/chatsync/internal/fields"
	"github.com/matheus3301/chatsync/internal/query"
	"github.com/matheus3301/chatsync/internal/remote"
	"github.com/matheus3301/chatsync/internal/remote/wire"
	"github.com/matheus3301/chatsync/internal/syncerr"
	"go.uber.org/zap"
)

// Config configures a Client.
type Config struct {
	URL        string
	Token      string
	HTTPClient *http.Client
	Logger     *zap.Logger
	// Reconnect delays for live queries.
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
}

// Client talks to one relay with one bearer token.
type Client struct {
	base   *url.URL
	token  string
	http   *http.Client
	logger *zap.Logger
	cfg    Config
}

var (
	_ remote.Store = (*Client)(nil)
	_ remote.Blobs = (*Client)(nil)
)

// New validates the configuration. A URL without a token is a configuration
// error.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("relay url is empty")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("relay %s: no token configured: %w", cfg.URL, syncerr.ErrUnauthorized)
	}
	base, err := url.Parse(strings.TrimSuffix(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse relay url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("relay url %q: scheme must be http or https", cfg.URL)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.ReconnectBase <= 0 {
		cfg.ReconnectBase = 500 * time.Millisecond
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = 30 * time.Second
	}
	return &Client{
		base:   base,
		token:  cfg.Token,
		http:   cfg.HTTPClient,
		logger: cfg.Logger.Named("relay"),
		cfg:    cfg,
	}, nil
}

func (c *Client) url(path string) string {
	return c.base.String() + path
}

func (c *Client) header() http.Header {
	h := make(http.Header)
	h.Set("Authorization", "Bearer "+c.token)
	return h
}

// do sends a request and classifies the response status. The caller closes
// the body of a successful response.
func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header = c.header()
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, syncerr.Transient(fmt.Errorf("%s %s: %w", method, path, err))
	}
	if resp.StatusCode/100 == 2 {
		return resp, nil
	}
	defer func() { _ = resp.Body.Close() }()
	return nil, statusError(method, path, resp)
}

func statusError(method, path string, resp *http.Response) error {
	var e wire.Error
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&e)
	err := fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, e.Error)
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %w", syncerr.ErrUnauthorized, err)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %w", syncerr.ErrNotFound, err)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return syncerr.Transient(err)
	case resp.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: %w", syncerr.ErrUnsupported, err)
	default:
		return err
	}
}

func (c *Client) sendJSON(ctx context.Context, method, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", method, path, err)
	}
	resp, err := c.do(ctx, method, path, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) Create(ctx context.Context, collection, id string, doc fields.Map) error {
	return c.sendJSON(ctx, http.MethodPut, wire.DocPath(collection, id), wire.Doc{Fields: doc}, nil)
}

func (c *Client) Update(ctx context.Context, collection, id string, doc fields.Map) error {
	return c.sendJSON(ctx, http.MethodPatch, wire.DocPath(collection, id), wire.Doc{Fields: doc}, nil)
}

func (c *Client) Query(ctx context.Context, collection string, f query.Filter) ([]fields.Map, error) {
	var out wire.Documents
	if err := c.sendJSON(ctx, http.MethodPost, wire.QueryPath(collection), wire.QueryRequest{Filter: f}, &out); err != nil {
		return nil, err
	}
	return out.Documents, nil
}

func (c *Client) Put(ctx context.Context, bucket, key string, data []byte) error {
	resp, err := c.do(ctx, http.MethodPut, wire.BlobPath(bucket, key), "application/octet-stream", bytes.NewReader(data))
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func (c *Client) Get(ctx context.Context, bucket, key, destPath string) error {
	resp, err := c.do(ctx, http.MethodGet, wire.BlobPath(bucket, key), "", nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	f, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", destPath, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		return syncerr.Transient(fmt.Errorf("download %s/%s: %w", bucket, key, err))
	}
	return f.Close()
}

// Health checks that the relay answers.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(wire.HealthPath), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return syncerr.Transient(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return syncerr.Transient(fmt.Errorf("health: status %d", resp.StatusCode))
	}
	return nil
}
