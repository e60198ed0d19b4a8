package relayclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/matheus3301/chatsync/internal/fields"
	"github.com/matheus3301/chatsync/internal/query"
	"github.com/matheus3301/chatsync/internal/remote"
	"github.com/matheus3301/chatsync/internal/remote/wire"
	"github.com/matheus3301/chatsync/internal/retry"
	"github.com/matheus3301/chatsync/internal/syncerr"
	"go.uber.org/zap"
)

// maxFrame bounds a single live-query frame.
const maxFrame = 32 << 20

type subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}

// Subscribe opens a websocket live query. The first connection is made
// before returning, so bad credentials surface here; later disconnects are
// retried with backoff and every reconnect starts with a fresh snapshot.
func (c *Client) Subscribe(ctx context.Context, collection string, f query.Filter, onBatch func([]fields.Map)) (remote.Subscription, error) {
	target, err := c.listenURL(collection, f)
	if err != nil {
		return nil, err
	}
	log := c.logger.With(zap.String("collection", collection), zap.String("filter", f.Key()))

	conn, err := c.dial(ctx, target)
	if errors.Is(err, syncerr.ErrUnauthorized) {
		return nil, err
	}
	if err != nil {
		log.Warn("live query dial failed, retrying in background", zap.Error(err))
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &subscription{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		c.listen(runCtx, log, target, conn, onBatch)
	}()
	return sub, nil
}

func (c *Client) listenURL(collection string, f query.Filter) (string, error) {
	raw, err := json.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("encode filter: %w", err)
	}
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + wire.ListenPath(collection)
	u.RawQuery = url.Values{wire.FilterParam: {string(raw)}}.Encode()
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String(), nil
}

func (c *Client) dial(ctx context.Context, target string) (*websocket.Conn, error) {
	conn, resp, err := websocket.Dial(ctx, target, &websocket.DialOptions{
		HTTPClient: c.http,
		HTTPHeader: c.header(),
	})
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("listen: status %d: %w", resp.StatusCode, syncerr.ErrUnauthorized)
		}
		return nil, syncerr.Transient(fmt.Errorf("listen: %w", err))
	}
	conn.SetReadLimit(maxFrame)
	return conn, nil
}

func (c *Client) listen(ctx context.Context, log *zap.Logger, target string, conn *websocket.Conn, onBatch func([]fields.Map)) {
	backoff := &retry.Backoff{Base: c.cfg.ReconnectBase, Max: c.cfg.ReconnectMax, Stable: c.cfg.ReconnectMax * 2}
	for {
		if conn != nil {
			backoff.Connected()
			err := readFrames(ctx, log, conn, onBatch)
			_ = conn.Close(websocket.StatusNormalClosure, "")
			conn = nil
			if ctx.Err() != nil {
				return
			}
			log.Warn("live query disconnected", zap.Error(err))
		}

		delay := backoff.Next()
		log.Debug("live query reconnecting", zap.Int("attempt", backoff.Attempts()), zap.Duration("delay", delay))
		if !retry.Sleep(ctx, delay) {
			return
		}
		var err error
		conn, err = c.dial(ctx, target)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("live query dial failed", zap.Error(err))
		}
	}
}

// readFrames decodes documents one by one, so a single unsupported value
// drops only its document.
func readFrames(ctx context.Context, log *zap.Logger, conn *websocket.Conn, onBatch func([]fields.Map)) error {
	for {
		var frame struct {
			Documents []json.RawMessage `json:"documents"`
		}
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			return err
		}
		docs := make([]fields.Map, 0, len(frame.Documents))
		for _, raw := range frame.Documents {
			var d fields.Map
			if err := json.Unmarshal(raw, &d); err != nil {
				log.Error("skipping undecodable document", zap.Error(err))
				continue
			}
			docs = append(docs, d)
		}
		onBatch(docs)
	}
}
