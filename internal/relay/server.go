package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/matheus3301/chatsync/internal/fields"
	"github.com/matheus3301/chatsync/internal/query"
	"github.com/matheus3301/chatsync/internal/remote/livequery"
	"github.com/matheus3301/chatsync/internal/remote/wire"
	"github.com/matheus3301/chatsync/internal/syncerr"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const writeTimeout = 10 * time.Second

// Server exposes a DocStore and a BlobStore over HTTP.
type Server struct {
	cfg     Config
	docs    *DocStore
	blobs   *BlobStore
	hub     *livequery.Hub
	limiter *limiter
	cron    *cron.Cron
	logger  *zap.Logger
	srv     *http.Server
}

func NewServer(cfg Config, docs *DocStore, blobs *BlobStore, logger *zap.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		docs:    docs,
		blobs:   blobs,
		hub:     livequery.New(),
		limiter: newLimiter(cfg.RateRPS, cfg.RateBurst),
		cron:    cron.New(),
		logger:  logger,
	}
	s.srv = &http.Server{Addr: cfg.Addr, Handler: s.Handler()}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get(wire.HealthPath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(jwtAuth(s.cfg.JWTSecret))
		r.Use(s.limiter.middleware)

		r.Put("/v1/docs/{collection}/{id}", s.handleCreate)
		r.Patch("/v1/docs/{collection}/{id}", s.handleUpdate)
		r.Get("/v1/docs/{collection}/{id}", s.handleGet)
		r.Post("/v1/query/{collection}", s.handleQuery)
		r.Get("/v1/listen/{collection}", s.handleListen)
		r.Put("/v1/blobs/{bucket}/{key}", s.handlePutBlob)
		r.Get("/v1/blobs/{bucket}/{key}", s.handleGetBlob)
	})
	return r
}

// ListenAndServe serves until Shutdown.
func (s *Server) ListenAndServe() error {
	if _, err := s.cron.AddFunc("@every 10m", func() { s.limiter.sweep(10 * time.Minute) }); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("relay listening", zap.String("addr", s.cfg.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	<-s.cron.Stop().Done()
	return s.srv.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	collection, id := chi.URLParam(r, "collection"), chi.URLParam(r, "id")
	var req wire.Doc
	if !decodeBody(w, r, &req) {
		return
	}
	err := s.hub.Commit(collection, func() (fields.Map, error) {
		return s.docs.Set(r.Context(), collection, id, req.Fields)
	})
	if err != nil {
		s.fail(w, "create", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	collection, id := chi.URLParam(r, "collection"), chi.URLParam(r, "id")
	var req wire.Doc
	if !decodeBody(w, r, &req) {
		return
	}
	err := s.hub.Commit(collection, func() (fields.Map, error) {
		return s.docs.Merge(r.Context(), collection, id, req.Fields)
	})
	if err != nil {
		s.fail(w, "update", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	doc, err := s.docs.Get(r.Context(), chi.URLParam(r, "collection"), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, wire.Doc{Fields: doc})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req wire.QueryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	docs, err := s.docs.Query(r.Context(), chi.URLParam(r, "collection"), req.Filter)
	if err != nil {
		s.fail(w, "query", err)
		return
	}
	writeJSON(w, http.StatusOK, wire.Documents{Documents: nonNil(docs)})
}

// handleListen upgrades to a websocket, sends the matching documents as the
// first frame and then one frame per matching write.
func (s *Server) handleListen(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	var f query.Filter
	if raw := r.URL.Query().Get(wire.FilterParam); raw != "" {
		if err := json.Unmarshal([]byte(raw), &f); err != nil {
			writeError(w, http.StatusBadRequest, "invalid filter")
			return
		}
	}
	if err := f.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept", zap.Error(err))
		return
	}
	defer func() { _ = conn.CloseNow() }()

	ctx := conn.CloseRead(context.WithoutCancel(r.Context()))
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sub, err := s.hub.Subscribe(collection, f, func(docs []fields.Map) {
		wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
		defer wcancel()
		if err := wsjson.Write(wctx, conn, wire.Documents{Documents: nonNil(docs)}); err != nil {
			cancel()
		}
	}, func() ([]fields.Map, error) {
		return s.docs.Query(ctx, collection, f)
	})
	if err != nil {
		s.logger.Error("listen snapshot", zap.String("collection", collection), zap.Error(err))
		_ = conn.Close(websocket.StatusInternalError, "snapshot failed")
		return
	}
	defer func() { _ = sub.Close() }()

	<-ctx.Done()
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

func (s *Server) handlePutBlob(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxBlob)
	if err := s.blobs.Put(chi.URLParam(r, "bucket"), chi.URLParam(r, "key"), body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "blob too large")
			return
		}
		s.fail(w, "put blob", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetBlob(w http.ResponseWriter, r *http.Request) {
	f, err := s.blobs.Open(chi.URLParam(r, "bucket"), chi.URLParam(r, "key"))
	if err != nil {
		s.fail(w, "get blob", err)
		return
	}
	defer func() { _ = f.Close() }()
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = io.Copy(w, f)
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, syncerr.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, syncerr.ErrUnsupported):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error(op, zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func nonNil(docs []fields.Map) []fields.Map {
	if docs == nil {
		return []fields.Map{}
	}
	return docs
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, wire.Error{Error: msg})
}
