// Package httpapi serves the read side: conversation listings, transcripts,
// and operational endpoints, backed by the store.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/you/chatvault/internal/core"
	"github.com/you/chatvault/internal/store"
	"github.com/you/chatvault/internal/version"
)

// Store is the read/update surface the API needs from the persistence layer.
type Store interface {
	GetConversation(ctx context.Context, id string) (*core.Conversation, error)
	ListConversations(ctx context.Context, filters store.Filters) ([]core.Conversation, error)
	CountConversations(ctx context.Context, filters store.Filters) (int64, error)
	ListMessages(ctx context.Context, conversationID string) ([]core.Message, error)
	SetFavorite(ctx context.Context, conversationID string, favorite bool, now int64) error
}

type Server struct {
	httpServer *http.Server
	store      Store
	log        *zap.Logger
}

type Options struct {
	Addr string
	// Metrics, when set, is mounted at /metrics.
	Metrics http.Handler
	// Capture, when set, mounts the ingest endpoints on the same listener.
	Capture interface{ Register(mux *http.ServeMux) }
}

func New(st Store, log *zap.Logger, opts Options) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	srv := &Server{store: st, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/healthz", srv.handleHealthz)
	r.Get("/version", srv.handleVersion)
	r.Route("/api", func(r chi.Router) {
		r.Get("/conversations", srv.handleListConversations)
		r.Get("/conversations/{id}", srv.handleGetConversation)
		r.Get("/conversations/{id}/messages", srv.handleListMessages)
		r.Post("/conversations/{id}/favorite", srv.handleSetFavorite)
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	if opts.Capture != nil {
		captureMux := http.NewServeMux()
		opts.Capture.Register(captureMux)
		r.Handle("/capture", captureMux)
		r.Handle("/capture/ws", captureMux)
	}

	srv.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	s.log.Info("http api listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": version.Version,
		"commit":  version.Commit,
	})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	filters, err := store.ParseFilters(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	convs, err := s.store.ListConversations(r.Context(), filters)
	if err != nil {
		s.log.Error("list conversations", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list error")
		return
	}
	total, err := s.store.CountConversations(r.Context(), filters)
	if err != nil {
		s.log.Error("count conversations", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "count error")
		return
	}
	if convs == nil {
		convs = []core.Conversation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversations": convs,
		"total":         total,
	})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	conv, err := s.store.GetConversation(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		s.log.Error("get conversation", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get error")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetConversation(r.Context(), id); errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	} else if err != nil {
		s.log.Error("get conversation", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get error")
		return
	}

	msgs, err := s.store.ListMessages(r.Context(), id)
	if err != nil {
		s.log.Error("list messages", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list error")
		return
	}
	if msgs == nil {
		msgs = []core.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (s *Server) handleSetFavorite(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		Favorite bool `json:"favorite"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	err := s.store.SetFavorite(r.Context(), id, body.Favorite, time.Now().UnixMilli())
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		s.log.Error("set favorite", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "update error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "favorite": body.Favorite})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
