// Package capture ingests observed network payloads and routes them through
// the platform adapters into the store. Payloads arrive over plain HTTP POST
// or a WebSocket feed from the capturing browser extension; either way the
// unit of work is an Envelope of URL plus raw body.
package capture

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/you/chatvault/internal/adapter"
	"github.com/you/chatvault/internal/store"
)

const maxEnvelopeBytes = 16 << 20

// Envelope is one captured request/response pair as the extension saw it.
type Envelope struct {
	URL  string `json:"url"`
	Body string `json:"body"`
}

// Outcome reports what one envelope produced.
type Outcome struct {
	ID       string `json:"id"`
	Platform string `json:"platform,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
	Records  int    `json:"records"`
	Status   string `json:"status"`
}

const (
	StatusStored      = "stored"
	StatusEmpty       = "empty"
	StatusUnsupported = "unsupported"
	StatusDisabled    = "disabled"
	StatusIgnored     = "ignored"
	StatusStoreError  = "store_error"
)

type Server struct {
	log     *zap.Logger
	reg     *adapter.Registry
	writer  store.Writer
	rules   *Rules
	metrics *Metrics
	limiter *ipRateLimiter
}

type Options struct {
	// RateRPS and RateBurst bound per-IP ingest; zero disables limiting.
	RateRPS   int
	RateBurst int
}

func NewServer(log *zap.Logger, reg *adapter.Registry, writer store.Writer, rules *Rules, metrics *Metrics, opts Options) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		log:     log,
		reg:     reg,
		writer:  writer,
		rules:   rules,
		metrics: metrics,
		limiter: newIPRateLimiter(opts.RateRPS, opts.RateBurst),
	}
}

func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/capture", s.handleCapture)
	mux.HandleFunc("/capture/ws", s.handleWS)
}

// Process routes one envelope: find the owning adapter, classify the
// endpoint, parse, persist. Parse failures are contained here; the only
// error surface is the store.
func (s *Server) Process(ctx context.Context, env Envelope) Outcome {
	out := Outcome{ID: uuid.NewString()}

	a := s.reg.ForURL(env.URL)
	if a == nil {
		s.metrics.IncUnsupported()
		out.Status = StatusUnsupported
		return out
	}
	platform := a.Platform()
	out.Platform = string(platform)

	if !s.rules.Enabled(platform) {
		s.metrics.IncDisabled(string(platform))
		out.Status = StatusDisabled
		return out
	}

	endpoint := a.EndpointType(env.URL)
	out.Endpoint = string(endpoint)

	var recs []store.Record
	switch endpoint {
	case adapter.EndpointList:
		for _, conv := range a.ParseConversationList(env.Body) {
			recs = append(recs, store.Record{Conversation: conv})
		}
	case adapter.EndpointDetail:
		if res := a.ParseConversationDetail(env.Body); res != nil {
			recs = append(recs, store.Record{Conversation: res.Conversation, Messages: res.Messages})
		}
	case adapter.EndpointStream:
		if res := a.ParseStreamResponse(env.Body, env.URL); res != nil {
			recs = append(recs, store.Record{Conversation: res.Conversation, Messages: res.Messages})
		}
	default:
		out.Status = StatusIgnored
		return out
	}

	if len(recs) == 0 {
		s.metrics.IncParseFailures(string(platform), string(endpoint))
		out.Status = StatusEmpty
		return out
	}

	for _, rec := range recs {
		if err := s.writer.Save(ctx, rec); err != nil {
			s.metrics.IncStoreErrors()
			s.log.Error("store write failed",
				zap.String("capture_id", out.ID),
				zap.String("conversation", rec.Conversation.ID),
				zap.Error(err))
			out.Status = StatusStoreError
			return out
		}
		out.Records++
	}

	s.metrics.IncCaptures(string(platform), string(endpoint))
	out.Status = StatusStored
	s.log.Info("capture stored",
		zap.String("capture_id", out.ID),
		zap.String("platform", out.Platform),
		zap.String("endpoint", out.Endpoint),
		zap.Int("records", out.Records))
	return out
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.limiter.Allow(remoteIP(r)) {
		s.metrics.IncRateLimited()
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return
	}

	var env Envelope
	body := http.MaxBytesReader(w, r.Body, maxEnvelopeBytes)
	if err := json.NewDecoder(body).Decode(&env); err != nil {
		http.Error(w, "invalid envelope", http.StatusBadRequest)
		return
	}
	if env.URL == "" {
		http.Error(w, "url required", http.StatusBadRequest)
		return
	}

	out := s.Process(r.Context(), env)
	status := http.StatusOK
	if out.Status == StatusStoreError {
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(out)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow(remoteIP(r)) {
		s.metrics.IncRateLimited()
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // extension origins are not regular pages
	})
	if err != nil {
		s.log.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closed")
	conn.SetReadLimit(maxEnvelopeBytes)

	s.metrics.IncWSClients(1)
	defer s.metrics.IncWSClients(-1)

	ctx := r.Context()
	for {
		var env Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				conn.Close(websocket.StatusNormalClosure, "")
			}
			return
		}
		out := s.Process(ctx, env)
		if err := wsjson.Write(ctx, conn, out); err != nil {
			return
		}
	}
}
