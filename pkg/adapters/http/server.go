package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/adapters/twilio"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/reply"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// MaxBodyBytes bounds inbound request bodies.
const MaxBodyBytes = 1 << 20

// Bot defines the slice of parley.Bot the server drives.
type Bot interface {
	Handle(ctx context.Context, key string, ev domain.InboundEvent) (*parley.Outcome, error)
	Session(ctx context.Context, key string) (*domain.Session, error)
	Sessions(ctx context.Context) ([]string, error)
	Abandon(ctx context.Context, key, reason string) (domain.ArchiveRecord, error)
	History(ctx context.Context, key string) ([]domain.ArchiveRecord, error)
	Flows() ports.FlowRepository
	Watch(ctx context.Context) (<-chan struct{}, error)
}

// MenuResolver maps a text reply back to the menu item it picks.
type MenuResolver interface {
	ResolveMenuReply(sessionKey string, ev domain.InboundEvent) domain.InboundEvent
}

// SignatureValidator authenticates provider webhooks.
type SignatureValidator interface {
	Validate(fullURL string, form url.Values, signature string) bool
}

// Server serves the event, session and webhook API.
type Server struct {
	Bot     Bot
	Streams *StreamManager

	logger    *slog.Logger
	menus     MenuResolver
	signature SignatureValidator
	publicURL string
	metrics   http.Handler
}

// Option configures the Server.
type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMenuResolver maps numbered text replies on the Twilio webhook to button events.
func WithMenuResolver(r MenuResolver) Option {
	return func(s *Server) { s.menus = r }
}

// WithSignatureValidation rejects Twilio webhooks whose X-Twilio-Signature does not match.
// publicURL is the externally visible base URL the provider signs against.
func WithSignatureValidation(v SignatureValidator, publicURL string) Option {
	return func(s *Server) {
		s.signature = v
		s.publicURL = strings.TrimRight(publicURL, "/")
	}
}

// WithMetricsHandler mounts h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// NewHandler creates the HTTP handler for the bot.
func NewHandler(bot Bot, opts ...Option) http.Handler {
	s := &Server{
		Bot:     bot,
		Streams: NewStreamManager(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/events/{key}", s.PostEvent)
		r.Post("/twilio/webhook", s.TwilioWebhook)
		r.Get("/events", s.SubscribeReloads)

		r.Get("/flows", s.ListFlows)

		r.Get("/sessions", s.ListSessions)
		r.Route("/sessions/{key}", func(r chi.Router) {
			r.Get("/", s.GetSession)
			r.Delete("/", s.AbandonSession)
			r.Get("/history", s.GetHistory)
			r.Get("/stream", s.SubscribeSession)
		})
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// OutcomeResponse is the JSON view of one processed event.
type OutcomeResponse struct {
	Status    parley.Status `json:"status"`
	SessionID string        `json:"session_id"`
	FlowID    string        `json:"flow_id,omitempty"`
	State     string        `json:"state,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Error     string        `json:"error,omitempty"`
	Steps     int           `json:"steps"`
	Archived  bool          `json:"archived,omitempty"`
}

func newOutcomeResponse(key string, out *parley.Outcome) OutcomeResponse {
	resp := OutcomeResponse{
		Status:    out.Status,
		SessionID: key,
		Reason:    out.Reason,
		Steps:     out.Steps,
		Archived:  out.Archived != nil,
	}
	if out.Session != nil {
		resp.FlowID = out.Session.FlowID
		resp.State = out.Session.CurrentState
	}
	if out.Err != nil {
		resp.Error = out.Err.Error()
	}
	return resp
}

// PostEvent handles POST /v1/events/{key} with an already-normalized event.
func (s *Server) PostEvent(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var ev domain.InboundEvent
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&ev); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("PostEvent: Invalid request body", "session", key, "err", err)
		return
	}
	if ev.Kind == "" {
		http.Error(w, "Event kind is required", http.StatusBadRequest)
		return
	}

	out, ok := s.handle(r.Context(), w, key, ev)
	if !ok {
		return
	}
	writeJSON(w, s.logger, http.StatusOK, newOutcomeResponse(key, out))
}

// TwilioWebhook handles POST /v1/twilio/webhook.
// Replies are sent through the configured sender, so the TwiML response is empty.
func (s *Server) TwilioWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form body", http.StatusBadRequest)
		s.logger.Warn("TwilioWebhook: Invalid form", "err", err)
		return
	}

	if s.signature != nil {
		fullURL := s.publicURL + r.URL.RequestURI()
		if !s.signature.Validate(fullURL, r.PostForm, r.Header.Get("X-Twilio-Signature")) {
			http.Error(w, "Invalid signature", http.StatusForbidden)
			s.logger.Warn("TwilioWebhook: Signature rejected", "url", fullURL)
			return
		}
	}

	key, ev, err := twilio.ParseInbound(r.PostForm)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid webhook: %v", err), http.StatusBadRequest)
		s.logger.Warn("TwilioWebhook: Unparseable payload", "err", err)
		return
	}
	if s.menus != nil && s.expectsMenu(r.Context(), key) {
		ev = s.menus.ResolveMenuReply(key, ev)
	}

	if _, ok := s.handle(r.Context(), w, key, ev); !ok {
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write([]byte(emptyTwiML))
}

// expectsMenu reports whether the stored session is waiting on a button reply.
// Other expectations keep numbered text as text.
func (s *Server) expectsMenu(ctx context.Context, key string) bool {
	sess, err := s.Bot.Session(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrSessionNotFound) {
			s.logger.Warn("TwilioWebhook: Session lookup failed", "session", key, "err", err)
		}
		return false
	}
	return reply.IsMenu(sess.ExpectedReplyType)
}

const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

func (s *Server) handle(ctx context.Context, w http.ResponseWriter, key string, ev domain.InboundEvent) (*parley.Outcome, bool) {
	out, err := s.Bot.Handle(ctx, key, ev)
	if err != nil {
		http.Error(w, fmt.Sprintf("Handle error: %v", err), http.StatusInternalServerError)
		s.logger.Error("Handle failed", "session", key, "err", err)
		return nil, false
	}
	if out.Status == parley.StatusDropped {
		s.logger.Error("Event dropped", "session", key, "err", out.Err)
	}
	if out.Status != parley.StatusDuplicate {
		if msg, err := json.Marshal(newOutcomeResponse(key, out)); err == nil {
			s.Streams.Broadcast(key, string(msg))
		}
	}
	return out, true
}

// FlowSummary is the JSON view of a loaded flow.
type FlowSummary struct {
	ID        string   `json:"id"`
	Name      string   `json:"name,omitempty"`
	InitState string   `json:"init_state"`
	States    []string `json:"states"`
}

// ListFlows handles GET /v1/flows.
func (s *Server) ListFlows(w http.ResponseWriter, r *http.Request) {
	flows, err := s.Bot.Flows().List()
	if err != nil {
		http.Error(w, fmt.Sprintf("List error: %v", err), http.StatusInternalServerError)
		s.logger.Error("ListFlows failed", "err", err)
		return
	}

	resp := make([]FlowSummary, 0, len(flows))
	for _, f := range flows {
		sum := FlowSummary{ID: f.ID, Name: f.Name, InitState: f.InitState}
		for _, st := range f.States {
			sum.States = append(sum.States, st.Name)
		}
		resp = append(resp, sum)
	}
	writeJSON(w, s.logger, http.StatusOK, resp)
}

// ListSessions handles GET /v1/sessions.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Bot.Sessions(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("List error: %v", err), http.StatusInternalServerError)
		s.logger.Error("ListSessions failed", "err", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, s.logger, http.StatusOK, ids)
}

// GetSession handles GET /v1/sessions/{key}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	sess, err := s.Bot.Session(r.Context(), key)
	if err != nil {
		s.writeLookupError(w, "GetSession", key, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, sess)
}

// AbandonSession handles DELETE /v1/sessions/{key}?reason=...
func (s *Server) AbandonSession(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	rec, err := s.Bot.Abandon(r.Context(), key, r.URL.Query().Get("reason"))
	if err != nil {
		s.writeLookupError(w, "AbandonSession", key, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, rec)
}

// GetHistory handles GET /v1/sessions/{key}/history.
func (s *Server) GetHistory(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	records, err := s.Bot.History(r.Context(), key)
	if err != nil {
		s.writeLookupError(w, "GetHistory", key, err)
		return
	}
	if records == nil {
		records = []domain.ArchiveRecord{}
	}
	writeJSON(w, s.logger, http.StatusOK, records)
}

func (s *Server) writeLookupError(w http.ResponseWriter, op, key string, err error) {
	if errors.Is(err, domain.ErrSessionNotFound) {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	http.Error(w, fmt.Sprintf("%s error: %v", op, err), http.StatusInternalServerError)
	s.logger.Error(op+" failed", "session", key, "err", err)
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, map[string]string{
		"app":     "parley",
		"version": strings.TrimSpace(parley.Version),
	})
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Response encode failed", "err", err)
	}
}

// StreamManager fans outcome notifications out to SSE subscribers per session.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{}
}

func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
	}
}

// Subscribe registers a buffered channel for the session. The returned func unsubscribes
// and closes it.
func (sm *StreamManager) Subscribe(sessionID string) (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	if _, ok := sm.subscribers[sessionID]; !ok {
		sm.subscribers[sessionID] = make(map[chan<- string]struct{})
	}
	sm.subscribers[sessionID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[sessionID]; ok {
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, sessionID)
			}
		}
	}
}

// Broadcast delivers msg to every subscriber of the session without blocking.
func (sm *StreamManager) Broadcast(sessionID string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[sessionID] {
		select {
		case ch <- msg:
		default:
			// Slow client.
			slog.Warn("SSE: Client buffer full, dropping message", "session", sessionID)
		}
	}
}

// SubscribeSession handles GET /v1/sessions/{key}/stream (SSE of cycle outcomes).
func (s *Server) SubscribeSession(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}
	key := chi.URLParam(r, "key")

	ch, cancel := s.Streams.Subscribe(key)
	defer cancel()

	writeSSEHeaders(w)
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// SubscribeReloads handles GET /v1/events (SSE of flow reloads).
func (s *Server) SubscribeReloads(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	events, err := s.Bot.Watch(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("Watch error: %v", err), http.StatusNotImplemented)
		return
	}

	writeSSEHeaders(w)
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: reload\n\n")
			flusher.Flush()
		}
	}
}

func writeSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}
