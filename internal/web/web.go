package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"studiosync/internal/config"
	appLog "studiosync/internal/log"
	"studiosync/internal/model"
	"studiosync/internal/runner"
	"studiosync/internal/store"
)

// Syncer runs syncs on request.
type Syncer interface {
	Incremental(ctx context.Context, calendarID string) ([]runner.Report, error)
	Full(ctx context.Context, calendarID string) ([]runner.Report, error)
	Notify(ctx context.Context, n runner.Notification) ([]runner.Report, error)
	Status(ctx context.Context) (model.SyncStatus, error)
	Streams() []string
}

// Records reads stored records and channels.
type Records interface {
	Record(ctx context.Context, id string) (model.Record, error)
	RecordsByDate(ctx context.Context, date string) ([]model.Record, error)
	LatestChannel(ctx context.Context, streamID string) (model.Channel, error)
}

// Watcher opens push channels.
type Watcher interface {
	Setup(ctx context.Context, calendarID string) (model.Channel, error)
}

// Server provides the webhook, health and operator APIs.
type Server struct {
	cfg     *config.Config
	sync    Syncer
	records Records
	watcher Watcher
	router  *mux.Router
	now     func() time.Time
}

// NewServer constructs a new Server. watcher may be nil when no calendar
// supports push channels.
func NewServer(cfg *config.Config, s Syncer, records Records, watcher Watcher) *Server {
	srv := &Server{
		cfg:     cfg,
		sync:    s,
		records: records,
		watcher: watcher,
		router:  mux.NewRouter(),
		now:     time.Now,
	}
	srv.registerRoutes()
	return srv
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/webhook", s.handleWebhook).Methods(http.MethodPost)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// /api routes hang off the root router. A PathPrefix subrouter copies its
	// prefix matcher into every route, which turns a method mismatch into 404.
	protect := func(h http.HandlerFunc) http.Handler { return h }
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled for /api")
		protect = func(h http.HandlerFunc) http.Handler { return s.basicAuthMiddleware(h) }
	}
	s.router.Handle("/api/sync/incremental", protect(s.handleSync(s.sync.Incremental))).Methods(http.MethodPost)
	s.router.Handle("/api/sync/full", protect(s.handleSync(s.sync.Full))).Methods(http.MethodPost)
	s.router.Handle("/api/watch", protect(s.handleWatch)).Methods(http.MethodPost)
	s.router.Handle("/api/records", protect(s.handleRecordsByDate)).Methods(http.MethodGet)
	s.router.Handle("/api/records/{id}", protect(s.handleRecord)).Methods(http.MethodGet)
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="studiosync", charset="UTF-8"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

type channelHealth struct {
	Status  string    `json:"status"`
	Expires time.Time `json:"expires,omitzero"`
}

type healthResponse struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Sync      model.SyncStatus         `json:"sync"`
	Channels  map[string]channelHealth `json:"channels"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, err := s.sync.Status(ctx)
	if err != nil {
		appLog.Error("health: status load failed", err)
		writeError(w, http.StatusInternalServerError, "status unavailable")
		return
	}

	now := s.now()
	channels := make(map[string]channelHealth)
	for _, id := range s.sync.Streams() {
		ch, err := s.records.LatestChannel(ctx, id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			channels[id] = channelHealth{Status: "unknown"}
		case err != nil:
			appLog.Error("health: channel load failed", err, "calendar", id)
			channels[id] = channelHealth{Status: "unknown"}
		case ch.Expiration.After(now):
			hours := int(ch.Expiration.Sub(now).Round(time.Hour) / time.Hour)
			channels[id] = channelHealth{Status: fmt.Sprintf("active (%dh left)", hours), Expires: ch.Expiration}
		default:
			channels[id] = channelHealth{Status: "expired", Expires: ch.Expiration}
		}
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: now.UTC(),
		Sync:      st,
		Channels:  channels,
	})
}

type webhookResponse struct {
	Status  string          `json:"status"`
	Reports []runner.Report `json:"reports,omitempty"`
}

// handleWebhook receives calendar push notifications. All notification
// data travels in X-Goog-* headers; the body is empty.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if want := s.cfg.Webhook.Token; want != "" && !secureCompare(r.Header.Get("X-Goog-Channel-Token"), want) {
		appLog.Warn("webhook rejected: bad channel token", "channel", r.Header.Get("X-Goog-Channel-ID"))
		writeError(w, http.StatusForbidden, "invalid channel token")
		return
	}

	n := runner.Notification{
		ChannelID:  r.Header.Get("X-Goog-Channel-ID"),
		ResourceID: r.Header.Get("X-Goog-Resource-ID"),
		State:      r.Header.Get("X-Goog-Resource-State"),
	}
	appLog.Info("webhook received",
		"channel", n.ChannelID,
		"resource", n.ResourceID,
		"state", n.State,
		"message", r.Header.Get("X-Goog-Message-Number"),
	)

	reports, err := s.sync.Notify(r.Context(), n)
	if err != nil {
		appLog.Error("webhook processing failed", err, "channel", n.ChannelID)
		writeError(w, http.StatusInternalServerError, "webhook processing failed")
		return
	}

	resp := webhookResponse{Status: "ok", Reports: reports}
	switch {
	case n.State == "sync":
		resp.Status = "sync_acknowledged"
	case fellBack(reports):
		resp.Status = "full_sync_completed"
	case len(reports) > 0:
		resp.Status = "success"
	}
	writeJSON(w, http.StatusOK, resp)
}

func fellBack(reports []runner.Report) bool {
	for _, rep := range reports {
		if rep.FellBack {
			return true
		}
	}
	return false
}

type syncResponse struct {
	Reports []runner.Report `json:"reports"`
	Error   string          `json:"error,omitempty"`
}

func (s *Server) handleSync(run func(context.Context, string) ([]runner.Report, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reports, err := run(r.Context(), r.URL.Query().Get("calendar"))
		switch {
		case errors.Is(err, runner.ErrUnknownStream):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, runner.ErrStreamBusy):
			writeJSON(w, http.StatusConflict, syncResponse{Reports: reports, Error: err.Error()})
		case err != nil:
			writeJSON(w, http.StatusInternalServerError, syncResponse{Reports: reports, Error: err.Error()})
		default:
			writeJSON(w, http.StatusOK, syncResponse{Reports: reports})
		}
	}
}

func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	if s.watcher == nil {
		writeError(w, http.StatusNotImplemented, "push channels are not configured")
		return
	}
	id := r.URL.Query().Get("calendar")
	if id == "" {
		writeError(w, http.StatusBadRequest, "calendar is required")
		return
	}
	ch, err := s.watcher.Setup(r.Context(), id)
	if err != nil {
		appLog.Error("watch setup failed", err, "calendar", id)
		writeError(w, http.StatusInternalServerError, "watch setup failed")
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := s.records.Record(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	if err != nil {
		appLog.Error("record load failed", err, "id", id)
		writeError(w, http.StatusInternalServerError, "failed to load record")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleRecordsByDate(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	recs, err := s.records.RecordsByDate(r.Context(), date)
	if err != nil {
		appLog.Error("records load failed", err, "date", date)
		writeError(w, http.StatusInternalServerError, "failed to load records")
		return
	}
	if recs == nil {
		recs = []model.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// StartServer serves the handler on cfg.Listen until ctx is cancelled, then
// shuts down gracefully.
func StartServer(ctx context.Context, cfg *config.Config, h http.Handler) error {
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	appLog.Info("shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
