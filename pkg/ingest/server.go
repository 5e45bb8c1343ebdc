package ingest

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/DeBrosOfficial/logfan/pkg/compat"
	"github.com/DeBrosOfficial/logfan/pkg/httputil"
	"github.com/DeBrosOfficial/logfan/pkg/logging"
	"github.com/DeBrosOfficial/logfan/pkg/monitor"
	"github.com/DeBrosOfficial/logfan/pkg/redact"
)

const (
	// maxBatchEntries bounds one append request.
	maxBatchEntries = 1000

	// maxReplayLines bounds the replay endpoint regardless of the
	// requested limit.
	maxReplayLines = 10000

	// wsWriteWait caps a single websocket write.
	wsWriteWait = 10 * time.Second

	// wsPingPeriod keeps idle tail connections alive.
	wsPingPeriod = 30 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Tails are read-only and key-gated; any origin may connect.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Options configure the ingestion server.
type Options struct {
	// Dir is where log files are stored.
	Dir string

	// APIKey gates the /v1 routes. Empty disables authentication.
	APIKey string

	// Logger carries the server's own request and error logging.
	// Optional; a sinkless logger is used when absent.
	Logger *logging.MultiLogger

	// Monitor, when set, backs the /health endpoint.
	Monitor *monitor.Monitor

	// Redactor scrubs incoming entries again before they touch disk.
	// Clients redact on their side, but the server does not take their
	// word for it. Defaults to redact.Default().
	Redactor *redact.Redactor
}

// Server is the HTTP ingestion endpoint log batches are posted to.
type Server struct {
	store    *Store
	hub      *tailHub
	log      *compat.Shim
	mon      *monitor.Monitor
	redactor *redact.Redactor
	apiKey   string
	router   *chi.Mux
}

// NewServer builds the server and its route table.
func NewServer(opts Options) (*Server, error) {
	store, err := NewStore(opts.Dir)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.New(logging.Options{MinLevel: logging.LevelInfo})
	}
	redactor := opts.Redactor
	if redactor == nil {
		redactor = redact.Default()
	}

	s := &Server{
		store:    store,
		hub:      newTailHub(),
		log:      compat.NewShim(logger).Child("ingest"),
		mon:      opts.Monitor,
		redactor: redactor,
		apiKey:   opts.APIKey,
	}
	s.router = s.routes()
	return s, nil
}

// Store exposes the underlying file store.
func (s *Server) Store() *Store { return s.store }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close drops all live tail connections. In-flight appends finish on
// their own; the store holds no background state.
func (s *Server) Close() {
	s.hub.closeAll()
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(compat.Middleware(s.log.Child("http")))
	r.Use(chimw.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Get("/health", s.handleHealth)
		r.Post("/logs", s.handleAppend)
		r.Get("/logs", s.handleList)
		r.Get("/logs/{filename}", s.handleReplay)
		r.Get("/logs/{filename}/tail", s.handleTail)
	})
	return r
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		key := httputil.ExtractAPIKey(r)
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
			httputil.WriteError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// appendRequest is the wire shape the client file sink posts.
type appendRequest struct {
	Filename string    `json:"filename"`
	Data     batchData `json:"data"`
}

type batchData struct {
	BatchID   string          `json:"batchId"`
	SessionID string          `json:"sessionId"`
	Timestamp time.Time       `json:"timestamp"`
	Entries   []logging.Entry `json:"entries"`
}

func (s *Server) handleAppend(w http.ResponseWriter, r *http.Request) {
	var req appendRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Filename == "" {
		httputil.WriteError(w, http.StatusBadRequest, "filename is required")
		return
	}
	if len(req.Data.Entries) == 0 {
		httputil.WriteError(w, http.StatusBadRequest, "batch has no entries")
		return
	}
	if len(req.Data.Entries) > maxBatchEntries {
		httputil.WriteError(w, http.StatusBadRequest, "batch too large")
		return
	}

	entries := req.Data.Entries
	for i := range entries {
		entries[i] = s.redactor.RedactEntry(entries[i])
	}

	// Older clients sent no batch id; session plus batch timestamp
	// identifies their batches well enough for the dedupe window.
	batchID := req.Data.BatchID
	if batchID == "" && req.Data.SessionID != "" && !req.Data.Timestamp.IsZero() {
		batchID = req.Data.SessionID + ":" + req.Data.Timestamp.UTC().Format(time.RFC3339Nano)
	}

	lines, duplicate, err := s.store.Append(req.Filename, batchID, entries)
	switch {
	case errors.Is(err, ErrBadFilename):
		httputil.WriteError(w, http.StatusBadRequest, "invalid filename")
		return
	case err != nil:
		s.log.Error("batch append failed", err, map[string]any{
			"filename": req.Filename,
			"entries":  len(req.Data.Entries),
		})
		httputil.WriteError(w, http.StatusInternalServerError, "could not persist batch")
		return
	}
	if duplicate {
		httputil.WriteSuccessWithData(w, map[string]any{"appended": 0, "duplicate": true})
		return
	}

	s.hub.publish(req.Filename, lines)
	httputil.WriteSuccessWithData(w, map[string]any{"appended": len(lines)})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	files, err := s.store.Files()
	if err != nil {
		s.log.Error("list failed", err)
		httputil.WriteError(w, http.StatusInternalServerError, "could not list log files")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	limit := httputil.QueryParamInt(r, "limit", defaultTailLimit)
	if limit > maxReplayLines {
		limit = maxReplayLines
	}

	floor := logging.LevelDebug
	haveFloor := false
	if lvl := httputil.QueryParam(r, "level", ""); lvl != "" {
		parsed, err := logging.ParseLevel(lvl)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "unknown level")
			return
		}
		floor = parsed
		haveFloor = true
	}

	lines, err := s.store.Tail(filename, limit)
	switch {
	case errors.Is(err, ErrBadFilename):
		httputil.WriteError(w, http.StatusBadRequest, "invalid filename")
		return
	case err != nil && os.IsNotExist(err):
		httputil.WriteError(w, http.StatusNotFound, "no such log file")
		return
	case err != nil:
		s.log.Error("replay failed", err, map[string]any{"filename": filename})
		httputil.WriteError(w, http.StatusInternalServerError, "could not read log file")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	for _, line := range lines {
		if haveFloor && !lineAtLeast(line, floor) {
			continue
		}
		w.Write(line)
		w.Write([]byte("\n"))
	}
}

// lineAtLeast checks the stored line's level against the floor. Lines
// that do not parse pass through rather than vanish.
func lineAtLeast(line []byte, floor logging.Level) bool {
	var probe struct {
		Level logging.Level `json:"level"`
	}
	if err := json.Unmarshal(line, &probe); err != nil {
		return true
	}
	return probe.Level >= floor
}

func (s *Server) handleTail(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if !ValidFilename(filename) {
		httputil.WriteError(w, http.StatusBadRequest, "invalid filename")
		return
	}
	backlog := httputil.QueryParamInt(r, "backlog", 0)
	if backlog > maxReplayLines {
		backlog = maxReplayLines
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error to the client.
		s.log.Warn("tail upgrade failed", err, map[string]any{"filename": filename})
		return
	}
	defer conn.Close()

	sub := s.hub.subscribe(filename)
	defer s.hub.unsubscribe(filename, sub)

	if backlog > 0 {
		lines, err := s.store.Tail(filename, backlog)
		if err != nil && !os.IsNotExist(err) {
			s.log.Warn("tail backlog failed", err, map[string]any{"filename": filename})
		}
		for _, line := range lines {
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, line); err != nil {
				return
			}
		}
	}

	done := make(chan struct{})
	go s.tailWriter(conn, sub, done)

	// Reader loop: drains control frames and notices the peer leaving.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	close(done)

	if n := sub.dropped.Load(); n > 0 {
		s.log.Warn("slow tail consumer", map[string]any{
			"filename": filename,
			"dropped":  n,
		})
	}
}

func (s *Server) tailWriter(conn *websocket.Conn, sub *tailSub, done chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case line, ok := <-sub.lines:
			if !ok {
				deadline := time.Now().Add(wsWriteWait)
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
				_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
				_ = conn.Close()
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, line); err != nil {
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
		case <-done:
			return
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.mon == nil {
		httputil.WriteSuccess(w)
		return
	}
	h := s.mon.Health()
	code := http.StatusOK
	if h.State == monitor.StateUnhealthy {
		code = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, code, h)
}
