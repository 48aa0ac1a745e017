package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/Jeffrey0117/Ytify/internal/history"
	ioutils "github.com/Jeffrey0117/Ytify/internal/io"
	"github.com/Jeffrey0117/Ytify/internal/service"
)

// HistoryStore is the part of the history store the API serves.
type HistoryStore interface {
	List(ctx context.Context, limit int) ([]history.Entry, error)
	Clear(ctx context.Context) (int64, error)
}

// StatusLookup resolves jobs this process no longer (or never) held in
// memory, such as the Redis status mirror.
type StatusLookup interface {
	Lookup(ctx context.Context, jobID string) (map[string]string, error)
}

// Options configures a Server.
type Options struct {
	Service *service.Service

	// History and Mirror are optional.
	History HistoryStore
	Mirror  StatusLookup

	// DownloadsDir is where finished files are listed from and deleted.
	DownloadsDir string

	Logger *slog.Logger
}

// Server is the HTTP and websocket surface of the download service.
//
// Example:
//
//	srv := api.NewServer(api.Options{Service: svc, History: store, DownloadsDir: "downloads"})
//	http.ListenAndServe(":8765", srv.Handler())
type Server struct {
	svc          *service.Service
	history      HistoryStore
	mirror       StatusLookup
	downloadsDir string
	logger       *slog.Logger
	upgrader     websocket.Upgrader
}

// NewServer creates a Server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		svc:          opts.Service,
		history:      opts.History,
		mirror:       opts.Mirror,
		downloadsDir: opts.DownloadsDir,
		logger:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logRequests, cors)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/download", s.handleDownload).Methods(http.MethodPost)
	api.HandleFunc("/status", s.handleQueue).Methods(http.MethodGet)
	api.HandleFunc("/status/{id}", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/jobs", s.handleJobs).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}", s.handleCancel).Methods(http.MethodDelete)
	api.HandleFunc("/queue", s.handleQueue).Methods(http.MethodGet)
	api.HandleFunc("/proxies", s.handleProxies).Methods(http.MethodGet)
	api.HandleFunc("/proxies/bad", s.handleClearProxies).Methods(http.MethodDelete)
	api.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/history", s.handleClearHistory).Methods(http.MethodDelete)
	api.HandleFunc("/files", s.handleFiles).Methods(http.MethodGet)
	api.HandleFunc("/files/{name:.+}", s.handleDeleteFile).Methods(http.MethodDelete)
	api.HandleFunc("/download-file/{name:.+}", s.handleServeFile).Methods(http.MethodGet)

	r.HandleFunc("/ws", s.handleWebsocket)
	r.HandleFunc("/ws/{id}", s.handleWebsocket)

	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": service.Version})
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	files, err := ioutils.ListMedia(s.downloadsDir)
	if err != nil {
		s.logger.Error("list files failed", "error", err)
		writeError(w, http.StatusInternalServerError, "cannot list files")
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	ok, err := ioutils.DeleteMedia(s.downloadsDir, name)
	switch {
	case errors.Is(err, ioutils.ErrOutsideDir):
		writeError(w, http.StatusForbidden, "access denied")
		return
	case err != nil:
		s.logger.Error("delete file failed", "name", name, "error", err)
		writeError(w, http.StatusInternalServerError, "cannot delete file")
		return
	case !ok:
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "File deleted"})
}

func (s *Server) handleServeFile(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	path, err := ioutils.SafeJoin(s.downloadsDir, name)
	if err != nil {
		writeError(w, http.StatusForbidden, "access denied")
		return
	}
	f, err := os.Open(path)
	if err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	w.Header().Set("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(name))
	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusOK, []history.Entry{})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.history.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("list history failed", "error", err)
		writeError(w, http.StatusInternalServerError, "cannot read history")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	var n int64
	if s.history != nil {
		var err error
		if n, err = s.history.Clear(r.Context()); err != nil {
			s.logger.Error("clear history failed", "error", err)
			writeError(w, http.StatusInternalServerError, "cannot clear history")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": n, "message": "History cleared"})
}

func (s *Server) handleProxies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.ProxyStats())
}

func (s *Server) handleClearProxies(w http.ResponseWriter, r *http.Request) {
	n := s.svc.ClearBadProxies()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "cleared": n})
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Stats())
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request", "method", r.Method, "path", r.URL.Path,
			"status", rec.status, "duration", time.Since(start))
	})
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack lets websocket upgrades through the logging middleware.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("api: response writer cannot be hijacked")
	}
	return h.Hijack()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
