// Package web exposes imports, practice sessions, stats and source
// management as a JSON API.
package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/lexicard/internal/clock"
	"github.com/conorfennell/lexicard/internal/domain"
	"github.com/conorfennell/lexicard/internal/importer"
	"github.com/conorfennell/lexicard/internal/parser"
	"github.com/conorfennell/lexicard/internal/session"
	"github.com/conorfennell/lexicard/internal/stats"
	"github.com/conorfennell/lexicard/internal/storage"
	vocabsync "github.com/conorfennell/lexicard/internal/sync"
)

const (
	maxBodyBytes       = 8 << 20
	defaultImportLimit = 20

	defaultSessionIdle = 2 * time.Hour
	defaultMaxSessions = 1000
)

// Deps are the collaborators the server routes requests to.
type Deps struct {
	DB       *storage.DB
	Importer *importer.Importer
	Composer *session.Composer
	Syncer   *vocabsync.Syncer
	Stats    *stats.Aggregator
	Clock    clock.Clock
	Logger   *slog.Logger

	// Session defaults used when a request leaves them out.
	SessionSize int
	Mode        domain.QuizMode

	// Live sessions untouched for SessionIdle are dropped, and at most
	// MaxSessions are kept. Zero picks the defaults.
	SessionIdle time.Duration
	MaxSessions int
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	Deps
	router   *http.ServeMux
	validate *validator.Validate

	mu       sync.Mutex
	sessions map[string]*liveSession
}

// NewServer creates and configures a new server.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = clock.System
	}
	if deps.SessionIdle <= 0 {
		deps.SessionIdle = defaultSessionIdle
	}
	if deps.MaxSessions <= 0 {
		deps.MaxSessions = defaultMaxSessions
	}
	s := &Server{
		Deps:     deps,
		router:   http.NewServeMux(),
		validate: validator.New(),
		sessions: make(map[string]*liveSession),
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.HandleFunc("POST /imports", s.handlePostImport())
	s.router.HandleFunc("GET /imports", s.handleGetImports())

	s.router.HandleFunc("POST /sessions", s.handlePostSession())
	s.router.HandleFunc("GET /sessions/{id}", s.handleGetSession())
	s.router.HandleFunc("POST /sessions/{id}/reveal", s.handleReveal())
	s.router.HandleFunc("POST /sessions/{id}/grade", s.handleGrade())
	s.router.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession())

	s.router.HandleFunc("GET /stats", s.handleGetStats())

	s.router.HandleFunc("GET /sources", s.handleGetSources())
	s.router.HandleFunc("POST /sources", s.handlePostSource())
	s.router.HandleFunc("DELETE /sources/{id}", s.handleDeleteSource())
	s.router.HandleFunc("POST /sync", s.handlePostSync())
}

type importRequest struct {
	Label   string          `json:"label" validate:"required,max=500"`
	Rows    []domain.RawRow `json:"rows" validate:"max=50000"`
	Content string          `json:"content"`
}

// handlePostImport imports a batch given either as JSON rows or as a
// tab-separated body labelled by the ?label= query parameter.
func (s *Server) handlePostImport() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

		var req importRequest
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		switch mediaType {
		case "text/tab-separated-values", "text/plain":
			content, err := io.ReadAll(r.Body)
			if err != nil {
				writeError(w, http.StatusBadRequest, "failed to read body")
				return
			}
			rows, err := parser.Parse(bytes.NewReader(content))
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			req = importRequest{Label: r.URL.Query().Get("label"), Rows: rows, Content: string(content)}
		default:
			if !s.decode(w, r, &req) {
				return
			}
		}
		if err := s.validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		report, err := s.Importer.Import(r.Context(), importer.Batch{
			Label:   req.Label,
			Rows:    req.Rows,
			Content: []byte(req.Content),
		})
		if err != nil {
			s.Logger.Error("Import failed", "batch", req.Label, "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

// handleGetImports lists recent import batches, newest first.
func (s *Server) handleGetImports() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultImportLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 1000 {
				writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
				return
			}
			limit = n
		}
		batches, err := s.DB.ImportBatches(r.Context(), limit)
		if err != nil {
			s.Logger.Error("Error getting import batches", "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if batches == nil {
			batches = []domain.ImportBatchRecord{}
		}
		writeJSON(w, http.StatusOK, batches)
	}
}

// handleGetStats returns the practice rollups.
func (s *Server) handleGetStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := s.Stats.Compute(r.Context())
		if err != nil {
			s.Logger.Error("Error computing stats", "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

// handleGetSources lists the registered sources.
func (s *Server) handleGetSources() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources, err := s.DB.GetAllSources(r.Context())
		if err != nil {
			s.Logger.Error("Error getting sources", "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if sources == nil {
			sources = []storage.Source{}
		}
		writeJSON(w, http.StatusOK, sources)
	}
}

type sourceRequest struct {
	Path string `json:"path" validate:"required,max=2000"`
}

// handlePostSource registers a local directory or git repository.
func (s *Server) handlePostSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sourceRequest
		if !s.decode(w, r, &req) {
			return
		}
		if err := s.validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		path, sourceType, err := vocabsync.DetectSourceType(req.Path)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if _, err := s.DB.FindSourceByPath(r.Context(), path); err == nil {
			writeError(w, http.StatusConflict, "source already exists")
			return
		} else if !errors.Is(err, storage.ErrNotFound) {
			s.Logger.Error("Error checking source", "path", path, "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		id, err := s.DB.InsertSource(r.Context(), path, sourceType)
		if err != nil {
			s.Logger.Error("Error inserting new source", "path", path, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to add source")
			return
		}
		writeJSON(w, http.StatusCreated, storage.Source{ID: id, Path: path, Type: sourceType})
	}
}

// handleDeleteSource removes a source. Its cards stay.
func (s *Server) handleDeleteSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid source ID")
			return
		}
		if err := s.DB.DeleteSource(r.Context(), id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				writeError(w, http.StatusNotFound, "source not found")
				return
			}
			s.Logger.Error("Error deleting source", "id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to delete source")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handlePostSync syncs every source in the foreground and reports the result.
func (s *Server) handlePostSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := s.Syncer.Run(r.Context())
		if err != nil {
			s.Logger.Error("Sync failed", "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// decode reads a JSON body into v, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
