package stubstore

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/goliatone/go-errors"

	"github.com/goliatone/go-todo-sync/todo"
)

// ServerConfig configures Server.
type ServerConfig struct {
	Shape           Shape
	DefaultPageSize int
	MaxPageSize     int
	MaxBodyBytes    int64
}

// DefaultServerConfig mirrors the defaults of a stock Strapi install.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Shape:           ShapeFlattened,
		DefaultPageSize: 25,
		MaxPageSize:     100,
		MaxBodyBytes:    1 << 20,
	}
}

// Server serves the todo collection over HTTP.
type Server struct {
	repo   Repository
	cfg    ServerConfig
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewServer returns a handler for repo. Zero config fields take their
// defaults.
func NewServer(repo Repository, cfg ServerConfig, logger *slog.Logger) *Server {
	defaults := DefaultServerConfig()
	if cfg.Shape == "" {
		cfg.Shape = defaults.Shape
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = defaults.DefaultPageSize
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = defaults.MaxPageSize
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaults.MaxBodyBytes
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		repo:   repo,
		cfg:    cfg,
		logger: logger.With("component", "stub_server", "shape", string(cfg.Shape)),
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	s.mux.HandleFunc("GET "+todo.CollectionPath, s.handleList)
	s.mux.HandleFunc("POST "+todo.CollectionPath, s.handleCreate)
	s.mux.HandleFunc("GET "+todo.CollectionPath+"/{ref}", s.handleGet)
	s.mux.HandleFunc("PUT "+todo.CollectionPath+"/{ref}", s.handleUpdate)
	s.mux.HandleFunc("DELETE "+todo.CollectionPath+"/{ref}", s.handleDelete)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	s.logger.Debug("request",
		"method", r.Method,
		"path", r.URL.Path,
		"status", rec.status,
		"duration", time.Since(started),
	)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	params := todo.DecodeListQuery(r.URL.Query(), s.cfg.DefaultPageSize)
	params.PageSize = min(params.PageSize, s.cfg.MaxPageSize)

	rows, total, err := s.repo.List(r.Context(), CriteriaFor(params))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Shape.listBody(rows, params.Page, params.PageSize, total))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	row, err := s.repo.Get(r.Context(), r.PathValue("ref"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Shape.itemBody(row))
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Data struct {
			Title string `json:"title"`
			Done  bool   `json:"done"`
		} `json:"data"`
	}
	if err := s.decode(w, r, &body); err != nil {
		s.writeFailure(w, err)
		return
	}

	row, err := s.repo.Create(r.Context(), body.Data.Title, body.Data.Done)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.logger.Info("todo created", "id", row.ID, "document_id", row.DocumentID)
	writeJSON(w, http.StatusCreated, s.cfg.Shape.itemBody(row))
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Data Patch `json:"data"`
	}
	if err := s.decode(w, r, &body); err != nil {
		s.writeFailure(w, err)
		return
	}

	row, err := s.repo.Update(r.Context(), r.PathValue("ref"), body.Data)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Shape.itemBody(row))
}

// handleDelete answers 204 for flattened backends and echoes the removed
// record otherwise.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	row, err := s.repo.Delete(r.Context(), r.PathValue("ref"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.logger.Info("todo deleted", "id", row.ID, "document_id", row.DocumentID)
	if s.cfg.Shape == ShapeFlattened {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Shape.itemBody(row))
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return errors.Wrap(err, errors.CategoryBadInput, "invalid request body").
			WithCode(http.StatusBadRequest).
			WithTextCode("BAD_REQUEST")
	}
	return nil
}

func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	status, name := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeError(w, status, name, todo.Message(err))
}

// statusOf maps err to an HTTP status and a Strapi error name.
func statusOf(err error) (int, string) {
	switch {
	case errors.IsCategory(err, errors.CategoryValidation):
		return http.StatusBadRequest, "ValidationError"
	case errors.IsCategory(err, errors.CategoryBadInput):
		return http.StatusBadRequest, "BadRequestError"
	case errors.IsCategory(err, errors.CategoryNotFound):
		return http.StatusNotFound, "NotFoundError"
	}
	return http.StatusInternalServerError, "InternalServerError"
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, name, message string) {
	writeJSON(w, status, map[string]any{
		"data": nil,
		"error": map[string]any{
			"status":  status,
			"name":    name,
			"message": message,
		},
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
