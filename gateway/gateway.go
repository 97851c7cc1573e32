// Package gateway exposes the data access layer over HTTP: generic
// entity CRUD under /entities/{entity}, plus health and database
// introspection endpoints. Entities travel as logical JSON objects, the
// same shape the DAOs produce.
package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rowandb/rowan"
	"github.com/rowandb/rowan/dao"
	"github.com/rowandb/rowan/dialect/sql"
)

// Server routes entity requests to DAOs by entity name.
type Server struct {
	adapter *sql.Adapter
	daos    map[string]*dao.DAO
	logger  *slog.Logger
	router  chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New returns a server over the given adapter and DAOs. The DAO map is
// keyed by entity name as it appears in the URL.
func New(a *sql.Adapter, daos map[string]*dao.DAO, opts ...Option) *Server {
	s := &Server{
		adapter: a,
		daos:    daos,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Get("/health", s.health)
	r.Get("/dbinfo", s.dbinfo)
	r.Route("/entities/{entity}", func(r chi.Router) {
		r.Get("/", s.list)
		r.Post("/", s.create)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.get)
			r.Patch("/", s.update)
			r.Delete("/", s.delete)
		})
	})
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.InfoContext(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"elapsed", time.Since(start),
		)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	db := s.adapter.DB()
	if db == nil {
		writeError(w, http.StatusServiceUnavailable, rowan.ErrNotConnected)
		return
	}
	if err := db.PingContext(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) dbinfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.adapter.DatabaseInfo(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// dao resolves the {entity} URL parameter, writing 404 on unknown names.
func (s *Server) dao(w http.ResponseWriter, r *http.Request) *dao.DAO {
	name := chi.URLParam(r, "entity")
	d, ok := s.daos[name]
	if !ok {
		writeError(w, http.StatusNotFound, rowan.NewNotFoundError(name))
		return nil
	}
	return d
}

// Reserved query parameters; everything else becomes a field filter.
var reservedParams = map[string]bool{
	"limit":   true,
	"offset":  true,
	"order":   true,
	"fields":  true,
	"deleted": true,
}

// listQuery translates the query string into filters and find options.
// order takes comma-separated fields, "-" prefixed for descending.
// deleted=false excludes soft-deleted rows.
func listQuery(r *http.Request) (map[string]any, *dao.FindOptions, error) {
	q := r.URL.Query()
	opts := &dao.FindOptions{}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, nil, rowan.NewConfigurationError("gateway", "invalid limit %q", v)
		}
		opts.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, nil, rowan.NewConfigurationError("gateway", "invalid offset %q", v)
		}
		opts.Offset = n
	}
	for _, field := range splitList(q.Get("order")) {
		o := dao.Order{Field: field}
		if strings.HasPrefix(field, "-") {
			o = dao.Order{Field: field[1:], Direction: "DESC"}
		}
		opts.Order = append(opts.Order, o)
	}
	opts.Fields = splitList(q.Get("fields"))
	if q.Get("deleted") == "false" {
		opts.WithoutDeleted = true
	}

	filters := make(map[string]any)
	for key, values := range q {
		if reservedParams[key] || len(values) == 0 {
			continue
		}
		if len(values) > 1 {
			vs := make([]any, len(values))
			for i, v := range values {
				vs[i] = v
			}
			filters[key] = vs
			continue
		}
		filters[key] = values[0]
	}
	return filters, opts, nil
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	d := s.dao(w, r)
	if d == nil {
		return
	}
	filters, opts, err := listQuery(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	entities, err := d.FindBy(r.Context(), filters, opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if entities == nil {
		entities = []rowan.Entity{}
	}
	writeJSON(w, http.StatusOK, entities)
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	d := s.dao(w, r)
	if d == nil {
		return
	}
	entity, err := decodeEntity(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	created, err := d.Create(r.Context(), entity)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	d := s.dao(w, r)
	if d == nil {
		return
	}
	entity, err := d.FindByID(r.Context(), idParam(r), nil)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	d := s.dao(w, r)
	if d == nil {
		return
	}
	changes, err := decodeEntity(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	updated, err := d.Update(r.Context(), idParam(r), changes)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	d := s.dao(w, r)
	if d == nil {
		return
	}
	if err := d.Delete(r.Context(), idParam(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// idParam returns the {id} URL parameter, as int64 when it parses.
func idParam(r *http.Request) any {
	raw := chi.URLParam(r, "id")
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	return raw
}

func decodeEntity(r *http.Request) (rowan.Entity, error) {
	defer r.Body.Close()
	var entity rowan.Entity
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&entity); err != nil {
		return nil, err
	}
	// json.Number keeps integer ids exact; the mapper coerces them per
	// column type on the way down.
	for k, v := range entity {
		if n, ok := v.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				entity[k] = i
			} else if f, err := n.Float64(); err == nil {
				entity[k] = f
			}
		}
	}
	return entity, nil
}

// fail maps layer errors onto HTTP statuses.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case rowan.IsNotFound(err):
		status = http.StatusNotFound
	case rowan.IsConfiguration(err), rowan.IsBind(err), rowan.IsValidationError(err):
		status = http.StatusBadRequest
	case rowan.IsConstraintError(err):
		status = http.StatusConflict
	case errors.Is(err, rowan.ErrNotConnected):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	// Encoding a map of scalars and mapped rows does not fail in
	// practice; a broken value surfaces as a truncated body.
	_ = json.NewEncoder(w).Encode(v)
}
