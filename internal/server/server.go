// Package server exposes the audit engine over HTTP: catalog reads, workbook
// uploads, conflict queries, resolution writes and the report download.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ofs-tlaxcala/scil/internal/analyze"
	"github.com/ofs-tlaxcala/scil/internal/catalog"
	"github.com/ofs-tlaxcala/scil/internal/ingest"
	"github.com/ofs-tlaxcala/scil/internal/model"
	"github.com/ofs-tlaxcala/scil/internal/report"
	"github.com/ofs-tlaxcala/scil/internal/resolution"
)

// userHeader identifies the auditor on mutating requests for the audit trail.
const userHeader = "X-Scil-User"

// maxUploadBytes caps multipart workbook uploads (32 MiB covers the largest
// quincenal delivery seen so far).
const maxUploadBytes = 32 << 20

// Options configures the HTTP server.
type Options struct {
	Addr           string
	AllowedOrigins []string
	// RequireUser rejects mutating requests without the auditor header.
	RequireUser bool
	// CanView restricts which entity rows a principal sees in conflict
	// responses. Nil allows everything.
	CanView func(principal, clave string) bool
}

// Server wires the engine's components behind a chi router.
type Server struct {
	opts     Options
	catalog  *catalog.Catalog
	runner   *ingest.Runner
	analyzer *analyze.Analyzer
	tracker  *resolution.Tracker
	exporter *report.Exporter

	httpServer *http.Server
}

// New creates a Server.
func New(opts Options, cat *catalog.Catalog, runner *ingest.Runner, analyzer *analyze.Analyzer, tracker *resolution.Tracker, exporter *report.Exporter) *Server {
	return &Server{
		opts:     opts,
		catalog:  cat,
		runner:   runner,
		analyzer: analyzer,
		tracker:  tracker,
		exporter: exporter,
	}
}

// Handler builds the router. Exposed separately from ListenAndServe for
// httptest use.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowedHeaders: []string{"Accept", "Content-Type", userHeader},
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(60 * time.Second))

		r.Get("/entities", s.handleListEntities)
		r.Get("/conflicts", s.handleListConflicts)
		r.Get("/conflicts/{rfc}", s.handleGetConflicts)
		r.Get("/anomalies", s.handleListAnomalies)
		r.Get("/anomalies/{rfc}", s.handleGetAnomalies)
		r.Get("/report", s.handleReport)

		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)
			r.Post("/imports", s.handleImport)
			r.Put("/resolutions/{rfc}/{clave}", s.handlePutResolution)
		})
	})

	return r
}

// ListenAndServe starts the server and blocks until Shutdown or failure.
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	zap.L().Info("server: listening", zap.String("addr", s.opts.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !eris.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server: listen")
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// requireUser tags mutating requests with the auditor identity. With
// RequireUser set, anonymous writes are rejected.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := r.Header.Get(userHeader)
		if user == "" && s.opts.RequireUser {
			writeError(w, http.StatusUnauthorized, eris.New("missing "+userHeader+" header"))
			return
		}
		if user != "" {
			zap.L().Info("server: authenticated request",
				zap.String("user", user),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
			)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	entities, err := s.catalog.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, entities)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, eris.Wrap(err, "parse multipart form"))
		return
	}

	var sheets []ingest.Sheet
	var sources string
	files := r.MultipartForm.File["workbook"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, eris.New("missing workbook file field"))
		return
	}
	for _, header := range files {
		f, err := header.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, eris.Wrap(err, "open upload"))
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, eris.Wrap(err, "read upload"))
			return
		}
		fileSheets, err := ingest.ReadWorkbookBytes(data)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		sheets = append(sheets, fileSheets...)
		if sources != "" {
			sources += ","
		}
		sources += header.Filename
	}

	result, err := s.runner.Run(r.Context(), sources, sheets)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// filterGroup strips entity rows the principal may not view. Returns nil when
// nothing remains visible.
func (s *Server) filterGroup(principal string, group model.ConflictGroup) *model.ConflictGroup {
	if s.opts.CanView == nil {
		return &group
	}
	var visible []model.EntityOverlap
	for _, entity := range group.Entities {
		if s.opts.CanView(principal, entity.EntityClave) {
			visible = append(visible, entity)
		}
	}
	if len(visible) == 0 {
		return nil
	}
	group.Entities = visible
	return &group
}

func (s *Server) handleListConflicts(w http.ResponseWriter, r *http.Request) {
	groups, err := s.analyzer.FindAllConflicts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	principal := r.Header.Get(userHeader)
	visible := make([]model.ConflictGroup, 0, len(groups))
	for _, group := range groups {
		if g := s.filterGroup(principal, group); g != nil {
			visible = append(visible, *g)
		}
	}
	writeJSON(w, http.StatusOK, visible)
}

func (s *Server) handleGetConflicts(w http.ResponseWriter, r *http.Request) {
	rfc := chi.URLParam(r, "rfc")
	group, err := s.analyzer.FindConflicts(r.Context(), rfc)
	if err != nil {
		if eris.Is(err, analyze.ErrNoRecords) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if group == nil {
		// Records exist, no overlap: an explicit empty finding, not a 404.
		writeJSON(w, http.StatusOK, map[string]any{"rfc": rfc, "conflicto": false})
		return
	}
	visible := s.filterGroup(r.Header.Get(userHeader), *group)
	if visible == nil {
		writeError(w, http.StatusForbidden, eris.New("no visible entities for principal"))
		return
	}
	writeJSON(w, http.StatusOK, visible)
}

func (s *Server) handleListAnomalies(w http.ResponseWriter, r *http.Request) {
	findings, err := s.analyzer.FindAllDateAnomalies(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if findings == nil {
		findings = []analyze.DateFinding{}
	}
	writeJSON(w, http.StatusOK, findings)
}

func (s *Server) handleGetAnomalies(w http.ResponseWriter, r *http.Request) {
	rfc := chi.URLParam(r, "rfc")
	findings, err := s.analyzer.FindDateAnomalies(r.Context(), rfc)
	if err != nil {
		if eris.Is(err, analyze.ErrNoRecords) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if findings == nil {
		findings = []analyze.DateFinding{}
	}
	writeJSON(w, http.StatusOK, findings)
}

type resolutionRequest struct {
	Estado     model.Status `json:"estado"`
	Comentario string       `json:"comentario"`
}

func (s *Server) handlePutResolution(w http.ResponseWriter, r *http.Request) {
	rfc := chi.URLParam(r, "rfc")
	clave := chi.URLParam(r, "clave")

	var body resolutionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, eris.Wrap(err, "decode body"))
		return
	}

	res, err := s.tracker.SetStatus(r.Context(), rfc, clave, body.Estado, body.Comentario)
	if err != nil {
		if eris.Is(err, resolution.ErrInvalidStatus) {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	groups, err := s.analyzer.FindAllConflicts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	rows, err := s.exporter.BuildRows(r.Context(), groups)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="incompatibilidades.xlsx"`)
	if err := report.WriteXLSX(rows, w); err != nil {
		zap.L().Error("server: write report", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		zap.L().Error("server: request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": eris.Cause(err).Error()})
}
