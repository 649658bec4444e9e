// Package server exposes report export over HTTP.
//
//	GET  /healthz
//	POST /v1/exports  {"report": "<report text>", "series": {"<chart id>": [{"t": ..., "v": ...}]}}
//
// A successful export answers with the PDF itself. Series are only taken
// from the request body; file and URL references are refused.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"html"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/microcosm-cc/bluemonday"

	"github.com/ByLCY/chartfolio/compose"
	"github.com/ByLCY/chartfolio/dataset"
	"github.com/ByLCY/chartfolio/dsl"
	"github.com/ByLCY/chartfolio/layout"
	"github.com/ByLCY/chartfolio/poll"
	"github.com/ByLCY/chartfolio/rasterize"
	"github.com/ByLCY/chartfolio/report"
)

const defaultMaxBody = 8 << 20

// Options configures a Server.
type Options struct {
	Geometry     layout.PageGeometry
	Readiness    poll.Budget
	MaxBodyBytes int64
	// MaxSidePx caps the bitmap of every exported page; 0 means the rasterize default.
	MaxSidePx float64
}

// Server handles export requests with a shared Composer.
type Server struct {
	composer *compose.Composer
	opts     Options
	policy   *bluemonday.Policy
	logger   *slog.Logger
	router   *chi.Mux
}

// New builds a Server. A nil composer uses compose.New defaults.
func New(c *compose.Composer, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if c == nil {
		c = compose.New(nil, nil, logger)
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBody
	}
	s := &Server{composer: c, opts: opts, policy: bluemonday.StrictPolicy(), logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Post("/v1/exports", s.handleExport)
	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server: listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// ExportRequest is the body of POST /v1/exports.
type ExportRequest struct {
	Report string                    `json:"report"`
	Series map[string][]layout.Point `json:"series"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "staging": s.composer.Scratch().Len()})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())
	var req ExportRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	doc, err := dsl.ParseString(req.Report)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid report: "+err.Error())
		return
	}

	loader := &dataset.Loader{Inline: req.Series, Logger: s.logger}
	job, err := report.Build(r.Context(), doc, loader, report.BuildOptions{
		Geometry:  s.opts.Geometry,
		Sanitize:  s.plainText,
		MaxSidePx: s.opts.MaxSidePx,
	})
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	opts := job.Options
	opts.Readiness = s.opts.Readiness

	var buf bytes.Buffer
	res, err := s.composer.ComposeTo(r.Context(), job.Blocks, opts, &buf)
	if err != nil {
		if r.Context().Err() != nil {
			s.logger.Info("server: export abandoned", "request", reqID, "error", err)
			return
		}
		if errors.Is(err, rasterize.ErrTooLarge) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.logger.Error("server: export failed", "request", reqID, "report", job.Name, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if res.Pages == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if res.Unready > 0 {
		s.logger.Warn("server: export contains unfinished items", "request", reqID, "unready", res.Unready)
	}
	s.logger.Info("server: exported", "request", reqID, "report", job.Name, "pages", res.Pages, "bytes", buf.Len())

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+job.Name+`.pdf"`)
	w.Header().Set("X-Chartfolio-Pages", strconv.Itoa(res.Pages))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// plainText strips every tag from s and decodes the entities the policy
// leaves behind, so headers draw the text a user would see.
func (s *Server) plainText(v string) string {
	return html.UnescapeString(s.policy.Sanitize(v))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
