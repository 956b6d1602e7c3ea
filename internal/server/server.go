// Package server exposes the render pipeline over HTTP.
//
// # Routes
//
//   - GET /images/{template}/{text...}[.{ext}]  captioned meme
//   - GET /images/{template}[.{ext}]            blank template background
//   - GET /templates                            catalog listing
//
// The extension selects the output format (png, jpg, gif); without one
// the default format applies. The font and color query parameters
// override the template's text style and feed into the fingerprint.
// Non-canonical text paths redirect (301)
// to their canonical encoding so every meme has exactly one URL.
// Responses carry the render fingerprint as a strong ETag and honor
// If-None-Match with 304.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/memebox/memebox/pkg/errors"
	"github.com/memebox/memebox/pkg/meme"
	"github.com/memebox/memebox/pkg/pipeline"
	"github.com/memebox/memebox/pkg/raster"
	"github.com/memebox/memebox/pkg/texts"
)

// Server routes HTTP requests into a pipeline.Runner.
type Server struct {
	runner    *pipeline.Runner
	watermark string
	logger    *log.Logger
}

// New creates a server. watermark, when non-empty, is stamped on every
// render and participates in the fingerprint.
func New(runner *pipeline.Runner, watermark string, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{runner: runner, watermark: watermark, logger: logger}
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/templates", s.handleTemplates)
	r.Get("/images/{template}", s.handleBlank)
	r.Get("/images/{template}/*", s.handleMeme)

	return r
}

// handleMeme renders a captioned template from the text path.
func (s *Server) handleMeme(w http.ResponseWriter, r *http.Request) {
	templateID := chi.URLParam(r, "template")
	slug, format := splitFormat(chi.URLParam(r, "*"))

	canonical, changed, err := texts.Normalize(slug)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if changed {
		target := imagePath(templateID, canonical, format)
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		http.Redirect(w, r, target, http.StatusMovedPermanently)
		return
	}

	s.respondImage(w, r, templateID, slug, format)
}

// handleBlank renders a template background with no text.
func (s *Server) handleBlank(w http.ResponseWriter, r *http.Request) {
	templateID, format := splitFormat(chi.URLParam(r, "template"))
	s.respondImage(w, r, templateID, "", format)
}

// respondImage runs the pipeline and writes the encoded image, serving
// 304 when the client already holds the current fingerprint.
func (s *Server) respondImage(w http.ResponseWriter, r *http.Request, templateID, slug string, format raster.Format) {
	ctx := r.Context()

	style, err := styleFromQuery(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	opts := pipeline.SlugOptions{Style: style, Format: format, Watermark: s.watermark}

	decoded, err := texts.DecodeSlug(slug)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	req := &pipeline.Request{
		TemplateID: templateID,
		Texts:      decoded,
		Style:      style,
		Format:     format,
		Watermark:  s.watermark,
	}

	// The fingerprint is known before rendering, so a conditional
	// request never touches the worker pool.
	fp, err := s.runner.Fingerprint(ctx, req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	etag := `"` + fp + `"`
	if match := r.Header.Get("If-None-Match"); match == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	result, err := s.runner.RenderSlug(ctx, templateID, slug, opts)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("ETag", `"`+result.Fingerprint+`"`)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(result.Bytes)
}

// templateInfo is one entry of the /templates listing.
type templateInfo struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Aliases []string `json:"aliases,omitempty"`
	Boxes   int      `json:"boxes"`
	Blank   string   `json:"blank"`
}

// handleTemplates lists the catalog.
func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	list, err := s.runner.Templates(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	out := make([]templateInfo, 0, len(list))
	for _, t := range list {
		out = append(out, templateInfo{
			ID:      t.ID,
			Name:    t.Name,
			Aliases: t.Aliases,
			Boxes:   len(t.Boxes),
			Blank:   fmt.Sprintf("/images/%s.%s", t.ID, raster.DefaultFormat.Ext()),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// errorBody is the JSON error payload.
type errorBody struct {
	Error string      `json:"error"`
	Code  errors.Code `json:"code,omitempty"`
}

// respondError maps a pipeline error to an HTTP status and JSON body.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errors.ErrCodeTemplateNotFound) || errors.Is(err, errors.ErrCodeNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errors.ErrCodeInvalidInput):
		// Oversize text segments map to the URI-too-long status.
		status = http.StatusRequestURITooLong
	case errors.IsClientError(err):
		status = http.StatusBadRequest
	case errors.Is(err, errors.ErrCodeRenderTimeout):
		status = http.StatusGatewayTimeout
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "err", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: errors.UserMessage(err), Code: errors.GetCode(err)})
}

// styleFromQuery builds a style override from the font and color query
// parameters. The override participates in the fingerprint, so styled
// and unstyled renders never share an ETag.
func styleFromQuery(r *http.Request) (meme.TextStyle, error) {
	q := r.URL.Query()
	style := meme.TextStyle{
		Family: q.Get("font"),
		Color:  q.Get("color"),
	}
	if err := style.Validate(); err != nil {
		return meme.TextStyle{}, err
	}
	return style, nil
}

// splitFormat strips a recognized image extension from the end of s.
// Unknown extensions stay in place: a dot inside meme text is text, not
// a format.
func splitFormat(s string) (string, raster.Format) {
	ext := path.Ext(s)
	if ext != "" {
		if format, err := raster.ParseFormat(ext); err == nil {
			return strings.TrimSuffix(s, ext), format
		}
	}
	return s, raster.DefaultFormat
}

// imagePath assembles the canonical URL for a captioned render.
func imagePath(templateID, slug string, format raster.Format) string {
	return fmt.Sprintf("/images/%s/%s.%s", templateID, slug, format.Ext())
}
