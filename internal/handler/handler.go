// Package handler provides the HTTP handlers for the formpdf service.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/BRO3886/go-formpdf/internal/config"
	"github.com/BRO3886/go-formpdf/internal/middleware"
	"github.com/BRO3886/go-formpdf/internal/render"
	"github.com/BRO3886/go-formpdf/internal/template"
)

// Orchestrator is the conversion entry point the render handler depends on.
type Orchestrator interface {
	RenderDocument(ctx context.Context, data map[string]any, templatePath string) ([]byte, error)
}

// Render handles POST /render requests: parse the submitted data, await
// warmup, run the conversion chain, and stream back the PDF.
type Render struct {
	cfg   *config.Config
	orch  Orchestrator
	ready func(ctx context.Context) error
}

// NewRender returns a Render handler. ready is awaited before any real work
// (typically warmup.Coordinator.EnsureReady).
func NewRender(cfg *config.Config, orch Orchestrator, ready func(ctx context.Context) error) *Render {
	return &Render{cfg: cfg, orch: orch, ready: ready}
}

// renderRequest is the JSON body accepted by /render.
type renderRequest struct {
	Template string         `json:"template"`
	Data     map[string]any `json:"data"`
}

// ServeHTTP implements http.Handler.
func (h *Render) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyMB<<20)

	req, err := parseRequest(r)
	if err != nil {
		middleware.SetLogError(r.Context(), err.Error())
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d MB", h.cfg.MaxBodyMB))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.ready(r.Context()); err != nil {
		middleware.SetLogError(r.Context(), err.Error())
		writeError(w, http.StatusServiceUnavailable, "service not ready")
		return
	}

	templatePath := h.cfg.TemplatePath(req.Template)
	if _, err := os.Stat(templatePath); err != nil {
		middleware.SetLogError(r.Context(), "unknown template "+req.Template)
		writeError(w, http.StatusNotFound, "unknown template")
		return
	}

	pdf, convErr := h.orch.RenderDocument(r.Context(), req.Data, templatePath)
	if convErr != nil {
		middleware.SetLogError(r.Context(), convErr.Error())
		if errors.Is(convErr, render.ErrTimeout) {
			middleware.SetOutcome(r.Context(), "timeout")
			writeError(w, http.StatusGatewayTimeout, "conversion timed out")
			return
		}
		writeError(w, http.StatusInternalServerError, "conversion failed")
		return
	}

	middleware.SetOutcome(r.Context(), "success")
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(pdf)))
	w.Header().Set("Content-Disposition", `inline; filename="document.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

// parseRequest accepts either a JSON body or a urlencoded/multipart form.
// Form fields become flat string values; the reserved "template" field
// selects the template.
func parseRequest(r *http.Request) (*renderRequest, error) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/json") {
		var req renderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
		if req.Data == nil {
			req.Data = map[string]any{}
		}
		return &req, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("parse form: %w", err)
	}
	req := &renderRequest{Data: map[string]any{}}
	for key, vals := range r.Form {
		if len(vals) == 0 {
			continue
		}
		if key == "template" {
			req.Template = vals[0]
			continue
		}
		req.Data[key] = vals[0]
	}
	return req, nil
}

// Markers handles GET /markers requests: list the {d.*} markers found in a
// template, for form building.
type Markers struct {
	cfg *config.Config
}

// NewMarkers returns a Markers handler.
func NewMarkers(cfg *config.Config) *Markers {
	return &Markers{cfg: cfg}
}

// ServeHTTP implements http.Handler.
func (h *Markers) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	name := r.URL.Query().Get("template")
	templatePath := h.cfg.TemplatePath(name)
	if _, err := os.Stat(templatePath); err != nil {
		writeError(w, http.StatusNotFound, "unknown template")
		return
	}

	markers, err := template.Markers(templatePath)
	if err != nil {
		middleware.SetLogError(r.Context(), err.Error())
		writeError(w, http.StatusInternalServerError, "could not scan template")
		return
	}
	if markers == nil {
		markers = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"template": templatePath,
		"markers":  markers,
	})
}

// Health handles GET /health requests.
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// writeError writes {"error": msg} as JSON with the given HTTP status.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
