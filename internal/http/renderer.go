package httpx

import (
	"bytes"
	"errors"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"

	corefuncs "github.com/civicwatch/portal/internal/http/templates/core"
)

// TemplateRenderer renders HTML pages.
type TemplateRenderer struct {
	t      *template.Template
	logger *slog.Logger
}

// TemplateRendererConfig holds configuration for creating a TemplateRenderer.
type TemplateRendererConfig struct {
	TemplateFS fs.FS        // Filesystem containing layout.tmpl and pages/ (required)
	Logger     *slog.Logger // Logger for template errors (optional)
}

// NewTemplateRenderer parses the layout and page templates.
func NewTemplateRenderer(cfg TemplateRendererConfig) (*TemplateRenderer, error) {
	if cfg.TemplateFS == nil {
		return nil, errors.New("TemplateFS is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var t *template.Template
	funcs := corefuncs.Funcs(corefuncs.Deps{Template: &t, ContentTemplateFor: ContentTemplateFor})
	t, err := template.New("root").Funcs(funcs).ParseFS(cfg.TemplateFS, "*.tmpl", "pages/*.tmpl")
	if err != nil {
		logger.Error("template parsing failed", slog.Any("error", err))
		return nil, err
	}
	return &TemplateRenderer{t: t, logger: logger}, nil
}

// Render writes the full page for data with the given status code.
// Nothing is written when execution fails, so callers can still send an error.
func (r *TemplateRenderer) Render(w http.ResponseWriter, status int, data PageData) error {
	var buf bytes.Buffer
	if err := r.t.ExecuteTemplate(&buf, "layout", data); err != nil {
		r.logger.Error("template execution failed",
			slog.String("page", data.Page),
			slog.Any("error", err),
		)
		return err
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		r.logger.Debug("write rendered page", slog.String("page", data.Page), slog.Any("error", err))
		return err
	}
	return nil
}
