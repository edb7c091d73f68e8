package handler

import (
	"html/template"
	"net/http"

	"github.com/BRO3886/go-formpdf/internal/config"
	tmpl "github.com/BRO3886/go-formpdf/internal/template"
)

// formPage is the minimal form served at /. One input per template marker,
// posting straight to /render as form fields.
const formPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>formpdf</title>
  <style>
    body { font-family: sans-serif; max-width: 640px; margin: 2rem auto; padding: 0 1rem; }
    label { display: block; margin-top: 1rem; }
    input { width: 100%; padding: 0.4rem; }
    button { margin-top: 1.5rem; padding: 0.5rem 1.5rem; }
  </style>
</head>
<body>
  <h1>Render PDF</h1>
  <form method="POST" action="/render">
    <input type="hidden" name="template" value="{{.Template}}">
    {{range .Markers}}
    <label>{{.}}<input type="text" name="{{.}}"></label>
    {{end}}
    <button type="submit">Render</button>
  </form>
</body>
</html>`

var formTmpl = template.Must(template.New("form").Parse(formPage))

// Form handles GET / requests with a form built from the default template's
// markers.
type Form struct {
	cfg *config.Config
}

// NewForm returns a Form handler.
func NewForm(cfg *config.Config) *Form {
	return &Form{cfg: cfg}
}

// ServeHTTP implements http.Handler.
func (h *Form) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	markers, err := tmpl.Markers(h.cfg.TemplatePath(""))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not scan template")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = formTmpl.Execute(w, map[string]any{
		"Template": h.cfg.DefaultTemplate,
		"Markers":  markers,
	})
}
