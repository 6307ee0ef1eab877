package handlers

import (
	"context"
	"encoding/json"
	"html/template"
	"net/http"

	"retouch/internal/infra"
	"retouch/internal/pipeline"
	"retouch/web"
)

// Processor runs one edit pipeline. Narrowed to an interface so handler
// tests can swap in a stub.
type Processor interface {
	Process(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

// App bundles handler dependencies.
type App struct {
	Cfg       *infra.Config
	Logger    infra.Logger
	Processor Processor

	index *template.Template
}

// NewApp constructs the handler container and parses the embedded templates.
func NewApp(cfg *infra.Config, logger infra.Logger, proc Processor) (*App, error) {
	index, err := template.ParseFS(web.Templates, "templates/index.html")
	if err != nil {
		return nil, err
	}
	return &App{Cfg: cfg, Logger: logger, Processor: proc, index: index}, nil
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// formData re-populates the form on error so users do not retype everything.
type formData struct {
	RunPodKey      string
	Prompt         string
	NegativePrompt string
	Seed           string
}

type indexData struct {
	ErrorMessage string
	OriginalURL  string
	EditedURL    string
	Form         formData
}

func (a *App) render(w http.ResponseWriter, code int, data indexData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	if err := a.index.Execute(w, data); err != nil {
		a.Logger.Error().Err(err).Msg("handlers: render index")
	}
}
