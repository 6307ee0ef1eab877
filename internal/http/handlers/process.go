package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"retouch/internal/hosting"
	"retouch/internal/pipeline"
	"retouch/internal/runpod"
)

const missingHostingKeyMsg = "ERROR: IMGBB_API_KEY environment variable is not set on the server."

// Index renders the edit form. A missing hosting credential is shown here
// so the misconfiguration is visible before anyone submits a job.
func (a *App) Index(w http.ResponseWriter, r *http.Request) {
	data := indexData{}
	if a.Cfg.ImgBBAPIKey == "" {
		data.ErrorMessage = missingHostingKeyMsg
	}
	a.render(w, http.StatusOK, data)
}

// Process handles the form submission: validate, run the pipeline
// synchronously, and re-render the page with the outcome. Errors keep the
// submitted field values so the form comes back filled in.
func (a *App) Process(w http.ResponseWriter, r *http.Request) {
	if a.Cfg.ImgBBAPIKey == "" {
		a.render(w, http.StatusServiceUnavailable, indexData{ErrorMessage: missingHostingKeyMsg})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.Cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(a.Cfg.MaxUploadBytes); err != nil {
		a.render(w, http.StatusRequestEntityTooLarge, indexData{
			ErrorMessage: "The uploaded file is too large or the form could not be read.",
		})
		return
	}

	form := formData{
		RunPodKey:      strings.TrimSpace(r.FormValue("runpod_key")),
		Prompt:         strings.TrimSpace(r.FormValue("prompt")),
		NegativePrompt: strings.TrimSpace(r.FormValue("negative_prompt")),
		Seed:           strings.TrimSpace(r.FormValue("seed")),
	}

	file, header, err := r.FormFile("image")
	if err != nil || header.Filename == "" {
		a.render(w, http.StatusBadRequest, indexData{
			ErrorMessage: "Please select an image file to upload.",
			Form:         form,
		})
		return
	}
	defer file.Close()

	if form.RunPodKey == "" || form.Prompt == "" {
		a.render(w, http.StatusBadRequest, indexData{
			ErrorMessage: "Please fill in all required fields (Key, Prompt, and Image).",
			Form:         form,
		})
		return
	}

	seed, err := runpod.ParseSeed(form.Seed)
	if err != nil {
		a.render(w, http.StatusBadRequest, indexData{
			ErrorMessage: "Seed must be a whole number (or empty for random).",
			Form:         form,
		})
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		a.render(w, http.StatusBadRequest, indexData{
			ErrorMessage: "Could not read the uploaded image.",
			Form:         form,
		})
		return
	}

	req := pipeline.Request{
		Image: hosting.Payload{
			Data:     data,
			Filename: filepath.Base(header.Filename),
		},
		Job: runpod.JobRequest{
			Prompt:         form.Prompt,
			NegativePrompt: form.NegativePrompt,
			Seed:           seed,
		},
		RunPodKey: form.RunPodKey,
	}

	result, err := a.Processor.Process(r.Context(), req)
	page := indexData{
		OriginalURL: result.OriginalURL,
		EditedURL:   result.EditedURL,
		Form:        form,
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Client went away mid-poll; nothing left to render.
			return
		}
		page.ErrorMessage = err.Error()
		a.render(w, http.StatusBadGateway, page)
		return
	}
	a.render(w, http.StatusOK, page)
}
