// Package pipeline runs the two-stage edit flow: host the image, then drive
// the remote edit job to completion.
package pipeline

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"retouch/internal/hosting"
	"retouch/internal/infra"
	"retouch/internal/runpod"
)

// Hoster uploads an image payload and returns its public URL.
type Hoster interface {
	Upload(ctx context.Context, p hosting.Payload) (*hosting.Artifact, error)
}

// JobRunner submits an edit job and waits for its result URL.
type JobRunner interface {
	Run(ctx context.Context, job runpod.JobRequest, apiKey string) (string, error)
}

// Request carries everything one run needs. The image URL on the job is
// filled in from the hosting step; any value set by the caller is ignored.
type Request struct {
	Image     hosting.Payload
	Job       runpod.JobRequest
	RunPodKey string
}

// Result is what a run hands back. OriginalURL is populated as soon as
// hosting succeeds so a failed edit can still show what was uploaded.
type Result struct {
	OriginalURL string
	EditedURL   string
}

// Pipeline wires a Hoster and a JobRunner into one sequential flow.
type Pipeline struct {
	hoster Hoster
	jobs   JobRunner
	logger infra.Logger
}

// New constructs a Pipeline.
func New(hoster Hoster, jobs JobRunner, logger infra.Logger) *Pipeline {
	return &Pipeline{hoster: hoster, jobs: jobs, logger: logger}
}

// Process hosts the image and runs the edit job. Any stage failure aborts
// the rest of the run: an upload error means the job service is never
// called.
func (p *Pipeline) Process(ctx context.Context, req Request) (Result, error) {
	if p == nil || p.hoster == nil || p.jobs == nil {
		return Result{}, errors.New("pipeline: not configured")
	}

	log := p.logger.With().Str("run_id", uuid.NewString()).Logger()

	artifact, err := p.hoster.Upload(ctx, req.Image)
	if err != nil {
		log.Error().Err(err).Msg("pipeline: hosting failed")
		return Result{}, err
	}
	log.Info().Str("original_url", artifact.URL).Msg("pipeline: image hosted")

	job := req.Job
	job.ImageURL = artifact.URL
	editedURL, err := p.jobs.Run(ctx, job, req.RunPodKey)
	if err != nil {
		log.Error().Err(err).Msg("pipeline: edit job failed")
		return Result{OriginalURL: artifact.URL}, err
	}

	log.Info().Str("edited_url", editedURL).Msg("pipeline: edit complete")
	return Result{OriginalURL: artifact.URL, EditedURL: editedURL}, nil
}
