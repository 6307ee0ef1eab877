package pipeline

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"retouch/internal/domain"
	"retouch/internal/hosting"
	"retouch/internal/infra"
	"retouch/internal/runpod"
)

func discardLogger() infra.Logger {
	return zerolog.New(io.Discard)
}

// TestProcessEndToEnd walks the whole flow against mock services: a 10-byte
// payload is hosted, the job reports IN_QUEUE on submit and on the first
// poll, and the second poll completes with the edited URL.
func TestProcessEndToEnd(t *testing.T) {
	payload := []byte("0123456789")

	imgbb := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		decoded, err := base64.StdEncoding.DecodeString(r.PostFormValue("image"))
		if err != nil {
			t.Fatalf("image field not base64: %v", err)
		}
		if string(decoded) != string(payload) {
			t.Fatalf("hosted bytes = %q, want %q", decoded, payload)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]any{"url": "https://host/x.png"},
		})
	}))
	defer imgbb.Close()

	var statusCalls atomic.Int64
	rp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/run" {
			var req struct {
				Input struct {
					Image string `json:"image"`
				} `json:"input"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("decode submit: %v", err)
			}
			if req.Input.Image != "https://host/x.png" {
				t.Fatalf("job image = %q, want the hosted url", req.Input.Image)
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "job-1", "status": "IN_QUEUE"})
			return
		}
		if statusCalls.Add(1) == 1 {
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "IN_QUEUE"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "COMPLETED",
			"output": map[string]any{"result": "https://host/edited.png"},
		})
	}))
	defer rp.Close()

	logger := discardLogger()
	p := New(
		hosting.NewClient(hosting.Options{APIKey: "key", BaseURL: imgbb.URL}),
		runpod.NewClient(runpod.Options{BaseURL: rp.URL, PollInterval: time.Millisecond, MaxPolls: 100}),
		logger,
	)

	result, err := p.Process(context.Background(), Request{
		Image:     hosting.Payload{Data: payload, Filename: "x.png"},
		Job:       runpod.JobRequest{Prompt: "edit it", Seed: runpod.DefaultSeed},
		RunPodKey: "rp-key",
	})
	if err != nil {
		t.Fatalf("Process error: %v", err)
	}
	if result.OriginalURL != "https://host/x.png" {
		t.Fatalf("original = %q", result.OriginalURL)
	}
	if result.EditedURL != "https://host/edited.png" {
		t.Fatalf("edited = %q", result.EditedURL)
	}
	if got := statusCalls.Load(); got != 2 {
		t.Fatalf("status polls = %d, want exactly 2", got)
	}
}

func TestProcessUploadFailureSkipsSubmission(t *testing.T) {
	imgbb := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   map[string]any{"message": "nope"},
		})
	}))
	defer imgbb.Close()

	var jobCalls atomic.Int64
	rp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jobCalls.Add(1)
	}))
	defer rp.Close()

	logger := discardLogger()
	p := New(
		hosting.NewClient(hosting.Options{APIKey: "key", BaseURL: imgbb.URL}),
		runpod.NewClient(runpod.Options{BaseURL: rp.URL, PollInterval: time.Millisecond}),
		logger,
	)

	result, err := p.Process(context.Background(), Request{
		Image:     hosting.Payload{Data: []byte("x")},
		Job:       runpod.JobRequest{Prompt: "p", Seed: runpod.DefaultSeed},
		RunPodKey: "k",
	})
	if !errors.Is(err, domain.ErrUploadRejected) {
		t.Fatalf("err = %v, want ErrUploadRejected", err)
	}
	if result.OriginalURL != "" || result.EditedURL != "" {
		t.Fatalf("result should be empty on upload failure: %+v", result)
	}
	if jobCalls.Load() != 0 {
		t.Fatalf("job service must not be called after an upload failure, got %d calls", jobCalls.Load())
	}
}

func TestProcessJobFailureKeepsOriginalURL(t *testing.T) {
	imgbb := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]any{"url": "https://host/x.png"},
		})
	}))
	defer imgbb.Close()

	rp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/run" {
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "job-1"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "FAILED", "error": "bad input"})
	}))
	defer rp.Close()

	logger := discardLogger()
	p := New(
		hosting.NewClient(hosting.Options{APIKey: "key", BaseURL: imgbb.URL}),
		runpod.NewClient(runpod.Options{BaseURL: rp.URL, PollInterval: time.Millisecond}),
		logger,
	)

	result, err := p.Process(context.Background(), Request{
		Image:     hosting.Payload{Data: []byte("x")},
		Job:       runpod.JobRequest{Prompt: "p", Seed: runpod.DefaultSeed},
		RunPodKey: "k",
	})
	if !errors.Is(err, domain.ErrJobFailed) {
		t.Fatalf("err = %v, want ErrJobFailed", err)
	}
	if result.OriginalURL != "https://host/x.png" {
		t.Fatalf("original url should survive a failed edit, got %q", result.OriginalURL)
	}
}
