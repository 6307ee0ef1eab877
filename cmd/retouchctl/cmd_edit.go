package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"retouch/internal/hosting"
	"retouch/internal/infra"
	"retouch/internal/pipeline"
	"retouch/internal/runpod"
)

func newEditCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		imagePath string
		prompt    string
		negative  string
		seed      string
		runpodKey string
	)

	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Host an image on ImgBB and run a qwen-image-edit job on RunPod",
		Long: `Upload the image, submit the edit job, and poll until it finishes.

IMGBB_API_KEY must be set in the environment (or a .env file). The RunPod
key comes from --runpod-key or the RUNPOD_API_KEY environment variable.
The command blocks for the whole job; with the default settings that can
be several minutes.

Examples:
  retouchctl edit --image cat.png --prompt "make it a watercolor painting"
  retouchctl edit --image cat.png --prompt "remove the background" --seed 42`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEdit(cmd, stdout, imagePath, prompt, negative, seed, runpodKey)
		},
	}

	cmd.Flags().StringVarP(&imagePath, "image", "i", "", "Path to the image file (required)")
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Edit instruction (required)")
	cmd.Flags().StringVar(&negative, "negative-prompt", "", "Negative prompt")
	cmd.Flags().StringVar(&seed, "seed", "", "Seed (empty for random)")
	cmd.Flags().StringVar(&runpodKey, "runpod-key", "", "RunPod API key (defaults to RUNPOD_API_KEY)")
	_ = cmd.MarkFlagRequired("image")
	_ = cmd.MarkFlagRequired("prompt")

	return cmd
}

func runEdit(cmd *cobra.Command, stdout io.Writer, imagePath, prompt, negative, seed, runpodKey string) error {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return err
	}
	logger := infra.NewLogger(cfg.AppEnv)

	if runpodKey == "" {
		runpodKey = os.Getenv("RUNPOD_API_KEY")
	}
	if runpodKey == "" {
		return fmt.Errorf("a RunPod key is required: pass --runpod-key or set RUNPOD_API_KEY")
	}

	seedValue, err := runpod.ParseSeed(seed)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	hoster := hosting.NewClient(hosting.Options{
		APIKey:         cfg.ImgBBAPIKey,
		BaseURL:        cfg.ImgBBBaseURL,
		RequestTimeout: cfg.UploadTimeout,
		Logger:         &logger,
	})
	jobs := runpod.NewClient(runpod.Options{
		BaseURL:       cfg.RunPodBaseURL,
		SubmitTimeout: cfg.SubmitTimeout,
		StatusTimeout: cfg.StatusTimeout,
		PollInterval:  cfg.PollInterval,
		MaxPolls:      cfg.MaxPolls,
		Logger:        &logger,
	})
	proc := pipeline.New(hoster, jobs, logger)

	result, err := proc.Process(cmd.Context(), pipeline.Request{
		Image: hosting.Payload{
			Data:     data,
			Filename: filepath.Base(imagePath),
		},
		Job: runpod.JobRequest{
			Prompt:         prompt,
			NegativePrompt: negative,
			Seed:           seedValue,
		},
		RunPodKey: runpodKey,
	})
	if result.OriginalURL != "" {
		fmt.Fprintf(stdout, "Original: %s\n", result.OriginalURL)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Edited:   %s\n", result.EditedURL)
	return nil
}
