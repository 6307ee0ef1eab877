package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"retouch/internal/hosting"
	"retouch/internal/http/handlers"
	"retouch/internal/http/httpapi"
	"retouch/internal/infra"
	"retouch/internal/pipeline"
	"retouch/internal/runpod"
)

func main() {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	if cfg.ImgBBAPIKey == "" {
		logger.Warn().Msg("IMGBB_API_KEY is not set; uploads will be refused until it is configured")
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

	app, err := handlers.NewApp(cfg, logger, proc)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build handlers")
	}

	router := httpapi.NewRouter(app, cfg, logger)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("retouch listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	logger.Info().Msg("server stopped")
}
