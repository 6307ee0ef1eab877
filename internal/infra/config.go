package infra

import (
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv string
	Port   string

	// ImgBB hosting service.
	ImgBBAPIKey   string
	ImgBBBaseURL  string
	UploadTimeout time.Duration

	// RunPod qwen-image-edit endpoint.
	RunPodBaseURL string
	SubmitTimeout time.Duration
	StatusTimeout time.Duration
	PollInterval  time.Duration
	MaxPolls      int

	MaxUploadBytes int64

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed. A missing IMGBB_API_KEY is not an error here: the
// service still starts and reports the misconfiguration on its index page,
// so operators can see it without tailing logs.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:          getEnv("APP_ENV", "development"),
		Port:            getEnv("PORT", "8080"),
		ImgBBAPIKey:     os.Getenv("IMGBB_API_KEY"),
		ImgBBBaseURL:    getEnv("IMGBB_BASE_URL", "https://api.imgbb.com"),
		UploadTimeout:   time.Second * time.Duration(getEnvInt("IMGBB_TIMEOUT_SECONDS", 30)),
		RunPodBaseURL:   getEnv("RUNPOD_BASE_URL", "https://api.runpod.ai/v2/qwen-image-edit"),
		SubmitTimeout:   time.Second * time.Duration(getEnvInt("RUNPOD_SUBMIT_TIMEOUT_SECONDS", 60)),
		StatusTimeout:   time.Second * time.Duration(getEnvInt("RUNPOD_STATUS_TIMEOUT_SECONDS", 10)),
		PollInterval:    time.Second * time.Duration(getEnvInt("RUNPOD_POLL_SECONDS", 3)),
		MaxPolls:        getEnvInt("RUNPOD_MAX_POLLS", 100),
		MaxUploadBytes:  int64(getEnvInt("MAX_UPLOAD_MB", 16)) << 20,
		HTTPReadTimeout: time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 60)),
		// The process handler blocks for the whole poll budget, so the
		// write timeout must cover budget x (interval + poll latency).
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 900)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
