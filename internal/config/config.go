package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is everything the coordinator reads from the environment.
// main loads a .env file first (godotenv), then this fills in defaults
// for anything unset.
type Config struct {
	ListenAddr string

	// Remote analysis services
	TextAnalysisURL  string
	ImageAnalysisURL string
	VideoAnalysisURL string
	AudioAnalysisURL string

	// Identity service
	UserInfoURL string
	RevokeURL   string

	// Where the granted token is cached between restarts
	CredentialFile string

	// Submission bounds (backend rejects <10 chars, truncates at 1000)
	MinTextChars int
	MaxTextChars int

	// Remote call policy
	RequestTimeout     time.Duration
	MaxRetries         int
	MaxConcurrentCalls int64

	// Liveness self-probe
	ProbeInterval time.Duration

	// Per-context submission rate limiting
	RatePerMinute int
	RateBurst     int
}

// Load reads configuration from the environment
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:         envOr("COORDINATOR_ADDR", ":8090"),
		TextAnalysisURL:    envOr("TEXT_ANALYSIS_URL", "http://localhost:5001/analyze"),
		ImageAnalysisURL:   envOr("IMAGE_ANALYSIS_URL", "http://localhost:5003/analyze/image"),
		VideoAnalysisURL:   envOr("VIDEO_ANALYSIS_URL", "http://localhost:5003/analyze/video"),
		AudioAnalysisURL:   envOr("AUDIO_ANALYSIS_URL", "http://localhost:5003/analyze/audio"),
		UserInfoURL:        envOr("IDENTITY_USERINFO_URL", "https://www.googleapis.com/oauth2/v1/userinfo"),
		RevokeURL:          envOr("IDENTITY_REVOKE_URL", "https://oauth2.googleapis.com/revoke"),
		CredentialFile:     envOr("CREDENTIAL_FILE", "./storage/credential"),
		MinTextChars:       10,
		MaxTextChars:       1000,
		RequestTimeout:     15 * time.Second,
		MaxRetries:         3,
		MaxConcurrentCalls: 10,
		ProbeInterval:      5 * time.Second,
		RatePerMinute:      60,
		RateBurst:          10,
	}

	var err error
	if cfg.MinTextChars, err = envOrInt("MIN_TEXT_CHARS", cfg.MinTextChars); err != nil {
		return nil, err
	}
	if cfg.MaxTextChars, err = envOrInt("MAX_TEXT_CHARS", cfg.MaxTextChars); err != nil {
		return nil, err
	}
	if cfg.MaxRetries, err = envOrInt("MAX_RETRIES", cfg.MaxRetries); err != nil {
		return nil, err
	}
	if cfg.RatePerMinute, err = envOrInt("RATE_PER_MINUTE", cfg.RatePerMinute); err != nil {
		return nil, err
	}
	if cfg.RateBurst, err = envOrInt("RATE_BURST", cfg.RateBurst); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = envOrDuration("REQUEST_TIMEOUT", cfg.RequestTimeout); err != nil {
		return nil, err
	}
	if cfg.ProbeInterval, err = envOrDuration("PROBE_INTERVAL", cfg.ProbeInterval); err != nil {
		return nil, err
	}

	if cfg.MinTextChars <= 0 || cfg.MaxTextChars < cfg.MinTextChars {
		return nil, fmt.Errorf("invalid text bounds: min=%d max=%d", cfg.MinTextChars, cfg.MaxTextChars)
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envOrDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
