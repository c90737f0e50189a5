// Package config holds process-level settings for the steward binary.
//
// Everything is read from STEWARD_* environment variables. Charter
// content is not configuration; it lives in YAML files served by the
// charter registry.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/HendryAvila/steward/internal/extract"
)

// ErrInvalid wraps every validation failure returned by Load.
var ErrInvalid = errors.New("invalid configuration")

// Config is the parsed process environment.
type Config struct {
	// DataDir holds the proposal database. Empty means ~/.steward.
	DataDir string `env:"STEWARD_DATA_DIR"`
	// CharterDir is watched for charter YAML files. Empty serves only
	// the built-in default charter.
	CharterDir  string `env:"STEWARD_CHARTER_DIR"`
	DefaultCoop string `env:"STEWARD_DEFAULT_COOP" envDefault:"default"`

	Extractor        extract.Kind  `env:"STEWARD_EXTRACTOR" envDefault:"rules"`
	ExtractorTimeout time.Duration `env:"STEWARD_EXTRACTOR_TIMEOUT" envDefault:"10s"`

	LLMBaseURL string  `env:"STEWARD_LLM_BASE_URL"`
	LLMModel   string  `env:"STEWARD_LLM_MODEL"`
	LLMAPIKey  string  `env:"STEWARD_LLM_API_KEY"`
	LLMRPS     float64 `env:"STEWARD_LLM_RPS" envDefault:"2"`

	LogLevel  string `env:"STEWARD_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"STEWARD_LOG_FORMAT" envDefault:"text"`

	// MetricsAddr enables the Prometheus listener, e.g. ":9464".
	MetricsAddr string `env:"STEWARD_METRICS_ADDR"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints env tags cannot express.
func (c Config) Validate() error {
	switch c.Extractor {
	case extract.KindRules:
	case extract.KindLLM:
		if c.LLMAPIKey == "" && c.LLMBaseURL == "" {
			return fmt.Errorf("%w: STEWARD_EXTRACTOR=llm needs STEWARD_LLM_API_KEY or STEWARD_LLM_BASE_URL", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown extractor %q (want rules or llm)", ErrInvalid, c.Extractor)
	}
	if c.ExtractorTimeout <= 0 {
		return fmt.Errorf("%w: STEWARD_EXTRACTOR_TIMEOUT must be positive", ErrInvalid)
	}
	if c.LLMRPS < 0 {
		return fmt.Errorf("%w: STEWARD_LLM_RPS must not be negative", ErrInvalid)
	}
	if strings.TrimSpace(c.DefaultCoop) == "" {
		return fmt.Errorf("%w: STEWARD_DEFAULT_COOP is empty", ErrInvalid)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q (want text or json)", ErrInvalid, c.LogFormat)
	}
	return nil
}

// NewExtractor builds the configured extractor backend.
func (c Config) NewExtractor(logger *slog.Logger) extract.Extractor {
	if c.Extractor == extract.KindLLM {
		return extract.NewLLMExtractor(extract.LLMConfig{
			BaseURL:           c.LLMBaseURL,
			APIKey:            c.LLMAPIKey,
			Model:             c.LLMModel,
			RequestsPerSecond: c.LLMRPS,
			Logger:            logger,
		})
	}
	return extract.NewRuleExtractor()
}

// ─── Logging ────────────────────────────────────────────────────────────────

// ParseLevel maps debug, info, warn or error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return lvl, nil
}

// NewLogger builds a text logger writing to w. The MCP transport owns
// stdout, so callers pass stderr.
func NewLogger(level string, w io.Writer) (*slog.Logger, error) {
	return newLogger(level, "text", w)
}

// Logger builds the logger described by c.
func (c Config) Logger(w io.Writer) (*slog.Logger, error) {
	return newLogger(c.LogLevel, c.LogFormat, w)
}

func newLogger(level, format string, w io.Writer) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
