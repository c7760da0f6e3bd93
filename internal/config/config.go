// Package config loads daemon configuration from the environment with an
// optional YAML file underneath. Environment always wins.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RuntimeConfig holds all runtime configuration in a single struct,
// populated once at startup.
type RuntimeConfig struct {
	Bind     string
	Port     string
	Token    string
	CdpURL   string // empty = launch Chrome ourselves
	StateDir string

	ChromeBinary string
	ProfileDir   string
	Headless     bool

	AttachTimeout   time.Duration
	ShutdownTimeout time.Duration

	// Engine cadences, passed through to every controller.
	ReconcileMs  int
	RateMs       int
	DebounceMs   int
	CorrectionMs int
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func envBoolOr(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func homeDir() string {
	h, _ := os.UserHomeDir()
	return h
}

// ListenAddr returns the bind address for the HTTP server.
func (c *RuntimeConfig) ListenAddr() string {
	return c.Bind + ":" + c.Port
}

// FileConfig is the YAML config file format. Only fields the file sets
// override defaults, and only when the matching env var is unset.
type FileConfig struct {
	Port     string `yaml:"port,omitempty"`
	Token    string `yaml:"token,omitempty"`
	CdpURL   string `yaml:"cdp_url,omitempty"`
	StateDir string `yaml:"state_dir,omitempty"`

	ChromeBinary string `yaml:"chrome_binary,omitempty"`
	ProfileDir   string `yaml:"profile_dir,omitempty"`
	Headless     *bool  `yaml:"headless,omitempty"`

	ReconcileMs  int `yaml:"reconcile_ms,omitempty"`
	RateMs       int `yaml:"rate_ms,omitempty"`
	DebounceMs   int `yaml:"debounce_ms,omitempty"`
	CorrectionMs int `yaml:"correction_ms,omitempty"`
}

// Default returns the built-in configuration.
func Default() *RuntimeConfig {
	return &RuntimeConfig{
		Bind:            "127.0.0.1",
		Port:            "9868",
		StateDir:        filepath.Join(homeDir(), ".speedtune"),
		ProfileDir:      filepath.Join(homeDir(), ".speedtune", "chrome-profile"),
		Headless:        false,
		AttachTimeout:   15 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		ReconcileMs:     800,
		RateMs:          500,
		DebounceMs:      250,
		CorrectionMs:    100,
	}
}

// Load builds the runtime configuration: defaults, then the YAML file,
// then the environment on top. A missing or unreadable file is fine.
func Load() *RuntimeConfig {
	cfg := Default()

	path := envOr("SPEEDTUNE_CONFIG", filepath.Join(homeDir(), ".speedtune", "config.yaml"))
	if data, err := os.ReadFile(path); err == nil {
		var fc FileConfig
		if err := yaml.Unmarshal(data, &fc); err == nil {
			applyFile(cfg, fc)
		}
	}

	cfg.Bind = envOr("SPEEDTUNE_BIND", cfg.Bind)
	cfg.Port = envOr("SPEEDTUNE_PORT", cfg.Port)
	cfg.Token = envOr("SPEEDTUNE_TOKEN", cfg.Token)
	cfg.CdpURL = envOr("CDP_URL", cfg.CdpURL)
	cfg.StateDir = envOr("SPEEDTUNE_STATE_DIR", cfg.StateDir)
	cfg.ChromeBinary = envOr("CHROME_BINARY", cfg.ChromeBinary)
	cfg.ProfileDir = envOr("SPEEDTUNE_PROFILE", cfg.ProfileDir)
	cfg.Headless = envBoolOr("SPEEDTUNE_HEADLESS", cfg.Headless)
	cfg.ReconcileMs = envIntOr("SPEEDTUNE_RECONCILE_MS", cfg.ReconcileMs)
	cfg.RateMs = envIntOr("SPEEDTUNE_RATE_MS", cfg.RateMs)
	cfg.DebounceMs = envIntOr("SPEEDTUNE_DEBOUNCE_MS", cfg.DebounceMs)
	cfg.CorrectionMs = envIntOr("SPEEDTUNE_CORRECTION_MS", cfg.CorrectionMs)

	return cfg
}

func applyFile(cfg *RuntimeConfig, fc FileConfig) {
	if fc.Port != "" {
		cfg.Port = fc.Port
	}
	if fc.Token != "" {
		cfg.Token = fc.Token
	}
	if fc.CdpURL != "" {
		cfg.CdpURL = fc.CdpURL
	}
	if fc.StateDir != "" {
		cfg.StateDir = fc.StateDir
	}
	if fc.ChromeBinary != "" {
		cfg.ChromeBinary = fc.ChromeBinary
	}
	if fc.ProfileDir != "" {
		cfg.ProfileDir = fc.ProfileDir
	}
	if fc.Headless != nil {
		cfg.Headless = *fc.Headless
	}
	if fc.ReconcileMs > 0 {
		cfg.ReconcileMs = fc.ReconcileMs
	}
	if fc.RateMs > 0 {
		cfg.RateMs = fc.RateMs
	}
	if fc.DebounceMs > 0 {
		cfg.DebounceMs = fc.DebounceMs
	}
	if fc.CorrectionMs > 0 {
		cfg.CorrectionMs = fc.CorrectionMs
	}
}

// MaskToken renders a token for logs without leaking it.
func MaskToken(token string) string {
	if token == "" {
		return "(none)"
	}
	if len(token) <= 8 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
