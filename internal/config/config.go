// Package config loads service configuration from the environment, with
// optional .env file support for local development.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the service reads from the environment.
type Config struct {
	// HTTP
	Port      string
	AuthToken string // optional bearer token; empty disables auth
	MaxBodyMB int64

	// Templates
	TemplateDir     string
	DefaultTemplate string

	// Conversion behavior
	SkipConversion bool // bypass the engine entirely, return the placeholder PDF
	ForceFallback  bool // skip library-mediated attempts, go straight to the subprocess path
	Debug          bool // include subprocess output and error detail in logs
	ConvertTimeout time.Duration

	// Engine layout
	ArchiveDir  string // where lo.tar.br / lo.tar.gz live
	ExtractRoot string // where the installation is unpacked
	ScratchDir  string // per-request scratch files and wiring artifacts
	SofficePath string // explicit engine path override, skips probing

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment. A .env file is honored when
// present but never required.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		AuthToken:       getEnv("AUTH_TOKEN", ""),
		MaxBodyMB:       getEnvInt64("MAX_BODY_MB", 10),
		TemplateDir:     getEnv("TEMPLATE_DIR", "templates"),
		DefaultTemplate: getEnv("DEFAULT_TEMPLATE", "template.odt"),
		SkipConversion:  getEnvBool("SKIP_CONVERSION", false),
		ForceFallback:   getEnvBool("ALWAYS_USE_SOFFICE", false),
		Debug:           getEnvBool("DEBUG", false),
		ConvertTimeout:  time.Duration(getEnvInt("CONVERT_TIMEOUT_SEC", 30)) * time.Second,
		ArchiveDir:      getEnv("ARCHIVE_DIR", "/opt"),
		ExtractRoot:     getEnv("EXTRACT_ROOT", "/tmp"),
		ScratchDir:      getEnv("SCRATCH_DIR", os.TempDir()),
		SofficePath:     getEnv("SOFFICE_PATH", ""),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
	}

	if cfg.MaxBodyMB <= 0 {
		return nil, fmt.Errorf("MAX_BODY_MB must be positive, got %d", cfg.MaxBodyMB)
	}
	if cfg.ConvertTimeout <= 0 {
		return nil, fmt.Errorf("CONVERT_TIMEOUT_SEC must be positive")
	}

	return cfg, nil
}

// InstallDir is the directory the archive unpacks the engine installation
// into, below ExtractRoot.
func (c *Config) InstallDir() string {
	return filepath.Join(c.ExtractRoot, "instdir")
}

// ProgramDir is the directory inside the unpacked installation that holds
// the engine binaries.
func (c *Config) ProgramDir() string {
	return filepath.Join(c.InstallDir(), "program")
}

// TemplatePath resolves a template selector against the template directory.
// An empty selector means the default template. Selectors are reduced to
// their base name so a request cannot escape the template directory.
func (c *Config) TemplatePath(name string) string {
	if name == "" {
		name = c.DefaultTemplate
	}
	return filepath.Join(c.TemplateDir, filepath.Base(name))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
