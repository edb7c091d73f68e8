package config_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BRO3886/go-formpdf/internal/config"
)

// clearEnv blanks every variable Load reads so ambient values cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "AUTH_TOKEN", "MAX_BODY_MB",
		"TEMPLATE_DIR", "DEFAULT_TEMPLATE",
		"SKIP_CONVERSION", "ALWAYS_USE_SOFFICE", "DEBUG", "CONVERT_TIMEOUT_SEC",
		"ARCHIVE_DIR", "EXTRACT_ROOT", "SCRATCH_DIR", "SOFFICE_PATH",
		"LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "", cfg.AuthToken)
	assert.Equal(t, int64(10), cfg.MaxBodyMB)
	assert.Equal(t, "templates", cfg.TemplateDir)
	assert.Equal(t, "template.odt", cfg.DefaultTemplate)
	assert.False(t, cfg.SkipConversion)
	assert.False(t, cfg.ForceFallback)
	assert.Equal(t, 30*time.Second, cfg.ConvertTimeout)
	assert.Equal(t, "/opt", cfg.ArchiveDir)
	assert.Equal(t, "/tmp", cfg.ExtractRoot)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9999")
	t.Setenv("AUTH_TOKEN", "s3cret")
	t.Setenv("MAX_BODY_MB", "25")
	t.Setenv("SKIP_CONVERSION", "true")
	t.Setenv("ALWAYS_USE_SOFFICE", "1")
	t.Setenv("CONVERT_TIMEOUT_SEC", "90")
	t.Setenv("SOFFICE_PATH", "/custom/soffice")
	t.Setenv("LOG_FORMAT", "console")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, "s3cret", cfg.AuthToken)
	assert.Equal(t, int64(25), cfg.MaxBodyMB)
	assert.True(t, cfg.SkipConversion)
	assert.True(t, cfg.ForceFallback)
	assert.Equal(t, 90*time.Second, cfg.ConvertTimeout)
	assert.Equal(t, "/custom/soffice", cfg.SofficePath)
	assert.Equal(t, "console", cfg.LogFormat)
}

func TestLoad_UnparseableValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("SKIP_CONVERSION", "maybe")
	t.Setenv("MAX_BODY_MB", "lots")
	t.Setenv("CONVERT_TIMEOUT_SEC", "soon")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.False(t, cfg.SkipConversion)
	assert.Equal(t, int64(10), cfg.MaxBodyMB)
	assert.Equal(t, 30*time.Second, cfg.ConvertTimeout)
}

func TestLoad_RejectsNonPositiveBodyLimit(t *testing.T) {
	clearEnv(t)
	t.Setenv("MAX_BODY_MB", "-1")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_BODY_MB")
}

func TestLoad_RejectsNonPositiveTimeout(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONVERT_TIMEOUT_SEC", "-5")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONVERT_TIMEOUT_SEC")
}

func TestInstallLayout(t *testing.T) {
	cfg := &config.Config{ExtractRoot: "/scratch"}
	assert.Equal(t, filepath.Join("/scratch", "instdir"), cfg.InstallDir())
	assert.Equal(t, filepath.Join("/scratch", "instdir", "program"), cfg.ProgramDir())
}

func TestTemplatePath(t *testing.T) {
	cfg := &config.Config{TemplateDir: "/srv/templates", DefaultTemplate: "template.odt"}

	assert.Equal(t, "/srv/templates/template.odt", cfg.TemplatePath(""))
	assert.Equal(t, "/srv/templates/invoice.odt", cfg.TemplatePath("invoice.odt"))
	// Traversal attempts collapse to the base name.
	assert.Equal(t, "/srv/templates/passwd", cfg.TemplatePath("../../etc/passwd"))
	assert.Equal(t, "/srv/templates/invoice.odt", cfg.TemplatePath("sub/dir/invoice.odt"))
}
