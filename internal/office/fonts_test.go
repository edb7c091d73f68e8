package office

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFonts_PrepareWritesConfigAndEnv(t *testing.T) {
	cfg := testConfig(t)
	// t.Setenv restores the originals after the test.
	t.Setenv("FONTCONFIG_PATH", "")
	t.Setenv("FONTCONFIG_FILE", "")
	t.Setenv("XDG_CACHE_HOME", "")
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", "/nonexistent-home")

	// A font dir inside the installation should be picked up.
	instFonts := filepath.Join(cfg.InstallDir(), "share", "fonts")
	require.NoError(t, os.MkdirAll(instFonts, 0755))

	f := NewFonts(cfg, zap.NewNop())
	f.Prepare()
	require.True(t, f.Prepared())

	confPath := filepath.Join(cfg.ScratchDir, "fontconfig", "fonts.conf")
	conf, err := os.ReadFile(confPath)
	require.NoError(t, err)
	assert.Contains(t, string(conf), "<dir>"+instFonts+"</dir>")
	assert.Contains(t, string(conf), "<cachedir>"+filepath.Join(cfg.ScratchDir, "fonts-cache")+"</cachedir>")
	assert.Contains(t, string(conf), filepath.Join(cfg.ScratchDir, "fonts"))

	assert.Equal(t, filepath.Join(cfg.ScratchDir, "fontconfig"), os.Getenv("FONTCONFIG_PATH"))
	assert.Equal(t, confPath, os.Getenv("FONTCONFIG_FILE"))
	assert.Equal(t, filepath.Join(cfg.ScratchDir, "fonts-cache"), os.Getenv("XDG_CACHE_HOME"))
	assert.Equal(t, filepath.Join(cfg.ScratchDir, "fontconfig"), os.Getenv("XDG_CONFIG_HOME"))
}

func TestFonts_PrepareIsIdempotent(t *testing.T) {
	cfg := testConfig(t)
	t.Setenv("FONTCONFIG_PATH", "")
	t.Setenv("FONTCONFIG_FILE", "")
	t.Setenv("XDG_CACHE_HOME", "")
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", t.TempDir())

	f := NewFonts(cfg, zap.NewNop())
	f.Prepare()

	confPath := filepath.Join(cfg.ScratchDir, "fontconfig", "fonts.conf")
	require.NoError(t, os.WriteFile(confPath, []byte("sentinel"), 0644))

	f.Prepare()
	got, err := os.ReadFile(confPath)
	require.NoError(t, err)
	assert.Equal(t, "sentinel", string(got), "second Prepare rewrote the config")
}

func TestFonts_SetsHomeFallbackWhenUnset(t *testing.T) {
	cfg := testConfig(t)
	t.Setenv("FONTCONFIG_PATH", "")
	t.Setenv("FONTCONFIG_FILE", "")
	t.Setenv("XDG_CACHE_HOME", "")
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", "")

	f := NewFonts(cfg, zap.NewNop())
	f.Prepare()
	assert.Equal(t, cfg.ScratchDir, os.Getenv("HOME"))
}

func TestFontsConf_ListsAllDirs(t *testing.T) {
	conf := fontsConf([]string{"/a/fonts", "/b/fonts"}, "/cache")
	assert.Contains(t, conf, "<dir>/a/fonts</dir>")
	assert.Contains(t, conf, "<dir>/b/fonts</dir>")
	assert.Contains(t, conf, "<cachedir>/cache</cachedir>")
	assert.Contains(t, conf, "<?xml")
}
