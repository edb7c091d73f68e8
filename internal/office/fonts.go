package office

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/BRO3886/go-formpdf/internal/config"
)

// Fonts builds a minimal fontconfig setup in scratch space so the engine,
// running without a home directory or writable system cache, can still
// resolve fonts. Preparation runs at most once per process; every failure
// is a warning and leaves the engine to its built-in fonts.
type Fonts struct {
	cfg *config.Config
	log *zap.Logger

	once     sync.Once
	prepared bool
}

// NewFonts returns an unprepared Fonts.
func NewFonts(cfg *config.Config, log *zap.Logger) *Fonts {
	return &Fonts{cfg: cfg, log: log}
}

// Prepared reports whether preparation has completed.
func (f *Fonts) Prepared() bool {
	return f.prepared
}

// Prepare writes the fontconfig scratch environment. Idempotent.
func (f *Fonts) Prepare() {
	f.once.Do(f.prepare)
}

func (f *Fonts) prepare() {
	candidates := []string{
		filepath.Join(f.cfg.InstallDir(), "share", "fonts"),
		"/usr/share/fonts",
		"/opt/fonts",
	}
	var fontDirs []string
	for _, dir := range candidates {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			fontDirs = append(fontDirs, dir)
		}
	}

	confDir := filepath.Join(f.cfg.ScratchDir, "fontconfig")
	cacheDir := filepath.Join(f.cfg.ScratchDir, "fonts-cache")
	scratchFonts := filepath.Join(f.cfg.ScratchDir, "fonts")
	for _, dir := range []string{confDir, cacheDir, scratchFonts} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			f.log.Warn("could not create font scratch dir", zap.String("dir", dir), zap.Error(err))
			return
		}
	}

	confPath := filepath.Join(confDir, "fonts.conf")
	conf := fontsConf(append(fontDirs, scratchFonts), cacheDir)
	if err := os.WriteFile(confPath, []byte(conf), 0644); err != nil {
		f.log.Warn("could not write fonts.conf", zap.String("path", confPath), zap.Error(err))
		return
	}

	setenvs := map[string]string{
		"FONTCONFIG_PATH": confDir,
		"FONTCONFIG_FILE": confPath,
		"XDG_CACHE_HOME":  cacheDir,
		"XDG_CONFIG_HOME": confDir,
	}
	for k, v := range setenvs {
		if err := os.Setenv(k, v); err != nil {
			f.log.Warn("could not set font env var", zap.String("key", k), zap.Error(err))
		}
	}
	// The engine refuses to start without a HOME it can write to.
	if os.Getenv("HOME") == "" || os.Getenv("HOME") == "/" {
		_ = os.Setenv("HOME", f.cfg.ScratchDir)
	}

	f.prepared = true
	f.log.Info("font environment prepared",
		zap.Strings("font_dirs", fontDirs),
		zap.String("conf", confPath))
}

// fontsConf renders the minimal fontconfig document: the directories to
// scan and a writable cache location.
func fontsConf(fontDirs []string, cacheDir string) string {
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\"?>\n")
	b.WriteString("<!DOCTYPE fontconfig SYSTEM \"fonts.dtd\">\n")
	b.WriteString("<fontconfig>\n")
	for _, dir := range fontDirs {
		fmt.Fprintf(&b, "  <dir>%s</dir>\n", dir)
	}
	fmt.Fprintf(&b, "  <cachedir>%s</cachedir>\n", cacheDir)
	b.WriteString("</fontconfig>\n")
	return b.String()
}
