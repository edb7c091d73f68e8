package office

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/BRO3886/go-formpdf/internal/config"
)

const (
	binaryName    = "soffice"
	binaryNameBin = "soffice.bin"
)

// wellKnownDirs are engine install locations checked after the extraction
// target, covering standard distro packages.
var wellKnownDirs = []string{
	"/opt/instdir/program",
	"/usr/lib/libreoffice/program",
}

// Locator resolves the engine binary. Lookups are pure reads, never fail,
// and are re-run on every call so a binary that appears after extraction is
// picked up immediately.
type Locator struct {
	cfg *config.Config
	log *zap.Logger
}

// NewLocator returns a Locator for cfg.
func NewLocator(cfg *config.Config, log *zap.Logger) *Locator {
	return &Locator{cfg: cfg, log: log}
}

// Locate returns the absolute path of a runnable engine binary, or "" when
// none can be found.
func (l *Locator) Locate() string {
	if l.cfg.SofficePath != "" {
		if isExecutable(l.cfg.SofficePath) {
			return l.cfg.SofficePath
		}
		l.log.Warn("configured engine path is not runnable", zap.String("path", l.cfg.SofficePath))
	}

	dirs := append([]string{l.cfg.ProgramDir()}, wellKnownDirs...)
	dirs = append(dirs, filepath.SplitList(os.Getenv("PATH"))...)

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		for _, name := range []string{binaryName, binaryNameBin} {
			p := filepath.Join(dir, name)
			if isExecutable(p) {
				return p
			}
		}
	}
	return ""
}

// SearchDirs returns the probe order, for diagnostics.
func (l *Locator) SearchDirs() []string {
	return append([]string{l.cfg.ProgramDir()}, wellKnownDirs...)
}

// wireExecutable makes the plain binary name resolvable after extraction.
// Some builds ship only soffice.bin; create a soffice symlink next to it
// (or a wrapper script when symlinks are denied), and mirror it into a
// writable scratch bin directory prepended to PATH for installs whose
// program directory is read-only. Every failure here is a warning: the
// engine remains invocable by full path.
func wireExecutable(cfg *config.Config, log *zap.Logger, installDir string) {
	plain := filepath.Join(installDir, binaryName)
	suffixed := filepath.Join(installDir, binaryNameBin)

	if !isExecutable(suffixed) {
		return
	}

	if !isExecutable(plain) {
		if err := os.Symlink(binaryNameBin, plain); err != nil && !os.IsExist(err) {
			if werr := writeWrapper(plain, suffixed); werr != nil {
				log.Warn("could not wire plain engine name",
					zap.String("path", plain), zap.NamedError("symlink", err), zap.NamedError("wrapper", werr))
			}
		}
	}

	binDir := filepath.Join(cfg.ScratchDir, "lo-bin")
	if err := os.MkdirAll(binDir, 0755); err != nil {
		log.Warn("could not create scratch bin dir", zap.String("dir", binDir), zap.Error(err))
		return
	}
	mirror := filepath.Join(binDir, binaryName)
	if !isExecutable(mirror) {
		if err := os.Symlink(suffixed, mirror); err != nil && !os.IsExist(err) {
			if werr := writeWrapper(mirror, suffixed); werr != nil {
				log.Warn("could not mirror engine into scratch bin dir",
					zap.String("path", mirror), zap.NamedError("symlink", err), zap.NamedError("wrapper", werr))
			}
		}
	}
	prependPath(binDir)
}

// writeWrapper writes a tiny shell script at path that execs target.
func writeWrapper(path, target string) error {
	script := fmt.Sprintf("#!/bin/sh\nexec %q \"$@\"\n", target)
	return os.WriteFile(path, []byte(script), 0755)
}

// prependPath puts dir at the front of PATH unless it is already listed.
func prependPath(dir string) {
	path := os.Getenv("PATH")
	for _, p := range filepath.SplitList(path) {
		if p == dir {
			return
		}
	}
	_ = os.Setenv("PATH", dir+string(os.PathListSeparator)+path)
}

// isExecutable reports whether path is a regular file (or symlink to one)
// with an execute bit set.
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0111 != 0
}
