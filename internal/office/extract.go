// Package office prepares the LibreOffice engine for use in ephemeral
// environments: unpacking the bundled installation archive, locating a
// runnable binary, and building a font configuration the engine can use
// without a real home directory.
package office

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"go.uber.org/zap"

	"github.com/BRO3886/go-formpdf/internal/config"
)

// State describes the lifecycle of the one-shot extraction.
type State int

const (
	StateNotStarted State = iota
	StateInProgress
	StateReady
	// StateUnavailable means no archive was found: extraction was skipped,
	// not failed. Whether that matters is decided later, at warmup.
	StateUnavailable
)

// archiveNames are the candidate archive file names, highest compression
// first. Exactly one is expected to be present in a packaged deployment.
var archiveNames = []string{"lo.tar.br", "lo.tar.gz"}

// Extractor unpacks the bundled engine installation exactly once per
// process. Concurrent callers of Ensure all await the same in-flight
// operation and share its outcome, including failure: a failed extraction
// is terminal for the process.
type Extractor struct {
	cfg *config.Config
	log *zap.Logger

	mu      sync.Mutex
	started bool
	done    chan struct{}
	err     error
	state   State
}

// NewExtractor returns an Extractor in StateNotStarted.
func NewExtractor(cfg *config.Config, log *zap.Logger) *Extractor {
	return &Extractor{cfg: cfg, log: log}
}

// State reports the current extraction state.
func (e *Extractor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Skipped reports whether extraction ran but found no archive to unpack.
func (e *Extractor) Skipped() bool {
	return e.State() == StateUnavailable
}

// Ensure unpacks the engine archive if that has not happened yet. The first
// caller runs the extraction; everyone else blocks on the same operation.
// With SkipConversion set this is a no-op.
func (e *Extractor) Ensure(ctx context.Context) error {
	if e.cfg.SkipConversion {
		return nil
	}

	e.mu.Lock()
	if e.started {
		done := e.done
		e.mu.Unlock()
		select {
		case <-done:
			e.mu.Lock()
			defer e.mu.Unlock()
			return e.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	e.started = true
	e.state = StateInProgress
	e.done = make(chan struct{})
	e.mu.Unlock()

	err := e.extract()

	e.mu.Lock()
	e.err = err
	if err != nil {
		e.log.Error("engine extraction failed", zap.Error(err))
	}
	close(e.done)
	e.mu.Unlock()
	return err
}

// extract does the actual work: find the archive, decompress into memory,
// unpack via a scratch intermediate tar, wire up the binary.
func (e *Extractor) extract() error {
	start := time.Now()

	// A previous process (warm container) may have left a complete
	// installation behind.
	if isExecutable(filepath.Join(e.cfg.ProgramDir(), binaryName)) ||
		isExecutable(filepath.Join(e.cfg.ProgramDir(), binaryNameBin)) {
		wireExecutable(e.cfg, e.log, e.cfg.ProgramDir())
		e.setState(StateReady)
		e.log.Info("engine installation already present", zap.String("dir", e.cfg.ProgramDir()))
		return nil
	}

	archivePath := ""
	for _, name := range archiveNames {
		p := filepath.Join(e.cfg.ArchiveDir, name)
		if _, err := os.Stat(p); err == nil {
			archivePath = p
			break
		}
	}
	if archivePath == "" {
		e.setState(StateUnavailable)
		e.log.Warn("no engine archive found, conversion will be unavailable",
			zap.String("dir", e.cfg.ArchiveDir))
		return nil
	}

	compressed, err := os.ReadFile(archivePath)
	if err != nil {
		return fmt.Errorf("read archive %s: %w", archivePath, err)
	}

	tarData, err := decompress(archivePath, compressed)
	if err != nil {
		return fmt.Errorf("decompress %s: %w", archivePath, err)
	}

	// Unpack through an intermediate scratch tar, removed regardless of
	// outcome.
	tmp, err := os.CreateTemp(e.cfg.ScratchDir, "lo-*.tar")
	if err != nil {
		return fmt.Errorf("create scratch tar: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if rmErr := os.Remove(tmpName); rmErr != nil && !os.IsNotExist(rmErr) {
			e.log.Warn("could not remove scratch tar", zap.String("path", tmpName), zap.Error(rmErr))
		}
	}()

	if _, err := tmp.Write(tarData); err != nil {
		tmp.Close()
		return fmt.Errorf("write scratch tar: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close scratch tar: %w", err)
	}

	if err := untar(tmpName, e.cfg.ExtractRoot); err != nil {
		return fmt.Errorf("unpack %s into %s: %w", archivePath, e.cfg.ExtractRoot, err)
	}

	wireExecutable(e.cfg, e.log, e.cfg.ProgramDir())
	e.setState(StateReady)

	e.log.Info("engine archive unpacked",
		zap.String("archive", archivePath),
		zap.Int("compressed_bytes", len(compressed)),
		zap.Int("tar_bytes", len(tarData)),
		zap.Duration("took", time.Since(start)))
	return nil
}

func (e *Extractor) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// decompress inflates the archive fully into memory. The compression format
// is chosen by file suffix.
func decompress(path string, data []byte) ([]byte, error) {
	switch {
	case strings.HasSuffix(path, ".br"):
		return io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
	case strings.HasSuffix(path, ".gz"):
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	default:
		return nil, fmt.Errorf("unsupported archive format: %s", path)
	}
}

// untar unpacks the tar at src into root. Entries that would escape root
// are rejected.
func untar(src, root string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target := filepath.Join(root, hdr.Name)
		if !strings.HasPrefix(target, filepath.Clean(root)+string(os.PathSeparator)) {
			return fmt.Errorf("tar entry escapes extraction root: %s", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode)&0777)
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil && !os.IsExist(err) {
				return err
			}
		case tar.TypeLink:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			if err := os.Link(filepath.Join(root, hdr.Linkname), target); err != nil && !os.IsExist(err) {
				return err
			}
		}
	}
}
