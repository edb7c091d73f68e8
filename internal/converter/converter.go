// Package converter orchestrates document conversion: a sequence of render
// strategies tried in order, from the cheap library-mediated path down to a
// direct engine subprocess trying several export filter names.
package converter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BRO3886/go-formpdf/internal/config"
	"github.com/BRO3886/go-formpdf/internal/metrics"
	"github.com/BRO3886/go-formpdf/internal/render"
)

const (
	primaryFilter   = "pdf"
	secondaryFilter = "pdf:writer_pdf_Export"
)

// fallbackFilters are the export filter names tried by the subprocess path,
// most standard first. Filter naming drifted across engine versions, so all
// known spellings are attempted before giving up.
var fallbackFilters = []string{
	"pdf",
	"pdf:writer_pdf_Export",
	"pdf:writer_pdf_export",
	"pdf:writer_web_pdf_Export",
}

// placeholderPDF is a complete one-page PDF returned when conversion is
// disabled. Compiled in so the skip path never touches the filesystem.
const placeholderPDF = "%PDF-1.4\n" +
	"1 0 obj<</Type/Catalog/Pages 2 0 R>>endobj\n" +
	"2 0 obj<</Type/Pages/Kids[3 0 R]/Count 1>>endobj\n" +
	"3 0 obj<</Type/Page/Parent 2 0 R/MediaBox[0 0 595 842]>>endobj\n" +
	"xref\n0 4\n" +
	"0000000000 65535 f \n" +
	"0000000009 00000 n \n" +
	"0000000052 00000 n \n" +
	"0000000101 00000 n \n" +
	"trailer<</Size 4/Root 1 0 R>>\n" +
	"startxref\n164\n%%EOF\n"

// Placeholder returns the fixed document served when conversion is disabled.
func Placeholder() []byte {
	return []byte(placeholderPDF)
}

// Attempt records one conversion strategy outcome.
type Attempt struct {
	Strategy string // "library" or "soffice"
	Filter   string
	Duration time.Duration
	Err      error
}

// ConversionError aggregates a fully exhausted strategy chain. The primary
// (first) failure is the reported cause: the first strategy is the expected
// path and its error is the most diagnostic.
type ConversionError struct {
	Primary  error
	Attempts []Attempt
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("all conversion strategies failed after %d attempts: %v", len(e.Attempts), e.Primary)
}

func (e *ConversionError) Unwrap() error { return e.Primary }

// CommandRunner executes the engine subprocess. Injected so tests can stub
// the engine out entirely.
type CommandRunner interface {
	Run(ctx context.Context, name string, args, env []string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args, env []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = env
	return cmd.CombinedOutput()
}

// Orchestrator runs the strategy chain for each render request.
type Orchestrator struct {
	// Renderer is the library-mediated render boundary.
	Renderer render.Renderer
	// Locate resolves the engine binary for the subprocess fallback.
	Locate func() string
	// Runner executes the engine subprocess.
	Runner CommandRunner

	cfg     *config.Config
	log     *zap.Logger
	metrics *metrics.Registry
}

// New returns an Orchestrator with the real subprocess runner. m may be nil.
func New(cfg *config.Config, log *zap.Logger, r render.Renderer, locate func() string, m *metrics.Registry) *Orchestrator {
	return &Orchestrator{
		Renderer: r,
		Locate:   locate,
		Runner:   execRunner{},
		cfg:      cfg,
		log:      log,
		metrics:  m,
	}
}

// RenderDocument fills templatePath with data and converts it to PDF,
// trying each strategy in order. On total failure the returned error is a
// *ConversionError carrying the primary cause.
func (o *Orchestrator) RenderDocument(ctx context.Context, data map[string]any, templatePath string) ([]byte, error) {
	if o.cfg.SkipConversion {
		return Placeholder(), nil
	}

	var (
		attempts   []Attempt
		primaryErr error
	)
	record := func(strategy, filter string, d time.Duration, err error) {
		attempts = append(attempts, Attempt{Strategy: strategy, Filter: filter, Duration: d, Err: err})
		if o.metrics != nil {
			outcome := "success"
			if err != nil {
				outcome = "failed"
			}
			o.metrics.ObserveAttempt(strategy, filter, outcome)
		}
	}

	if !o.cfg.ForceFallback {
		for _, filter := range []string{primaryFilter, secondaryFilter} {
			start := time.Now()
			buf, err := o.Renderer.Render(ctx, templatePath, data, render.Options{ConvertTo: filter})
			record("library", filter, time.Since(start), err)
			if err == nil {
				return buf, nil
			}
			if primaryErr == nil {
				primaryErr = err
			}
			if errors.Is(err, render.ErrEngineNotFound) {
				o.log.Warn("engine binary not found for library render", zap.String("filter", filter))
			} else {
				o.log.Warn("library render failed",
					zap.String("filter", filter),
					zap.Duration("took", time.Since(start)),
					zap.Error(err))
			}
		}
	}

	buf, err := o.fallback(ctx, data, templatePath, record)
	if err == nil {
		return buf, nil
	}
	if primaryErr == nil {
		primaryErr = err
	}
	return nil, &ConversionError{Primary: primaryErr, Attempts: attempts}
}

// fallback is the last-resort path: render the filled template to its
// native format, then drive the engine directly over a scratch file, one
// export filter at a time.
func (o *Orchestrator) fallback(ctx context.Context, data map[string]any, templatePath string, record func(string, string, time.Duration, error)) ([]byte, error) {
	bin := o.Locate()
	if bin == "" {
		o.log.Warn("engine unavailable for subprocess fallback")
		return nil, render.ErrEngineNotFound
	}

	native, err := o.Renderer.Render(ctx, templatePath, data, render.Options{})
	if err != nil {
		return nil, fmt.Errorf("render native document: %w", err)
	}

	workDir, err := os.MkdirTemp(o.cfg.ScratchDir, "soffice-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(workDir); rmErr != nil {
			o.log.Warn("could not remove fallback scratch dir", zap.String("dir", workDir), zap.Error(rmErr))
		}
	}()

	base := "doc-" + uuid.NewString()
	inputPath := filepath.Join(workDir, base+filepath.Ext(templatePath))
	if err := os.WriteFile(inputPath, native, 0600); err != nil {
		return nil, fmt.Errorf("write scratch input: %w", err)
	}
	outputPath := filepath.Join(workDir, base+".pdf")

	var lastErr error
	for _, filter := range fallbackFilters {
		// A failed attempt may still have written something; never trust it.
		_ = os.Remove(outputPath)

		start := time.Now()
		out, runErr := o.runEngine(ctx, bin, filter, workDir, inputPath)
		took := time.Since(start)

		if runErr == nil {
			pdf, readErr := os.ReadFile(outputPath)
			if readErr == nil && len(pdf) > 0 {
				record("soffice", filter, took, nil)
				o.removeScratch(inputPath, outputPath)
				o.log.Info("subprocess conversion succeeded",
					zap.String("filter", filter),
					zap.String("engine", bin),
					zap.Duration("took", took))
				return pdf, nil
			}
			runErr = fmt.Errorf("engine exited cleanly but produced no output (filter %s)", filter)
		}

		record("soffice", filter, took, runErr)
		lastErr = runErr
		fields := []zap.Field{
			zap.String("filter", filter),
			zap.String("engine", bin),
			zap.Duration("took", took),
			zap.Error(runErr),
		}
		if o.cfg.Debug {
			fields = append(fields, zap.ByteString("output", out))
		}
		o.log.Warn("subprocess conversion attempt failed", fields...)
	}

	o.removeScratch(inputPath)
	return nil, lastErr
}

// runEngine invokes one headless conversion with an isolated profile and a
// bounded timeout.
func (o *Orchestrator) runEngine(ctx context.Context, bin, filter, workDir, inputPath string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.ConvertTimeout)
	defer cancel()

	profileDir := filepath.Join(workDir, "profile-"+strings.NewReplacer(":", "-", "_", "-").Replace(filter))
	args := []string{
		"--headless",
		"--nologo",
		"--nolockcheck",
		"--nofirststartwizard",
		"--norestore",
		"-env:UserInstallation=file://" + profileDir,
		"--convert-to", filter,
		"--outdir", workDir,
		inputPath,
	}
	// The parent environment already carries the fontconfig variables set
	// during warmup; only HOME needs to point somewhere writable.
	env := append(os.Environ(), "HOME="+workDir)

	out, err := o.Runner.Run(ctx, bin, args, env)
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		err = fmt.Errorf("engine timed out after %s (filter %s)", o.cfg.ConvertTimeout, filter)
	}
	return out, err
}

// removeScratch deletes scratch files, best effort.
func (o *Orchestrator) removeScratch(paths ...string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			o.log.Warn("could not remove scratch file", zap.String("path", p), zap.Error(err))
		}
	}
}
