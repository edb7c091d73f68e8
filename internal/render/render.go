// Package render is the boundary to the template render engine: fill a
// document template with data and optionally convert the result through a
// named export filter.
package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BRO3886/go-formpdf/internal/config"
	"github.com/BRO3886/go-formpdf/internal/template"
)

// Sentinel errors returned by Render.
var (
	// ErrEngineNotFound is returned when conversion is requested but no
	// engine binary can be located.
	ErrEngineNotFound = errors.New("conversion engine not found")

	// ErrTimeout is returned when the engine exceeds the configured timeout.
	ErrTimeout = errors.New("conversion timed out")

	// ErrNoOutput is returned when the engine exits successfully but
	// produces no output document.
	ErrNoOutput = errors.New("conversion produced no output")
)

// Options selects the render output. An empty ConvertTo returns the filled
// template in its native format without touching the engine.
type Options struct {
	ConvertTo string
}

// Renderer produces an output document from a template and data.
type Renderer interface {
	Render(ctx context.Context, templatePath string, data map[string]any, opts Options) ([]byte, error)
}

// Office implements Renderer by filling the template in-process and, when a
// filter is requested, converting through a direct engine invocation.
type Office struct {
	cfg    *config.Config
	log    *zap.Logger
	locate func() string
}

// NewOffice returns an Office renderer that resolves the engine via locate.
func NewOffice(cfg *config.Config, log *zap.Logger, locate func() string) *Office {
	return &Office{cfg: cfg, log: log, locate: locate}
}

// Render implements Renderer.
func (o *Office) Render(ctx context.Context, templatePath string, data map[string]any, opts Options) ([]byte, error) {
	filled, err := template.Fill(templatePath, data)
	if err != nil {
		return nil, err
	}
	if opts.ConvertTo == "" {
		return filled, nil
	}

	bin := o.locate()
	if bin == "" {
		return nil, fmt.Errorf("%w (filter %s)", ErrEngineNotFound, opts.ConvertTo)
	}

	dir, err := os.MkdirTemp(o.cfg.ScratchDir, "render-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			o.log.Warn("could not remove render scratch dir", zap.String("dir", dir), zap.Error(rmErr))
		}
	}()

	inputPath := filepath.Join(dir, "input"+filepath.Ext(templatePath))
	if err := os.WriteFile(inputPath, filled, 0600); err != nil {
		return nil, fmt.Errorf("write scratch input: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.ConvertTimeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, bin,
		"--headless",
		"--convert-to", opts.ConvertTo,
		"--outdir", dir,
		inputPath,
	)
	// Fresh profile inside the scratch dir so concurrent renders cannot
	// trip over each other's lock files. Removed with the dir.
	cmd.Env = append(os.Environ(),
		"HOME="+dir,
		"UserInstallation=file://"+filepath.Join(dir, "profile"),
	)

	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w after %s (filter %s)", ErrTimeout, time.Since(start).Round(time.Millisecond), opts.ConvertTo)
		}
		if o.cfg.Debug {
			o.log.Debug("engine invocation failed", zap.String("filter", opts.ConvertTo), zap.ByteString("output", out))
		}
		return nil, fmt.Errorf("engine failed (filter %s): %w", opts.ConvertTo, err)
	}

	base := filepath.Base(inputPath)
	pdfPath := filepath.Join(dir, strings.TrimSuffix(base, filepath.Ext(base))+".pdf")
	pdf, err := os.ReadFile(pdfPath)
	if err != nil || len(pdf) == 0 {
		return nil, fmt.Errorf("%w (filter %s)", ErrNoOutput, opts.ConvertTo)
	}
	return pdf, nil
}
