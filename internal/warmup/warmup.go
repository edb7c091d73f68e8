// Package warmup runs the one-time environment preparation (engine
// extraction, font configuration, readiness validation) shared by all
// request handling.
package warmup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BRO3886/go-formpdf/internal/config"
	"github.com/BRO3886/go-formpdf/internal/office"
)

// Sentinel causes carried by a failed warmup.
var (
	// ErrEngineUnavailable means extraction ran (or was skipped) and no
	// engine binary can be located. Distinct from a missing archive: an
	// absent archive is tolerated, an absent engine at warmup is not.
	ErrEngineUnavailable = errors.New("conversion engine required but unavailable")

	// ErrTemplateMissing means the configured default template does not exist.
	ErrTemplateMissing = errors.New("template artifact missing")
)

// Error is the typed failure returned by EnsureReady.
type Error struct {
	Cause error
}

func (e *Error) Error() string { return fmt.Sprintf("warmup failed: %v", e.Cause) }
func (e *Error) Unwrap() error { return e.Cause }

// Coordinator memoizes the warmup: the underlying preparation runs exactly
// once per process and every caller shares its outcome, including failure.
// A failed warmup stays failed — the conditions it checks will not change
// without a new process.
type Coordinator struct {
	cfg       *config.Config
	log       *zap.Logger
	extractor *office.Extractor
	fonts     *office.Fonts
	locate    func() string

	mu      sync.Mutex
	started bool
	done    chan struct{}
	err     error
}

// New returns an unstarted Coordinator.
func New(cfg *config.Config, log *zap.Logger, ex *office.Extractor, fonts *office.Fonts, locate func() string) *Coordinator {
	return &Coordinator{cfg: cfg, log: log, extractor: ex, fonts: fonts, locate: locate}
}

// EnsureReady blocks until the one-shot preparation has completed and
// returns its shared outcome.
func (c *Coordinator) EnsureReady(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		done := c.done
		c.mu.Unlock()
		select {
		case <-done:
			c.mu.Lock()
			defer c.mu.Unlock()
			return c.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.started = true
	c.done = make(chan struct{})
	c.mu.Unlock()

	err := c.run(ctx)

	c.mu.Lock()
	c.err = err
	close(c.done)
	c.mu.Unlock()
	return err
}

func (c *Coordinator) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.extractor.Ensure(ctx) })
	g.Go(func() error { c.fonts.Prepare(); return nil })
	if err := g.Wait(); err != nil {
		return &Error{Cause: err}
	}

	templatePath := c.cfg.TemplatePath("")
	info, err := os.Stat(templatePath)
	if err != nil {
		return &Error{Cause: fmt.Errorf("%w: %s", ErrTemplateMissing, templatePath)}
	}

	enginePath := ""
	if !c.cfg.SkipConversion {
		enginePath = c.locate()
		if enginePath == "" {
			return &Error{Cause: ErrEngineUnavailable}
		}
	}

	// Diagnostics only; never part of control flow.
	c.log.Info("warmup complete",
		zap.String("template", templatePath),
		zap.Int64("template_bytes", info.Size()),
		zap.String("engine", enginePath),
		zap.Bool("extraction_skipped", c.extractor.Skipped()),
		zap.Bool("fonts_prepared", c.fonts.Prepared()),
		zap.Bool("skip_conversion", c.cfg.SkipConversion))
	return nil
}
