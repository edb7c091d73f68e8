package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/BRO3886/go-formpdf/internal/config"
	"github.com/BRO3886/go-formpdf/internal/converter"
	"github.com/BRO3886/go-formpdf/internal/handler"
	"github.com/BRO3886/go-formpdf/internal/logging"
	"github.com/BRO3886/go-formpdf/internal/metrics"
	"github.com/BRO3886/go-formpdf/internal/middleware"
	"github.com/BRO3886/go-formpdf/internal/office"
	"github.com/BRO3886/go-formpdf/internal/render"
	"github.com/BRO3886/go-formpdf/internal/warmup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("invalid configuration", zap.Error(err))
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		zap.NewExample().Fatal("could not build logger", zap.Error(err))
	}
	defer log.Sync()

	reg := metrics.New()
	extractor := office.NewExtractor(cfg, log)
	locator := office.NewLocator(cfg, log)
	fonts := office.NewFonts(cfg, log)
	warm := warmup.New(cfg, log, extractor, fonts, locator.Locate)

	renderer := render.NewOffice(cfg, log, locator.Locate)
	orch := converter.New(cfg, log, renderer, locator.Locate, reg)

	ready := func(ctx context.Context) error {
		err := warm.EnsureReady(ctx)
		reg.SetWarmupReady(err == nil)
		return err
	}

	// Kick warmup immediately so the first request does not pay the full
	// cold-start cost. Its outcome is shared with per-request awaits.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := ready(ctx); err != nil {
			log.Error("warmup failed", zap.Error(err))
		}
	}()

	renderHandler := middleware.Auth(cfg.AuthToken,
		middleware.Metrics(reg, handler.NewRender(cfg, orch, ready)))

	mux := http.NewServeMux()
	mux.Handle("/render", renderHandler)
	mux.Handle("/markers", handler.NewMarkers(cfg))
	mux.Handle("/", handler.NewForm(cfg))
	mux.HandleFunc("/health", handler.Health)
	mux.Handle("/metrics", reg.Handler())

	chain := middleware.RequestID(middleware.Logging(log, cors.Default().Handler(mux)))

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      chain,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * cfg.ConvertTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("starting server",
			zap.String("addr", srv.Addr),
			zap.String("template_dir", cfg.TemplateDir),
			zap.Bool("skip_conversion", cfg.SkipConversion))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("shutdown error", zap.Error(err))
	}
}
