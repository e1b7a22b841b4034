package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"streetsketch/core-go/internal/config"
	"streetsketch/core-go/internal/db"
	"streetsketch/core-go/internal/document"
	"streetsketch/core-go/internal/fetch"
	"streetsketch/core-go/internal/httpapi"
	"streetsketch/core-go/internal/library"
	"streetsketch/core-go/internal/metrics"
	"streetsketch/core-go/internal/reaper"
)

func main() {
	cfg, err := config.Load()
	logger := httpapi.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		pool  *db.Pool
		store library.Store = library.NewMemoryStore()
	)
	if cfg.DatabaseURL != "" {
		p, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer p.Close()
		if err := p.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to prepare database schema")
		}
		pool = p
		store = library.NewPostgresStore(p.Queries())
	} else {
		logger.Warn().Msg("DATABASE_URL not set; maps are kept in memory")
	}

	lib, err := library.New(logger, store)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open map library")
	}
	defer lib.Close()

	fetcher := fetch.New(fetch.Options{
		Timeout:      cfg.FetchTimeout,
		MaxBytes:     cfg.FetchMaxBytes,
		AllowPrivate: cfg.FetchAllowPrivate,
	})
	if cfg.FetchAllowPrivate {
		logger.Warn().Msg("remote map URLs may reach private addresses")
	}

	h := httpapi.NewHandler(logger, pool, httpapi.Options{
		Metrics:     metrics.New(),
		Library:     lib,
		Fetcher:     fetcher,
		ShareOrigin: cfg.ShareOrigin,
		SaveTimeout: cfg.SaveTimeout,
		MaxSessions: cfg.MaxSessions,
		DefaultView: document.View{
			Centre: document.LatLng{Lat: cfg.DefaultView.Lat, Lng: cfg.DefaultView.Lng},
			Zoom:   cfg.DefaultView.Zoom,
		},
	})
	defer h.Close()

	sweeper := reaper.New(logger, h, reaper.Options{Interval: cfg.ReapInterval, Idle: cfg.SessionIdle})
	go sweeper.Run(ctx)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("streetsketch listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info().Msg("shutdown complete")
}
