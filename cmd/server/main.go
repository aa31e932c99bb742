package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/lobby-server/internal/config"
	"github.com/DoyleJ11/lobby-server/internal/fanout"
	"github.com/DoyleJ11/lobby-server/internal/httpapi"
	"github.com/DoyleJ11/lobby-server/internal/hub"
	"github.com/DoyleJ11/lobby-server/internal/logging"
	"github.com/DoyleJ11/lobby-server/internal/metrics"
	"github.com/DoyleJ11/lobby-server/internal/router"
	"github.com/DoyleJ11/lobby-server/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	// Cancel on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := metrics.New()
	fan := fanout.New(fanout.NewRegistry(), logger, m)

	// The hub outlives the signal context so it can be shut down in order.
	h := hub.NewHub(context.Background(), hub.Config{
		Limits:      cfg.Limits(),
		IdleTimeout: cfg.Room.IdleTimeout,
		Fanout:      fan,
		Log:         logger,
		Metrics:     m,
	})
	rt := router.New(h, fan, logger, m)

	stopConns := make(chan struct{})
	handler := httpapi.SetupRoutes(httpapi.Deps{
		Hub: h,
		WebSocket: ws.Handler(rt, ws.Config{
			OutboxSize:     cfg.WS.OutboxSize,
			ReadLimit:      cfg.WS.ReadLimit,
			WriteTimeout:   cfg.WS.WriteTimeout,
			PingInterval:   cfg.WS.PingInterval,
			OriginPatterns: cfg.WS.OriginPatterns,
			Stop:           stopConns,
			Log:            logger,
			Metrics:        m,
		}),
		Metrics: m,
		Log:     logger,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer stop()

		// Rooms tell their members first, then connections flush and close.
		var errs error
		errs = multierr.Append(errs, h.Shutdown(shutdownCtx))
		close(stopConns)
		errs = multierr.Append(errs, srv.Shutdown(shutdownCtx))
		return errs
	})

	return g.Wait()
}
