// Command featurefp serves the collector script and receives the reports it
// posts back.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shortontech/featurefp/internal/assets"
	"github.com/shortontech/featurefp/internal/catalog"
	httpx "github.com/shortontech/featurefp/internal/http"
	"github.com/shortontech/featurefp/internal/metrics"
	"github.com/shortontech/featurefp/internal/probe"
	"github.com/shortontech/featurefp/internal/sink"
	"github.com/shortontech/featurefp/pkg/config"
	"github.com/shortontech/featurefp/pkg/logger"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	logger.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, metrics.LoadConfig(), log); err != nil {
		log.Error("featurefp: exiting", logger.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, mcfg metrics.Config, log logger.Logger) error {
	m := metrics.Default()
	registry := catalog.DefaultRegistry()
	m.SetCatalogVersions(len(registry.Versions()))

	plan := probe.DefaultPlan()
	plan.OnFault = m.CheckFault
	collector, err := assets.Collector(plan, assets.Options{
		CookieName: cfg.CSRFCookie,
		HeaderName: cfg.CSRFHeader,
	})
	if err != nil {
		return err
	}

	sinks, err := sink.FromOutputs(cfg.Outputs, log)
	if err != nil {
		return err
	}
	for _, s := range sinks {
		if err := s.Start(ctx); err != nil {
			return err
		}
		log.Info("featurefp: sink started", logger.F("sink", s.Name()))
	}
	defer func() {
		for _, s := range sinks {
			if err := s.Close(); err != nil {
				log.Error("featurefp: sink close failed", logger.F("sink", s.Name()), logger.Err(err))
			}
		}
	}()
	emit := sink.FanOut(sinks, m, log)

	srv := &http.Server{
		Addr: cfg.ServerAddr,
		Handler: httpx.NewMux(httpx.Env{
			Cfg:       cfg,
			Emit:      emit,
			Registry:  registry,
			Collector: collector,
			Metrics:   m,
			Log:       log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsSrv, err := metrics.NewServer(mcfg, m, log)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("featurefp: listening", logger.F("addr", cfg.ServerAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return metricsSrv.Start(gctx) })
	if cfg.TestMode {
		g.Go(func() error {
			runTestMode(gctx, plan, emit, log)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
