package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/ridesafe/internal/adapters/dialer"
	"github.com/okian/ridesafe/internal/adapters/http/api"
	"github.com/okian/ridesafe/internal/adapters/http/swagger"
	"github.com/okian/ridesafe/internal/adapters/locator"
	"github.com/okian/ridesafe/internal/adapters/source"
	service "github.com/okian/ridesafe/internal/app"
	"github.com/okian/ridesafe/internal/config"
	"github.com/okian/ridesafe/internal/domain/emergency"
	"github.com/okian/ridesafe/internal/domain/model"
	"github.com/okian/ridesafe/internal/domain/normalize"
	"github.com/okian/ridesafe/pkg/logger"
	"github.com/okian/ridesafe/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

// sampleSource is a device transport feeding the ingest queue.
type sampleSource interface {
	Start(ctx context.Context) error
	Close()
	Snapshot() source.Snapshot
}

func main() {
	// The service exports its own registry; keep the default one quiet.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Get().Error(ctx, "ridesafe exited", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	log := logger.Get()

	// defaults -> optional file -> env
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	// Before any handler captures the registry.
	metrics.Configure(metricsOptions(cfg)...)

	svc := service.New(serviceOptions(cfg, log)...)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	src, err := newSource(cfg, svc, log)
	if err != nil {
		return err
	}
	if src != nil {
		if err := src.Start(ctx); err != nil {
			return fmt.Errorf("start %s source: %w", cfg.Source, err)
		}
		defer src.Close()
	}

	if metrics.Enabled() {
		go startMetricsUpdater(ctx, svc)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, cfg, svc),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

func metricsOptions(cfg *config.Config) []metrics.Option {
	return []metrics.Option{
		metrics.WithNamespace(cfg.MetricsNamespace),
		metrics.WithEnabled(cfg.MetricsEnabled),
		metrics.WithRefreshInterval(cfg.MetricsRefresh()),
		metrics.WithConstLabel("device", cfg.DeviceID),
	}
}

func serviceOptions(cfg *config.Config, log logger.Logger) []service.Option {
	opts := []service.Option{
		service.WithLogger(log.Named("service")),
		service.WithQueueSize(cfg.QueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithHistoryCapacity(cfg.HistoryCapacity),
		service.WithCrashThresholdG(cfg.CrashThresholdG),
		service.WithCountdownSeconds(cfg.CountdownSeconds),
		service.WithEmergencyNumber(cfg.EmergencyNumber),
		service.WithDialer(newDialer(cfg, log), cfg.DialerTimeout()),
	}
	if l := newLocator(cfg); l != nil {
		opts = append(opts, service.WithLocator(l, cfg.LocatorTimeout()))
	}
	return opts
}

func newLocator(cfg *config.Config) normalize.Locator {
	switch cfg.Locator {
	case config.LocatorGPSD:
		return locator.NewGPSD(cfg.GPSDAddr)
	case config.LocatorStatic:
		return locator.Static{Pos: model.Position{Lat: cfg.StaticLat, Lon: cfg.StaticLon}}
	default:
		return nil
	}
}

func newDialer(cfg *config.Config, log logger.Logger) emergency.Dialer {
	if cfg.Dialer == config.DialerWebhook {
		return dialer.NewWebhookDialer(cfg.DialerWebhookURL, nil)
	}
	return dialer.NewLogDialer(log.Named("dialer"))
}

// newSource builds the configured transport and reports its counters in /stats.
func newSource(cfg *config.Config, svc *service.Service, log logger.Logger) (sampleSource, error) {
	sink := source.SinkFunc(func(ctx context.Context, s model.RawSample) error {
		_, err := svc.Enqueue(ctx, s)
		return err
	})
	var (
		src sampleSource
		err error
	)
	switch cfg.Source {
	case config.SourcePoll:
		src, err = source.NewPoller(cfg.PollURL, cfg.PollInterval(), sink, log.Named("source"))
	case config.SourceSerial:
		src, err = source.NewSerial(cfg.SerialPort, cfg.SerialBaud, sink, source.OpenSerialPort, log.Named("source"))
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	svc.AttachSource(src)
	return src, nil
}

func newMux(ctx context.Context, cfg *config.Config, svc *service.Service) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc, cfg.MaxHistoryLimit).Register(ctx, mux)
	return mux
}

// startMetricsUpdater refreshes runtime and service gauges until ctx ends.
func startMetricsUpdater(ctx context.Context, svc *service.Service) {
	interval := metrics.RefreshInterval()
	if interval <= 0 {
		interval = serviceMetricsInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
			updateServiceMetrics(svc)
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

func updateServiceMetrics(svc *service.Service) {
	stats := svc.GetStats()
	if size, ok := stats["historySize"].(int); ok {
		metrics.UpdateHistorySize(size)
	}
	queueLen, okLen := stats["queueLength"].(int)
	queueCap, okCap := stats["queueCapacity"].(int)
	if okLen && okCap && queueCap > 0 {
		metrics.UpdateQueueUtilization(float64(queueLen) / float64(queueCap))
	}
	if em := svc.Emergency(); em.Active() {
		metrics.UpdateCountdownRemaining(em.Remaining)
	}
}
