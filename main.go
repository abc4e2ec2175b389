package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/promslog"
	"github.com/spf13/pflag"

	"github.com/sepich/mhtml-cache/pkg/cache"
	"github.com/sepich/mhtml-cache/pkg/config"
	"github.com/sepich/mhtml-cache/pkg/decoder"
	"github.com/sepich/mhtml-cache/pkg/metrics"
	"github.com/sepich/mhtml-cache/pkg/mux"
	"github.com/sepich/mhtml-cache/pkg/rewrite"
	"github.com/sepich/mhtml-cache/pkg/service"
	"github.com/sepich/mhtml-cache/pkg/source"
)

func main() {
	configPath := pflag.String("config", "config.yaml", "Path to the YAML config file")
	listen := pflag.String("listen", "", "Address to listen on, host:port (overrides config)")
	logLevel := pflag.String("log.level", "", "Log level: debug, info, warn, error (overrides config)")
	logFormat := pflag.String("log.format", "", "Log format: logfmt, json (overrides config)")
	pflag.Parse()

	// bootstrap logger until the config says otherwise
	logger := promslog.New(&promslog.Config{})

	cfg, err := config.Load(*configPath, logger)
	if err != nil {
		logger.Error("could not load config", "err", err)
		os.Exit(1)
	}
	if *listen != "" {
		if err := cfg.SetListenAddress(*listen); err != nil {
			logger.Error("bad --listen", "err", err)
			os.Exit(1)
		}
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}

	logger, err = newLogger(cfg.Log)
	if err != nil {
		logger.Error("bad log config", "err", err)
		os.Exit(1)
	}
	logger.Info("Starting mhtml-cache", "listen", cfg.ListenAddress(), "resourcePrefix", cfg.ResourcePrefix, "source", cfg.Source.Kind)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := newSource(ctx, cfg)
	if err != nil {
		logger.Error("could not create archive source", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	store := cache.NewMemoryCache(m)
	rw := rewrite.New(rewrite.Options{
		MountPrefix: cfg.ResourcePrefix,
		DataURIs:    cfg.InlineImages,
		Logger:      logger.With("component", "rewrite"),
	})
	dec := decoder.New(store, src, rw,
		decoder.WithLogger(logger.With("component", "decoder")),
		decoder.WithMetrics(m),
		decoder.WithCompatErrorDocument(cfg.CompatErrorDocument),
	)
	svc := &service.ArchiveService{
		Decoder:     dec,
		Cache:       store,
		MountPrefix: cfg.ResourcePrefix,
		Logger:      logger.With("component", "service"),
	}
	router := mux.NewRouter(svc, mux.Options{
		MountPrefix: cfg.ResourcePrefix,
		MetricsPath: cfg.MetricsPath,
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Logger:      logger.With("component", "http"),
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddress(),
		Handler:           gzhttp.GzipHandler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown", "err", err)
		}
	}()

	logger.Info("Listening over HTTP", "address", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("could not listen", "err", err)
		os.Exit(1)
	}
	logger.Info("Stopped", "decodes", dec.Decodes(), "cached", store.Len())
}

func newLogger(c config.LogConfig) (*slog.Logger, error) {
	level := promslog.NewLevel()
	if err := level.Set(c.Level); err != nil {
		return promslog.New(&promslog.Config{}), fmt.Errorf("log.level: %w", err)
	}
	format := promslog.NewFormat()
	if err := format.Set(c.Format); err != nil {
		return promslog.New(&promslog.Config{}), fmt.Errorf("log.format: %w", err)
	}
	return promslog.New(&promslog.Config{Level: level, Format: format}), nil
}

func newSource(ctx context.Context, cfg *config.Config) (source.Source, error) {
	switch cfg.Source.Kind {
	case config.SourceS3:
		return source.NewS3Source(ctx, cfg.Source.Bucket, cfg.Source.Prefix)
	default:
		return &source.FileSource{Root: cfg.ArchiveRoot}, nil
	}
}
