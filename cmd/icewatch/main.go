// Command icewatch implements the glacier monitoring station service.
//
// The service runs a continuous ingestion loop that:
//  1. Collects heartbeat payloads and camera image notices from the uplink
//  2. Parses heartbeats into per-instrument telemetry points
//  3. Applies the per-series monotonicity gate and stores accepted points
//  4. Indexes archived camera images for paginated retrieval
//  5. Exposes status and archive queries via HTTP API
//
// The service serves an HTTP API on port 8080 (configurable) providing:
//   - GET  /cameras - camera summaries with archive links
//   - GET  /cameras/{name} - one camera summary
//   - GET  /cameras/{name}/images?per_page=&page= - image records, newest first
//   - GET  /cameras/{name}/images/latest/redirect - 302 to the newest image
//   - GET  /atlas/status - current instrument status with aligned series
//   - POST /uplink/heartbeat - ingest one raw heartbeat payload
//   - POST /uplink/images - record one archived image
//   - GET  /healthz - health check endpoint
//   - GET  /metrics - Prometheus metrics endpoint
//
// Usage:
//
//	icewatch \
//	  -storage=redis \
//	  -redis-addr=redis:6379 \
//	  -cameras-file=/etc/icewatch/cameras.yaml \
//	  -heartbeat-spool=/var/spool/icewatch \
//	  -images-dir=/srv/images \
//	  -images-base-url=https://img.example.com
//
// Environment variables:
//
//	LISTEN          - HTTP listen address (default: :8080)
//	STATION         - Station name used in metrics labels (default: atlas)
//	STORAGE         - Storage backend: memory, redis, postgres (default: memory)
//	REDIS_ADDR      - Redis server address
//	REDIS_PASSWORD  - Redis password
//	REDIS_DB        - Redis database number
//	POSTGRES_DSN    - Postgres connection string
//	CAMERAS_FILE    - YAML camera catalog
//	HEARTBEAT_SPOOL - Directory the downlink drops heartbeat files into
//	IMAGES_DIR      - Root of the per-camera image tree
//	IMAGES_BASE_URL - Public base URL of the image tree
//	POLL_INTERVAL   - Uplink poll interval (default: 30s)
//	TLS_ENABLED     - Enable TLS for the HTTP server (default: false)
//	TLS_CERT_FILE   - TLS certificate file
//	TLS_KEY_FILE    - TLS private key file
//	TLS_CA_FILE     - CA bundle for client certificate verification (optional)
//	LOG_LEVEL       - Logging level: debug, info, warn, error (default: info)
//	LOG_FORMAT      - Logging format: text, json (default: text)
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nunatak-io/icewatch/cmd/icewatch/config"
	"github.com/nunatak-io/icewatch/cmd/icewatch/logger"
	"github.com/nunatak-io/icewatch/cmd/icewatch/metrics"
	"github.com/nunatak-io/icewatch/cmd/icewatch/router"
	"github.com/nunatak-io/icewatch/cmd/icewatch/store"
	"github.com/nunatak-io/icewatch/pkg/archive"
	"github.com/nunatak-io/icewatch/pkg/httpx"
	"github.com/nunatak-io/icewatch/pkg/station"
	"github.com/nunatak-io/icewatch/pkg/tls"
	"github.com/nunatak-io/icewatch/pkg/uplink"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	cfg := config.ParseFlags()

	logger := logger.New(cfg)
	slog.SetDefault(logger)

	logger.Info("starting icewatch station",
		"version", version,
		"station", cfg.Station,
		"storage", cfg.Storage,
	)

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	backend, err := store.New(startupCtx, cfg, logger)
	if err != nil {
		startupCancel()
		logger.Error("failed to create store", "error", err)
		os.Exit(1)
	}
	if closer, ok := backend.(interface{ Close() error }); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				logger.Error("failed to close store", "error", err)
			}
		}()
	}

	stn := station.New(backend, logger)

	if err := stn.Restore(startupCtx, backend); err != nil {
		startupCancel()
		logger.Error("failed to restore station state", "error", err)
		os.Exit(1)
	}

	if cfg.CamerasFile != "" {
		entries, err := config.LoadCameras(cfg.CamerasFile)
		if err != nil {
			startupCancel()
			logger.Error("failed to load camera catalog", "file", cfg.CamerasFile, "error", err)
			os.Exit(1)
		}
		for _, e := range entries {
			cam := archive.Camera{
				Name:        e.Name,
				Description: e.Description,
				Interval:    time.Duration(e.IntervalSeconds) * time.Second,
			}
			if err := stn.RegisterCamera(startupCtx, cam); err != nil {
				startupCancel()
				logger.Error("failed to register camera", "camera", e.Name, "error", err)
				os.Exit(1)
			}
		}
		logger.Info("camera catalog registered", "file", cfg.CamerasFile, "cameras", len(entries))
	}
	startupCancel()

	m := metrics.New(cfg.Station)

	var sources []uplink.Source
	if cfg.HeartbeatSpool != "" {
		sources = append(sources, uplink.NewHeartbeatSpool(cfg.HeartbeatSpool))
	}
	if cfg.ImagesDir != "" {
		sources = append(sources, uplink.NewImageScan(cfg.ImagesDir, cfg.ImagesBaseURL))
	}

	var check func() error
	if pinger, ok := backend.(interface{ Ping(context.Context) error }); ok {
		check = func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pinger.Ping(ctx)
		}
	}

	mux := router.SetupRoutes(stn, m, check, logger)
	handler := httpx.RecoveryMiddleware(logger)(httpx.LoggingMiddleware(logger)(mux))
	httpServer := httpx.NewServer(cfg.Listen, handler, logger)

	if cfg.TLS.Enabled {
		if err := cfg.TLS.Validate(); err != nil {
			logger.Error("invalid TLS configuration", "error", err)
			os.Exit(1)
		}
		tlsConf, err := tls.NewServerTLSConfig(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.CAFile)
		if err != nil {
			logger.Error("failed to build TLS configuration", "error", err)
			os.Exit(1)
		}
		httpServer.SetTLSConfig(tlsConf)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if len(sources) > 0 {
		ingestor := NewIngestor(stn, sources, logger, m)
		go func() {
			if err := ingestor.Run(ctx, cfg.PollInterval); err != nil && err != context.Canceled {
				logger.Error("ingestion loop failed", "error", err)
			}
		}()
	} else {
		logger.Info("no uplink sources configured, serving webhook ingestion only")
	}

	serverErr := make(chan error, 1)
	go func() {
		if cfg.TLS.Enabled {
			serverErr <- httpServer.StartTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			serverErr <- httpServer.Start()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			logger.Error("server failed", "error", err)
		}
	}

	logger.Info("shutting down")
	cancel()

	if err := httpServer.Stop(10 * time.Second); err != nil {
		logger.Error("server shutdown failed", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
