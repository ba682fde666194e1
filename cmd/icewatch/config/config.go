// Package config provides configuration parsing and management for the station.
//
// It handles both command-line flags and environment variables, with flags taking
// precedence over environment variables. The Config struct contains all runtime
// configuration for the station including:
//   - Station identification (name used as a metrics label)
//   - Storage backend selection (memory, redis, postgres)
//   - Uplink source locations (heartbeat spool, camera image tree)
//   - Timing configuration (uplink poll interval)
//   - Logging configuration (level, format)
//   - TLS configuration (cert, key, optional client CA)
//
// The camera catalog is a YAML file listed via --cameras-file; cameras are
// registered from it at startup.
//
// Supported configuration sources (in order of precedence):
//  1. Command-line flags
//  2. Environment variables
//  3. Default values
//
// Example usage:
//
//	cfg := config.ParseFlags()
//	cameras, err := config.LoadCameras(cfg.CamerasFile)
//	// cameras contains validated catalog entries
package config

import (
	"flag"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nunatak-io/icewatch/pkg/tls"
)

// Config holds all station configuration.
type Config struct {
	Listen    string
	LogFormat string
	LogLevel  string

	Storage       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PostgresDSN   string
	TLS           tls.Config

	Station        string
	CamerasFile    string
	HeartbeatSpool string
	ImagesDir      string
	ImagesBaseURL  string
	PollInterval   time.Duration
}

// ParseFlags parses command-line flags and environment variables into a Config.
// Environment variables are used as fallbacks when flags are not provided.
func ParseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8080"), "HTTP listen address")

	flag.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	flag.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	flag.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", "memory"), "Storage backend: memory, redis, or postgres")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis server address")
	flag.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	flag.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")
	flag.StringVar(&cfg.PostgresDSN, "postgres-dsn", getEnv("POSTGRES_DSN", ""), "Postgres connection string (required when storage=postgres)")

	flag.BoolVar(&cfg.TLS.Enabled, "tls-enabled", getEnvBool("TLS_ENABLED", false), "Enable TLS for HTTP server")
	flag.StringVar(&cfg.TLS.CertFile, "tls-cert-file", getEnv("TLS_CERT_FILE", ""), "TLS certificate file")
	flag.StringVar(&cfg.TLS.KeyFile, "tls-key-file", getEnv("TLS_KEY_FILE", ""), "TLS private key file")
	flag.StringVar(&cfg.TLS.CAFile, "tls-ca-file", getEnv("TLS_CA_FILE", ""), "TLS CA certificate file for client verification (optional)")

	flag.StringVar(&cfg.Station, "station", getEnv("STATION", "atlas"), "Station name used in metrics labels")
	flag.StringVar(&cfg.CamerasFile, "cameras-file", getEnv("CAMERAS_FILE", ""), "YAML camera catalog")
	flag.StringVar(&cfg.HeartbeatSpool, "heartbeat-spool", getEnv("HEARTBEAT_SPOOL", ""), "Directory the downlink drops heartbeat files into")
	flag.StringVar(&cfg.ImagesDir, "images-dir", getEnv("IMAGES_DIR", ""), "Root of the per-camera image tree")
	flag.StringVar(&cfg.ImagesBaseURL, "images-base-url", getEnv("IMAGES_BASE_URL", ""), "Public base URL the image tree is served under (required with -images-dir)")
	flag.DurationVar(&cfg.PollInterval, "poll-interval", getEnvDuration("POLL_INTERVAL", 30*time.Second), "Uplink source poll interval")

	flag.Parse()

	if cfg.Storage != "memory" && cfg.Storage != "redis" && cfg.Storage != "postgres" {
		fmt.Fprintf(os.Stderr, "Error: invalid --storage %q (must be memory, redis, or postgres)\n", cfg.Storage)
		os.Exit(1)
	}
	if cfg.Storage == "postgres" && cfg.PostgresDSN == "" {
		fmt.Fprintln(os.Stderr, "Error: --postgres-dsn is required when --storage=postgres")
		os.Exit(1)
	}
	if cfg.ImagesDir != "" && cfg.ImagesBaseURL == "" {
		fmt.Fprintln(os.Stderr, "Error: --images-base-url is required when --images-dir is set")
		os.Exit(1)
	}
	if cfg.PollInterval <= 0 {
		fmt.Fprintln(os.Stderr, "Error: --poll-interval must be > 0")
		os.Exit(1)
	}

	return cfg
}

var cameraNameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9_-]{0,251}[a-zA-Z0-9])?$`)

// CameraEntry is one camera in the YAML catalog.
type CameraEntry struct {
	Name            string `yaml:"name"`
	Description     string `yaml:"description"`
	IntervalSeconds int64  `yaml:"interval_seconds"`
}

type cameraCatalog struct {
	Cameras []CameraEntry `yaml:"cameras"`
}

// LoadCameras reads and validates the YAML camera catalog at path.
// Returns error if the file cannot be read, parsed, or fails validation.
func LoadCameras(path string) ([]CameraEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read camera catalog: %w", err)
	}

	var catalog cameraCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse camera catalog: %w", err)
	}

	seen := make(map[string]struct{}, len(catalog.Cameras))
	for i, cam := range catalog.Cameras {
		if cam.Name == "" {
			return nil, fmt.Errorf("camera[%d]: name cannot be empty", i)
		}
		if !cameraNameRegex.MatchString(cam.Name) {
			return nil, fmt.Errorf("camera[%d]: invalid name %q (must be alphanumeric with dash/underscore, 1-253 chars)", i, cam.Name)
		}
		if _, dup := seen[cam.Name]; dup {
			return nil, fmt.Errorf("camera[%d]: duplicate name %q", i, cam.Name)
		}
		seen[cam.Name] = struct{}{}
		if cam.IntervalSeconds < 0 {
			return nil, fmt.Errorf("camera %q: interval_seconds cannot be negative", cam.Name)
		}
	}

	return catalog.Cameras, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
