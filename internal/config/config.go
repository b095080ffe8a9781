// Package config provides configuration loading and management for the
// conequest service. It handles environment variable parsing and provides
// default values for all settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// init loads environment variables from .env files during package initialization.
// In development, it loads .env and .env.local files if they exist.
// In production, it relies solely on system environment variables.
// The loading order ensures that system environment variables take precedence over .env files.
func init() {
	// godotenv.Load() does not override already-set environment variables,
	// preserving OS env > .env precedence

	// Load .env file if it exists (for shared development config)
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env file: %v\n", err)
		}
	}

	// Load .env.local if it exists (for local overrides, gitignored)
	if _, err := os.Stat(".env.local"); err == nil {
		if err := godotenv.Load(".env.local"); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env.local file: %v\n", err)
		}
	}
}

// Config captures environment-driven settings for the conequest service.
type Config struct {
	Env         string // Deployment environment (dev, staging, prod)
	Port        string // HTTP server port
	DatabaseDSN string // Database connection string (PostgreSQL); empty selects the in-memory store
	NATSURL     string // NATS server URL
	JWTIssuer   string // Expected issuer for JWT validation
	JWTAudience string // Expected audience for JWT validation

	// Catalog source. When S3 settings are present the catalog document is
	// fetched from the bucket; otherwise CatalogPath points at a local file.
	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	CatalogKey  string // Object key of the catalog document in the bucket
	CatalogPath string // Local catalog file, used when no bucket is configured

	// Admission gate tuning
	MaxAccuracyMeters float64 // Worst device accuracy admitted by the gate

	// Location refresh throttle, seconds between source lookups per user
	LocationRefreshSeconds int

	// CORS configuration
	CORSAllowedOrigins []string // Allowed origins for CORS (empty means deny all)
}

// Default configuration values used when environment variables are not set
const (
	defaultPort           = "8080"
	defaultS3Region       = "us-east-1"
	defaultEnv            = "dev"
	defaultCatalogKey     = "catalog/targets.json"
	defaultCatalogPath    = "targets.json"
	defaultRefreshSeconds = 15
)

// Load reads environment variables and produces a Config suitable for wiring
// the service. Returns an error if required parameters are missing or invalid.
func Load() (Config, error) {
	cfg := Config{
		Env:                    getEnv("CQ_ENV", defaultEnv),
		Port:                   getEnv("CQ_PORT", defaultPort),
		DatabaseDSN:            os.Getenv("CQ_DB_DSN"),
		NATSURL:                os.Getenv("CQ_NATS_URL"),
		JWTIssuer:              os.Getenv("CQ_JWT_ISSUER"),
		JWTAudience:            os.Getenv("CQ_JWT_AUDIENCE"),
		S3Endpoint:             os.Getenv("CQ_S3_ENDPOINT"),
		S3Region:               getEnv("CQ_S3_REGION", defaultS3Region),
		S3Bucket:               os.Getenv("CQ_S3_BUCKET"),
		S3AccessKey:            os.Getenv("CQ_S3_ACCESS_KEY"),
		S3SecretKey:            os.Getenv("CQ_S3_SECRET_KEY"),
		CatalogKey:             getEnv("CQ_CATALOG_KEY", defaultCatalogKey),
		CatalogPath:            getEnv("CQ_CATALOG_PATH", defaultCatalogPath),
		LocationRefreshSeconds: defaultRefreshSeconds,
	}

	if raw, exists := os.LookupEnv("CQ_MAX_ACCURACY_METERS"); exists {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			return cfg, fmt.Errorf("CQ_MAX_ACCURACY_METERS must be a positive number, got %q", raw)
		}
		cfg.MaxAccuracyMeters = v
	}

	if raw, exists := os.LookupEnv("CQ_LOCATION_REFRESH_SECONDS"); exists {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return cfg, fmt.Errorf("CQ_LOCATION_REFRESH_SECONDS must be a positive integer, got %q", raw)
		}
		cfg.LocationRefreshSeconds = v
	}

	if corsOrigins, exists := os.LookupEnv("CQ_CORS_ALLOWED_ORIGINS"); exists {
		cfg.CORSAllowedOrigins = strings.Split(corsOrigins, ",")
		for i, origin := range cfg.CORSAllowedOrigins {
			cfg.CORSAllowedOrigins[i] = strings.TrimSpace(origin)
		}
	}

	// Validate required parameters
	if cfg.JWTIssuer == "" {
		return cfg, fmt.Errorf("CQ_JWT_ISSUER is required")
	}
	if cfg.JWTAudience == "" {
		return cfg, fmt.Errorf("CQ_JWT_AUDIENCE is required")
	}

	return cfg, nil
}

// UseS3Catalog reports whether catalog loading should go through the bucket.
func (c Config) UseS3Catalog() bool {
	return c.S3Bucket != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

// getEnv retrieves an environment variable value, returning a fallback if not set or empty
func getEnv(key, fallback string) string {
	if v, exists := os.LookupEnv(key); exists && v != "" {
		return v
	}
	return fallback
}
