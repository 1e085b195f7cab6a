// Package config loads server settings from MOIST_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/alfredjeanlab/moisturizer/internal/batch"
	"github.com/alfredjeanlab/moisturizer/internal/ingest"
	"github.com/alfredjeanlab/moisturizer/internal/registry"
	"github.com/alfredjeanlab/moisturizer/internal/server"
)

type Config struct {
	DatabaseURL string // MOIST_DATABASE_URL (required)
	GRPCAddr    string // MOIST_GRPC_ADDR (default ":9090")
	HTTPAddr    string // MOIST_HTTP_ADDR (default ":8080")
	NATSURL     string // MOIST_NATS_URL (optional, empty = no events or ingest)

	AuthToken     string // MOIST_AUTH_TOKEN (optional, empty = no bearer admin)
	AdminID       string // MOIST_ADMIN_ID (default "admin")
	AdminPassword string // MOIST_ADMIN_PASSWORD (optional)

	Schema       registry.Options // MOIST_READ_ONLY, MOIST_IMMUTABLE_SCHEMA, MOIST_STRICT_SCHEMA
	MaxRedirects int              // MOIST_BATCH_MAX_REDIRECTS (default 10)
	MaxBodyBytes int64            // MOIST_MAX_BODY_BYTES (default 8 MiB)

	IngestSubject string // MOIST_INGEST_SUBJECT (default "moist.ingest")

	// Sync settings
	SyncInterval   time.Duration // MOIST_SYNC_INTERVAL (default 3m; 0 = disabled)
	SyncS3Bucket   string        // MOIST_SYNC_S3_BUCKET (enables S3 when set)
	SyncS3Endpoint string        // MOIST_SYNC_S3_ENDPOINT (custom endpoint for MinIO)
	SyncS3Region   string        // MOIST_SYNC_S3_REGION (default "us-east-1")
	SyncS3Key      string        // MOIST_SYNC_S3_KEY (default "moisturizer/backup.jsonl")
	SyncGitRepo    string        // MOIST_SYNC_GIT_REPO (enables git when set; path to clone)
	SyncGitPath    string        // MOIST_SYNC_GIT_PATH (default "moisturizer.jsonl")
	SyncGitBranch  string        // MOIST_SYNC_GIT_BRANCH (default "main")
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:    os.Getenv("MOIST_DATABASE_URL"),
		GRPCAddr:       envOrDefault("MOIST_GRPC_ADDR", ":9090"),
		HTTPAddr:       envOrDefault("MOIST_HTTP_ADDR", ":8080"),
		NATSURL:        os.Getenv("MOIST_NATS_URL"),
		AuthToken:      os.Getenv("MOIST_AUTH_TOKEN"),
		AdminID:        envOrDefault("MOIST_ADMIN_ID", "admin"),
		AdminPassword:  os.Getenv("MOIST_ADMIN_PASSWORD"),
		IngestSubject:  envOrDefault("MOIST_INGEST_SUBJECT", ingest.DefaultSubject),
		SyncS3Bucket:   os.Getenv("MOIST_SYNC_S3_BUCKET"),
		SyncS3Endpoint: os.Getenv("MOIST_SYNC_S3_ENDPOINT"),
		SyncS3Region:   envOrDefault("MOIST_SYNC_S3_REGION", "us-east-1"),
		SyncS3Key:      envOrDefault("MOIST_SYNC_S3_KEY", "moisturizer/backup.jsonl"),
		SyncGitRepo:    os.Getenv("MOIST_SYNC_GIT_REPO"),
		SyncGitPath:    envOrDefault("MOIST_SYNC_GIT_PATH", "moisturizer.jsonl"),
		SyncGitBranch:  envOrDefault("MOIST_SYNC_GIT_BRANCH", "main"),
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("MOIST_DATABASE_URL is required")
	}

	var err error
	if c.Schema.ReadOnly, err = envBool("MOIST_READ_ONLY"); err != nil {
		return nil, err
	}
	if c.Schema.ImmutableSchema, err = envBool("MOIST_IMMUTABLE_SCHEMA"); err != nil {
		return nil, err
	}
	if c.Schema.StrictSchema, err = envBool("MOIST_STRICT_SCHEMA"); err != nil {
		return nil, err
	}

	c.MaxRedirects = batch.DefaultMaxRedirects
	if v := os.Getenv("MOIST_BATCH_MAX_REDIRECTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("MOIST_BATCH_MAX_REDIRECTS: want a positive integer, got %q", v)
		}
		c.MaxRedirects = n
	}

	c.MaxBodyBytes = server.DefaultMaxBodyBytes
	if v := os.Getenv("MOIST_MAX_BODY_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("MOIST_MAX_BODY_BYTES: want a positive integer, got %q", v)
		}
		c.MaxBodyBytes = n
	}

	intervalStr := envOrDefault("MOIST_SYNC_INTERVAL", "3m")
	if intervalStr != "" {
		d, err := time.ParseDuration(intervalStr)
		if err != nil {
			return nil, fmt.Errorf("MOIST_SYNC_INTERVAL: %w", err)
		}
		c.SyncInterval = d
	}

	return c, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
