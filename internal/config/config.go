// Package config loads process configuration from the environment,
// optionally pre-populated from a ".env" file before reading os.Getenv.
package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"uptimemesh"
)

// Config is every setting a node process reads at startup.
type Config struct {
	DatabaseNodeURLs         []string
	DatabaseKeyspace         string
	DatabaseConnections      int
	DatabaseConcurrentReqs   int
	SelfIP                   netip.Addr
	Region                   uptimemesh.Region
	CurrentBucketsCount      int
	CurrentBucketVersion     int
	ReplicationFactor        int
	HeartbeatIntervalSeconds int
	MaxConcurrentHealthChecks int
}

// Load reads an optional ".env" file into the process environment (godotenv
// reports a missing file as an error; Load ignores that case), then builds a
// Config from os.Getenv, applying documented defaults.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}

	var cfg Config
	var err error

	nodeURLs := getEnv("DATABASE_NODE_URLS", "")
	if nodeURLs == "" {
		return Config{}, fmt.Errorf("config: DATABASE_NODE_URLS is required")
	}
	cfg.DatabaseNodeURLs = strings.Split(nodeURLs, ",")

	cfg.DatabaseKeyspace = getEnv("DATABASE_KEYSPACE", "uptimemesh")

	if cfg.DatabaseConnections, err = getEnvInt("DATABASE_CONNECTIONS", 4); err != nil {
		return Config{}, err
	}
	if cfg.DatabaseConcurrentReqs, err = getEnvInt("DATABASE_CONCURRENT_REQUESTS", 0); err != nil {
		return Config{}, err
	}

	selfIP := getEnv("SELF_IP", "")
	if selfIP == "" {
		return Config{}, fmt.Errorf("config: SELF_IP is required")
	}
	if cfg.SelfIP, err = netip.ParseAddr(selfIP); err != nil {
		return Config{}, fmt.Errorf("config: parse SELF_IP: %w", err)
	}

	region := getEnv("REGION", "")
	if region == "" {
		return Config{}, fmt.Errorf("config: REGION is required")
	}
	cfg.Region = uptimemesh.Region(region)
	if !cfg.Region.Valid() {
		return Config{}, fmt.Errorf("config: REGION %q is not one of the known regions", region)
	}

	if cfg.CurrentBucketsCount, err = getEnvInt("CURRENT_BUCKETS_COUNT", 0); err != nil {
		return Config{}, err
	}
	if cfg.CurrentBucketsCount <= 0 {
		return Config{}, fmt.Errorf("config: CURRENT_BUCKETS_COUNT must be a positive integer")
	}
	if cfg.CurrentBucketVersion, err = getEnvInt("CURRENT_BUCKET_VERSION", 1); err != nil {
		return Config{}, err
	}
	if cfg.ReplicationFactor, err = getEnvInt("REPLICATION_FACTOR", 2); err != nil {
		return Config{}, err
	}
	if cfg.HeartbeatIntervalSeconds, err = getEnvInt("HEARTBEAT_INTERVAL_SECONDS", 15); err != nil {
		return Config{}, err
	}
	if cfg.MaxConcurrentHealthChecks, err = getEnvInt("MAX_CONCURRENT_HEALTH_CHECKS", 100); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// HeartbeatInterval is HeartbeatIntervalSeconds as a time.Duration.
func (c Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: parse %s: %w", key, err)
	}
	return n, nil
}
