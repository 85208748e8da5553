// Package config loads agent configuration: defaults, then an optional
// YAML file, then environment overrides.
package config

import (
    "os"
    "strconv"

    yaml "gopkg.in/yaml.v3"
)

type Config struct {
    Port         string `yaml:"port"`
    APIBaseURL   string `yaml:"apiBaseUrl"`
    GPSBridgeURL string `yaml:"gpsBridgeUrl"`
    DatabaseURL  string `yaml:"databaseUrl"`
    RedisURL     string `yaml:"redisUrl"`

    DrainIntervalSec int `yaml:"drainIntervalSec"`
    CooldownMs       int `yaml:"cooldownMs"`
}

func defaults() Config {
    return Config{
        Port:             "8080",
        DrainIntervalSec: 30,
        CooldownMs:       5000,
    }
}

// Load reads path when non-empty (missing file is an error; empty path is
// not), then applies env overrides.
func Load(path string) (Config, error) {
    cfg := defaults()
    if path != "" {
        data, err := os.ReadFile(path)
        if err != nil {
            return Config{}, err
        }
        if err := yaml.Unmarshal(data, &cfg); err != nil {
            return Config{}, err
        }
    }
    cfg.Port = envOr("PORT", cfg.Port)
    cfg.APIBaseURL = envOr("QS_API_URL", cfg.APIBaseURL)
    cfg.GPSBridgeURL = envOr("QS_GPS_BRIDGE_URL", cfg.GPSBridgeURL)
    cfg.DatabaseURL = envOr("DATABASE_URL", cfg.DatabaseURL)
    cfg.RedisURL = envOr("REDIS_URL", cfg.RedisURL)
    if v := os.Getenv("QS_DRAIN_INTERVAL_SEC"); v != "" {
        if n, err := strconv.Atoi(v); err == nil && n > 0 { cfg.DrainIntervalSec = n }
    }
    if v := os.Getenv("QS_COOLDOWN_MS"); v != "" {
        if n, err := strconv.Atoi(v); err == nil && n > 0 { cfg.CooldownMs = n }
    }
    return cfg, nil
}

func envOr(k, d string) string {
    if v := os.Getenv(k); v != "" {
        return v
    }
    return d
}
