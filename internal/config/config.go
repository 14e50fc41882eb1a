// Package config loads meshgen configuration from a JSON file backend and
// MESHGEN_* environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Cache    CacheConfig
	Provider ProviderConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

// CacheConfig tunes the reuse decision gates.
type CacheConfig struct {
	SimilarityThreshold float64
	QualityFloor        float64
	OptimisticScore     float64
}

type ProviderConfig struct {
	Default string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Cache: CacheConfig{
			SimilarityThreshold: 0.92,
			QualityFloor:        3.5,
			OptimisticScore:     4.0,
		},
		Provider: ProviderConfig{
			Default: "meshy",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/meshgen/config.json, then applies MESHGEN_* environment
// overrides on top.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()
	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	if cfg.Cache.SimilarityThreshold <= 0 || cfg.Cache.SimilarityThreshold > 1 {
		return Config{}, fmt.Errorf("cache.similarity_threshold must be in (0, 1], got %v", cfg.Cache.SimilarityThreshold)
	}
	return cfg, nil
}

// ModelDir is where generated assets are written.
func (c Config) ModelDir() string {
	return filepath.Join(c.Storage.DataDir, "models")
}

// UploadDir is where reference images are stored.
func (c Config) UploadDir() string {
	return filepath.Join(c.Storage.DataDir, "uploads")
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "meshgen-data"
		}
	}
	return filepath.Join(dir, "meshgen")
}

// GetAPIToken returns the bearer token the CLI and server share, creating
// and persisting one under dataDir on first use.
func GetAPIToken(dataDir string) (string, error) {
	path := filepath.Join(dataDir, "api_token")
	data, err := os.ReadFile(path)
	if err == nil && len(data) > 0 {
		return string(data), nil
	}
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("reading API token: %w", err)
	}

	token := uuid.New().String()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("creating data directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(token), 0o600); err != nil {
		return "", fmt.Errorf("writing API token: %w", err)
	}
	return token, nil
}
