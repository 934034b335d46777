package core

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	"cmrcore/internal/blob"
)

// Config is the process configuration. Values come from struct defaults,
// then an optional YAML file, then CMR_* environment variables.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Blob    blob.Config   `yaml:"blob"`
	Cache   CacheConfig   `yaml:"cache"`
	Log     LogConfig     `yaml:"log"`
}

// StorageConfig selects the persistent store.
type StorageConfig struct {
	Driver      StorageDriver `yaml:"driver" default:"sqlite"`
	SQLitePath  string        `yaml:"sqlite_path" default:"cmr.db"`
	PostgresDSN string        `yaml:"postgres_dsn"`
}

// CacheConfig sizes the read-through cache. Size 0 disables it.
type CacheConfig struct {
	Size int           `yaml:"size" default:"256"`
	TTL  time.Duration `yaml:"ttl" default:"5m"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level  string `yaml:"level" default:"info"`
	Pretty bool   `yaml:"pretty"`
}

// ConfigFileEnv names the variable holding the optional YAML file path.
const ConfigFileEnv = "CMR_CONFIG_FILE"

// LoadConfig reads configuration from path (skipped when empty) and the
// process environment.
func LoadConfig(path string) (Config, error) {
	return loadConfig(path, os.LookupEnv)
}

func loadConfig(path string, lookup func(string) (string, bool)) (Config, error) {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return cfg, fmt.Errorf("set default config: %w", err)
	}
	if path != "" {
		raw, err := os.ReadFile(path) // #nosec G304 -- operator supplied config path
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
		return nil
	}

	var driver string
	str("CMR_STORAGE_DRIVER", &driver)
	if driver != "" {
		cfg.Storage.Driver = StorageDriver(strings.ToLower(driver))
	}
	str("CMR_SQLITE_PATH", &cfg.Storage.SQLitePath)
	str("CMR_POSTGRES_DSN", &cfg.Storage.PostgresDSN)

	var blobDriver string
	str("CMR_BLOB_DRIVER", &blobDriver)
	if blobDriver != "" {
		cfg.Blob.Driver = blob.Driver(strings.ToLower(blobDriver))
	}
	str("CMR_BLOB_FS_ROOT", &cfg.Blob.FSRoot)
	str("CMR_BLOB_S3_BUCKET", &cfg.Blob.S3.Bucket)
	str("CMR_BLOB_S3_REGION", &cfg.Blob.S3.Region)
	str("CMR_BLOB_S3_ENDPOINT", &cfg.Blob.S3.Endpoint)
	if err := boolean("CMR_BLOB_S3_PATH_STYLE", &cfg.Blob.S3.PathStyle); err != nil {
		return err
	}

	if v, ok := lookup("CMR_CACHE_SIZE"); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 0 {
			return fmt.Errorf("CMR_CACHE_SIZE: invalid size %q", v)
		}
		cfg.Cache.Size = n
	}
	if v, ok := lookup("CMR_CACHE_TTL"); ok && v != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("CMR_CACHE_TTL: %w", err)
		}
		cfg.Cache.TTL = d
	}

	str("CMR_LOG_LEVEL", &cfg.Log.Level)
	return boolean("CMR_LOG_PRETTY", &cfg.Log.Pretty)
}
