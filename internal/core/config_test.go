package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"cmrcore/internal/blob"
)

func envLookup(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig("", envLookup(nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Driver != StorageSQLite || cfg.Storage.SQLitePath != "cmr.db" {
		t.Fatalf("unexpected storage defaults %+v", cfg.Storage)
	}
	if cfg.Blob.Driver != blob.DriverFilesystem || cfg.Blob.FSRoot != "./blobdata" || cfg.Blob.S3.Region != "us-east-1" {
		t.Fatalf("unexpected blob defaults %+v", cfg.Blob)
	}
	if cfg.Cache.Size != 256 || cfg.Cache.TTL != 5*time.Minute || cfg.Log.Level != "info" {
		t.Fatalf("unexpected defaults %+v %+v", cfg.Cache, cfg.Log)
	}
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cmr.yaml")
	body := "storage:\n  driver: memory\ncache:\n  size: 10\n  ttl: 30s\nlog:\n  level: debug\nblob:\n  driver: memory\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := loadConfig(path, envLookup(map[string]string{
		"CMR_STORAGE_DRIVER":     "Postgres",
		"CMR_POSTGRES_DSN":       "postgres://cmr@localhost/cmr",
		"CMR_CACHE_SIZE":         "0",
		"CMR_LOG_PRETTY":         "true",
		"CMR_BLOB_S3_PATH_STYLE": "1",
		"CMR_BLOB_S3_BUCKET":     "archive",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Driver != StoragePostgres || cfg.Storage.PostgresDSN == "" {
		t.Fatalf("env must override file: %+v", cfg.Storage)
	}
	if cfg.Cache.Size != 0 || cfg.Cache.TTL != 30*time.Second {
		t.Fatalf("unexpected cache %+v", cfg.Cache)
	}
	if cfg.Log.Level != "debug" || !cfg.Log.Pretty {
		t.Fatalf("unexpected log %+v", cfg.Log)
	}
	if cfg.Blob.Driver != blob.DriverMemory || !cfg.Blob.S3.PathStyle || cfg.Blob.S3.Bucket != "archive" {
		t.Fatalf("unexpected blob %+v", cfg.Blob)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	for name, env := range map[string]map[string]string{
		"cache size": {"CMR_CACHE_SIZE": "-1"},
		"cache ttl":  {"CMR_CACHE_TTL": "soon"},
		"pretty":     {"CMR_LOG_PRETTY": "maybe"},
		"path style": {"CMR_BLOB_S3_PATH_STYLE": "sideways"},
	} {
		if _, err := loadConfig("", envLookup(env)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"), envLookup(nil)); err == nil {
		t.Fatalf("expected error for missing file")
	}
	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("cache: [1, 2"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := loadConfig(bad, envLookup(nil)); err == nil {
		t.Fatalf("expected parse error")
	}
}
