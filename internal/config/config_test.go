package config

import (
	"os"
	"path/filepath"
	"testing"

	"millroom/internal/blob"
	"millroom/internal/core"
)

func mapLookup(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(mapLookup(nil))
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if cfg.Storage.Driver != core.StorageSQLite || cfg.Storage.SQLitePath != "millroom.db" {
		t.Fatalf("unexpected storage defaults %+v", cfg.Storage)
	}
	if cfg.Blob.Driver != blob.DriverFilesystem || cfg.Blob.FSRoot != "screenshots" {
		t.Fatalf("unexpected blob defaults %+v", cfg.Blob)
	}
	if cfg.Log.Level != "info" || cfg.CatalogPath != "" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(mapLookup(map[string]string{
		"MILLROOM_STORAGE_DRIVER":     "Postgres",
		"MILLROOM_POSTGRES_DSN":       "postgres://lab/millroom",
		"MILLROOM_BLOB_DRIVER":        "s3",
		"MILLROOM_S3_BUCKET":          "shots",
		"MILLROOM_S3_REGION":          "eu-west-1",
		"MILLROOM_S3_ENDPOINT":        "http://minio:9000",
		"MILLROOM_S3_PATH_STYLE":      "true",
		"MILLROOM_LOG_LEVEL":          "debug",
		"MILLROOM_LOG_MODE":           "production",
		"MILLROOM_LOG_FILE":           "/var/log/millroom.log",
		"MILLROOM_CATALOG_PATH":       "materials.yaml",
		"MILLROOM_S3_ACCESS_KEY_ID":   " ",
		"MILLROOM_UNRELATED_VARIABLE": "x",
	}))
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if cfg.Storage.Driver != core.StoragePostgres || cfg.Storage.PostgresDSN != "postgres://lab/millroom" {
		t.Fatalf("unexpected storage %+v", cfg.Storage)
	}
	if cfg.Blob.Driver != blob.DriverS3 || cfg.Blob.S3.Bucket != "shots" || !cfg.Blob.S3.PathStyle || cfg.Blob.S3.AccessKeyID != "" {
		t.Fatalf("unexpected blob %+v", cfg.Blob)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Mode != "production" || cfg.Log.File != "/var/log/millroom.log" {
		t.Fatalf("unexpected log %+v", cfg.Log)
	}
	if cfg.CatalogPath != "materials.yaml" {
		t.Fatalf("unexpected catalog path %q", cfg.CatalogPath)
	}
}

func TestFromEnvRejectsInvalidValues(t *testing.T) {
	cases := []map[string]string{
		{"MILLROOM_STORAGE_DRIVER": "etcd"},
		{"MILLROOM_BLOB_DRIVER": "tape"},
		{"MILLROOM_BLOB_DRIVER": "s3"},
		{"MILLROOM_S3_PATH_STYLE": "sometimes"},
		{"MILLROOM_LOG_LEVEL": "loud"},
	}
	for _, env := range cases {
		if _, err := FromEnv(mapLookup(env)); err == nil {
			t.Fatalf("expected error for %v", env)
		}
	}
}

func TestLoadReadsEnvFileWithoutOverriding(t *testing.T) {
	path := filepath.Join(t.TempDir(), "millroom.env")
	body := "MILLROOM_SQLITE_PATH=/data/lab.db\nMILLROOM_LOG_LEVEL=warn\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("MILLROOM_LOG_LEVEL", "error")
	t.Setenv("MILLROOM_SQLITE_PATH", "")
	_ = os.Unsetenv("MILLROOM_SQLITE_PATH")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.SQLitePath != "/data/lab.db" {
		t.Fatalf("expected path from env file, got %q", cfg.Storage.SQLitePath)
	}
	if cfg.Log.Level != "error" {
		t.Fatalf("process environment should win, got %q", cfg.Log.Level)
	}
}

func TestLoadMissingFiles(t *testing.T) {
	t.Chdir(t.TempDir())
	if _, err := Load(""); err != nil {
		t.Fatalf("missing default .env should be ignored: %v", err)
	}
	if _, err := Load("nope.env"); err == nil {
		t.Fatalf("expected error for explicit missing file")
	}
}
