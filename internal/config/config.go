// Package config resolves millroom runtime settings from an optional .env
// file and MILLROOM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"millroom/internal/blob"
	"millroom/internal/core"
	"millroom/internal/infra/blob/s3"
	"millroom/internal/logging"
)

const envPrefix = "MILLROOM_"

// DefaultEnvFile is read when Load is given an empty path. Its absence is
// not an error.
const DefaultEnvFile = ".env"

// Config is the resolved runtime configuration.
type Config struct {
	Storage     core.StorageConfig
	Blob        blob.Config
	Log         logging.Config
	CatalogPath string
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Storage: core.StorageConfig{Driver: core.StorageSQLite, SQLitePath: "millroom.db"},
		Blob:    blob.Config{Driver: blob.DriverFilesystem, FSRoot: "screenshots"},
		Log:     logging.Config{Mode: "development", Level: "info"},
	}
}

// Load reads envFile (DefaultEnvFile when empty) into the process
// environment without overriding variables that are already set, then
// builds a Config from MILLROOM_* variables on top of Default.
func Load(envFile string) (Config, error) {
	explicit := envFile != ""
	if !explicit {
		envFile = DefaultEnvFile
	}
	if err := godotenv.Load(envFile); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	get := func(name string) (string, bool) {
		v, ok := lookup(envPrefix + name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("STORAGE_DRIVER"); ok {
		driver := core.StorageDriver(strings.ToLower(v))
		switch driver {
		case core.StorageMemory, core.StorageSQLite, core.StoragePostgres:
			cfg.Storage.Driver = driver
		default:
			return Config{}, fmt.Errorf("%sSTORAGE_DRIVER: unknown driver %q", envPrefix, v)
		}
	}
	if v, ok := get("SQLITE_PATH"); ok {
		cfg.Storage.SQLitePath = v
	}
	if v, ok := get("POSTGRES_DSN"); ok {
		cfg.Storage.PostgresDSN = v
	}

	if v, ok := get("BLOB_DRIVER"); ok {
		driver := blob.Driver(strings.ToLower(v))
		switch driver {
		case blob.DriverFilesystem, blob.DriverMemory, blob.DriverS3:
			cfg.Blob.Driver = driver
		default:
			return Config{}, fmt.Errorf("%sBLOB_DRIVER: unknown driver %q", envPrefix, v)
		}
	}
	if v, ok := get("BLOB_ROOT"); ok {
		cfg.Blob.FSRoot = v
	}
	s3cfg := s3.Config{}
	if v, ok := get("S3_BUCKET"); ok {
		s3cfg.Bucket = v
	}
	if v, ok := get("S3_REGION"); ok {
		s3cfg.Region = v
	}
	if v, ok := get("S3_ENDPOINT"); ok {
		s3cfg.Endpoint = v
	}
	if v, ok := get("S3_ACCESS_KEY_ID"); ok {
		s3cfg.AccessKeyID = v
	}
	if v, ok := get("S3_SECRET_ACCESS_KEY"); ok {
		s3cfg.SecretAccessKey = v
	}
	if v, ok := get("S3_PATH_STYLE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("%sS3_PATH_STYLE: %w", envPrefix, err)
		}
		s3cfg.PathStyle = b
	}
	cfg.Blob.S3 = s3cfg
	if cfg.Blob.Driver == blob.DriverS3 && s3cfg.Bucket == "" {
		return Config{}, fmt.Errorf("%sS3_BUCKET is required for the s3 blob driver", envPrefix)
	}

	if v, ok := get("LOG_LEVEL"); ok {
		if _, err := logging.ParseLevel(v); err != nil {
			return Config{}, fmt.Errorf("%sLOG_LEVEL: %w", envPrefix, err)
		}
		cfg.Log.Level = v
	}
	if v, ok := get("LOG_MODE"); ok {
		cfg.Log.Mode = v
	}
	if v, ok := get("LOG_FILE"); ok {
		cfg.Log.File = v
	}
	if v, ok := get("CATALOG_PATH"); ok {
		cfg.CatalogPath = v
	}
	return cfg, nil
}
