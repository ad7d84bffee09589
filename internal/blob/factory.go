package blob

import (
	"context"
	"fmt"

	"millroom/internal/infra/blob/fs"
	"millroom/internal/infra/blob/memory"
	"millroom/internal/infra/blob/s3"
)

// Config selects a blob backend. The zero value opens a filesystem store
// rooted at ./screenshots.
type Config struct {
	Driver Driver
	FSRoot string
	S3     s3.Config
}

// Open constructs the store named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return fs.New(cfg.FSRoot)
	case DriverS3:
		return s3.New(ctx, cfg.S3)
	case DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
