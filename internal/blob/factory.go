package blob

import (
	"context"
	"fmt"

	"ephyscli/internal/config"
)

// Open selects a Store implementation from the output configuration. The
// fs driver is rooted at cfg.ResolveDir(inputPath).
func Open(ctx context.Context, cfg config.OutputConfig, inputPath string) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return NewFilesystem(cfg.ResolveDir(inputPath))
	case DriverS3:
		return NewS3(ctx, S3Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			PathStyle: cfg.S3.PathStyle,
		})
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
