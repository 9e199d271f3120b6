package storage

import (
	"context"
	"fmt"

	"github.com/timmy/textfleet/internal/config"
)

// NewStorage creates an ObjectStorage for the configured driver.
// Parameters:
//   - ctx: context used while loading AWS configuration.
//   - cfg: storage section; Driver is one of s3, minio, memory.
//   - awsCfg: region and credentials shared with the other AWS clients.
// Returns:
//   - ObjectStorage: initialized storage client implementation.
//   - error: non-nil if the driver is unknown or the client cannot be created.
func NewStorage(ctx context.Context, cfg config.StorageConfig, awsCfg config.AWSConfig) (ObjectStorage, error) {
	switch cfg.Driver {
	case "", "s3":
		return NewS3Storage(ctx, &S3Config{
			Endpoint:  firstNonEmpty(cfg.Endpoint, awsCfg.Endpoint),
			AccessKey: firstNonEmpty(cfg.AccessKey, awsCfg.AccessKey),
			SecretKey: firstNonEmpty(cfg.SecretKey, awsCfg.SecretKey),
			Profile:   awsCfg.Profile,
			Region:    awsCfg.Region,
			PublicURL: cfg.PublicURL,
		})
	case "minio":
		return NewMinIOStorage(&MinIOConfig{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
			Region:    awsCfg.Region,
			PublicURL: cfg.PublicURL,
		})
	case "memory":
		return NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
