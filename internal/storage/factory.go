package storage

import (
	"context"
	"strings"

	"github.com/timmy/sprintreport/internal/config"
)

// NewStorage creates an ArtifactStorage instance based on the configuration.
// Parameters:
//   - ctx: context used while building SDK clients.
//   - cfg: storage configuration.
//
// Returns:
//   - ArtifactStorage: initialized storage implementation.
//   - error: non-nil if the storage client cannot be created.
func NewStorage(ctx context.Context, cfg *config.StorageConfig) (ArtifactStorage, error) {
	storeType := StorageType(strings.ToLower(cfg.Type))
	if storeType == "" {
		if cfg.Endpoint == "" && cfg.Bucket == "" {
			storeType = StorageTypeLocal
		} else {
			storeType = detectStorageType(cfg.Endpoint)
		}
	}

	if storeType == StorageTypeLocal {
		return NewLocalStorage(cfg.LocalDir)
	}
	return NewS3Storage(ctx, &S3Config{
		Type:      storeType,
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		UseSSL:    cfg.UseSSL,
		Bucket:    cfg.Bucket,
		Region:    cfg.Region,
		PublicURL: cfg.PublicURL,
	})
}

// detectStorageType attempts to detect the storage type from the endpoint
func detectStorageType(endpoint string) StorageType {
	endpoint = strings.ToLower(endpoint)

	switch {
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return StorageTypeR2
	case strings.Contains(endpoint, "amazonaws.com"), endpoint == "":
		return StorageTypeS3
	default:
		return StorageTypeS3Compatible
	}
}
