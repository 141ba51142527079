package archive

import (
	"fmt"

	"github.com/rowjay/trv-scheduler/internal/config"
)

func New(cfg config.SnapshotConfig) (Backend, error) {
	switch cfg.Backend {
	case "local", "":
		if cfg.Local.Path == "" {
			return nil, fmt.Errorf("snapshot.local.path is required for the local backend")
		}
		return NewLocal(cfg.Local.Path), nil
	case "s3":
		if cfg.S3.Endpoint == "" || cfg.S3.Bucket == "" {
			return nil, fmt.Errorf("s3 endpoint and bucket are required")
		}
		return NewS3(cfg.S3)
	default:
		return nil, fmt.Errorf("unsupported snapshot backend: %s", cfg.Backend)
	}
}
