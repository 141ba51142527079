package eeprom

import (
	"fmt"

	"github.com/rowjay/trv-scheduler/internal/config"
)

// Open builds the device selected by cfg.Backend.
func Open(cfg config.StorageConfig) (Device, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemory(cfg.Size), nil
	case "file", "":
		if cfg.Path == "" {
			return nil, fmt.Errorf("storage.path is required for the file backend")
		}
		return OpenFile(cfg.Path, cfg.Size)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}
