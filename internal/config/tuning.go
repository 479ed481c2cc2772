package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// TuningConfig represents the root configuration for engine tuning
// parameters. Fields omitted from the JSON file retain their defaults,
// so partial configs are safe.
type TuningConfig struct {
	// Slice store params
	CacheCapacity   *int `json:"cache_capacity,omitempty"`
	PreloadDistance *int `json:"preload_distance,omitempty"`

	// HTTP diagnostics params
	MonitorAddr *string `json:"monitor_addr,omitempty"`

	// Catalog params
	CatalogPath *string `json:"catalog_path,omitempty"`

	// Dataset params
	DatasetFormat *string `json:"dataset_format,omitempty"` // "raw" or "sliceblob"
}

// Helper functions to create pointers
func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.CacheCapacity != nil && *c.CacheCapacity <= 0 {
		return fmt.Errorf("cache_capacity must be positive, got %d", *c.CacheCapacity)
	}

	if c.DatasetFormat != nil {
		switch *c.DatasetFormat {
		case "raw", "sliceblob":
		default:
			return fmt.Errorf("dataset_format must be 'raw' or 'sliceblob', got %q", *c.DatasetFormat)
		}
	}

	return nil
}

// GetCacheCapacity returns the cache_capacity value or the default.
func (c *TuningConfig) GetCacheCapacity() int {
	if c.CacheCapacity == nil {
		return 20
	}
	return *c.CacheCapacity
}

// GetPreloadDistance returns the preload_distance value or the default.
// A negative value disables read-ahead.
func (c *TuningConfig) GetPreloadDistance() int {
	if c.PreloadDistance == nil {
		return 2
	}
	return *c.PreloadDistance
}

// GetMonitorAddr returns the monitor_addr value or the default.
func (c *TuningConfig) GetMonitorAddr() string {
	if c.MonitorAddr == nil || *c.MonitorAddr == "" {
		return "localhost:8980"
	}
	return *c.MonitorAddr
}

// GetCatalogPath returns the catalog_path value or the default.
func (c *TuningConfig) GetCatalogPath() string {
	if c.CatalogPath == nil || *c.CatalogPath == "" {
		return "illumination.db"
	}
	return *c.CatalogPath
}

// GetDatasetFormat returns the dataset_format value or the default.
func (c *TuningConfig) GetDatasetFormat() string {
	if c.DatasetFormat == nil || *c.DatasetFormat == "" {
		return "raw"
	}
	return *c.DatasetFormat
}
