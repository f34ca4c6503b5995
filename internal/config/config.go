package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"docsync/internal/model"
)

// Config represents the main configuration for syncd.
type Config struct {
	BaseDir   string                `toml:"base_dir"`
	LogDir    string                `toml:"log_dir"`
	Storage   StorageConfig         `toml:"storage"`
	Database  DatabaseConfig        `toml:"database"`
	Limits    LimitsConfig          `toml:"limits"`
	Tiers     map[string]TierConfig `toml:"tiers"`
	Retention RetentionConfig       `toml:"retention"`
	Sweeper   SweeperConfig         `toml:"sweeper"`
}

// StorageConfig represents configuration for the blob storage backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StorageConfig struct {
	Type string `toml:"type"` // "s3", "local", or "memory"

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"` // non-AWS endpoints (minio etc.)
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
}

// DatabaseConfig represents configuration for the catalog database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// LimitsConfig holds per-request payload and path limits.
type LimitsConfig struct {
	ContentMaxBytes  int64 `toml:"content_max_bytes"`
	SidecarMaxBytes  int64 `toml:"sidecar_max_bytes"`
	PathMaxChars     int   `toml:"path_max_chars"`
	FilenameMaxChars int   `toml:"filename_max_chars"`
}

// TierConfig holds the quota limits for one subscription tier.
type TierConfig struct {
	MaxBytes          int64 `toml:"max_bytes"`
	MaxDocuments      int64 `toml:"max_documents"`
	RequestsPerMinute int   `toml:"requests_per_minute"`
}

// RetentionConfig holds the sweeper retention windows, in days.
type RetentionConfig struct {
	SoftDeleteDays       int `toml:"soft_delete_days"`
	ResolvedConflictDays int `toml:"resolved_conflict_days"`
	OperationLogDays     int `toml:"operation_log_days"`
}

// SweeperConfig controls the background lifecycle sweeper.
type SweeperConfig struct {
	IntervalHours int `toml:"interval_hours"`
}

// NewConfig creates a new Config with the provided base directory and the
// documented default limits and tiers.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Storage: StorageConfig{Type: "local"},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "data"),
		},
		Limits: LimitsConfig{
			ContentMaxBytes:  10 << 20,
			SidecarMaxBytes:  1 << 20,
			PathMaxChars:     1000,
			FilenameMaxChars: 255,
		},
		Tiers: map[string]TierConfig{
			string(model.TierFree):    {MaxBytes: 100 << 20, MaxDocuments: 1000, RequestsPerMinute: 60},
			string(model.TierPremium): {MaxBytes: 10 << 30, MaxDocuments: 100000, RequestsPerMinute: 300},
			string(model.TierPro):     {MaxBytes: 100 << 30, MaxDocuments: 1000000, RequestsPerMinute: 1000},
		},
		Retention: RetentionConfig{
			SoftDeleteDays:       30,
			ResolvedConflictDays: 7,
			OperationLogDays:     90,
		},
		Sweeper: SweeperConfig{IntervalHours: 24},
	}
}

// TierLimits resolves a tier name against the configured tiers, falling back
// to the free tier for unknown names.
func (c *Config) TierLimits(tier model.Tier) TierConfig {
	if t, ok := c.Tiers[string(tier)]; ok {
		return t
	}
	return c.Tiers[string(model.TierFree)]
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
// This is an internal helper and should not be exported.
func writeToFile(path string, cfg *Config) error {
	// Ensure the directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	// Check if config already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
