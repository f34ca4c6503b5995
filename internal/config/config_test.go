package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"docsync/internal/model"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		BaseDir: "/var/lib/syncd",
		LogDir:  "/var/lib/syncd/log",
		Storage: StorageConfig{
			Type:     "s3",
			S3Bucket: "docsync-prod",
			S3Prefix: "v1/",
			S3Region: "eu-west-1",
		},
		Database: DatabaseConfig{Type: "sqlite", DataDir: "/var/lib/syncd/data"},
		Limits: LimitsConfig{
			ContentMaxBytes:  10 << 20,
			SidecarMaxBytes:  1 << 20,
			PathMaxChars:     1000,
			FilenameMaxChars: 255,
		},
		Tiers: map[string]TierConfig{
			"free": {MaxBytes: 100 << 20, MaxDocuments: 1000, RequestsPerMinute: 60},
		},
		Retention: RetentionConfig{SoftDeleteDays: 30, ResolvedConflictDays: 7, OperationLogDays: 90},
		Sweeper:   SweeperConfig{IntervalHours: 24},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.BaseDir != original.BaseDir {
		t.Errorf("BaseDir = %q, want %q", got.BaseDir, original.BaseDir)
	}
	if got.LogDir != original.LogDir {
		t.Errorf("LogDir = %q, want %q", got.LogDir, original.LogDir)
	}
	if got.Storage.Type != "s3" {
		t.Errorf("Storage.Type = %q, want %q", got.Storage.Type, "s3")
	}
	if got.Storage.S3Bucket != "docsync-prod" {
		t.Errorf("Storage.S3Bucket = %q, want %q", got.Storage.S3Bucket, "docsync-prod")
	}
	if got.Database.Type != "sqlite" {
		t.Errorf("Database.Type = %q, want %q", got.Database.Type, "sqlite")
	}
	if got.Limits.ContentMaxBytes != 10<<20 {
		t.Errorf("Limits.ContentMaxBytes = %d, want %d", got.Limits.ContentMaxBytes, 10<<20)
	}
	free, ok := got.Tiers["free"]
	if !ok {
		t.Fatal("Tiers missing free tier")
	}
	if free.MaxDocuments != 1000 {
		t.Errorf("Tiers[free].MaxDocuments = %d, want 1000", free.MaxDocuments)
	}
	if got.Retention.SoftDeleteDays != 30 {
		t.Errorf("Retention.SoftDeleteDays = %d, want 30", got.Retention.SoftDeleteDays)
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/data/syncd")

	if cfg.BaseDir != "/data/syncd" {
		t.Errorf("BaseDir = %q, want %q", cfg.BaseDir, "/data/syncd")
	}
	if cfg.LogDir != "/data/syncd/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/syncd/log")
	}
	if cfg.Database.DataDir != "/data/syncd/data" {
		t.Errorf("Database.DataDir = %q, want %q", cfg.Database.DataDir, "/data/syncd/data")
	}
	if cfg.Limits.ContentMaxBytes != 10<<20 {
		t.Errorf("Limits.ContentMaxBytes = %d, want %d", cfg.Limits.ContentMaxBytes, 10<<20)
	}
	for _, tier := range []string{"free", "premium", "pro"} {
		if _, ok := cfg.Tiers[tier]; !ok {
			t.Errorf("Tiers missing %q", tier)
		}
	}
	if cfg.Sweeper.IntervalHours != 24 {
		t.Errorf("Sweeper.IntervalHours = %d, want 24", cfg.Sweeper.IntervalHours)
	}
}

func TestTierLimits(t *testing.T) {
	cfg := NewConfig("/data/syncd")

	t.Run("known tier", func(t *testing.T) {
		got := cfg.TierLimits(model.TierPremium)
		if got.MaxBytes != 10<<30 {
			t.Errorf("MaxBytes = %d, want %d", got.MaxBytes, int64(10<<30))
		}
	})

	t.Run("unknown tier falls back to free", func(t *testing.T) {
		got := cfg.TierLimits(model.Tier("enterprise"))
		want := cfg.Tiers["free"]
		if got != want {
			t.Errorf("TierLimits(enterprise) = %+v, want free tier %+v", got, want)
		}
	})
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "syncd.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "syncd.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		err := Init(path, cfg)
		if err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "syncd.toml")
		cfg := NewConfig(dir)
		cfg.Database = DatabaseConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.Database.Type != "memory" {
			t.Errorf("Database.Type = %q, want %q", got.Database.Type, "memory")
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		_, err := ReadFromFile("/nonexistent/path/syncd.toml")
		if err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
