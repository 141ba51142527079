package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trvs.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "global:\n  device_name: hall\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Global.DeviceName != "hall" {
		t.Fatalf("expected device hall, got %q", cfg.Global.DeviceName)
	}
	if cfg.Schedule.Slots != 2 || cfg.Schedule.GranularityMinutes != 6 || cfg.Schedule.MinPreWarmMinutes != 30 {
		t.Fatalf("unexpected schedule defaults %+v", cfg.Schedule)
	}
	if cfg.Policy.Strategy != "threeway" || cfg.Policy.EcoMinutes != 60 || cfg.Policy.ComfortMinutes != 120 {
		t.Fatalf("unexpected policy defaults %+v", cfg.Policy)
	}
	if cfg.Snapshot.RetryBackoff != 2*time.Second || cfg.Global.OperationTimeout != 5*time.Minute {
		t.Fatalf("unexpected duration defaults")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "policy:\n  strategy: Binary\nsnapshot:\n  encryption_key: ${TRVS_TEST_KEY}\n")
	t.Setenv("TRVS_SCHEDULE_SLOTS", "4")
	t.Setenv("TRVS_TEST_KEY", "secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Schedule.Slots != 4 {
		t.Fatalf("expected env slots 4, got %d", cfg.Schedule.Slots)
	}
	if cfg.Policy.Strategy != "binary" {
		t.Fatalf("expected lowercased strategy, got %q", cfg.Policy.Strategy)
	}
	if cfg.Snapshot.EncryptionKey != "secret" {
		t.Fatalf("expected expanded key, got %q", cfg.Snapshot.EncryptionKey)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected missing file error")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Storage:  StorageConfig{Size: 64, BaseAddress: 16},
			Schedule: ScheduleConfig{Slots: 2, GranularityMinutes: 6, MinPreWarmMinutes: 30},
			Policy:   PolicyConfig{Strategy: "threeway", EcoMinutes: 60, ComfortMinutes: 120, EcoMaxC: 18, ComfortMinC: 21},
		}
	}
	cases := map[string]func(*Config){
		"slots":      func(c *Config) { c.Schedule.Slots = 0 },
		"zero grain": func(c *Config) { c.Schedule.GranularityMinutes = 0 },
		"uneven":     func(c *Config) { c.Schedule.GranularityMinutes = 7 },
		"too fine":   func(c *Config) { c.Schedule.GranularityMinutes = 5 },
		"prewarm":    func(c *Config) { c.Schedule.MinPreWarmMinutes = -1 },
		"layout":     func(c *Config) { c.Storage.BaseAddress = 63 },
		"strategy":   func(c *Config) { c.Policy.Strategy = "random" },
		"negative":   func(c *Config) { c.Policy.EcoMinutes = -1 },
		"bands":      func(c *Config) { c.Policy.EcoMaxC = 22 },
		"encryption": func(c *Config) { c.Snapshot.Encryption = true },
	}
	if err := base().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for name, mutate := range cases {
		cfg := base()
		mutate(cfg)
		err := cfg.Validate()
		if err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
		if !strings.Contains(err.Error(), ".") {
			t.Fatalf("%s: expected error to name the key, got %v", name, err)
		}
	}
}

func TestValidateRejectsSharedLockFile(t *testing.T) {
	dir := t.TempDir()
	image := filepath.Join(dir, "trv.eeprom")
	cfg := &Config{
		Global:   GlobalConfig{LockFile: image + ".lock"},
		Storage:  StorageConfig{Backend: "file", Path: image, Size: 64, BaseAddress: 16},
		Schedule: ScheduleConfig{Slots: 2, GranularityMinutes: 6},
		Policy:   PolicyConfig{Strategy: "threeway", EcoMinutes: 60, ComfortMinutes: 120, EcoMaxC: 18, ComfortMinC: 21},
	}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "global.lock_file") {
		t.Fatalf("expected lock_file clash error, got %v", err)
	}

	cfg.Global.LockFile = filepath.Join(dir, "sub", "..", "trv.eeprom.lock")
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected clash to be detected through an unclean path")
	}

	cfg.Global.LockFile = ""
	cfg.Storage.Path = filepath.Join(os.TempDir(), "trvs")
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected clash with the default process lock")
	}

	cfg.Storage.Backend = "memory"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("memory devices take no file lock: %v", err)
	}

	cfg.Storage.Backend = "file"
	cfg.Storage.Path = image
	cfg.Global.LockFile = filepath.Join(dir, "trvs.lock")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
