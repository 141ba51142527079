package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rowjay/trv-scheduler/internal/lock"
)

const (
	envPrefix = "TRVS"

	minutesPerDay = 24 * 60
	// unprogrammed is the erased cell value; stored anchors must stay below it.
	unprogrammed = 0xFF
)

var strategies = map[string]bool{"fixed": true, "binary": true, "threeway": true}

// Load reads configuration from a file, env vars, and defaults.
func Load(path string) (*Config, error) {
	vp := viper.New()
	vp.SetEnvPrefix(envPrefix)
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	setDefaults(vp)

	resolved, err := resolveConfigPath(path)
	if err != nil {
		return nil, err
	}
	if resolved != "" {
		vp.SetConfigFile(resolved)
		if err := vp.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := vp.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	expandEnv(&cfg)
	applyPostLoadDefaults(&cfg)
	return &cfg, nil
}

func resolveConfigPath(path string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		return path, nil
	}
	if envPath := os.Getenv("TRVS_CONFIG"); envPath != "" {
		return envPath, nil
	}

	candidates := []string{
		"trvs.yaml",
		"trvs.yml",
		"trvs.toml",
		"trvs.json",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}

	configDir, err := os.UserConfigDir()
	if err == nil {
		base := filepath.Join(configDir, "trvs")
		for _, c := range candidates {
			p := filepath.Join(base, c)
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
	}

	return "", nil
}

func setDefaults(vp *viper.Viper) {
	vp.SetDefault("global.log_level", "info")
	vp.SetDefault("global.log_format", "console")
	vp.SetDefault("global.operation_timeout", "5m")
	vp.SetDefault("global.device_name", "trv")
	vp.SetDefault("storage.backend", "file")
	vp.SetDefault("storage.path", "./trvs.eeprom")
	vp.SetDefault("storage.size", 64)
	vp.SetDefault("storage.base_address", 16)
	vp.SetDefault("schedule.slots", 2)
	vp.SetDefault("schedule.granularity_minutes", 6)
	vp.SetDefault("schedule.min_prewarm_minutes", 30)
	vp.SetDefault("schedule.timezone", "")
	vp.SetDefault("policy.strategy", "threeway")
	vp.SetDefault("policy.eco_minutes", 60)
	vp.SetDefault("policy.comfort_minutes", 120)
	vp.SetDefault("policy.eco_max_c", 18)
	vp.SetDefault("policy.comfort_min_c", 21)
	vp.SetDefault("policy.target_c", 19)
	vp.SetDefault("snapshot.backend", "local")
	vp.SetDefault("snapshot.local.path", "./snapshots")
	vp.SetDefault("snapshot.compression", "zstd")
	vp.SetDefault("snapshot.retry_count", 3)
	vp.SetDefault("snapshot.retry_backoff", "2s")
}

func applyPostLoadDefaults(cfg *Config) {
	if cfg.Snapshot.RetryBackoff == 0 {
		cfg.Snapshot.RetryBackoff = 2 * time.Second
	}
	if cfg.Global.OperationTimeout == 0 {
		cfg.Global.OperationTimeout = 5 * time.Minute
	}
	cfg.Storage.Backend = strings.ToLower(cfg.Storage.Backend)
	cfg.Policy.Strategy = strings.ToLower(cfg.Policy.Strategy)
	cfg.Snapshot.Backend = strings.ToLower(cfg.Snapshot.Backend)
	cfg.Snapshot.Compression = strings.ToLower(cfg.Snapshot.Compression)
}

func expandEnv(cfg *Config) {
	cfg.Storage.Path = os.ExpandEnv(cfg.Storage.Path)
	cfg.Snapshot.Local.Path = os.ExpandEnv(cfg.Snapshot.Local.Path)
	cfg.Snapshot.EncryptionKey = os.ExpandEnv(cfg.Snapshot.EncryptionKey)
	cfg.Snapshot.S3.AccessKey = os.ExpandEnv(cfg.Snapshot.S3.AccessKey)
	cfg.Snapshot.S3.SecretKey = os.ExpandEnv(cfg.Snapshot.S3.SecretKey)
	cfg.Snapshot.S3.SessionToken = os.ExpandEnv(cfg.Snapshot.S3.SessionToken)
	for i := range cfg.Notifications.Webhooks {
		cfg.Notifications.Webhooks[i].URL = os.ExpandEnv(cfg.Notifications.Webhooks[i].URL)
	}
	for i := range cfg.Notifications.Mattermost {
		cfg.Notifications.Mattermost[i].URL = os.ExpandEnv(cfg.Notifications.Mattermost[i].URL)
	}
}

// Validate checks the values that cannot be repaired by defaults.
func (c *Config) Validate() error {
	if c.Schedule.Slots <= 0 {
		return fmt.Errorf("schedule.slots must be positive, got %d", c.Schedule.Slots)
	}
	if g := c.Schedule.GranularityMinutes; g <= 0 || minutesPerDay%g != 0 || minutesPerDay/g-1 >= unprogrammed {
		return fmt.Errorf("schedule.granularity_minutes %d must divide %d and leave every anchor below 0x%X",
			c.Schedule.GranularityMinutes, minutesPerDay, unprogrammed)
	}
	if c.Schedule.MinPreWarmMinutes < 0 {
		return fmt.Errorf("schedule.min_prewarm_minutes must not be negative")
	}
	if c.Storage.BaseAddress < 0 || c.Storage.BaseAddress+c.Schedule.Slots > c.Storage.Size {
		return fmt.Errorf("storage.base_address %d with %d slots does not fit in %d bytes",
			c.Storage.BaseAddress, c.Schedule.Slots, c.Storage.Size)
	}
	if !strategies[c.Policy.Strategy] {
		return fmt.Errorf("unsupported policy.strategy: %s", c.Policy.Strategy)
	}
	if c.Policy.EcoMinutes < 0 || c.Policy.ComfortMinutes < 0 {
		return fmt.Errorf("policy.eco_minutes and policy.comfort_minutes must not be negative")
	}
	if c.Policy.EcoMaxC >= c.Policy.ComfortMinC {
		return fmt.Errorf("policy.eco_max_c (%d) must be below policy.comfort_min_c (%d)", c.Policy.EcoMaxC, c.Policy.ComfortMinC)
	}
	if c.Snapshot.Encryption && c.Snapshot.EncryptionKey == "" {
		return fmt.Errorf("snapshot.encryption is enabled but snapshot.encryption_key is empty")
	}
	// The device lock is taken while the process lock is held; sharing a file
	// would make every mutation wait on itself.
	if c.Storage.Backend == "file" || c.Storage.Backend == "" {
		if samePath(c.ProcessLockPath(), DeviceLockPath(c.Storage.Path)) {
			return fmt.Errorf("global.lock_file %s is the device lock of storage.path; choose another file", c.ProcessLockPath())
		}
	}
	return nil
}

// DeviceLockPath is the advisory lock file guarding a file-backed device image.
func DeviceLockPath(imagePath string) string {
	return imagePath + ".lock"
}

// ProcessLockPath is the lock held by mutating commands.
func (c *Config) ProcessLockPath() string {
	if c.Global.LockFile == "" {
		return lock.DefaultPath()
	}
	return c.Global.LockFile
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
