package config

import "time"

// Config is the root configuration schema.
type Config struct {
	Global   GlobalConfig   `mapstructure:"global"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Policy   PolicyConfig   `mapstructure:"policy"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`

	Notifications NotificationsConfig `mapstructure:"notifications"`
}

type GlobalConfig struct {
	LogLevel         string        `mapstructure:"log_level"`
	LogFormat        string        `mapstructure:"log_format"` // json or console
	LockFile         string        `mapstructure:"lock_file"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
	DeviceName       string        `mapstructure:"device_name"`
}

type StorageConfig struct {
	Backend     string `mapstructure:"backend"` // file, memory
	Path        string `mapstructure:"path"`
	Size        int    `mapstructure:"size"`
	BaseAddress int    `mapstructure:"base_address"`
}

type ScheduleConfig struct {
	Slots              int    `mapstructure:"slots"`
	GranularityMinutes int    `mapstructure:"granularity_minutes"`
	MinPreWarmMinutes  int    `mapstructure:"min_prewarm_minutes"`
	Timezone           string `mapstructure:"timezone"`
}

type PolicyConfig struct {
	Strategy       string `mapstructure:"strategy"` // fixed, binary, threeway
	EcoMinutes     int    `mapstructure:"eco_minutes"`
	ComfortMinutes int    `mapstructure:"comfort_minutes"`
	EcoMaxC        int    `mapstructure:"eco_max_c"`
	ComfortMinC    int    `mapstructure:"comfort_min_c"`
	TargetC        int    `mapstructure:"target_c"`
	EcoBias        bool   `mapstructure:"eco_bias"`
}

type SnapshotConfig struct {
	Backend       string        `mapstructure:"backend"` // local, s3
	Prefix        string        `mapstructure:"prefix"`
	Local         LocalStore    `mapstructure:"local"`
	S3            S3Store       `mapstructure:"s3"`
	Compression   string        `mapstructure:"compression"` // none, gzip, zstd
	Encryption    bool          `mapstructure:"encryption"`
	EncryptionKey string        `mapstructure:"encryption_key"`
	RetryCount    int           `mapstructure:"retry_count"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
	KeepLast      int           `mapstructure:"keep_last"`
}

type LocalStore struct {
	Path string `mapstructure:"path"`
}

type S3Store struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKey       string `mapstructure:"access_key"`
	SecretKey       string `mapstructure:"secret_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
	SessionToken    string `mapstructure:"session_token"`
	TLSInsecureSkip bool   `mapstructure:"tls_insecure_skip"`
}

type NotificationsConfig struct {
	Webhooks   []WebhookConfig  `mapstructure:"webhooks"`
	Mattermost []MattermostHook `mapstructure:"mattermost"`
}

type WebhookConfig struct {
	Name    string            `mapstructure:"name"`
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
}

type MattermostHook struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}
