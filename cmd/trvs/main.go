package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rowjay/trv-scheduler/internal/app"
	"github.com/rowjay/trv-scheduler/internal/config"
	"github.com/rowjay/trv-scheduler/internal/cryptoutil"
	"github.com/rowjay/trv-scheduler/internal/logging"
	"github.com/rowjay/trv-scheduler/internal/schedule"
	"github.com/rowjay/trv-scheduler/internal/util"
	"github.com/rowjay/trv-scheduler/internal/version"
)

type rootFlags struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
}

type overrideFlags struct {
	Device          string
	StorageBackend  string
	StoragePath     string
	Timezone        string
	Snapshot        string
	SnapshotPath    string
	S3Endpoint      string
	S3Bucket        string
	S3AccessKey     string
	S3SecretKey     string
	S3Region        string
	S3UseSSL        string
	S3PathStyle     string
	EncryptionKey   string
	PolicyStrategy  string
	PolicyTargetC   int
	PolicyTargetSet bool
}

func main() {
	root := &rootFlags{}
	overrides := &overrideFlags{}

	rootCmd := &cobra.Command{
		Use:          "trvs",
		Short:        "Radiator valve heating schedule tool",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&root.ConfigPath, "config", "", "Path to config file (yaml/toml/json)")
	rootCmd.PersistentFlags().StringVar(&root.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&root.LogFormat, "log-format", "", "Log format (json, console)")

	rootCmd.PersistentFlags().StringVar(&overrides.Device, "device", "", "Device name used in snapshot keys")
	rootCmd.PersistentFlags().StringVar(&overrides.StorageBackend, "storage", "", "Schedule storage backend (file, memory)")
	rootCmd.PersistentFlags().StringVar(&overrides.StoragePath, "storage-path", "", "Schedule image file")
	rootCmd.PersistentFlags().StringVar(&overrides.Timezone, "timezone", "", "IANA zone the schedule is kept in")
	rootCmd.PersistentFlags().StringVar(&overrides.PolicyStrategy, "strategy", "", "On-duration strategy (fixed, binary, threeway)")
	rootCmd.PersistentFlags().IntVar(&overrides.PolicyTargetC, "target", 0, "Warm target temperature in C for the threeway strategy")

	rootCmd.PersistentFlags().StringVar(&overrides.Snapshot, "snapshot-backend", "", "Snapshot backend (local, s3)")
	rootCmd.PersistentFlags().StringVar(&overrides.SnapshotPath, "snapshot-path", "", "Local snapshot directory")
	rootCmd.PersistentFlags().StringVar(&overrides.S3Endpoint, "s3-endpoint", "", "S3 endpoint (MinIO/OSS)")
	rootCmd.PersistentFlags().StringVar(&overrides.S3Bucket, "s3-bucket", "", "S3 bucket")
	rootCmd.PersistentFlags().StringVar(&overrides.S3AccessKey, "s3-access-key", "", "S3 access key")
	rootCmd.PersistentFlags().StringVar(&overrides.S3SecretKey, "s3-secret-key", "", "S3 secret key")
	rootCmd.PersistentFlags().StringVar(&overrides.S3Region, "s3-region", "", "S3 region")
	rootCmd.PersistentFlags().StringVar(&overrides.S3UseSSL, "s3-ssl", "", "Use SSL for S3 endpoint (true/false)")
	rootCmd.PersistentFlags().StringVar(&overrides.S3PathStyle, "s3-path-style", "", "Force path-style S3 (true/false)")
	rootCmd.PersistentFlags().StringVar(&overrides.EncryptionKey, "encryption-key", "", "Encryption key (base64 or hex) for snapshots")

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		overrides.PolicyTargetSet = cmd.Flags().Changed("target")
	}

	rootCmd.AddCommand(newSetCmd(root, overrides))
	rootCmd.AddCommand(newClearCmd(root, overrides))
	rootCmd.AddCommand(newStatusCmd(root, overrides))
	rootCmd.AddCommand(newBackupCmd(root, overrides))
	rootCmd.AddCommand(newRestoreCmd(root, overrides))
	rootCmd.AddCommand(newListCmd(root, overrides))
	rootCmd.AddCommand(newKeygenCmd())
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newSetCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	var slot int
	var at string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Program a slot with the time the room should be warm",
		RunE: func(cmd *cobra.Command, args []string) error {
			minutes, err := util.ParseClock(at)
			if err != nil {
				return err
			}
			return withApp(root, overrides, func(ctx context.Context, a *app.App, logger zerolog.Logger) error {
				if err := a.Set(ctx, slot, minutes); err != nil {
					return err
				}
				anchor, _ := a.Store.Anchor(slot)
				logger.Info().Int("slot", slot).Str("at", util.FormatClock(anchor)).Msg("slot programmed")
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&slot, "slot", 0, "Slot index")
	cmd.Flags().StringVar(&at, "at", "", "Warm-by time of day (HH:MM)")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

func newClearCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	var slot int

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear a slot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(root, overrides, func(ctx context.Context, a *app.App, logger zerolog.Logger) error {
				if err := a.Clear(ctx, slot); err != nil {
					return err
				}
				logger.Info().Int("slot", slot).Msg("slot cleared")
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&slot, "slot", 0, "Slot index")
	return cmd
}

func newStatusCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show slot windows and whether heating is due",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(root, overrides, func(ctx context.Context, a *app.App, logger zerolog.Logger) error {
				st := a.Status()
				if at != "" {
					minutes, err := util.ParseClock(at)
					if err != nil {
						return err
					}
					if st, err = a.StatusAt(minutes); err != nil {
						return err
					}
				}
				printStatus(st)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "Evaluate at this time of day (HH:MM) instead of now")
	return cmd
}

func printStatus(st schedule.Status) {
	fmt.Printf("now %s  on-duration %dm  pre-warm %dm  look-ahead %dm\n",
		util.FormatClock(st.Now), st.OnDuration, st.PreWarm, st.PrePreWarm)
	for _, s := range st.Slots {
		if !s.Set {
			fmt.Printf("slot %d\tunset\n", s.Slot)
			continue
		}
		fmt.Printf("slot %d\twarm-by %s\ton %s\toff %s\tactive=%t\tsoon=%t\n", s.Slot,
			util.FormatClock(s.Window.Anchor), util.FormatClock(s.Window.On), util.FormatClock(s.Window.Off), s.Active, s.Soon)
	}
	if st.Override != schedule.OverrideNone {
		fmt.Printf("override %s\n", st.Override)
	}
	fmt.Printf("any-set=%t active-now=%t starting-soon=%t\n", st.AnySet, st.ActiveNow, st.StartingSoon)
}

func newBackupCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	var compression string
	var encrypt bool
	var keepLast int

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the programmed slots",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfig(root, overrides, func(cfg *config.Config) {
				if compression != "" {
					cfg.Snapshot.Compression = strings.ToLower(compression)
				}
				if encrypt {
					cfg.Snapshot.Encryption = true
				}
				if keepLast > 0 {
					cfg.Snapshot.KeepLast = keepLast
				}
			}, func(ctx context.Context, a *app.App, logger zerolog.Logger) error {
				m, err := a.Backup(ctx)
				if err != nil {
					return err
				}
				logger.Info().Str("key", m.Key).Int64("size", m.SizeBytes).Int("set_slots", m.SetSlots).Msg("backup completed")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&compression, "compression", "", "Compression (none/gzip/zstd)")
	cmd.Flags().BoolVar(&encrypt, "encrypt", false, "Enable encryption")
	cmd.Flags().IntVar(&keepLast, "keep-last", 0, "Snapshots to keep for this device")
	return cmd
}

func newRestoreCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	var key string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore slots from a snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			if key == "" {
				return fmt.Errorf("--key is required")
			}
			return withApp(root, overrides, func(ctx context.Context, a *app.App, logger zerolog.Logger) error {
				m, err := a.Restore(ctx, key, dryRun)
				if err != nil {
					return err
				}
				logger.Info().Str("key", key).Bool("dry_run", dryRun).Int("set_slots", m.SetSlots).Msg("restore completed")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "Snapshot object key to restore")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Check the snapshot without writing the device")
	return cmd
}

func newListCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List snapshots for this device",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(root, overrides, func(ctx context.Context, a *app.App, logger zerolog.Logger) error {
				items, err := a.List(ctx)
				if err != nil {
					return err
				}
				for _, item := range items {
					fmt.Printf("%s\t%d\t%s\n", item.Key, item.Size, item.Modified.Format(time.RFC3339))
				}
				return nil
			})
		},
	}
}

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a snapshot encryption key",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := cryptoutil.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Println(key)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("trvs %s (commit %s, built %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}

type runFunc func(ctx context.Context, a *app.App, logger zerolog.Logger) error

func withApp(root *rootFlags, overrides *overrideFlags, run runFunc) error {
	return withConfig(root, overrides, nil, run)
}

func withConfig(root *rootFlags, overrides *overrideFlags, adjust func(*config.Config), run runFunc) error {
	cfg, err := loadConfig(root, overrides)
	if err != nil {
		return err
	}
	if adjust != nil {
		adjust(cfg)
	}
	logger := logging.Configure(cfg.Global.LogLevel, cfg.Global.LogFormat)
	a, err := app.FromConfig(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Global.OperationTimeout)
	defer cancel()
	return run(ctx, a, logger)
}

func loadConfig(root *rootFlags, overrides *overrideFlags) (*config.Config, error) {
	cfg, err := config.Load(root.ConfigPath)
	if err != nil {
		return nil, err
	}
	applyOverrides(cfg, root, overrides)
	return cfg, nil
}

func applyOverrides(cfg *config.Config, root *rootFlags, overrides *overrideFlags) {
	if root.LogLevel != "" {
		cfg.Global.LogLevel = root.LogLevel
	}
	if root.LogFormat != "" {
		cfg.Global.LogFormat = root.LogFormat
	}
	if overrides.Device != "" {
		cfg.Global.DeviceName = overrides.Device
	}

	if overrides.StorageBackend != "" {
		cfg.Storage.Backend = overrides.StorageBackend
	}
	if overrides.StoragePath != "" {
		cfg.Storage.Path = overrides.StoragePath
	}
	if overrides.Timezone != "" {
		cfg.Schedule.Timezone = overrides.Timezone
	}
	if overrides.PolicyStrategy != "" {
		cfg.Policy.Strategy = overrides.PolicyStrategy
	}
	if overrides.PolicyTargetSet {
		cfg.Policy.TargetC = overrides.PolicyTargetC
	}

	if overrides.Snapshot != "" {
		cfg.Snapshot.Backend = overrides.Snapshot
	}
	if overrides.SnapshotPath != "" {
		cfg.Snapshot.Local.Path = overrides.SnapshotPath
	}
	if overrides.S3Endpoint != "" {
		cfg.Snapshot.S3.Endpoint = overrides.S3Endpoint
	}
	if overrides.S3Bucket != "" {
		cfg.Snapshot.S3.Bucket = overrides.S3Bucket
	}
	if overrides.S3AccessKey != "" {
		cfg.Snapshot.S3.AccessKey = overrides.S3AccessKey
	}
	if overrides.S3SecretKey != "" {
		cfg.Snapshot.S3.SecretKey = overrides.S3SecretKey
	}
	if overrides.S3Region != "" {
		cfg.Snapshot.S3.Region = overrides.S3Region
	}
	if overrides.S3UseSSL != "" {
		cfg.Snapshot.S3.UseSSL = strings.EqualFold(overrides.S3UseSSL, "true") || overrides.S3UseSSL == "1"
	}
	if overrides.S3PathStyle != "" {
		cfg.Snapshot.S3.ForcePathStyle = strings.EqualFold(overrides.S3PathStyle, "true") || overrides.S3PathStyle == "1"
	}
	if overrides.EncryptionKey != "" {
		cfg.Snapshot.EncryptionKey = overrides.EncryptionKey
	}

	cfg.Storage.Backend = strings.ToLower(cfg.Storage.Backend)
	cfg.Policy.Strategy = strings.ToLower(cfg.Policy.Strategy)
	cfg.Snapshot.Backend = strings.ToLower(cfg.Snapshot.Backend)
}
