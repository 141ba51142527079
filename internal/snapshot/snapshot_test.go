package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rowjay/trv-scheduler/internal/archive"
	"github.com/rowjay/trv-scheduler/internal/config"
	"github.com/rowjay/trv-scheduler/internal/cryptoutil"
	"github.com/rowjay/trv-scheduler/internal/eeprom"
	"github.com/rowjay/trv-scheduler/internal/schedule"
)

func newStore(t *testing.T, p schedule.Params) *schedule.Store {
	t.Helper()
	store, err := schedule.NewStore(eeprom.NewMemory(p.BaseAddress+p.Slots+4), p, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return store
}

func newService(t *testing.T, store *schedule.Store, backend archive.Backend, opts Options) *Service {
	t.Helper()
	svc := New(store, backend, opts, zerolog.Nop())
	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return svc
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	key, err := cryptoutil.GenerateKey()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cases := []config.SnapshotConfig{
		{Compression: "none"},
		{Compression: "gzip"},
		{Compression: "zstd"},
		{Compression: "zstd", Encryption: true, EncryptionKey: key},
	}
	for _, cfg := range cases {
		opts, err := OptionsFromConfig(cfg, "hall")
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", cfg.Compression, err)
		}
		opts.Prefix = "fleet"
		ctx := context.Background()
		backend := archive.NewLocal(t.TempDir())

		src := newStore(t, schedule.DefaultParams())
		if err := src.Set(0, 7*60); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		manifest, err := newService(t, src, backend, opts).Backup(ctx)
		if err != nil {
			t.Fatalf("%s: backup failed: %v", cfg.Compression, err)
		}
		if manifest.SetSlots != 1 || manifest.Encryption != cfg.Encryption {
			t.Fatalf("unexpected manifest %+v", manifest)
		}

		dst := newStore(t, schedule.DefaultParams())
		if _, err := newService(t, dst, backend, opts).Restore(ctx, manifest.Key, false); err != nil {
			t.Fatalf("%s: restore failed: %v", cfg.Compression, err)
		}
		if got, ok := dst.Anchor(0); !ok || got != 7*60 {
			t.Fatalf("%s: expected slot 0 at 420, got %d (%v)", cfg.Compression, got, ok)
		}
		if _, ok := dst.Anchor(1); ok {
			t.Fatalf("%s: expected slot 1 unset", cfg.Compression)
		}
	}
}

func TestRestoreDryRunLeavesStoreUntouched(t *testing.T) {
	ctx := context.Background()
	backend := archive.NewLocal(t.TempDir())
	opts := Options{Device: "hall", Compression: "none"}

	src := newStore(t, schedule.DefaultParams())
	_ = src.Set(1, 22*60)
	manifest, err := newService(t, src, backend, opts).Backup(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dst := newStore(t, schedule.DefaultParams())
	if _, err := newService(t, dst, backend, opts).Restore(ctx, manifest.Key, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dst.IsAnySet() {
		t.Fatalf("dry run must not write the store")
	}
}

func TestRestoreRejectsIncompatibleLayout(t *testing.T) {
	ctx := context.Background()
	backend := archive.NewLocal(t.TempDir())
	opts := Options{Device: "hall", Compression: "none"}

	manifest, err := newService(t, newStore(t, schedule.DefaultParams()), backend, opts).Backup(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wide, err := schedule.NewParams(4, 6, 0, 30, 60)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = newService(t, newStore(t, wide), backend, opts).Restore(ctx, manifest.Key, false)
	if !errors.Is(err, ErrIncompatible) {
		t.Fatalf("expected ErrIncompatible, got %v", err)
	}
}

func TestRestoreEncryptedNeedsKey(t *testing.T) {
	ctx := context.Background()
	backend := archive.NewLocal(t.TempDir())
	key, _ := cryptoutil.GenerateKey()
	opts, err := OptionsFromConfig(config.SnapshotConfig{Compression: "gzip", Encryption: true, EncryptionKey: key}, "hall")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	manifest, err := newService(t, newStore(t, schedule.DefaultParams()), backend, opts).Backup(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	plain := Options{Device: "hall", Compression: "gzip"}
	if _, err := newService(t, newStore(t, schedule.DefaultParams()), backend, plain).Restore(ctx, manifest.Key, false); err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestRetentionKeepsNewest(t *testing.T) {
	ctx := context.Background()
	backend := archive.NewLocal(t.TempDir())
	opts := Options{Device: "hall", Compression: "none", KeepLast: 2}
	svc := newService(t, newStore(t, schedule.DefaultParams()), backend, opts)

	var keys []string
	for i := 0; i < 4; i++ {
		m, err := svc.Backup(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		keys = append(keys, m.Key)
	}

	snapshots, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snapshots) != 2 {
		t.Fatalf("expected 2 snapshots after retention, got %d", len(snapshots))
	}
	if snapshots[0].Key != keys[3] || snapshots[1].Key != keys[2] {
		t.Fatalf("expected newest first, got %s, %s", snapshots[0].Key, snapshots[1].Key)
	}
	if ok, _ := backend.Exists(ctx, archive.ManifestKey(keys[0])); ok {
		t.Fatalf("expected pruned manifest to be removed")
	}
}

func TestOptionsFromConfigValidation(t *testing.T) {
	if _, err := OptionsFromConfig(config.SnapshotConfig{Compression: "lz4"}, "hall"); err == nil {
		t.Fatalf("expected unsupported compression error")
	}
	if _, err := OptionsFromConfig(config.SnapshotConfig{Compression: "none", Encryption: true}, "hall"); err == nil {
		t.Fatalf("expected missing key error")
	}
}
