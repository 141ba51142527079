package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/rowjay/trv-scheduler/internal/archive"
	"github.com/rowjay/trv-scheduler/internal/config"
	"github.com/rowjay/trv-scheduler/internal/eeprom"
	"github.com/rowjay/trv-scheduler/internal/lock"
	"github.com/rowjay/trv-scheduler/internal/notify"
	"github.com/rowjay/trv-scheduler/internal/policy"
	"github.com/rowjay/trv-scheduler/internal/schedule"
	"github.com/rowjay/trv-scheduler/internal/snapshot"
	"github.com/rowjay/trv-scheduler/internal/util"
)

type App struct {
	Cfg       *config.Config
	Store     *schedule.Store
	Engine    *schedule.Engine
	Policy    *policy.Source
	Snapshots *snapshot.Service
	Log       zerolog.Logger
	Notifier  notify.Notifier

	device     eeprom.Device
	engineOpts []schedule.Option
}

// New wires a schedule engine over dev. Extra engine options are applied to
// every engine the App builds.
func New(cfg *config.Config, dev eeprom.Device, backend archive.Backend, clock policy.Clock, log zerolog.Logger, notifier notify.Notifier, opts ...schedule.Option) (*App, error) {
	if clock == nil {
		clock = policy.SystemClock{}
	}
	params, err := schedule.NewParams(cfg.Schedule.Slots, cfg.Schedule.GranularityMinutes, cfg.Storage.BaseAddress,
		cfg.Schedule.MinPreWarmMinutes, cfg.Policy.EcoMinutes)
	if err != nil {
		return nil, err
	}
	source, err := policy.FromConfig(cfg.Policy, cfg.Schedule.Timezone, clock)
	if err != nil {
		return nil, err
	}
	store, err := schedule.NewStore(dev, params, log)
	if err != nil {
		return nil, err
	}
	snapOpts, err := snapshot.OptionsFromConfig(cfg.Snapshot, cfg.Global.DeviceName)
	if err != nil {
		return nil, err
	}

	engineOpts := append([]schedule.Option{schedule.WithLogger(log)}, opts...)
	return &App{
		Cfg:        cfg,
		Store:      store,
		Engine:     schedule.NewEngine(store, source, engineOpts...),
		Policy:     source,
		Snapshots:  snapshot.New(store, backend, snapOpts, log),
		Log:        log,
		Notifier:   notifier,
		device:     dev,
		engineOpts: engineOpts,
	}, nil
}

// FromConfig opens the configured device and snapshot backend.
func FromConfig(cfg *config.Config, log zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dev, err := eeprom.Open(cfg.Storage)
	if err != nil {
		return nil, err
	}
	backend, err := archive.New(cfg.Snapshot)
	if err != nil {
		closeDevice(dev)
		return nil, err
	}
	a, err := New(cfg, dev, backend, nil, log, notify.FromConfig(cfg.Notifications))
	if err != nil {
		closeDevice(dev)
		return nil, err
	}
	return a, nil
}

func (a *App) Close() error {
	return closeDevice(a.device)
}

func closeDevice(dev eeprom.Device) error {
	if c, ok := dev.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (a *App) Set(ctx context.Context, slot, minutes int) error {
	start := time.Now()
	err := a.guarded(func() error { return a.Store.Set(slot, minutes) })
	message := fmt.Sprintf("slot %d rejected %d minutes", slot, minutes)
	if err == nil {
		anchor, _ := a.Store.Anchor(slot)
		message = fmt.Sprintf("slot %d set to %s", slot, util.FormatClock(anchor))
	}
	a.notify(ctx, notify.Event{Type: "set", Message: message, Slot: &slot}, start, err)
	return err
}

func (a *App) Clear(ctx context.Context, slot int) error {
	start := time.Now()
	err := a.guarded(func() error { return a.Store.Clear(slot) })
	a.notify(ctx, notify.Event{
		Type:    "clear",
		Message: fmt.Sprintf("slot %d cleared", slot),
		Slot:    &slot,
	}, start, err)
	return err
}

// Status reports the schedule at the current time.
func (a *App) Status() schedule.Status {
	return a.Engine.Status()
}

// StatusAt reports the schedule as if the local time of day were minutes.
// The pinned clock is read in UTC, so Status.Now is minutes even on days when
// the configured zone skips that local time.
func (a *App) StatusAt(minutes int) (schedule.Status, error) {
	if minutes < 0 || minutes >= schedule.MinutesPerDay {
		return schedule.Status{}, schedule.ErrInvalidTime
	}
	source, err := policy.FromConfig(a.Cfg.Policy, "UTC", policy.FixedClock{T: util.TimeOfDayUTC(minutes)})
	if err != nil {
		return schedule.Status{}, err
	}
	return schedule.NewEngine(a.Store, source, a.engineOpts...).Status(), nil
}

func (a *App) Backup(ctx context.Context) (snapshot.Manifest, error) {
	start := time.Now()
	var manifest snapshot.Manifest
	err := a.guarded(func() error {
		var err error
		manifest, err = a.Snapshots.Backup(ctx)
		return err
	})
	a.notify(ctx, notify.Event{Type: "backup", Message: "schedule snapshot", Key: manifest.Key}, start, err)
	return manifest, err
}

func (a *App) Restore(ctx context.Context, key string, dryRun bool) (snapshot.Manifest, error) {
	start := time.Now()
	var manifest snapshot.Manifest
	err := a.guarded(func() error {
		var err error
		manifest, err = a.Snapshots.Restore(ctx, key, dryRun)
		return err
	})
	if !dryRun {
		a.notify(ctx, notify.Event{Type: "restore", Message: "schedule restored", Key: key}, start, err)
	}
	return manifest, err
}

func (a *App) List(ctx context.Context) ([]archive.ObjectInfo, error) {
	return a.Snapshots.List(ctx)
}

// guarded serialises mutating operations across processes.
func (a *App) guarded(fn func() error) error {
	guard, err := lock.Acquire(a.Cfg.ProcessLockPath())
	if err != nil {
		return err
	}
	defer guard.Release()
	return fn()
}

func (a *App) notify(ctx context.Context, event notify.Event, start time.Time, opErr error) {
	if a.Notifier == nil {
		return
	}
	end := time.Now()
	event.Device = a.Cfg.Global.DeviceName
	event.Status = notify.StatusFromErr(opErr)
	event.StartedAt = start
	event.EndedAt = end
	event.Duration = end.Sub(start).String()
	if opErr != nil {
		event.Error = opErr.Error()
	}
	if err := a.Notifier.Notify(ctx, event); err != nil && !errors.Is(err, context.Canceled) {
		a.Log.Warn().Err(err).Str("event", event.Type).Msg("notification failed")
	}
}
