// Package snapshot backs up and restores the persisted slot image of a
// schedule store through an archive backend.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rowjay/trv-scheduler/internal/archive"
	"github.com/rowjay/trv-scheduler/internal/compress"
	"github.com/rowjay/trv-scheduler/internal/config"
	"github.com/rowjay/trv-scheduler/internal/cryptoutil"
	"github.com/rowjay/trv-scheduler/internal/schedule"
	"github.com/rowjay/trv-scheduler/internal/util"
	"github.com/rowjay/trv-scheduler/internal/version"
)

var (
	ErrIncompatible = errors.New("snapshot: layout does not match this device")
	ErrExists       = errors.New("snapshot: object already exists")
)

type Manifest struct {
	ID          string    `json:"id"`
	Key         string    `json:"key"`
	Device      string    `json:"device"`
	Slots       int       `json:"slots"`
	Granularity int       `json:"granularity_minutes"`
	BaseAddress int       `json:"base_address"`
	SetSlots    int       `json:"set_slots"`
	Compression string    `json:"compression"`
	Encryption  bool      `json:"encryption"`
	CreatedAt   time.Time `json:"created_at"`
	SizeBytes   int64     `json:"size_bytes"`
	ToolVersion string    `json:"tool_version"`
}

type Options struct {
	Device       string
	Prefix       string
	Compression  string
	Encryption   bool
	Key          []byte
	RetryCount   int
	RetryBackoff time.Duration
	KeepLast     int
}

// OptionsFromConfig resolves the snapshot settings, parsing the encryption
// key when one is configured.
func OptionsFromConfig(cfg config.SnapshotConfig, device string) (Options, error) {
	if err := compress.Validate(cfg.Compression); err != nil {
		return Options{}, err
	}
	opts := Options{
		Device:       device,
		Prefix:       cfg.Prefix,
		Compression:  cfg.Compression,
		Encryption:   cfg.Encryption,
		RetryCount:   cfg.RetryCount,
		RetryBackoff: cfg.RetryBackoff,
		KeepLast:     cfg.KeepLast,
	}
	if cfg.EncryptionKey != "" {
		key, err := cryptoutil.ParseKey(cfg.EncryptionKey)
		if err != nil {
			return Options{}, err
		}
		opts.Key = key
	}
	if opts.Encryption && opts.Key == nil {
		return Options{}, fmt.Errorf("encryption is enabled but encryption_key is empty")
	}
	return opts, nil
}

type Service struct {
	store   *schedule.Store
	backend archive.Backend
	opts    Options
	log     zerolog.Logger
	now     func() time.Time
}

func New(store *schedule.Store, backend archive.Backend, opts Options, log zerolog.Logger) *Service {
	return &Service{
		store:   store,
		backend: backend,
		opts:    opts,
		log:     log.With().Str("component", "snapshot").Logger(),
		now:     time.Now,
	}
}

// Backup uploads the current slot image and its manifest, then applies
// keep-last retention.
func (s *Service) Backup(ctx context.Context) (Manifest, error) {
	image, err := s.store.Raw()
	if err != nil {
		return Manifest{}, err
	}
	p := s.store.Params()
	created := s.now().UTC()
	key := util.BuildSnapshotKey(s.opts.Prefix, s.opts.Device, created, s.extension())

	exists, err := s.backend.Exists(ctx, key)
	if err != nil {
		return Manifest{}, err
	}
	if exists {
		return Manifest{}, fmt.Errorf("%w: %s", ErrExists, key)
	}

	err = util.Retry(ctx, s.opts.RetryCount, s.opts.RetryBackoff, func() error {
		return s.upload(ctx, key, image)
	})
	if err != nil {
		return Manifest{}, fmt.Errorf("upload snapshot: %w", err)
	}

	stat, err := s.backend.Stat(ctx, key)
	if err != nil {
		return Manifest{}, err
	}
	manifest := Manifest{
		ID:          fmt.Sprintf("%s-%d", s.opts.Device, created.UnixNano()),
		Key:         key,
		Device:      s.opts.Device,
		Slots:       p.Slots,
		Granularity: p.Granularity,
		BaseAddress: p.BaseAddress,
		SetSlots:    countSet(image, p),
		Compression: s.opts.Compression,
		Encryption:  s.opts.Encryption,
		CreatedAt:   created,
		SizeBytes:   stat.Size,
		ToolVersion: version.Version,
	}
	if err := s.writeManifest(ctx, manifest); err != nil {
		return Manifest{}, fmt.Errorf("write manifest: %w", err)
	}
	if err := s.applyRetention(ctx); err != nil {
		s.log.Warn().Err(err).Msg("retention failed")
	}
	s.log.Info().Str("key", key).Int("set_slots", manifest.SetSlots).Msg("snapshot stored")
	return manifest, nil
}

func (s *Service) upload(ctx context.Context, key string, image []byte) error {
	pipeReader, pipeWriter := io.Pipe()
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		defer pipeReader.Close()
		return s.backend.Put(egCtx, key, pipeReader, -1, map[string]string{"trvs-snapshot": "true"})
	})

	eg.Go(func() error {
		writer := io.Writer(pipeWriter)
		closers := []io.Closer{}
		compWriter, err := compress.WrapWriter(s.opts.Compression, writer)
		if err != nil {
			_ = pipeWriter.CloseWithError(err)
			return err
		}
		writer = compWriter
		closers = append(closers, compWriter)
		if s.opts.Encryption {
			encWriter, err := cryptoutil.EncryptWriter(writer, s.opts.Key)
			if err != nil {
				_ = pipeWriter.CloseWithError(err)
				return err
			}
			writer = encWriter
			closers = append(closers, encWriter)
		}
		if _, err := writer.Write(image); err != nil {
			_ = pipeWriter.CloseWithError(err)
			return err
		}
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				_ = pipeWriter.CloseWithError(err)
				return err
			}
		}
		return pipeWriter.Close()
	})

	return eg.Wait()
}

// Restore loads the snapshot at key into the store. The snapshot must have
// been taken from a store with the same slot count and granularity. With
// dryRun the image is fetched and checked but nothing is written.
func (s *Service) Restore(ctx context.Context, key string, dryRun bool) (Manifest, error) {
	manifest, err := s.readManifest(ctx, key)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	p := s.store.Params()
	if manifest.Slots != p.Slots || manifest.Granularity != p.Granularity {
		return Manifest{}, fmt.Errorf("%w: snapshot has %d slots at %d min, device has %d at %d min",
			ErrIncompatible, manifest.Slots, manifest.Granularity, p.Slots, p.Granularity)
	}

	image, err := s.fetch(ctx, key, manifest)
	if err != nil {
		return Manifest{}, err
	}
	if len(image) != p.Slots {
		return Manifest{}, fmt.Errorf("%w: image holds %d bytes, expected %d", ErrIncompatible, len(image), p.Slots)
	}
	if dryRun {
		s.log.Info().Str("key", key).Msg("dry run restore")
		return manifest, nil
	}
	if err := s.store.Load(image); err != nil {
		return Manifest{}, err
	}
	s.log.Info().Str("key", key).Int("set_slots", countSet(image, p)).Msg("snapshot restored")
	return manifest, nil
}

func (s *Service) fetch(ctx context.Context, key string, manifest Manifest) ([]byte, error) {
	reader, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	payload := io.Reader(reader)
	if manifest.Encryption {
		if s.opts.Key == nil {
			return nil, fmt.Errorf("encryption key is required to restore encrypted snapshot")
		}
		payload, err = cryptoutil.DecryptReader(payload, s.opts.Key)
		if err != nil {
			return nil, err
		}
	}
	compReader, err := compress.WrapReader(manifest.Compression, payload)
	if err != nil {
		return nil, err
	}
	defer compReader.Close()

	// Never trust the object size: read at most one byte past the layout.
	return io.ReadAll(io.LimitReader(compReader, int64(manifest.Slots)+1))
}

// List returns the device's snapshots, newest first.
func (s *Service) List(ctx context.Context) ([]archive.ObjectInfo, error) {
	objects, err := s.backend.List(ctx, util.BuildPrefix(s.opts.Prefix, s.opts.Device))
	if err != nil {
		return nil, err
	}
	var snapshots []archive.ObjectInfo
	for _, obj := range objects {
		if !obj.IsManifest {
			snapshots = append(snapshots, obj)
		}
	}
	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].Key > snapshots[j].Key })
	return snapshots, nil
}

func (s *Service) writeManifest(ctx context.Context, manifest Manifest) error {
	payload, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	return s.backend.Put(ctx, archive.ManifestKey(manifest.Key), bytes.NewReader(payload), int64(len(payload)), map[string]string{"trvs-manifest": "true"})
}

func (s *Service) readManifest(ctx context.Context, key string) (Manifest, error) {
	reader, err := s.backend.Get(ctx, archive.ManifestKey(key))
	if err != nil {
		return Manifest{}, err
	}
	defer reader.Close()
	var manifest Manifest
	if err := json.NewDecoder(reader).Decode(&manifest); err != nil {
		return Manifest{}, err
	}
	return manifest, nil
}

func (s *Service) applyRetention(ctx context.Context) error {
	if s.opts.KeepLast <= 0 {
		return nil
	}
	snapshots, err := s.List(ctx)
	if err != nil {
		return err
	}
	for i, obj := range snapshots {
		if i < s.opts.KeepLast {
			continue
		}
		if err := s.backend.Delete(ctx, obj.Key); err != nil {
			return err
		}
		if err := s.backend.Delete(ctx, archive.ManifestKey(obj.Key)); err != nil {
			return err
		}
		s.log.Debug().Str("key", obj.Key).Msg("snapshot pruned")
	}
	return nil
}

func (s *Service) extension() string {
	ext := "img"
	if c := compress.Extension(s.opts.Compression); c != "" {
		ext += "." + c
	}
	if s.opts.Encryption {
		ext += ".enc"
	}
	return ext
}

func countSet(image []byte, p schedule.Params) int {
	n := 0
	for _, v := range image {
		if int(v) <= p.MaxCompressed() {
			n++
		}
	}
	return n
}
