package ics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/gofrs/flock"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"

	appLog "officehours/internal/log"
	"officehours/internal/model"
)

const (
	defaultWorkers      = 4
	lockRetryDelay      = 25 * time.Millisecond
	storeFilePerm       = 0o644
	storeDirPerm        = 0o755
	tempFilePattern     = ".officehours-*.ics.tmp"
	lockFileSuffix      = ".lock"
	summaryPropertyName = "SUMMARY"
)

var (
	ErrStoreCorrupt   = errors.New("calendar store is corrupt")
	ErrPersistFailure = errors.New("calendar store write failed")
)

// Metadata holds the VCALENDAR-level properties written on every rebuild.
type Metadata struct {
	ProductID string
	Version   string
	Summary   string
}

func DefaultMetadata() Metadata {
	return Metadata{
		ProductID: "-//Office Hours//officehours//EN",
		Version:   "2.0",
		Summary:   "Office Hours",
	}
}

// UpdateFunc receives the current occurrences in file order and returns the
// full replacement set. Returning changed=false skips the write.
type UpdateFunc func(current []model.Occurrence) (next []model.Occurrence, changed bool, err error)

// Store owns the single .ics file holding every occurrence for every owner.
// It never caches: each call re-reads the file.
type Store struct {
	fs       afero.Fs
	path     string
	loc      *time.Location
	meta     Metadata
	workers  int
	fileLock *flock.Flock

	mu sync.Mutex
}

type Option func(*Store)

// WithFs swaps the filesystem, e.g. afero.NewMemMapFs() in tests.
func WithFs(fsys afero.Fs) Option {
	return func(s *Store) { s.fs = fsys }
}

func WithMetadata(m Metadata) Option {
	return func(s *Store) { s.meta = m }
}

// WithWorkers bounds the per-record encode/decode fan-out.
func WithWorkers(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithFileLock takes an advisory flock on "<path>.lock" around every
// load-modify-persist cycle, so separate processes sharing the file do not
// overwrite each other. It only makes sense on the OS filesystem.
func WithFileLock() Option {
	return func(s *Store) { s.fileLock = flock.New(s.path + lockFileSuffix) }
}

// NewStore creates a Store for the file at path. All timestamps are read
// and written in loc.
func NewStore(path string, loc *time.Location, opts ...Option) *Store {
	if loc == nil {
		loc = time.Local
	}
	s := &Store{
		fs:      afero.NewOsFs(),
		path:    path,
		loc:     loc,
		meta:    DefaultMetadata(),
		workers: defaultWorkers,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Location() *time.Location {
	return s.loc
}

// Init writes an empty calendar if the file does not exist yet, so the file
// always holds a valid container.
func (s *Store) Init(ctx context.Context) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()

	exists, err := afero.Exists(s.fs, s.path)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	appLog.Info("creating empty calendar store", "path", s.path)
	return s.replace(ctx, nil, nil)
}

// Load reads and decodes every occurrence in file order. A missing file is
// an empty store. Malformed VEVENTs are logged and skipped.
func (s *Store) Load(ctx context.Context) ([]model.Occurrence, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return snap.occurrences, nil
}

// ReplaceAll rebuilds the file from scratch with exactly occs.
func (s *Store) ReplaceAll(ctx context.Context, occs []model.Occurrence) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()
	return s.replace(ctx, occs, nil)
}

// AppendSeries writes existing followed by added.
func (s *Store) AppendSeries(ctx context.Context, existing, added []model.Occurrence) error {
	all := make([]model.Occurrence, 0, len(existing)+len(added))
	all = append(all, existing...)
	all = append(all, added...)
	return s.ReplaceAll(ctx, all)
}

// Update runs a locked load-modify-persist cycle. Records that failed to
// decode are written back verbatim after the occurrences returned by fn.
func (s *Store) Update(ctx context.Context, fn UpdateFunc) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()

	snap, err := s.load(ctx)
	if err != nil {
		return err
	}

	next, changed, err := fn(snap.occurrences)
	if err != nil {
		return err
	}
	if !changed {
		appLog.Debug("calendar store unchanged; skipping write", "path", s.path)
		return nil
	}
	return s.replace(ctx, next, snap.skipped)
}

type snapshot struct {
	occurrences []model.Occurrence
	skipped     []*ical.VEvent
}

func (s *Store) load(ctx context.Context) (snapshot, error) {
	var snap snapshot
	if err := ctx.Err(); err != nil {
		return snap, err
	}

	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			snap.occurrences = []model.Occurrence{}
			return snap, nil
		}
		return snap, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return snap, fmt.Errorf("%w: %s is empty", ErrStoreCorrupt, s.path)
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(data))
	if err != nil {
		appLog.Error("calendar store parse failed", err, "path", s.path)
		return snap, fmt.Errorf("%w: %w", ErrStoreCorrupt, err)
	}

	events := cal.Events()
	decoded := make([]model.Occurrence, len(events))
	errs := make([]error, len(events))

	p := pool.New().WithMaxGoroutines(s.workers)
	for i, ev := range events {
		p.Go(func() {
			decoded[i], errs[i] = Decode(ev, s.loc)
		})
	}
	p.Wait()

	snap.occurrences = make([]model.Occurrence, 0, len(events))
	for i := range events {
		if errs[i] != nil {
			appLog.Warn("skipping malformed event record", "path", s.path, "index", i, "err", errs[i].Error())
			snap.skipped = append(snap.skipped, events[i])
			continue
		}
		snap.occurrences = append(snap.occurrences, decoded[i])
	}

	appLog.Debug("calendar store loaded", "path", s.path, "occurrences", len(snap.occurrences), "skipped", len(snap.skipped))
	return snap, ctx.Err()
}

func (s *Store) replace(ctx context.Context, occs []model.Occurrence, passthrough []*ical.VEvent) error {
	cal := s.newCalendar()

	encoded := make([]*ical.VEvent, len(occs))
	p := pool.New().WithMaxGoroutines(s.workers)
	for i, occ := range occs {
		p.Go(func() {
			encoded[i] = Encode(occ, s.loc)
		})
	}
	p.Wait()

	for _, ev := range encoded {
		cal.AddVEvent(ev)
	}
	for _, ev := range passthrough {
		cal.AddVEvent(ev)
	}

	// Last point at which a cancelled command leaves the file untouched.
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.writeAtomic([]byte(cal.Serialize())); err != nil {
		appLog.Error("calendar store write failed", err, "path", s.path)
		return err
	}
	appLog.Info("calendar store replaced", "path", s.path, "occurrences", len(occs), "preserved_malformed", len(passthrough))
	return nil
}

func (s *Store) newCalendar() *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetProductId(s.meta.ProductID)
	cal.SetVersion(s.meta.Version)
	if s.meta.Summary != "" {
		cal.CalendarProperties = append(cal.CalendarProperties, ical.CalendarProperty{
			BaseProperty: ical.BaseProperty{
				IANAToken: summaryPropertyName,
				Value:     s.meta.Summary,
			},
		})
	}
	return cal
}

// writeAtomic writes to a temp file in the target directory and renames it
// over the target, so readers never observe a half-written store.
func (s *Store) writeAtomic(data []byte) error {
	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, storeDirPerm); err != nil {
		return fmt.Errorf("%w: create dir: %w", ErrPersistFailure, err)
	}

	tmp, err := afero.TempFile(s.fs, dir, tempFilePattern)
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", ErrPersistFailure, err)
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer func() { _ = s.fs.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: write temp file: %w", ErrPersistFailure, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: sync temp file: %w", ErrPersistFailure, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close temp file: %w", ErrPersistFailure, err)
	}
	if err := s.fs.Chmod(tmpName, storeFilePerm); err != nil {
		return fmt.Errorf("%w: chmod temp file: %w", ErrPersistFailure, err)
	}
	if err := s.fs.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("%w: rename over store: %w", ErrPersistFailure, err)
	}
	return nil
}

func (s *Store) lock(ctx context.Context) error {
	s.mu.Lock()
	if s.fileLock == nil {
		return nil
	}
	locked, err := s.fileLock.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		s.mu.Unlock()
		if err == nil {
			err = errors.New("could not acquire store lock")
		}
		return fmt.Errorf("lock %s: %w", s.fileLock.Path(), err)
	}
	return nil
}

func (s *Store) unlock() {
	if s.fileLock != nil {
		if err := s.fileLock.Unlock(); err != nil {
			appLog.Error("store unlock failed", err, "path", s.fileLock.Path())
		}
	}
	s.mu.Unlock()
}
