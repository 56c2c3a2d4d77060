package ics

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"officehours/internal/model"
)

const testStorePath = "/data/calendar.ics"

func newMemStore(t *testing.T) (*Store, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	return NewStore(testStorePath, newYork(t), WithFs(fsys), WithWorkers(3)), fsys
}

func sampleOccurrences(loc *time.Location, n int) []model.Occurrence {
	out := make([]model.Occurrence, 0, n)
	start := time.Date(2024, 1, 7, 10, 0, 0, 0, loc)
	for i := 0; i < n; i++ {
		s := start.AddDate(0, 0, 7*i)
		out = append(out, model.Occurrence{
			UID:      "uid-" + string(rune('a'+i)),
			SeriesID: "series-1",
			Label:    "42, alice",
			Start:    s,
			End:      s.Add(time.Hour),
		})
	}
	return out
}

func TestStore_LoadMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	store, _ := newMemStore(t)

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_InitWritesEmptyContainer(t *testing.T) {
	t.Parallel()

	store, fsys := newMemStore(t)
	ctx := context.Background()

	require.NoError(t, store.Init(ctx))

	data, err := afero.ReadFile(fsys, testStorePath)
	require.NoError(t, err)
	body := string(data)
	assert.Contains(t, body, "BEGIN:VCALENDAR")
	assert.Contains(t, body, "PRODID:-//Office Hours//officehours//EN")
	assert.Contains(t, body, "VERSION:2.0")
	assert.Contains(t, body, "SUMMARY:Office Hours")
	assert.NotContains(t, body, "BEGIN:VEVENT")

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	// A second Init must not clobber existing content.
	require.NoError(t, store.ReplaceAll(ctx, sampleOccurrences(store.Location(), 2)))
	require.NoError(t, store.Init(ctx))
	got, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestStore_ReplaceAllThenLoad(t *testing.T) {
	t.Parallel()

	store, fsys := newMemStore(t)
	ctx := context.Background()
	want := sampleOccurrences(store.Location(), 10)

	require.NoError(t, store.ReplaceAll(ctx, want))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, want[i].Equal(got[i]), "index %d: want %+v, got %+v", i, want[i], got[i])
	}

	// No temp files left behind.
	entries, err := afero.ReadDir(fsys, "/data")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "calendar.ics", entries[0].Name())
}

func TestStore_AppendSeries(t *testing.T) {
	t.Parallel()

	store, _ := newMemStore(t)
	ctx := context.Background()
	occs := sampleOccurrences(store.Location(), 4)

	require.NoError(t, store.AppendSeries(ctx, occs[:1], occs[1:]))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, "uid-a", got[0].UID)
	assert.Equal(t, "uid-d", got[3].UID)
}

func TestStore_CorruptFile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{name: "empty", content: ""},
		{name: "not a calendar", content: "hello world\n"},
		{name: "truncated", content: "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nBEGIN:VEVENT\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store, fsys := newMemStore(t)
			require.NoError(t, afero.WriteFile(fsys, testStorePath, []byte(tt.content), 0o644))

			_, err := store.Load(context.Background())
			require.ErrorIs(t, err, ErrStoreCorrupt)

			called := false
			err = store.Update(context.Background(), func(cur []model.Occurrence) ([]model.Occurrence, bool, error) {
				called = true
				return cur, true, nil
			})
			require.ErrorIs(t, err, ErrStoreCorrupt)
			assert.False(t, called, "no rebuild from an unreadable base")

			data, err := afero.ReadFile(fsys, testStorePath)
			require.NoError(t, err)
			assert.Equal(t, tt.content, string(data))
		})
	}
}

const calendarWithMalformedEvent = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//Office Hours//discord//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:good\r\n" +
	"DTSTART;TZID=America/New_York:20240107T100000\r\n" +
	"DTEND;TZID=America/New_York:20240107T110000\r\n" +
	"SUMMARY:42\\, alice\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:broken\r\n" +
	"SUMMARY:43\\, bob\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestStore_MalformedRecordsAreSkippedAndPreserved(t *testing.T) {
	t.Parallel()

	store, fsys := newMemStore(t)
	ctx := context.Background()
	require.NoError(t, afero.WriteFile(fsys, testStorePath, []byte(calendarWithMalformedEvent), 0o644))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "good", got[0].UID)
	assert.Equal(t, 10, got[0].Start.Hour())

	err = store.Update(ctx, func(cur []model.Occurrence) ([]model.Occurrence, bool, error) {
		return nil, true, nil
	})
	require.NoError(t, err)

	data, err := afero.ReadFile(fsys, testStorePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "UID:broken")
	assert.NotContains(t, string(data), "UID:good")
}

func TestStore_UpdateUnchangedSkipsWrite(t *testing.T) {
	t.Parallel()

	store, fsys := newMemStore(t)
	ctx := context.Background()
	require.NoError(t, afero.WriteFile(fsys, testStorePath, []byte(calendarWithMalformedEvent), 0o644))

	err := store.Update(ctx, func(cur []model.Occurrence) ([]model.Occurrence, bool, error) {
		return cur, false, nil
	})
	require.NoError(t, err)

	data, err := afero.ReadFile(fsys, testStorePath)
	require.NoError(t, err)
	assert.Equal(t, calendarWithMalformedEvent, string(data))
}

func TestStore_UpdateErrorSkipsWrite(t *testing.T) {
	t.Parallel()

	store, fsys := newMemStore(t)
	ctx := context.Background()
	require.NoError(t, store.ReplaceAll(ctx, sampleOccurrences(store.Location(), 3)))
	before, err := afero.ReadFile(fsys, testStorePath)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = store.Update(ctx, func(cur []model.Occurrence) ([]model.Occurrence, bool, error) {
		return nil, true, boom
	})
	require.ErrorIs(t, err, boom)

	after, err := afero.ReadFile(fsys, testStorePath)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestStore_CancelledBeforePersist(t *testing.T) {
	t.Parallel()

	store, fsys := newMemStore(t)
	require.NoError(t, store.ReplaceAll(context.Background(), sampleOccurrences(store.Location(), 3)))
	before, err := afero.ReadFile(fsys, testStorePath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	err = store.Update(ctx, func(cur []model.Occurrence) ([]model.Occurrence, bool, error) {
		cancel()
		return nil, true, nil
	})
	require.ErrorIs(t, err, context.Canceled)

	after, err := afero.ReadFile(fsys, testStorePath)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestStore_PersistFailureKeepsPreviousContent(t *testing.T) {
	t.Parallel()

	base := afero.NewMemMapFs()
	seed := NewStore(testStorePath, newYork(t), WithFs(base))
	require.NoError(t, seed.ReplaceAll(context.Background(), sampleOccurrences(seed.Location(), 2)))
	before, err := afero.ReadFile(base, testStorePath)
	require.NoError(t, err)

	store := NewStore(testStorePath, newYork(t), WithFs(afero.NewReadOnlyFs(base)))
	err = store.ReplaceAll(context.Background(), sampleOccurrences(store.Location(), 5))
	require.ErrorIs(t, err, ErrPersistFailure)

	after, err := afero.ReadFile(base, testStorePath)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// Reads still work on the read-only view.
	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestStore_FileLock(t *testing.T) {
	t.Parallel()

	path := t.TempDir() + "/calendar.ics"
	store := NewStore(path, newYork(t), WithFileLock())
	ctx := context.Background()

	require.NoError(t, store.Init(ctx))
	require.NoError(t, store.ReplaceAll(ctx, sampleOccurrences(store.Location(), 2)))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.True(t, strings.HasSuffix(store.fileLock.Path(), ".ics.lock"))
}
