package engine

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"officehours/internal/model"
)

const generatedRuns = 60

var owners = []model.Owner{
	{ID: 1, Name: "alice"},
	{ID: 2, Name: "bob"},
	{ID: 12, Name: "carol"},
	{ID: 123, Name: "Doe, Jane"},
}

// randomWallTime picks a day between mid February and mid April 2024, so
// some series cross the March 10 DST switch, at a daytime quarter hour.
func randomWallTime(rng *rand.Rand, loc *time.Location) time.Time {
	return time.Date(2024, time.February, 15+rng.Intn(60), 8+rng.Intn(12), 15*rng.Intn(4), 0, 0, loc)
}

// seedRandom fills the store with a handful of series from several owners
// and returns what was written.
func seedRandom(t *testing.T, f *fixture, rng *rand.Rand) []model.Occurrence {
	t.Helper()
	ctx := context.Background()

	for range 3 + rng.Intn(6) {
		_, err := f.engine.Create(ctx, CreateRequest{
			Owner:           owners[rng.Intn(len(owners))],
			Start:           randomWallTime(rng, f.loc),
			DurationMinutes: 15 + 15*rng.Intn(12),
			Weeks:           1 + rng.Intn(8),
		})
		require.NoError(t, err)
	}
	return f.load(t)
}

// randomReference mostly picks an existing occurrence, optionally shifted by
// whole weeks, so generated commands hit real series as well as near misses.
func randomReference(rng *rand.Rand, occs []model.Occurrence) (model.Owner, time.Time, int) {
	ref := occs[rng.Intn(len(occs))]
	owner, _ := ref.Owner()
	if rng.Intn(4) == 0 {
		owner = owners[rng.Intn(len(owners))]
	}
	start := ref.Start.AddDate(0, 0, 7*(rng.Intn(5)-2))
	return owner, start, rng.Intn(7)
}

// inSeries restates membership: same owner id, same weekday and wall clock
// time, within [start, start+weeks).
func inSeries(occ model.Occurrence, owner model.Owner, start time.Time, weeks int) bool {
	got, ok := occ.Owner()
	if !ok || got.ID != owner.ID {
		return false
	}
	local := occ.Start.In(start.Location())
	return local.Weekday() == start.Weekday() &&
		local.Hour() == start.Hour() &&
		local.Minute() == start.Minute() &&
		!local.Before(start) &&
		local.Before(start.AddDate(0, 0, 7*weeks))
}

func TestEngine_EditKeepsCountForGeneratedStores(t *testing.T) {
	t.Parallel()

	seed := time.Now().UnixNano()
	rng := rand.New(rand.NewSource(seed))

	for run := range generatedRuns {
		msg := fmt.Sprintf("seed %d run %d", seed, run)
		f := newFixture(t, time.Time{})
		before := seedRandom(t, f, rng)

		owner, from, weeks := randomReference(rng, before)
		to := randomWallTime(rng, f.loc)
		minutes := 15 + 15*rng.Intn(12)

		res, err := f.engine.Edit(context.Background(), EditRequest{
			Owner:           owner,
			From:            from,
			To:              to,
			DurationHours:   minutes / 60,
			DurationMinutes: minutes % 60,
			Weeks:           weeks,
		})
		require.NoError(t, err, msg)

		after := f.load(t)
		require.Len(t, after, len(before), msg)

		changed := 0
		for i := range before {
			if !inSeries(before[i], owner, from, weeks) {
				assert.True(t, before[i].Equal(after[i]), "%s: unmatched occurrence %d changed", msg, i)
				continue
			}
			changed++
			assert.Equal(t, before[i].UID, after[i].UID, msg)
			assert.Equal(t, before[i].Label, after[i].Label, msg)
			assert.Equal(t, time.Duration(minutes)*time.Minute, after[i].Duration(), msg)
			local := after[i].Start.In(f.loc)
			assert.Equal(t, to.Hour(), local.Hour(), msg)
			assert.Equal(t, to.Minute(), local.Minute(), msg)
		}
		assert.Len(t, res.Changes, changed, msg)
	}
}

func TestEngine_DeleteRemovesExactlyTheSeriesForGeneratedStores(t *testing.T) {
	t.Parallel()

	seed := time.Now().UnixNano()
	rng := rand.New(rand.NewSource(seed))

	for run := range generatedRuns {
		msg := fmt.Sprintf("seed %d run %d", seed, run)
		f := newFixture(t, time.Time{})
		before := seedRandom(t, f, rng)

		owner, start, weeks := randomReference(rng, before)
		var want []model.Occurrence
		matched := 0
		for _, occ := range before {
			if inSeries(occ, owner, start, weeks) {
				matched++
				continue
			}
			want = append(want, occ)
		}

		res, err := f.engine.Delete(context.Background(), DeleteRequest{Owner: owner, Start: start, Weeks: weeks})
		require.NoError(t, err, msg)
		assert.Len(t, res.Occurrences, matched, msg)

		after := f.load(t)
		require.Len(t, after, len(before)-matched, msg)
		for i := range want {
			assert.True(t, want[i].Equal(after[i]), "%s: kept occurrence %d differs", msg, i)
		}
	}
}

func TestEngine_CreateThenListForGeneratedSeries(t *testing.T) {
	t.Parallel()

	seed := time.Now().UnixNano()
	rng := rand.New(rand.NewSource(seed))
	newcomer := model.Owner{ID: 99, Name: "dave"}

	for run := range generatedRuns {
		msg := fmt.Sprintf("seed %d run %d", seed, run)
		f := newFixture(t, time.Time{})
		seedRandom(t, f, rng)

		start := randomWallTime(rng, f.loc)
		weeks := 1 + rng.Intn(8)
		_, err := f.engine.Create(context.Background(), CreateRequest{
			Owner:         newcomer,
			Start:         start,
			DurationHours: 1,
			Weeks:         weeks,
		})
		require.NoError(t, err, msg)

		f.engine.now = func() time.Time { return start }
		res, err := f.engine.List(context.Background(), ListRequest{Owner: newcomer, Weeks: weeks})
		require.NoError(t, err, msg)

		got := res.Occurrences
		require.Len(t, got, weeks, msg)
		assert.True(t, start.Equal(got[0].Start), msg)
		for i := 1; i < len(got); i++ {
			prev := got[i-1].Start.In(f.loc)
			assert.True(t, prev.AddDate(0, 0, 7).Equal(got[i].Start), "%s: week %d not 7 days after the previous one", msg, i)
		}
	}
}
