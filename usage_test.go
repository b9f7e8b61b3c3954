package main

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func newTestStore(t *testing.T, kind string, limit int, clock *fakeClock) *UsageStore {
	t.Helper()
	backend, err := openUsageBackend(kind, t.TempDir())
	require.NoError(t, err)
	store := NewUsageStore(backend, limit, discardLogger())
	if clock != nil {
		store.now = clock.Now
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func forEachBackend(t *testing.T, fn func(t *testing.T, kind string)) {
	for _, kind := range []string{"json", "sqlite"} {
		t.Run(kind, func(t *testing.T) {
			fn(t, kind)
		})
	}
}

func TestDailyLimitIsEnforced(t *testing.T) {
	forEachBackend(t, func(t *testing.T, kind string) {
		store := newTestStore(t, kind, 3, nil)
		chatID := int64(-100500)

		for i := range 3 {
			allowed, remaining := store.CanUse(chatID)
			require.True(t, allowed)
			require.Equal(t, 3-i, remaining)
			require.NoError(t, store.Record(chatID))
		}

		allowed, remaining := store.CanUse(chatID)
		assert.False(t, allowed)
		assert.Equal(t, 0, remaining)

		allowed, _, err := store.Consume(chatID)
		require.NoError(t, err)
		assert.False(t, allowed, "the limit+1-th message must be rejected")
	})
}

func TestProGroupScenario(t *testing.T) {
	forEachBackend(t, func(t *testing.T, kind string) {
		store := newTestStore(t, kind, 2, nil)
		const g1 = int64(1)

		require.NoError(t, store.Record(g1))
		require.NoError(t, store.Record(g1))
		allowed, remaining := store.CanUse(g1)
		assert.False(t, allowed)
		assert.Equal(t, 0, remaining)

		require.NoError(t, store.AddPro(g1))
		allowed, remaining = store.CanUse(g1)
		assert.True(t, allowed)
		assert.Equal(t, 999, remaining)

		for range 10 {
			require.NoError(t, store.Record(g1))
		}
		allowed, remaining = store.CanUse(g1)
		assert.True(t, allowed)
		assert.Equal(t, 999, remaining)
		assert.True(t, store.IsPro(g1))
	})
}

func TestRecordIsMonotonic(t *testing.T) {
	forEachBackend(t, func(t *testing.T, kind string) {
		clock := &fakeClock{t: time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)}
		store := newTestStore(t, kind, 100, clock)

		for range 7 {
			require.NoError(t, store.Record(42))
		}
		assert.Equal(t, 7, store.counters["42:2026-10-16"])

		reloaded := NewUsageStore(store.backend, 100, discardLogger())
		assert.Equal(t, 7, reloaded.counters["42:2026-10-16"])
	})
}

func TestDayRollover(t *testing.T) {
	forEachBackend(t, func(t *testing.T, kind string) {
		clock := &fakeClock{t: time.Date(2026, 10, 16, 23, 59, 0, 0, time.UTC)}
		store := newTestStore(t, kind, 2, clock)

		require.NoError(t, store.Record(5))
		require.NoError(t, store.Record(5))
		allowed, _ := store.CanUse(5)
		require.False(t, allowed)

		clock.t = time.Date(2026, 10, 17, 0, 1, 0, 0, time.UTC)
		allowed, remaining := store.CanUse(5)
		assert.True(t, allowed)
		assert.Equal(t, 2, remaining)
	})
}

func TestDayUsesUTC(t *testing.T) {
	tz := time.FixedZone("UTC+5", 5*60*60)
	clock := &fakeClock{t: time.Date(2026, 10, 17, 2, 0, 0, 0, tz)}
	store := newTestStore(t, "json", 10, clock)

	require.NoError(t, store.Record(9))
	assert.Equal(t, 1, store.counters["9:2026-10-16"])
}

func TestConsumeChargesOnlyWhenAllowed(t *testing.T) {
	store := newTestStore(t, "json", 2, nil)

	allowed, remaining, err := store.Consume(3)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 1, remaining)

	allowed, remaining, err = store.Consume(3)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 0, remaining)

	allowed, remaining, err = store.Consume(3)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 0, remaining)
	assert.Equal(t, 2, store.Stats().TotalMessages)
}

func TestStats(t *testing.T) {
	forEachBackend(t, func(t *testing.T, kind string) {
		clock := &fakeClock{t: time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)}
		store := newTestStore(t, kind, 50, clock)

		require.NoError(t, store.Record(-1001))
		require.NoError(t, store.Record(-1001))
		require.NoError(t, store.Record(-1002))

		clock.t = clock.t.AddDate(0, 0, 1)
		require.NoError(t, store.Record(-1001))
		require.NoError(t, store.AddPro(-1003))

		stats := store.Stats()
		assert.Equal(t, 1, stats.ActiveGroupsToday)
		assert.Equal(t, 4, stats.TotalMessages)
		assert.Equal(t, 1, stats.ProGroups)
	})
}

func TestCompactDropsOldCounters(t *testing.T) {
	forEachBackend(t, func(t *testing.T, kind string) {
		clock := &fakeClock{t: time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)}
		store := newTestStore(t, kind, 50, clock)

		for day := range 10 {
			clock.t = time.Date(2026, 10, 1+day, 9, 0, 0, 0, time.UTC)
			require.NoError(t, store.Record(77))
		}
		store.counters["garbage"] = 3

		removed, err := store.Compact(3)
		require.NoError(t, err)
		assert.Equal(t, 6, removed)
		assert.Contains(t, store.counters, "77:2026-10-07")
		assert.NotContains(t, store.counters, "77:2026-10-06")
		assert.Contains(t, store.counters, "garbage")

		reloaded := NewUsageStore(store.backend, 50, discardLogger())
		assert.Len(t, reloaded.counters, 5)

		_, err = store.Compact(-1)
		assert.Error(t, err)
	})
}

func TestMissingFilesAreEmpty(t *testing.T) {
	backend, err := newFileBackend(filepath.Join(t.TempDir(), "nested", "data"))
	require.NoError(t, err)

	snapshot, err := backend.Load()
	require.NoError(t, err)
	assert.Empty(t, snapshot.Counters)
	assert.Empty(t, snapshot.Pro)
}

func TestMalformedFilesFailSafe(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, usageFileName), []byte("{not json"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, proFileName), []byte(`["12", 34, "x", true]`), 0o644))

	backend, err := newFileBackend(dir)
	require.NoError(t, err)

	snapshot, err := backend.Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecodeFailed))
	assert.Empty(t, snapshot.Counters)
	assert.Contains(t, snapshot.Pro, int64(12))
	assert.Contains(t, snapshot.Pro, int64(34))
	assert.Len(t, snapshot.Pro, 2)

	store := NewUsageStore(backend, 5, discardLogger())
	allowed, remaining := store.CanUse(1)
	assert.True(t, allowed)
	assert.Equal(t, 5, remaining)
	assert.True(t, store.IsPro(12))
}

func TestProFileWrittenAsStrings(t *testing.T) {
	dir := t.TempDir()
	backend, err := newFileBackend(dir)
	require.NoError(t, err)
	store := NewUsageStore(backend, 5, discardLogger())

	require.NoError(t, store.AddPro(-100200))
	require.NoError(t, store.AddPro(7))

	data, err := os.ReadFile(filepath.Join(dir, proFileName))
	require.NoError(t, err)
	assert.JSONEq(t, `["-100200","7"]`, string(data))
}

type failingBackend struct {
	fileBackend
}

func (failingBackend) SaveCounters(map[string]int) error {
	return errors.New("disk full")
}

func TestRecordKeepsCountWhenSaveFails(t *testing.T) {
	store := NewUsageStore(&failingBackend{}, 2, discardLogger())

	err := store.Record(1)
	require.Error(t, err)

	_, remaining := store.CanUse(1)
	assert.Equal(t, 1, remaining)
}
