package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fingermon/internal/stats"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertAndQueryDay(t *testing.T) {
	s := openTestStore(t)

	days := map[string]stats.DayTotals{
		"2026-08-29": {Keys: 100, Clicks: 20, Distance: 1234.5, Scroll: 40},
	}
	require.NoError(t, s.UpsertDays(days))

	rec, err := s.Day("2026-08-29")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, uint64(100), rec.Keys)
	assert.Equal(t, uint64(20), rec.Clicks)
	assert.InDelta(t, 1234.5, rec.Distance, 0.001)
	assert.Equal(t, uint64(40), rec.Scroll)
}

func TestUpsertReplacesExisting(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.UpsertDays(map[string]stats.DayTotals{
		"2026-08-29": {Keys: 100},
	}))
	require.NoError(t, s.UpsertDays(map[string]stats.DayTotals{
		"2026-08-29": {Keys: 150, Clicks: 5},
	}))

	rec, err := s.Day("2026-08-29")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, uint64(150), rec.Keys)
	assert.Equal(t, uint64(5), rec.Clicks)

	n, err := s.DayCount()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDayAbsent(t *testing.T) {
	s := openTestStore(t)

	rec, err := s.Day("1999-01-01")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRecentDaysOrderAndLimit(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.UpsertDays(map[string]stats.DayTotals{
		"2026-08-27": {Keys: 1},
		"2026-08-28": {Keys: 2},
		"2026-08-29": {Keys: 3},
	}))

	recent, err := s.RecentDays(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "2026-08-29", recent[0].Date)
	assert.Equal(t, "2026-08-28", recent[1].Date)
}

func TestTotals(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.UpsertDays(map[string]stats.DayTotals{
		"2026-08-28": {Keys: 10, Clicks: 1, Distance: 2.5, Scroll: 3},
		"2026-08-29": {Keys: 30, Clicks: 4, Distance: 7.5, Scroll: 6},
	}))

	totals, err := s.Totals()
	require.NoError(t, err)
	assert.Equal(t, uint64(40), totals.Keys)
	assert.Equal(t, uint64(5), totals.Clicks)
	assert.InDelta(t, 10.0, totals.Distance, 0.001)
	assert.Equal(t, uint64(9), totals.Scroll)
}

func TestTotalsEmpty(t *testing.T) {
	s := openTestStore(t)

	totals, err := s.Totals()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), totals.Keys)
}

func TestUpsertNoDaysIsNoop(t *testing.T) {
	s := openTestStore(t)
	assert.NoError(t, s.UpsertDays(nil))
}
