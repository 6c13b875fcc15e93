package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alikoudar/irobot-sub000/internal/core/domain"
)

type adminMock struct {
	purged      int
	rollupDay   time.Time
	days        int
	invalidated string
	resetErr    error
	stats       []domain.DailyCacheStatistics
}

func (m *adminMock) PurgeExpired(context.Context) (int, error) {
	return m.purged, nil
}

func (m *adminMock) RollupStatistics(_ context.Context, day time.Time) (*domain.DailyCacheStatistics, error) {
	m.rollupDay = day
	return &domain.DailyCacheStatistics{Date: domain.StatsDay(day), TotalRequests: 5, CacheHits: 2, CacheMisses: 3, HitRate: 40}, nil
}

func (m *adminMock) Statistics(context.Context, time.Time, time.Time) ([]domain.DailyCacheStatistics, error) {
	return m.stats, nil
}

func (m *adminMock) StatisticsForDays(_ context.Context, days int) ([]domain.DailyCacheStatistics, error) {
	m.days = days
	return m.stats, nil
}

func (m *adminMock) ResetTTL(_ context.Context, entryID string) (*domain.CacheEntry, error) {
	if m.resetErr != nil {
		return nil, m.resetErr
	}
	return &domain.CacheEntry{ID: entryID, ExpiresAt: time.Date(2026, 5, 8, 12, 0, 0, 0, time.UTC)}, nil
}

func (m *adminMock) InvalidateDocument(_ context.Context, documentID string) (int, error) {
	m.invalidated = documentID
	return 2, nil
}

func execute(t *testing.T, admin *adminMock, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand(admin)
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestPurgeExpiredCmd(t *testing.T) {
	out, err := execute(t, &adminMock{purged: 4}, "purge-expired")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 4 expired entries")
}

func TestRollupStatsCmd_DateFlag(t *testing.T) {
	admin := &adminMock{}
	out, err := execute(t, admin, "rollup-stats", "--date", "2026-04-30")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC), admin.rollupDay)
	assert.Contains(t, out, "2026-04-30")
}

func TestRollupStatsCmd_InvalidDate(t *testing.T) {
	_, err := execute(t, &adminMock{}, "rollup-stats", "--date", "30/04/2026")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "YYYY-MM-DD")
}

func TestInvalidateCmd_RequiresExactlyOneArg(t *testing.T) {
	_, err := execute(t, &adminMock{}, "invalidate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestInvalidateCmd(t *testing.T) {
	admin := &adminMock{}
	out, err := execute(t, admin, "invalidate", "doc-9")
	require.NoError(t, err)
	assert.Equal(t, "doc-9", admin.invalidated)
	assert.Contains(t, out, "Removed 2 entries citing doc-9")
}

func TestResetTTLCmd(t *testing.T) {
	out, err := execute(t, &adminMock{}, "reset-ttl", "entry-1")
	require.NoError(t, err)
	assert.Contains(t, out, "2026-05-08T12:00:00Z")
}

func TestResetTTLCmd_UnknownEntry(t *testing.T) {
	admin := &adminMock{resetErr: domain.WrapError(domain.ErrCacheEntryNotFound, "reset ttl", errors.New("missing"))}
	_, err := execute(t, admin, "reset-ttl", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no active cache entry nope")
}

func TestStatsCmd_DefaultsToSevenDays(t *testing.T) {
	admin := &adminMock{}
	out, err := execute(t, admin, "stats")
	require.NoError(t, err)
	assert.Equal(t, 7, admin.days)
	assert.Contains(t, out, "No statistics recorded.")
}

func TestStatsCmd_JSONOutput(t *testing.T) {
	admin := &adminMock{stats: []domain.DailyCacheStatistics{{
		Date:          time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		TotalRequests: 10,
		CacheHits:     4,
	}}}
	out, err := execute(t, admin, "stats", "-d", "30", "--json")
	require.NoError(t, err)
	assert.Equal(t, 30, admin.days)

	var decoded []domain.DailyCacheStatistics
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, int64(4), decoded[0].CacheHits)
}

func TestStatsCmd_TableOutput(t *testing.T) {
	admin := &adminMock{stats: []domain.DailyCacheStatistics{{
		Date:          time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		TotalRequests: 10,
		CacheHits:     4,
		CacheMisses:   6,
		HitRate:       40,
	}}}
	out, err := execute(t, admin, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "DATE")
	assert.Contains(t, out, "2026-05-01")
}

func TestStatsCmd_RejectsZeroDays(t *testing.T) {
	_, err := execute(t, &adminMock{}, "stats", "--days", "0")
	require.Error(t, err)
}
