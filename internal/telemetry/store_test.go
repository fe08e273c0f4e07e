package telemetry

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DayuGuo/DEVONthink-agent/internal/search"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	s, err := Open(filepath.Join(t.TempDir(), "telemetry.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RecordAndSummarize(t *testing.T) {
	s := openTestStore(t)

	s.RecordSearch("kubernetes networking", []search.Path{search.PathKeyword, search.PathSemantic}, 5, 120*time.Millisecond)
	s.RecordSearch("obscure term", []search.Path{search.PathKeyword}, 0, 40*time.Millisecond)
	s.RecordSearch("grpc deadlines", []search.Path{search.PathKeyword, search.PathSemantic, search.PathRelated}, 3, 200*time.Millisecond)

	summary, err := s.Summarize()
	require.NoError(t, err)

	assert.Equal(t, 3, summary.TotalSearches)
	assert.Equal(t, 1, summary.ZeroResultCount)
	assert.InDelta(t, 120.0, summary.AvgDurationMs, 1.0)
	assert.InDelta(t, 8.0/3.0, summary.AvgResultCount, 1e-6)
	assert.Equal(t, 3, summary.PathCounts["keyword"])
	assert.Equal(t, 2, summary.PathCounts["semantic"])
	assert.Equal(t, 1, summary.PathCounts["related"])
}

func TestStore_SummarizeEmpty(t *testing.T) {
	s := openTestStore(t)

	summary, err := s.Summarize()
	require.NoError(t, err)
	assert.Equal(t, 0, summary.TotalSearches)
	assert.Zero(t, summary.AvgDurationMs)
	assert.Empty(t, summary.PathCounts)
}

func TestStore_RecentZeroResultQueries(t *testing.T) {
	s := openTestStore(t)

	s.RecordSearch("first miss", nil, 0, time.Millisecond)
	s.RecordSearch("a hit", []search.Path{search.PathKeyword}, 2, time.Millisecond)
	s.RecordSearch("second miss", nil, 0, time.Millisecond)

	queries, err := s.RecentZeroResultQueries(10)
	require.NoError(t, err)
	assert.Equal(t, []string{"second miss", "first miss"}, queries)
}

func TestStore_ReopenPreservesData(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	path := filepath.Join(t.TempDir(), "telemetry.db")

	s1, err := Open(path, logger)
	require.NoError(t, err)
	s1.RecordSearch("persisted query", []search.Path{search.PathKeyword}, 1, time.Millisecond)
	require.NoError(t, s1.Close())

	s2, err := Open(path, logger)
	require.NoError(t, err)
	defer s2.Close()

	summary, err := s2.Summarize()
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalSearches)
}
