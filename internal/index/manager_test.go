package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DayuGuo/DEVONthink-agent/internal/config"
	"github.com/DayuGuo/DEVONthink-agent/internal/devonthink"
	"github.com/DayuGuo/DEVONthink-agent/internal/embed"
	agenterrors "github.com/DayuGuo/DEVONthink-agent/internal/errors"
	"github.com/DayuGuo/DEVONthink-agent/internal/store"
)

// fakeRepo is an in-memory devonthink.Repository for pipeline tests.
type fakeRepo struct {
	docs     []devonthink.DocumentInfo
	contents map[string]string
	readErr  map[string]error
	listErr  error
}

func (f *fakeRepo) ListDocuments(ctx context.Context, collection string) ([]devonthink.DocumentInfo, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if collection == "" {
		return f.docs, nil
	}
	var out []devonthink.DocumentInfo
	for _, d := range f.docs {
		if d.Collection == collection {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeRepo) ReadContent(ctx context.Context, id string, maxChars int) (devonthink.DocumentContent, error) {
	if err := f.readErr[id]; err != nil {
		return devonthink.DocumentContent{}, err
	}
	content := f.contents[id]
	truncated := false
	if runes := []rune(content); len(runes) > maxChars {
		content = string(runes[:maxChars])
		truncated = true
	}
	return devonthink.DocumentContent{Content: content, Truncated: truncated}, nil
}

func (f *fakeRepo) Search(ctx context.Context, query, collection string, limit int) ([]devonthink.SearchHit, error) {
	return nil, nil
}

func (f *fakeRepo) RelatedDocuments(ctx context.Context, id string, limit int) ([]devonthink.SearchHit, error) {
	return nil, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testIndexingConfig() config.IndexingConfig {
	return config.IndexingConfig{
		MaxContentChars:    5000,
		CheckpointInterval: 2,
		MinWordCount:       5,
		ChunkMaxChars:      200,
		ChunkOverlapChars:  40,
		ChunkMinChars:      20,
	}
}

// prose returns n sentences of filler long enough to chunk.
func prose(n int, topic string) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "This is sentence %d about %s and its many properties. ", i, topic)
	}
	return b.String()
}

func newTestManager(t *testing.T, repo *fakeRepo) (*Manager, *store.Store) {
	t.Helper()
	st, err := store.New(store.Options{
		Dir:        t.TempDir(),
		Dimensions: embed.StaticDimensions,
		Provider:   "static",
		Model:      "static-hash-v1",
	}, testLogger())
	require.NoError(t, err)

	m := NewManager(repo, embed.NewStaticEmbedder(), st, testIndexingConfig(),
		config.EmbeddingsConfig{BatchSize: 2}, testLogger())
	return m, st
}

func doc(id, name, collection string, modified time.Time) devonthink.DocumentInfo {
	return devonthink.DocumentInfo{ID: id, Name: name, Type: "markdown", Collection: collection, Modified: modified, WordCount: 100}
}

func TestBuild_IndexesAllDocuments(t *testing.T) {
	modified := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	repo := &fakeRepo{
		docs: []devonthink.DocumentInfo{
			doc("d1", "Notes on Go", "Inbox", modified),
			doc("d2", "Meeting minutes", "Work", modified),
		},
		contents: map[string]string{
			"d1": prose(12, "goroutines"),
			"d2": prose(12, "quarterly planning"),
		},
	}
	m, st := newTestManager(t, repo)

	stats, err := m.Build(context.Background(), BuildOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.TotalDocuments)
	assert.Equal(t, 2, stats.IndexedDocuments)
	assert.Equal(t, 0, stats.SkippedDocuments)
	assert.Equal(t, 0, stats.Errors)
	assert.Greater(t, stats.TotalChunks, 0)
	assert.Equal(t, stats.TotalChunks, st.ChunkCount())
	assert.Equal(t, 2, st.DocumentCount())

	// The final save left loadable artifacts behind.
	st2, err := store.New(store.Options{Dir: st.Dir(), Dimensions: embed.StaticDimensions}, testLogger())
	require.NoError(t, err)
	assert.True(t, st2.Load())
	assert.Equal(t, st.ChunkCount(), st2.ChunkCount())
}

func TestBuild_IncrementalSkipsUpToDate(t *testing.T) {
	modified := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	repo := &fakeRepo{
		docs: []devonthink.DocumentInfo{
			doc("d1", "Stable doc", "Inbox", modified),
			doc("d2", "Changing doc", "Inbox", modified),
		},
		contents: map[string]string{
			"d1": prose(10, "archival storage"),
			"d2": prose(10, "draft thoughts"),
		},
	}
	m, _ := newTestManager(t, repo)

	_, err := m.Build(context.Background(), BuildOptions{})
	require.NoError(t, err)

	// Touch only d2.
	repo.docs[1].Modified = modified.Add(time.Hour)

	stats, err := m.Build(context.Background(), BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.IndexedDocuments)
	assert.Equal(t, 1, stats.SkippedDocuments)
}

func TestBuild_ForceReindexesEverything(t *testing.T) {
	modified := time.Now()
	repo := &fakeRepo{
		docs:     []devonthink.DocumentInfo{doc("d1", "Doc", "Inbox", modified)},
		contents: map[string]string{"d1": prose(10, "forced rebuilds")},
	}
	m, _ := newTestManager(t, repo)

	_, err := m.Build(context.Background(), BuildOptions{})
	require.NoError(t, err)

	stats, err := m.Build(context.Background(), BuildOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.IndexedDocuments)
	assert.Equal(t, 0, stats.SkippedDocuments)
}

func TestBuild_ForceDropsDeletedDocuments(t *testing.T) {
	modified := time.Now()
	repo := &fakeRepo{
		docs: []devonthink.DocumentInfo{
			doc("ghost", "Deleted later", "Inbox", modified),
			doc("live", "Still here", "Inbox", modified),
		},
		contents: map[string]string{
			"ghost": prose(10, "a document about to be deleted"),
			"live":  prose(10, "a document that stays"),
		},
	}
	m, st := newTestManager(t, repo)

	_, err := m.Build(context.Background(), BuildOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, st.DocumentCount())

	// The document disappears from the knowledge base. The store still
	// carries it, as it does after the startup Load.
	repo.docs = repo.docs[1:]

	stats, err := m.Build(context.Background(), BuildOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.IndexedDocuments)

	meta := st.Metadata()
	assert.NotContains(t, meta.Documents, "ghost",
		"forced rebuild should start empty, not inherit deleted documents")
	assert.Contains(t, meta.Documents, "live")
	assert.Equal(t, 1, st.DocumentCount())

	// The saved artifacts reflect the rebuild too.
	fresh, err := store.New(store.Options{
		Dir:        st.Dir(),
		Dimensions: embed.StaticDimensions,
		Provider:   "static",
		Model:      "static-hash-v1",
	}, testLogger())
	require.NoError(t, err)
	require.True(t, fresh.Load())
	assert.NotContains(t, fresh.Metadata().Documents, "ghost")
}

func TestBuild_SingleDocumentFailureDoesNotAbort(t *testing.T) {
	modified := time.Now()
	repo := &fakeRepo{
		docs: []devonthink.DocumentInfo{
			doc("d1", "Readable", "Inbox", modified),
			doc("d2", "Broken", "Inbox", modified),
			doc("d3", "Also readable", "Inbox", modified),
		},
		contents: map[string]string{
			"d1": prose(10, "healthy documents"),
			"d3": prose(10, "more healthy documents"),
		},
		readErr: map[string]error{"d2": errors.New("osascript bridge timeout")},
	}
	m, st := newTestManager(t, repo)

	var failed []string
	stats, err := m.Build(context.Background(), BuildOptions{
		OnError: func(document string, err error) {
			require.Error(t, err)
			failed = append(failed, document)
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.IndexedDocuments)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 2, st.DocumentCount())
	assert.Equal(t, []string{"Broken"}, failed)
}

func TestBuild_ShortContentSkipped(t *testing.T) {
	modified := time.Now()
	repo := &fakeRepo{
		docs: []devonthink.DocumentInfo{
			doc("d1", "Tiny", "Inbox", modified),
			doc("d2", "Normal", "Inbox", modified),
		},
		contents: map[string]string{
			"d1": "too short",
			"d2": prose(10, "regular content"),
		},
	}
	m, _ := newTestManager(t, repo)

	stats, err := m.Build(context.Background(), BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.IndexedDocuments)
	assert.Equal(t, 1, stats.SkippedDocuments)
	assert.Equal(t, 0, stats.Errors)
}

func TestBuild_CollectionScoping(t *testing.T) {
	modified := time.Now()
	repo := &fakeRepo{
		docs: []devonthink.DocumentInfo{
			doc("d1", "Work doc", "Work", modified),
			doc("d2", "Personal doc", "Personal", modified),
		},
		contents: map[string]string{
			"d1": prose(10, "project deadlines"),
			"d2": prose(10, "holiday ideas"),
		},
	}
	m, st := newTestManager(t, repo)

	stats, err := m.Build(context.Background(), BuildOptions{Collection: "Work"})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalDocuments)
	assert.Equal(t, 1, st.DocumentCount())
}

func TestBuild_ReportsProgress(t *testing.T) {
	modified := time.Now()
	repo := &fakeRepo{
		docs:     []devonthink.DocumentInfo{doc("d1", "Doc", "Inbox", modified)},
		contents: map[string]string{"d1": prose(10, "progress events")},
	}
	m, _ := newTestManager(t, repo)

	var phases []Phase
	_, err := m.Build(context.Background(), BuildOptions{
		OnProgress: func(p Progress) { phases = append(phases, p.Phase) },
	})
	require.NoError(t, err)
	assert.Contains(t, phases, PhaseCrawling)
	assert.Contains(t, phases, PhaseIndexing)
	assert.Contains(t, phases, PhaseSaving)
}

func TestBuild_ContextCancellation(t *testing.T) {
	modified := time.Now()
	repo := &fakeRepo{
		docs: []devonthink.DocumentInfo{
			doc("d1", "One", "Inbox", modified),
			doc("d2", "Two", "Inbox", modified),
		},
		contents: map[string]string{
			"d1": prose(10, "first"),
			"d2": prose(10, "second"),
		},
	}
	m, _ := newTestManager(t, repo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Build(ctx, BuildOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuild_ListFailureAborts(t *testing.T) {
	repo := &fakeRepo{listErr: errors.New("knowledge base not running")}
	m, _ := newTestManager(t, repo)

	_, err := m.Build(context.Background(), BuildOptions{})
	require.Error(t, err)
	assert.Equal(t, agenterrors.ErrCodeDocumentRead, agenterrors.GetCode(err))
}

func TestBuild_HeldLockRejected(t *testing.T) {
	modified := time.Now()
	repo := &fakeRepo{
		docs:     []devonthink.DocumentInfo{doc("d1", "Doc", "Inbox", modified)},
		contents: map[string]string{"d1": prose(10, "lock contention")},
	}
	m, st := newTestManager(t, repo)

	other := store.NewWriteLock(st.Dir())
	acquired, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, acquired)
	defer other.Unlock()

	_, err = m.Build(context.Background(), BuildOptions{})
	require.Error(t, err)
	assert.Equal(t, agenterrors.ErrCodeIndexLocked, agenterrors.GetCode(err))
}
