package mcp

import (
	"context"
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
	"github.com/DayuGuo/DEVONthink-agent/internal/index"
	"github.com/DayuGuo/DEVONthink-agent/internal/search"
	"github.com/DayuGuo/DEVONthink-agent/internal/store"
)

type fakeRepo struct {
	docs     []devonthink.DocumentInfo
	contents map[string]string
	hits     []devonthink.SearchHit
}

func (f *fakeRepo) ListDocuments(ctx context.Context, collection string) ([]devonthink.DocumentInfo, error) {
	return f.docs, nil
}

func (f *fakeRepo) ReadContent(ctx context.Context, id string, maxChars int) (devonthink.DocumentContent, error) {
	return devonthink.DocumentContent{Content: f.contents[id]}, nil
}

func (f *fakeRepo) Search(ctx context.Context, query, collection string, limit int) ([]devonthink.SearchHit, error) {
	return f.hits, nil
}

func (f *fakeRepo) RelatedDocuments(ctx context.Context, id string, limit int) ([]devonthink.SearchHit, error) {
	return nil, nil
}

func newTestServer(t *testing.T, repo *fakeRepo) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	cfg := config.Default()

	embedder := embed.NewStaticEmbedder()
	st, err := store.New(store.Options{
		Dir:        t.TempDir(),
		Dimensions: embedder.Dimensions(),
		Provider:   "static",
		Model:      embedder.ModelName(),
	}, logger)
	require.NoError(t, err)

	engine := search.NewEngine(repo, embedder, st, cfg.Search, nil, logger)
	manager := index.NewManager(repo, embedder, st, cfg.Indexing, cfg.Embeddings, logger)

	s, err := NewServer(engine, manager, st, cfg, logger)
	require.NoError(t, err)
	return s
}

func TestHandleHybridSearch_RequiresQuery(t *testing.T) {
	s := newTestServer(t, &fakeRepo{})

	_, _, err := s.handleHybridSearch(context.Background(), nil, HybridSearchInput{})
	assert.Error(t, err)
}

func TestHandleHybridSearch_ReturnsKeywordResults(t *testing.T) {
	repo := &fakeRepo{
		hits: []devonthink.SearchHit{
			{ID: "d1", Name: "Project plan", Score: 80, Collection: "Work"},
		},
	}
	s := newTestServer(t, repo)

	_, out, err := s.handleHybridSearch(context.Background(), nil, HybridSearchInput{Query: "project plan"})
	require.NoError(t, err)

	require.Len(t, out.Results, 1)
	assert.Equal(t, "d1", out.Results[0].DocumentID)
	assert.Contains(t, out.Results[0].Paths, "keyword")
	assert.Contains(t, out.SearchPaths, "keyword")
	assert.False(t, out.IndexAvailable)
}

func TestHandleSemanticSearch_NoIndex(t *testing.T) {
	s := newTestServer(t, &fakeRepo{})

	_, out, err := s.handleSemanticSearch(context.Background(), nil, SemanticSearchInput{Query: "anything"})
	require.NoError(t, err)
	assert.False(t, out.IndexAvailable)
	assert.Empty(t, out.Results)
}

func TestHandleBuildIndexThenStatus(t *testing.T) {
	content := strings.Repeat("Meeting notes about the quarterly retrieval roadmap and follow-ups. ", 10)
	repo := &fakeRepo{
		docs: []devonthink.DocumentInfo{
			{ID: "d1", Name: "Minutes", Collection: "Work", Modified: time.Now(), WordCount: 100},
		},
		contents: map[string]string{"d1": content},
	}
	s := newTestServer(t, repo)

	// Before the build the index reports unavailable.
	_, status, err := s.handleIndexStatus(context.Background(), nil, IndexStatusInput{})
	require.NoError(t, err)
	assert.False(t, status.Available)

	_, built, err := s.handleBuildIndex(context.Background(), nil, BuildIndexInput{})
	require.NoError(t, err)
	assert.Equal(t, 1, built.TotalDocuments)
	assert.Equal(t, 1, built.IndexedDocuments)
	assert.Greater(t, built.TotalChunks, 0)
	assert.Zero(t, built.Errors)

	_, status, err = s.handleIndexStatus(context.Background(), nil, IndexStatusInput{})
	require.NoError(t, err)
	assert.True(t, status.Available)
	assert.Equal(t, 1, status.Documents)
	assert.Equal(t, "static", status.Provider)
	assert.Equal(t, embed.StaticDimensions, status.Dimensions)

	// Semantic search now works against the fresh index.
	_, out, err := s.handleSemanticSearch(context.Background(), nil, SemanticSearchInput{
		Query: "quarterly retrieval roadmap",
	})
	require.NoError(t, err)
	assert.True(t, out.IndexAvailable)
	require.NotEmpty(t, out.Results)
	assert.Equal(t, "d1", out.Results[0].DocumentID)
}

func TestNewServer_RequiresCollaborators(t *testing.T) {
	_, err := NewServer(nil, nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestServe_UnknownTransport(t *testing.T) {
	s := newTestServer(t, &fakeRepo{})
	err := s.Serve(context.Background(), "sse")
	assert.Error(t, err)
}
