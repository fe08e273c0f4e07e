package search

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DayuGuo/DEVONthink-agent/internal/chunk"
	"github.com/DayuGuo/DEVONthink-agent/internal/config"
	"github.com/DayuGuo/DEVONthink-agent/internal/devonthink"
	"github.com/DayuGuo/DEVONthink-agent/internal/embed"
	agenterrors "github.com/DayuGuo/DEVONthink-agent/internal/errors"
	"github.com/DayuGuo/DEVONthink-agent/internal/store"
)

// fakeRepo serves canned keyword and related results.
type fakeRepo struct {
	searchHits  []devonthink.SearchHit
	searchErr   error
	relatedHits map[string][]devonthink.SearchHit
	relatedErr  error

	lastRelatedSeed string
}

func (f *fakeRepo) ListDocuments(ctx context.Context, collection string) ([]devonthink.DocumentInfo, error) {
	return nil, nil
}

func (f *fakeRepo) ReadContent(ctx context.Context, id string, maxChars int) (devonthink.DocumentContent, error) {
	return devonthink.DocumentContent{}, nil
}

func (f *fakeRepo) Search(ctx context.Context, query, collection string, limit int) ([]devonthink.SearchHit, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searchHits, nil
}

func (f *fakeRepo) RelatedDocuments(ctx context.Context, id string, limit int) ([]devonthink.SearchHit, error) {
	f.lastRelatedSeed = id
	if f.relatedErr != nil {
		return nil, f.relatedErr
	}
	return f.relatedHits[id], nil
}

type recordedSearch struct {
	query    string
	paths    []Path
	results  int
	duration time.Duration
}

type fakeRecorder struct {
	searches []recordedSearch
}

func (f *fakeRecorder) RecordSearch(query string, paths []Path, resultCount int, duration time.Duration) {
	f.searches = append(f.searches, recordedSearch{query, paths, resultCount, duration})
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testSearchConfig() config.SearchConfig {
	return config.SearchConfig{TopK: 10, EnableSemantic: true, EnableRelated: true, PathTimeout: 5 * time.Second}
}

// populatedStore indexes the given docID→text pairs with the supplied
// embedder so the semantic path has something real to find.
func populatedStore(t *testing.T, embedder embed.Embedder, docs map[string]string) *store.Store {
	t.Helper()
	st, err := store.New(store.Options{
		Dir:        t.TempDir(),
		Dimensions: embedder.Dimensions(),
		Provider:   "static",
		Model:      embedder.ModelName(),
	}, testLogger())
	require.NoError(t, err)

	for id, text := range docs {
		vectors, err := embedder.EmbedBatch(context.Background(), []string{text})
		require.NoError(t, err)
		chunks := []chunk.Chunk{{
			ID:           chunk.ChunkID(id, 0),
			DocumentID:   id,
			DocumentName: "Doc " + id,
			DocumentType: "markdown",
			Collection:   "Inbox",
			Text:         text,
			Index:        0,
		}}
		require.NoError(t, st.UpsertDocument(id, "Doc "+id, time.Now(), chunks, vectors))
	}
	return st
}

func TestHybridSearch_EmptyQueryRejected(t *testing.T) {
	e := NewEngine(&fakeRepo{}, embed.NewStaticEmbedder(), nil, testSearchConfig(), nil, testLogger())

	_, err := e.HybridSearch(context.Background(), "   ", Options{})
	require.Error(t, err)
	assert.Equal(t, agenterrors.ErrCodeQueryEmpty, agenterrors.GetCode(err))
}

func TestHybridSearch_KeywordOnly(t *testing.T) {
	repo := &fakeRepo{
		searchHits: []devonthink.SearchHit{
			{ID: "d1", Name: "First", Score: 90, Type: "markdown", Collection: "Inbox"},
			{ID: "d2", Name: "Second", Score: 45, Type: "markdown", Collection: "Inbox"},
		},
	}
	e := NewEngine(repo, embed.NewStaticEmbedder(), nil, testSearchConfig(), nil, testLogger())

	resp, err := e.HybridSearch(context.Background(), "meeting notes", Options{})
	require.NoError(t, err)

	assert.False(t, resp.IndexAvailable)
	assert.Equal(t, []Path{PathKeyword}, resp.SearchPaths)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "d1", resp.Results[0].DocumentID)
	assert.InDelta(t, 0.90, resp.Results[0].Score, 1e-9)
	assert.InDelta(t, 0.45, resp.Results[1].Score, 1e-9)
}

func TestHybridSearch_CrossPathAgreementWins(t *testing.T) {
	embedder := embed.NewStaticEmbedder()
	query := "quantum error correction"
	st := populatedStore(t, embedder, map[string]string{
		"agreed":   query, // identical text scores cosine ~1
		"semantic": query, // found by semantic path only
	})
	repo := &fakeRepo{
		searchHits: []devonthink.SearchHit{
			{ID: "agreed", Name: "Agreed", Score: 40},
			{ID: "keyword-only", Name: "Keyword only", Score: 95},
		},
	}
	e := NewEngine(repo, embedder, st, testSearchConfig(), nil, testLogger())

	resp, err := e.HybridSearch(context.Background(), query, Options{EnableSemantic: true})
	require.NoError(t, err)

	assert.True(t, resp.IndexAvailable)
	assert.Contains(t, resp.SearchPaths, PathKeyword)
	assert.Contains(t, resp.SearchPaths, PathSemantic)

	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "agreed", resp.Results[0].DocumentID,
		"a two-path match outranks a higher-scoring single-path match")
	assert.Len(t, resp.Results[0].Paths, 2)
	assert.NotEmpty(t, resp.Results[0].Snippet)
}

func TestHybridSearch_KeywordFailureDegradesGracefully(t *testing.T) {
	embedder := embed.NewStaticEmbedder()
	query := "distributed consensus algorithms"
	st := populatedStore(t, embedder, map[string]string{"d1": query})
	repo := &fakeRepo{searchErr: errors.New("knowledge base unreachable")}
	e := NewEngine(repo, embedder, st, testSearchConfig(), nil, testLogger())

	resp, err := e.HybridSearch(context.Background(), query, Options{EnableSemantic: true})
	require.NoError(t, err, "a single failing path must never fail the search")

	assert.NotContains(t, resp.SearchPaths, PathKeyword)
	assert.Contains(t, resp.SearchPaths, PathSemantic)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "d1", resp.Results[0].DocumentID)
	assert.Equal(t, "markdown", resp.Results[0].Type,
		"semantic results carry the indexed document type")
}

func TestHybridSearch_NoIndexSkipsSemanticPath(t *testing.T) {
	repo := &fakeRepo{
		searchHits: []devonthink.SearchHit{{ID: "d1", Name: "Doc", Score: 70}},
	}
	e := NewEngine(repo, embed.NewStaticEmbedder(), nil, testSearchConfig(), nil, testLogger())

	resp, err := e.HybridSearch(context.Background(), "anything", Options{EnableSemantic: true})
	require.NoError(t, err)

	assert.False(t, resp.IndexAvailable)
	assert.NotContains(t, resp.SearchPaths, PathSemantic)
	assert.Len(t, resp.Results, 1)
}

func TestHybridSearch_RelatedSeedsFromBestAndExcludesSeed(t *testing.T) {
	repo := &fakeRepo{
		searchHits: []devonthink.SearchHit{
			{ID: "best", Name: "Best", Score: 90},
			{ID: "runner-up", Name: "Runner-up", Score: 60},
		},
		relatedHits: map[string][]devonthink.SearchHit{
			"best": {
				{ID: "best", Name: "Best", Score: 100}, // echoes the seed
				{ID: "runner-up", Name: "Runner-up", Score: 80},
				{ID: "related-only", Name: "Related only", Score: 50},
			},
		},
	}
	e := NewEngine(repo, embed.NewStaticEmbedder(), nil, testSearchConfig(), nil, testLogger())

	resp, err := e.HybridSearch(context.Background(), "linked notes", Options{EnableRelated: true})
	require.NoError(t, err)

	assert.Contains(t, resp.SearchPaths, PathRelated)
	assert.Equal(t, "best", repo.lastRelatedSeed)

	byID := make(map[string]Result)
	for _, r := range resp.Results {
		byID[r.DocumentID] = r
	}

	// Seed keeps only its keyword score; no self-boost.
	assert.Equal(t, []Path{PathKeyword}, byID["best"].Paths)
	assert.InDelta(t, 0.90, byID["best"].Score, 1e-9)

	// Runner-up confirmed by the related path: +0.15.
	assert.Len(t, byID["runner-up"].Paths, 2)
	assert.InDelta(t, 0.75, byID["runner-up"].Score, 1e-9)

	// Related-only entry starts dampened: 0.5 * 0.60.
	assert.Equal(t, []Path{PathRelated}, byID["related-only"].Paths)
	assert.InDelta(t, 0.30, byID["related-only"].Score, 1e-9)

	// Two-path agreement outranks the seed's single path.
	assert.Equal(t, "runner-up", resp.Results[0].DocumentID)
}

func TestHybridSearch_RelatedFailureDegradesGracefully(t *testing.T) {
	repo := &fakeRepo{
		searchHits: []devonthink.SearchHit{{ID: "d1", Name: "Doc", Score: 70}},
		relatedErr: errors.New("see-also timed out"),
	}
	e := NewEngine(repo, embed.NewStaticEmbedder(), nil, testSearchConfig(), nil, testLogger())

	resp, err := e.HybridSearch(context.Background(), "anything", Options{EnableRelated: true})
	require.NoError(t, err)

	assert.NotContains(t, resp.SearchPaths, PathRelated)
	assert.Len(t, resp.Results, 1)
}

func TestHybridSearch_TruncatesToTopK(t *testing.T) {
	hits := make([]devonthink.SearchHit, 8)
	for i := range hits {
		hits[i] = devonthink.SearchHit{ID: string(rune('a' + i)), Name: "Doc", Score: float64(90 - i)}
	}
	repo := &fakeRepo{searchHits: hits}
	e := NewEngine(repo, embed.NewStaticEmbedder(), nil, testSearchConfig(), nil, testLogger())

	resp, err := e.HybridSearch(context.Background(), "anything", Options{TopK: 3})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 3)
}

func TestSemanticSearch_ReturnsUndampenedScores(t *testing.T) {
	embedder := embed.NewStaticEmbedder()
	query := "garbage collection tuning"
	st := populatedStore(t, embedder, map[string]string{"d1": query})
	e := NewEngine(&fakeRepo{}, embedder, st, testSearchConfig(), nil, testLogger())

	resp, err := e.SemanticSearch(context.Background(), query, 5)
	require.NoError(t, err)

	assert.True(t, resp.IndexAvailable)
	require.Len(t, resp.Results, 1)
	// Identical text: cosine ~1, remapped to ~1, no damping applied.
	assert.InDelta(t, 1.0, resp.Results[0].Score, 1e-3)
}

func TestSemanticSearch_NoIndex(t *testing.T) {
	e := NewEngine(&fakeRepo{}, embed.NewStaticEmbedder(), nil, testSearchConfig(), nil, testLogger())

	resp, err := e.SemanticSearch(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.False(t, resp.IndexAvailable)
	assert.Empty(t, resp.Results)
}

func TestHybridSearch_RecordsTelemetry(t *testing.T) {
	repo := &fakeRepo{
		searchHits: []devonthink.SearchHit{{ID: "d1", Name: "Doc", Score: 70}},
	}
	rec := &fakeRecorder{}
	e := NewEngine(repo, embed.NewStaticEmbedder(), nil, testSearchConfig(), rec, testLogger())

	_, err := e.HybridSearch(context.Background(), "tracked query", Options{})
	require.NoError(t, err)

	require.Len(t, rec.searches, 1)
	assert.Equal(t, "tracked query", rec.searches[0].query)
	assert.Equal(t, 1, rec.searches[0].results)
	assert.Contains(t, rec.searches[0].paths, PathKeyword)
}
