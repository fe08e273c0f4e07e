package search

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/DayuGuo/DEVONthink-agent/internal/config"
	"github.com/DayuGuo/DEVONthink-agent/internal/devonthink"
	"github.com/DayuGuo/DEVONthink-agent/internal/embed"
	agenterrors "github.com/DayuGuo/DEVONthink-agent/internal/errors"
	"github.com/DayuGuo/DEVONthink-agent/internal/store"
)

// Engine runs hybrid searches. The keyword and semantic paths execute
// concurrently; the related path runs after the merge because it is
// seeded from the current best result. A failing path is logged and
// dropped, never fatal; the response reports which paths executed.
type Engine struct {
	repo     devonthink.Repository
	embedder embed.Embedder
	store    *store.Store
	cfg      config.SearchConfig
	recorder Recorder
	logger   *slog.Logger
}

// NewEngine wires the search collaborators together. store may be nil
// or empty; the semantic path is then skipped and responses report the
// index unavailable. recorder may be nil.
func NewEngine(repo devonthink.Repository, embedder embed.Embedder, st *store.Store, cfg config.SearchConfig, recorder Recorder, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		repo:     repo,
		embedder: embedder,
		store:    st,
		cfg:      cfg,
		recorder: recorder,
		logger:   logger,
	}
}

// indexAvailable reports whether the semantic path has anything to
// search.
func (e *Engine) indexAvailable() bool {
	return e.store != nil && e.store.ChunkCount() > 0
}

// HybridSearch merges the keyword, semantic, and related paths into
// one ranked result list.
func (e *Engine) HybridSearch(ctx context.Context, query string, opts Options) (*Response, error) {
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, agenterrors.New(agenterrors.ErrCodeQueryEmpty, "search query is empty", nil)
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = e.cfg.TopK
	}

	resp := &Response{
		Results:        []Result{},
		SearchPaths:    []Path{},
		IndexAvailable: e.indexAvailable(),
	}

	// The keyword and semantic paths are read-only and independent,
	// so they run concurrently. Failures stay local to their path:
	// the closures always return nil.
	var (
		mu       sync.Mutex
		keyword  []devonthink.SearchHit
		semantic []semanticHit
	)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hits, err := e.keywordPath(gctx, query, opts.Collection, topK)
		if err != nil {
			e.logger.Warn("keyword path failed", "error", err)
			return nil
		}
		mu.Lock()
		keyword = hits
		resp.SearchPaths = append(resp.SearchPaths, PathKeyword)
		mu.Unlock()
		return nil
	})

	if opts.EnableSemantic && resp.IndexAvailable {
		g.Go(func() error {
			hits, err := e.semanticPath(gctx, query, topK)
			if err != nil {
				e.logger.Warn("semantic path failed", "error", err)
				return nil
			}
			mu.Lock()
			semantic = hits
			resp.SearchPaths = append(resp.SearchPaths, PathSemantic)
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()

	m := newMerger()
	for _, h := range keyword {
		m.addKeyword(h.ID, h.Name, h.Type, h.Collection, h.Score)
	}
	for _, h := range semantic {
		m.addSemantic(h)
	}

	// Related documents are seeded from the best result so far, so
	// this path necessarily runs after the first merge.
	if opts.EnableRelated {
		if seedID := m.best(); seedID != "" {
			hits, err := e.relatedPath(ctx, seedID, topK)
			if err != nil {
				e.logger.Warn("related path failed", "seed", seedID, "error", err)
			} else {
				for _, h := range hits {
					m.addRelated(h.ID, h.Name, h.Type, h.Collection, h.Score, seedID)
				}
				resp.SearchPaths = append(resp.SearchPaths, PathRelated)
			}
		}
	}

	resp.Results = m.ranked(topK)
	e.record(query, resp, time.Since(start))

	e.logger.Debug("hybrid search completed",
		"query", query, "results", len(resp.Results),
		"paths", resp.SearchPaths, "duration", time.Since(start).Round(time.Millisecond))
	return resp, nil
}

// SemanticSearch runs only the vector path. When no index is loaded it
// returns an empty response with IndexAvailable false rather than an
// error.
func (e *Engine) SemanticSearch(ctx context.Context, query string, topK int) (*Response, error) {
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, agenterrors.New(agenterrors.ErrCodeQueryEmpty, "search query is empty", nil)
	}
	if topK <= 0 {
		topK = e.cfg.TopK
	}

	resp := &Response{
		Results:        []Result{},
		SearchPaths:    []Path{},
		IndexAvailable: e.indexAvailable(),
	}
	if !resp.IndexAvailable {
		return resp, nil
	}

	hits, err := e.semanticPath(ctx, query, topK)
	if err != nil {
		return nil, agenterrors.New(agenterrors.ErrCodeSearchFailed, "semantic search failed", err)
	}
	resp.SearchPaths = append(resp.SearchPaths, PathSemantic)

	m := newMerger()
	for _, h := range hits {
		m.addSemantic(h)
	}
	// Undo the single-path damping: with one path there is no
	// cross-path agreement to reward.
	results := m.ranked(topK)
	for i := range results {
		results[i].Score = results[i].Score / semanticOnlyDamping
	}
	resp.Results = results

	e.record(query, resp, time.Since(start))
	return resp, nil
}

// keywordPath delegates to the knowledge base's own search engine.
func (e *Engine) keywordPath(ctx context.Context, query, collection string, topK int) ([]devonthink.SearchHit, error) {
	ctx, cancel := e.pathContext(ctx)
	defer cancel()
	return e.repo.Search(ctx, query, collection, topK*2)
}

// semanticPath embeds the query, scans the vector store, and collapses
// chunk hits to one document-level hit each, keeping the best chunk as
// the snippet. Remapped scores below the noise floor are discarded.
func (e *Engine) semanticPath(ctx context.Context, query string, topK int) ([]semanticHit, error) {
	ctx, cancel := e.pathContext(ctx)
	defer cancel()

	vec, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	// Over-fetch chunks: several may collapse into one document.
	chunkHits, err := e.store.Search(vec, topK*4)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(chunkHits))
	hits := make([]semanticHit, 0, len(chunkHits))
	for _, ch := range chunkHits {
		score := remapCosine(ch.Score)
		if score < semanticNoiseFloor {
			continue
		}
		if seen[ch.DocumentID] {
			// chunkHits is score-ordered, so the first chunk per
			// document is its best.
			continue
		}
		seen[ch.DocumentID] = true
		hits = append(hits, semanticHit{
			DocumentID: ch.DocumentID,
			Name:       ch.Name,
			Type:       ch.Type,
			Collection: ch.Collection,
			Score:      score,
			Snippet:    ch.Text,
		})
	}
	return hits, nil
}

// relatedPath delegates to the knowledge base's see-also list for the
// seed document.
func (e *Engine) relatedPath(ctx context.Context, seedID string, topK int) ([]devonthink.SearchHit, error) {
	ctx, cancel := e.pathContext(ctx)
	defer cancel()
	return e.repo.RelatedDocuments(ctx, seedID, topK)
}

func (e *Engine) pathContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.PathTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.cfg.PathTimeout)
}

func (e *Engine) record(query string, resp *Response, duration time.Duration) {
	if e.recorder == nil {
		return
	}
	e.recorder.RecordSearch(query, resp.SearchPaths, len(resp.Results), duration)
}
