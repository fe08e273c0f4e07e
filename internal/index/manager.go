// Package index orchestrates the build pipeline: crawl document
// metadata, filter stale documents, read content, chunk, embed, and
// upsert into the vector store with periodic checkpoints.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/DayuGuo/DEVONthink-agent/internal/chunk"
	"github.com/DayuGuo/DEVONthink-agent/internal/config"
	"github.com/DayuGuo/DEVONthink-agent/internal/devonthink"
	"github.com/DayuGuo/DEVONthink-agent/internal/embed"
	agenterrors "github.com/DayuGuo/DEVONthink-agent/internal/errors"
	"github.com/DayuGuo/DEVONthink-agent/internal/store"
)

// Phase identifies the pipeline stage a progress event belongs to.
type Phase string

const (
	PhaseCrawling Phase = "crawling"
	PhaseIndexing Phase = "indexing"
	PhaseSaving   Phase = "saving"
)

// Progress is reported to BuildOptions.OnProgress as the build
// advances. Document is only set during the indexing phase.
type Progress struct {
	Phase    Phase
	Current  int
	Total    int
	Document string
}

// BuildOptions controls one index build.
type BuildOptions struct {
	// Collection restricts the build to one collection. Empty means
	// all collections.
	Collection string

	// Force re-embeds every document regardless of modification
	// timestamps.
	Force bool

	// OnProgress, when set, receives progress events. It is called
	// from the build goroutine and must not block.
	OnProgress func(Progress)

	// OnError, when set, receives per-document failures as they are
	// counted. Same calling rules as OnProgress.
	OnError func(document string, err error)
}

// BuildStats summarizes a completed build.
type BuildStats struct {
	TotalDocuments   int           `json:"totalDocuments"`
	IndexedDocuments int           `json:"indexedDocuments"`
	SkippedDocuments int           `json:"skippedDocuments"`
	TotalChunks      int           `json:"totalChunks"`
	Errors           int           `json:"errors"`
	Duration         time.Duration `json:"duration"`
}

// Manager runs the build pipeline. It owns no goroutines; Build is a
// single sequential pass so that provider rate limits are respected
// and the store sees one writer.
type Manager struct {
	repo     devonthink.Repository
	embedder embed.Embedder
	store    *store.Store
	chunker  *chunk.Chunker
	cfg      config.IndexingConfig
	embedCfg config.EmbeddingsConfig
	logger   *slog.Logger
}

// NewManager wires the pipeline's collaborators together.
func NewManager(repo devonthink.Repository, embedder embed.Embedder, st *store.Store, cfg config.IndexingConfig, embedCfg config.EmbeddingsConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		repo:     repo,
		embedder: embedder,
		store:    st,
		chunker: chunk.NewChunkerWithOptions(chunk.Options{
			MaxChars:     cfg.ChunkMaxChars,
			OverlapChars: cfg.ChunkOverlapChars,
			MinChars:     cfg.ChunkMinChars,
		}),
		cfg:      cfg,
		embedCfg: embedCfg,
		logger:   logger,
	}
}

// Build runs the full pipeline and returns aggregate statistics. A
// failure on any single document is counted and logged, never fatal;
// only context cancellation, a held write lock, or a failed save abort
// the run.
func (m *Manager) Build(ctx context.Context, opts BuildOptions) (*BuildStats, error) {
	start := time.Now()
	stats := &BuildStats{}

	lock := store.NewWriteLock(m.store.Dir())
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, agenterrors.New(agenterrors.ErrCodeStateDirUnwritable,
			"cannot create index write lock", err)
	}
	if !acquired {
		return nil, agenterrors.New(agenterrors.ErrCodeIndexLocked,
			"another process is writing the index", nil).
			WithSuggestion("wait for the other dtagent run to finish")
	}
	defer lock.Unlock()

	// A forced rebuild starts from an empty index: the store may carry
	// state loaded at startup, and documents deleted from the knowledge
	// base must not survive the rebuild.
	if opts.Force {
		m.store.Reset()
	} else {
		m.store.Load()
	}

	m.report(opts, Progress{Phase: PhaseCrawling})
	docs, err := m.repo.ListDocuments(ctx, opts.Collection)
	if err != nil {
		return nil, agenterrors.Wrap(agenterrors.ErrCodeDocumentRead, err)
	}
	stats.TotalDocuments = len(docs)

	toIndex := docs[:0:0]
	for _, doc := range docs {
		if opts.Force || m.store.NeedsReindex(doc.ID, doc.Modified) {
			toIndex = append(toIndex, doc)
			continue
		}
		stats.SkippedDocuments++
	}

	m.logger.Info("index build started",
		"collection", opts.Collection, "force", opts.Force,
		"total", stats.TotalDocuments, "stale", len(toIndex))

	sinceCheckpoint := 0
	for i, doc := range toIndex {
		if err := ctx.Err(); err != nil {
			stats.Duration = time.Since(start)
			return stats, err
		}
		m.report(opts, Progress{Phase: PhaseIndexing, Current: i + 1, Total: len(toIndex), Document: doc.Name})

		chunkCount, err := m.indexDocument(ctx, doc)
		if err != nil {
			stats.Errors++
			m.logger.Warn("document indexing failed",
				"document", doc.Name, "id", doc.ID, "error", err)
			if opts.OnError != nil {
				opts.OnError(doc.Name, err)
			}
			continue
		}
		if chunkCount == 0 {
			stats.SkippedDocuments++
			continue
		}

		stats.IndexedDocuments++
		stats.TotalChunks += chunkCount
		sinceCheckpoint++

		if m.cfg.CheckpointInterval > 0 && sinceCheckpoint >= m.cfg.CheckpointInterval {
			if err := m.store.Save(); err != nil {
				m.logger.Warn("checkpoint save failed", "error", err)
			} else {
				m.logger.Debug("checkpoint saved", "indexed", stats.IndexedDocuments)
			}
			sinceCheckpoint = 0
		}
	}

	m.report(opts, Progress{Phase: PhaseSaving})
	if err := m.store.Save(); err != nil {
		stats.Duration = time.Since(start)
		return stats, err
	}

	stats.Duration = time.Since(start)
	m.logger.Info("index build finished",
		"indexed", stats.IndexedDocuments, "skipped", stats.SkippedDocuments,
		"chunks", stats.TotalChunks, "errors", stats.Errors,
		"duration", stats.Duration.Round(time.Millisecond))
	return stats, nil
}

// indexDocument reads, chunks, embeds, and upserts one document. A
// zero chunk count with nil error means the document was too short to
// index.
func (m *Manager) indexDocument(ctx context.Context, doc devonthink.DocumentInfo) (int, error) {
	content, err := m.repo.ReadContent(ctx, doc.ID, m.cfg.MaxContentChars)
	if err != nil {
		return 0, agenterrors.Wrap(agenterrors.ErrCodeDocumentRead, err)
	}
	if wordCount(content.Content) < m.cfg.MinWordCount {
		m.logger.Debug("document too short, skipping", "document", doc.Name)
		return 0, nil
	}

	chunks := m.chunker.Chunk(chunk.Document{
		ID:         doc.ID,
		Name:       doc.Name,
		Type:       doc.Type,
		Collection: doc.Collection,
		Text:       content.Content,
	})
	if len(chunks) == 0 {
		return 0, nil
	}

	vectors, err := m.embedChunks(ctx, chunks)
	if err != nil {
		return 0, err
	}

	if err := m.store.UpsertDocument(doc.ID, doc.Name, doc.Modified, chunks, vectors); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// embedChunks embeds chunk texts in fixed-size batches with an
// inter-batch delay. Each batch carries its own retry budget inside
// the embedder; a batch that exhausts it fails the whole document.
func (m *Manager) embedChunks(ctx context.Context, chunks []chunk.Chunk) ([][]float32, error) {
	batchSize := m.embedCfg.BatchSize
	if batchSize <= 0 {
		batchSize = embed.DefaultBatchSize
	}

	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		if start > 0 && m.embedCfg.InterBatchDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(m.embedCfg.InterBatchDelay):
			}
		}

		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}

		batch, err := m.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, agenterrors.New(agenterrors.ErrCodeEmbeddingFailed,
				fmt.Sprintf("embedding batch %d-%d failed", start, end-1), err)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (m *Manager) report(opts BuildOptions, p Progress) {
	if opts.OnProgress != nil {
		opts.OnProgress(p)
	}
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}
