package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/DayuGuo/DEVONthink-agent/internal/chunk"
	agenterrors "github.com/DayuGuo/DEVONthink-agent/internal/errors"
)

// Store holds chunk metadata and their embedding vectors, and persists
// both to the index directory. Vectors live in one contiguous float32
// buffer: chunk i owns buf[i*dims : (i+1)*dims] within the used
// region. Every mutating method preserves that correspondence.
//
// Store is safe for concurrent use within a process. Cross-process
// write exclusion is handled by WriteLock, which the index builder
// takes around a build.
type Store struct {
	mu     sync.RWMutex
	dir    string
	dims   int
	logger *slog.Logger

	chunks []chunk.Chunk
	buf    []float32 // physical capacity; only buf[:used] is meaningful
	used   int

	meta IndexMetadata
}

// New creates an empty store for the given index directory. Call Load
// to pick up a previously saved index.
func New(opts Options, logger *slog.Logger) (*Store, error) {
	if opts.Dimensions <= 0 {
		return nil, agenterrors.ValidationError(
			fmt.Sprintf("invalid vector dimensions %d", opts.Dimensions), nil)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		dir:    opts.Dir,
		dims:   opts.Dimensions,
		logger: logger,
		meta: IndexMetadata{
			Version:    MetadataVersion,
			Provider:   opts.Provider,
			Model:      opts.Model,
			Dimensions: opts.Dimensions,
			Documents:  make(map[string]DocumentEntry),
		},
	}, nil
}

// Load reads the persisted artifacts. It returns true when a prior
// index was loaded, false when none exists or any artifact is
// unreadable, corrupt, or inconsistent: callers start empty in that
// case, never crash. A dimension or model change also reads as false
// so the index gets rebuilt with the current embedder.
func (s *Store) Load() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	metaRaw, err := os.ReadFile(filepath.Join(s.dir, MetaFile))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("index metadata unreadable, starting empty", "error", err)
		}
		return false
	}

	var meta IndexMetadata
	if err := json.Unmarshal(metaRaw, &meta); err != nil {
		s.logger.Warn("index metadata corrupt, starting empty", "error", err)
		return false
	}
	if meta.Version != MetadataVersion {
		s.logger.Warn("index metadata version mismatch, starting empty",
			"found", meta.Version, "expected", MetadataVersion)
		return false
	}
	if meta.Dimensions != s.dims {
		s.logger.Warn("index built with different dimensions, starting empty",
			"indexDims", meta.Dimensions, "currentDims", s.dims)
		return false
	}
	// Same dimensionality does not mean the same embedding space. An
	// empty configured identity means "whatever built the index".
	if s.meta.Provider != "" && meta.Provider != s.meta.Provider {
		s.logger.Warn("index built with different provider, starting empty",
			"indexProvider", meta.Provider, "currentProvider", s.meta.Provider)
		return false
	}
	if s.meta.Model != "" && meta.Model != s.meta.Model {
		s.logger.Warn("index built with different model, starting empty",
			"indexModel", meta.Model, "currentModel", s.meta.Model)
		return false
	}

	chunksRaw, err := os.ReadFile(filepath.Join(s.dir, ChunksFile))
	if err != nil {
		s.logger.Warn("chunk list unreadable, starting empty", "error", err)
		return false
	}
	var chunks []chunk.Chunk
	if err := json.Unmarshal(chunksRaw, &chunks); err != nil {
		s.logger.Warn("chunk list corrupt, starting empty", "error", err)
		return false
	}

	vecRaw, err := os.ReadFile(filepath.Join(s.dir, VectorsFile))
	if err != nil {
		s.logger.Warn("vector buffer unreadable, starting empty", "error", err)
		return false
	}
	if len(vecRaw) != len(chunks)*s.dims*4 {
		s.logger.Warn("vector buffer size inconsistent with chunk list, starting empty",
			"bytes", len(vecRaw), "chunks", len(chunks), "dims", s.dims)
		return false
	}

	buf := make([]float32, len(chunks)*s.dims)
	for i := range buf {
		bits := binary.LittleEndian.Uint32(vecRaw[i*4:])
		buf[i] = math.Float32frombits(bits)
	}

	if meta.Documents == nil {
		meta.Documents = make(map[string]DocumentEntry)
	}

	s.chunks = chunks
	s.buf = buf
	s.used = len(buf)
	// Adopt the persisted identity (it passed the checks above, and an
	// unconfigured store inherits whatever built the index) along with
	// the document tracking.
	s.meta.Provider = meta.Provider
	s.meta.Model = meta.Model
	s.meta.Documents = meta.Documents
	s.meta.UpdatedAt = meta.UpdatedAt

	s.logger.Info("index loaded",
		"chunks", len(chunks), "documents", len(meta.Documents), "dims", s.dims)
	return true
}

// Save writes all three artifacts to the index directory. Each is
// written to a temporary file and atomically renamed into place, so a
// reader never observes a torn artifact.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return agenterrors.New(agenterrors.ErrCodeStateDirUnwritable,
			fmt.Sprintf("cannot create index directory %s", s.dir), err)
	}

	vecRaw := make([]byte, s.used*4)
	for i, v := range s.buf[:s.used] {
		binary.LittleEndian.PutUint32(vecRaw[i*4:], math.Float32bits(v))
	}
	if err := writeFileAtomic(filepath.Join(s.dir, VectorsFile), vecRaw); err != nil {
		return agenterrors.New(agenterrors.ErrCodeStateDirUnwritable,
			"failed to write vector buffer", err)
	}

	chunksRaw, err := json.Marshal(s.chunks)
	if err != nil {
		return agenterrors.InternalError("failed to encode chunk list", err)
	}
	if err := writeFileAtomic(filepath.Join(s.dir, ChunksFile), chunksRaw); err != nil {
		return agenterrors.New(agenterrors.ErrCodeStateDirUnwritable,
			"failed to write chunk list", err)
	}

	s.meta.ChunkCount = len(s.chunks)
	s.meta.DocumentCount = len(s.meta.Documents)
	s.meta.UpdatedAt = time.Now().UTC()
	metaRaw, err := json.MarshalIndent(s.meta, "", "  ")
	if err != nil {
		return agenterrors.InternalError("failed to encode index metadata", err)
	}
	if err := writeFileAtomic(filepath.Join(s.dir, MetaFile), metaRaw); err != nil {
		return agenterrors.New(agenterrors.ErrCodeStateDirUnwritable,
			"failed to write index metadata", err)
	}

	s.logger.Debug("index saved", "chunks", len(s.chunks), "documents", len(s.meta.Documents))
	return nil
}

// Search scans every stored vector, scores it by cosine similarity
// against query, and returns the topK highest-scoring chunks in
// descending score order. A zero-norm vector on either side scores 0.
func (s *Store) Search(query []float32, topK int) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(query) != s.dims {
		return nil, agenterrors.New(agenterrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("query has %d dimensions, index has %d", len(query), s.dims), nil)
	}
	if topK <= 0 || len(s.chunks) == 0 {
		return nil, nil
	}

	var qNorm float64
	for _, v := range query {
		qNorm += float64(v) * float64(v)
	}
	qNorm = math.Sqrt(qNorm)

	results := make([]SearchResult, 0, len(s.chunks))
	for i, c := range s.chunks {
		vec := s.buf[i*s.dims : (i+1)*s.dims]
		results = append(results, SearchResult{
			DocumentID: c.DocumentID,
			Name:       c.DocumentName,
			Type:       c.DocumentType,
			Collection: c.Collection,
			Text:       c.Text,
			ChunkIndex: c.Index,
			Score:      cosine(query, qNorm, vec),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// NeedsReindex reports whether the document is absent from metadata or
// its stored modification timestamp differs from the supplied one.
func (s *Store) NeedsReindex(docID string, modified time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.meta.Documents[docID]
	if !ok {
		return true
	}
	return !entry.Modified.Equal(modified)
}

// UpsertDocument replaces all chunks and vectors for the document with
// the supplied ones. The replace is always full, never a partial
// merge: existing chunks are removed first, then the new ones are
// appended.
func (s *Store) UpsertDocument(docID, name string, modified time.Time, chunks []chunk.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return agenterrors.ValidationError(
			fmt.Sprintf("chunk/vector count mismatch: %d chunks, %d vectors", len(chunks), len(vectors)), nil)
	}
	for i, vec := range vectors {
		if len(vec) != s.dims {
			return agenterrors.New(agenterrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("vector %d has %d dimensions, index has %d", i, len(vec), s.dims), nil)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(docID)

	needed := s.used + len(chunks)*s.dims
	s.ensureCapacity(needed)
	for _, vec := range vectors {
		copy(s.buf[s.used:], vec)
		s.used += s.dims
	}
	s.chunks = append(s.chunks, chunks...)

	s.meta.Documents[docID] = DocumentEntry{
		Name:       name,
		Modified:   modified,
		ChunkCount: len(chunks),
	}
	return nil
}

// RemoveDocument deletes all chunks for the document, compacts the
// vector buffer in place preserving the order of survivors, and drops
// the document's metadata entry.
func (s *Store) RemoveDocument(docID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(docID)
}

// DocumentCount returns the number of tracked documents.
func (s *Store) DocumentCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.meta.Documents)
}

// ChunkCount returns the number of stored chunks.
func (s *Store) ChunkCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// Dimensions returns the embedding dimension of the index.
func (s *Store) Dimensions() int {
	return s.dims
}

// Dir returns the index directory.
func (s *Store) Dir() string {
	return s.dir
}

// Metadata returns a snapshot of the index metadata.
func (s *Store) Metadata() IndexMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.meta
	snap.ChunkCount = len(s.chunks)
	snap.DocumentCount = len(s.meta.Documents)
	snap.Documents = make(map[string]DocumentEntry, len(s.meta.Documents))
	for id, entry := range s.meta.Documents {
		snap.Documents[id] = entry
	}
	return snap
}

// Reset drops every chunk, vector, and document entry while keeping the
// store's configured identity. A forced rebuild calls this so documents
// deleted from the knowledge base do not survive in the new index.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chunks = nil
	s.buf = nil
	s.used = 0
	s.meta.ChunkCount = 0
	s.meta.DocumentCount = 0
	s.meta.Documents = make(map[string]DocumentEntry)
	s.meta.UpdatedAt = time.Time{}
}

// removeLocked deletes docID's chunks and compacts buf in place. The
// write cursor walks behind the read cursor, so survivors keep their
// relative order and no reallocation happens. Caller holds mu.
func (s *Store) removeLocked(docID string) {
	w := 0
	for i, c := range s.chunks {
		if c.DocumentID == docID {
			continue
		}
		if w != i {
			s.chunks[w] = c
			copy(s.buf[w*s.dims:(w+1)*s.dims], s.buf[i*s.dims:(i+1)*s.dims])
		}
		w++
	}
	s.chunks = s.chunks[:w]
	s.used = w * s.dims

	delete(s.meta.Documents, docID)
}

// ensureCapacity grows buf so that at least needed float32 slots are
// available. Growth is geometric: at least double the prior capacity,
// or the exact requirement if larger, so repeated upserts amortize to
// O(1) reallocations per element.
func (s *Store) ensureCapacity(needed int) {
	if needed <= len(s.buf) {
		return
	}
	newCap := len(s.buf) * 2
	if newCap < needed {
		newCap = needed
	}
	grown := make([]float32, newCap)
	copy(grown, s.buf[:s.used])
	s.buf = grown
}

// cosine computes cosine similarity given a precomputed query norm.
func cosine(query []float32, qNorm float64, vec []float32) float64 {
	var dot, vNorm float64
	for i, v := range vec {
		dot += float64(query[i]) * float64(v)
		vNorm += float64(v) * float64(v)
	}
	if qNorm == 0 || vNorm == 0 {
		return 0
	}
	return dot / (qNorm * math.Sqrt(vNorm))
}

// writeFileAtomic writes data to a temporary file in the target's
// directory and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
