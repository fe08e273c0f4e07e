// Package store persists chunk metadata and embedding vectors for the
// local index, and answers cosine-similarity queries over them. The
// vector buffer is a single flat float32 arena; chunks[i] always
// corresponds to the vector at offset i*dimensions in the used region.
package store

import (
	"time"
)

// MetadataVersion is the on-disk schema version of meta.json. Bump it
// when the artifact layout changes incompatibly; a version mismatch on
// load is treated as a missing index.
const MetadataVersion = 1

// Artifact filenames inside the index directory.
const (
	VectorsFile = "vectors.bin"
	ChunksFile  = "chunks.json"
	MetaFile    = "meta.json"
	LockFile    = ".write.lock"
)

// SearchResult is one ranked chunk from a similarity search.
type SearchResult struct {
	DocumentID string  `json:"documentId"`
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Collection string  `json:"collection"`
	Text       string  `json:"text"`
	ChunkIndex int     `json:"chunkIndex"`
	Score      float64 `json:"score"`
}

// DocumentEntry tracks one indexed document in metadata. The modified
// timestamp drives incremental reindexing.
type DocumentEntry struct {
	Name       string    `json:"name"`
	Modified   time.Time `json:"modified"`
	ChunkCount int       `json:"chunkCount"`
}

// IndexMetadata is the meta.json artifact. Documents maps document ID
// to its tracking entry; ChunkCount and DocumentCount are totals across
// all entries, recorded so the artifact is self-describing without
// loading the chunk list.
type IndexMetadata struct {
	Version       int                      `json:"version"`
	Provider      string                   `json:"provider"`
	Model         string                   `json:"model"`
	Dimensions    int                      `json:"dimensions"`
	ChunkCount    int                      `json:"chunkCount"`
	DocumentCount int                      `json:"documentCount"`
	Documents     map[string]DocumentEntry `json:"documents"`
	UpdatedAt     time.Time                `json:"updatedAt"`
}

// Options configures a Store.
type Options struct {
	// Dir is the index directory holding the three artifacts.
	Dir string

	// Dimensions is the embedding dimension. Vectors of any other
	// length are rejected.
	Dimensions int

	// Provider and Model are recorded in metadata so a later run can
	// detect that the index was built with a different embedder.
	Provider string
	Model    string
}
