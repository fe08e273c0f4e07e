// Package search combines three retrieval paths (the knowledge base's
// keyword search, cosine similarity over the local vector index, and
// the knowledge base's related-documents list) into one ranked result
// set. Cross-path agreement is the primary ranking signal.
package search

import (
	"time"
)

// Path identifies one retrieval path.
type Path string

const (
	PathKeyword  Path = "keyword"
	PathSemantic Path = "semantic"
	PathRelated  Path = "related"
)

// Result is one merged, document-level search result.
type Result struct {
	DocumentID string  `json:"documentId"`
	Name       string  `json:"name"`
	Type       string  `json:"type,omitempty"`
	Collection string  `json:"collection,omitempty"`
	Score      float64 `json:"score"`
	Paths      []Path  `json:"paths"`

	// Snippet is the best-matching chunk text when the semantic path
	// contributed, empty otherwise.
	Snippet string `json:"snippet,omitempty"`
}

// Options controls one hybrid search.
type Options struct {
	// Collection restricts the keyword path to one collection. Empty
	// means all collections.
	Collection string

	// TopK bounds the returned result count. Zero means the
	// configured default.
	TopK int

	// EnableSemantic and EnableRelated toggle the optional paths.
	EnableSemantic bool
	EnableRelated  bool
}

// Response is the outcome of a search. SearchPaths lists the paths
// that actually executed without failing; a path that was attempted
// but errored is omitted.
type Response struct {
	Results        []Result `json:"results"`
	SearchPaths    []Path   `json:"searchPaths"`
	IndexAvailable bool     `json:"indexAvailable"`
}

// Recorder receives per-query telemetry. Implementations must not
// block the search path.
type Recorder interface {
	RecordSearch(query string, paths []Path, resultCount int, duration time.Duration)
}
