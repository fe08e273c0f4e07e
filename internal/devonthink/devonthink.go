// Package devonthink defines the read-only boundary to the external
// DEVONthink knowledge base. The engine only ever consumes this
// interface; the scripting bridge that implements it lives outside the
// retrieval core.
package devonthink

import (
	"context"
	"time"
)

// DocumentInfo is the metadata record for one document, as returned by
// the knowledge base when crawling a collection.
type DocumentInfo struct {
	// ID is the document's stable unique identifier.
	ID string `json:"id"`

	// Name is the document's display name.
	Name string `json:"name"`

	// Type is the document kind (markdown, rtf, pdf, ...).
	Type string `json:"type"`

	// Collection is the containing database/group name.
	Collection string `json:"collection"`

	// Modified is the document's modification timestamp.
	Modified time.Time `json:"modified"`

	// WordCount is the knowledge base's own word count for the document.
	WordCount int `json:"word_count"`
}

// DocumentContent is the result of reading a document's text.
type DocumentContent struct {
	// Content is the plain text, capped at the requested maximum length.
	Content string `json:"content"`

	// Truncated indicates the content was cut at the cap.
	Truncated bool `json:"truncated"`
}

// SearchHit is one result from the knowledge base's own keyword or
// see-also search. Score is the raw engine score, nominally 0-100.
type SearchHit struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Score      float64 `json:"score"`
	Type       string  `json:"type"`
	Collection string  `json:"collection"`
}

// Repository is the collaborator interface consumed by the index
// manager and the hybrid search engine. Every call is context-bounded;
// a timeout is a per-call failure, never process-fatal.
type Repository interface {
	// ListDocuments returns metadata for all indexable documents,
	// optionally scoped to one collection. Implementations crawl
	// collection-by-collection to bound single-request size.
	ListDocuments(ctx context.Context, collection string) ([]DocumentInfo, error)

	// ReadContent reads up to maxChars of one document's plain text.
	ReadContent(ctx context.Context, id string, maxChars int) (DocumentContent, error)

	// Search runs the knowledge base's keyword search.
	Search(ctx context.Context, query, collection string, limit int) ([]SearchHit, error)

	// RelatedDocuments returns documents the knowledge base considers
	// similar to the given one (the "see also" list).
	RelatedDocuments(ctx context.Context, id string, limit int) ([]SearchHit, error)
}
