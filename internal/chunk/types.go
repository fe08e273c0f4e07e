// Package chunk splits document text into overlapping segments sized
// for embedding.
package chunk

import "fmt"

// Chunk is a contiguous slice of one document's text, the unit of
// embedding and retrieval.
type Chunk struct {
	// ID is globally unique: "{documentID}#{index}".
	ID string `json:"id"`

	// DocumentID identifies the source document.
	DocumentID string `json:"document_id"`

	// DocumentName is the source document's display name.
	DocumentName string `json:"document_name"`

	// DocumentType is the source document's kind (markdown, rtf, ...).
	DocumentType string `json:"document_type"`

	// Collection is the document's containing database.
	Collection string `json:"collection"`

	// Text is the chunk content, including the overlap prefix.
	Text string `json:"text"`

	// Index is the 0-based position within the document, contiguous.
	Index int `json:"index"`
}

// ChunkID derives the canonical chunk identifier.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s#%d", documentID, index)
}

// Document is the chunker input.
type Document struct {
	ID         string
	Name       string
	Type       string
	Collection string
	Text       string
}

// Options configures chunking behavior.
type Options struct {
	// MaxChars is the target upper bound per chunk before overlap.
	MaxChars int

	// OverlapChars is how much of the previous chunk's tail is
	// prepended to each subsequent chunk.
	OverlapChars int

	// MinChars discards chunks shorter than this.
	MinChars int
}

// DefaultOptions returns the standard chunking parameters.
func DefaultOptions() Options {
	return Options{
		MaxChars:     2000,
		OverlapChars: 400,
		MinChars:     100,
	}
}
