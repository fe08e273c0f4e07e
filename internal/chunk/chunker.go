package chunk

import (
	"regexp"
	"strings"
)

// Chunker splits document text into overlapping chunks. It is a pure
// function of the input text and its options; chunking the same text
// twice yields identical output.
type Chunker struct {
	opts Options
}

// paragraphSplit matches blank-line boundaries between paragraphs.
var paragraphSplit = regexp.MustCompile(`\n[ \t]*\n+`)

// sentenceEnd matches sentence-ending punctuation (ASCII and
// full-width) followed by whitespace.
var sentenceEnd = regexp.MustCompile(`([.!?\x{3002}\x{FF01}\x{FF1F}])[ \t\n]+`)

// NewChunker creates a chunker with default options.
func NewChunker() *Chunker {
	return NewChunkerWithOptions(DefaultOptions())
}

// NewChunkerWithOptions creates a chunker with custom options.
// Zero-valued fields fall back to defaults.
func NewChunkerWithOptions(opts Options) *Chunker {
	def := DefaultOptions()
	if opts.MaxChars <= 0 {
		opts.MaxChars = def.MaxChars
	}
	if opts.OverlapChars < 0 {
		opts.OverlapChars = def.OverlapChars
	}
	if opts.MinChars <= 0 {
		opts.MinChars = def.MinChars
	}
	return &Chunker{opts: opts}
}

// Chunk splits a document into overlapping chunks with contiguous
// zero-based indices. Documents shorter than MinChars produce no chunks.
func (c *Chunker) Chunk(doc Document) []Chunk {
	text := strings.TrimSpace(doc.Text)
	if len([]rune(text)) < c.opts.MinChars {
		return nil
	}

	raw := c.rawChunks(text)
	withOverlap := c.applyOverlap(raw)

	chunks := make([]Chunk, 0, len(withOverlap))
	for _, t := range withOverlap {
		if len([]rune(t)) < c.opts.MinChars {
			continue
		}
		idx := len(chunks)
		chunks = append(chunks, Chunk{
			ID:           ChunkID(doc.ID, idx),
			DocumentID:   doc.ID,
			DocumentName: doc.Name,
			DocumentType: doc.Type,
			Collection:   doc.Collection,
			Text:         t,
			Index:        idx,
		})
	}
	return chunks
}

// rawChunks greedily accumulates paragraphs up to MaxChars, splitting
// oversized paragraphs by sentence and oversized sentences by raw
// character windows.
func (c *Chunker) rawChunks(text string) []string {
	paragraphs := paragraphSplit.Split(text, -1)

	var out []string
	var buf []rune

	flush := func() {
		if len(buf) > 0 {
			out = append(out, strings.TrimSpace(string(buf)))
			buf = buf[:0]
		}
	}

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		runes := []rune(para)

		if len(runes) > c.opts.MaxChars {
			flush()
			out = append(out, c.splitLongParagraph(runes)...)
			continue
		}

		// +2 accounts for the paragraph separator.
		if len(buf) > 0 && len(buf)+2+len(runes) > c.opts.MaxChars {
			flush()
		}
		if len(buf) > 0 {
			buf = append(buf, '\n', '\n')
		}
		buf = append(buf, runes...)
	}
	flush()

	return out
}

// splitLongParagraph breaks one oversized paragraph into sentence
// groups no longer than MaxChars. Sentences that are themselves too
// long are hard-split at character boundaries so no text is lost.
func (c *Chunker) splitLongParagraph(para []rune) []string {
	sentences := splitSentences(string(para))

	var out []string
	var buf []rune

	flush := func() {
		if len(buf) > 0 {
			out = append(out, strings.TrimSpace(string(buf)))
			buf = buf[:0]
		}
	}

	for _, sentence := range sentences {
		runes := []rune(sentence)

		if len(runes) > c.opts.MaxChars {
			flush()
			for start := 0; start < len(runes); start += c.opts.MaxChars {
				end := start + c.opts.MaxChars
				if end > len(runes) {
					end = len(runes)
				}
				out = append(out, strings.TrimSpace(string(runes[start:end])))
			}
			continue
		}

		if len(buf) > 0 && len(buf)+1+len(runes) > c.opts.MaxChars {
			flush()
		}
		if len(buf) > 0 {
			buf = append(buf, ' ')
		}
		buf = append(buf, runes...)
	}
	flush()

	return out
}

// splitSentences splits text after sentence-ending punctuation,
// keeping the terminator with its sentence.
func splitSentences(text string) []string {
	matches := sentenceEnd.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return []string{text}
	}

	var sentences []string
	prev := 0
	for _, m := range matches {
		sentences = append(sentences, strings.TrimSpace(text[prev:m[1]]))
		prev = m[1]
	}
	if prev < len(text) {
		tail := strings.TrimSpace(text[prev:])
		if tail != "" {
			sentences = append(sentences, tail)
		}
	}
	return sentences
}

// applyOverlap prepends the tail of each previous raw chunk to the
// next one, joined with a single newline, capping the combined length
// at MaxChars+OverlapChars.
func (c *Chunker) applyOverlap(raw []string) []string {
	if c.opts.OverlapChars == 0 || len(raw) < 2 {
		return raw
	}

	out := make([]string, len(raw))
	out[0] = raw[0]
	limit := c.opts.MaxChars + c.opts.OverlapChars

	for i := 1; i < len(raw); i++ {
		prev := []rune(raw[i-1])
		start := len(prev) - c.opts.OverlapChars
		if start < 0 {
			start = 0
		}
		tail := []rune(strings.TrimSpace(string(prev[start:])))

		// The cap never eats the chunk's own content; an oversized
		// combination shortens the overlap from its front instead.
		cur := []rune(raw[i])
		if allowed := limit - len(cur) - 1; len(tail) > allowed {
			if allowed <= 0 {
				out[i] = raw[i]
				continue
			}
			tail = tail[len(tail)-allowed:]
		}
		out[i] = string(tail) + "\n" + string(cur)
	}
	return out
}
