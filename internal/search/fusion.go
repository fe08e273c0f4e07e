package search

import (
	"sort"
)

// Fusion constants. Keyword and related scores arrive on the knowledge
// base's nominal 0-100 scale; cosine scores arrive in [−1,1] but land
// around 0.3-0.95 for related text, so they are remapped to spread the
// usable range before merging.
const (
	// rawScoreCeiling is the assumed maximum of keyword and related
	// path scores.
	rawScoreCeiling = 100.0

	// semanticRemapFloor/Range define the linear remap
	// clamp((score-0.4)/0.6, 0, 1).
	semanticRemapFloor = 0.4
	semanticRemapRange = 0.6

	// semanticNoiseFloor discards remapped semantic scores below it.
	semanticNoiseFloor = 0.1

	// semanticBoost is the fraction of the semantic score added to an
	// entry another path already found.
	semanticBoost = 0.5

	// relatedBoost is the fixed increment for an entry the related
	// path confirms.
	relatedBoost = 0.15

	// Entries first contributed by a later path start dampened so a
	// single-path match ranks below a multi-path match of comparable
	// confidence.
	semanticOnlyDamping = 0.85
	relatedOnlyDamping  = 0.60
)

// semanticHit is one document-level semantic match after chunk
// aggregation: the highest-scoring chunk represents the document.
type semanticHit struct {
	DocumentID string
	Name       string
	Type       string
	Collection string
	Score      float64 // remapped to [0,1]
	Snippet    string
}

// merger accumulates path contributions keyed by document ID. Paths
// must be applied in order (keyword, semantic, related) because the
// damping rules assume that sequence.
type merger struct {
	entries map[string]*Result
}

func newMerger() *merger {
	return &merger{entries: make(map[string]*Result)}
}

// normalizeRaw maps a nominal 0-100 engine score into [0,1].
func normalizeRaw(score float64) float64 {
	return clamp(score/rawScoreCeiling, 0, 1)
}

// remapCosine spreads the usable cosine range into [0,1].
func remapCosine(score float64) float64 {
	return clamp((score-semanticRemapFloor)/semanticRemapRange, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// addKeyword records keyword-path results at their normalized score.
func (m *merger) addKeyword(id, name, docType, collection string, rawScore float64) {
	m.entries[id] = &Result{
		DocumentID: id,
		Name:       name,
		Type:       docType,
		Collection: collection,
		Score:      normalizeRaw(rawScore),
		Paths:      []Path{PathKeyword},
	}
}

// addSemantic merges one document-level semantic hit. An entry the
// keyword path already found gains half the semantic score; a new
// entry starts at 85% of it.
func (m *merger) addSemantic(hit semanticHit) {
	if existing, ok := m.entries[hit.DocumentID]; ok {
		existing.Score += hit.Score * semanticBoost
		existing.Paths = append(existing.Paths, PathSemantic)
		existing.Snippet = hit.Snippet
		return
	}
	m.entries[hit.DocumentID] = &Result{
		DocumentID: hit.DocumentID,
		Name:       hit.Name,
		Type:       hit.Type,
		Collection: hit.Collection,
		Score:      hit.Score * semanticOnlyDamping,
		Paths:      []Path{PathSemantic},
		Snippet:    hit.Snippet,
	}
}

// addRelated merges one related-path hit. The seed document never
// boosts itself.
func (m *merger) addRelated(id, name, docType, collection string, rawScore float64, seedID string) {
	if id == seedID {
		return
	}
	if existing, ok := m.entries[id]; ok {
		existing.Score += relatedBoost
		existing.Paths = append(existing.Paths, PathRelated)
		return
	}
	m.entries[id] = &Result{
		DocumentID: id,
		Name:       name,
		Type:       docType,
		Collection: collection,
		Score:      normalizeRaw(rawScore) * relatedOnlyDamping,
		Paths:      []Path{PathRelated},
	}
}

// best returns the document ID of the current highest-ranked entry,
// or "" when empty. Used to seed the related path.
func (m *merger) best() string {
	bestID := ""
	var bestPaths int
	var bestScore float64
	for id, e := range m.entries {
		if bestID == "" || len(e.Paths) > bestPaths ||
			(len(e.Paths) == bestPaths && e.Score > bestScore) {
			bestID = id
			bestPaths = len(e.Paths)
			bestScore = e.Score
		}
	}
	return bestID
}

// ranked returns entries ordered by matched-path count descending,
// then score descending, truncated to topK.
func (m *merger) ranked(topK int) []Result {
	out := make([]Result, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].Paths) != len(out[j].Paths) {
			return len(out[i].Paths) > len(out[j].Paths)
		}
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].DocumentID < out[j].DocumentID
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}
