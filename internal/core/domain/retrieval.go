package domain

type SearchFilter struct {
	Category    string
	DocumentIDs []string
}

// HybridQuery is what the retriever submits to the external index. Vector is
// set when the query was embedded up front; Text always carries the raw query
// for lexical scoring and for indexes that embed at query time.
type HybridQuery struct {
	Text   string
	Vector []float32
	Alpha  float64
	Limit  int
	Filter SearchFilter
}

// IndexHit is one row returned by the external index with raw per-signal scores.
type IndexHit struct {
	ChunkID       string
	DocumentID    string
	ChunkIndex    int
	DocumentTitle string
	Category      string
	Text          string
	PageNumber    *int
	LexicalScore  float64
	SemanticScore float64
}

// RetrievedCandidate is a transient hybrid-retrieval result.
type RetrievedCandidate struct {
	ChunkID       string  `json:"chunk_id"`
	DocumentID    string  `json:"document_id"`
	ChunkIndex    int     `json:"chunk_index"`
	DocumentTitle string  `json:"document_title"`
	Category      string  `json:"category,omitempty"`
	Text          string  `json:"text"`
	PageNumber    *int    `json:"page_number,omitempty"`
	LexicalScore  float64 `json:"lexical_score"`
	SemanticScore float64 `json:"semantic_score"`
	BlendedScore  float64 `json:"blended_score"`
	Rank          int     `json:"rank"`
}

// Source converts the candidate to the reference stored with answers.
func (c RetrievedCandidate) Source() SourceRef {
	return SourceRef{
		DocumentID: c.DocumentID,
		ChunkID:    c.ChunkID,
		ChunkIndex: c.ChunkIndex,
		PageNumber: c.PageNumber,
		Title:      c.DocumentTitle,
	}
}

// BlendScore is alpha*semantic + (1-alpha)*lexical with alpha clamped to [0,1].
func BlendScore(alpha, semantic, lexical float64) float64 {
	alpha = ClampAlpha(alpha)
	return alpha*semantic + (1-alpha)*lexical
}

func ClampAlpha(alpha float64) float64 {
	switch {
	case alpha < 0:
		return 0
	case alpha > 1:
		return 1
	default:
		return alpha
	}
}

// RerankResult is one reranked candidate.
type RerankResult struct {
	Candidate      RetrievedCandidate `json:"candidate"`
	RelevanceScore float64            `json:"relevance_score"`
	OriginalRank   int                `json:"original_rank"`
	NewRank        int                `json:"new_rank"`
	// Scored is false when the model did not address the candidate and it
	// received the least-relevant default.
	Scored bool `json:"scored"`
}

// RerankOutcome is the reranker's answer. Results holds every input
// candidate in its new order; TopN of them are passed on to generation.
// Degraded is set when the model response could not be used and the original
// retrieval order was kept.
type RerankOutcome struct {
	Results  []RerankResult
	TopN     int
	Degraded bool
	Reason   string
}

// Candidates unwraps all reranked candidates in their new order.
func (o RerankOutcome) Candidates() []RetrievedCandidate {
	out := make([]RetrievedCandidate, 0, len(o.Results))
	for _, r := range o.Results {
		out = append(out, r.Candidate)
	}
	return out
}

// Selected is the head of the new order, truncated to TopN.
func (o RerankOutcome) Selected() []RetrievedCandidate {
	all := o.Candidates()
	if o.TopN > 0 && o.TopN < len(all) {
		return all[:o.TopN]
	}
	return all
}

type SourceRef struct {
	DocumentID string `json:"document_id"`
	ChunkID    string `json:"chunk_id,omitempty"`
	ChunkIndex int    `json:"chunk_index"`
	PageNumber *int   `json:"page_number,omitempty"`
	Title      string `json:"title"`
}

// DistinctDocumentIDs returns the source documents in first-seen order.
func DistinctDocumentIDs(sources []SourceRef) []string {
	seen := make(map[string]struct{}, len(sources))
	out := make([]string, 0, len(sources))
	for _, s := range sources {
		if s.DocumentID == "" {
			continue
		}
		if _, ok := seen[s.DocumentID]; ok {
			continue
		}
		seen[s.DocumentID] = struct{}{}
		out = append(out, s.DocumentID)
	}
	return out
}
