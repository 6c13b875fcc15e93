package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alikoudar/irobot-sub000/internal/core/domain"
	"github.com/alikoudar/irobot-sub000/internal/core/ports"
)

// RetrievalRequest is one hybrid search. Vector may carry a query embedding
// computed earlier in the flow; it is reused instead of embedding again.
type RetrievalRequest struct {
	Text   string
	Vector []float32
	TopK   int
	Alpha  float64
	Filter domain.SearchFilter
}

type HybridRetriever struct {
	index    ports.HybridIndex
	embedder ports.Embedder
	metrics  ports.PipelineMetrics
}

func NewHybridRetriever(index ports.HybridIndex, embedder ports.Embedder, metrics ports.PipelineMetrics) *HybridRetriever {
	return &HybridRetriever{index: index, embedder: embedder, metrics: metricsOrNop(metrics)}
}

// Retrieve returns at most TopK candidates in descending blended-score order.
// An index failure is reported as ErrRetrieval; no hits is a valid empty result.
func (r *HybridRetriever) Retrieve(ctx context.Context, req RetrievalRequest) ([]domain.RetrievedCandidate, error) {
	started := time.Now()
	candidates, err := r.retrieve(ctx, req)
	r.metrics.ObserveRetrieval(len(candidates), time.Since(started), err)
	return candidates, err
}

func (r *HybridRetriever) retrieve(ctx context.Context, req RetrievalRequest) ([]domain.RetrievedCandidate, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve", fmt.Errorf("empty query text"))
	}
	topK := req.TopK
	if topK <= 0 {
		topK = domain.DefaultSettings().Retrieval.TopK
	}
	alpha := domain.ClampAlpha(req.Alpha)

	vector := req.Vector
	if len(vector) == 0 && !r.index.EmbedsQueries() {
		if r.embedder == nil {
			return nil, domain.WrapError(domain.ErrRetrieval, "embed query", fmt.Errorf("no embedder configured"))
		}
		embedded, err := r.embedder.EmbedQuery(ctx, text)
		if err != nil {
			return nil, domain.WrapError(domain.ErrRetrieval, "embed query", err)
		}
		vector = embedded
	}

	hits, err := r.index.Query(ctx, domain.HybridQuery{
		Text:   text,
		Vector: vector,
		Alpha:  alpha,
		Limit:  topK,
		Filter: req.Filter,
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrieval, "query hybrid index", err)
	}

	candidates := blendHits(mergeHits(hits), alpha)
	candidates = trimCandidates(candidates, topK)
	for i := range candidates {
		candidates[i].Rank = i + 1
	}
	return candidates, nil
}

// mergeHits folds rows that reference the same chunk, keeping the best raw
// score per signal. Indexes that run one sub-query per signal return such rows.
func mergeHits(hits []domain.IndexHit) []domain.IndexHit {
	out := make([]domain.IndexHit, 0, len(hits))
	pos := make(map[string]int, len(hits))
	for _, hit := range hits {
		key := retrievalChunkKey(hit)
		i, ok := pos[key]
		if !ok {
			pos[key] = len(out)
			out = append(out, hit)
			continue
		}
		if hit.LexicalScore > out[i].LexicalScore {
			out[i].LexicalScore = hit.LexicalScore
		}
		if hit.SemanticScore > out[i].SemanticScore {
			out[i].SemanticScore = hit.SemanticScore
		}
		if out[i].Text == "" {
			out[i].Text = hit.Text
		}
	}
	return out
}

// blendHits min-max normalizes each signal across the result set, then blends.
// Normalization is monotonic, so alpha=1 keeps the pure semantic order and
// alpha=0 the pure lexical order.
func blendHits(hits []domain.IndexHit, alpha float64) []domain.RetrievedCandidate {
	if len(hits) == 0 {
		return []domain.RetrievedCandidate{}
	}
	lex := make([]float64, len(hits))
	sem := make([]float64, len(hits))
	for i, h := range hits {
		lex[i] = h.LexicalScore
		sem[i] = h.SemanticScore
	}
	lex = minMaxNormalize(lex)
	sem = minMaxNormalize(sem)

	out := make([]domain.RetrievedCandidate, 0, len(hits))
	for i, h := range hits {
		out = append(out, domain.RetrievedCandidate{
			ChunkID:       h.ChunkID,
			DocumentID:    h.DocumentID,
			ChunkIndex:    h.ChunkIndex,
			DocumentTitle: h.DocumentTitle,
			Category:      h.Category,
			Text:          h.Text,
			PageNumber:    h.PageNumber,
			LexicalScore:  lex[i],
			SemanticScore: sem[i],
			BlendedScore:  domain.BlendScore(alpha, sem[i], lex[i]),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].BlendedScore != out[j].BlendedScore {
			return out[i].BlendedScore > out[j].BlendedScore
		}
		if out[i].ChunkIndex != out[j].ChunkIndex {
			return out[i].ChunkIndex < out[j].ChunkIndex
		}
		if out[i].DocumentID != out[j].DocumentID {
			return out[i].DocumentID < out[j].DocumentID
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	return out
}

func minMaxNormalize(values []float64) []float64 {
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	span := hi - lo
	out := make([]float64, len(values))
	for i, v := range values {
		switch {
		case span > 0:
			out[i] = (v - lo) / span
		case v > 0:
			out[i] = 1
		default:
			out[i] = 0
		}
	}
	return out
}

func trimCandidates(candidates []domain.RetrievedCandidate, limit int) []domain.RetrievedCandidate {
	if limit <= 0 || len(candidates) <= limit {
		return candidates
	}
	return candidates[:limit]
}

func retrievalChunkKey(hit domain.IndexHit) string {
	if hit.ChunkID != "" {
		return hit.ChunkID
	}
	return fmt.Sprintf("%s:%d", hit.DocumentID, hit.ChunkIndex)
}
