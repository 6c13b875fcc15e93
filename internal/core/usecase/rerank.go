package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/alikoudar/irobot-sub000/internal/core/domain"
	"github.com/alikoudar/irobot-sub000/internal/core/ports"
)

const rerankPassageChars = 1200

// LLMReranker asks the generative model to score every candidate against the
// question. It never fails: unusable model output keeps the retrieval order.
type LLMReranker struct {
	generator ports.AnswerGenerator
	metrics   ports.PipelineMetrics
	logger    *slog.Logger
}

func NewLLMReranker(generator ports.AnswerGenerator, metrics ports.PipelineMetrics, logger *slog.Logger) *LLMReranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMReranker{generator: generator, metrics: metricsOrNop(metrics), logger: logger}
}

func (r *LLMReranker) Rerank(ctx context.Context, question string, candidates []domain.RetrievedCandidate, topN int) domain.RerankOutcome {
	started := time.Now()
	outcome := r.rerank(ctx, question, candidates, topN)
	r.metrics.ObserveRerank(outcome.Degraded, time.Since(started))
	if outcome.Degraded {
		r.logger.Warn("rerank_degraded", "reason", outcome.Reason, "candidates", len(candidates))
	}
	return outcome
}

func (r *LLMReranker) rerank(ctx context.Context, question string, candidates []domain.RetrievedCandidate, topN int) domain.RerankOutcome {
	if len(candidates) <= 1 {
		return KeepRetrievalOrder(candidates, topN)
	}

	raw, err := r.generator.GenerateJSONFromPrompt(ctx, buildRerankPrompt(question, candidates))
	if err != nil {
		return degraded(candidates, topN, fmt.Sprintf("rerank call failed: %v", err))
	}
	scores, err := parseRerankScores(raw, len(candidates))
	if err != nil {
		return degraded(candidates, topN, err.Error())
	}

	results := make([]domain.RerankResult, len(candidates))
	for i, c := range candidates {
		score, ok := scores[i]
		results[i] = domain.RerankResult{
			Candidate:      c,
			RelevanceScore: score,
			OriginalRank:   i + 1,
			Scored:         ok,
		}
	}
	// Unaddressed candidates are least relevant: they sort after every scored
	// one, then by score, then by their retrieval rank.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Scored != results[j].Scored {
			return results[i].Scored
		}
		if results[i].RelevanceScore != results[j].RelevanceScore {
			return results[i].RelevanceScore > results[j].RelevanceScore
		}
		return results[i].OriginalRank < results[j].OriginalRank
	})
	for i := range results {
		results[i].NewRank = i + 1
	}
	return domain.RerankOutcome{Results: results, TopN: clampTopN(topN, len(results))}
}

// KeepRetrievalOrder wraps candidates without reranking them.
func KeepRetrievalOrder(candidates []domain.RetrievedCandidate, topN int) domain.RerankOutcome {
	results := make([]domain.RerankResult, len(candidates))
	for i, c := range candidates {
		results[i] = domain.RerankResult{
			Candidate:      c,
			RelevanceScore: c.BlendedScore,
			OriginalRank:   i + 1,
			NewRank:        i + 1,
		}
	}
	return domain.RerankOutcome{Results: results, TopN: clampTopN(topN, len(results))}
}

func degraded(candidates []domain.RetrievedCandidate, topN int, reason string) domain.RerankOutcome {
	out := KeepRetrievalOrder(candidates, topN)
	out.Degraded = true
	out.Reason = reason
	return out
}

func clampTopN(topN, n int) int {
	if topN <= 0 || topN > n {
		return n
	}
	return topN
}

func buildRerankPrompt(question string, candidates []domain.RetrievedCandidate) string {
	var b strings.Builder
	b.WriteString(`You are a relevance judge for a document search engine.
Score how well each passage answers the question, from 0 (irrelevant) to 1 (fully answers it).
Return ONLY valid JSON, one entry per passage index:
{"scores":[{"index":0,"score":0.0}]}

Question: `)
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\n\nPassages:\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "[%d] (%s) %s\n", i, c.DocumentTitle, truncateRunes(strings.TrimSpace(c.Text), rerankPassageChars))
	}
	return b.String()
}

type rerankScore struct {
	Index *int     `json:"index"`
	Score *float64 `json:"score"`
}

// parseRerankScores accepts {"scores":[...]} or a bare array. Indices out of
// range are ignored; the first score for an index wins.
func parseRerankScores(raw string, n int) (map[int]float64, error) {
	raw = stripCodeFence(strings.TrimSpace(raw))
	if raw == "" {
		return nil, fmt.Errorf("empty rerank response")
	}

	var items []rerankScore
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			return nil, fmt.Errorf("unmarshal rerank array: %w", err)
		}
	} else {
		var wrapped struct {
			Scores []rerankScore `json:"scores"`
		}
		if err := json.Unmarshal([]byte(extractJSONObject(raw)), &wrapped); err != nil {
			return nil, fmt.Errorf("unmarshal rerank json: %w", err)
		}
		items = wrapped.Scores
	}

	scores := make(map[int]float64, len(items))
	for _, item := range items {
		if item.Index == nil || item.Score == nil {
			continue
		}
		idx, score := *item.Index, *item.Score
		if idx < 0 || idx >= n || math.IsNaN(score) {
			continue
		}
		if _, seen := scores[idx]; seen {
			continue
		}
		scores[idx] = math.Max(0, math.Min(1, score))
	}
	if len(scores) == 0 {
		return nil, fmt.Errorf("rerank response scored no candidates")
	}
	return scores, nil
}

func stripCodeFence(raw string) string {
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	raw = strings.TrimPrefix(raw, "```")
	if nl := strings.IndexByte(raw, '\n'); nl >= 0 {
		raw = raw[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "```"))
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max]) + "..."
}
