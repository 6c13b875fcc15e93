package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/alikoudar/irobot-sub000/internal/core/domain"
	"github.com/alikoudar/irobot-sub000/internal/core/ports"
)

// ChatUseCase sequences cache lookup, retrieval, rerank, generation and the
// cache write for one question. Identical concurrent misses share one run.
type ChatUseCase struct {
	settings  ports.SettingsProvider
	cache     *QueryCache
	retriever *HybridRetriever
	reranker  *LLMReranker
	generator ports.AnswerGenerator
	metrics   ports.PipelineMetrics
	logger    *slog.Logger
	now       func() time.Time

	inflight        singleflight.Group
	pipelineTimeout time.Duration
}

const defaultPipelineTimeout = 2 * time.Minute

func NewChatUseCase(
	settings ports.SettingsProvider,
	cache *QueryCache,
	retriever *HybridRetriever,
	reranker *LLMReranker,
	generator ports.AnswerGenerator,
	metrics ports.PipelineMetrics,
	logger *slog.Logger,
) *ChatUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatUseCase{
		settings:  settings,
		cache:     cache,
		retriever: retriever,
		reranker:  reranker,
		generator: generator,
		metrics:   metricsOrNop(metrics),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },

		pipelineTimeout: defaultPipelineTimeout,
	}
}

func (uc *ChatUseCase) Answer(ctx context.Context, req domain.ChatRequest) (*domain.ChatAnswer, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer question", fmt.Errorf("question is required"))
	}
	s := uc.settings.Current()

	// Cached answers are corpus-wide; a filtered question bypasses the cache.
	useCache := s.Cache.Enabled && uc.cache != nil && isUnfiltered(req.Filter)
	var embedding []float32
	if useCache {
		lookup := uc.cache.Lookup(ctx, question, s)
		if lookup.Hit != nil {
			return answerFromHit(lookup.Hit), nil
		}
		embedding = lookup.Embedding
	}

	key := domain.QueryHash(question) + "|" + filterKey(req.Filter)
	ch := uc.inflight.DoChan(key, func() (any, error) {
		// The run is shared by every caller of the key, so no single caller's
		// cancellation may end it. Each caller stops waiting on its own ctx.
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.pipelineTimeout)
		defer cancel()
		return uc.runPipeline(shared, question, req.Filter, embedding, s, useCache)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		answer := *res.Val.(*domain.ChatAnswer)
		return &answer, nil
	}
}

func (uc *ChatUseCase) runPipeline(
	ctx context.Context,
	question string,
	filter domain.SearchFilter,
	embedding []float32,
	s domain.Settings,
	useCache bool,
) (*domain.ChatAnswer, error) {
	retrievedAt := uc.now()
	candidates, retrievalErr := uc.retriever.Retrieve(ctx, RetrievalRequest{
		Text:   question,
		Vector: embedding,
		TopK:   s.Retrieval.TopK,
		Alpha:  s.Retrieval.Alpha,
		Filter: filter,
	})
	if retrievalErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		uc.logger.Warn("retrieval_degraded", "error", retrievalErr)
		candidates = nil
	}

	var outcome domain.RerankOutcome
	if s.Retrieval.RerankEnabled && uc.reranker != nil {
		outcome = uc.reranker.Rerank(ctx, question, candidates, s.Retrieval.RerankTopN)
	} else {
		outcome = KeepRetrievalOrder(candidates, s.Retrieval.RerankTopN)
	}
	selected := outcome.Selected()

	started := time.Now()
	gen, err := uc.generator.GenerateAnswer(ctx, question, selected)
	uc.metrics.ObserveGeneration(gen.Model, gen.PromptTokens, gen.CompletionTokens, time.Since(started), err)
	if err != nil {
		return nil, domain.WrapError(domain.ErrGeneration, "generate answer", err)
	}

	sources := make([]domain.SourceRef, 0, len(selected))
	for _, c := range selected {
		sources = append(sources, c.Source())
	}
	answer := &domain.ChatAnswer{
		Text:           gen.Text,
		Sources:        sources,
		CacheStatus:    domain.CacheMiss,
		RerankDegraded: outcome.Degraded,
		RetrievalError: retrievalErr != nil,
		Model:          gen.Model,
		TokensUsed:     gen.TotalTokens(),
		Cost:           s.Pricing.Convert(s.Pricing.GenerationCostUSD(gen.PromptTokens, gen.CompletionTokens)),
	}

	// Answers built without retrieved context are not cached: they cannot be
	// invalidated by any document change.
	if useCache && retrievalErr == nil && len(sources) > 0 {
		// The generation is complete; a client disconnect must not drop the write.
		entry, err := uc.cache.Store(context.WithoutCancel(ctx), CacheStoreRequest{
			Query:       question,
			Embedding:   embedding,
			Generation:  gen,
			Sources:     sources,
			RetrievedAt: retrievedAt,
		}, s)
		switch {
		case domain.IsKind(err, domain.ErrStaleCacheWrite):
			uc.logger.Info("cache_write_stale", "error", err)
		case err != nil:
			uc.logger.Warn("cache_write_failed", "error", err)
		default:
			answer.CacheEntryID = entry.ID
		}
	}
	return answer, nil
}

func answerFromHit(hit *domain.CacheHit) *domain.ChatAnswer {
	answer := &domain.ChatAnswer{
		Text:         hit.Entry.Answer,
		Sources:      hit.Entry.Sources,
		CacheStatus:  hit.Level,
		CacheEntryID: hit.Entry.ID,
		Model:        hit.Entry.Model,
	}
	if hit.Level == domain.CacheL2 {
		answer.Similarity = hit.Similarity
	}
	return answer
}

func isUnfiltered(f domain.SearchFilter) bool {
	return strings.TrimSpace(f.Category) == "" && len(f.DocumentIDs) == 0
}

func filterKey(f domain.SearchFilter) string {
	ids := append([]string(nil), f.DocumentIDs...)
	sort.Strings(ids)
	return strings.TrimSpace(f.Category) + "|" + strings.Join(ids, ",")
}
