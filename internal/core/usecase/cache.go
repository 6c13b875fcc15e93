package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alikoudar/irobot-sub000/internal/core/domain"
	"github.com/alikoudar/irobot-sub000/internal/core/ports"
)

const tombstoneRetention = 24 * time.Hour

// CacheLookup is the result of a lookup. Embedding is the query vector
// computed for L2, when one was computed, so retrieval can reuse it.
type CacheLookup struct {
	Hit       *domain.CacheHit
	Embedding []float32
}

// CacheStoreRequest carries what a completed generation leaves in the cache.
type CacheStoreRequest struct {
	Query       string
	Embedding   []float32
	Generation  domain.Generation
	Sources     []domain.SourceRef
	RetrievedAt time.Time
}

// QueryCache is the two-level answer cache. It performs no background work;
// PurgeExpired and RollupStatistics are driven from outside.
type QueryCache struct {
	store    ports.CacheStore
	embedder ports.Embedder
	settings ports.SettingsProvider
	metrics  ports.PipelineMetrics
	logger   *slog.Logger
	now      func() time.Time
}

func NewQueryCache(
	store ports.CacheStore,
	embedder ports.Embedder,
	settings ports.SettingsProvider,
	metrics ports.PipelineMetrics,
	logger *slog.Logger,
) *QueryCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryCache{
		store:    store,
		embedder: embedder,
		settings: settings,
		metrics:  metricsOrNop(metrics),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Lookup tries L1 then L2 and records the daily statistics either way.
// Store failures are logged and reported as a miss.
func (c *QueryCache) Lookup(ctx context.Context, query string, s domain.Settings) CacheLookup {
	started := time.Now()
	result := c.lookup(ctx, query, s)

	level := domain.CacheMiss
	delta := domain.MissDelta()
	if result.Hit != nil {
		level = result.Hit.Level
		e := result.Hit.Entry
		delta = domain.HitDelta(e.TokenCount, s.Pricing.Convert(e.GenerationCostUSD))
	}
	if err := c.store.RecordStats(ctx, c.now(), delta); err != nil {
		c.logger.Warn("cache_stats_failed", "error", err)
	}
	c.metrics.ObserveCacheLookup(level, time.Since(started))
	c.logger.Info("cache_lookup", "level", string(level), "duration_ms", time.Since(started).Milliseconds())
	return result
}

func (c *QueryCache) lookup(ctx context.Context, query string, s domain.Settings) CacheLookup {
	now := c.now()
	update := domain.HitUpdate{At: now, USDToXAF: s.Pricing.USDToXAF}
	if s.Cache.ResetTTLOnHit {
		extend := now.Add(s.Cache.TTL())
		update.ExtendTo = &extend
	}

	entry, err := c.store.HitByHash(ctx, domain.QueryHash(query), update)
	if err != nil {
		c.logger.Warn("cache_l1_failed", "error", err)
	} else if entry != nil {
		return CacheLookup{Hit: &domain.CacheHit{Entry: *entry, Level: domain.CacheL1, Similarity: 1}}
	}

	if !s.Cache.SemanticEnabled || c.embedder == nil {
		return CacheLookup{}
	}
	embedding, err := c.embedder.EmbedQuery(ctx, query)
	if err != nil {
		c.logger.Warn("cache_l2_embed_failed", "error", err)
		return CacheLookup{}
	}
	result := CacheLookup{Embedding: embedding}

	nearest, similarity, err := c.store.NearestActive(ctx, embedding, s.Cache.SimilarityThreshold, now)
	if err != nil {
		c.logger.Warn("cache_l2_failed", "error", err)
		return result
	}
	if nearest == nil {
		return result
	}
	// The entry may have expired or been invalidated since the scan.
	entry, err = c.store.HitByID(ctx, nearest.ID, update)
	if err != nil {
		c.logger.Warn("cache_l2_hit_failed", "error", err, "entry_id", nearest.ID)
		return result
	}
	if entry == nil {
		return result
	}
	result.Hit = &domain.CacheHit{Entry: *entry, Level: domain.CacheL2, Similarity: similarity}
	return result
}

// Store writes a new entry after a successful generation. Losing the race to
// another writer of the same query returns the stored winner; losing it to an
// invalidation returns ErrStaleCacheWrite.
func (c *QueryCache) Store(ctx context.Context, req CacheStoreRequest, s domain.Settings) (*domain.CacheEntry, error) {
	if strings.TrimSpace(req.Query) == "" || strings.TrimSpace(req.Generation.Text) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "store cache entry", fmt.Errorf("empty query or answer"))
	}
	now := c.now()
	entry := domain.CacheEntry{
		ID:                uuid.NewString(),
		QueryText:         domain.NormalizeQuery(req.Query),
		QueryHash:         domain.QueryHash(req.Query),
		QueryEmbedding:    req.Embedding,
		Answer:            req.Generation.Text,
		Sources:           req.Sources,
		Model:             req.Generation.Model,
		TokenCount:        req.Generation.TotalTokens(),
		GenerationCostUSD: s.Pricing.GenerationCostUSD(req.Generation.PromptTokens, req.Generation.CompletionTokens),
		CreatedAt:         now,
		ExpiresAt:         now.Add(s.Cache.TTL()),
	}
	retrievedAt := req.RetrievedAt
	if retrievedAt.IsZero() {
		retrievedAt = now
	}

	stored, created, err := c.store.Upsert(ctx, domain.CacheWrite{Entry: entry, RetrievedAt: retrievedAt})
	switch {
	case errors.Is(err, domain.ErrStaleCacheWrite):
		c.metrics.ObserveCacheWrite("stale")
		return nil, err
	case err != nil:
		c.metrics.ObserveCacheWrite("error")
		return nil, fmt.Errorf("upsert cache entry: %w", err)
	case !created:
		c.metrics.ObserveCacheWrite("duplicate")
	default:
		c.metrics.ObserveCacheWrite("created")
	}
	return stored, nil
}

func (c *QueryCache) InvalidateDocument(ctx context.Context, documentID string) (int, error) {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return 0, domain.WrapError(domain.ErrInvalidInput, "invalidate document", fmt.Errorf("empty document id"))
	}
	n, err := c.store.InvalidateDocument(ctx, documentID, c.now())
	if err != nil {
		return 0, fmt.Errorf("invalidate cache for document %s: %w", documentID, err)
	}
	c.metrics.ObserveInvalidation(n)
	c.logger.Info("cache_invalidated", "document_id", documentID, "entries", n)
	return n, nil
}

func (c *QueryCache) PurgeExpired(ctx context.Context) (int, error) {
	now := c.now()
	n, err := c.store.PurgeExpired(ctx, now, now.Add(-tombstoneRetention))
	if err != nil {
		return 0, fmt.Errorf("purge expired cache entries: %w", err)
	}
	c.metrics.ObservePurge(n)
	c.logger.Info("cache_purged", "entries", n)
	return n, nil
}

// ResetTTL restarts the lifetime of an ACTIVE entry. Expired entries are
// never revived and report ErrCacheEntryNotFound like missing ones.
func (c *QueryCache) ResetTTL(ctx context.Context, entryID string) (*domain.CacheEntry, error) {
	now := c.now()
	s := c.settings.Current()
	entry, err := c.store.ExtendActive(ctx, entryID, now, now.Add(s.Cache.TTL()))
	if err != nil {
		return nil, fmt.Errorf("reset cache entry ttl: %w", err)
	}
	if entry == nil {
		return nil, domain.WrapError(domain.ErrCacheEntryNotFound, "reset cache entry ttl", fmt.Errorf("entry %s", entryID))
	}
	return entry, nil
}

func (c *QueryCache) RollupStatistics(ctx context.Context, day time.Time) (*domain.DailyCacheStatistics, error) {
	if day.IsZero() {
		day = c.now()
	}
	row, err := c.store.RollupStats(ctx, domain.StatsDay(day))
	if err != nil {
		return nil, fmt.Errorf("rollup cache statistics: %w", err)
	}
	return row, nil
}

// Statistics lists the daily rows between from and to, inclusive. Days with
// no recorded lookups are absent.
func (c *QueryCache) Statistics(ctx context.Context, from, to time.Time) ([]domain.DailyCacheStatistics, error) {
	if to.IsZero() {
		to = c.now()
	}
	if from.After(to) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list cache statistics", fmt.Errorf("from after to"))
	}
	rows, err := c.store.ListStats(ctx, domain.StatsDay(from), domain.StatsDay(to))
	if err != nil {
		return nil, fmt.Errorf("list cache statistics: %w", err)
	}
	return rows, nil
}

// StatisticsForDays lists the last days days, today included.
func (c *QueryCache) StatisticsForDays(ctx context.Context, days int) ([]domain.DailyCacheStatistics, error) {
	if days <= 0 {
		days = 7
	}
	to := c.now()
	return c.Statistics(ctx, to.AddDate(0, 0, -(days-1)), to)
}
