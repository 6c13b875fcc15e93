package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/alikoudar/irobot-sub000/internal/core/domain"
)

// cacheLockClass namespaces the per-document advisory locks. Cache writes
// hold the lock shared for every cited document; invalidation holds it
// exclusively, so a write either finishes before the tombstone lands or
// sees it.
const cacheLockClass = 7301

const cacheEntryColumns = `id, query_text, query_hash, answer, sources, model, token_count, generation_cost_usd,
	hit_count, cost_saved_usd, cost_saved_xaf, created_at, last_hit_at, expires_at`

// CacheRepository is the ports.CacheStore on postgres with pgvector for the
// semantic level.
type CacheRepository struct {
	db *sql.DB
}

func NewCacheRepository(db *sql.DB) *CacheRepository {
	return &CacheRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCacheEntry(row rowScanner, extra ...any) (*domain.CacheEntry, error) {
	var (
		entry   domain.CacheEntry
		sources []byte
		lastHit sql.NullTime
	)
	dest := []any{
		&entry.ID, &entry.QueryText, &entry.QueryHash, &entry.Answer, &sources, &entry.Model,
		&entry.TokenCount, &entry.GenerationCostUSD, &entry.HitCount, &entry.CostSaved.USD,
		&entry.CostSaved.XAF, &entry.CreatedAt, &lastHit, &entry.ExpiresAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if len(sources) > 0 {
		if err := json.Unmarshal(sources, &entry.Sources); err != nil {
			return nil, fmt.Errorf("unmarshal cache sources: %w", err)
		}
	}
	entry.LastHitAt = timePtr(lastHit)
	return &entry, nil
}

const hitUpdateSQL = `
UPDATE cache_entries
SET hit_count = hit_count + 1,
	last_hit_at = $2,
	cost_saved_usd = cost_saved_usd + generation_cost_usd,
	cost_saved_xaf = cost_saved_xaf + ROUND((generation_cost_usd * $3)::numeric, 6)::double precision,
	expires_at = GREATEST(expires_at, COALESCE($4::timestamptz, expires_at))
WHERE %s = $1 AND expires_at > $2
RETURNING ` + cacheEntryColumns

func (r *CacheRepository) HitByHash(ctx context.Context, hash string, update domain.HitUpdate) (*domain.CacheEntry, error) {
	return r.hit(ctx, "query_hash", hash, update)
}

func (r *CacheRepository) HitByID(ctx context.Context, id string, update domain.HitUpdate) (*domain.CacheEntry, error) {
	return r.hit(ctx, "id", id, update)
}

func (r *CacheRepository) hit(ctx context.Context, column, key string, update domain.HitUpdate) (*domain.CacheEntry, error) {
	var extendTo any
	if update.ExtendTo != nil {
		extendTo = update.ExtendTo.UTC()
	}
	row := r.db.QueryRowContext(ctx, fmt.Sprintf(hitUpdateSQL, column), key, update.At.UTC(), update.USDToXAF, extendTo)
	entry, err := scanCacheEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("record cache hit: %w", err)
	}
	return entry, nil
}

func (r *CacheRepository) NearestActive(ctx context.Context, embedding []float32, threshold float64, now time.Time) (*domain.CacheEntry, float64, error) {
	if len(embedding) == 0 {
		return nil, 0, nil
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+cacheEntryColumns+`, 1 - (query_embedding <=> $1) AS similarity
FROM cache_entries
WHERE query_embedding IS NOT NULL
	AND vector_dims(query_embedding) = $3
	AND expires_at > $2
	AND 1 - (query_embedding <=> $1) >= $4
ORDER BY query_embedding <=> $1, id
LIMIT 1
`, pgvector.NewVector(embedding), now.UTC(), len(embedding), threshold)

	var similarity float64
	entry, err := scanCacheEntry(row, &similarity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("nearest cache entry: %w", err)
	}
	return entry, similarity, nil
}

func (r *CacheRepository) Upsert(ctx context.Context, write domain.CacheWrite) (*domain.CacheEntry, bool, error) {
	entry := write.Entry
	docIDs := entry.DocumentIDs()
	sort.Strings(docIDs)

	sources, err := json.Marshal(entry.Sources)
	if err != nil {
		return nil, false, fmt.Errorf("marshal cache sources: %w", err)
	}
	if entry.Sources == nil {
		sources = []byte("[]")
	}
	var embedding any
	if len(entry.QueryEmbedding) > 0 {
		embedding = pgvector.NewVector(entry.QueryEmbedding)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin cache upsert tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, docID := range docIDs {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock_shared($1, hashtext($2))`, cacheLockClass, docID); err != nil {
			return nil, false, fmt.Errorf("lock document %s: %w", docID, err)
		}
		var invalidatedAt time.Time
		err := tx.QueryRowContext(ctx, `
SELECT invalidated_at FROM cache_document_invalidations WHERE document_id = $1
`, docID).Scan(&invalidatedAt)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, false, fmt.Errorf("read invalidation of %s: %w", docID, err)
		}
		if err == nil && !invalidatedAt.Before(write.RetrievedAt) {
			return nil, false, domain.WrapError(domain.ErrStaleCacheWrite, "upsert cache entry",
				fmt.Errorf("document %s invalidated after retrieval", docID))
		}
	}

	// An expired row still holds the hash until swept; replace it.
	if _, err := tx.ExecContext(ctx, `
DELETE FROM cache_entries WHERE query_hash = $1 AND expires_at <= $2
`, entry.QueryHash, entry.CreatedAt.UTC()); err != nil {
		return nil, false, fmt.Errorf("delete expired cache entry: %w", err)
	}

	var insertedID string
	err = tx.QueryRowContext(ctx, `
INSERT INTO cache_entries (
	id, query_text, query_hash, query_embedding, answer, sources, model, token_count, generation_cost_usd,
	hit_count, cost_saved_usd, cost_saved_xaf, created_at, last_hit_at, expires_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
ON CONFLICT (query_hash) DO NOTHING
RETURNING id
`,
		entry.ID, entry.QueryText, entry.QueryHash, embedding, entry.Answer, sources, entry.Model,
		entry.TokenCount, entry.GenerationCostUSD, entry.HitCount, entry.CostSaved.USD, entry.CostSaved.XAF,
		entry.CreatedAt.UTC(), entry.LastHitAt, entry.ExpiresAt.UTC(),
	).Scan(&insertedID)
	if errors.Is(err, sql.ErrNoRows) {
		existing, err := scanCacheEntry(tx.QueryRowContext(ctx, `
SELECT `+cacheEntryColumns+` FROM cache_entries WHERE query_hash = $1
`, entry.QueryHash))
		if err != nil {
			return nil, false, fmt.Errorf("read winning cache entry: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("commit cache upsert tx: %w", err)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("insert cache entry: %w", err)
	}

	for _, docID := range docIDs {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO cache_document_links (cache_entry_id, document_id) VALUES ($1, $2) ON CONFLICT DO NOTHING
`, insertedID, docID); err != nil {
			return nil, false, fmt.Errorf("link cache entry to %s: %w", docID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit cache upsert tx: %w", err)
	}
	stored := entry
	stored.QueryEmbedding = nil
	return &stored, true, nil
}

func (r *CacheRepository) InvalidateDocument(ctx context.Context, documentID string, at time.Time) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin invalidation tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1, hashtext($2))`, cacheLockClass, documentID); err != nil {
		return 0, fmt.Errorf("lock document %s: %w", documentID, err)
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO cache_document_invalidations (document_id, invalidated_at) VALUES ($1, $2)
ON CONFLICT (document_id) DO UPDATE
SET invalidated_at = GREATEST(cache_document_invalidations.invalidated_at, EXCLUDED.invalidated_at)
`, documentID, at.UTC()); err != nil {
		return 0, fmt.Errorf("record invalidation: %w", err)
	}
	res, err := tx.ExecContext(ctx, `
DELETE FROM cache_entries
WHERE id IN (SELECT cache_entry_id FROM cache_document_links WHERE document_id = $1)
`, documentID)
	if err != nil {
		return 0, fmt.Errorf("delete invalidated cache entries: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("invalidated rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit invalidation tx: %w", err)
	}
	return int(removed), nil
}

func (r *CacheRepository) PurgeExpired(ctx context.Context, now time.Time, tombstonesBefore time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge expired cache entries: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purged rows affected: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `
DELETE FROM cache_document_invalidations WHERE invalidated_at < $1
`, tombstonesBefore.UTC()); err != nil {
		return int(removed), fmt.Errorf("purge invalidation tombstones: %w", err)
	}
	return int(removed), nil
}

func (r *CacheRepository) ExtendActive(ctx context.Context, id string, now, expiresAt time.Time) (*domain.CacheEntry, error) {
	row := r.db.QueryRowContext(ctx, `
UPDATE cache_entries SET expires_at = $3
WHERE id = $1 AND expires_at > $2
RETURNING `+cacheEntryColumns, id, now.UTC(), expiresAt.UTC())
	entry, err := scanCacheEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("extend cache entry: %w", err)
	}
	return entry, nil
}

const statsColumns = `day, total_requests, cache_hits, cache_misses, hit_rate, tokens_saved, cost_saved_usd, cost_saved_xaf`

func scanStats(row rowScanner) (*domain.DailyCacheStatistics, error) {
	var s domain.DailyCacheStatistics
	if err := row.Scan(
		&s.Date, &s.TotalRequests, &s.CacheHits, &s.CacheMisses, &s.HitRate, &s.TokensSaved,
		&s.CostSaved.USD, &s.CostSaved.XAF,
	); err != nil {
		return nil, err
	}
	s.Date = domain.StatsDay(s.Date)
	return &s, nil
}

func (r *CacheRepository) RecordStats(ctx context.Context, day time.Time, delta domain.StatsDelta) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO cache_daily_stats (`+statsColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (day) DO UPDATE SET
	total_requests = cache_daily_stats.total_requests + EXCLUDED.total_requests,
	cache_hits = cache_daily_stats.cache_hits + EXCLUDED.cache_hits,
	cache_misses = cache_daily_stats.cache_misses + EXCLUDED.cache_misses,
	tokens_saved = cache_daily_stats.tokens_saved + EXCLUDED.tokens_saved,
	cost_saved_usd = cache_daily_stats.cost_saved_usd + EXCLUDED.cost_saved_usd,
	cost_saved_xaf = cache_daily_stats.cost_saved_xaf + EXCLUDED.cost_saved_xaf,
	hit_rate = CASE
		WHEN cache_daily_stats.total_requests + EXCLUDED.total_requests > 0
		THEN (cache_daily_stats.cache_hits + EXCLUDED.cache_hits)::double precision * 100
			/ (cache_daily_stats.total_requests + EXCLUDED.total_requests)
		ELSE 0
	END
`,
		domain.StatsDay(day), delta.Requests, delta.Hits, delta.Misses,
		domain.ComputeHitRate(delta.Hits, delta.Requests), delta.TokensSaved,
		delta.CostSaved.USD, delta.CostSaved.XAF,
	)
	if err != nil {
		return fmt.Errorf("record cache stats: %w", err)
	}
	return nil
}

func (r *CacheRepository) RollupStats(ctx context.Context, day time.Time) (*domain.DailyCacheStatistics, error) {
	row := r.db.QueryRowContext(ctx, `
INSERT INTO cache_daily_stats (day) VALUES ($1)
ON CONFLICT (day) DO UPDATE SET hit_rate = CASE
	WHEN cache_daily_stats.total_requests > 0
	THEN cache_daily_stats.cache_hits::double precision * 100 / cache_daily_stats.total_requests
	ELSE 0
END
RETURNING `+statsColumns, domain.StatsDay(day))
	stats, err := scanStats(row)
	if err != nil {
		return nil, fmt.Errorf("rollup cache stats: %w", err)
	}
	return stats, nil
}

func (r *CacheRepository) ListStats(ctx context.Context, from, to time.Time) ([]domain.DailyCacheStatistics, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+statsColumns+`
FROM cache_daily_stats
WHERE day BETWEEN $1 AND $2
ORDER BY day
`, domain.StatsDay(from), domain.StatsDay(to))
	if err != nil {
		return nil, fmt.Errorf("list cache stats: %w", err)
	}
	defer rows.Close()

	out := make([]domain.DailyCacheStatistics, 0)
	for rows.Next() {
		stats, err := scanStats(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cache stats: %w", err)
		}
		out = append(out, *stats)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cache stats: %w", err)
	}
	return out, nil
}
