package ports

import (
	"context"
	"io"
	"time"

	"github.com/alikoudar/irobot-sub000/internal/core/domain"
)

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	MarkProcessed(ctx context.Context, id string, chunkCount int, at time.Time) error
	Delete(ctx context.Context, id string) error
}

// ChunkRepository persists chunk sets. ReplaceChunks swaps the whole set for
// a document atomically.
type ChunkRepository interface {
	ReplaceChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error
	ListByDocument(ctx context.Context, documentID string) ([]domain.Chunk, error)
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// MessageQueue publishes/consumes document lifecycle events.
type MessageQueue interface {
	PublishDocumentEvent(ctx context.Context, event domain.DocumentEvent) error
	SubscribeDocumentEvents(ctx context.Context, handler func(context.Context, domain.DocumentEvent) error) error
}

// TextExtractor extracts plain text from a stored document.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) (string, error)
}

// TextCleaner normalizes extracted text. Clean is pure and idempotent.
type TextCleaner interface {
	Clean(raw string) string
	Deduplicate(text string, signatureChars int) string
}

// TokenCounter counts tokens the way the embedding model does, or estimates.
type TokenCounter interface {
	Count(text string) int
	Exact() bool
}

// Chunker splits cleaned text into token-bounded overlapping chunks.
type Chunker interface {
	Chunk(documentID, text string, params domain.ChunkParams) []domain.Chunk
}

// Embedder builds vectors for chunks and query text. A failure is always an
// error, never a zero vector.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// HybridIndex is the external lexical + vector index.
type HybridIndex interface {
	Upsert(ctx context.Context, doc *domain.Document, chunks []domain.Chunk, vectors [][]float32) error
	DeleteByDocument(ctx context.Context, documentID string) error
	Query(ctx context.Context, query domain.HybridQuery) ([]domain.IndexHit, error)
	// EmbedsQueries reports whether the index can embed query text itself.
	EmbedsQueries() bool
}

// AnswerGenerator creates the final user-facing answer and free-form JSON
// completions used for reranking.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question string, candidates []domain.RetrievedCandidate) (domain.Generation, error)
	GenerateJSONFromPrompt(ctx context.Context, prompt string) (string, error)
}

// CacheStore persists cache entries, links, tombstones and daily statistics.
type CacheStore interface {
	// HitByHash records a hit on the active entry with the hash and returns it,
	// or nil when no active entry exists.
	HitByHash(ctx context.Context, hash string, update domain.HitUpdate) (*domain.CacheEntry, error)
	// NearestActive returns the active entry with the highest cosine similarity
	// at or above threshold, or nil.
	NearestActive(ctx context.Context, embedding []float32, threshold float64, now time.Time) (*domain.CacheEntry, float64, error)
	HitByID(ctx context.Context, id string, update domain.HitUpdate) (*domain.CacheEntry, error)
	// Upsert inserts the entry and its document links, or returns the entry
	// already stored under the same hash. It fails with ErrStaleCacheWrite when
	// a source document was invalidated at or after write.RetrievedAt.
	Upsert(ctx context.Context, write domain.CacheWrite) (*domain.CacheEntry, bool, error)
	InvalidateDocument(ctx context.Context, documentID string, at time.Time) (int, error)
	PurgeExpired(ctx context.Context, now time.Time, tombstonesBefore time.Time) (int, error)
	ExtendActive(ctx context.Context, id string, now, expiresAt time.Time) (*domain.CacheEntry, error)
	RecordStats(ctx context.Context, day time.Time, delta domain.StatsDelta) error
	RollupStats(ctx context.Context, day time.Time) (*domain.DailyCacheStatistics, error)
	ListStats(ctx context.Context, from, to time.Time) ([]domain.DailyCacheStatistics, error)
}

// SettingsProvider serves the runtime tunables.
type SettingsProvider interface {
	Current() domain.Settings
	Reload(ctx context.Context) error
}

// PipelineMetrics receives per-stage observations from the use cases.
type PipelineMetrics interface {
	ObserveCacheLookup(level domain.CacheStatus, duration time.Duration)
	ObserveRetrieval(candidates int, duration time.Duration, err error)
	ObserveRerank(degraded bool, duration time.Duration)
	ObserveGeneration(model string, promptTokens, completionTokens int, duration time.Duration, err error)
	ObserveCacheWrite(outcome string)
	ObserveInvalidation(entries int)
	ObservePurge(entries int)
}
