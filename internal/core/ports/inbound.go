package ports

import (
	"context"
	"io"
	"time"

	"github.com/alikoudar/irobot-sub000/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename, mimeType string, body io.Reader) (*domain.Document, error)
}

// DocumentLifecycle changes documents after upload and triggers invalidation.
type DocumentLifecycle interface {
	Reprocess(ctx context.Context, documentID string) error
	Delete(ctx context.Context, documentID string) error
	HandleEvent(ctx context.Context, event domain.DocumentEvent) error
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous document processing.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// ChatService answers questions through the cache and the RAG pipeline.
type ChatService interface {
	Answer(ctx context.Context, req domain.ChatRequest) (*domain.ChatAnswer, error)
}

// CacheAdmin is the maintenance surface of the query cache, driven by the
// scheduler, the admin CLI and the HTTP API.
type CacheAdmin interface {
	PurgeExpired(ctx context.Context) (int, error)
	RollupStatistics(ctx context.Context, day time.Time) (*domain.DailyCacheStatistics, error)
	Statistics(ctx context.Context, from, to time.Time) ([]domain.DailyCacheStatistics, error)
	StatisticsForDays(ctx context.Context, days int) ([]domain.DailyCacheStatistics, error)
	ResetTTL(ctx context.Context, entryID string) (*domain.CacheEntry, error)
	InvalidateDocument(ctx context.Context, documentID string) (int, error)
}
