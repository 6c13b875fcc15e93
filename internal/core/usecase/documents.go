package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alikoudar/irobot-sub000/internal/core/domain"
	"github.com/alikoudar/irobot-sub000/internal/core/ports"
)

// DocumentLifecycleUseCase handles changes to uploaded documents. Every change
// ends in cache invalidation for the document, either synchronously or through
// the worker consuming the published event.
type DocumentLifecycleUseCase struct {
	repo      ports.DocumentRepository
	storage   ports.ObjectStorage
	index     ports.HybridIndex
	queue     ports.MessageQueue
	cache     cacheInvalidator
	processor ports.DocumentProcessor
	logger    *slog.Logger
	now       func() time.Time
}

func NewDocumentLifecycleUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	index ports.HybridIndex,
	queue ports.MessageQueue,
	cache cacheInvalidator,
	processor ports.DocumentProcessor,
	logger *slog.Logger,
) *DocumentLifecycleUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentLifecycleUseCase{
		repo:      repo,
		storage:   storage,
		index:     index,
		queue:     queue,
		cache:     cache,
		processor: processor,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (uc *DocumentLifecycleUseCase) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	return uc.repo.GetByID(ctx, strings.TrimSpace(id))
}

// Reprocess re-runs the processing pipeline in the worker. The worker
// invalidates cached answers once the new chunk set is indexed.
func (uc *DocumentLifecycleUseCase) Reprocess(ctx context.Context, documentID string) error {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	event := domain.DocumentEvent{Type: domain.DocumentUpdated, DocumentID: doc.ID, OccurredAt: uc.now()}
	if err := uc.queue.PublishDocumentEvent(ctx, event); err != nil {
		return fmt.Errorf("publish update event: %w", err)
	}
	return nil
}

// Delete removes the document and its chunks, then invalidates cached answers
// citing it both inline and through the queue. It fails only when neither
// invalidation path could be taken.
func (uc *DocumentLifecycleUseCase) Delete(ctx context.Context, documentID string) error {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	if err := uc.repo.Delete(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete document row: %w", err)
	}
	if err := uc.index.DeleteByDocument(ctx, doc.ID); err != nil {
		uc.logger.Warn("document_index_delete_failed", "document_id", doc.ID, "error", err)
	}
	if doc.StoragePath != "" {
		if err := uc.storage.Delete(ctx, doc.StoragePath); err != nil {
			uc.logger.Warn("document_storage_delete_failed", "document_id", doc.ID, "error", err)
		}
	}

	_, invalidateErr := uc.cache.InvalidateDocument(ctx, doc.ID)
	if invalidateErr != nil {
		uc.logger.Warn("document_cache_invalidate_failed", "document_id", doc.ID, "error", invalidateErr)
	}
	event := domain.DocumentEvent{Type: domain.DocumentDeleted, DocumentID: doc.ID, OccurredAt: uc.now()}
	publishErr := uc.queue.PublishDocumentEvent(ctx, event)
	if publishErr != nil {
		uc.logger.Warn("document_delete_publish_failed", "document_id", doc.ID, "error", publishErr)
	}
	if invalidateErr != nil && publishErr != nil {
		return fmt.Errorf("invalidate cache for deleted document: %w", errors.Join(invalidateErr, publishErr))
	}
	return nil
}

// HandleEvent is the worker side of the document queue.
func (uc *DocumentLifecycleUseCase) HandleEvent(ctx context.Context, event domain.DocumentEvent) error {
	switch event.Type {
	case domain.DocumentIngested, domain.DocumentUpdated:
		return uc.processor.ProcessByID(ctx, event.DocumentID)
	case domain.DocumentDeleted:
		if err := uc.index.DeleteByDocument(ctx, event.DocumentID); err != nil {
			uc.logger.Warn("document_index_delete_failed", "document_id", event.DocumentID, "error", err)
		}
		if _, err := uc.cache.InvalidateDocument(ctx, event.DocumentID); err != nil {
			return fmt.Errorf("invalidate cache for deleted document: %w", err)
		}
		return nil
	default:
		return domain.WrapError(domain.ErrInvalidInput, "handle document event", fmt.Errorf("unknown event type %q", event.Type))
	}
}
