package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alikoudar/irobot-sub000/internal/core/domain"
	"github.com/alikoudar/irobot-sub000/internal/core/ports"
)

type cacheInvalidator interface {
	InvalidateDocument(ctx context.Context, documentID string) (int, error)
}

type ProcessDocumentUseCase struct {
	repo      ports.DocumentRepository
	chunks    ports.ChunkRepository
	extractor ports.TextExtractor
	cleaner   ports.TextCleaner
	chunker   ports.Chunker
	embedder  ports.Embedder
	index     ports.HybridIndex
	cache     cacheInvalidator
	settings  ports.SettingsProvider
	logger    *slog.Logger
	now       func() time.Time
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	chunks ports.ChunkRepository,
	extractor ports.TextExtractor,
	cleaner ports.TextCleaner,
	chunker ports.Chunker,
	embedder ports.Embedder,
	index ports.HybridIndex,
	cache cacheInvalidator,
	settings ports.SettingsProvider,
	logger *slog.Logger,
) *ProcessDocumentUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessDocumentUseCase{
		repo:      repo,
		chunks:    chunks,
		extractor: extractor,
		cleaner:   cleaner,
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		cache:     cache,
		settings:  settings,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	if err := uc.markStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	doc, count, err := uc.processPipeline(ctx, documentID)
	if err != nil {
		if failErr := uc.markFailed(ctx, documentID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.repo.MarkProcessed(ctx, documentID, count, uc.now()); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}

	// Answers cached from the previous chunk set cite content that is gone.
	if doc.ProcessedAt != nil && uc.cache != nil {
		if _, err := uc.cache.InvalidateDocument(ctx, documentID); err != nil {
			return fmt.Errorf("invalidate cache after reprocess: %w", err)
		}
	}
	uc.logger.Info("document_processed", "document_id", documentID, "chunks", count)
	return nil
}

func (uc *ProcessDocumentUseCase) processPipeline(ctx context.Context, documentID string) (*domain.Document, int, error) {
	doc, err := uc.loadDocument(ctx, documentID)
	if err != nil {
		return nil, 0, err
	}
	s := uc.settings.Current()

	text, err := uc.extractText(ctx, doc)
	if err != nil {
		return nil, 0, err
	}

	text, err = uc.clean(text, s)
	if err != nil {
		return nil, 0, err
	}

	chunks, err := uc.chunk(doc, text, s)
	if err != nil {
		return nil, 0, err
	}

	vectors, err := uc.embed(ctx, chunks)
	if err != nil {
		return nil, 0, err
	}

	if err := uc.chunks.ReplaceChunks(ctx, doc.ID, chunks); err != nil {
		return nil, 0, fmt.Errorf("replace chunks: %w", err)
	}

	if err := uc.index.DeleteByDocument(ctx, doc.ID); err != nil {
		return nil, 0, fmt.Errorf("delete stale index entries: %w", err)
	}
	if err := uc.index.Upsert(ctx, doc, chunks, vectors); err != nil {
		return nil, 0, fmt.Errorf("index chunks: %w", err)
	}

	return doc, len(chunks), nil
}

func (uc *ProcessDocumentUseCase) loadDocument(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	return doc, nil
}

func (uc *ProcessDocumentUseCase) extractText(ctx context.Context, doc *domain.Document) (string, error) {
	text, err := uc.extractor.Extract(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract text", errors.New("empty extracted text"))
	}
	return text, nil
}

func (uc *ProcessDocumentUseCase) clean(text string, s domain.Settings) (string, error) {
	cleaned := uc.cleaner.Clean(text)
	if s.Cleaning.Deduplicate {
		cleaned = uc.cleaner.Deduplicate(cleaned, s.Cleaning.DedupSignatureChars)
	}
	if strings.TrimSpace(cleaned) == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "clean text", errors.New("nothing left after cleaning"))
	}
	return cleaned, nil
}

func (uc *ProcessDocumentUseCase) chunk(doc *domain.Document, text string, s domain.Settings) ([]domain.Chunk, error) {
	chunks := uc.chunker.Chunk(doc.ID, text, s.ChunkParams())
	if len(chunks) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chunk document", errors.New("chunking produced zero chunks"))
	}
	if !domain.ValidateChunkSequence(chunks) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chunk document", errors.New("chunk sequence has gaps"))
	}
	now := uc.now()
	for i := range chunks {
		chunks[i].DocumentID = doc.ID
		chunks[i].ID = ChunkID(doc.ID, chunks[i].Index)
		chunks[i].CreatedAt = now
		if chunks[i].Metadata == nil {
			chunks[i].Metadata = map[string]string{}
		}
		if doc.Category != "" {
			chunks[i].Metadata["category"] = doc.Category
		}
	}
	return chunks, nil
}

func (uc *ProcessDocumentUseCase) embed(ctx context.Context, chunks []domain.Chunk) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := uc.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, domain.WrapError(
			domain.ErrInvalidInput,
			"embed chunks",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(chunks)),
		)
	}
	return vectors, nil
}

func (uc *ProcessDocumentUseCase) markStatus(ctx context.Context, documentID string, status domain.DocumentStatus, errMessage string) error {
	return uc.repo.UpdateStatus(ctx, documentID, status, errMessage)
}

func (uc *ProcessDocumentUseCase) markFailed(ctx context.Context, documentID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	return uc.markStatus(ctx, documentID, domain.StatusFailed, processErr.Error())
}

// ChunkID is stable for a (document, index) pair so re-chunking overwrites
// index points instead of accumulating them.
func ChunkID(documentID string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("chunk:"+documentID+":"+strconv.Itoa(index))).String()
}
