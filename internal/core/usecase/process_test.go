package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alikoudar/irobot-sub000/internal/core/domain"
)

type processFixture struct {
	uc      *ProcessDocumentUseCase
	repo    *docRepoFake
	chunks  *chunkRepoFake
	index   *indexFake
	cache   *invalidatorFake
	cleaner *cleanerFake
}

func newProcessFixture(doc *domain.Document, extractor *extractorFake, chunker *chunkerFake) *processFixture {
	f := &processFixture{
		repo:    newDocRepoFake(doc),
		chunks:  &chunkRepoFake{},
		index:   &indexFake{},
		cache:   &invalidatorFake{},
		cleaner: &cleanerFake{},
	}
	f.uc = NewProcessDocumentUseCase(
		f.repo,
		f.chunks,
		extractor,
		f.cleaner,
		chunker,
		&embedderFake{},
		f.index,
		f.cache,
		defaultSettingsFake(),
		nil,
	)
	return f
}

func TestProcessByIDSuccess(t *testing.T) {
	f := newProcessFixture(
		&domain.Document{ID: "doc-1", Category: "finance"},
		&extractorFake{text: "text"},
		&chunkerFake{texts: []string{"a", "b"}},
	)

	if err := f.uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	if len(f.repo.statusCalls) != 2 {
		t.Fatalf("expected 2 status calls, got %d", len(f.repo.statusCalls))
	}
	if f.repo.statusCalls[0].status != domain.StatusProcessing || f.repo.statusCalls[1].status != domain.StatusReady {
		t.Fatalf("unexpected status sequence: %+v", f.repo.statusCalls)
	}
	if f.repo.processed["doc-1"] != 2 {
		t.Fatalf("expected chunk count 2, got %d", f.repo.processed["doc-1"])
	}
	stored := f.chunks.chunks["doc-1"]
	if len(stored) != 2 || stored[0].ID != ChunkID("doc-1", 0) || stored[1].Metadata["category"] != "finance" {
		t.Fatalf("unexpected stored chunks %+v", stored)
	}
	if len(f.index.deleted) != 1 || len(f.index.upserted) != 2 {
		t.Fatalf("expected stale delete then upsert, got deleted=%v upserted=%d", f.index.deleted, len(f.index.upserted))
	}
	if f.cleaner.dedupCalls != 1 {
		t.Fatalf("expected dedup pass, got %d", f.cleaner.dedupCalls)
	}
	if len(f.cache.docs) != 0 {
		t.Fatalf("first processing must not invalidate, got %v", f.cache.docs)
	}
}

func TestProcessByIDReprocessInvalidatesCache(t *testing.T) {
	processedAt := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	f := newProcessFixture(
		&domain.Document{ID: "doc-1", ProcessedAt: &processedAt},
		&extractorFake{text: "new text"},
		&chunkerFake{texts: []string{"a"}},
	)

	if err := f.uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	if len(f.cache.docs) != 1 || f.cache.docs[0] != "doc-1" {
		t.Fatalf("expected invalidation of doc-1, got %v", f.cache.docs)
	}
}

func TestProcessByIDMarksFailedOnExtractError(t *testing.T) {
	f := newProcessFixture(
		&domain.Document{ID: "doc-1"},
		&extractorFake{err: errors.New("extract fail")},
		&chunkerFake{texts: []string{"a"}},
	)

	err := f.uc.ProcessByID(context.Background(), "doc-1")
	if err == nil {
		t.Fatalf("expected error")
	}
	last := f.repo.statusCalls[len(f.repo.statusCalls)-1]
	if last.status != domain.StatusFailed || !strings.Contains(last.errMsg, "extract fail") {
		t.Fatalf("expected failed status with message, got %+v", last)
	}
	if f.chunks.chunks != nil || len(f.index.upserted) != 0 {
		t.Fatalf("failure must not persist chunks")
	}
}

func TestProcessByIDRejectsBlankText(t *testing.T) {
	f := newProcessFixture(
		&domain.Document{ID: "doc-1"},
		&extractorFake{text: "   \n  "},
		&chunkerFake{texts: []string{"a"}},
	)

	err := f.uc.ProcessByID(context.Background(), "doc-1")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestProcessByIDFailsOnZeroChunks(t *testing.T) {
	f := newProcessFixture(
		&domain.Document{ID: "doc-1"},
		&extractorFake{text: "short"},
		&chunkerFake{},
	)

	err := f.uc.ProcessByID(context.Background(), "doc-1")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestProcessByIDIndexFailureMarksFailed(t *testing.T) {
	f := newProcessFixture(
		&domain.Document{ID: "doc-1"},
		&extractorFake{text: "text"},
		&chunkerFake{texts: []string{"a"}},
	)
	f.index.upsertErr = errors.New("qdrant down")

	if err := f.uc.ProcessByID(context.Background(), "doc-1"); err == nil {
		t.Fatalf("expected error")
	}
	last := f.repo.statusCalls[len(f.repo.statusCalls)-1]
	if last.status != domain.StatusFailed {
		t.Fatalf("expected failed status, got %+v", last)
	}
}

func TestChunkIDIsStable(t *testing.T) {
	if ChunkID("doc-1", 3) != ChunkID("doc-1", 3) {
		t.Fatalf("chunk id must be deterministic")
	}
	if ChunkID("doc-1", 3) == ChunkID("doc-1", 4) || ChunkID("doc-1", 3) == ChunkID("doc-2", 3) {
		t.Fatalf("chunk ids must differ across positions")
	}
}
