package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/alikoudar/irobot-sub000/internal/core/domain"
)

func TestReplaceChunksDeletesThenInserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()
	repo := NewChunkRepository(db)

	created := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	page := 3
	chunks := []domain.Chunk{
		{ID: "c0", DocumentID: "doc-1", Index: 0, Text: "alpha", TokenCount: 2, CharCount: 5, PageNumber: &page, CreatedAt: created},
		{ID: "c1", DocumentID: "doc-1", Index: 1, Text: "beta", TokenCount: 1, CharCount: 4, CreatedAt: created},
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM chunks WHERE document_id").WithArgs("doc-1").WillReturnResult(sqlmock.NewResult(0, 7))
	mock.ExpectExec("INSERT INTO chunks").
		WithArgs("c0", "doc-1", 0, "alpha", 2, 5, 3, nil, nil, []byte("{}"), created).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO chunks").
		WithArgs("c1", "doc-1", 1, "beta", 1, 4, nil, nil, nil, []byte("{}"), created).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.ReplaceChunks(context.Background(), "doc-1", chunks); err != nil {
		t.Fatalf("ReplaceChunks() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestReplaceChunksRejectsForeignChunk(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()
	repo := NewChunkRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM chunks").WithArgs("doc-1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err = repo.ReplaceChunks(context.Background(), "doc-1", []domain.Chunk{{ID: "x", DocumentID: "doc-2"}})
	if err == nil {
		t.Fatalf("expected error for chunk of another document")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListByDocumentScansOptionalColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()
	repo := NewChunkRepository(db)

	created := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, document_id, chunk_index").
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "document_id", "chunk_index", "text", "token_count", "char_count",
			"page_number", "start_offset", "end_offset", "metadata", "created_at",
		}).
			AddRow("c0", "doc-1", 0, "alpha", 2, 5, 1, 0, 5, []byte(`{"section":"Intro"}`), created).
			AddRow("c1", "doc-1", 1, "beta", 1, 4, nil, nil, nil, []byte(`{}`), created))

	chunks, err := repo.ListByDocument(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("ListByDocument() error = %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("len(chunks) = %d, want 2", len(chunks))
	}
	if chunks[0].PageNumber == nil || *chunks[0].PageNumber != 1 {
		t.Fatalf("chunks[0].PageNumber = %v, want 1", chunks[0].PageNumber)
	}
	if chunks[0].Metadata["section"] != "Intro" {
		t.Fatalf("section = %q", chunks[0].Metadata["section"])
	}
	if chunks[1].PageNumber != nil || chunks[1].EndOffset != nil {
		t.Fatalf("expected nil optional columns, got %+v", chunks[1])
	}
}
