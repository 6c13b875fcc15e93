package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/alikoudar/irobot-sub000/internal/core/domain"
)

type ChunkRepository struct {
	db *sql.DB
}

func NewChunkRepository(db *sql.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// ReplaceChunks swaps the document's chunk set in one transaction so readers
// see either the old set or the new one.
func (r *ChunkRepository) ReplaceChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace chunks tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}

	for _, chunk := range chunks {
		if chunk.DocumentID != documentID {
			return fmt.Errorf("chunk %d belongs to document %q, not %q", chunk.Index, chunk.DocumentID, documentID)
		}
		metadata, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("marshal chunk metadata: %w", err)
		}
		if chunk.Metadata == nil {
			metadata = []byte("{}")
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO chunks (
	id, document_id, chunk_index, text, token_count, char_count, page_number, start_offset, end_offset, metadata, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`,
			chunk.ID, chunk.DocumentID, chunk.Index, chunk.Text, chunk.TokenCount, chunk.CharCount,
			nullableInt(chunk.PageNumber), nullableInt(chunk.StartOffset), nullableInt(chunk.EndOffset),
			metadata, chunk.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert chunk %d: %w", chunk.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace chunks tx: %w", err)
	}
	return nil
}

func (r *ChunkRepository) ListByDocument(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, document_id, chunk_index, text, token_count, char_count, page_number, start_offset, end_offset, metadata, created_at
FROM chunks
WHERE document_id = $1
ORDER BY chunk_index
`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Chunk, 0)
	for rows.Next() {
		var (
			chunk            domain.Chunk
			page, start, end sql.NullInt64
			metadata         []byte
		)
		if err := rows.Scan(
			&chunk.ID, &chunk.DocumentID, &chunk.Index, &chunk.Text, &chunk.TokenCount, &chunk.CharCount,
			&page, &start, &end, &metadata, &chunk.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &chunk.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal chunk metadata: %w", err)
			}
		}
		chunk.PageNumber = intPtr(page)
		chunk.StartOffset = intPtr(start)
		chunk.EndOffset = intPtr(end)
		out = append(out, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}
