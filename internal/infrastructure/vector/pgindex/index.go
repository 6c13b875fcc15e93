// Package pgindex is a hybrid index kept in postgres: pgvector cosine
// similarity for the semantic signal and full-text ts_rank_cd for the
// lexical one.
package pgindex

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/alikoudar/irobot-sub000/internal/core/domain"
)

const schemaLockID int64 = 2026101702

// Index stores one row per chunk. It never embeds queries itself.
type Index struct {
	db *sql.DB
}

func New(db *sql.DB) *Index {
	return &Index{db: db}
}

func (i *Index) EmbedsQueries() bool {
	return false
}

// EnsureSchema creates the chunk_vectors table. The lexical column uses the
// 'simple' configuration so French and English text tokenize alike.
func (i *Index) EnsureSchema(ctx context.Context) error {
	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin index schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire index schema lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS chunk_vectors (
	chunk_id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	document_title TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	chunk_index INTEGER NOT NULL,
	page_number INTEGER NULL,
	text TEXT NOT NULL,
	embedding vector NOT NULL,
	lexemes tsvector GENERATED ALWAYS AS (
		setweight(to_tsvector('simple', document_title), 'A') || to_tsvector('simple', text)
	) STORED
);

CREATE INDEX IF NOT EXISTS idx_chunk_vectors_document_id ON chunk_vectors(document_id);
CREATE INDEX IF NOT EXISTS idx_chunk_vectors_lexemes ON chunk_vectors USING GIN (lexemes);
`); err != nil {
		return fmt.Errorf("ensure index schema: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit index schema tx: %w", err)
	}
	return nil
}

func (i *Index) Upsert(ctx context.Context, doc *domain.Document, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("pgindex upsert: %d chunks but %d vectors", len(chunks), len(vectors))
	}

	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin index upsert tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	title := doc.DisplayTitle()
	for n, chunk := range chunks {
		var page any
		if chunk.PageNumber != nil {
			page = int64(*chunk.PageNumber)
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO chunk_vectors (chunk_id, document_id, document_title, category, chunk_index, page_number, text, embedding)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (chunk_id) DO UPDATE SET
	document_id = EXCLUDED.document_id,
	document_title = EXCLUDED.document_title,
	category = EXCLUDED.category,
	chunk_index = EXCLUDED.chunk_index,
	page_number = EXCLUDED.page_number,
	text = EXCLUDED.text,
	embedding = EXCLUDED.embedding
`, chunk.ID, doc.ID, title, doc.Category, chunk.Index, page, chunk.Text, pgvector.NewVector(vectors[n]))
		if err != nil {
			return fmt.Errorf("index chunk %d: %w", chunk.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit index upsert tx: %w", err)
	}
	return nil
}

func (i *Index) DeleteByDocument(ctx context.Context, documentID string) error {
	if _, err := i.db.ExecContext(ctx, `DELETE FROM chunk_vectors WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("delete indexed chunks: %w", err)
	}
	return nil
}

// Query takes the top Limit rows of each signal and joins them by chunk id.
// A chunk found by one signal only scores zero on the other.
func (i *Index) Query(ctx context.Context, query domain.HybridQuery) ([]domain.IndexHit, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = 10
	}
	text := strings.TrimSpace(query.Text)
	if len(query.Vector) == 0 && text == "" {
		return nil, nil
	}

	stmt, args := buildQuery(query.Vector, text, limit, query.Filter)
	rows, err := i.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	defer rows.Close()

	out := make([]domain.IndexHit, 0, limit)
	for rows.Next() {
		var (
			hit  domain.IndexHit
			page sql.NullInt64
		)
		if err := rows.Scan(
			&hit.ChunkID, &hit.DocumentID, &hit.DocumentTitle, &hit.Category, &hit.ChunkIndex,
			&page, &hit.Text, &hit.LexicalScore, &hit.SemanticScore,
		); err != nil {
			return nil, fmt.Errorf("scan index hit: %w", err)
		}
		if page.Valid {
			p := int(page.Int64)
			hit.PageNumber = &p
		}
		out = append(out, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate index hits: %w", err)
	}
	return out, nil
}

type argList struct {
	values []any
}

func (a *argList) add(v any) string {
	a.values = append(a.values, v)
	return fmt.Sprintf("$%d", len(a.values))
}

func buildQuery(vector []float32, text string, limit int, filter domain.SearchFilter) (string, []any) {
	args := &argList{}
	where := filterClause(args, filter)
	limitArg := args.add(limit)

	var ctes, joins []string
	semanticScore, lexicalScore := "0::double precision", "0::double precision"
	if len(vector) > 0 {
		vec := args.add(pgvector.NewVector(vector))
		ctes = append(ctes, fmt.Sprintf(`semantic AS (
	SELECT chunk_id, 1 - (embedding <=> %[1]s) AS score
	FROM chunk_vectors
	WHERE vector_dims(embedding) = %[2]s%[3]s
	ORDER BY embedding <=> %[1]s, chunk_id
	LIMIT %[4]s
)`, vec, args.add(len(vector)), where, limitArg))
		joins = append(joins, "semantic")
		semanticScore = "COALESCE(semantic.score, 0)"
	}
	if text != "" {
		q := args.add(text)
		ctes = append(ctes, fmt.Sprintf(`lexical AS (
	SELECT chunk_id, ts_rank_cd(lexemes, plainto_tsquery('simple', %[1]s))::double precision AS score
	FROM chunk_vectors
	WHERE lexemes @@ plainto_tsquery('simple', %[1]s)%[2]s
	ORDER BY score DESC, chunk_id
	LIMIT %[3]s
)`, q, where, limitArg))
		joins = append(joins, "lexical")
		lexicalScore = "COALESCE(lexical.score, 0)"
	}

	var from string
	switch len(joins) {
	case 1:
		from = fmt.Sprintf("%[1]s JOIN chunk_vectors c ON c.chunk_id = %[1]s.chunk_id", joins[0])
	default:
		from = `semantic FULL OUTER JOIN lexical ON lexical.chunk_id = semantic.chunk_id
JOIN chunk_vectors c ON c.chunk_id = COALESCE(semantic.chunk_id, lexical.chunk_id)`
	}

	stmt := fmt.Sprintf(`WITH %s
SELECT c.chunk_id, c.document_id, c.document_title, c.category, c.chunk_index, c.page_number, c.text,
	%s AS lexical_score, %s AS semantic_score
FROM %s
ORDER BY c.chunk_id`, strings.Join(ctes, ",\n"), lexicalScore, semanticScore, from)
	return stmt, args.values
}

func filterClause(args *argList, filter domain.SearchFilter) string {
	var parts []string
	if filter.Category != "" {
		parts = append(parts, "category = "+args.add(filter.Category))
	}
	if len(filter.DocumentIDs) > 0 {
		placeholders := make([]string, 0, len(filter.DocumentIDs))
		for _, id := range filter.DocumentIDs {
			placeholders = append(placeholders, args.add(id))
		}
		parts = append(parts, "document_id IN ("+strings.Join(placeholders, ", ")+")")
	}
	if len(parts) == 0 {
		return ""
	}
	return " AND " + strings.Join(parts, " AND ")
}
