package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/alikoudar/irobot-sub000/internal/core/domain"
)

func scoredHits() []domain.IndexHit {
	// "a" is first lexically and last semantically.
	return []domain.IndexHit{
		{ChunkID: "a", DocumentID: "doc-1", ChunkIndex: 0, LexicalScore: 10, SemanticScore: 0.5},
		{ChunkID: "b", DocumentID: "doc-1", ChunkIndex: 1, LexicalScore: 8, SemanticScore: 0.9},
		{ChunkID: "c", DocumentID: "doc-2", ChunkIndex: 0, LexicalScore: 6, SemanticScore: 0.8},
		{ChunkID: "d", DocumentID: "doc-2", ChunkIndex: 1, LexicalScore: 4, SemanticScore: 0.7},
		{ChunkID: "e", DocumentID: "doc-3", ChunkIndex: 0, LexicalScore: 2, SemanticScore: 0.6},
	}
}

func chunkIDs(candidates []domain.RetrievedCandidate) []string {
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.ChunkID
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRetrieveBlendsBetweenLexicalAndSemanticRank(t *testing.T) {
	r := NewHybridRetriever(&indexFake{hits: scoredHits()}, &embedderFake{}, nil)

	got, err := r.Retrieve(context.Background(), RetrievalRequest{Text: "reserve ratio", TopK: 10, Alpha: 0.75})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if ids := chunkIDs(got); !equalStrings(ids, []string{"b", "c", "d", "a", "e"}) {
		t.Fatalf("unexpected order %v", ids)
	}
	for i := 1; i < len(got); i++ {
		if got[i].BlendedScore > got[i-1].BlendedScore {
			t.Fatalf("scores not descending at %d: %v > %v", i, got[i].BlendedScore, got[i-1].BlendedScore)
		}
		if got[i].Rank != i+1 {
			t.Fatalf("rank %d at position %d", got[i].Rank, i)
		}
	}
}

func TestRetrieveAlphaExtremesFollowSingleSignal(t *testing.T) {
	r := NewHybridRetriever(&indexFake{hits: scoredHits()}, &embedderFake{}, nil)

	semantic, err := r.Retrieve(context.Background(), RetrievalRequest{Text: "q", TopK: 10, Alpha: 1})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if ids := chunkIDs(semantic); !equalStrings(ids, []string{"b", "c", "d", "e", "a"}) {
		t.Fatalf("alpha=1 order %v", ids)
	}

	lexical, err := r.Retrieve(context.Background(), RetrievalRequest{Text: "q", TopK: 10, Alpha: 0})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if ids := chunkIDs(lexical); !equalStrings(ids, []string{"a", "b", "c", "d", "e"}) {
		t.Fatalf("alpha=0 order %v", ids)
	}
}

func TestRetrieveTruncatesToTopK(t *testing.T) {
	r := NewHybridRetriever(&indexFake{hits: scoredHits()}, &embedderFake{}, nil)
	got, err := r.Retrieve(context.Background(), RetrievalRequest{Text: "q", TopK: 2, Alpha: 0})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
}

func TestRetrieveTieBreaksByChunkIndex(t *testing.T) {
	index := &indexFake{hits: []domain.IndexHit{
		{ChunkID: "late", DocumentID: "doc-1", ChunkIndex: 7, LexicalScore: 1, SemanticScore: 1},
		{ChunkID: "early", DocumentID: "doc-1", ChunkIndex: 2, LexicalScore: 1, SemanticScore: 1},
	}}
	r := NewHybridRetriever(index, &embedderFake{}, nil)
	got, err := r.Retrieve(context.Background(), RetrievalRequest{Text: "q", TopK: 10, Alpha: 0.5})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if got[0].ChunkID != "early" {
		t.Fatalf("expected lower chunk index first, got %v", chunkIDs(got))
	}
}

func TestRetrieveMergesDuplicateHits(t *testing.T) {
	index := &indexFake{hits: []domain.IndexHit{
		{ChunkID: "x", DocumentID: "doc-1", LexicalScore: 3},
		{ChunkID: "y", DocumentID: "doc-1", ChunkIndex: 1, SemanticScore: 0.2},
		{ChunkID: "x", DocumentID: "doc-1", SemanticScore: 0.9},
	}}
	r := NewHybridRetriever(index, &embedderFake{}, nil)
	got, err := r.Retrieve(context.Background(), RetrievalRequest{Text: "q", TopK: 10, Alpha: 0.5})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(got) != 2 || got[0].ChunkID != "x" {
		t.Fatalf("expected merged x first, got %v", chunkIDs(got))
	}
}

func TestRetrieveEmptyResultIsNotAnError(t *testing.T) {
	r := NewHybridRetriever(&indexFake{}, &embedderFake{}, nil)
	got, err := r.Retrieve(context.Background(), RetrievalRequest{Text: "q", TopK: 10, Alpha: 0.75})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil result, got %#v", got)
	}
}

func TestRetrieveIndexFailureIsRetrievalError(t *testing.T) {
	r := NewHybridRetriever(&indexFake{err: errors.New("connection refused")}, &embedderFake{}, nil)
	_, err := r.Retrieve(context.Background(), RetrievalRequest{Text: "q", TopK: 10, Alpha: 0.75})
	if !domain.IsKind(err, domain.ErrRetrieval) {
		t.Fatalf("expected ErrRetrieval, got %v", err)
	}
}

func TestRetrieveEmbeddingFailureIsRetrievalError(t *testing.T) {
	r := NewHybridRetriever(&indexFake{}, &embedderFake{err: errors.New("model down")}, nil)
	_, err := r.Retrieve(context.Background(), RetrievalRequest{Text: "q", TopK: 10, Alpha: 0.75})
	if !domain.IsKind(err, domain.ErrRetrieval) {
		t.Fatalf("expected ErrRetrieval, got %v", err)
	}
}

func TestRetrieveReusesPrecomputedVector(t *testing.T) {
	index := &indexFake{}
	embedder := &embedderFake{}
	r := NewHybridRetriever(index, embedder, nil)

	_, err := r.Retrieve(context.Background(), RetrievalRequest{Text: "q", Vector: []float32{0.3, 0.4}, TopK: 3, Alpha: 0.75})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if embedder.queryCalls != 0 {
		t.Fatalf("expected no embedding call, got %d", embedder.queryCalls)
	}
	if q := index.queries[0]; len(q.Vector) != 2 || q.Limit != 3 || q.Text != "q" {
		t.Fatalf("unexpected index query %+v", q)
	}
}

func TestRetrieveLeavesEmbeddingToCapableIndex(t *testing.T) {
	index := &indexFake{embedsQueries: true}
	embedder := &embedderFake{}
	r := NewHybridRetriever(index, embedder, nil)

	if _, err := r.Retrieve(context.Background(), RetrievalRequest{Text: "q", TopK: 3}); err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if embedder.queryCalls != 0 || index.queries[0].Vector != nil {
		t.Fatalf("expected text-only query, embed calls=%d", embedder.queryCalls)
	}
}
