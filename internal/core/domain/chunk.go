package domain

import "time"

// Chunk is a contiguous span of a document's cleaned text. Chunks are
// immutable: re-chunking produces a complete new set.
type Chunk struct {
	ID          string            `json:"id"`
	DocumentID  string            `json:"document_id"`
	Index       int               `json:"index"`
	Text        string            `json:"text"`
	TokenCount  int               `json:"token_count"`
	CharCount   int               `json:"char_count"`
	PageNumber  *int              `json:"page_number,omitempty"`
	StartOffset *int              `json:"start_offset,omitempty"`
	EndOffset   *int              `json:"end_offset,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// ChunkParams are the knobs of a single chunking run.
type ChunkParams struct {
	TargetTokens  int
	OverlapTokens int
	MinChars      int
	// OptimizeBoundaries trims every chunk but the last back to the final
	// sentence end found in its closing characters.
	OptimizeBoundaries bool
}

// ValidateChunkSequence checks that indices run 0..n-1 for one document.
func ValidateChunkSequence(chunks []Chunk) bool {
	for i, c := range chunks {
		if c.Index != i {
			return false
		}
		if i > 0 && c.DocumentID != chunks[0].DocumentID {
			return false
		}
	}
	return true
}
